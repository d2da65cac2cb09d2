package geotable

import (
	"bytes"
	"encoding/json"
	"strings"

	"gopkg.in/check.v1"
)

type statsSuite struct{}

var _ = check.Suite(&statsSuite{})

func (s *statsSuite) TestStats(c *check.C) {
	var stdout, stderr bytes.Buffer
	in := "Probe_ID\tS1\tS2\n" +
		"P1\t1\t\n" +
		"P2\t3\t\n" +
		"P3\t2\tNA\n" +
		"P4\t5\t\n"
	exited := (&statscmd{}).RunCommand("stats", []string{"-list-incomplete"}, strings.NewReader(in), &stdout, &stderr)
	c.Assert(exited, check.Equals, 0, check.Commentf("%s", stderr.String()))

	var ret matrixSummary
	c.Assert(json.Unmarshal(stdout.Bytes(), &ret), check.IsNil)
	c.Check(ret.IndexLabel, check.Equals, "Probe_ID")
	c.Check(ret.Rows, check.Equals, 4)
	c.Check(ret.Columns, check.Equals, 2)
	c.Check(ret.MissingCells, check.Equals, 4)
	c.Check(ret.IncompleteRows, check.Equals, 4)
	c.Check(ret.Incomplete, check.DeepEquals, []string{"P1", "P2", "P3", "P4"})
	c.Assert(ret.ColumnSummaries, check.HasLen, 2)
	s1 := ret.ColumnSummaries[0]
	c.Check(s1.Name, check.Equals, "S1")
	c.Check(s1.Missing, check.Equals, 0)
	c.Check(*s1.Min, check.Equals, 1.0)
	c.Check(*s1.Max, check.Equals, 5.0)
	c.Check(*s1.Median, check.Equals, 2.5)
	s2 := ret.ColumnSummaries[1]
	c.Check(s2.Missing, check.Equals, 4)
	c.Check(s2.Min, check.IsNil)
	c.Check(s2.Median, check.IsNil)
}
