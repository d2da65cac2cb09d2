package geotable

import (
	"bytes"

	"gopkg.in/check.v1"
)

type cmdSuite struct{}

var _ = check.Suite(&cmdSuite{})

func (s *cmdSuite) TestDispatch(c *check.C) {
	for _, subcommand := range []string{"merge-tbls", "probe2gene", "parse-pheno"} {
		var stderr bytes.Buffer
		code := handler.RunCommand("geotable", []string{subcommand}, nil, &bytes.Buffer{}, &stderr)
		c.Check(code, check.Equals, 2, check.Commentf("%s", subcommand))
		c.Check(stderr.String(), check.Matches, `(?s)usage error: missing required -.*`)
	}
	code := handler.RunCommand("geotable", []string{"no-such-subcommand"}, nil, &bytes.Buffer{}, &bytes.Buffer{})
	c.Check(code, check.Equals, 2)
}
