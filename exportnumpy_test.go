// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package geotable

import (
	"bytes"
	"math"
	"os"
	"strings"

	"github.com/kshedden/gonpy"
	"gopkg.in/check.v1"
)

type exportNumpySuite struct{}

var _ = check.Suite(&exportNumpySuite{})

func (s *exportNumpySuite) TestMatrixToNumpy(c *check.C) {
	tmpdir := c.MkDir()
	writeFiles(c, tmpdir, map[string]string{
		"gem.tsv": "Gene_Symbol\tGSM1\tGSM2\tGSM3\nA\t1\t2\t3\nB\t4\t\t6\n",
	})
	var stderr bytes.Buffer
	exited := (&exportNumpy{}).RunCommand("export-numpy", []string{"-local=true", "-i", tmpdir + "/gem.tsv", "-o", tmpdir + "/gem.npy"}, nil, &bytes.Buffer{}, &stderr)
	c.Assert(exited, check.Equals, 0, check.Commentf("%s", stderr.String()))

	f, err := os.Open(tmpdir + "/gem.npy")
	c.Assert(err, check.IsNil)
	defer f.Close()
	npy, err := gonpy.NewReader(f)
	c.Assert(err, check.IsNil)
	c.Check(npy.Shape, check.DeepEquals, []int{2, 3})
	values, err := npy.GetFloat64()
	c.Assert(err, check.IsNil)
	c.Assert(values, check.HasLen, 6)
	c.Check(values[:4], check.DeepEquals, []float64{1, 2, 3, 4})
	c.Check(math.IsNaN(values[4]), check.Equals, true)
	c.Check(values[5], check.Equals, 6.0)

	rows, err := os.ReadFile(tmpdir + "/gem.npy.rows.csv")
	c.Check(err, check.IsNil)
	c.Check(string(rows), check.Equals, "0,\"A\"\n1,\"B\"\n")
	cols, err := os.ReadFile(tmpdir + "/gem.npy.cols.csv")
	c.Check(err, check.IsNil)
	c.Check(string(cols), check.Equals, "0,\"GSM1\"\n1,\"GSM2\"\n2,\"GSM3\"\n")
}

func (s *exportNumpySuite) TestStdinStdout(c *check.C) {
	var stdout, stderr bytes.Buffer
	exited := (&exportNumpy{}).RunCommand("export-numpy", []string{}, strings.NewReader("Probe_ID\tS1\nP1\t0.25\n"), &stdout, &stderr)
	c.Assert(exited, check.Equals, 0, check.Commentf("%s", stderr.String()))
	npy, err := gonpy.NewReader(&stdout)
	c.Assert(err, check.IsNil)
	values, err := npy.GetFloat64()
	c.Assert(err, check.IsNil)
	c.Check(values, check.DeepEquals, []float64{0.25})
}

func (s *exportNumpySuite) TestBadInput(c *check.C) {
	var stderr bytes.Buffer
	exited := (&exportNumpy{}).RunCommand("export-numpy", []string{"-o", c.MkDir() + "/x.npy"}, strings.NewReader("Probe_ID\tS1\nP1\tabc\n"), &bytes.Buffer{}, &stderr)
	c.Check(exited, check.Equals, 1)
	c.Check(stderr.String(), check.Matches, `.*cannot read input.*\n`)
}
