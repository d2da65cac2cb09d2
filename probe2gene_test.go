// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package geotable

import (
	"bytes"
	"os"
	"strings"

	"gopkg.in/check.v1"
)

type probe2geneSuite struct{}

var _ = check.Suite(&probe2geneSuite{})

func (s *probe2geneSuite) runProbe2gene(c *check.C, args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := (&probe2gene{}).RunCommand("geotable probe2gene", args, nil, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (s *probe2geneSuite) TestMean(c *check.C) {
	tmpdir := c.MkDir()
	writeFiles(c, tmpdir, map[string]string{
		"pem.tsv": "Probe_ID\tGSM1\tGSM2\nP1\t10\t20\nP2\t30\t40\n",
		"gpl.txt": "P1\tGENE_A\nP2\tGENE_A\n",
	})
	code, _, stderr := s.runProbe2gene(c, "-probe-expression-matrix-file", tmpdir+"/pem.tsv", "-geo-platform-file", tmpdir+"/gpl.txt", "-col", "2", "-aggregation-function", "mean", "-outfile", tmpdir+"/gem.tsv")
	c.Assert(code, check.Equals, 0, check.Commentf("%s", stderr))
	out, err := os.ReadFile(tmpdir + "/gem.tsv")
	c.Assert(err, check.IsNil)
	c.Check(string(out), check.Equals, "Gene_Symbol\tGSM1\tGSM2\nGENE_A\t20\t30\n")

	// Same inputs, same bytes.
	code, _, stderr = s.runProbe2gene(c, "-p", tmpdir+"/pem.tsv", "-g", tmpdir+"/gpl.txt", "-c", "2", "-a", "mean", "-o", tmpdir+"/gem2.tsv")
	c.Assert(code, check.Equals, 0, check.Commentf("%s", stderr))
	out2, err := os.ReadFile(tmpdir + "/gem2.tsv")
	c.Assert(err, check.IsNil)
	c.Check(string(out2), check.Equals, string(out))
}

func (s *probe2geneSuite) TestAggregations(c *check.C) {
	tmpdir := c.MkDir()
	writeFiles(c, tmpdir, map[string]string{
		"pem.tsv": "Probe_ID\tS1\tS2\n" +
			"p4\t4\t\n" +
			"p1\t1\t7\n" +
			"p9\t9\tNA\n" +
			"p2\t2\t8\n" +
			"px\t100\t100\n" +
			"p5\t5\t5\n",
		// Symbols are in the third column. px has no symbol,
		// and p7 is not in the matrix.
		"gpl.txt": "p1\tx\tGENE_B\n" +
			"p2\tx\tGENE_B\n" +
			"p4\tx\tGENE_B\n" +
			"p9\tx\tGENE_B\n" +
			"px\tx\tNA\n" +
			"p5\tx\tGENE_A\n" +
			"p7\tx\tGENE_C\n",
	})
	for agg, expect := range map[string]string{
		"min":    "GENE_A\t5\t5\nGENE_B\t1\t7\n",
		"max":    "GENE_A\t5\t5\nGENE_B\t9\t8\n",
		"first":  "GENE_A\t5\t5\nGENE_B\t4\t7\n",
		"last":   "GENE_A\t5\t5\nGENE_B\t2\t8\n",
		"mean":   "GENE_A\t5\t5\nGENE_B\t4\t7.5\n",
		"median": "GENE_A\t5\t5\nGENE_B\t3\t7.5\n",
	} {
		code, stdout, stderr := s.runProbe2gene(c, "-p", tmpdir+"/pem.tsv", "-g", tmpdir+"/gpl.txt", "-c", "3", "-a", agg, "-o", "-")
		c.Check(code, check.Equals, 0, check.Commentf("%s", stderr))
		c.Check(stdout, check.Equals, "Gene_Symbol\tS1\tS2\n"+expect, check.Commentf("-a %s", agg))
	}
}

func (s *probe2geneSuite) TestDefaultMedian(c *check.C) {
	tmpdir := c.MkDir()
	writeFiles(c, tmpdir, map[string]string{
		"pem.tsv": "Probe_ID\tS1\nA\t1\nB\t2\nC\t10\n",
		"gpl.txt": "A\tG\nB\tG\nC\tG\n",
	})
	code, stdout, stderr := s.runProbe2gene(c, "-p", tmpdir+"/pem.tsv", "-g", tmpdir+"/gpl.txt", "-c", "2", "-o", "-")
	c.Assert(code, check.Equals, 0, check.Commentf("%s", stderr))
	c.Check(stdout, check.Equals, "Gene_Symbol\tS1\nG\t2\n")
}

func (s *probe2geneSuite) TestEmptyIntersection(c *check.C) {
	tmpdir := c.MkDir()
	writeFiles(c, tmpdir, map[string]string{
		"pem.tsv": "Probe_ID\tS1\tS2\nP1\t1\t2\n",
		"gpl.txt": "Q1\tGENE_A\n",
	})
	code, _, stderr := s.runProbe2gene(c, "-p", tmpdir+"/pem.tsv", "-g", tmpdir+"/gpl.txt", "-c", "2", "-o", tmpdir+"/gem.tsv")
	c.Assert(code, check.Equals, 0, check.Commentf("%s", stderr))
	out, err := os.ReadFile(tmpdir + "/gem.tsv")
	c.Assert(err, check.IsNil)
	c.Check(string(out), check.Equals, "Gene_Symbol\tS1\tS2\n")
}

func (s *probe2geneSuite) TestCommaDelimitedPlatform(c *check.C) {
	tmpdir := c.MkDir()
	writeFiles(c, tmpdir, map[string]string{
		"pem.tsv":  "Probe_ID\tS1\nP1\t1\nP2\t3\n",
		"gpl.csv":  "P1,\"GENE, A\"\nP2,\"GENE, A\"\n",
		"gpl2.csv": "P1,GENEA,1\nP2,GENEA,2\nP3,GENEB,3\n",
	})
	code, stdout, stderr := s.runProbe2gene(c, "-p", tmpdir+"/pem.tsv", "-g", tmpdir+"/gpl.csv", "-c", "2", "-a", "max", "-delimiter", "comma", "-o", "-")
	c.Check(code, check.Equals, 0, check.Commentf("%s", stderr))
	c.Check(stdout, check.Equals, "Gene_Symbol\tS1\nGENE, A\t3\n")

	code, stdout, stderr = s.runProbe2gene(c, "-p", tmpdir+"/pem.tsv", "-g", tmpdir+"/gpl2.csv", "-c", "2", "-a", "min", "-delimiter", "auto", "-o", "-")
	c.Check(code, check.Equals, 0, check.Commentf("%s", stderr))
	c.Check(stdout, check.Equals, "Gene_Symbol\tS1\nGENEA\t1\n")
}

func (s *probe2geneSuite) TestMissingColumn(c *check.C) {
	tmpdir := c.MkDir()
	writeFiles(c, tmpdir, map[string]string{
		"pem.tsv": "Probe_ID\tS1\nP1\t1\n",
		"gpl.txt": "P1\tGENE_A\n",
	})
	for _, col := range []string{"0", "1", "3", "-2"} {
		code, _, stderr := s.runProbe2gene(c, "-p", tmpdir+"/pem.tsv", "-g", tmpdir+"/gpl.txt", "-c", col, "-o", tmpdir+"/gem.tsv")
		c.Check(code, check.Equals, 1, check.Commentf("-col %s", col))
		c.Check(stderr, check.Matches, `.*no such column.*\n`)
		_, err := os.Stat(tmpdir + "/gem.tsv")
		c.Check(os.IsNotExist(err), check.Equals, true)
	}
}

func (s *probe2geneSuite) TestUsage(c *check.C) {
	tmpdir := c.MkDir()
	writeFiles(c, tmpdir, map[string]string{
		"pem.tsv": "Probe_ID\tS1\nP1\t1\n",
		"gpl.txt": "P1\tGENE_A\n",
	})
	pem, gpl, gem := tmpdir+"/pem.tsv", tmpdir+"/gpl.txt", tmpdir+"/gem.tsv"
	for _, args := range [][]string{
		{"-g", gpl, "-c", "2", "-o", gem},
		{"-p", pem, "-c", "2", "-o", gem},
		{"-p", pem, "-g", gpl, "-o", gem},
		{"-p", pem, "-g", gpl, "-c", "2"},
		{"-p", pem, "-g", gpl, "-c", "2", "-o", gem, "-a", "mode"},
		{"-p", pem, "-g", gpl, "-c", "2", "-o", gem, "-delimiter", "semicolon"},
		{"-p", tmpdir + "/nonexistent.tsv", "-g", gpl, "-c", "2", "-o", gem},
		{"-p", pem, "-g", tmpdir + "/nonexistent.txt", "-c", "2", "-o", gem},
	} {
		code, _, stderr := s.runProbe2gene(c, args...)
		c.Check(code, check.Equals, 2, check.Commentf("%q: %s", args, stderr))
	}
	code, _, stderr := s.runProbe2gene(c, "-p", pem, "-g", gpl, "-c", "2", "-o", gem, "-a", "mode")
	c.Check(code, check.Equals, 2)
	c.Check(stderr, check.Matches, `unknown aggregation function "mode".*\n`)
	_, err := os.Stat(gem)
	c.Check(os.IsNotExist(err), check.Equals, true)
}

func (s *probe2geneSuite) TestReadPlatformTable(c *check.C) {
	symbols, err := readPlatformTable(strings.NewReader(
		"P1\tGENE_A\textra\n"+
			"P2\n"+
			"P3\t  NA \n"+
			"P4\t GENE_B \n"+
			"P4\tGENE_C\n"+
			"P5\t\n"), "test", '\t', 2)
	c.Assert(err, check.IsNil)
	c.Check(symbols, check.DeepEquals, map[string]string{
		"P1": "GENE_A",
		"P4": "GENE_B",
	})

	_, err = readPlatformTable(strings.NewReader("P1\tGENE_A\textra\n"), "test", '\t', 4)
	c.Check(err, check.ErrorMatches, `test: no such column: -col=4, but gene symbol must be in column 2\.\.3`)
}
