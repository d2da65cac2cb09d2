// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package geotable

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"gopkg.in/check.v1"
)

type assocSuite struct{}

var _ = check.Suite(&assocSuite{})

func (s *assocSuite) TestAssoc(c *check.C) {
	tmpdir := c.MkDir()
	writeFiles(c, tmpdir, map[string]string{
		"gem.tsv": "Gene_Symbol\tS1\tS2\tS3\tS4\tS5\tS6\tS7\tS8\tS9\tS10\tS11\n" +
			"UP\t5\t6\t7\t4\t8\t1\t2\t3\t5\t2\t9\n" +
			"FLAT\t1\t2\t3\t4\t5\t5\t4\t3\t2\t1\t9\n" +
			"SAME\t1\t1\t1\t1\t1\t1\t1\t1\t1\t1\t9\n",
		"pheno.tsv": "Accession\tTitle\tdisease\n" +
			"S1\tt\ttumor\nS2\tt\ttumor\nS3\tt\ttumor\nS4\tt\ttumor\nS5\tt\ttumor\n" +
			"S6\tt\tnormal\nS7\tt\tnormal\nS8\tt\tnormal\nS9\tt\tnormal\nS10\tt\tnormal\n" +
			"S11\tt\t\n",
	})
	var stdout, stderr bytes.Buffer
	code := (&assoc{}).RunCommand("geotable assoc", []string{"-i", tmpdir + "/gem.tsv", "-pheno", tmpdir + "/pheno.tsv", "-column", "disease", "-case", "tumor"}, nil, &stdout, &stderr)
	c.Assert(code, check.Equals, 0, check.Commentf("%s", stderr.String()))

	header, rows, err := readTable(&stdout, "stdout")
	c.Assert(err, check.IsNil)
	c.Check(header, check.DeepEquals, []string{"Gene_Symbol", "Samples", "Cases", "PValue"})
	c.Assert(rows, check.HasLen, 3)
	pvalue := map[string]float64{}
	for _, row := range rows {
		c.Check(row[1], check.Equals, "10")
		c.Check(row[2], check.Equals, "5")
		if row[3] == "" {
			pvalue[row[0]] = math.NaN()
			continue
		}
		p, err := strconv.ParseFloat(row[3], 64)
		c.Assert(err, check.IsNil)
		pvalue[row[0]] = p
	}
	c.Check(pvalue["UP"] < 0.1, check.Equals, true, check.Commentf("%v", pvalue))
	c.Check(pvalue["FLAT"] > 0.5, check.Equals, true, check.Commentf("%v", pvalue))
	c.Check(pvalue["FLAT"] <= 1, check.Equals, true, check.Commentf("%v", pvalue))
	c.Check(math.IsNaN(pvalue["SAME"]), check.Equals, true, check.Commentf("%v", pvalue))
}

func (s *assocSuite) TestMissingColumn(c *check.C) {
	tmpdir := c.MkDir()
	writeFiles(c, tmpdir, map[string]string{
		"gem.tsv":   "Gene_Symbol\tS1\tS2\nG\t1\t2\n",
		"pheno.tsv": "Accession\tTitle\nS1\tt\nS2\tt\n",
	})
	var stderr bytes.Buffer
	code := (&assoc{}).RunCommand("geotable assoc", []string{"-i", tmpdir + "/gem.tsv", "-pheno", tmpdir + "/pheno.tsv", "-column", "disease", "-case", "tumor"}, nil, &bytes.Buffer{}, &stderr)
	c.Check(code, check.Equals, 1)
	c.Check(stderr.String(), check.Matches, `.*no such column: "disease"\n`)
}

func (s *assocSuite) TestNoControls(c *check.C) {
	gem, err := readMatrix(strings.NewReader("Gene_Symbol\tS1\tS2\nG\t1\t2\n"), "test")
	c.Assert(err, check.IsNil)
	_, err = associate(gem, map[string]bool{"S1": true, "S2": true, "S3": false})
	c.Check(err, check.ErrorMatches, `need both cases and controls .*`)
}

func (s *assocSuite) TestGLMPvalueUndefined(c *check.C) {
	c.Check(math.IsNaN(glmPvalue([]float64{0, 1}, []float64{1, 2})), check.Equals, true)
	c.Check(math.IsNaN(glmPvalue([]float64{1, 1, 1}, []float64{1, 2, 3})), check.Equals, true)
	c.Check(math.IsNaN(glmPvalue([]float64{0, 1, 0}, []float64{2, 2, 2})), check.Equals, true)
}

func (s *assocSuite) TestUsage(c *check.C) {
	for _, args := range [][]string{
		{},
		{"-i", "gem.tsv"},
		{"-i", "gem.tsv", "-pheno", "pheno.tsv"},
		{"-i", "gem.tsv", "-pheno", "pheno.tsv", "-column", "disease"},
	} {
		code := (&assoc{}).RunCommand("geotable assoc", args, nil, &bytes.Buffer{}, &bytes.Buffer{})
		c.Check(code, check.Equals, 2, check.Commentf("%q", args))
	}
}
