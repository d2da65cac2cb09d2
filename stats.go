// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package geotable

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	_ "net/http/pprof"
	"path/filepath"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"github.com/montanaflynn/stats"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

type statscmd struct {
	listIncomplete bool
}

func (cmd *statscmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
	}
	return exitCode(err)
}

func (cmd *statscmd) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	runlocal := flags.Bool("local", true, "run on local host (if false, run in an arvados container)")
	projectUUID := flags.String("project", "", "project `UUID` for output data")
	priority := flags.Int("priority", 500, "container request priority")
	inputFilename := flags.String("i", "-", "input matrix `file`")
	outputFilename := flags.String("o", "-", "output JSON `file`")
	flags.BoolVar(&cmd.listIncomplete, "list-incomplete", false, "output full list of rows with missing values")
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return usageErrorf("%s", err)
	} else if flags.NArg() > 0 {
		return usageErrorf("errant command line arguments after parsed flags: %v", flags.Args())
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	if !*runlocal {
		if *outputFilename == "-" {
			*outputFilename = "stats.json"
		}
		outname := filepath.Base(*outputFilename)
		runner := arvadosContainerRunner{
			Name:        "geotable stats",
			Client:      arvados.NewClientFromEnv(),
			ProjectUUID: *projectUUID,
			RAM:         8000000000,
			VCPUs:       1,
			Priority:    *priority,
		}
		err = runner.TranslatePaths(inputFilename)
		if err != nil {
			return err
		}
		runner.Args = []string{"stats", "-local=true", fmt.Sprintf("-list-incomplete=%v", cmd.listIncomplete), "-i", *inputFilename, "-o", "/mnt/output/" + outname}
		output, err := runner.Run()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, output+"/"+outname)
		return nil
	}

	err = checkInputs(*inputFilename)
	if err != nil {
		return err
	}
	m, err := readMatrixFile(*inputFilename, stdin)
	if err != nil {
		return err
	}
	output, err := createOutput(*outputFilename, stdout)
	if err != nil {
		return err
	}
	defer output.Close()
	err = json.NewEncoder(output).Encode(cmd.summarize(m))
	if err != nil {
		return err
	}
	return output.Commit()
}

type columnSummary struct {
	Name    string
	Missing int
	// Nil if every value in the column is missing.
	Min    *float64 `json:",omitempty"`
	Max    *float64 `json:",omitempty"`
	Median *float64 `json:",omitempty"`
}

type matrixSummary struct {
	IndexLabel      string
	Rows            int
	Columns         int
	MissingCells    int
	IncompleteRows  int // rows with at least one missing value
	ColumnSummaries []columnSummary
	Incomplete      []string `json:",omitempty"`
}

func (cmd *statscmd) summarize(m *matrix) matrixSummary {
	ret := matrixSummary{
		IndexLabel:      m.IndexLabel,
		Rows:            len(m.Rows),
		Columns:         len(m.Cols),
		ColumnSummaries: make([]columnSummary, len(m.Cols)),
	}
	incomplete := make([]bool, len(m.Rows))
	values := make([]float64, 0, len(m.Rows))
	for j, col := range m.Cols {
		cs := columnSummary{Name: col}
		values = values[:0]
		for i := range m.Rows {
			if v := m.At(i, j); math.IsNaN(v) {
				cs.Missing++
				incomplete[i] = true
			} else {
				values = append(values, v)
			}
		}
		if len(values) > 0 {
			min, max := floats.Min(values), floats.Max(values)
			cs.Min, cs.Max = &min, &max
			if median, err := stats.Median(values); err == nil {
				cs.Median = &median
			}
		}
		ret.MissingCells += cs.Missing
		ret.ColumnSummaries[j] = cs
	}
	for i, inc := range incomplete {
		if !inc {
			continue
		}
		ret.IncompleteRows++
		if cmd.listIncomplete {
			ret.Incomplete = append(ret.Incomplete, m.Rows[i])
		}
	}
	return ret
}
