// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package geotable

import (
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	_ "net/http/pprof"
	"path/filepath"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"github.com/james-bowman/nlp"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

type goPCA struct{}

func (cmd *goPCA) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
	}
	return exitCode(err)
}

func (cmd *goPCA) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	runlocal := flags.Bool("local", true, "run on local host (if false, run in an arvados container)")
	projectUUID := flags.String("project", "", "project `UUID` for output data")
	priority := flags.Int("priority", 500, "container request priority")
	inputFilename := flags.String("i", "-", "input matrix `file` (rows are features, columns are samples)")
	outputFilename := flags.String("o", "-", "output .npy `file` (rows are samples, columns are components)")
	components := flags.Int("components", 4, "number of components")
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return usageErrorf("%s", err)
	} else if flags.NArg() > 0 {
		return usageErrorf("errant command line arguments after parsed flags: %v", flags.Args())
	} else if *components < 1 {
		return usageErrorf("-components must be at least 1")
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	if !*runlocal {
		if *outputFilename == "-" {
			*outputFilename = "pca.npy"
		}
		outname := filepath.Base(*outputFilename)
		runner := arvadosContainerRunner{
			Name:        "geotable pca-go",
			Client:      arvados.NewClientFromEnv(),
			ProjectUUID: *projectUUID,
			RAM:         16000000000,
			VCPUs:       4,
			Priority:    *priority,
		}
		err = runner.TranslatePaths(inputFilename)
		if err != nil {
			return err
		}
		runner.Args = []string{"pca-go", "-local=true", fmt.Sprintf("-components=%d", *components), "-i", *inputFilename, "-o", "/mnt/output/" + outname}
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
	pcs, err := principalComponents(m, *components)
	if err != nil {
		return err
	}

	rows, cols := pcs.Dims()
	log.Printf("copying result to numpy output array: %d rows, %d cols", rows, cols)
	out := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out = append(out, pcs.At(i, j))
		}
	}
	output, err := createOutput(*outputFilename, stdout)
	if err != nil {
		return err
	}
	defer output.Close()
	log.Printf("writing numpy: %d rows, %d cols", rows, cols)
	err = writeNumpyFloat64(output, out, rows, cols)
	if err != nil {
		return err
	}
	err = output.Commit()
	if err != nil {
		return err
	}
	if *outputFilename != "-" {
		return writeLabels(*outputFilename+".rows.csv", m.Cols)
	}
	return nil
}

// principalComponents projects m's columns (samples) onto the first
// n principal components, using only rows with no missing values. The
// result has one row per sample.
func principalComponents(m *matrix, n int) (mat.Matrix, error) {
	var complete []int
	for i := range m.Rows {
		ok := true
		for j := range m.Cols {
			if math.IsNaN(m.At(i, j)) {
				ok = false
				break
			}
		}
		if ok {
			complete = append(complete, i)
		}
	}
	log.Printf("%d of %d rows have no missing values", len(complete), len(m.Rows))
	if len(complete) < n || len(m.Cols) < n {
		return nil, fmt.Errorf("%w: cannot compute %d components from %d complete rows x %d samples", ErrInputRead, n, len(complete), len(m.Cols))
	}

	// Center each feature so the projections are centered too.
	features := mat.NewDense(len(complete), len(m.Cols), nil)
	row := make([]float64, len(m.Cols))
	for fi, i := range complete {
		for j := range m.Cols {
			row[j] = m.At(i, j)
		}
		mean := stat.Mean(row, nil)
		for j, v := range row {
			features.Set(fi, j, v-mean)
		}
	}

	log.Print("fitting")
	transformer := nlp.NewPCA(n)
	transformer.Fit(features)
	log.Print("transforming")
	pcs, err := transformer.Transform(features)
	if err != nil {
		return nil, err
	}
	return pcs.T(), nil
}
