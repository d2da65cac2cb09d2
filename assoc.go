// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package geotable

import (
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"math"
	"net/http"
	_ "net/http/pprof"
	"path/filepath"
	"strconv"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"github.com/kshedden/statmodel/glm"
	"github.com/kshedden/statmodel/statmodel"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// assoc tests each gene's expression for association with a binary
// phenotype, using logistic regression.
type assoc struct {
	gemFile   string
	phenoFile string
	column    string
	caseValue string
	outfile   string
}

func (cmd *assoc) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
	}
	return exitCode(err)
}

func (cmd *assoc) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	runlocal := flags.Bool("local", true, "run on local host (if false, run in an arvados container)")
	projectUUID := flags.String("project", "", "project `UUID` for output data")
	priority := flags.Int("priority", 500, "container request priority")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	flags.StringVar(&cmd.gemFile, "i", "", "gene (or probe) expression matrix `file`")
	flags.StringVar(&cmd.phenoFile, "pheno", "", "phenotype table `file` (output of parse-pheno)")
	flags.StringVar(&cmd.column, "column", "", "phenotype `column` to test, e.g., disease_state")
	flags.StringVar(&cmd.caseValue, "case", "", "phenotype `value` for cases; samples with any other non-empty value are controls")
	flags.StringVar(&cmd.outfile, "o", "-", "output `file`")
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return usageErrorf("%s", err)
	} else if flags.NArg() > 0 {
		return usageErrorf("errant command line arguments after parsed flags: %v", flags.Args())
	} else if cmd.gemFile == "" {
		return usageErrorf("missing required -i argument")
	} else if cmd.phenoFile == "" {
		return usageErrorf("missing required -pheno argument")
	} else if cmd.column == "" {
		return usageErrorf("missing required -column argument")
	} else if cmd.caseValue == "" {
		return usageErrorf("missing required -case argument")
	}
	lvl, err := log.ParseLevel(*loglevel)
	if err != nil {
		return usageErrorf("%s", err)
	}
	log.SetLevel(lvl)

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	if !*runlocal {
		if cmd.outfile == "-" {
			cmd.outfile = "assoc.tsv"
		}
		outname := filepath.Base(cmd.outfile)
		runner := arvadosContainerRunner{
			Name:        "geotable assoc",
			Client:      arvados.NewClientFromEnv(),
			ProjectUUID: *projectUUID,
			RAM:         8000000000,
			VCPUs:       2,
			Priority:    *priority,
		}
		err = runner.TranslatePaths(&cmd.gemFile, &cmd.phenoFile)
		if err != nil {
			return err
		}
		runner.Args = []string{"assoc", "-local=true",
			"-loglevel=" + *loglevel,
			"-i", cmd.gemFile,
			"-pheno", cmd.phenoFile,
			"-column", cmd.column,
			"-case", cmd.caseValue,
			"-o", "/mnt/output/" + outname,
		}
		output, err := runner.Run()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, output+"/"+outname)
		return nil
	}

	err = checkInputs(cmd.gemFile, cmd.phenoFile)
	if err != nil {
		return err
	}
	gem, err := readMatrixFile(cmd.gemFile, stdin)
	if err != nil {
		return err
	}
	isCase, err := cmd.readOutcomes(stdin)
	if err != nil {
		return err
	}
	results, err := associate(gem, isCase)
	if err != nil {
		return err
	}

	out, err := createOutput(cmd.outfile, stdout)
	if err != nil {
		return err
	}
	defer out.Close()
	recs := make([][]string, len(results))
	for i, r := range results {
		recs[i] = []string{r.Name, strconv.Itoa(r.Samples), strconv.Itoa(r.Cases), formatValue(r.PValue)}
	}
	err = writeTable(out, []string{gem.IndexLabel, "Samples", "Cases", "PValue"}, recs)
	if err != nil {
		return err
	}
	return out.Commit()
}

// readOutcomes returns a map of accession to true (case) or false
// (control). Samples with an empty value are omitted.
func (cmd *assoc) readOutcomes(stdin io.Reader) (map[string]bool, error) {
	f, err := openInput(cmd.phenoFile, stdin)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInputRead, err)
	}
	defer f.Close()
	header, rows, err := readTable(f, cmd.phenoFile)
	if err != nil {
		return nil, err
	}
	col := -1
	for i, h := range header {
		if h == cmd.column && i > 0 {
			col = i
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("%s: %w: %q", cmd.phenoFile, ErrMissingColumn, cmd.column)
	}
	isCase := map[string]bool{}
	for _, row := range rows {
		if col >= len(row) || row[col] == "" {
			continue
		}
		isCase[row[0]] = row[col] == cmd.caseValue
	}
	return isCase, nil
}

type assocResult struct {
	Name    string
	Samples int
	Cases   int
	// NaN if the model could not be fit.
	PValue float64
}

// associate returns one result per row of gem, in row order, using
// the samples that have an outcome and a non-missing value.
func associate(gem *matrix, isCase map[string]bool) ([]assocResult, error) {
	var cols []int
	cases := 0
	for j, col := range gem.Cols {
		if c, ok := isCase[col]; ok {
			cols = append(cols, j)
			if c {
				cases++
			}
		}
	}
	if cases == 0 || cases == len(cols) {
		return nil, fmt.Errorf("need both cases and controls among the %d samples with a phenotype value, found %d cases", len(cols), cases)
	}
	log.Infof("testing %d rows: %d cases, %d controls", len(gem.Rows), cases, len(cols)-cases)

	results := make([]assocResult, len(gem.Rows))
	outcome := make([]float64, 0, len(cols))
	x := make([]float64, 0, len(cols))
	for i, name := range gem.Rows {
		outcome, x = outcome[:0], x[:0]
		r := assocResult{Name: name}
		for _, j := range cols {
			v := gem.At(i, j)
			if math.IsNaN(v) {
				continue
			}
			x = append(x, v)
			if isCase[gem.Cols[j]] {
				outcome = append(outcome, 1)
				r.Cases++
			} else {
				outcome = append(outcome, 0)
			}
		}
		r.Samples = len(x)
		r.PValue = glmPvalue(outcome, x)
		results[i] = r
	}
	return results, nil
}

var glmConfig = &glm.Config{
	Family:         glm.NewFamily(glm.BinomialFamily),
	FitMethod:      "IRLS",
	ConcurrentIRLS: 1000,
	Log:            stdlog.New(io.Discard, "", 0),
}

// glmPvalue returns the likelihood ratio test p-value for adding x to
// a constant-only logistic model of outcome (0 or 1). It returns NaN
// when the test is undefined, e.g., x is constant or the outcomes
// are all the same.
func glmPvalue(outcome, x []float64) (p float64) {
	defer func() {
		if recover() != nil {
			// typically "matrix singular or near-singular"
			p = math.NaN()
		}
	}()
	if len(x) < 3 {
		return math.NaN()
	}
	mean, std := stat.MeanStdDev(x, nil)
	if std == 0 || math.IsNaN(std) {
		return math.NaN()
	}
	sum := 0.0
	for _, o := range outcome {
		sum += o
	}
	if sum == 0 || sum == float64(len(outcome)) {
		return math.NaN()
	}
	expression := make([]statmodel.Dtype, len(x))
	constants := make([]statmodel.Dtype, len(x))
	for i, v := range x {
		expression[i] = (v - mean) / std
		constants[i] = 1
	}

	logNull, err := logLike([][]statmodel.Dtype{outcome, constants}, []string{"outcome", "constants"})
	if err != nil {
		return math.NaN()
	}
	logFull, err := logLike([][]statmodel.Dtype{outcome, constants, expression}, []string{"outcome", "constants", "expression"})
	if err != nil {
		return math.NaN()
	}
	dist := distuv.ChiSquared{K: 1}
	return dist.Survival(-2 * (logNull - logFull))
}

// logLike fits a model of data[0] on the remaining columns and
// returns its log likelihood.
func logLike(data [][]statmodel.Dtype, names []string) (float64, error) {
	model, err := glm.NewGLM(statmodel.NewDataset(data, names), names[0], names[1:], glmConfig)
	if err != nil {
		return 0, err
	}
	return model.Fit().LogLike(), nil
}
