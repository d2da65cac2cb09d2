// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package geotable

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"path/filepath"
	"strings"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"github.com/csimplestring/go-csv/detector"
	log "github.com/sirupsen/logrus"
)

type probe2gene struct {
	pemFile      string
	platformFile string
	outfile      string
	col          int
	aggName      string
	delimiter    string
}

func (cmd *probe2gene) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
	}
	return exitCode(err)
}

func (cmd *probe2gene) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	runlocal := flags.Bool("local", true, "run on local host (if false, run in an arvados container)")
	projectUUID := flags.String("project", "", "project `UUID` for output data")
	priority := flags.Int("priority", 500, "container request priority")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	for _, name := range []string{"probe-expression-matrix-file", "p"} {
		flags.StringVar(&cmd.pemFile, name, "", "probe expression matrix `file` (output of merge-tbls)")
	}
	for _, name := range []string{"geo-platform-file", "g"} {
		flags.StringVar(&cmd.platformFile, name, "", "GEO platform annotation `file`")
	}
	for _, name := range []string{"col", "c"} {
		flags.IntVar(&cmd.col, name, 0, "1-based `column` of the platform file holding the gene symbol (column 1 is the probe ID)")
	}
	for _, name := range []string{"aggregation-function", "a"} {
		flags.StringVar(&cmd.aggName, name, DefaultAggregation, "how to combine probes of the same gene: "+strings.Join(AggregationNames, ", "))
	}
	for _, name := range []string{"outfile", "o"} {
		flags.StringVar(&cmd.outfile, name, "", "output gene expression matrix `file`")
	}
	flags.StringVar(&cmd.delimiter, "delimiter", "tab", "platform file field delimiter: tab, comma, or auto")
	err := flags.Parse(args)
	colSet := false
	flags.Visit(func(f *flag.Flag) {
		if f.Name == "col" || f.Name == "c" {
			colSet = true
		}
	})
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return usageErrorf("%s", err)
	} else if flags.NArg() > 0 {
		return usageErrorf("errant command line arguments after parsed flags: %v", flags.Args())
	} else if cmd.pemFile == "" {
		return usageErrorf("missing required -probe-expression-matrix-file argument")
	} else if cmd.platformFile == "" {
		return usageErrorf("missing required -geo-platform-file argument")
	} else if !colSet {
		return usageErrorf("missing required -col argument")
	} else if cmd.outfile == "" {
		return usageErrorf("missing required -outfile argument")
	}
	agg, err := lookupAggregator(cmd.aggName)
	if err != nil {
		return err
	}
	switch cmd.delimiter {
	case "tab", "comma", "auto":
	default:
		return usageErrorf("invalid -delimiter %q", cmd.delimiter)
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
		runner := arvadosContainerRunner{
			Name:        "geotable probe2gene",
			Client:      arvados.NewClientFromEnv(),
			ProjectUUID: *projectUUID,
			RAM:         8000000000,
			VCPUs:       1,
			Priority:    *priority,
		}
		err = runner.TranslatePaths(&cmd.pemFile, &cmd.platformFile)
		if err != nil {
			return err
		}
		outname := filepath.Base(cmd.outfile)
		runner.Args = []string{"probe2gene", "-local=true",
			"-loglevel=" + *loglevel,
			"-probe-expression-matrix-file=" + cmd.pemFile,
			"-geo-platform-file=" + cmd.platformFile,
			fmt.Sprintf("-col=%d", cmd.col),
			"-aggregation-function=" + cmd.aggName,
			"-delimiter=" + cmd.delimiter,
			"-outfile=/mnt/output/" + outname,
		}
		output, err := runner.Run()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, output+"/"+outname)
		return nil
	}

	err = checkInputs(cmd.pemFile, cmd.platformFile)
	if err != nil {
		return err
	}

	log.Infof("reading probe expression matrix %s", cmd.pemFile)
	pem, err := cmd.readProbeMatrix(stdin)
	if err != nil {
		return err
	}
	log.Infof("reading platform annotation %s", cmd.platformFile)
	symbols, err := cmd.readPlatform(stdin)
	if err != nil {
		return err
	}

	log.Infof("aggregating %d probes (%d annotated) with %s", len(pem.Rows), len(symbols), cmd.aggName)
	gem := aggregateProbes(pem, symbols, agg)
	log.Infof("writing %d genes x %d samples to %s", len(gem.Rows), len(gem.Cols), cmd.outfile)
	out, err := createOutput(cmd.outfile, stdout)
	if err != nil {
		return err
	}
	defer out.Close()
	err = writeMatrix(out, gem)
	if err != nil {
		return err
	}
	return out.Commit()
}

func (cmd *probe2gene) readProbeMatrix(stdin io.Reader) (*matrix, error) {
	f, err := openInput(cmd.pemFile, stdin)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInputRead, err)
	}
	defer f.Close()
	return readMatrix(f, cmd.pemFile)
}

func (cmd *probe2gene) readPlatform(stdin io.Reader) (map[string]string, error) {
	f, err := openInput(cmd.platformFile, stdin)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInputRead, err)
	}
	defer f.Close()
	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", cmd.platformFile, ErrInputRead, err)
	}
	delim := '\t'
	switch cmd.delimiter {
	case "comma":
		delim = ','
	case "auto":
		delim = detectDelimiter(buf)
		log.Debugf("%s: detected delimiter %q", cmd.platformFile, delim)
	}
	return readPlatformTable(bytes.NewReader(buf), cmd.platformFile, delim, cmd.col)
}

// detectDelimiter guesses the field delimiter from the first part of
// a delimited text file.
func detectDelimiter(buf []byte) rune {
	if len(buf) > 1<<16 {
		buf = buf[:1<<16]
	}
	found := detector.New().DetectDelimiter(bytes.NewReader(buf), '"')
	if len(found) > 0 && len(found[0]) > 0 {
		return rune(found[0][0])
	}
	return '\t'
}

// readPlatformTable reads a header-less platform annotation table and
// returns a map of probe ID to gene symbol, using the given 1-based
// column, where column 1 is the probe ID itself. Probes with a
// missing symbol are omitted.
func readPlatformTable(r io.Reader, name string, delim rune, col int) (map[string]string, error) {
	type row struct{ probe, symbol string }
	var rows []row
	width := 0
	rdr := newTSVReader(r, delim)
	for {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("%s: %w: %s", name, ErrInputRead, err)
		}
		if len(rec) > width {
			width = len(rec)
		}
		r := row{probe: rec[0]}
		if col >= 2 && col <= len(rec) {
			r.symbol = strings.TrimSpace(rec[col-1])
		}
		rows = append(rows, r)
	}
	if col < 2 || col > width {
		return nil, fmt.Errorf("%s: %w: -col=%d, but gene symbol must be in column 2..%d", name, ErrMissingColumn, col, width)
	}

	symbols := make(map[string]string, len(rows))
	for _, r := range rows {
		if isNA(r.symbol) {
			continue
		}
		if prev, ok := symbols[r.probe]; ok {
			log.Warnf("%s: probe %q appears more than once, using first symbol %q", name, r.probe, prev)
			continue
		}
		symbols[r.probe] = r.symbol
	}
	return symbols, nil
}
