// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package geotable

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"path/filepath"
	"runtime"
	"strings"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	log "github.com/sirupsen/logrus"
)

type mergeTbls struct {
	wildcard string
	outfile  string
	threads  int
}

func (cmd *mergeTbls) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
	}
	return exitCode(err)
}

func (cmd *mergeTbls) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	runlocal := flags.Bool("local", true, "run on local host (if false, run in an arvados container)")
	projectUUID := flags.String("project", "", "project `UUID` for output data")
	priority := flags.Int("priority", 500, "container request priority")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	for _, name := range []string{"wildcard", "w"} {
		flags.StringVar(&cmd.wildcard, name, "", "per-sample table `glob`, e.g., 'GSE124647/GSM*.txt' (quote it)")
	}
	for _, name := range []string{"outfile", "o"} {
		flags.StringVar(&cmd.outfile, name, "", "output probe expression matrix `file`")
	}
	flags.IntVar(&cmd.threads, "threads", runtime.GOMAXPROCS(0), "number of sample files to parse concurrently")
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return usageErrorf("%s", err)
	} else if flags.NArg() > 0 {
		return usageErrorf("errant command line arguments after parsed flags: %v", flags.Args())
	} else if cmd.wildcard == "" {
		return usageErrorf("missing required -wildcard argument")
	} else if cmd.outfile == "" {
		return usageErrorf("missing required -outfile argument")
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
			Name:        "geotable merge-tbls",
			Client:      arvados.NewClientFromEnv(),
			ProjectUUID: *projectUUID,
			RAM:         8000000000,
			VCPUs:       4,
			Priority:    *priority,
		}
		err = runner.TranslatePaths(&cmd.wildcard)
		if err != nil {
			return err
		}
		outname := filepath.Base(cmd.outfile)
		runner.Args = []string{"merge-tbls", "-local=true",
			"-loglevel=" + *loglevel,
			"-threads=4",
			"-wildcard=" + cmd.wildcard,
			"-outfile=/mnt/output/" + outname,
		}
		output, err := runner.Run()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, output+"/"+outname)
		return nil
	}

	infiles, err := filepath.Glob(expandHome(cmd.wildcard))
	if err != nil {
		return usageErrorf("-wildcard %q: %s", cmd.wildcard, err)
	} else if len(infiles) == 0 {
		return fmt.Errorf("%w: nothing matches %q", ErrEmptyInput, cmd.wildcard)
	}
	log.Infof("reading %d sample tables", len(infiles))
	readings := make([]sampleReading, len(infiles))
	thr := throttle{Max: cmd.threads}
	for i, infile := range infiles {
		i, infile := i, infile
		thr.Go(func() error {
			var err error
			readings[i], err = readSampleFile(infile)
			return err
		})
	}
	err = thr.Wait()
	if err != nil {
		return err
	}

	pem := mergeReadings(readings)
	log.Infof("writing %d probes x %d samples to %s", len(pem.Rows), len(pem.Cols), cmd.outfile)
	out, err := createOutput(cmd.outfile, stdout)
	if err != nil {
		return err
	}
	defer out.Close()
	err = writeMatrix(out, pem)
	if err != nil {
		return err
	}
	return out.Commit()
}

// sampleReading holds one sample's values, in file order.
type sampleReading struct {
	SampleID string
	Probes   []string
	Values   []float64
}

// sampleID returns the part of the file's base name before the
// first SampleIDSeparator.
func sampleID(path string) string {
	base := filepath.Base(path)
	if i := strings.Index(base, SampleIDSeparator); i >= 0 {
		return base[:i]
	}
	return base
}

func readSampleFile(path string) (sampleReading, error) {
	log.Debugf("%s: reading", path)
	f, err := zopen(path)
	if err != nil {
		return sampleReading{}, fmt.Errorf("%w: %s", ErrInputRead, err)
	}
	defer f.Close()
	reading, err := readSampleTable(f, path)
	if err != nil {
		return reading, err
	}
	reading.SampleID = sampleID(path)
	log.Debugf("%s: %d probes", path, len(reading.Probes))
	return reading, nil
}

// readSampleTable reads a header-less table whose first column is a
// probe ID and second column is a value. Other columns are ignored.
func readSampleTable(r io.Reader, name string) (sampleReading, error) {
	var reading sampleReading
	seen := map[string]bool{}
	rdr := newTSVReader(r, '\t')
	for line := 1; ; line++ {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return reading, fmt.Errorf("%s: %w: %s", name, ErrInputRead, err)
		}
		if len(rec) < 2 {
			return reading, fmt.Errorf("%s: %w: line %d: expected 2 columns, found %d", name, ErrInputRead, line, len(rec))
		}
		probe := rec[0]
		if seen[probe] {
			return reading, fmt.Errorf("%s: %w: line %d: duplicate probe %q", name, ErrInputRead, line, probe)
		}
		seen[probe] = true
		v, ok := parseValue(rec[1])
		if !ok {
			return reading, fmt.Errorf("%s: %w: line %d: non-numeric value %q", name, ErrInputRead, line, rec[1])
		}
		reading.Probes = append(reading.Probes, probe)
		reading.Values = append(reading.Values, v)
	}
	return reading, nil
}

// mergeReadings outer-joins the given readings on probe ID. Columns
// and rows appear in the order they are first seen. If two readings
// have the same sample ID, the later one replaces the earlier one.
func mergeReadings(readings []sampleReading) *matrix {
	var cols []string
	colIdx := map[string]int{}
	latest := map[string]int{}
	for i, reading := range readings {
		if _, ok := colIdx[reading.SampleID]; !ok {
			colIdx[reading.SampleID] = len(cols)
			cols = append(cols, reading.SampleID)
		} else {
			log.Warnf("sample %s appears more than once, using the last file", reading.SampleID)
		}
		latest[reading.SampleID] = i
	}

	var rows []string
	rowIdx := map[string]int{}
	for i, reading := range readings {
		if latest[reading.SampleID] != i {
			continue
		}
		for _, probe := range reading.Probes {
			if _, ok := rowIdx[probe]; !ok {
				rowIdx[probe] = len(rows)
				rows = append(rows, probe)
			}
		}
	}

	pem := newMatrix(ProbeIDLabel, rows, cols)
	for i, reading := range readings {
		if latest[reading.SampleID] != i {
			continue
		}
		col := colIdx[reading.SampleID]
		for j, probe := range reading.Probes {
			pem.Set(rowIdx[probe], col, reading.Values[j])
		}
	}
	return pem
}
