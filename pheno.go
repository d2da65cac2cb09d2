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
	"strings"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	log "github.com/sirupsen/logrus"
)

type parsePheno struct {
	xmlFile string
	outfile string
}

func (cmd *parsePheno) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
	}
	return exitCode(err)
}

func (cmd *parsePheno) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	runlocal := flags.Bool("local", true, "run on local host (if false, run in an arvados container)")
	projectUUID := flags.String("project", "", "project `UUID` for output data")
	priority := flags.Int("priority", 500, "container request priority")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	for _, name := range []string{"family-xml-file", "f"} {
		flags.StringVar(&cmd.xmlFile, name, "", "MINiML family `file`, e.g., GSE124647_family.xml")
	}
	for _, name := range []string{"outfile", "o"} {
		flags.StringVar(&cmd.outfile, name, "", "output phenotype table `file`")
	}
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return usageErrorf("%s", err)
	} else if flags.NArg() > 0 {
		return usageErrorf("errant command line arguments after parsed flags: %v", flags.Args())
	} else if cmd.xmlFile == "" {
		return usageErrorf("missing required -family-xml-file argument")
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
			Name:        "geotable parse-pheno",
			Client:      arvados.NewClientFromEnv(),
			ProjectUUID: *projectUUID,
			RAM:         2000000000,
			VCPUs:       1,
			Priority:    *priority,
		}
		err = runner.TranslatePaths(&cmd.xmlFile)
		if err != nil {
			return err
		}
		outname := filepath.Base(cmd.outfile)
		runner.Args = []string{"parse-pheno", "-local=true",
			"-loglevel=" + *loglevel,
			"-family-xml-file=" + cmd.xmlFile,
			"-outfile=/mnt/output/" + outname,
		}
		output, err := runner.Run()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, output+"/"+outname)
		return nil
	}

	err = checkInputs(cmd.xmlFile)
	if err != nil {
		return err
	}
	f, err := openInput(cmd.xmlFile, stdin)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInputRead, err)
	}
	defer f.Close()

	log.Infof("reading samples from %s", cmd.xmlFile)
	var tbl phenoTable
	err = readMiniML(f, cmd.xmlFile, func(sample *minimlSample) error {
		row, err := samplePhenotype(sample)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd.xmlFile, err)
		}
		tbl.add(row)
		return nil
	})
	if err != nil {
		return err
	}
	if len(tbl.rows) == 0 {
		return fmt.Errorf("%s: %w: no Sample elements", cmd.xmlFile, ErrMalformedTree)
	}

	cols := tbl.columns()
	log.Infof("writing %d samples x %d attributes to %s", len(tbl.rows), len(cols), cmd.outfile)
	out, err := createOutput(cmd.outfile, stdout)
	if err != nil {
		return err
	}
	defer out.Close()
	err = writeTable(out, append([]string{AccessionLabel}, cols...), tbl.records(cols))
	if err != nil {
		return err
	}
	return out.Commit()
}

// phenoRow is one sample's phenotype. Keys are in the order they
// were first set.
type phenoRow struct {
	Accession string
	Keys      []string
	Values    map[string]string
}

func (row *phenoRow) set(key, value string) {
	if row.Values == nil {
		row.Values = map[string]string{}
	}
	if _, ok := row.Values[key]; !ok {
		row.Keys = append(row.Keys, key)
	}
	row.Values[key] = value
}

// samplePhenotype flattens a sample's characteristics into a single
// row. Later channels overwrite same-named keys from earlier ones,
// and the Title key is set last.
func samplePhenotype(sample *minimlSample) (phenoRow, error) {
	var row phenoRow
	if sample.Accession == nil || strings.TrimSpace(sample.Accession.Text) == "" {
		return row, fmt.Errorf("%w: sample %q has no Accession", ErrMalformedTree, sample.IID)
	}
	row.Accession = strings.TrimSpace(sample.Accession.Text)
	if sample.Title == nil {
		return row, fmt.Errorf("%w: sample %s has no Title", ErrMalformedTree, row.Accession)
	}
	if len(sample.Channels) == 0 {
		return row, fmt.Errorf("%w: sample %s has no Channel", ErrMalformedTree, row.Accession)
	}
	for _, ch := range sample.Channels {
		for _, attr := range channelCharacteristics(ch).attributes(1) {
			row.set(attr.Key, attr.Value)
		}
	}
	row.set(TitleLabel, strings.TrimSpace(*sample.Title))
	return row, nil
}

// phenoTable collects sample rows. Columns are Title followed by
// the other keys of the final rows, in the order they are first seen.
type phenoTable struct {
	rows   []phenoRow
	rowIdx map[string]int
}

// add appends row to the table, or replaces the existing row with
// the same accession.
func (tbl *phenoTable) add(row phenoRow) {
	if tbl.rowIdx == nil {
		tbl.rowIdx = map[string]int{}
	}
	if i, ok := tbl.rowIdx[row.Accession]; ok {
		log.Warnf("sample %s appears more than once, using the last one", row.Accession)
		tbl.rows[i] = row
		return
	}
	tbl.rowIdx[row.Accession] = len(tbl.rows)
	tbl.rows = append(tbl.rows, row)
}

func (tbl *phenoTable) columns() []string {
	cols := []string{TitleLabel}
	seen := map[string]bool{TitleLabel: true}
	for _, row := range tbl.rows {
		for _, key := range row.Keys {
			if !seen[key] {
				seen[key] = true
				cols = append(cols, key)
			}
		}
	}
	return cols
}

// records returns one record per row: accession, then a value for
// each of cols, empty where the sample has no such key.
func (tbl *phenoTable) records(cols []string) [][]string {
	recs := make([][]string, len(tbl.rows))
	for i, row := range tbl.rows {
		rec := make([]string, len(cols)+1)
		rec[0] = row.Accession
		for j, col := range cols {
			rec[j+1] = row.Values[col]
		}
		recs[i] = rec
	}
	return recs
}
