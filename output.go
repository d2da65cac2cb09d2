// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package geotable

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
)

// outputFile writes to a temporary file next to the destination and
// renames it into place on Commit, so a failed run never leaves a
// partial output file behind. Output is gzip-compressed if the
// destination name ends in ".gz". The path "-" writes to stdout.
type outputFile struct {
	io.Writer
	bufw      *bufio.Writer
	gzw       *pgzip.Writer
	file      *os.File
	path      string
	tmp       string
	committed bool
}

func createOutput(path string, stdout io.Writer) (*outputFile, error) {
	out := &outputFile{path: path}
	var w io.Writer = stdout
	if path != "-" {
		dir, base := filepath.Split(path)
		if dir == "" {
			dir = "."
		}
		f, err := os.CreateTemp(dir, "."+base+"~")
		if err != nil {
			return nil, err
		}
		out.file, out.tmp = f, f.Name()
		w = f
	}
	out.bufw = bufio.NewWriterSize(w, 1<<20)
	out.Writer = out.bufw
	if strings.HasSuffix(path, ".gz") {
		out.gzw = pgzip.NewWriter(out.bufw)
		out.Writer = out.gzw
	}
	return out, nil
}

// Commit flushes buffered data and moves the output file into place.
func (out *outputFile) Commit() error {
	if out.gzw != nil {
		if err := out.gzw.Close(); err != nil {
			return err
		}
	}
	if err := out.bufw.Flush(); err != nil {
		return err
	}
	if out.file == nil {
		out.committed = true
		return nil
	}
	if err := out.file.Chmod(0644); err != nil {
		return err
	}
	if err := out.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(out.tmp, out.path); err != nil {
		return err
	}
	out.committed = true
	return nil
}

// Close discards the output unless Commit has succeeded. It is safe
// to call Close after Commit.
func (out *outputFile) Close() error {
	if out.file == nil || out.committed {
		return nil
	}
	out.file.Close()
	return os.Remove(out.tmp)
}
