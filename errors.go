// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package geotable

import (
	"errors"
	"fmt"
)

var (
	ErrUsage              = errors.New("usage error")
	ErrInputRead          = errors.New("cannot read input")
	ErrEmptyInput         = errors.New("no input files")
	ErrMissingColumn      = errors.New("no such column")
	ErrUnknownAggregation = errors.New("unknown aggregation function")
	ErrMalformedTree      = errors.New("malformed sample metadata")
)

func usageErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// exitCode returns the process exit code for an error returned by a
// subcommand: 2 for problems with the command line, 1 for everything
// else.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUsage), errors.Is(err, ErrUnknownAggregation):
		return 2
	default:
		return 1
	}
}
