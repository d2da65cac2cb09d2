// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package geotable

const (
	// SampleIDSeparator ends the sample ID in a per-sample table's
	// file name, e.g., "GSM1234-tbl-1.txt" is sample "GSM1234".
	SampleIDSeparator = "-"

	ProbeIDLabel    = "Probe_ID"
	GeneSymbolLabel = "Gene_Symbol"
	AccessionLabel  = "Accession"
	TitleLabel      = "Title"

	DefaultAggregation = "median"
)

// AggregationNames lists the accepted -aggregation-function values,
// in the order they are shown in usage messages.
var AggregationNames = []string{"min", "max", "first", "last", "mean", "median"}

// Values read as missing data in numeric columns and gene symbol
// columns.
var naTokens = map[string]bool{
	"":         true,
	"#N/A":     true,
	"#N/A N/A": true,
	"#NA":      true,
	"-1.#IND":  true,
	"-1.#QNAN": true,
	"-NaN":     true,
	"-nan":     true,
	"1.#IND":   true,
	"1.#QNAN":  true,
	"<NA>":     true,
	"N/A":      true,
	"NA":       true,
	"NULL":     true,
	"NaN":      true,
	"None":     true,
	"n/a":      true,
	"nan":      true,
	"null":     true,
}

func isNA(s string) bool {
	return naTokens[s]
}
