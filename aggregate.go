// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package geotable

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// An aggregator reduces the values of one sample across all probes
// of one gene. Values are given in probe order; missing values are
// NaN. If no value is present the result is NaN.
type aggregator func(values []float64) float64

var aggregators = map[string]aggregator{
	"min":   presentOnly(floats.Min),
	"max":   presentOnly(floats.Max),
	"first": presentOnly(func(x []float64) float64 { return x[0] }),
	"last":  presentOnly(func(x []float64) float64 { return x[len(x)-1] }),
	"mean":  presentOnly(func(x []float64) float64 { return stat.Mean(x, nil) }),
	"median": presentOnly(func(x []float64) float64 {
		// Median sorts a copy, and averages the middle two
		// values when len(x) is even.
		m, err := stats.Median(x)
		if err != nil {
			return math.NaN()
		}
		return m
	}),
}

// presentOnly returns an aggregator that applies fn to the
// non-missing values.
func presentOnly(fn func([]float64) float64) aggregator {
	return func(values []float64) float64 {
		present := make([]float64, 0, len(values))
		for _, v := range values {
			if !math.IsNaN(v) {
				present = append(present, v)
			}
		}
		if len(present) == 0 {
			return math.NaN()
		}
		return fn(present)
	}
}

func lookupAggregator(name string) (aggregator, error) {
	agg, ok := aggregators[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (choose from %s)", ErrUnknownAggregation, name, strings.Join(AggregationNames, ", "))
	}
	return agg, nil
}

// aggregateProbes returns a gene x sample matrix. Each row of pem
// whose probe ID has a symbol in symbols contributes to that gene's
// row; other rows are ignored. Genes are sorted by symbol.
func aggregateProbes(pem *matrix, symbols map[string]string, agg aggregator) *matrix {
	groups := map[string][]int{}
	for i, probe := range pem.Rows {
		if sym, ok := symbols[probe]; ok {
			groups[sym] = append(groups[sym], i)
		}
	}
	genes := make([]string, 0, len(groups))
	for sym := range groups {
		genes = append(genes, sym)
	}
	sort.Strings(genes)

	gem := newMatrix(GeneSymbolLabel, genes, pem.Cols)
	values := make([]float64, 0, 16)
	for i, gene := range genes {
		for j := range pem.Cols {
			values = values[:0]
			for _, row := range groups[gene] {
				values = append(values, pem.At(row, j))
			}
			gem.Set(i, j, agg(values))
		}
	}
	return gem
}
