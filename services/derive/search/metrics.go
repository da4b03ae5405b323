// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("derive.search")

var (
	// searchTotal counts finished searches by outcome.
	// Labels: "found", "exhausted", "dead_end", "round_trip", "error"
	searchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "derive_search_total",
		Help: "Total searches by outcome",
	}, []string{"outcome"})

	searchGenerations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "derive_search_generations",
		Help:    "Generations run per search",
		Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 8, 10, 15, 20},
	})

	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "derive_search_duration_seconds",
		Help:    "Search duration",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 10, 60},
	})

	programLength = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "derive_program_steps",
		Help:    "Steps per extracted program",
		Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 8, 10},
	})
)

// outcome maps a search result to its metric label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "found"
	case errors.Is(err, ErrSearchDeadEnd):
		return "dead_end"
	case errors.Is(err, ErrSearchExhausted):
		return "exhausted"
	case errors.Is(err, ErrRoundTrip):
		return "round_trip"
	default:
		return "error"
	}
}
