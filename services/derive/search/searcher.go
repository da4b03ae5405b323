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
	"context"
	"fmt"
	"time"

	"github.com/AleutianAI/derive/services/derive/digraph"
	"github.com/AleutianAI/derive/services/derive/program"
)

// Result describes a successful search.
type Result struct {
	Program     *program.Program
	Generations int
	Values      int
	Arrows      int
	Duration    time.Duration
}

// Searcher runs searches over one op source with fixed options.
type Searcher struct {
	source  digraph.OpSource
	options []Option
}

// NewSearcher creates a Searcher.
func NewSearcher(source digraph.OpSource, opts ...Option) *Searcher {
	return &Searcher{source: source, options: opts}
}

// Derive searches for a program turning input into output.
//
// Outputs:
//
//	*Result - The program and search statistics.
//	error - A *SearchFailure wrapping ErrSearchExhausted or ErrSearchDeadEnd,
//	        an ErrRoundTrip error, or a setup error.
func (s *Searcher) Derive(ctx context.Context, input, output any) (*Result, error) {
	start := time.Now()

	session, err := NewSession(input, output, s.source, s.options...)
	if err != nil {
		searchTotal.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}
	p, err := session.Run(ctx)

	duration := time.Since(start)
	searchTotal.WithLabelValues(outcome(err)).Inc()
	searchGenerations.Observe(float64(session.Generation()))
	searchDuration.Observe(duration.Seconds())
	if err != nil {
		return nil, err
	}
	programLength.Observe(float64(p.Len()))

	g := session.Graph()
	return &Result{
		Program:     p,
		Generations: g.Generation(),
		Values:      g.ValueCount(),
		Arrows:      g.ArrowCount(),
		Duration:    duration,
	}, nil
}

// DeriveChain derives a program through a sequence of waypoints.
//
// Description:
//
//	Searches from each waypoint to the next and composes the pieces. A
//	waypoint guides the search through an intermediate value that a single
//	search from the first to the last value would not find in budget.
//
// Outputs:
//
//	*program.Program - Runs from the first waypoint to the last.
//	error - ErrTooFewWaypoints, or the failure of the first failing leg.
func (s *Searcher) DeriveChain(ctx context.Context, waypoints ...any) (*program.Program, error) {
	if len(waypoints) < 2 {
		return nil, ErrTooFewWaypoints
	}

	var chain *program.Program
	for i := 0; i+1 < len(waypoints); i++ {
		res, err := s.Derive(ctx, waypoints[i], waypoints[i+1])
		if err != nil {
			return nil, fmt.Errorf("leg %d: %w", i+1, err)
		}
		if chain == nil {
			chain = res.Program
			continue
		}
		chain, err = program.Compose(chain, res.Program)
		if err != nil {
			return nil, fmt.Errorf("leg %d: %w", i+1, err)
		}
	}
	return chain, nil
}

// DeriveProgram searches source for a program turning input into output
// within budget generations.
//
// Example:
//
//	lib, _ := library.New(catalog.Default(), catalog.Combinators())
//	lib.Seed(12)
//	p, err := search.DeriveProgram(ctx, text, 6000.0, lib, 8)
func DeriveProgram(ctx context.Context, input, output any, source digraph.OpSource, budget int, opts ...Option) (*program.Program, error) {
	opts = append(opts, WithMaxGenerations(budget))
	res, err := NewSearcher(source, opts...).Derive(ctx, input, output)
	if err != nil {
		return nil, err
	}
	return res.Program, nil
}

// DeriveChain derives a program through waypoints with a per-leg budget.
func DeriveChain(ctx context.Context, source digraph.OpSource, budget int, waypoints ...any) (*program.Program, error) {
	return NewSearcher(source, WithMaxGenerations(budget)).DeriveChain(ctx, waypoints...)
}
