// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package search drives a Digraph toward a target value.
//
// A Session owns one Digraph and advances it one generation per Step until
// the target appears (Found) or the search stops (Exhausted). Searcher wraps
// the loop, and DeriveProgram is the one-call entry point.
//
// # Termination
//
// Every generation does finite work over a bounded, deduplicated value set,
// and the loop is capped by the generation budget, so a search always ends
// in Found or Exhausted. Exhausted does not prove the target unreachable.
//
// # Thread Safety
//
// Sessions and Searchers are NOT safe for concurrent use, and neither is the
// Library they draw from.
package search

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/derive/services/derive/digraph"
	"github.com/AleutianAI/derive/services/derive/program"
	"github.com/AleutianAI/derive/services/derive/shape"
)

// State is the lifecycle state of a Session.
type State int

const (
	// StateSearching means further generations may run.
	StateSearching State = iota

	// StateFound means the target was reached and a program extracted.
	StateFound

	// StateExhausted means the search stopped without a program.
	StateExhausted
)

var stateNames = map[State]string{
	StateSearching: "searching",
	StateFound:     "found",
	StateExhausted: "exhausted",
}

// String returns the string representation of the State.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Session is one search from an input toward an output.
//
// Lifecycle:
//
//  1. Create with NewSession (Found immediately if input equals output)
//  2. Call Step until State() is no longer StateSearching
//  3. Read Program() or Err()
type Session struct {
	source  digraph.OpSource
	graph   *digraph.Digraph
	target  any
	options Options
	logger  *slog.Logger

	state   State
	found   *digraph.Value
	program *program.Program
	err     error
}

// NewSession starts a search.
//
// Inputs:
//
//	input - The example input. Becomes the root of the graph.
//	output - The example output to reach.
//	source - The Ops to search over, typically a *library.Library.
//	opts - Optional configuration.
//
// Outputs:
//
//	*Session - The session, already Found when input equals output.
//	error - Wraps shape.ErrUnsupportedValue for unrepresentable examples.
func NewSession(input, output any, source digraph.OpSource, opts ...Option) (*Session, error) {
	options := buildOptions(opts)

	target, err := shape.Normalize(output)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	g, err := digraph.New(input, options.graphOptions()...)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}

	s := &Session{
		source:  source,
		graph:   g,
		target:  target,
		options: options,
		logger:  options.Logger.With(slog.String("component", "search")),
		state:   StateSearching,
	}

	if shape.Equal(g.Root().Data, target) {
		s.found = g.Root()
		if err := s.finish(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Graph returns the search graph.
func (s *Session) Graph() *digraph.Digraph { return s.graph }

// Generation returns the number of generations run.
func (s *Session) Generation() int { return s.graph.Generation() }

// Program returns the extracted program once Found, otherwise nil.
func (s *Session) Program() *program.Program { return s.program }

// Err returns why the session is Exhausted, otherwise nil.
func (s *Session) Err() error { return s.err }

// Step runs one generation.
//
// Description:
//
//	Expands the graph with a callback that stops the generation at the
//	first arrow whose output equals the target. On a match the program is
//	extracted and replayed on the example input before the session moves
//	to Found. A generation that adds nothing ends the session as a dead
//	end; reaching the budget ends it as exhausted. Step on a finished
//	session does nothing.
//
// Inputs:
//
//	ctx - Used for tracing only.
//
// Outputs:
//
//	digraph.GenerationStats - What the generation did.
//	error - nil while searching or once Found. A *SearchFailure when the
//	        session becomes Exhausted, or the extraction / round-trip error.
func (s *Session) Step(ctx context.Context) (digraph.GenerationStats, error) {
	if s.state != StateSearching {
		return digraph.GenerationStats{}, s.err
	}
	if s.graph.Generation() >= s.options.MaxGenerations {
		return digraph.GenerationStats{}, s.fail(ErrSearchExhausted)
	}

	stats, err := s.graph.Expand(ctx, s.source, s.observe)
	s.options.Reporter.Generation(s.graph, stats)
	if err != nil {
		return stats, s.fail(err)
	}

	switch {
	case s.found != nil:
		return stats, s.finish()
	case !stats.Progressed():
		return stats, s.fail(ErrSearchDeadEnd)
	case s.graph.Generation() >= s.options.MaxGenerations:
		return stats, s.fail(ErrSearchExhausted)
	}
	return stats, nil
}

func (s *Session) observe(out *digraph.Value, a *digraph.Arrow, novel bool) bool {
	s.options.Reporter.Arrow(s.graph, a, novel)
	if shape.Equal(out.Data, s.target) {
		s.found = out
		return true
	}
	return false
}

// finish extracts and verifies the program for s.found.
func (s *Session) finish() error {
	p, err := program.Extract(s.graph, s.found.ID)
	if err != nil {
		s.state = StateExhausted
		s.err = fmt.Errorf("extract: %w", err)
		s.options.Reporter.Failed(s.err)
		return s.err
	}

	got, err := p.Run(s.graph.Root().Data)
	if err != nil || !shape.Equal(got, s.target) {
		s.state = StateExhausted
		if err != nil {
			s.err = fmt.Errorf("%w: %s: %v", ErrRoundTrip, p.Expression(), err)
		} else {
			s.err = fmt.Errorf("%w: %s gives %s", ErrRoundTrip, p.Expression(), shape.Format(got))
		}
		s.options.Reporter.Failed(s.err)
		return s.err
	}

	s.state = StateFound
	s.program = p
	s.logger.Info("program found",
		slog.String("program", p.Expression()),
		slog.Int("generation", s.graph.Generation()),
		slog.Int("values", s.graph.ValueCount()),
		slog.Int("arrows", s.graph.ArrowCount()))
	s.options.Reporter.Found(p, s.graph.Generation())
	return nil
}

func (s *Session) fail(reason error) error {
	s.state = StateExhausted
	s.err = &SearchFailure{
		Reason:      reason,
		Generations: s.graph.Generation(),
		Values:      s.graph.ValueCount(),
		Arrows:      s.graph.ArrowCount(),
	}
	s.logger.Info("search stopped",
		slog.String("reason", reason.Error()),
		slog.Int("generation", s.graph.Generation()))
	s.options.Reporter.Failed(s.err)
	return s.err
}

// Run steps the session until it leaves StateSearching.
//
// Outputs:
//
//	*program.Program - The program when Found.
//	error - Err() when Exhausted.
func (s *Session) Run(ctx context.Context) (*program.Program, error) {
	ctx, span := tracer.Start(ctx, "Session.Run",
		trace.WithAttributes(attribute.Int("search.max_generations", s.options.MaxGenerations)),
	)
	defer span.End()

	for s.state == StateSearching {
		if _, err := s.Step(ctx); err != nil {
			break
		}
	}

	span.SetAttributes(
		attribute.String("search.state", s.state.String()),
		attribute.Int("search.generations", s.graph.Generation()),
		attribute.Int("search.values", s.graph.ValueCount()),
	)
	if s.err != nil {
		span.RecordError(s.err)
		span.SetStatus(codes.Error, s.err.Error())
		return nil, s.err
	}
	return s.program, nil
}
