// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package derive serves program synthesis over HTTP.
//
// Service ties the pieces together: a seeded op library, the search driver
// and the program store. The gin handlers in this package are thin
// adapters over Service.
//
// # Thread Safety
//
// Service is safe for concurrent use. Searches are serialized because the
// Library is not safe for concurrent use; replays of stored programs run in
// parallel.
package derive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/AleutianAI/derive/services/derive/library"
	"github.com/AleutianAI/derive/services/derive/op"
	"github.com/AleutianAI/derive/services/derive/search"
	"github.com/AleutianAI/derive/services/derive/store"
)

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// MaxGenerations is the default and the ceiling for per-request budgets.
	MaxGenerations int

	// Search holds extra search options, e.g. graph limits.
	Search []search.Option

	// Logger receives request-level events. Default: slog.Default().
	Logger *slog.Logger
}

// ServiceOption is a functional option for NewService.
type ServiceOption func(*ServiceOptions)

// WithMaxGenerations sets the default and maximum generation budget.
func WithMaxGenerations(n int) ServiceOption {
	return func(o *ServiceOptions) {
		o.MaxGenerations = n
	}
}

// WithSearchOptions appends search options applied to every search.
func WithSearchOptions(opts ...search.Option) ServiceOption {
	return func(o *ServiceOptions) {
		o.Search = append(o.Search, opts...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *ServiceOptions) {
		o.Logger = logger
	}
}

// Service derives, stores and replays programs.
type Service struct {
	mu      sync.Mutex // guards lib during searches
	lib     *library.Library
	store   *store.Store
	options ServiceOptions
	logger  *slog.Logger
}

// NewService creates a Service.
//
// Inputs:
//
//	lib - The seeded op library. The Service takes ownership.
//	st - The program store. Must resolve ops against lib.
//	opts - Optional configuration.
func NewService(lib *library.Library, st *store.Store, opts ...ServiceOption) *Service {
	options := ServiceOptions{MaxGenerations: search.DefaultMaxGenerations}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Service{
		lib:     lib,
		store:   st,
		options: options,
		logger:  options.Logger.With(slog.String("component", "service")),
	}
}

// MaxGenerations returns the generation ceiling.
func (s *Service) MaxGenerations() int { return s.options.MaxGenerations }

// Derive searches for a program and stores it.
//
// Inputs:
//
//	ctx - Used for tracing and store access.
//	input, output - The example pair.
//	budget - Generation budget. Zero means the default; larger than the
//	         default is clamped to it.
//
// Outputs:
//
//	store.Record - The stored program.
//	error - A *search.SearchFailure, a shape.ErrUnsupportedValue error for
//	        unrepresentable examples, or a store error.
func (s *Service) Derive(ctx context.Context, input, output any, budget int) (store.Record, error) {
	if budget <= 0 || budget > s.options.MaxGenerations {
		budget = s.options.MaxGenerations
	}
	opts := append([]search.Option{
		search.WithLogger(s.options.Logger),
	}, s.options.Search...)
	opts = append(opts, search.WithMaxGenerations(budget))

	s.mu.Lock()
	res, err := search.NewSearcher(s.lib, opts...).Derive(ctx, input, output)
	s.mu.Unlock()
	if err != nil {
		return store.Record{}, err
	}

	return s.store.Save(ctx, res.Program, store.Meta{
		Generations: res.Generations,
		Values:      res.Values,
		Arrows:      res.Arrows,
		Duration:    res.Duration,
	})
}

// Program loads a stored program.
func (s *Service) Program(ctx context.Context, id uuid.UUID) (store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Load(ctx, id)
}

// Programs lists stored programs, newest first.
func (s *Service) Programs(ctx context.Context) ([]store.Record, error) {
	return s.store.List(ctx)
}

// DeleteProgram removes a stored program.
func (s *Service) DeleteProgram(ctx context.Context, id uuid.UUID) error {
	return s.store.Delete(ctx, id)
}

// Run replays a stored program on input.
//
// Outputs:
//
//	any - The program's output.
//	error - store.ErrProgramNotFound, or a program.ErrReplayFailed /
//	        program.ErrReplayIncomplete error.
func (s *Service) Run(ctx context.Context, id uuid.UUID, input any) (any, error) {
	rec, err := s.Program(ctx, id)
	if err != nil {
		return nil, err
	}
	out, err := rec.Program.Run(input)
	if err != nil {
		s.logger.Warn("replay failed",
			slog.String("id", id.String()),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("run %s: %w", id, err)
	}
	return out, nil
}

// OpInfo describes one library op.
type OpInfo struct {
	Name      string `json:"name"`
	Signature string `json:"signature"`
	Depth     int    `json:"depth"`
}

// Ops lists the library, base ops first.
func (s *Service) Ops() []OpInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	ops := s.lib.Ops()
	out := make([]OpInfo, len(ops))
	for i, o := range ops {
		out[i] = describe(o)
	}
	return out
}

func describe(o *op.Op) OpInfo {
	return OpInfo{Name: o.Name, Signature: o.Signature.String(), Depth: o.Depth}
}
