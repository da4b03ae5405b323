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
	"log/slog"

	"github.com/AleutianAI/derive/services/derive/digraph"
	"github.com/AleutianAI/derive/services/derive/program"
)

// DefaultMaxGenerations is the default generation budget.
const DefaultMaxGenerations = 8

// Reporter receives progress while a search runs.
//
// Implementations are called synchronously from the search goroutine and
// must not retain the graph beyond the call.
type Reporter interface {
	// Arrow is called for every arrow a generation creates.
	Arrow(g *digraph.Digraph, a *digraph.Arrow, novel bool)

	// Generation is called after each generation.
	Generation(g *digraph.Digraph, stats digraph.GenerationStats)

	// Found is called once with the verified program.
	Found(p *program.Program, generation int)

	// Failed is called once when the search stops without a program.
	Failed(err error)
}

// NopReporter discards all progress.
type NopReporter struct{}

func (NopReporter) Arrow(*digraph.Digraph, *digraph.Arrow, bool) {}
func (NopReporter) Generation(*digraph.Digraph, digraph.GenerationStats) {}
func (NopReporter) Found(*program.Program, int) {}
func (NopReporter) Failed(error) {}

// Options configures a search.
type Options struct {
	// MaxGenerations is the generation budget.
	// Default: 8
	MaxGenerations int

	// MaxValues and MaxArrows bound the graph, see digraph.GraphOptions.
	// Zero keeps the digraph defaults.
	MaxValues int
	MaxArrows int

	// Reporter receives progress. Default: NopReporter.
	Reporter Reporter

	// Logger receives lifecycle events. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns sensible defaults for a search.
func DefaultOptions() Options {
	return Options{
		MaxGenerations: DefaultMaxGenerations,
		Reporter:       NopReporter{},
	}
}

// Option is a functional option for configuring a search.
type Option func(*Options)

// WithMaxGenerations sets the generation budget.
func WithMaxGenerations(n int) Option {
	return func(o *Options) {
		o.MaxGenerations = n
	}
}

// WithMaxValues bounds the number of values in the search graph.
func WithMaxValues(n int) Option {
	return func(o *Options) {
		o.MaxValues = n
	}
}

// WithMaxArrows bounds the number of arrows in the search graph.
func WithMaxArrows(n int) Option {
	return func(o *Options) {
		o.MaxArrows = n
	}
}

// WithReporter sets the progress reporter.
func WithReporter(r Reporter) Option {
	return func(o *Options) {
		o.Reporter = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

func buildOptions(opts []Option) Options {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Reporter == nil {
		options.Reporter = NopReporter{}
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return options
}

func (o Options) graphOptions() []digraph.GraphOption {
	opts := []digraph.GraphOption{digraph.WithLogger(o.Logger)}
	if o.MaxValues > 0 {
		opts = append(opts, digraph.WithMaxValues(o.MaxValues))
	}
	if o.MaxArrows > 0 {
		opts = append(opts, digraph.WithMaxArrows(o.MaxArrows))
	}
	return opts
}
