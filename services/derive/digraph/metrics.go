// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package digraph

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for digraph operations.
var (
	tracer = otel.Tracer("derive.digraph")
	meter  = otel.Meter("derive.digraph")
)

// Metrics for generation expansion.
var (
	expandLatency  metric.Float64Histogram
	expandTotal    metric.Int64Counter
	valuesCreated  metric.Int64Histogram
	arrowsCreated  metric.Int64Histogram
	rejectedTuples metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		expandLatency, err = meter.Float64Histogram(
			"digraph_expand_duration_seconds",
			metric.WithDescription("Duration of one generation expansion"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		expandTotal, err = meter.Int64Counter(
			"digraph_expand_total",
			metric.WithDescription("Total number of generations expanded"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		valuesCreated, err = meter.Int64Histogram(
			"digraph_values_created",
			metric.WithDescription("Number of values created per generation"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		arrowsCreated, err = meter.Int64Histogram(
			"digraph_arrows_created",
			metric.WithDescription("Number of arrows created per generation"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rejectedTuples, err = meter.Int64Counter(
			"digraph_rejected_tuples_total",
			metric.WithDescription("Bindings whose op implementation failed"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordExpandMetrics records metrics for one generation.
func recordExpandMetrics(ctx context.Context, stats GenerationStats, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Bool("success", success),
		attribute.Bool("stopped", stats.Stopped),
	)

	expandLatency.Record(ctx, stats.Duration.Seconds(), attrs)
	expandTotal.Add(ctx, 1, attrs)
	valuesCreated.Record(ctx, int64(stats.NewValues))
	arrowsCreated.Record(ctx, int64(stats.NewArrows))
	if stats.Rejected > 0 {
		rejectedTuples.Add(ctx, int64(stats.Rejected))
	}
}

// startExpandSpan creates a span for one generation.
func startExpandSpan(ctx context.Context, generation, valueCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Digraph.Expand",
		trace.WithAttributes(
			attribute.Int("digraph.generation", generation),
			attribute.Int("digraph.frozen_values", valueCount),
		),
	)
}

// setExpandSpanResult sets the result attributes on an expand span.
func setExpandSpanResult(span trace.Span, stats GenerationStats, err error) {
	span.SetAttributes(
		attribute.Int("digraph.new_values", stats.NewValues),
		attribute.Int("digraph.new_arrows", stats.NewArrows),
		attribute.Int("digraph.duplicates", stats.Duplicates),
		attribute.Int("digraph.rejected", stats.Rejected),
		attribute.Bool("digraph.stopped", stats.Stopped),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
