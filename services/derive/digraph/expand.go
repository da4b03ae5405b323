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
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/derive/services/derive/op"
	"github.com/AleutianAI/derive/services/derive/shape"
)

// Expand runs one generation.
//
// Description:
//
//	Applies every Op of source (snapshot taken at the start) to every legal
//	binding over the values that existed when the generation started.
//	Values created during the generation are not bound until the next one.
//
//	For parameter i the candidates are the frozen values satisfying
//	Params[i], followed by the values materialized from the parameter's
//	hint. Hints for parameter 0 receive the root data; hints for i >= 1
//	receive each candidate of parameter 0. Candidates are deduplicated by
//	ID, first occurrence kept. A binding a hint proposed is recorded in the
//	arrow's LiteralInputs even when the value was already in the graph.
//	Tuples are enumerated with parameter 0
//	outermost. A tuple that repeats an existing application is skipped; a
//	tuple whose Impl fails is rejected. Every created Arrow is reported to
//	cb, and the generation ends as soon as cb returns true.
//
// Inputs:
//
//	ctx - Used for tracing only; Expand does not observe cancellation.
//	source - The Ops to apply.
//	cb - Observer for new arrows. May be nil.
//
// Outputs:
//
//	GenerationStats - What the generation did, also on error.
//	error - op.ErrMalformedOp, ErrMaxValuesExceeded or ErrMaxArrowsExceeded.
//	        The graph keeps everything added before the failure.
//
// Thread Safety: Not safe for concurrent use.
func (g *Digraph) Expand(ctx context.Context, source OpSource, cb Callback) (GenerationStats, error) {
	start := time.Now()
	g.generation++

	ctx, span := startExpandSpan(ctx, g.generation, len(g.values))
	defer span.End()

	g.debug = g.logger.Enabled(ctx, slog.LevelDebug)
	ops := source.Ops()
	stats := GenerationStats{Generation: g.generation, Ops: len(ops)}
	valuesBefore, arrowsBefore := len(g.values), len(g.arrows)
	frozen := len(g.values)

	var err error
	for _, o := range ops {
		if err = o.Validate(); err != nil {
			err = fmt.Errorf("generation %d: %w", g.generation, err)
			break
		}
		var stop bool
		stop, err = g.expandOp(o, frozen, cb, &stats)
		if err != nil {
			err = fmt.Errorf("generation %d: %s: %w", g.generation, o.Name, err)
			break
		}
		if stop {
			stats.Stopped = true
			break
		}
	}

	stats.NewValues = len(g.values) - valuesBefore
	stats.NewArrows = len(g.arrows) - arrowsBefore
	stats.Duration = time.Since(start)

	setExpandSpanResult(span, stats, err)
	recordExpandMetrics(ctx, stats, err == nil)

	g.logger.Debug("generation expanded",
		slog.Int("generation", stats.Generation),
		slog.Int("new_values", stats.NewValues),
		slog.Int("new_arrows", stats.NewArrows),
		slog.Int("duplicates", stats.Duplicates),
		slog.Int("rejected", stats.Rejected),
		slog.Bool("stopped", stats.Stopped),
		slog.Duration("duration", stats.Duration))

	return stats, err
}

// expandOp applies one Op over the frozen prefix of the value arena.
func (g *Digraph) expandOp(o *op.Op, frozen int, cb Callback, stats *GenerationStats) (bool, error) {
	candidates := make([][]ValueID, o.Arity)
	hinted := make([]map[ValueID]bool, o.Arity)

	primary, hintedPrimary, err := g.candidates(o, 0, frozen, []any{g.values[g.root].Data})
	if err != nil {
		return false, err
	}
	if len(primary) == 0 {
		return false, nil
	}
	candidates[0], hinted[0] = primary, hintedPrimary

	if o.Arity > 1 {
		primaries := make([]any, len(primary))
		for i, id := range primary {
			primaries[i] = g.values[id].Data
		}
		for i := 1; i < o.Arity; i++ {
			candidates[i], hinted[i], err = g.candidates(o, i, frozen, primaries)
			if err != nil {
				return false, err
			}
			if len(candidates[i]) == 0 {
				return false, nil
			}
		}
	}

	// Odometer over the product, last parameter fastest.
	pos := make([]int, o.Arity)
	inputs := make([]ValueID, o.Arity)
	literals := make([]bool, o.Arity)
	args := make([]any, o.Arity)
	for {
		for i := range pos {
			inputs[i] = candidates[i][pos[i]]
			literals[i] = hinted[i][inputs[i]]
			args[i] = g.values[inputs[i]].Data
		}

		stop, err := g.apply(o, inputs, literals, args, cb, stats)
		if err != nil || stop {
			return stop, err
		}

		k := o.Arity - 1
		for ; k >= 0; k-- {
			pos[k]++
			if pos[k] < len(candidates[k]) {
				break
			}
			pos[k] = 0
		}
		if k < 0 {
			return false, nil
		}
	}
}

// apply evaluates one tuple and records the resulting arrow.
func (g *Digraph) apply(o *op.Op, inputs []ValueID, literals []bool, args []any, cb Callback, stats *GenerationStats) (bool, error) {
	if g.FindArrow(o, inputs) != nil {
		stats.Duplicates++
		return false, nil
	}

	res, err := o.Impl(args...)
	if err != nil {
		stats.Rejected++
		if g.debug {
			g.logger.Debug("application rejected",
				slog.String("op", o.Name),
				slog.Any("inputs", inputs),
				slog.String("error", err.Error()))
		}
		return false, nil
	}
	data, err := shape.Normalize(res)
	if err != nil {
		stats.Rejected++
		if g.debug {
			g.logger.Debug("application returned unsupported value",
				slog.String("op", o.Name),
				slog.Any("inputs", inputs),
				slog.String("error", err.Error()))
		}
		return false, nil
	}

	out, novel, err := g.allocate(data, false)
	if err != nil {
		return false, err
	}
	a, err := g.link(o, inputs, literals, out.ID)
	if err != nil {
		return false, err
	}

	if g.debug {
		g.logger.Debug("arrow created",
			slog.Int("arrow", int(a.ID)),
			slog.String("expr", g.FormatArrow(a)),
			slog.Bool("novel", novel))
	}

	if cb == nil {
		return false, nil
	}
	return cb(out, a, novel), nil
}

// candidates computes the bindings of parameter i. The returned set holds the
// candidates a hint proposed, whether or not they were already in the graph.
func (g *Digraph) candidates(o *op.Op, i, frozen int, hintPrimaries []any) ([]ValueID, map[ValueID]bool, error) {
	param := o.Signature.Params[i]
	var out []ValueID
	seen := make(map[ValueID]struct{})
	add := func(id ValueID) {
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	for id := 0; id < frozen; id++ {
		if param.Check(g.values[id].Data) {
			add(ValueID(id))
		}
	}

	hint := o.Hint(i)
	if hint == nil {
		return out, nil, nil
	}
	hinted := make(map[ValueID]bool)
	for _, p := range hintPrimaries {
		for _, lit := range hint(p) {
			data, err := shape.Normalize(lit)
			if err != nil || !param.Check(data) {
				continue
			}
			v, _, err := g.allocate(data, true)
			if err != nil {
				return nil, nil, err
			}
			hinted[v.ID] = true
			add(v.ID)
		}
	}
	return out, hinted, nil
}
