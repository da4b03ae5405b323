// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package progress renders search progress for terminals.
package progress

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/derive/services/derive/digraph"
	"github.com/AleutianAI/derive/services/derive/program"
	"github.com/AleutianAI/derive/services/derive/search"
)

// Level controls how much a Reporter prints.
type Level string

const (
	// LevelFull prints one line per arrow and one per generation.
	LevelFull Level = "full"

	// LevelMinimal prints one line per generation.
	LevelMinimal Level = "minimal"

	// LevelMachine prints unstyled key=value lines, one per generation.
	LevelMachine Level = "machine"
)

// ParseLevel converts a flag value to a Level.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelFull, LevelMinimal, LevelMachine:
		return Level(s), nil
	case "":
		return LevelFull, nil
	}
	return "", fmt.Errorf("unknown progress level %q", s)
}

// Palette, borrowed from the CLI theme.
var (
	colorTeal    = lipgloss.Color("#2CD7C7")
	colorTealDim = lipgloss.Color("#16858E")
	colorSlate   = lipgloss.Color("#2C4A54")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
)

var styles = struct {
	Generation lipgloss.Style
	Arrow      lipgloss.Style
	Duplicate  lipgloss.Style
	Found      lipgloss.Style
	DeadEnd    lipgloss.Style
	Failed     lipgloss.Style
}{
	Generation: lipgloss.NewStyle().Bold(true).Foreground(colorTealDim),
	Arrow:      lipgloss.NewStyle().Foreground(colorTeal),
	Duplicate:  lipgloss.NewStyle().Foreground(colorSlate),
	Found:      lipgloss.NewStyle().Bold(true).Foreground(colorTeal),
	DeadEnd:    lipgloss.NewStyle().Foreground(colorWarning),
	Failed:     lipgloss.NewStyle().Foreground(colorError),
}

// Reporter writes search progress to a writer. It implements
// search.Reporter.
//
// Thread Safety: Safe for concurrent use; writes are serialized.
type Reporter struct {
	mu    sync.Mutex
	w     io.Writer
	level Level
	color bool
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithLevel sets the output level. Default: LevelFull.
func WithLevel(level Level) Option {
	return func(r *Reporter) {
		r.level = level
	}
}

// WithColor enables or disables styling. Default: detected from w.
func WithColor(enabled bool) Option {
	return func(r *Reporter) {
		r.color = enabled
	}
}

// NewReporter creates a Reporter writing to w.
func NewReporter(w io.Writer, opts ...Option) *Reporter {
	r := &Reporter{w: w, level: LevelFull, color: ColorEnabled(w)}
	for _, opt := range opts {
		opt(r)
	}
	if r.level == LevelMachine {
		r.color = false
	}
	return r
}

// ColorEnabled reports whether w is a terminal that should receive colour.
// NO_COLOR disables colour regardless of the terminal.
func ColorEnabled(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (r *Reporter) render(s lipgloss.Style, text string) string {
	if !r.color {
		return text
	}
	return s.Render(text)
}

func (r *Reporter) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format, args...)
}

// Arrow prints the arrow in LevelFull.
func (r *Reporter) Arrow(g *digraph.Digraph, a *digraph.Arrow, novel bool) {
	if r.level != LevelFull {
		return
	}
	if novel {
		r.printf("  %s %s\n", r.render(styles.Arrow, "+"), g.FormatArrow(a))
		return
	}
	r.printf("  %s %s\n", r.render(styles.Duplicate, "="), r.render(styles.Duplicate, g.FormatArrow(a)))
}

// Generation prints a summary line for the generation.
func (r *Reporter) Generation(g *digraph.Digraph, stats digraph.GenerationStats) {
	if r.level == LevelMachine {
		r.printf("generation=%d ops=%d new_values=%d new_arrows=%d duplicates=%d rejected=%d values=%d arrows=%d stopped=%t\n",
			stats.Generation, stats.Ops, stats.NewValues, stats.NewArrows,
			stats.Duplicates, stats.Rejected, g.ValueCount(), g.ArrowCount(), stats.Stopped)
		return
	}
	head := r.render(styles.Generation, fmt.Sprintf("generation %d", stats.Generation))
	r.printf("%s: %d ops, +%d values, +%d arrows (%d values, %d arrows total) in %s\n",
		head, stats.Ops, stats.NewValues, stats.NewArrows,
		g.ValueCount(), g.ArrowCount(), stats.Duration.Round(time.Microsecond))
}

// Found prints the program.
func (r *Reporter) Found(p *program.Program, generation int) {
	if r.level == LevelMachine {
		r.printf("found generation=%d steps=%d program=%q\n", generation, p.Len(), p.Expression())
		return
	}
	r.printf("%s after %d generations: %s\n",
		r.render(styles.Found, "✓ found"), generation, p.Expression())
}

// Failed prints why the search stopped, separating dead ends from
// exhausted budgets.
func (r *Reporter) Failed(err error) {
	reason := "failed"
	style := styles.Failed
	var failure *search.SearchFailure
	if errors.As(err, &failure) {
		if failure.DeadEnd() {
			reason, style = "dead end", styles.DeadEnd
		} else if errors.Is(err, search.ErrSearchExhausted) {
			reason = "budget exhausted"
		}
	}

	if r.level == LevelMachine {
		r.printf("failed reason=%q error=%q\n", reason, err.Error())
		return
	}
	r.printf("%s: %v\n", r.render(style, "✗ "+reason), err)
}

var _ search.Reporter = (*Reporter)(nil)
