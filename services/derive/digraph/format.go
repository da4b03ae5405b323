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
	"fmt"
	"strings"

	"github.com/AleutianAI/derive/services/derive/shape"
)

// maxFormatLen caps the rendering of a single value.
const maxFormatLen = 60

// FormatValue renders a value's data, abbreviated.
func FormatValue(v *Value) string {
	return abbreviate(shape.Format(v.Data), maxFormatLen)
}

// FormatArrow renders an arrow as "op(arg, ...) = result".
func (g *Digraph) FormatArrow(a *Arrow) string {
	var sb strings.Builder
	sb.WriteString(a.Op.Name)
	sb.WriteByte('(')
	for i, in := range a.Inputs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(FormatValue(g.values[in]))
	}
	sb.WriteString(") = ")
	sb.WriteString(FormatValue(g.values[a.Output]))
	return sb.String()
}

// FormatDerivation renders how a value was first reached, as a nested call
// expression over "input" and literals.
//
// Description:
//
//	Follows the first incoming arrow of every value. A value already on
//	the path being rendered prints as "<cycle vN>" so the walk always ends.
//	This is a debugging view; program.Extract is the authoritative
//	extraction.
func (g *Digraph) FormatDerivation(id ValueID) string {
	var sb strings.Builder
	onPath := make(map[ValueID]bool)
	g.formatDerivation(&sb, id, onPath)
	return sb.String()
}

func (g *Digraph) formatDerivation(sb *strings.Builder, id ValueID, onPath map[ValueID]bool) {
	v := g.Value(id)
	switch {
	case v == nil:
		fmt.Fprintf(sb, "<missing v%d>", id)
		return
	case id == g.root:
		sb.WriteString("input")
		return
	case len(v.In) == 0:
		sb.WriteString(FormatValue(v))
		return
	case onPath[id]:
		fmt.Fprintf(sb, "<cycle v%d>", id)
		return
	}

	onPath[id] = true
	defer delete(onPath, id)

	a := g.arrows[v.In[0]]
	sb.WriteString(a.Op.Name)
	sb.WriteByte('(')
	for i, in := range a.Inputs {
		if i > 0 {
			sb.WriteString(", ")
		}
		if a.LiteralInput(i) && in != g.root {
			sb.WriteString(FormatValue(g.values[in]))
			continue
		}
		g.formatDerivation(sb, in, onPath)
	}
	sb.WriteByte(')')
}

func abbreviate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
