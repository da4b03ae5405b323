// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/derive/services/derive/store"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2CD7C7"))

// renderTable writes rows with a header. Styling is dropped when color is off.
func renderTable(w io.Writer, color bool, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...)
	if color {
		t = t.StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	} else {
		t = t.StyleFunc(func(row, col int) lipgloss.Style {
			return lipgloss.NewStyle().Padding(0, 1)
		})
	}
	fmt.Fprintln(w, t.Render())
}

func newOpsCmd(c *cli) *cobra.Command {
	var seed int
	cmd := &cobra.Command{
		Use:   "ops",
		Short: "List the operation library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := c.library(seed, cmd.Flags().Changed("seed"))
			if err != nil {
				return err
			}
			rows := make([][]string, 0, lib.Size())
			for _, o := range lib.Ops() {
				rows = append(rows, []string{o.Name, o.Signature.String(), strconv.Itoa(o.Depth)})
			}
			out := cmd.OutOrStdout()
			renderTable(out, c.color(out), []string{"NAME", "SIGNATURE", "DEPTH"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&seed, "seed", 0, "number of combinator ops to add (default from config)")
	return cmd
}

func newProgramsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "programs",
		Aliases: []string{"ls"},
		Short:   "List stored programs",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(func(st *store.Store) error {
				recs, err := st.List(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(recs) == 0 {
					fmt.Fprintln(out, "no stored programs")
					return nil
				}
				rows := make([][]string, len(recs))
				for i, rec := range recs {
					rows[i] = []string{
						rec.ID.String(),
						rec.Expression,
						rec.CreatedAt.Local().Format(time.DateTime),
						strconv.Itoa(rec.Meta.Generations),
					}
				}
				renderTable(out, c.color(out), []string{"ID", "EXPRESSION", "CREATED", "GENERATIONS"}, rows)
				return nil
			})
		},
	}

	showCmd := &cobra.Command{
		Use:   "show PROGRAM_ID",
		Short: "Print a stored program step by step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := store.ParseID(args[0])
			if err != nil {
				return err
			}
			return c.withStore(func(st *store.Store) error {
				rec, err := st.Load(cmd.Context(), id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s\n\n%s", rec.Expression, rec.Program.String())
				return nil
			})
		},
	}

	rmCmd := &cobra.Command{
		Use:     "rm PROGRAM_ID",
		Aliases: []string{"delete"},
		Short:   "Delete a stored program",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := store.ParseID(args[0])
			if err != nil {
				return err
			}
			return c.withStore(func(st *store.Store) error {
				if err := st.Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
				return nil
			})
		},
	}

	cmd.AddCommand(showCmd, rmCmd)
	return cmd
}

func (c *cli) withStore(fn func(*store.Store) error) error {
	lib, err := c.library(0, false)
	if err != nil {
		return err
	}
	st, err := c.openStore(lib)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}
