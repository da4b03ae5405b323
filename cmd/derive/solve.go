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
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/derive/services/derive/program"
	"github.com/AleutianAI/derive/services/derive/progress"
	"github.com/AleutianAI/derive/services/derive/search"
	"github.com/AleutianAI/derive/services/derive/shape"
	"github.com/AleutianAI/derive/services/derive/store"
)

type solveOptions struct {
	input     string
	inputFile string
	inputJSON bool
	output    string
	waypoints []string
	budget    int
	seed      int
	progress  string
	steps     bool
	save      bool
	checkFile string
}

func newSolveCmd(c *cli) *cobra.Command {
	opts := &solveOptions{}
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Derive a program from one input/output example",
		Long: `Search for a program that turns the example input into the example output.

The output is a JSON value. Intermediate --waypoint values split the search
into legs that are derived separately and composed.`,
		Example: `  derive solve --input-file example.txt --output 6000
  derive solve --input '[1,5,3,4,2]' --input-json --output 12 --save
  derive solve --input-file example.txt --waypoint '["1","2"]' --output 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.solve(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.input, "input", "", "example input text")
	f.StringVarP(&opts.inputFile, "input-file", "f", "", "read the example input from a file")
	f.BoolVar(&opts.inputJSON, "input-json", false, "parse the input as JSON instead of raw text")
	f.StringVarP(&opts.output, "output", "o", "", "expected output as JSON")
	f.StringArrayVar(&opts.waypoints, "waypoint", nil, "intermediate value as JSON (repeatable)")
	f.IntVarP(&opts.budget, "budget", "b", 0, "maximum generations (default from config)")
	f.IntVar(&opts.seed, "seed", 0, "number of combinator ops to add to the library (default from config)")
	f.StringVar(&opts.progress, "progress", "full", "progress output: full, minimal, machine or none")
	f.BoolVar(&opts.steps, "steps", false, "print the program one step per line")
	f.BoolVar(&opts.save, "save", false, "store the program for later runs")
	f.StringVar(&opts.checkFile, "check-file", "", "run the program on this file's contents after deriving it")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func (c *cli) solve(cmd *cobra.Command, opts *solveOptions) error {
	ctx := cmd.Context()

	input, err := readInput(opts.input, opts.inputFile, opts.inputJSON)
	if err != nil {
		return err
	}
	output, err := parseJSON("output", opts.output)
	if err != nil {
		return err
	}
	waypoints := make([]any, 0, len(opts.waypoints)+2)
	waypoints = append(waypoints, input)
	for _, raw := range opts.waypoints {
		v, err := parseJSON("waypoint", raw)
		if err != nil {
			return err
		}
		waypoints = append(waypoints, v)
	}
	waypoints = append(waypoints, output)

	lib, err := c.library(opts.seed, cmd.Flags().Changed("seed"))
	if err != nil {
		return err
	}

	searchOpts := append(c.cfg.Search.SearchOptions(), search.WithLogger(c.logger))
	if cmd.Flags().Changed("budget") {
		searchOpts = append(searchOpts, search.WithMaxGenerations(opts.budget))
	}
	if opts.progress != "none" {
		level, err := progress.ParseLevel(opts.progress)
		if err != nil {
			return err
		}
		errOut := cmd.ErrOrStderr()
		searchOpts = append(searchOpts, search.WithReporter(progress.NewReporter(errOut,
			progress.WithLevel(level),
			progress.WithColor(c.color(errOut)))))
	}
	searcher := search.NewSearcher(lib, searchOpts...)

	var (
		p    *program.Program
		meta store.Meta
	)
	if len(waypoints) > 2 {
		p, err = searcher.DeriveChain(ctx, waypoints...)
		if err != nil {
			return err
		}
	} else {
		res, err := searcher.Derive(ctx, input, output)
		if err != nil {
			return err
		}
		p = res.Program
		meta = store.Meta{
			Generations: res.Generations,
			Values:      res.Values,
			Arrows:      res.Arrows,
			Duration:    res.Duration,
		}
	}

	out := cmd.OutOrStdout()
	if opts.steps {
		fmt.Fprint(out, p.String())
	} else {
		fmt.Fprintln(out, p.Expression())
	}

	if opts.save {
		st, err := c.openStore(lib)
		if err != nil {
			return err
		}
		defer st.Close()
		rec, err := st.Save(ctx, p, meta)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "saved %s\n", rec.ID)
	}

	if opts.checkFile != "" {
		data, err := os.ReadFile(opts.checkFile)
		if err != nil {
			return err
		}
		var checkInput any = string(data)
		if opts.inputJSON {
			if checkInput, err = parseJSON("check-file", string(data)); err != nil {
				return err
			}
		}
		got, err := p.Run(checkInput)
		if err != nil {
			return fmt.Errorf("check: %w", err)
		}
		fmt.Fprintf(out, "check: %s\n", shape.Format(got))
	}
	return nil
}
