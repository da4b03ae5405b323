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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/derive/services/derive/shape"
	"github.com/AleutianAI/derive/services/derive/store"
)

type runOptions struct {
	input     string
	inputFile string
	inputJSON bool
	watch     bool
}

func newRunCmd(c *cli) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run PROGRAM_ID",
		Short: "Replay a stored program on a new input",
		Example: `  derive run 3f1c... --input-file full.txt
  derive run 3f1c... --input-file full.txt --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.input, "input", "", "input text")
	f.StringVarP(&opts.inputFile, "input-file", "f", "", "read the input from a file")
	f.BoolVar(&opts.inputJSON, "input-json", false, "parse the input as JSON instead of raw text")
	f.BoolVarP(&opts.watch, "watch", "w", false, "re-run whenever --input-file changes")
	return cmd
}

func (c *cli) run(cmd *cobra.Command, rawID string, opts *runOptions) error {
	id, err := store.ParseID(rawID)
	if err != nil {
		return err
	}
	if opts.watch && opts.inputFile == "" {
		return errors.New("--watch needs --input-file")
	}

	lib, err := c.library(0, false)
	if err != nil {
		return err
	}
	st, err := c.openStore(lib)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	rec, err := st.Load(ctx, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	replay := func() error {
		input, err := readInput(opts.input, opts.inputFile, opts.inputJSON)
		if err != nil {
			return err
		}
		got, err := rec.Program.Run(input)
		if err != nil {
			return fmt.Errorf("run %s: %w", rec.ID, err)
		}
		fmt.Fprintln(out, shape.Format(got))
		return nil
	}

	if !opts.watch {
		return replay()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	report := func() {
		if err := replay(); err != nil {
			c.logger.Warn("replay failed", slog.String("error", err.Error()))
		}
	}
	report()
	return watchFile(ctx, opts.inputFile, c.logger, report)
}

// watchFile calls onChange each time path is written or recreated, until
// ctx is done. The parent directory is watched so editors that save by
// renaming a temp file over path still trigger.
func watchFile(ctx context.Context, path string, logger *slog.Logger, onChange func()) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	logger.Debug("watching input", slog.String("path", abs))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				logger.Debug("input changed", slog.String("op", event.Op.String()))
				onChange()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}
