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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/derive/services/derive/config"
	"github.com/AleutianAI/derive/services/derive/library"
	"github.com/AleutianAI/derive/services/derive/progress"
	"github.com/AleutianAI/derive/services/derive/store"
	"github.com/AleutianAI/derive/services/derive/telemetry"
)

// cli holds global flags and the state PersistentPreRunE derives from them.
type cli struct {
	configPath string
	logLevel   string
	noColor    bool

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "derive",
		Short: "Synthesize programs from input/output examples",
		Long: `derive searches a library of typed operations for a program that turns
an example input into an example output, then replays that program on new
inputs.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&c.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(
		newSolveCmd(c),
		newRunCmd(c),
		newOpsCmd(c),
		newProgramsCmd(c),
		newServeCmd(c),
	)
	return rootCmd
}

func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
	}
	c.cfg = cfg
	c.logger = telemetry.NewLogger(cfg.Log, cmd.ErrOrStderr())
	slog.SetDefault(c.logger)
	return nil
}

func (c *cli) color(w io.Writer) bool {
	return !c.noColor && progress.ColorEnabled(w)
}

func (c *cli) library(seed int, seedSet bool) (*library.Library, error) {
	libCfg := c.cfg.Library
	if seedSet {
		libCfg.Seed = seed
	}
	return libCfg.NewLibrary(c.logger)
}

func (c *cli) openStore(lib *library.Library) (*store.Store, error) {
	var cfg store.Config
	if c.cfg.Storage.InMemory {
		cfg = store.InMemoryConfig()
	} else {
		cfg = store.DefaultConfig(c.cfg.Storage.Path)
	}
	cfg.Logger = c.logger
	return store.Open(cfg, lib)
}

// readInput resolves --input / --input-file / --input-json into a value.
func readInput(text, file string, asJSON bool) (any, error) {
	switch {
	case text != "" && file != "":
		return nil, errors.New("use --input or --input-file, not both")
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		text = string(data)
	case text == "":
		return nil, errors.New("one of --input or --input-file is required")
	}
	if !asJSON {
		return text, nil
	}
	return parseJSON("input", text)
}

func parseJSON(name, text string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &v); err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return v, nil
}
