// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config selects where programs are kept and how the value log is compacted.
type Config struct {
	// Path is the database directory. Ignored when InMemory.
	Path string

	// InMemory keeps programs in RAM only; they are lost on Close.
	InMemory bool

	// SyncWrites makes every Save durable before it returns.
	SyncWrites bool

	// Logger receives store and database log lines. Nil uses slog.Default
	// for the store and silences the database.
	Logger *slog.Logger

	// GCInterval is the period of value log compaction. Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the fraction of stale data a log file needs before
	// it is rewritten.
	GCDiscardRatio float64
}

// DefaultConfig is a durable store at path, compacted every five minutes.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig is a throwaway store for tests and one-shot runs.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerOptions translates cfg, creating the directory of an on-disk store.
// Only the latest version of a record is kept since programs are never
// edited in place.
func (cfg Config) badgerOptions() (badger.Options, error) {
	var opts badger.Options
	switch {
	case cfg.InMemory:
		opts = badger.DefaultOptions("").WithInMemory(true)
	case cfg.Path == "":
		return opts, errors.New("store: path is required unless in memory")
	default:
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return opts, fmt.Errorf("store: create %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger == nil {
		return opts.WithLogger(nil), nil
	}
	return opts.WithLogger(dbLog{cfg.Logger.With(slog.String("component", "badger"))}), nil
}

// compacts reports whether Open should start value log compaction.
func (cfg Config) compacts() bool {
	return !cfg.InMemory && cfg.GCInterval > 0
}

// dbLog forwards the database's printf-style logging to slog.
type dbLog struct{ *slog.Logger }

func (l dbLog) Errorf(format string, args ...any)   { l.Error(fmt.Sprintf(format, args...)) }
func (l dbLog) Warningf(format string, args ...any) { l.Warn(fmt.Sprintf(format, args...)) }
func (l dbLog) Infof(format string, args ...any)    { l.Info(fmt.Sprintf(format, args...)) }
func (l dbLog) Debugf(format string, args ...any)   { l.Debug(fmt.Sprintf(format, args...)) }
