// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists derived programs in BadgerDB.
//
// Records live under "program/<uuid>" as CBOR. The program itself is kept in
// its own encoding (program.Encode) and decoded against an op resolver on
// Load, so a store written with one library can be read with any library
// that knows the same op names.
//
// # Thread Safety
//
// A Store is safe for concurrent use.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/AleutianAI/derive/services/derive/program"
)

// Sentinel errors for store operations.
var (
	// ErrProgramNotFound is returned when no record has the requested ID.
	ErrProgramNotFound = errors.New("program not found")

	// ErrInvalidID is returned for IDs that are not UUIDs.
	ErrInvalidID = errors.New("invalid program id")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store closed")
)

var keyPrefix = []byte("program/")

// Meta describes how a program was found.
type Meta struct {
	Generations int
	Values      int
	Arrows      int
	Duration    time.Duration
}

// Record is a stored program with its metadata.
type Record struct {
	ID         uuid.UUID
	Expression string
	CreatedAt  time.Time
	Meta       Meta

	// Program is nil in List results.
	Program *program.Program
}

type storedRecord struct {
	ID          []byte        `cbor:"1,keyasint"`
	Expression  string        `cbor:"2,keyasint"`
	CreatedAt   time.Time     `cbor:"3,keyasint"`
	Generations int           `cbor:"4,keyasint"`
	Values      int           `cbor:"5,keyasint"`
	Arrows      int           `cbor:"6,keyasint"`
	Duration    time.Duration `cbor:"7,keyasint"`
	Program     []byte        `cbor:"8,keyasint"`
}

var (
	recordEnc cbor.EncMode
	recordDec cbor.DecMode
)

func init() {
	var err error
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	if recordEnc, err = opts.EncMode(); err != nil {
		panic(fmt.Sprintf("store: cbor enc mode: %v", err))
	}
	if recordDec, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(fmt.Sprintf("store: cbor dec mode: %v", err))
	}
}

// Store is a BadgerDB-backed program store.
type Store struct {
	db       *badger.DB
	resolver program.OpResolver
	logger   *slog.Logger
	now      func() time.Time

	// stopGC and gcDone are nil unless the value log is compacted.
	stopGC context.CancelFunc
	gcDone chan struct{}
}

// Open opens a Store.
//
// Inputs:
//
//	cfg - Database configuration. See DefaultConfig and InMemoryConfig.
//	resolver - Resolves op names when loading programs, typically the
//	           *library.Library used for searching.
//
// Outputs:
//
//	*Store - The store. Call Close when done.
//	error - Non-nil if the database cannot be opened.
func Open(cfg Config, resolver program.OpResolver) (*Store, error) {
	opts, err := cfg.badgerOptions()
	if err != nil {
		return nil, err
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		db:       db,
		resolver: resolver,
		logger:   logger.With(slog.String("component", "store")),
		now:      time.Now,
	}
	if cfg.compacts() {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopGC, s.gcDone = cancel, make(chan struct{})
		go s.compact(ctx, cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// compact rewrites value log files with at least ratio stale data, once per
// interval, until ctx is cancelled.
func (s *Store) compact(ctx context.Context, interval time.Duration, ratio float64) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		// ErrNoRewrite only means no file was worth rewriting.
		if err := s.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
			s.logger.Warn("value log compaction failed", slog.String("error", err.Error()))
		}
	}
}

// Close stops compaction and closes the database.
func (s *Store) Close() error {
	if s.stopGC != nil {
		s.stopGC()
		<-s.gcDone
	}
	return s.db.Close()
}

func key(id uuid.UUID) []byte {
	return append(append([]byte(nil), keyPrefix...), id.String()...)
}

// ParseID parses a program ID.
func ParseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return id, nil
}

// Save stores p under a new ID.
//
// Outputs:
//
//	Record - The stored record, including its new ID.
//	error - An encoding error for programs with unencodable values, or a
//	        database error.
func (s *Store) Save(ctx context.Context, p *program.Program, meta Meta) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	data, err := p.Encode()
	if err != nil {
		return Record{}, fmt.Errorf("encode program: %w", err)
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return Record{}, fmt.Errorf("new id: %w", err)
	}
	rec := Record{
		ID:         id,
		Expression: p.Expression(),
		CreatedAt:  s.now().UTC(),
		Meta:       meta,
		Program:    p,
	}
	value, err := recordEnc.Marshal(storedRecord{
		ID:          id[:],
		Expression:  rec.Expression,
		CreatedAt:   rec.CreatedAt,
		Generations: meta.Generations,
		Values:      meta.Values,
		Arrows:      meta.Arrows,
		Duration:    meta.Duration,
		Program:     data,
	})
	if err != nil {
		return Record{}, fmt.Errorf("encode record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(id), value)
	})
	if err != nil {
		return Record{}, s.wrap("save", err)
	}

	s.logger.Info("program saved",
		slog.String("id", id.String()),
		slog.String("program", rec.Expression))
	return rec, nil
}

// Load returns the record with the given ID, with its program decoded.
//
// Outputs:
//
//	Record - The record.
//	error - ErrProgramNotFound, or a program.ErrDecode error when the
//	        resolver does not know one of the program's ops.
func (s *Store) Load(ctx context.Context, id uuid.UUID) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	var stored storedRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return recordDec.Unmarshal(val, &stored)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, fmt.Errorf("%w: %s", ErrProgramNotFound, id)
	}
	if err != nil {
		return Record{}, s.wrap("load", err)
	}

	rec := fromStored(stored)
	rec.Program, err = program.Decode(stored.Program, s.resolver)
	if err != nil {
		return Record{}, fmt.Errorf("program %s: %w", id, err)
	}
	return rec, nil
}

// List returns every record without decoding programs, newest first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(keyPrefix); it.Next() {
			var stored storedRecord
			err := it.Item().Value(func(val []byte) error {
				return recordDec.Unmarshal(val, &stored)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, fromStored(stored))
		}
		return nil
	})
	if err != nil {
		return nil, s.wrap("list", err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out, nil
}

// Delete removes the record with the given ID.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key(id)); err != nil {
			return err
		}
		return txn.Delete(key(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, id)
	}
	if err != nil {
		return s.wrap("delete", err)
	}
	s.logger.Info("program deleted", slog.String("id", id.String()))
	return nil
}

func (s *Store) wrap(operation string, err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return fmt.Errorf("%s: %w", operation, ErrClosed)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

func fromStored(stored storedRecord) Record {
	var id uuid.UUID
	copy(id[:], stored.ID)
	return Record{
		ID:         id,
		Expression: stored.Expression,
		CreatedAt:  stored.CreatedAt,
		Meta: Meta{
			Generations: stored.Generations,
			Values:      stored.Values,
			Arrows:      stored.Arrows,
			Duration:    stored.Duration,
		},
	}
}
