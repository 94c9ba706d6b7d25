// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/dgraph-io/badger/v4"
)

const runPrefix = "run/"

// BadgerStore archives runs in an embedded BadgerDB, JSON-encoded under
// "run/<id>".
//
// Thread Safety: Safe for concurrent use.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadgerStore opens or creates an archive in dir.
//
// Description:
//
//	Creates dir with 0750 permissions when needed. Writes are synced so a
//	recorded run survives a crash of the CLI.
//
// Inputs:
//
//	dir - Database directory. Required.
//	logger - Receives BadgerDB's own log lines. Nil disables them.
//
// Outputs:
//
//	*BadgerStore - The store. Caller must Close it.
//	error - ErrNoPath, or a directory or open error.
func OpenBadgerStore(dir string, logger *slog.Logger) (*BadgerStore, error) {
	if dir == "" {
		return nil, ErrNoPath
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create store directory %s: %w", dir, err)
	}
	return open(badger.DefaultOptions(dir).WithSyncWrites(true), logger)
}

// OpenInMemoryBadgerStore opens an archive that is lost on Close.
func OpenInMemoryBadgerStore(logger *slog.Logger) (*BadgerStore, error) {
	return open(badger.DefaultOptions("").WithInMemory(true), logger)
}

func open(opts badger.Options, logger *slog.Logger) (*BadgerStore, error) {
	opts = opts.WithNumVersionsToKeep(1)
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
		logger = slog.Default()
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

// Record stores run, replacing any run with the same ID.
func (s *BadgerStore) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		return ErrMissingRunID
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", run.ID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(runPrefix+run.ID), data)
	})
	if err != nil {
		return fmt.Errorf("store run %s: %w", run.ID, err)
	}
	s.logger.Debug("run archived", slog.String("run_id", run.ID), slog.Int("bytes", len(data)))
	return nil
}

// Get loads one run.
//
// Outputs:
//
//	Run - The stored run.
//	error - ErrNotFound when nothing is stored under id.
func (s *BadgerStore) Get(ctx context.Context, id string) (Run, error) {
	var run Run
	if err := ctx.Err(); err != nil {
		return run, fmt.Errorf("context cancelled: %w", err)
	}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(runPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &run)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return run, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return run, fmt.Errorf("load run %s: %w", id, err)
	}
	return run, nil
}

// List returns every stored run, oldest start first.
func (s *BadgerStore) List(ctx context.Context) ([]Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	var runs []Run
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var run Run
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &run)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			runs = append(runs, run)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Started.Before(runs[j].Started)
	})
	return runs, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var _ Recorder = (*BadgerStore)(nil)
