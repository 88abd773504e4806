// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists authoritative session rows.
//
// BadgerDB is used for local embedded storage with low-latency access.
// The transition handler only ever needs a row read/update/insert contract,
// expressed here as SessionStore; the badger implementation keeps one JSON
// value per session keyed by id, with ownership carried on the row.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/FocusLocal/services/focus/datatypes"
)

// ErrNotFound is returned when no row exists for the requested session id.
var ErrNotFound = errors.New("session not found")

// DefaultListLimit bounds list queries that do not specify a limit.
const DefaultListLimit = 50

// MaxListLimit is the hard ceiling for a single list page.
const MaxListLimit = 500

// SessionStore is the row read/update/insert contract consumed by the
// transition handler.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Concurrent updates to the
// same id are last-write-wins; only one authenticated device is expected to
// control a given session at a time.
type SessionStore interface {
	// Insert writes a new row. The id must not already exist for the user.
	Insert(ctx context.Context, s datatypes.Session) error

	// Get reads one row by id. Returns ErrNotFound if absent. Ownership
	// is checked by the handler against the row's UserID so a mismatched
	// owner can be answered with 401 rather than 404.
	Get(ctx context.Context, id string) (datatypes.Session, error)

	// Update overwrites an existing row. Returns ErrNotFound if absent.
	Update(ctx context.Context, s datatypes.Session) error

	// Delete removes a row. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id string) error

	// List returns the user's history, newest first. Finished rows below
	// the discard threshold are excluded: a row is kept when
	// EndTime == nil OR ElapsedSeconds >= DiscardThresholdSeconds.
	List(ctx context.Context, userID string, q datatypes.ListSessionsQuery) ([]datatypes.Session, error)

	// Close releases the underlying database.
	Close() error
}

// =============================================================================
// Badger Implementation
// =============================================================================

// Config holds configuration for the badger-backed store.
type Config struct {
	// Path is the directory for database files.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). For testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output.
	// If nil, internal logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults: durable synchronous writes.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests: no disk I/O.
func InMemoryConfig() Config {
	return Config{InMemory: true}
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
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore is the badger/v4 backed SessionStore.
type BadgerStore struct {
	db *badger.DB
}

// Open creates and opens a badger-backed session store.
//
// # Description
//
// Opens a BadgerDB database at the configured path, or in memory if InMemory
// is true. Creates the directory if it doesn't exist.
//
// # Outputs
//
//   - *BadgerStore: The opened store. Caller must Close() when done.
//   - error: Non-nil if the path is invalid or the database cannot open.
func Open(cfg Config) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// sessionKey builds the row key. Rows are keyed by id alone; the row's
// UserID field carries ownership.
func sessionKey(id string) []byte {
	return []byte(sessionPrefix + id)
}

const sessionPrefix = "session/"

// Insert implements SessionStore.
func (b *BadgerStore) Insert(ctx context.Context, s datatypes.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := sessionKey(s.ID)
	val, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", s.ID, err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("session %s already exists", s.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, val)
	})
}

// Get implements SessionStore.
func (b *BadgerStore) Get(ctx context.Context, id string) (datatypes.Session, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.Session{}, err
	}
	var s datatypes.Session
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &s)
		})
	})
	if err != nil {
		return datatypes.Session{}, err
	}
	return s, nil
}

// Update implements SessionStore.
func (b *BadgerStore) Update(ctx context.Context, s datatypes.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := sessionKey(s.ID)
	val, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", s.ID, err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		return txn.Set(key, val)
	})
}

// Delete implements SessionStore.
func (b *BadgerStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := sessionKey(id)
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		return txn.Delete(key)
	})
}

// List implements SessionStore.
//
// # Description
//
// Scans the session prefix, keeps the user's rows, applies the
// discard-threshold filter and the optional from/to window on StartTime,
// sorts newest first, then pages with limit/offset. History is small enough
// per user that a prefix scan is the right tool; badger has no secondary
// indexes.
func (b *BadgerStore) List(ctx context.Context, userID string, q datatypes.ListSessionsQuery) ([]datatypes.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var rows []datatypes.Session
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(sessionPrefix)
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var s datatypes.Session
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &s)
			})
			if err != nil {
				// A corrupt row should not poison the whole listing.
				slog.Warn("focus.store: skipping unreadable session row",
					"key", string(it.Item().Key()), "error", err)
				continue
			}
			if s.UserID != userID || !includeInHistory(s, q) {
				continue
			}
			rows = append(rows, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].StartTime.After(rows[j].StartTime)
	})

	if offset >= len(rows) {
		return []datatypes.Session{}, nil
	}
	rows = rows[offset:]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// includeInHistory applies the discard-threshold filter and time window.
// Finished rows under the threshold are short aborted sessions the user
// chose to discard; they stay in storage but never appear in history.
func includeInHistory(s datatypes.Session, q datatypes.ListSessionsQuery) bool {
	if s.EndTime != nil && s.ElapsedSeconds < datatypes.DiscardThresholdSeconds {
		return false
	}
	if q.From != nil && s.StartTime.Before(*q.From) {
		return false
	}
	if q.To != nil && s.StartTime.After(*q.To) {
		return false
	}
	return true
}

// Close implements SessionStore.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}

// PathForUser is a helper that namespaces on-disk databases per deployment.
// Kept here so main and tests agree on layout.
func PathForUser(root, name string) string {
	return strings.TrimRight(root, "/") + "/" + name
}

var _ SessionStore = (*BadgerStore)(nil)
