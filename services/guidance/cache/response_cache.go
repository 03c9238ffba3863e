// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache provides the embedded response cache.
//
// Cached guidance responses serve two purposes: repeated questions
// skip the model entirely, and the cache is the first rung of the
// fallback chain when the model is down. BadgerDB gives local
// low-latency access with TTL-based expiry and no external service.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrMiss is returned when no entry exists for a key.
var ErrMiss = errors.New("cache miss")

// Config holds configuration for the response cache.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory
	// is true.
	Path string

	// InMemory enables in-memory mode. Useful for testing.
	InMemory bool

	// TTL is how long entries live. Default: 1 hour.
	TTL time.Duration

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger
}

// CachedResponse is the stored value for one query.
type CachedResponse struct {
	Content     string    `json:"content"`
	Personality string    `json:"personality"`
	Model       string    `json:"model,omitempty"`
	Citations   []string  `json:"citations,omitempty"`
	StoredAt    time.Time `json:"stored_at"`
}

// ResponseCache stores guidance responses keyed by personality and
// normalized query text.
//
// # Thread Safety
//
// ResponseCache is safe for concurrent use; BadgerDB handles its own
// locking.
type ResponseCache struct {
	db  *badger.DB
	ttl time.Duration
}

// New opens the cache.
func New(config Config) (*ResponseCache, error) {
	if config.TTL <= 0 {
		config.TTL = time.Hour
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(config.Path)
	}
	if config.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: config.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return &ResponseCache{db: db, ttl: config.TTL}, nil
}

// Key derives the cache key for a personality and query. Queries are
// lowercased and whitespace-collapsed so trivial rephrasings hit.
func Key(personality, query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return personality + ":" + hex.EncodeToString(sum[:16])
}

// Get returns the cached response for the personality and query, or
// ErrMiss.
func (c *ResponseCache) Get(personality, query string) (*CachedResponse, error) {
	var cached CachedResponse

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(Key(personality, query)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cached)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache read failed: %w", err)
	}
	return &cached, nil
}

// Set stores a response under the personality and query key with the
// configured TTL.
func (c *ResponseCache) Set(personality, query string, resp *CachedResponse) error {
	if resp.StoredAt.IsZero() {
		resp.StoredAt = time.Now()
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal cached response: %w", err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(Key(personality, query)), data).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
}

// Close releases the database. Call once at shutdown.
func (c *ResponseCache) Close() error {
	return c.db.Close()
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
