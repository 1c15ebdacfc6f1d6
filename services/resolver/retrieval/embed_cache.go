// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

// =============================================================================
// EmbeddingCache: Question Vector Persistence
// =============================================================================
//
// Question embeddings are expensive relative to the rest of the pipeline
// (an HTTP round-trip to the embedding service) but fully determined by
// (model, text). The same phrasings recur across users and sessions, so
// vectors are persisted in BadgerDB between requests and restarts.
//
// Storage layout:
//
//	resolver/emb/v1/{sha256(model \n text)}  ->  gob-encoded []float32
//	                                             TTL: 7 days

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// embedCacheDefaultTTL bounds staleness: a model redeploy with the same
// name picks up fresh vectors within a week.
const embedCacheDefaultTTL = 7 * 24 * time.Hour

// embedCacheKeyPrefix is versioned (v1) to allow future format changes
// without collision.
const embedCacheKeyPrefix = "resolver/emb/v1/"

// errEmbedCacheMiss distinguishes "key not found" from a storage error.
var errEmbedCacheMiss = errors.New("cache miss")

// =============================================================================
// EmbeddingCache Interface
// =============================================================================

// EmbeddingCache persists question embedding vectors across requests.
//
// Description:
//
//	Keys are computed by the caller from (model, text); the cache is a
//	plain key → vector store. Both methods are called with a nil receiver
//	check upstream: a nil EmbeddingCache in the embed client disables
//	persistence, which is the correct mode for tests and deployments
//	without a cache directory configured.
//
// Thread Safety: Implementations must be safe for concurrent use.
type EmbeddingCache interface {
	// Load retrieves a cached vector. Returns (nil, nil) on cache miss
	// (key absent or TTL expired) and (nil, error) on storage failure.
	Load(ctx context.Context, key string) ([]float32, error)

	// Save persists a vector under the key with the cache's TTL. Failure
	// is non-fatal to callers; the vector is recomputed next time.
	Save(ctx context.Context, key string, vector []float32) error
}

// EmbedCacheKey derives the cache key for a (model, text) pair.
//
// The model name is part of the digest so a model change invalidates
// every entry without an explicit flush.
func EmbedCacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\n" + text))
	return embedCacheKeyPrefix + hex.EncodeToString(sum[:])
}

// =============================================================================
// BadgerEmbeddingCache
// =============================================================================

// BadgerEmbeddingCache implements EmbeddingCache over a BadgerDB instance.
//
// Description:
//
//	Vectors are gob-encoded []float32 (~4 bytes per dimension). TTL is
//	enforced by BadgerDB's native GC; expired keys surface as
//	ErrKeyNotFound, which this cache reports as a miss.
//
//	The DB is opened by the caller (typically in main) and shared; this
//	cache does not own its lifecycle.
//
// Thread Safety: Safe for concurrent use. Badger transactions are
// per-goroutine.
type BadgerEmbeddingCache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewBadgerEmbeddingCache creates a cache backed by the given DB.
//
// Inputs:
//
//	db - Opened BadgerDB. Must not be nil.
//	ttl - Entry lifetime. Pass 0 for the default (7 days).
//	logger - Logger for hit/miss diagnostics. May be nil.
func NewBadgerEmbeddingCache(db *badger.DB, ttl time.Duration, logger *slog.Logger) *BadgerEmbeddingCache {
	if db == nil {
		panic("NewBadgerEmbeddingCache: db must not be nil")
	}
	if ttl <= 0 {
		ttl = embedCacheDefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerEmbeddingCache{db: db, ttl: ttl, logger: logger}
}

// Load retrieves a cached vector, returning (nil, nil) on miss.
func (c *BadgerEmbeddingCache) Load(ctx context.Context, key string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errEmbedCacheMiss
		}
		if err != nil {
			return fmt.Errorf("get cache key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copy value: %w", err)
		}
		return nil
	})

	if errors.Is(err, errEmbedCacheMiss) {
		c.logger.Debug("embedding cache: miss", slog.String("key", shortKey(key)))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("embedding cache load: %w", err)
	}

	var vector []float32
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&vector); err != nil {
		return nil, fmt.Errorf("embedding cache decode: %w", err)
	}

	c.logger.Debug("embedding cache: hit",
		slog.String("key", shortKey(key)),
		slog.Int("dims", len(vector)),
	)
	return vector, nil
}

// Save persists a vector under the key with the configured TTL.
func (c *BadgerEmbeddingCache) Save(ctx context.Context, key string, vector []float32) error {
	if len(vector) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(vector); err != nil {
		return fmt.Errorf("embedding cache encode: %w", err)
	}

	err := c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), buf.Bytes()).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("embedding cache save: %w", err)
	}

	c.logger.Debug("embedding cache: saved",
		slog.String("key", shortKey(key)),
		slog.Int("dims", len(vector)),
		slog.Duration("ttl", c.ttl),
	)
	return nil
}

// shortKey trims a cache key for log display.
func shortKey(key string) string {
	if len(key) > len(embedCacheKeyPrefix)+8 {
		return key[:len(embedCacheKeyPrefix)+8] + "..."
	}
	return key
}
