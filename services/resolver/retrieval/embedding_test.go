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

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// =============================================================================
// Test Doubles
// =============================================================================

// mapEmbeddingCache is an in-memory EmbeddingCache for tests.
type mapEmbeddingCache struct {
	entries map[string][]float32
}

func newMapEmbeddingCache() *mapEmbeddingCache {
	return &mapEmbeddingCache{entries: make(map[string][]float32)}
}

func (m *mapEmbeddingCache) Load(_ context.Context, key string) ([]float32, error) {
	return m.entries[key], nil
}

func (m *mapEmbeddingCache) Save(_ context.Context, key string, vector []float32) error {
	m.entries[key] = vector
	return nil
}

// embedServer returns a test embedding endpoint and a call counter.
func embedServer(t *testing.T, vector []float32) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req embedReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Texts) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(embedResp{Embeddings: [][]float32{vector}})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

// =============================================================================
// Embed Tests
// =============================================================================

func TestEmbed_ReturnsUnitNormalizedVector(t *testing.T) {
	srv, _ := embedServer(t, []float32{3, 4})

	client := NewEmbedClient(srv.URL, "test-model", nil, nil)
	vec, err := client.Embed(context.Background(), "factures impayees")
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}

	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	if math.Abs(math.Sqrt(sum)-1.0) > 1e-6 {
		t.Errorf("expected unit-length vector, got norm %f", math.Sqrt(sum))
	}
}

func TestEmbed_CacheHitSkipsService(t *testing.T) {
	srv, calls := embedServer(t, []float32{1, 0, 0})
	cache := newMapEmbeddingCache()

	client := NewEmbedClient(srv.URL, "test-model", cache, nil)

	if _, err := client.Embed(context.Background(), "clients lyon"); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Embed(context.Background(), "clients lyon"); err != nil {
		t.Fatal(err)
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 service call with warm cache, got %d", got)
	}
}

func TestEmbed_CacheKeyIncludesModel(t *testing.T) {
	a := EmbedCacheKey("model-a", "même texte")
	b := EmbedCacheKey("model-b", "même texte")
	if a == b {
		t.Error("cache keys for different models must differ")
	}
	if !strings.HasPrefix(a, embedCacheKeyPrefix) {
		t.Errorf("key missing prefix: %s", a)
	}
}

func TestEmbed_ServiceErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	client := NewEmbedClient(srv.URL, "test-model", nil, nil)
	if _, err := client.Embed(context.Background(), "question"); err == nil {
		t.Error("expected error on 503 response")
	}
}

func TestEmbed_EmptyVectorIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResp{Embeddings: [][]float32{}})
	}))
	t.Cleanup(srv.Close)

	client := NewEmbedClient(srv.URL, "test-model", nil, nil)
	if _, err := client.Embed(context.Background(), "question"); err == nil {
		t.Error("expected error on empty embedding")
	}
}
