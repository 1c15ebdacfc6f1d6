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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"time"
)

// embedRequestTimeout is the per-call embedding timeout. Embedding is on
// the hot path of every resolve request; 3 seconds is ample for a local
// sentence-transformer service.
const embedRequestTimeout = 3 * time.Second

// embedReq is the embedding service request body.
type embedReq struct {
	Texts []string `json:"texts"`
}

// embedResp is the embedding service response body.
type embedResp struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embedder turns question text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedClient calls the external embedding service over HTTP.
//
// Description:
//
//	The service accepts POST {"texts": [...]} and returns
//	{"embeddings": [[...], ...]}. Vectors are unit-normalized before
//	return so callers can treat dot products as cosine similarity.
//
//	When a cache is configured, vectors are looked up by
//	SHA256(model, text) before the HTTP call and persisted after it.
//	Cache failures are logged and absorbed; they never fail an Embed call.
//
// Inputs:
//
//	url - Embedding endpoint. "" reads EMBEDDING_SERVICE_URL, defaulting
//	      to http://localhost:8001/embed.
//	model - Model name used for cache keying. "" reads EMBEDDING_MODEL.
//	cache - Optional vector cache. Nil disables persistence.
//	logger - Logger. Must not be nil (slog.Default is substituted).
//
// Thread Safety: Safe for concurrent use.
type EmbedClient struct {
	url    string
	model  string
	client *http.Client
	cache  EmbeddingCache
	logger *slog.Logger
}

// NewEmbedClient creates an embedding service client.
func NewEmbedClient(url, model string, cache EmbeddingCache, logger *slog.Logger) *EmbedClient {
	if url == "" {
		url = os.Getenv("EMBEDDING_SERVICE_URL")
	}
	if url == "" {
		url = "http://localhost:8001/embed"
	}
	if model == "" {
		model = os.Getenv("EMBEDDING_MODEL")
	}
	if model == "" {
		model = "paraphrase-multilingual-MiniLM-L12-v2"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EmbedClient{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: embedRequestTimeout},
		cache:  cache,
		logger: logger,
	}
}

// Embed returns the unit-normalized embedding vector for one text.
//
// Outputs:
//
//	[]float32 - The vector. Never empty on success.
//	error - Non-nil on HTTP, decode, or empty-vector failure.
//
// Thread Safety: Safe for concurrent use.
func (c *EmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	key := EmbedCacheKey(c.model, text)

	if c.cache != nil {
		vec, err := c.cache.Load(ctx, key)
		if err != nil {
			c.logger.Warn("embedding cache load failed, calling service",
				slog.String("error", err.Error()),
			)
		} else if len(vec) > 0 {
			return vec, nil
		}
	}

	vec, err := c.callService(ctx, text)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Save(ctx, key, vec); err != nil {
			c.logger.Warn("embedding cache save failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return vec, nil
}

// callService performs the HTTP round-trip to the embedding endpoint.
func (c *EmbedClient) callService(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(embedReq{Texts: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed HTTP call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed service returned %d: %s", resp.StatusCode, string(body))
	}

	var decoded embedResp
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("parse embed response: %w", err)
	}
	if len(decoded.Embeddings) == 0 || len(decoded.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embed service returned empty vector")
	}

	return unitNormalize(decoded.Embeddings[0]), nil
}

// unitNormalize scales a vector to unit length. A zero vector is
// returned unchanged.
func unitNormalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / float32(norm)
	}
	return out
}
