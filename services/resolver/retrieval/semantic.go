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
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	semanticLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "resolver",
		Subsystem: "semantic",
		Name:      "latency_seconds",
		Help:      "Nearest-neighbor search latency including embedding",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})

	semanticErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resolver",
		Subsystem: "semantic",
		Name:      "errors_total",
		Help:      "Semantic search failures by stage",
	}, []string{"stage"})
)

// =============================================================================
// OTel Tracer
// =============================================================================

var semanticTracer = otel.Tracer("aleutian.resolver.retrieval")

// =============================================================================
// SemanticIndex
// =============================================================================

// semanticSearchAttempts bounds the nearest-neighbor retry loop. The
// source of record here is the lexical path; two attempts with a fixed
// backoff is the hard ceiling before the request degrades.
const (
	semanticSearchAttempts = 2
	semanticRetryBackoff   = 300 * time.Millisecond
)

// SemanticIndex queries the external nearest-neighbor service.
//
// Description:
//
//	Embeds the normalized question, then runs a nearVector GraphQL Get
//	against the configured Weaviate class. Each object in the class is
//	one indexed example question carrying the owning template's ID.
//	Distance is 1 - cosineSimilarity as reported by the index.
//
//	The search is retried once on failure with a fixed backoff; after
//	that the error is returned and the caller continues lexical-only.
//	This path must never abort the overall pipeline.
//
// Thread Safety: Safe for concurrent use.
type SemanticIndex struct {
	client    *weaviate.Client
	embedder  Embedder
	className string
	logger    *slog.Logger
}

// NewSemanticIndex creates a nearest-neighbor search adapter.
//
// Inputs:
//
//	client - Weaviate client. Must not be nil.
//	embedder - Question vector source. Must not be nil.
//	className - Weaviate class holding indexed example questions.
//	            "" defaults to "TemplateExample".
//	logger - Logger. May be nil.
func NewSemanticIndex(client *weaviate.Client, embedder Embedder, className string, logger *slog.Logger) *SemanticIndex {
	if className == "" {
		className = "TemplateExample"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SemanticIndex{
		client:    client,
		embedder:  embedder,
		className: className,
		logger:    logger,
	}
}

// Search returns the nearest indexed example questions.
//
// Inputs:
//
//	ctx - Context carrying the per-request semantic timeout.
//	normalized - The question after full normalization.
//	limit - Result-count bound. Callers over-fetch beyond the final
//	        candidate cap to leave reranking headroom.
//
// Outputs:
//
//	[]SemanticHit - Raw hits, possibly empty.
//	error - Non-nil when embedding or all search attempts failed.
//
// Thread Safety: Safe for concurrent use.
func (s *SemanticIndex) Search(ctx context.Context, normalized string, limit int) ([]SemanticHit, error) {
	start := time.Now()
	ctx, span := semanticTracer.Start(ctx, "retrieval.SemanticIndex.Search")
	defer span.End()

	vector, err := s.embedder.Embed(ctx, normalized)
	if err != nil {
		semanticErrorsTotal.WithLabelValues("embed").Inc()
		return nil, fmt.Errorf("embed question: %w", err)
	}

	var resp *models.GraphQLResponse
	for attempt := 1; attempt <= semanticSearchAttempts; attempt++ {
		resp, err = s.query(ctx, vector, limit)
		if err == nil {
			break
		}
		semanticErrorsTotal.WithLabelValues("search").Inc()
		if attempt < semanticSearchAttempts {
			s.logger.Warn("semantic search failed, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			select {
			case <-time.After(semanticRetryBackoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("semantic search: %w", ctx.Err())
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("semantic search after %d attempts: %w", semanticSearchAttempts, err)
	}

	hits, err := s.parseHits(resp)
	if err != nil {
		semanticErrorsTotal.WithLabelValues("parse").Inc()
		return nil, err
	}

	semanticLatency.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("hit_count", len(hits)),
		attribute.Int("limit", limit),
	)
	return hits, nil
}

// query runs one nearVector Get against the class.
func (s *SemanticIndex) query(ctx context.Context, vector []float32, limit int) (*models.GraphQLResponse, error) {
	fields := []graphql.Field{
		{Name: "exampleQuestion"},
		{Name: "templateId"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	resp, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("nearVector query: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("nearVector query: %s", resp.Errors[0].Message)
	}
	return resp, nil
}

// parseHits extracts hits from the GraphQL response shape.
func (s *SemanticIndex) parseHits(resp *models.GraphQLResponse) ([]SemanticHit, error) {
	get, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("semantic response: missing Get block")
	}
	objects, ok := get[s.className].([]interface{})
	if !ok {
		// An empty class yields null; treat it as zero hits.
		return nil, nil
	}

	hits := make([]SemanticHit, 0, len(objects))
	for _, raw := range objects {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		hit := SemanticHit{
			TemplateID:      stringField(obj, "templateId"),
			ExampleQuestion: stringField(obj, "exampleQuestion"),
		}
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			if d, ok := additional["distance"].(float64); ok {
				hit.Distance = d
			}
		}
		if hit.TemplateID == "" {
			s.logger.Warn("semantic hit without templateId, skipping",
				slog.String("example", hit.ExampleQuestion),
			)
			continue
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// stringField reads a string property from a GraphQL object.
func stringField(obj map[string]interface{}, name string) string {
	if v, ok := obj[name].(string); ok {
		return v
	}
	return ""
}
