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
	"log/slog"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianResolve/services/resolver/corpus"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	hybridMergedCount = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "resolver",
		Subsystem: "hybrid",
		Name:      "merged_count",
		Help:      "Number of candidates after merge and cap",
		Buckets:   []float64{0, 1, 2, 3, 5, 8, 10},
	})

	hybridDegradedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "resolver",
		Subsystem: "hybrid",
		Name:      "degraded_total",
		Help:      "Requests served lexical-only because the semantic path failed",
	})
)

var hybridTracer = otel.Tracer("aleutian.resolver.retrieval")

// =============================================================================
// Searcher Interfaces
// =============================================================================

// LexicalSearcher is the in-process keyword search path.
type LexicalSearcher interface {
	Search(normalized string) []Candidate
}

// SemanticSearcher is the external nearest-neighbor search path.
type SemanticSearcher interface {
	Search(ctx context.Context, normalized string, limit int) ([]SemanticHit, error)
}

// =============================================================================
// HybridRetriever
// =============================================================================

// defaultSemanticTimeout bounds the semantic leg of a retrieve. On
// expiry the semantic path contributes an empty result rather than
// blocking the request.
const defaultSemanticTimeout = 8 * time.Second

// semanticOverfetchFactor multiplies the candidate cap into the
// nearest-neighbor result bound, leaving reranking headroom.
const semanticOverfetchFactor = 5

// HybridRetriever fans out to the lexical and semantic paths and merges
// their candidate lists.
//
// Description:
//
//	The lexical scan and the semantic call run concurrently, the semantic
//	leg under its own timeout. Results are merged with deduplication by
//	template queryText; when
//	both origins produce the same template, the semantic-origin distance
//	wins. The merged list is sorted ascending by distance (ties broken
//	by template ID) and capped.
//
//	A retriever is built per corpus snapshot and discarded on reload; it
//	holds no mutable state.
//
// Thread Safety: Safe for concurrent use.
type HybridRetriever struct {
	lexical         LexicalSearcher
	semantic        SemanticSearcher
	corpus          *corpus.Corpus
	semanticTimeout time.Duration
	maxCandidates   int
	logger          *slog.Logger
}

// NewHybridRetriever creates a retriever over one corpus snapshot.
//
// Inputs:
//
//	lexical - Keyword search path. Must not be nil.
//	semantic - Nearest-neighbor path. May be nil (lexical-only mode).
//	c - The corpus snapshot used to resolve semantic hits. Must not be nil.
//	maxCandidates - Cap on the merged list. Must be > 0.
//	logger - Logger. May be nil.
func NewHybridRetriever(lexical LexicalSearcher, semantic SemanticSearcher, c *corpus.Corpus, maxCandidates int, logger *slog.Logger) *HybridRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridRetriever{
		lexical:         lexical,
		semantic:        semantic,
		corpus:          c,
		semanticTimeout: defaultSemanticTimeout,
		maxCandidates:   maxCandidates,
		logger:          logger,
	}
}

// Retrieve merges lexical and semantic candidates for one question.
//
// Description:
//
//	Returns the merged, deduplicated, capped candidate list. A non-nil
//	error reports that the semantic path failed or timed out; the
//	returned candidates are then lexical-only and still usable. An
//	empty list with a nil error means neither path matched anything and
//	the pipeline short-circuits to a no-match result.
//
// Inputs:
//
//	ctx - Request context. Cancellation abandons the semantic call.
//	normalized - The question after full normalization.
//
// Outputs:
//
//	[]Candidate - Merged candidates, possibly empty.
//	error - Non-nil when the semantic path was unavailable.
//
// Thread Safety: Safe for concurrent use.
func (r *HybridRetriever) Retrieve(ctx context.Context, normalized string) ([]Candidate, error) {
	ctx, span := hybridTracer.Start(ctx, "retrieval.HybridRetriever.Retrieve")
	defer span.End()

	var (
		lexicalCandidates []Candidate
		semanticHits      []SemanticHit
		semanticErr       error
	)

	// Both legs fan out together. The semantic error stays out of the
	// group error so a failed semantic call never discards lexical work.
	var g errgroup.Group
	g.Go(func() error {
		lexicalCandidates = r.lexical.Search(normalized)
		return nil
	})
	if r.semantic != nil {
		semCtx, cancel := context.WithTimeout(ctx, r.semanticTimeout)
		defer cancel()
		g.Go(func() error {
			semanticHits, semanticErr = r.semantic.Search(semCtx, normalized, r.maxCandidates*semanticOverfetchFactor)
			return nil
		})
	}
	_ = g.Wait()

	if semanticErr != nil {
		hybridDegradedTotal.Inc()
		r.logger.Warn("semantic retrieval unavailable, continuing lexical-only",
			slog.String("error", semanticErr.Error()),
			slog.Int("lexical_candidates", len(lexicalCandidates)),
		)
	}

	merged := r.merge(lexicalCandidates, semanticHits)

	hybridMergedCount.Observe(float64(len(merged)))
	span.SetAttributes(
		attribute.Int("lexical_count", len(lexicalCandidates)),
		attribute.Int("semantic_count", len(semanticHits)),
		attribute.Int("merged_count", len(merged)),
		attribute.Bool("degraded", semanticErr != nil),
	)

	return merged, semanticErr
}

// merge deduplicates by template queryText, semantic distance winning,
// then sorts and caps the list.
func (r *HybridRetriever) merge(lexical []Candidate, hits []SemanticHit) []Candidate {
	byQuery := make(map[string]Candidate, len(lexical)+len(hits))

	for _, c := range lexical {
		byQuery[c.Template.QueryText] = c
	}

	for _, hit := range hits {
		tpl := r.corpus.Template(hit.TemplateID)
		if tpl == nil {
			// The index can lag behind a corpus reload.
			r.logger.Warn("semantic hit references unknown template, skipping",
				slog.String("template_id", hit.TemplateID),
			)
			continue
		}
		byQuery[tpl.QueryText] = Candidate{
			Template:        tpl,
			ExampleQuestion: hit.ExampleQuestion,
			Origin:          OriginSemantic,
			Distance:        hit.Distance,
		}
	}

	merged := make([]Candidate, 0, len(byQuery))
	for _, c := range byQuery {
		merged = append(merged, c)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Distance != merged[j].Distance {
			return merged[i].Distance < merged[j].Distance
		}
		return merged[i].Template.ID < merged[j].Template.ID
	})

	if len(merged) > r.maxCandidates {
		merged = merged[:r.maxCandidates]
	}
	return merged
}
