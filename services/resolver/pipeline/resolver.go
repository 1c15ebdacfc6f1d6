// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline orchestrates the full question → template resolution
// flow: normalize, retrieve hybrid candidates, score, arbitrate when not
// confident, extract parameters, and instantiate the chosen template.
package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianResolve/services/resolver/config"
	"github.com/AleutianAI/AleutianResolve/services/resolver/corpus"
	"github.com/AleutianAI/AleutianResolve/services/resolver/params"
	"github.com/AleutianAI/AleutianResolve/services/resolver/retrieval"
	"github.com/AleutianAI/AleutianResolve/services/resolver/scoring"
	"github.com/AleutianAI/AleutianResolve/services/resolver/textnorm"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	resolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resolver",
		Subsystem: "pipeline",
		Name:      "resolve_total",
		Help:      "Resolutions by outcome",
	}, []string{"outcome"}) // resolved | no_match

	resolveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "resolver",
		Subsystem: "pipeline",
		Name:      "resolve_latency_seconds",
		Help:      "End-to-end resolution latency",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	corpusReloadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resolver",
		Subsystem: "pipeline",
		Name:      "corpus_reload_total",
		Help:      "Corpus reloads by result",
	}, []string{"result"})
)

var pipelineTracer = otel.Tracer("aleutian.resolver.pipeline")

// =============================================================================
// Result Types
// =============================================================================

// Alternative is one runner-up candidate in a SelectionResult.
type Alternative struct {
	TemplateID      string `json:"templateId"`
	ExampleQuestion string `json:"exampleQuestion"`
	Description     string `json:"description"`
}

// SelectionResult is the outcome of resolving one question.
//
// Description:
//
//	A no-match resolution is not an error: TemplateID and ResolvedQuery
//	are empty, Confidence is 0, Alternatives is empty. An unbound
//	placeholder stays as literal [NAME] text inside ResolvedQuery.
type SelectionResult struct {
	// TemplateID is the chosen template, or "" when nothing matched.
	TemplateID string `json:"templateId"`

	// ResolvedQuery is the template text with placeholders substituted.
	ResolvedQuery string `json:"resolvedQuery"`

	// Description is the chosen template's summary.
	Description string `json:"description"`

	// Confidence is in [0,1].
	Confidence float64 `json:"confidence"`

	// Parameters holds the extracted or defaulted values that were bound.
	Parameters map[string]string `json:"parameters,omitempty"`

	// Alternatives holds up to 2 runner-up candidates, never including
	// the chosen template.
	Alternatives []Alternative `json:"alternatives"`
}

// =============================================================================
// Resolver
// =============================================================================

// maxAlternatives bounds the runner-up list in a SelectionResult.
const maxAlternatives = 2

// arbitrationTopN bounds how many ranked candidates are offered to the
// arbiter. Beyond a handful the prompt grows without improving choices.
const arbitrationTopN = 5

// Arbitrator chooses among ranked candidates when the scorer is not
// confident. Implementations must fall back to index 0 on any failure.
type Arbitrator interface {
	Choose(ctx context.Context, question string, candidates []retrieval.Candidate) int
}

// snapshot pairs one corpus with the search structures derived from it.
// The pair swaps wholesale on reload so a request never sees a corpus
// and an index from different generations.
type snapshot struct {
	corpus    *corpus.Corpus
	retriever *retrieval.HybridRetriever
}

// Resolver runs the resolution pipeline.
//
// Description:
//
//	Each request reads the current snapshot once and uses it for its
//	whole lifetime; SetCorpus builds a complete new snapshot and swaps
//	it atomically. No lock is held across an external call.
//
// Thread Safety: Safe for concurrent use.
type Resolver struct {
	tbl       *config.ScoringTable
	scorer    *scoring.ConfidenceScorer
	extractor *params.Extractor
	arbiter   Arbitrator
	semantic  retrieval.SemanticSearcher
	logger    *slog.Logger

	current atomic.Pointer[snapshot]
}

// NewResolver wires the pipeline around an initial corpus.
//
// Inputs:
//
//	c - The corpus loaded at startup. Must not be nil.
//	tbl - The scoring table. Must not be nil.
//	semantic - Nearest-neighbor path. May be nil (lexical-only mode).
//	arb - Arbitration client. May be nil (scorer's top pick always stands).
//	logger - Logger. May be nil.
//
// Outputs:
//
//	*Resolver - Ready-to-serve resolver. Never nil.
func NewResolver(c *corpus.Corpus, tbl *config.ScoringTable, semantic retrieval.SemanticSearcher, arb Arbitrator, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		tbl:       tbl,
		scorer:    scoring.NewConfidenceScorer(tbl, logger),
		extractor: params.NewExtractor(logger),
		arbiter:   arb,
		semantic:  semantic,
		logger:    logger,
	}
	r.SetCorpus(c)
	return r
}

// SetCorpus swaps in a freshly loaded corpus.
//
// Description:
//
//	Builds the lexical index and hybrid retriever for the new corpus and
//	replaces the snapshot atomically. In-flight requests finish against
//	the snapshot they started with.
//
// Thread Safety: Safe for concurrent use.
func (r *Resolver) SetCorpus(c *corpus.Corpus) {
	lexical := retrieval.BuildLexicalIndex(c, r.tbl)
	snap := &snapshot{
		corpus:    c,
		retriever: retrieval.NewHybridRetriever(lexical, r.semantic, c, r.tbl.Lexical.MaxCandidates, r.logger),
	}
	r.current.Store(snap)
	corpusReloadTotal.WithLabelValues("ok").Inc()
	r.logger.Info("corpus snapshot swapped", slog.Int("templates", c.Len()))
}

// Corpus returns the current corpus snapshot.
func (r *Resolver) Corpus() *corpus.Corpus {
	return r.current.Load().corpus
}

// Resolve runs the full pipeline for one question.
//
// Description:
//
//	Control flow: normalize → hybrid retrieve → score → direct accept or
//	arbitrate → extract parameters → instantiate. Every external failure
//	degrades: a semantic outage leaves lexical candidates, an arbitration
//	failure leaves the scorer's top pick, and empty retrieval yields an
//	explicit no-match result. Resolve never returns an error for a
//	per-request failure.
//
// Inputs:
//
//	ctx - Request context. Cancellation abandons pending external calls.
//	question - The raw question text.
//
// Outputs:
//
//	SelectionResult - The resolution outcome. Zero-valued on no match.
//
// Thread Safety: Safe for concurrent use.
func (r *Resolver) Resolve(ctx context.Context, question string) SelectionResult {
	start := time.Now()
	ctx, span := pipelineTracer.Start(ctx, "pipeline.Resolver.Resolve")
	defer span.End()

	snap := r.current.Load()
	normalized := textnorm.Normalize(question)

	candidates, retrErr := snap.retriever.Retrieve(ctx, normalized)
	if retrErr != nil {
		// Diagnostic only: the request continues with what retrieval produced.
		rerr := NewResolverError(CodeRetrievalUnavailable, "semantic retrieval degraded", retrErr)
		r.logger.Warn("retrieval degraded",
			slog.String("code", CodeRetrievalUnavailable),
			slog.String("error", rerr.Error()),
		)
	}

	if len(candidates) == 0 {
		resolveTotal.WithLabelValues("no_match").Inc()
		resolveLatency.Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.Bool("no_match", true))
		r.logger.Info("no candidates for question",
			slog.String("code", CodeNoCandidates),
		)
		return SelectionResult{Confidence: 0, Alternatives: []Alternative{}}
	}

	hints := params.DetectHints(question)
	ranked := r.scorer.Rank(normalized, candidates, hints)

	chosenIdx := 0
	if !r.scorer.Confident(ranked) && r.arbiter != nil {
		top := ranked
		if len(top) > arbitrationTopN {
			top = top[:arbitrationTopN]
		}
		chosenIdx = r.arbiter.Choose(ctx, question, top)
	}
	chosen := ranked[chosenIdx]

	values := r.extractor.Extract(question, chosen.Template.Parameters)
	resolved := params.Instantiate(chosen.Template.QueryText, values)

	result := SelectionResult{
		TemplateID:    chosen.Template.ID,
		ResolvedQuery: resolved,
		Description:   chosen.Template.Description,
		Confidence:    r.scorer.Confidence(chosen.Score),
		Parameters:    values,
		Alternatives:  alternatives(ranked, chosenIdx),
	}

	resolveTotal.WithLabelValues("resolved").Inc()
	resolveLatency.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.String("template_id", result.TemplateID),
		attribute.Float64("confidence", result.Confidence),
		attribute.Int("candidate_count", len(ranked)),
		attribute.Int("chosen_index", chosenIdx),
	)
	r.logger.Info("question resolved",
		slog.String("template_id", result.TemplateID),
		slog.Float64("confidence", result.Confidence),
		slog.Int("alternatives", len(result.Alternatives)),
	)
	return result
}

// alternatives collects up to maxAlternatives runner-ups, excluding the
// chosen candidate.
func alternatives(ranked []retrieval.Candidate, chosenIdx int) []Alternative {
	alts := make([]Alternative, 0, maxAlternatives)
	for i, c := range ranked {
		if i == chosenIdx {
			continue
		}
		alts = append(alts, Alternative{
			TemplateID:      c.Template.ID,
			ExampleQuestion: c.ExampleQuestion,
			Description:     c.Template.Description,
		})
		if len(alts) == maxAlternatives {
			break
		}
	}
	return alts
}
