// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package arbiter delegates ambiguous template choices to an external
// text-completion service. It is invoked only when the confidence
// scorer cannot accept its top candidate directly, and it can never
// fail a request: every error path falls back to the scorer's top pick.
package arbiter

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianResolve/services/resolver/retrieval"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	arbiterDecisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resolver",
		Subsystem: "arbiter",
		Name:      "decision_total",
		Help:      "Arbitration outcomes",
	}, []string{"outcome"}) // chosen | fallback

	arbiterLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "resolver",
		Subsystem: "arbiter",
		Name:      "latency_seconds",
		Help:      "Arbitration round-trip latency",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5},
	})
)

var arbiterTracer = otel.Tracer("aleutian.resolver.arbiter")

// =============================================================================
// Arbiter
// =============================================================================

const (
	// arbitrationTimeout bounds the completion call. On expiry the
	// scorer's top pick stands.
	arbitrationTimeout = 5 * time.Second

	// arbitrationMaxTokens is the output budget. The answer is a single
	// number; a handful of tokens is ample and bounds latency.
	arbitrationMaxTokens = 8

	// arbitrationTemperature keeps the choice deterministic.
	arbitrationTemperature float32 = 0.0
)

// firstIntegerPattern finds the first integer anywhere in the response.
var firstIntegerPattern = regexp.MustCompile(`\d+`)

// Arbiter chooses among top candidates via the completion service.
//
// Description:
//
//	Builds a compact prompt enumerating each candidate's example
//	question, asks for the number of the best match, and parses the
//	first integer in the response as a 1-based index. Any parse
//	failure, out-of-range index, transport error, or timeout falls back
//	to index 0 (the scorer's top pick). Fallback-on-any-error is a hard
//	contract: arbitration never fails a request.
//
// Thread Safety: Safe for concurrent use.
type Arbiter struct {
	client CompletionClient
	logger *slog.Logger
}

// NewArbiter creates an arbiter over the given completion client.
//
// Inputs:
//
//	client - Completion service adapter. Must not be nil.
//	logger - Logger. May be nil.
func NewArbiter(client CompletionClient, logger *slog.Logger) *Arbiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Arbiter{client: client, logger: logger}
}

// Choose returns the index of the selected candidate.
//
// Inputs:
//
//	ctx - Request context. A 5-second arbitration timeout is applied on top.
//	question - The raw question text.
//	candidates - Ranked candidates, best first. Must not be empty.
//
// Outputs:
//
//	int - Index into candidates. 0 (the scorer's top pick) on any failure.
//
// Thread Safety: Safe for concurrent use.
func (a *Arbiter) Choose(ctx context.Context, question string, candidates []retrieval.Candidate) int {
	if len(candidates) == 0 {
		return 0
	}

	start := time.Now()
	ctx, span := arbiterTracer.Start(ctx, "arbiter.Arbiter.Choose")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, arbitrationTimeout)
	defer cancel()

	prompt := buildPrompt(question, candidates)
	response, err := a.client.Complete(ctx, prompt, arbitrationMaxTokens, arbitrationTemperature)

	arbiterLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		a.fallback(span, "completion error", err.Error())
		return 0
	}

	index, ok := parseChoice(response, len(candidates))
	if !ok {
		a.fallback(span, "unparseable or out-of-range response", response)
		return 0
	}

	arbiterDecisionTotal.WithLabelValues("chosen").Inc()
	span.SetAttributes(attribute.Int("chosen_index", index))
	a.logger.Debug("arbitration chose candidate",
		slog.Int("index", index),
		slog.String("template_id", candidates[index].Template.ID),
	)
	return index
}

// fallback records a fallback-to-top decision.
func (a *Arbiter) fallback(span trace.Span, reason, detail string) {
	arbiterDecisionTotal.WithLabelValues("fallback").Inc()
	span.SetAttributes(
		attribute.Bool("fallback", true),
		attribute.String("fallback_reason", reason),
	)
	a.logger.Warn("arbitration fell back to the scorer's top pick",
		slog.String("reason", reason),
		slog.String("detail", truncate(detail, 120)),
	)
}

// buildPrompt enumerates the candidates' example questions.
func buildPrompt(question string, candidates []retrieval.Candidate) string {
	var b strings.Builder
	b.WriteString("Question de l'utilisateur : ")
	b.WriteString(question)
	b.WriteString("\n\nChoisis la question type qui correspond le mieux :\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c.ExampleQuestion)
	}
	b.WriteString("\nRéponds uniquement par le numéro du meilleur choix.")
	return b.String()
}

// parseChoice extracts the first integer in the response and validates
// it as a 1-based index into n candidates.
func parseChoice(response string, n int) (int, bool) {
	m := firstIntegerPattern.FindString(response)
	if m == "" {
		return 0, false
	}
	v, err := strconv.Atoi(m)
	if err != nil || v < 1 || v > n {
		return 0, false
	}
	return v - 1, true
}

// truncate shortens a string for log output.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
