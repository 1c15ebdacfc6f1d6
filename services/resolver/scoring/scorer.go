// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scoring ranks retrieval candidates with a composite score and
// decides whether the top candidate can be accepted without arbitration.
// Every constant comes from the versioned scoring table; the code holds
// no magic numbers.
package scoring

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianResolve/services/resolver/config"
	"github.com/AleutianAI/AleutianResolve/services/resolver/retrieval"
	"github.com/AleutianAI/AleutianResolve/services/resolver/textnorm"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	scoringDecisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resolver",
		Subsystem: "scoring",
		Name:      "decision_total",
		Help:      "Confidence decisions by outcome",
	}, []string{"outcome"}) // direct_accept | arbitration | no_candidates

	scoringBestScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "resolver",
		Subsystem: "scoring",
		Name:      "best_score",
		Help:      "Best composite score per ranked request",
		Buckets:   []float64{0, 10, 20, 30, 50, 80, 120, 200},
	})
)

// =============================================================================
// ConfidenceScorer
// =============================================================================

// ConfidenceScorer computes the composite ranking score per candidate.
//
// Description:
//
//	score = keywordScore * W1
//	      + parameterTypeMatches * W2 + parameterTypeBonus
//	      - negationPenalty (on contradictory polarity markers)
//	      - min(distance * K, cap)
//
//	keywordScore sums the table weight of every question keyword present
//	in the candidate's indexed text. parameterTypeMatches counts declared
//	ParameterSpecs whose type was heuristically detected in the question
//	(detection itself lives in the params package). The polarity check
//	uses the full normalized token sets of both texts rather than the
//	keyword extraction, because several polarity markers (avec, sans,
//	non) are stopwords.
//
// Thread Safety: Safe for concurrent use (read-only after construction).
type ConfidenceScorer struct {
	tbl    *config.ScoringTable
	logger *slog.Logger
}

// NewConfidenceScorer creates a scorer over the given constant table.
func NewConfidenceScorer(tbl *config.ScoringTable, logger *slog.Logger) *ConfidenceScorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfidenceScorer{tbl: tbl, logger: logger}
}

// Rank scores every candidate and sorts them best-first.
//
// Description:
//
//	Returns a new slice; the input is not mutated. Candidates are sorted
//	descending by score, ties broken by ascending distance.
//
// Inputs:
//
//	normalized - The question after full normalization.
//	candidates - Merged retrieval candidates.
//	detectedTypes - Parameter type names detected in the question.
//
// Outputs:
//
//	[]retrieval.Candidate - Scored, sorted copy of the candidates.
//
// Thread Safety: Safe for concurrent use.
func (s *ConfidenceScorer) Rank(normalized string, candidates []retrieval.Candidate, detectedTypes map[string]struct{}) []retrieval.Candidate {
	if len(candidates) == 0 {
		return nil
	}

	questionTokens := tokenSet(normalized)
	questionKeywords := textnorm.ExtractKeywords(normalized, s.tbl.StopwordSet())

	ranked := make([]retrieval.Candidate, len(candidates))
	copy(ranked, candidates)

	for i := range ranked {
		ranked[i].Score = s.score(&ranked[i], questionTokens, questionKeywords, detectedTypes)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Distance < ranked[j].Distance
	})

	scoringBestScore.Observe(ranked[0].Score)
	return ranked
}

// score computes the composite score for one candidate.
func (s *ConfidenceScorer) score(c *retrieval.Candidate, questionTokens map[string]struct{}, questionKeywords []string, detectedTypes map[string]struct{}) float64 {
	w := s.tbl.Weights

	candidateText := textnorm.Normalize(c.ExampleQuestion + " " + c.Template.Description)
	candidateTokens := tokenSet(candidateText)

	var keywordScore float64
	for _, kw := range questionKeywords {
		if _, ok := candidateTokens[kw]; ok {
			keywordScore += s.tbl.KeywordWeight(kw)
		}
	}

	var paramMatches int
	for _, p := range c.Template.Parameters {
		if _, ok := detectedTypes[p.Name]; ok {
			paramMatches++
		}
	}

	score := keywordScore * w.KeywordWeight
	score += float64(paramMatches) * w.ParamTypeWeight
	if paramMatches > 0 {
		score += w.ParamTypeBonus
	}

	if s.polarityConflict(questionTokens, candidateTokens) {
		score -= w.NegationPenalty
	}

	distPenalty := c.Distance * w.DistancePenaltyFactor
	if distPenalty > w.DistancePenaltyCap {
		distPenalty = w.DistancePenaltyCap
	}
	score -= distPenalty

	return score
}

// polarityConflict reports whether the question and candidate sit on
// opposite sides of any polarity axis ("payée" vs "impayée", "avec" vs
// "sans"). A text mentioning both sides of an axis is ambiguous and does
// not trigger the penalty.
func (s *ConfidenceScorer) polarityConflict(questionTokens, candidateTokens map[string]struct{}) bool {
	for _, rule := range s.tbl.Negations {
		qPos := containsAny(questionTokens, rule.Positive)
		qNeg := containsAny(questionTokens, rule.Negative)
		cPos := containsAny(candidateTokens, rule.Positive)
		cNeg := containsAny(candidateTokens, rule.Negative)

		if qPos && !qNeg && cNeg && !cPos {
			return true
		}
		if qNeg && !qPos && cPos && !cNeg {
			return true
		}
	}
	return false
}

// =============================================================================
// Confidence Decision Rule
// =============================================================================

// Confident applies the direct-accept decision rule to a ranked list.
//
// Description:
//
//	Let best and second be the top two scores. The top candidate is
//	accepted without arbitration when best > minScore AND
//	best > second * marginRatio. A single candidate only needs the
//	absolute threshold. The rule is exact and deterministic.
//
// Inputs:
//
//	ranked - Candidates sorted by Rank. May be empty.
//
// Outputs:
//
//	bool - True when the top candidate is accepted directly.
//
// Thread Safety: Safe for concurrent use.
func (s *ConfidenceScorer) Confident(ranked []retrieval.Candidate) bool {
	if len(ranked) == 0 {
		scoringDecisionTotal.WithLabelValues("no_candidates").Inc()
		return false
	}

	th := s.tbl.Thresholds
	best := ranked[0].Score

	if best <= th.MinScore {
		scoringDecisionTotal.WithLabelValues("arbitration").Inc()
		return false
	}
	if len(ranked) > 1 {
		second := ranked[1].Score
		if best <= second*th.MarginRatio {
			scoringDecisionTotal.WithLabelValues("arbitration").Inc()
			return false
		}
	}

	scoringDecisionTotal.WithLabelValues("direct_accept").Inc()
	return true
}

// Confidence maps a composite score into [0,1].
func (s *ConfidenceScorer) Confidence(score float64) float64 {
	c := score / s.tbl.Thresholds.ConfidenceScale
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// =============================================================================
// Helpers
// =============================================================================

// tokenSet splits a normalized string into its token set.
func tokenSet(normalized string) map[string]struct{} {
	fields := strings.Fields(normalized)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// containsAny reports whether any of the words is present in the set.
func containsAny(tokens map[string]struct{}, words []string) bool {
	for _, w := range words {
		if _, ok := tokens[w]; ok {
			return true
		}
	}
	return false
}
