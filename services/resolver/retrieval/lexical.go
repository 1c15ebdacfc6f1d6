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
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianResolve/services/resolver/config"
	"github.com/AleutianAI/AleutianResolve/services/resolver/corpus"
	"github.com/AleutianAI/AleutianResolve/services/resolver/textnorm"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	lexicalLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "resolver",
		Subsystem: "lexical",
		Name:      "latency_seconds",
		Help:      "Lexical index search latency",
		Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01, 0.1},
	})

	lexicalCandidateCount = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "resolver",
		Subsystem: "lexical",
		Name:      "candidate_count",
		Help:      "Number of candidates returned per lexical search",
		Buckets:   []float64{0, 1, 2, 3, 5, 8, 10},
	})
)

// =============================================================================
// LexicalIndex
// =============================================================================

// lexicalDoc holds the precomputed searchable text for one template.
type lexicalDoc struct {
	template *corpus.QueryTemplate

	// tokenSet is the token set over all normalized examples + description.
	tokenSet map[string]struct{}

	// firstToken is the first token of the template's first example.
	firstToken string

	// exampleTokens holds, per example question, its token set. Indexes
	// align with template.ExampleQuestions.
	exampleTokens []map[string]struct{}
}

// LexicalIndex scores every template's example questions and description
// against a normalized question using weighted keyword overlap.
//
// Description:
//
//	All template text is normalized and tokenized once at build time, so
//	Search is a pure in-memory scan with no I/O. Scores come from the
//	scoring table: a per-keyword base weight (document-type words weigh
//	more than generic ones), a start-of-phrase bonus, and combination
//	bonuses for disambiguating keyword pairs. The final score is clamped
//	non-negative and converted into a distance so it composes with
//	semantic results: distance = 1 - min(score/scale, 1).
//
// Thread Safety: Safe for concurrent use (read-only after construction).
// A corpus reload builds a fresh index; the old one is discarded wholesale.
type LexicalIndex struct {
	docs []lexicalDoc
	tbl  *config.ScoringTable
}

// BuildLexicalIndex precomputes the searchable form of every template.
//
// Inputs:
//
//	c - The corpus to index. Must not be nil.
//	tbl - The scoring table supplying keyword weights and stopwords. Must not be nil.
//
// Outputs:
//
//	*LexicalIndex - Ready-to-search index. Never nil.
func BuildLexicalIndex(c *corpus.Corpus, tbl *config.ScoringTable) *LexicalIndex {
	templates := c.Templates()
	docs := make([]lexicalDoc, 0, len(templates))

	for _, tpl := range templates {
		doc := lexicalDoc{
			template:      tpl,
			tokenSet:      make(map[string]struct{}),
			exampleTokens: make([]map[string]struct{}, len(tpl.ExampleQuestions)),
		}

		for i, example := range tpl.ExampleQuestions {
			normalized := textnorm.Normalize(example)
			tokens := strings.Fields(normalized)
			if i == 0 && len(tokens) > 0 {
				doc.firstToken = tokens[0]
			}
			set := make(map[string]struct{}, len(tokens))
			for _, tok := range tokens {
				set[tok] = struct{}{}
				doc.tokenSet[tok] = struct{}{}
			}
			doc.exampleTokens[i] = set
		}

		for _, tok := range strings.Fields(textnorm.Normalize(tpl.Description)) {
			doc.tokenSet[tok] = struct{}{}
		}

		docs = append(docs, doc)
	}

	return &LexicalIndex{docs: docs, tbl: tbl}
}

// Search scores every template against the normalized question.
//
// Description:
//
//	Extracts significant keywords (tokens longer than 2 runes, minus
//	stopwords) from the normalized question and scores each template by
//	weighted keyword overlap. Templates with a zero score are omitted.
//	Results are sorted ascending by distance (ties broken by template ID)
//	and capped at the table's lexical max.
//
// Edge case: a question whose keywords are all stopwords yields zero
// candidates from this path. The semantic path still runs.
//
// Inputs:
//
//	normalized - The question after full normalization.
//
// Outputs:
//
//	[]Candidate - Lexical candidates, possibly empty. Never nil entries.
//
// Thread Safety: Safe for concurrent use.
func (idx *LexicalIndex) Search(normalized string) []Candidate {
	start := time.Now()

	keywords := textnorm.ExtractKeywords(normalized, idx.tbl.StopwordSet())
	if len(keywords) == 0 {
		lexicalLatency.Observe(time.Since(start).Seconds())
		lexicalCandidateCount.Observe(0)
		return nil
	}

	questionTokens := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		questionTokens[kw] = struct{}{}
	}

	var candidates []Candidate
	for i := range idx.docs {
		doc := &idx.docs[i]
		score := idx.scoreDoc(doc, keywords, questionTokens)
		if score <= 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			Template:        doc.template,
			ExampleQuestion: idx.matchedExample(doc, questionTokens),
			Origin:          OriginLexical,
			Distance:        scoreToDistance(score, idx.tbl.Lexical.Scale),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].Template.ID < candidates[j].Template.ID
	})

	if max := idx.tbl.Lexical.MaxCandidates; len(candidates) > max {
		candidates = candidates[:max]
	}

	lexicalLatency.Observe(time.Since(start).Seconds())
	lexicalCandidateCount.Observe(float64(len(candidates)))
	return candidates
}

// scoreDoc computes the weighted keyword overlap score for one template.
func (idx *LexicalIndex) scoreDoc(doc *lexicalDoc, keywords []string, questionTokens map[string]struct{}) float64 {
	var score float64

	// Base weight per question keyword present in the template text.
	for _, kw := range keywords {
		if _, ok := doc.tokenSet[kw]; ok {
			score += idx.tbl.KeywordWeight(kw)
		}
	}
	if score == 0 {
		return 0
	}

	// Start-of-phrase bonus when a listed keyword opens the template text.
	if doc.firstToken != "" {
		if _, asked := questionTokens[doc.firstToken]; asked {
			if _, listed := idx.tbl.Keywords[doc.firstToken]; listed {
				score += idx.tbl.Lexical.StartBonus
			}
		}
	}

	// Combination bonuses: one word from each side must co-occur in both
	// the question and the template text.
	for _, combo := range idx.tbl.Combinations {
		if containsAny(questionTokens, combo.First) && containsAny(questionTokens, combo.Second) &&
			containsAny(doc.tokenSet, combo.First) && containsAny(doc.tokenSet, combo.Second) {
			score += combo.Bonus
		}
	}

	if score < 0 {
		return 0
	}
	return score
}

// matchedExample picks the example question sharing the most tokens with
// the question, falling back to the first example.
func (idx *LexicalIndex) matchedExample(doc *lexicalDoc, questionTokens map[string]struct{}) string {
	bestIdx, bestOverlap := 0, -1
	for i, set := range doc.exampleTokens {
		overlap := 0
		for tok := range questionTokens {
			if _, ok := set[tok]; ok {
				overlap++
			}
		}
		if overlap > bestOverlap {
			bestIdx, bestOverlap = i, overlap
		}
	}
	if bestIdx < len(doc.template.ExampleQuestions) {
		return doc.template.ExampleQuestions[bestIdx]
	}
	return ""
}

// scoreToDistance converts a lexical score into a distance in [0,1].
func scoreToDistance(score, scale float64) float64 {
	normalized := score / scale
	if normalized > 1 {
		normalized = 1
	}
	return 1 - normalized
}

// containsAny reports whether any of the words is present in the token set.
func containsAny(tokens map[string]struct{}, words []string) bool {
	for _, w := range words {
		if _, ok := tokens[w]; ok {
			return true
		}
	}
	return false
}
