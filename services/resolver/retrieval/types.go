// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval finds candidate query templates for a normalized
// question. Two paths run side by side: an in-process lexical keyword
// index over the corpus and a nearest-neighbor search against an
// external vector index. The hybrid retriever merges the two lists.
package retrieval

import (
	"github.com/AleutianAI/AleutianResolve/services/resolver/corpus"
)

// =============================================================================
// Candidate Types
// =============================================================================

// Origin identifies which retrieval path produced a candidate.
type Origin string

const (
	// OriginLexical marks candidates from the in-process keyword index.
	OriginLexical Origin = "lexical"

	// OriginSemantic marks candidates from the nearest-neighbor service.
	OriginSemantic Origin = "semantic"
)

// Candidate is a template proposed as a possible match for one question.
//
// Description:
//
//	Transient per-request structure. Distance is a dissimilarity in [0,1]
//	where lower means more similar; Score is attached later by the
//	confidence scorer and is higher-is-better. Candidates are never
//	shared between requests.
type Candidate struct {
	// Template is the proposed query template. Never nil.
	Template *corpus.QueryTemplate

	// ExampleQuestion is the indexed phrasing this candidate matched.
	ExampleQuestion string

	// Origin names the retrieval path that produced the candidate.
	Origin Origin

	// Distance is the retrieval dissimilarity (lower = more similar).
	Distance float64

	// Score is the composite ranking score, set by the scorer.
	Score float64
}

// SemanticHit is one raw result from the nearest-neighbor service,
// before resolution against the corpus.
type SemanticHit struct {
	// TemplateID references the template the indexed example belongs to.
	TemplateID string

	// ExampleQuestion is the indexed example text that matched.
	ExampleQuestion string

	// Distance is 1 - cosineSimilarity against the question vector.
	Distance float64
}
