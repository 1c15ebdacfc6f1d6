// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the versioned scoring table shared by the lexical
// index and the confidence scorer. The table is data, not code: every
// keyword weight, bonus, penalty, and threshold used by the ranking
// heuristics lives in one YAML document so the algorithm stays testable
// and tunable without code changes.
package config

import (
	"fmt"
	"os"
	"sync"

	_ "embed"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Default Scoring Table
// =============================================================================

//go:embed scoring_table.yaml
var defaultScoringTableYAML []byte

// =============================================================================
// Scoring Table Types
// =============================================================================

// ScoringTable is the complete constant table for candidate ranking.
//
// Description:
//
//	One authoritative table replaces the scattered magic numbers of earlier
//	heuristic iterations. Version is bumped whenever a constant changes in a
//	way that alters ranking behavior.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type ScoringTable struct {
	// Version identifies the constant set. Must be >= 1.
	Version int `yaml:"version"`

	// Weights are the composite-score multipliers and penalties.
	Weights Weights `yaml:"weights"`

	// Thresholds drive the direct-accept vs. arbitration decision.
	Thresholds Thresholds `yaml:"thresholds"`

	// Lexical holds the keyword-index specific constants.
	Lexical LexicalParams `yaml:"lexical"`

	// Keywords maps a normalized keyword to its base weight.
	Keywords map[string]float64 `yaml:"keywords"`

	// Combinations are co-occurring keyword pairs that earn an extra bonus.
	Combinations []CombinationBonus `yaml:"combinations"`

	// Negations are polarity pairs that trigger the negation penalty when
	// question and candidate sit on opposite sides.
	Negations []PolarityRule `yaml:"negations"`

	// Stopwords are discarded before keyword extraction.
	Stopwords []string `yaml:"stopwords"`

	// stopwordSet is built once after load.
	stopwordSet map[string]struct{}
}

// Weights are the composite-score multipliers and penalties of the scorer.
type Weights struct {
	// KeywordWeight (W1) multiplies the keyword overlap score.
	KeywordWeight float64 `yaml:"keyword_weight"`

	// ParamTypeWeight (W2) multiplies the declared-vs-detected parameter overlap count.
	ParamTypeWeight float64 `yaml:"param_type_weight"`

	// ParamTypeBonus is a flat bonus when any declared parameter type is detected.
	ParamTypeBonus float64 `yaml:"param_type_bonus"`

	// DistancePenaltyFactor scales the retrieval distance into a penalty.
	DistancePenaltyFactor float64 `yaml:"distance_penalty_factor"`

	// DistancePenaltyCap bounds the distance penalty.
	DistancePenaltyCap float64 `yaml:"distance_penalty_cap"`

	// NegationPenalty is subtracted on contradictory polarity markers.
	NegationPenalty float64 `yaml:"negation_penalty"`
}

// Thresholds drive the confidence decision rule.
type Thresholds struct {
	// MinScore is the absolute floor the best score must exceed.
	MinScore float64 `yaml:"min_score"`

	// MarginRatio is the required lead over the runner-up (best > second * ratio).
	MarginRatio float64 `yaml:"margin_ratio"`

	// ConfidenceScale maps the best score into [0,1]: confidence = best/scale, clamped.
	ConfidenceScale float64 `yaml:"confidence_scale"`
}

// LexicalParams are the keyword-index specific constants.
type LexicalParams struct {
	// DefaultKeywordWeight applies to question keywords absent from Keywords.
	DefaultKeywordWeight float64 `yaml:"default_keyword_weight"`

	// StartBonus applies when a weighted keyword opens the template text.
	StartBonus float64 `yaml:"start_bonus"`

	// Scale normalizes the lexical score into a distance: 1 - min(score/scale, 1).
	Scale float64 `yaml:"scale"`

	// MaxCandidates caps the lexical result list.
	MaxCandidates int `yaml:"max_candidates"`
}

// CombinationBonus is a disambiguating keyword pair.
type CombinationBonus struct {
	// First and Second are alternative spellings for each side of the pair.
	First  []string `yaml:"first"`
	Second []string `yaml:"second"`

	// Bonus is added when one word from each side co-occurs in both texts.
	Bonus float64 `yaml:"bonus"`
}

// PolarityRule names the two sides of a polarity axis (avec/sans, payee/impayee).
type PolarityRule struct {
	Positive []string `yaml:"positive"`
	Negative []string `yaml:"negative"`
}

// =============================================================================
// Loading
// =============================================================================

var (
	scoringTableMu      sync.RWMutex
	cachedScoringTable  *ScoringTable
	scoringTableLoadErr error
)

// GetScoringTable returns the cached default scoring table, loading the
// embedded YAML on first call.
//
// Outputs:
//
//	*ScoringTable - The loaded table. Never nil on success.
//	error - Non-nil if the embedded document fails to parse or validate.
//
// Thread Safety: Safe for concurrent use.
func GetScoringTable() (*ScoringTable, error) {
	scoringTableMu.RLock()
	if cachedScoringTable != nil || scoringTableLoadErr != nil {
		tbl, err := cachedScoringTable, scoringTableLoadErr
		scoringTableMu.RUnlock()
		return tbl, err
	}
	scoringTableMu.RUnlock()

	scoringTableMu.Lock()
	defer scoringTableMu.Unlock()
	if cachedScoringTable == nil && scoringTableLoadErr == nil {
		cachedScoringTable, scoringTableLoadErr = parseScoringTable(defaultScoringTableYAML)
	}
	return cachedScoringTable, scoringTableLoadErr
}

// LoadScoringTable loads a scoring table from a YAML file on disk,
// for deployments that tune the constants without rebuilding.
//
// Inputs:
//
//	path - Path to a YAML document with the same shape as the embedded default.
//
// Outputs:
//
//	*ScoringTable - The loaded table.
//	error - Non-nil on read, parse, or validation failure.
func LoadScoringTable(path string) (*ScoringTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scoring table %s: %w", path, err)
	}
	tbl, err := parseScoringTable(raw)
	if err != nil {
		return nil, fmt.Errorf("scoring table %s: %w", path, err)
	}
	return tbl, nil
}

// parseScoringTable unmarshals and validates a scoring table document.
func parseScoringTable(raw []byte) (*ScoringTable, error) {
	var tbl ScoringTable
	if err := yaml.Unmarshal(raw, &tbl); err != nil {
		return nil, fmt.Errorf("parse scoring table: %w", err)
	}
	if err := tbl.validate(); err != nil {
		return nil, err
	}
	tbl.stopwordSet = make(map[string]struct{}, len(tbl.Stopwords))
	for _, w := range tbl.Stopwords {
		tbl.stopwordSet[w] = struct{}{}
	}
	return &tbl, nil
}

// validate rejects tables that would make the decision rule degenerate.
func (t *ScoringTable) validate() error {
	if t.Version < 1 {
		return fmt.Errorf("scoring table: version must be >= 1, got %d", t.Version)
	}
	if t.Thresholds.MinScore <= 0 {
		return fmt.Errorf("scoring table: thresholds.min_score must be > 0")
	}
	if t.Thresholds.MarginRatio < 1.0 {
		return fmt.Errorf("scoring table: thresholds.margin_ratio must be >= 1.0, got %g", t.Thresholds.MarginRatio)
	}
	if t.Thresholds.ConfidenceScale <= 0 {
		return fmt.Errorf("scoring table: thresholds.confidence_scale must be > 0")
	}
	if t.Lexical.Scale <= 0 {
		return fmt.Errorf("scoring table: lexical.scale must be > 0")
	}
	if t.Lexical.MaxCandidates <= 0 {
		return fmt.Errorf("scoring table: lexical.max_candidates must be > 0")
	}
	if len(t.Keywords) == 0 {
		return fmt.Errorf("scoring table: keywords must not be empty")
	}
	return nil
}

// =============================================================================
// Accessors
// =============================================================================

// StopwordSet returns the stopwords as a set for keyword extraction.
//
// Thread Safety: The returned map is shared and must not be mutated.
func (t *ScoringTable) StopwordSet() map[string]struct{} {
	return t.stopwordSet
}

// KeywordWeight returns the base weight for a normalized keyword, falling
// back to the lexical default weight for unlisted keywords.
func (t *ScoringTable) KeywordWeight(keyword string) float64 {
	if w, ok := t.Keywords[keyword]; ok {
		return w
	}
	return t.Lexical.DefaultKeywordWeight
}
