// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package params extracts typed parameter values from a question and
// binds them into a template's placeholder tokens.
package params

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianResolve/services/resolver/corpus"
	"github.com/AleutianAI/AleutianResolve/services/resolver/textnorm"
)

// =============================================================================
// Type-Specific Patterns
// =============================================================================
//
// All patterns run against the FOLDED question: diacritics stripped and
// whitespace collapsed but case and punctuation preserved. Full
// normalization would destroy dates (2024-01-31, 31/01/2024), amounts
// (12,50 €) and the generic "name: value" form, and would lowercase
// proper nouns. Vocabulary matches are case-insensitive; captured values
// keep their original casing ("Lyon", not "lyon").

var (
	// CLIENT: a capitalized name after "client", "pour" or "de". The
	// lowercase fallback takes a single token so it cannot swallow the
	// rest of the sentence.
	clientAfterKeyword      = regexp.MustCompile(`\b[Cc]lient\s+([A-Z][\p{L}\d'-]*(?:\s+[A-Z][\p{L}\d'-]*)*)`)
	clientAfterKeywordLower = regexp.MustCompile(`\b[Cc]lient\s+([\p{L}\d'-]+)`)
	clientAfterPrep         = regexp.MustCompile(`\b(?:pour|de)\s+([A-Z][\p{L}\d'-]*(?:\s+[A-Z][\p{L}\d'-]*)*)`)

	// CITY: a capitalized name after "a" (folded "à"), "en", "sur" or "ville de".
	cityPattern = regexp.MustCompile(`\b(?:a|en|sur|ville de)\s+([A-Z][\p{L}'-]*(?:[\s-][A-Z][\p{L}'-]*)*)`)

	// ZIP: exactly five digits.
	zipPattern = regexp.MustCompile(`\b(\d{5})\b`)

	// DATE: ISO or French day-first form.
	dateISOPattern    = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	dateFrenchPattern = regexp.MustCompile(`\b(\d{2}/\d{2}/\d{4})\b`)

	// AMOUNT: a decimal with comma or dot separator before a currency marker.
	amountPattern = regexp.MustCompile(`(?i)\b(\d+(?:[.,]\d+)?)\s*(?:€|euros?|eur\b)`)

	// DAYS: an integer before "jour"/"jours".
	daysPattern = regexp.MustCompile(`(?i)\b(\d+)\s*jours?\b`)

	// PROJECT: a UUID first, else a name after "projet"/"chantier".
	uuidPattern        = regexp.MustCompile(`\b([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})\b`)
	projectNamePattern = regexp.MustCompile(`(?i)\b(?:projet|chantier)\s+([\p{L}\d][\p{L}\d'-]*)`)
)

// periodVocabulary maps folded French period words to the closed
// canonical set {month, quarter, year}.
var periodVocabulary = []struct {
	pattern   *regexp.Regexp
	canonical string
}{
	{regexp.MustCompile(`(?i)\btrimestres?\b`), "quarter"},
	{regexp.MustCompile(`(?i)\bmois\b`), "month"},
	{regexp.MustCompile(`(?i)\bannees?\b`), "year"},
	{regexp.MustCompile(`(?i)\ban\b`), "year"},
}

// statusVocabulary maps folded status words to their accented canonical
// form. Longer phrases come first so "en retard" wins over bare "retard".
var statusVocabulary = []struct {
	pattern   *regexp.Regexp
	canonical string
}{
	{regexp.MustCompile(`(?i)\ben retard\b`), "en retard"},
	{regexp.MustCompile(`(?i)\ben attente\b`), "en attente"},
	{regexp.MustCompile(`(?i)\bimpayees?\b|\bimpayes?\b`), "impayée"},
	{regexp.MustCompile(`(?i)\bnon payees?\b|\bnon payes?\b`), "impayée"},
	{regexp.MustCompile(`(?i)\bpayees?\b|\bpayes?\b`), "payée"},
	{regexp.MustCompile(`(?i)\bacceptees?\b|\bacceptes?\b`), "acceptée"},
	{regexp.MustCompile(`(?i)\brefusees?\b|\brefuses?\b`), "refusée"},
	{regexp.MustCompile(`(?i)\bbrouillons?\b`), "brouillon"},
	{regexp.MustCompile(`(?i)\benvoyees?\b|\benvoyes?\b`), "envoyée"},
}

// methodVocabulary maps folded payment method words to their accented
// canonical form.
var methodVocabulary = []struct {
	pattern   *regexp.Regexp
	canonical string
}{
	{regexp.MustCompile(`(?i)\bcheques?\b`), "chèque"},
	{regexp.MustCompile(`(?i)\bespeces\b`), "espèces"},
	{regexp.MustCompile(`(?i)\bvirements?\b`), "virement"},
	{regexp.MustCompile(`(?i)\bprelevements?\b`), "prélèvement"},
	{regexp.MustCompile(`(?i)\bcartes?\b`), "carte"},
}

// =============================================================================
// Extractor
// =============================================================================

// Extractor pulls typed parameter values out of question text.
//
// Description:
//
//	For each ParameterSpec declared on the selected template, the
//	extractor applies the pattern for the declared type against the
//	folded question. When no pattern matches, the declared default is
//	used; with neither a match nor a default, the parameter is omitted
//	and its placeholder stays literal in the resolved query.
//
//	Parameter names outside the known type set fall back to a generic
//	"name: value" pattern.
//
// Thread Safety: Safe for concurrent use (stateless beyond the logger).
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates a parameter extractor.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract builds the parameter map for one question and template.
//
// Inputs:
//
//	question - The raw question text (not normalized).
//	specs - The selected template's declared parameters.
//
// Outputs:
//
//	map[string]string - Parameter name → extracted or default value.
//	                    Specs with no value are absent from the map.
//
// Thread Safety: Safe for concurrent use.
func (e *Extractor) Extract(question string, specs []corpus.ParameterSpec) map[string]string {
	folded := textnorm.Fold(question)
	values := make(map[string]string, len(specs))

	for _, spec := range specs {
		value, ok := extractValue(folded, spec.Name)
		if !ok {
			if spec.Default == "" {
				e.logger.Debug("parameter unmatched and without default, leaving placeholder",
					slog.String("parameter", spec.Name),
				)
				continue
			}
			value = spec.Default
		}
		values[spec.Name] = value
	}
	return values
}

// extractValue applies the type-specific pattern for one parameter name.
func extractValue(folded, name string) (string, bool) {
	switch corpus.ParamType(name) {
	case corpus.ParamClient:
		if m := clientAfterKeyword.FindStringSubmatch(folded); m != nil {
			return strings.TrimSpace(m[1]), true
		}
		if m := clientAfterKeywordLower.FindStringSubmatch(folded); m != nil {
			return strings.TrimSpace(m[1]), true
		}
		if m := clientAfterPrep.FindStringSubmatch(folded); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	case corpus.ParamCity:
		if m := cityPattern.FindStringSubmatch(folded); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	case corpus.ParamZip:
		if m := zipPattern.FindStringSubmatch(folded); m != nil {
			return m[1], true
		}
	case corpus.ParamDate:
		if m := dateISOPattern.FindStringSubmatch(folded); m != nil {
			return m[1], true
		}
		if m := dateFrenchPattern.FindStringSubmatch(folded); m != nil {
			return m[1], true
		}
	case corpus.ParamPeriod:
		for _, entry := range periodVocabulary {
			if entry.pattern.MatchString(folded) {
				return entry.canonical, true
			}
		}
	case corpus.ParamStatus:
		for _, entry := range statusVocabulary {
			if entry.pattern.MatchString(folded) {
				return entry.canonical, true
			}
		}
	case corpus.ParamMethod:
		for _, entry := range methodVocabulary {
			if entry.pattern.MatchString(folded) {
				return entry.canonical, true
			}
		}
	case corpus.ParamAmount:
		if m := amountPattern.FindStringSubmatch(folded); m != nil {
			return strings.ReplaceAll(m[1], ",", "."), true
		}
	case corpus.ParamDays:
		if m := daysPattern.FindStringSubmatch(folded); m != nil {
			return m[1], true
		}
	case corpus.ParamProject:
		if m := uuidPattern.FindStringSubmatch(folded); m != nil {
			return m[1], true
		}
		if m := projectNamePattern.FindStringSubmatch(folded); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	default:
		return extractGeneric(folded, name)
	}
	return "", false
}

// extractGeneric matches the fallback "name: value" form.
func extractGeneric(folded, name string) (string, bool) {
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(name) + `\s*:\s*(\S+)`)
	if err != nil {
		return "", false
	}
	if m := re.FindStringSubmatch(folded); m != nil {
		return m[1], true
	}
	return "", false
}

// =============================================================================
// Hint Detection
// =============================================================================

// DetectHints reports which known parameter types appear extractable
// from the question. The scorer uses the result to boost candidates
// whose declared parameters match what the question actually carries.
//
// Thread Safety: Safe for concurrent use.
func DetectHints(question string) map[string]struct{} {
	folded := textnorm.Fold(question)
	hints := make(map[string]struct{})
	for _, pt := range corpus.KnownParamTypes() {
		if _, ok := extractValue(folded, string(pt)); ok {
			hints[string(pt)] = struct{}{}
		}
	}
	return hints
}
