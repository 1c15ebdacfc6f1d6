// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package textnorm canonicalizes question text before any comparison.
//
// Every retrieval and scoring path must see the incoming question and the
// indexed example phrasings through the same normalization, otherwise the
// distances they produce are not comparable. Normalize is that single
// canonical form. Fold is the lighter variant used by parameter extraction,
// which must keep punctuation (dates, amounts, "name: value" syntax) and
// the original casing of extracted values intact.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// Normalization
// =============================================================================

// Normalize returns the canonical form of a question or example phrase:
// lowercased, diacritics stripped, punctuation replaced by spaces, and
// whitespace collapsed to single spaces.
//
// Normalize is a pure function and is idempotent:
// Normalize(Normalize(s)) == Normalize(s) for all s.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = stripDiacritics(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Fold strips diacritics and collapses whitespace but preserves case and
// punctuation. Parameter extraction matches against the fold of the raw
// question so that patterns like "31/01/2024", "12,50 €" and "ref: A-12"
// survive, and captured values keep their original casing ("Lyon").
//
// Fold is idempotent like Normalize.
func Fold(s string) string {
	s = stripDiacritics(s)
	return strings.Join(strings.Fields(s), " ")
}

// ExtractKeywords returns the significant keywords of a normalized string:
// tokens longer than 2 runes minus the provided stopword set. Order follows
// first appearance; duplicates are removed.
//
// The stopword set comes from the scoring table so that retrieval and
// confidence scoring agree on what counts as a keyword.
func ExtractKeywords(normalized string, stopwords map[string]struct{}) []string {
	fields := strings.Fields(normalized)
	seen := make(map[string]struct{}, len(fields))
	keywords := make([]string, 0, len(fields))
	for _, tok := range fields {
		if len([]rune(tok)) <= 2 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
	}
	return keywords
}

// =============================================================================
// Helpers
// =============================================================================

// diacriticsRemover decomposes to NFD, drops combining marks, and recomposes.
var diacriticsRemover = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// stripDiacritics removes combining marks: "payée" → "payee", "à" → "a".
// On transform failure the input is returned unchanged; the transform only
// fails on malformed UTF-8, which the callers treat as opaque bytes anyway.
func stripDiacritics(s string) string {
	out, _, err := transform.String(diacriticsRemover, s)
	if err != nil {
		return s
	}
	return out
}
