// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package arbiter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianResolve/services/resolver/corpus"
	"github.com/AleutianAI/AleutianResolve/services/resolver/retrieval"
)

// stubCompletion returns a fixed response or error.
type stubCompletion struct {
	response string
	err      error
	prompt   string
}

func (s *stubCompletion) Complete(_ context.Context, prompt string, _ int, _ float32) (string, error) {
	s.prompt = prompt
	return s.response, s.err
}

func testCandidates() []retrieval.Candidate {
	mk := func(id, example string) retrieval.Candidate {
		return retrieval.Candidate{
			Template:        &corpus.QueryTemplate{ID: id, QueryText: "SELECT 1", ExampleQuestions: []string{example}},
			ExampleQuestion: example,
		}
	}
	return []retrieval.Candidate{
		mk("unpaid_invoices", "Quelles sont les factures impayées ?"),
		mk("all_invoices", "Liste de toutes les factures"),
		mk("clients_by_city", "Quels sont les clients à Lyon ?"),
	}
}

// =============================================================================
// Choose Tests
// =============================================================================

func TestChoose_ParsesBareNumber(t *testing.T) {
	stub := &stubCompletion{response: "2"}
	a := NewArbiter(stub, nil)

	if got := a.Choose(context.Background(), "toutes les factures", testCandidates()); got != 1 {
		t.Errorf("Choose() = %d, want 1", got)
	}
}

func TestChoose_ParsesFirstIntegerInSentence(t *testing.T) {
	stub := &stubCompletion{response: "Le meilleur choix est le 3."}
	a := NewArbiter(stub, nil)

	if got := a.Choose(context.Background(), "clients de Lyon", testCandidates()); got != 2 {
		t.Errorf("Choose() = %d, want 2", got)
	}
}

func TestChoose_NonNumericFallsBackToTop(t *testing.T) {
	stub := &stubCompletion{response: "je ne sais pas"}
	a := NewArbiter(stub, nil)

	if got := a.Choose(context.Background(), "question", testCandidates()); got != 0 {
		t.Errorf("Choose() = %d, want fallback 0", got)
	}
}

func TestChoose_OutOfRangeFallsBackToTop(t *testing.T) {
	for _, response := range []string{"0", "4", "99"} {
		stub := &stubCompletion{response: response}
		a := NewArbiter(stub, nil)
		if got := a.Choose(context.Background(), "question", testCandidates()); got != 0 {
			t.Errorf("Choose() with response %q = %d, want fallback 0", response, got)
		}
	}
}

func TestChoose_TransportErrorFallsBackToTop(t *testing.T) {
	stub := &stubCompletion{err: errors.New("connection refused")}
	a := NewArbiter(stub, nil)

	if got := a.Choose(context.Background(), "question", testCandidates()); got != 0 {
		t.Errorf("Choose() = %d, want fallback 0", got)
	}
}

func TestChoose_PromptEnumeratesCandidates(t *testing.T) {
	stub := &stubCompletion{response: "1"}
	a := NewArbiter(stub, nil)

	a.Choose(context.Background(), "factures impayées", testCandidates())

	for _, fragment := range []string{
		"factures impayées",
		"1. Quelles sont les factures impayées ?",
		"2. Liste de toutes les factures",
		"3. Quels sont les clients à Lyon ?",
	} {
		if !strings.Contains(stub.prompt, fragment) {
			t.Errorf("prompt missing %q:\n%s", fragment, stub.prompt)
		}
	}
}

func TestChoose_EmptyCandidates(t *testing.T) {
	a := NewArbiter(&stubCompletion{response: "1"}, nil)
	if got := a.Choose(context.Background(), "question", nil); got != 0 {
		t.Errorf("Choose() = %d, want 0", got)
	}
}

// =============================================================================
// parseChoice Tests
// =============================================================================

func TestParseChoice(t *testing.T) {
	tests := []struct {
		response string
		n        int
		want     int
		ok       bool
	}{
		{"1", 3, 0, true},
		{"3", 3, 2, true},
		{"  2  ", 3, 1, true},
		{"choix numéro 2", 3, 1, true},
		{"0", 3, 0, false},
		{"4", 3, 0, false},
		{"", 3, 0, false},
		{"aucun", 3, 0, false},
	}
	for _, tt := range tests {
		got, ok := parseChoice(tt.response, tt.n)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseChoice(%q, %d) = (%d, %v), want (%d, %v)", tt.response, tt.n, got, ok, tt.want, tt.ok)
		}
	}
}
