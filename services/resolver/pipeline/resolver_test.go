// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianResolve/services/resolver/arbiter"
	"github.com/AleutianAI/AleutianResolve/services/resolver/config"
	"github.com/AleutianAI/AleutianResolve/services/resolver/corpus"
	"github.com/AleutianAI/AleutianResolve/services/resolver/retrieval"
)

// =============================================================================
// Test Doubles
// =============================================================================

// failingArbiter fails the test if arbitration is ever invoked.
type failingArbiter struct {
	t *testing.T
}

func (f *failingArbiter) Choose(context.Context, string, []retrieval.Candidate) int {
	f.t.Error("arbitration must not be called for a direct accept")
	return 0
}

// recordingArbiter records the invocation and returns a fixed index.
type recordingArbiter struct {
	called bool
	choice int
}

func (r *recordingArbiter) Choose(_ context.Context, _ string, candidates []retrieval.Candidate) int {
	r.called = true
	if r.choice < len(candidates) {
		return r.choice
	}
	return 0
}

// stubCompletion feeds a canned response into a real Arbiter.
type stubCompletion struct {
	response string
}

func (s *stubCompletion) Complete(context.Context, string, int, float32) (string, error) {
	return s.response, nil
}

func pipelineCorpus(t *testing.T) *corpus.Corpus {
	t.Helper()
	c, err := corpus.NewCorpus([]*corpus.QueryTemplate{
		{
			ID:          "clients_by_city",
			QueryText:   "SELECT name, city FROM clients WHERE city LIKE '%[CITY]%'",
			Description: "Clients d'une ville",
			ExampleQuestions: []string{
				"Quels sont les clients à Lyon ?",
				"Liste des clients de la ville de Paris",
			},
			Parameters: []corpus.ParameterSpec{{Name: "CITY"}},
		},
		{
			ID:          "unpaid_invoices",
			QueryText:   "SELECT * FROM invoices WHERE status = 'impayée'",
			Description: "Factures impayées",
			ExampleQuestions: []string{
				"Quelles sont les factures impayées ?",
			},
		},
		{
			ID:          "client_list",
			QueryText:   "SELECT name FROM clients ORDER BY name",
			Description: "Liste des clients",
			ExampleQuestions: []string{
				"Liste des clients",
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func newTestResolver(t *testing.T, arb Arbitrator) *Resolver {
	t.Helper()
	tbl, err := config.GetScoringTable()
	if err != nil {
		t.Fatal(err)
	}
	return NewResolver(pipelineCorpus(t), tbl, nil, arb, nil)
}

// =============================================================================
// End-to-End Tests
// =============================================================================

func TestResolve_CityQuestionEndToEnd(t *testing.T) {
	r := newTestResolver(t, nil)

	result := r.Resolve(context.Background(), "Quels sont les clients à Lyon ?")

	if result.TemplateID != "clients_by_city" {
		t.Fatalf("expected clients_by_city, got %q", result.TemplateID)
	}
	if !strings.Contains(result.ResolvedQuery, "'%Lyon%'") {
		t.Errorf("expected '%%Lyon%%' in resolved query, got %q", result.ResolvedQuery)
	}
	if result.Confidence <= 0 {
		t.Errorf("expected positive confidence, got %f", result.Confidence)
	}
	if result.Parameters["CITY"] != "Lyon" {
		t.Errorf("expected CITY=Lyon, got %v", result.Parameters)
	}
	for _, alt := range result.Alternatives {
		if alt.TemplateID == result.TemplateID {
			t.Errorf("alternatives must exclude the chosen template, got %v", result.Alternatives)
		}
	}
	if len(result.Alternatives) > 2 {
		t.Errorf("expected at most 2 alternatives, got %d", len(result.Alternatives))
	}
}

func TestResolve_NoMatchYieldsEmptyResult(t *testing.T) {
	r := newTestResolver(t, nil)

	result := r.Resolve(context.Background(), "quelle est la capitale de l'Australie")

	if result.TemplateID != "" || result.ResolvedQuery != "" {
		t.Errorf("expected empty selection, got %+v", result)
	}
	if result.Confidence != 0 {
		t.Errorf("expected confidence 0, got %f", result.Confidence)
	}
	if len(result.Alternatives) != 0 {
		t.Errorf("expected no alternatives, got %v", result.Alternatives)
	}
}

// =============================================================================
// Arbitration Decision Tests
// =============================================================================

func TestResolve_DirectAcceptSkipsArbitration(t *testing.T) {
	r := newTestResolver(t, &failingArbiter{t: t})

	// Strong document-type and status keywords put the invoice template
	// far above the threshold with no runner-up in range.
	result := r.Resolve(context.Background(), "Quelles sont les factures impayées ?")

	if result.TemplateID != "unpaid_invoices" {
		t.Errorf("expected unpaid_invoices, got %q", result.TemplateID)
	}
}

func TestResolve_AmbiguousQuestionTriggersArbitration(t *testing.T) {
	arb := &recordingArbiter{choice: 1}
	r := newTestResolver(t, arb)

	// Generic vocabulary keeps every candidate below the absolute
	// threshold, forcing the arbitration path.
	result := r.Resolve(context.Background(), "liste des clients")

	if !arb.called {
		t.Fatal("expected arbitration to be called for an ambiguous question")
	}
	if result.TemplateID == "" {
		t.Error("expected a selection even on the arbitration path")
	}
}

func TestResolve_ArbiterFallbackKeepsTopPick(t *testing.T) {
	// A real arbiter with an unparseable completion must leave the
	// scorer's top pick in place.
	withFallback := newTestResolver(t, arbiter.NewArbiter(&stubCompletion{response: "aucune idée"}, nil))
	direct := newTestResolver(t, nil)

	question := "liste des clients"
	got := withFallback.Resolve(context.Background(), question)
	want := direct.Resolve(context.Background(), question)

	if got.TemplateID != want.TemplateID {
		t.Errorf("fallback selection %q differs from scorer top pick %q", got.TemplateID, want.TemplateID)
	}
}

// =============================================================================
// Corpus Swap Tests
// =============================================================================

func TestSetCorpus_SwapsWholesale(t *testing.T) {
	r := newTestResolver(t, nil)

	replacement, err := corpus.NewCorpus([]*corpus.QueryTemplate{
		{
			ID:               "quotes_by_status",
			QueryText:        "SELECT * FROM quotes WHERE status = '[STATUS]'",
			Description:      "Devis par statut",
			ExampleQuestions: []string{"Quels sont les devis acceptés ?"},
			Parameters:       []corpus.ParameterSpec{{Name: "STATUS"}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	r.SetCorpus(replacement)

	if r.Corpus().Template("clients_by_city") != nil {
		t.Error("old corpus still visible after swap")
	}

	result := r.Resolve(context.Background(), "Quels sont les devis acceptés ?")
	if result.TemplateID != "quotes_by_status" {
		t.Errorf("expected quotes_by_status from the new corpus, got %q", result.TemplateID)
	}
	if !strings.Contains(result.ResolvedQuery, "'acceptée'") {
		t.Errorf("expected extracted status bound into the query, got %q", result.ResolvedQuery)
	}
}

// =============================================================================
// Unbound Placeholder Tests
// =============================================================================

func TestResolve_UnboundPlaceholderStaysLiteral(t *testing.T) {
	tbl, err := config.GetScoringTable()
	if err != nil {
		t.Fatal(err)
	}
	c, err := corpus.NewCorpus([]*corpus.QueryTemplate{
		{
			ID:               "clients_by_city",
			QueryText:        "SELECT * FROM clients WHERE city LIKE '%[CITY]%'",
			Description:      "Clients d'une ville",
			ExampleQuestions: []string{"Quels sont les clients à Lyon ?"},
			Parameters:       []corpus.ParameterSpec{{Name: "CITY"}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	r := NewResolver(c, tbl, nil, nil, nil)

	// No city is extractable and CITY has no default.
	result := r.Resolve(context.Background(), "liste des clients habitant quelque part")

	if result.TemplateID != "clients_by_city" {
		t.Fatalf("expected clients_by_city, got %q", result.TemplateID)
	}
	if !strings.Contains(result.ResolvedQuery, "[CITY]") {
		t.Errorf("expected literal [CITY] placeholder, got %q", result.ResolvedQuery)
	}
	if _, ok := result.Parameters["CITY"]; ok {
		t.Error("unmatched parameter without default must be omitted")
	}
}
