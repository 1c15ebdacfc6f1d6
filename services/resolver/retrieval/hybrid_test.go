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
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/AleutianAI/AleutianResolve/services/resolver/corpus"
)

// =============================================================================
// Test Doubles
// =============================================================================

type stubLexical struct {
	candidates []Candidate
}

func (s *stubLexical) Search(string) []Candidate { return s.candidates }

type stubSemantic struct {
	hits []SemanticHit
	err  error
}

func (s *stubSemantic) Search(context.Context, string, int) ([]SemanticHit, error) {
	return s.hits, s.err
}

// =============================================================================
// Retrieve Tests
// =============================================================================

func TestHybridRetrieve_DeduplicatesByQueryText(t *testing.T) {
	c := testCorpus(t)
	tpl := c.Template("unpaid_invoices")

	lexical := &stubLexical{candidates: []Candidate{
		{Template: tpl, ExampleQuestion: tpl.ExampleQuestions[0], Origin: OriginLexical, Distance: 0.2},
	}}
	semantic := &stubSemantic{hits: []SemanticHit{
		{TemplateID: "unpaid_invoices", ExampleQuestion: tpl.ExampleQuestions[1], Distance: 0.4},
	}}

	r := NewHybridRetriever(lexical, semantic, c, 10, nil)
	merged, err := r.Retrieve(context.Background(), "factures impayees")
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}

	if len(merged) != 1 {
		t.Fatalf("expected 1 merged candidate, got %d", len(merged))
	}
	// The semantic distance wins even when it is worse than the lexical one.
	if merged[0].Origin != OriginSemantic {
		t.Errorf("expected semantic origin after dedupe, got %s", merged[0].Origin)
	}
	if merged[0].Distance != 0.4 {
		t.Errorf("expected semantic distance 0.4, got %f", merged[0].Distance)
	}
}

func TestHybridRetrieve_SemanticFailureDegradesToLexical(t *testing.T) {
	c := testCorpus(t)
	tpl := c.Template("clients_by_city")

	lexical := &stubLexical{candidates: []Candidate{
		{Template: tpl, ExampleQuestion: tpl.ExampleQuestions[0], Origin: OriginLexical, Distance: 0.3},
	}}
	semantic := &stubSemantic{err: errors.New("connection refused")}

	r := NewHybridRetriever(lexical, semantic, c, 10, nil)
	merged, err := r.Retrieve(context.Background(), "clients lyon")

	if err == nil {
		t.Error("expected a degraded-retrieval error")
	}
	if len(merged) != 1 || merged[0].Template.ID != "clients_by_city" {
		t.Errorf("expected the lexical candidate to survive, got %v", merged)
	}
}

func TestHybridRetrieve_BothEmptyReturnsEmpty(t *testing.T) {
	c := testCorpus(t)
	r := NewHybridRetriever(&stubLexical{}, &stubSemantic{}, c, 10, nil)

	merged, err := r.Retrieve(context.Background(), "rien de pertinent")
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if len(merged) != 0 {
		t.Errorf("expected empty result, got %d candidates", len(merged))
	}
}

func TestHybridRetrieve_NilSemanticRunsLexicalOnly(t *testing.T) {
	c := testCorpus(t)
	tpl := c.Template("unpaid_invoices")
	lexical := &stubLexical{candidates: []Candidate{
		{Template: tpl, Origin: OriginLexical, Distance: 0.1},
	}}

	r := NewHybridRetriever(lexical, nil, c, 10, nil)
	merged, err := r.Retrieve(context.Background(), "factures")
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if len(merged) != 1 {
		t.Errorf("expected 1 candidate, got %d", len(merged))
	}
}

func TestHybridRetrieve_SkipsUnknownTemplateHits(t *testing.T) {
	c := testCorpus(t)
	semantic := &stubSemantic{hits: []SemanticHit{
		{TemplateID: "deleted_template", ExampleQuestion: "ancien exemple", Distance: 0.1},
		{TemplateID: "unpaid_invoices", ExampleQuestion: "factures impayées", Distance: 0.2},
	}}

	r := NewHybridRetriever(&stubLexical{}, semantic, c, 10, nil)
	merged, err := r.Retrieve(context.Background(), "factures impayees")
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if len(merged) != 1 || merged[0].Template.ID != "unpaid_invoices" {
		t.Errorf("expected only the known template, got %v", merged)
	}
}

func TestHybridRetrieve_SortsAndCaps(t *testing.T) {
	templates := make([]*corpus.QueryTemplate, 0, 15)
	hits := make([]SemanticHit, 0, 15)
	for i := 0; i < 15; i++ {
		id := fmt.Sprintf("tpl_%02d", i)
		templates = append(templates, &corpus.QueryTemplate{
			ID:               id,
			QueryText:        fmt.Sprintf("SELECT %d", i),
			ExampleQuestions: []string{fmt.Sprintf("exemple %d", i)},
		})
		hits = append(hits, SemanticHit{
			TemplateID:      id,
			ExampleQuestion: fmt.Sprintf("exemple %d", i),
			Distance:        float64(15-i) / 100, // reverse order
		})
	}
	c, err := corpus.NewCorpus(templates)
	if err != nil {
		t.Fatal(err)
	}

	r := NewHybridRetriever(&stubLexical{}, &stubSemantic{hits: hits}, c, 10, nil)
	merged, err := r.Retrieve(context.Background(), "exemple")
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}

	if len(merged) != 10 {
		t.Fatalf("expected cap at 10, got %d", len(merged))
	}
	for i := 1; i < len(merged); i++ {
		if merged[i].Distance < merged[i-1].Distance {
			t.Errorf("not sorted ascending at index %d: %f after %f", i, merged[i].Distance, merged[i-1].Distance)
		}
	}
	// The nearest hit (tpl_14, distance 0.01) must survive the cap.
	if merged[0].Template.ID != "tpl_14" {
		t.Errorf("expected tpl_14 first, got %s", merged[0].Template.ID)
	}
}

func TestHybridRetrieve_TieBrokenByTemplateID(t *testing.T) {
	templates := []*corpus.QueryTemplate{
		{ID: "b_tpl", QueryText: "SELECT 2", ExampleQuestions: []string{"deux"}},
		{ID: "a_tpl", QueryText: "SELECT 1", ExampleQuestions: []string{"un"}},
	}
	c, err := corpus.NewCorpus(templates)
	if err != nil {
		t.Fatal(err)
	}
	semantic := &stubSemantic{hits: []SemanticHit{
		{TemplateID: "b_tpl", Distance: 0.5},
		{TemplateID: "a_tpl", Distance: 0.5},
	}}

	r := NewHybridRetriever(&stubLexical{}, semantic, c, 10, nil)
	merged, err := r.Retrieve(context.Background(), "un deux")
	if err != nil {
		t.Fatal(err)
	}
	if len(merged) != 2 || merged[0].Template.ID != "a_tpl" {
		t.Errorf("expected a_tpl first on distance tie, got %v", merged)
	}
}
