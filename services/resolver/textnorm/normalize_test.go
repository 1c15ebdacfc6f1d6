// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package textnorm

import (
	"reflect"
	"testing"
)

// =============================================================================
// Normalize Tests
// =============================================================================

func TestNormalize_Basic(t *testing.T) {
	got := Normalize("Quelles sont les factures impayées du client Dupont ?")
	want := "quelles sont les factures impayees du client dupont"
	if got != want {
		t.Errorf("Normalize() = %q, want %q", got, want)
	}
}

func TestNormalize_PunctuationBecomesSpace(t *testing.T) {
	got := Normalize("devis,acceptés;2024")
	want := "devis acceptes 2024"
	if got != want {
		t.Errorf("Normalize() = %q, want %q", got, want)
	}
}

func TestNormalize_CollapsesWhitespace(t *testing.T) {
	got := Normalize("  liste \t des   clients  ")
	want := "liste des clients"
	if got != want {
		t.Errorf("Normalize() = %q, want %q", got, want)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"Quels sont les clients à Lyon ?",
		"Montant total des devis refusés — dernier trimestre !",
		"  déjà   normalisé  ",
		"chantier Château-d'Œx",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestNormalize_Empty(t *testing.T) {
	if got := Normalize(""); got != "" {
		t.Errorf("Normalize(\"\") = %q, want empty", got)
	}
	if got := Normalize("?! ,;"); got != "" {
		t.Errorf("Normalize(punct only) = %q, want empty", got)
	}
}

// =============================================================================
// Fold Tests
// =============================================================================

func TestFold_PreservesCaseAndPunctuation(t *testing.T) {
	got := Fold("Factures de Dupont du 31/01/2024, montant 12,50 €")
	want := "Factures de Dupont du 31/01/2024, montant 12,50 €"
	if got != want {
		t.Errorf("Fold() = %q, want %q", got, want)
	}
}

func TestFold_StripsDiacritics(t *testing.T) {
	got := Fold("Devis acceptés à Besançon")
	want := "Devis acceptes a Besancon"
	if got != want {
		t.Errorf("Fold() = %q, want %q", got, want)
	}
}

func TestFold_Idempotent(t *testing.T) {
	in := "  Chèque   reçu : 1 200,00 €  "
	once := Fold(in)
	if twice := Fold(once); once != twice {
		t.Errorf("Fold not idempotent: %q != %q", once, twice)
	}
}

// =============================================================================
// ExtractKeywords Tests
// =============================================================================

func TestExtractKeywords_DropsShortAndStopwords(t *testing.T) {
	stop := map[string]struct{}{"les": {}, "des": {}, "quelles": {}, "sont": {}}
	got := ExtractKeywords("quelles sont les factures impayees de dupont", stop)
	want := []string{"factures", "impayees", "dupont"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractKeywords() = %v, want %v", got, want)
	}
}

func TestExtractKeywords_Deduplicates(t *testing.T) {
	got := ExtractKeywords("factures factures client client", nil)
	want := []string{"factures", "client"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractKeywords() = %v, want %v", got, want)
	}
}

func TestExtractKeywords_Empty(t *testing.T) {
	if got := ExtractKeywords("", nil); len(got) != 0 {
		t.Errorf("expected no keywords for empty input, got %v", got)
	}
	if got := ExtractKeywords("le la de du", map[string]struct{}{"le": {}}); len(got) != 0 {
		t.Errorf("expected no keywords for short/stopword-only input, got %v", got)
	}
}
