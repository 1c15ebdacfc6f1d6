// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package corpus

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// YAML Loader
// =============================================================================

// corpusFile is the on-disk YAML shape of the template corpus.
type corpusFile struct {
	Templates []*QueryTemplate `yaml:"templates" validate:"required,min=1,dive"`
}

// corpusValidator validates struct tags on load. The validator is stateless
// and safe for concurrent use.
var corpusValidator = validator.New(validator.WithRequiredStructEnabled())

// Load reads, parses, and validates a template corpus from a YAML file.
//
// Description:
//
//	A corpus-load failure at startup is the only fatal error class of the
//	resolver; per-request failures degrade. Load therefore rejects anything
//	structurally suspect: missing IDs or query text, templates without
//	example questions, duplicate IDs, duplicate parameter names, and
//	declared parameters whose placeholder never appears in the query text.
//
// Inputs:
//
//	path - Path to the corpus YAML file.
//
// Outputs:
//
//	*Corpus - The immutable corpus snapshot. Never nil on success.
//	error - Non-nil on read, parse, or validation failure.
func Load(path string) (*Corpus, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse builds a corpus from raw YAML bytes. Split out from Load for tests
// and for callers that fetch the corpus from somewhere other than a file.
func Parse(raw []byte) (*Corpus, error) {
	var file corpusFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse corpus: %w", err)
	}
	if err := corpusValidator.Struct(&file); err != nil {
		return nil, fmt.Errorf("validate corpus: %w", err)
	}
	for _, tpl := range file.Templates {
		if err := checkPlaceholders(tpl); err != nil {
			return nil, err
		}
	}
	return NewCorpus(file.Templates)
}

// checkPlaceholders verifies every declared parameter has a matching
// [NAME] token in the query text. A declared-but-absent parameter is a
// corpus authoring error; the reverse (a token with no declaration) is
// allowed and simply never gets bound.
func checkPlaceholders(tpl *QueryTemplate) error {
	for _, p := range tpl.Parameters {
		token := "[" + p.Name + "]"
		if !strings.Contains(tpl.QueryText, token) {
			return fmt.Errorf("corpus: template %q declares parameter %q but %s does not appear in the query text",
				tpl.ID, p.Name, token)
		}
	}
	return nil
}
