// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package corpus holds the pre-authored query templates the resolver
// matches questions against, plus their loader and the atomically-swapped
// store that makes corpus reloads safe under concurrent requests.
package corpus

import "fmt"

// =============================================================================
// Parameter Types
// =============================================================================

// ParamType is the closed set of semantic parameter types a template can
// declare. Unknown names fall back to the generic "name: value" extraction
// pattern rather than failing the load.
type ParamType string

const (
	ParamClient  ParamType = "CLIENT"
	ParamCity    ParamType = "CITY"
	ParamZip     ParamType = "ZIP"
	ParamDate    ParamType = "DATE"
	ParamPeriod  ParamType = "PERIOD"
	ParamStatus  ParamType = "STATUS"
	ParamMethod  ParamType = "METHOD"
	ParamAmount  ParamType = "AMOUNT"
	ParamDays    ParamType = "DAYS"
	ParamProject ParamType = "PROJECT"
)

// knownParamTypes is the set of types with a dedicated extraction pattern.
var knownParamTypes = map[ParamType]struct{}{
	ParamClient: {}, ParamCity: {}, ParamZip: {}, ParamDate: {}, ParamPeriod: {},
	ParamStatus: {}, ParamMethod: {}, ParamAmount: {}, ParamDays: {}, ParamProject: {},
}

// IsKnownParamType reports whether a parameter name has a dedicated
// type-specific extraction pattern.
func IsKnownParamType(name string) bool {
	_, ok := knownParamTypes[ParamType(name)]
	return ok
}

// KnownParamTypes returns the closed type set in declaration order.
func KnownParamTypes() []ParamType {
	return []ParamType{
		ParamClient, ParamCity, ParamZip, ParamDate, ParamPeriod,
		ParamStatus, ParamMethod, ParamAmount, ParamDays, ParamProject,
	}
}

// =============================================================================
// Template Model
// =============================================================================

// ParameterSpec declares one named placeholder of a template.
type ParameterSpec struct {
	// Name is the placeholder name as it appears inside brackets in QueryText.
	// Usually one of the ParamType constants; other names use generic extraction.
	Name string `yaml:"name" validate:"required"`

	// Description is a human-readable explanation of the parameter.
	Description string `yaml:"description"`

	// Default is substituted when extraction finds no value. Empty means no
	// default: the placeholder is then left unresolved in the output.
	Default string `yaml:"default"`
}

// QueryTemplate is one reusable, pre-vetted query with named placeholders.
//
// Description:
//
//	Templates are immutable once loaded. The corpus is rebuilt wholesale on
//	reload and swapped behind an atomic pointer; no template is ever patched
//	in place.
type QueryTemplate struct {
	// ID is the stable template identifier (e.g. "clients_by_city").
	ID string `yaml:"id" validate:"required"`

	// QueryText is the query with zero or more [NAME] placeholder tokens.
	QueryText string `yaml:"query" validate:"required"`

	// Description is a human-readable summary returned to callers.
	Description string `yaml:"description"`

	// ExampleQuestions are the phrasings indexed for retrieval, in order.
	ExampleQuestions []string `yaml:"examples" validate:"required,min=1,dive,required"`

	// Parameters declares the placeholders, unique by name.
	Parameters []ParameterSpec `yaml:"parameters" validate:"dive"`
}

// =============================================================================
// Corpus
// =============================================================================

// Corpus is an immutable snapshot of all loaded templates.
//
// Thread Safety: Immutable after construction; safe for concurrent reads.
type Corpus struct {
	templates []*QueryTemplate
	byID      map[string]*QueryTemplate
}

// NewCorpus builds a corpus from templates, indexing them by ID.
//
// Inputs:
//
//	templates - The loaded templates. Duplicate IDs are rejected.
//
// Outputs:
//
//	*Corpus - The immutable snapshot.
//	error - Non-nil on duplicate template IDs or duplicate parameter names.
func NewCorpus(templates []*QueryTemplate) (*Corpus, error) {
	byID := make(map[string]*QueryTemplate, len(templates))
	for _, tpl := range templates {
		if _, dup := byID[tpl.ID]; dup {
			return nil, fmt.Errorf("corpus: duplicate template id %q", tpl.ID)
		}
		seen := make(map[string]struct{}, len(tpl.Parameters))
		for _, p := range tpl.Parameters {
			if _, dup := seen[p.Name]; dup {
				return nil, fmt.Errorf("corpus: template %q declares parameter %q twice", tpl.ID, p.Name)
			}
			seen[p.Name] = struct{}{}
		}
		byID[tpl.ID] = tpl
	}
	return &Corpus{templates: templates, byID: byID}, nil
}

// Templates returns the templates in load order. The slice is shared and
// must not be mutated.
func (c *Corpus) Templates() []*QueryTemplate {
	return c.templates
}

// Template returns the template with the given ID, or nil.
func (c *Corpus) Template(id string) *QueryTemplate {
	return c.byID[id]
}

// Len returns the number of templates.
func (c *Corpus) Len() int {
	return len(c.templates)
}
