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

import "fmt"

// =============================================================================
// Error Taxonomy
// =============================================================================
//
// Per-request failures are absorbed into a degraded result; the codes
// exist so logs, metrics, and API error bodies agree on naming. Only a
// corpus load failure at startup is fatal to the service.

const (
	// CodeRetrievalUnavailable marks a retrieval path failure. Never
	// fatal: the request degrades to the other path or to no candidates.
	CodeRetrievalUnavailable = "RETRIEVAL_UNAVAILABLE"

	// CodeNoCandidates marks both retrieval paths returning empty. The
	// request yields an explicit empty result with confidence 0.
	CodeNoCandidates = "NO_CANDIDATES"

	// CodeArbitrationFailed marks an arbitration parse/timeout/transport
	// failure, always recovered locally by the scorer's top pick.
	CodeArbitrationFailed = "ARBITRATION_FAILED"

	// CodeCorpusLoadFailed marks a corpus parse or validation failure.
	CodeCorpusLoadFailed = "CORPUS_LOAD_FAILED"
)

// ResolverError is an error carrying one of the taxonomy codes.
type ResolverError struct {
	// Code is one of the Code* constants.
	Code string

	// Message is a human-readable description.
	Message string

	// Err is the wrapped cause, if any.
	Err error
}

// Error implements the error interface.
func (e *ResolverError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *ResolverError) Unwrap() error {
	return e.Err
}

// NewResolverError creates a coded error wrapping an optional cause.
func NewResolverError(code, message string, err error) *ResolverError {
	return &ResolverError{Code: code, Message: message, Err: err}
}
