// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolver

// =============================================================================
// Request Types
// =============================================================================

// ResolveRequest is the body of POST /v1/resolve.
type ResolveRequest struct {
	// Question is the natural-language question in French.
	Question string `json:"question" binding:"required"`
}

// =============================================================================
// Response Types
// =============================================================================

// ErrorResponse is the standard error envelope for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// TemplateSummary describes one corpus entry in listing responses.
type TemplateSummary struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Parameters  []string `json:"parameters,omitempty"`
}

// ListTemplatesResponse is the body of GET /v1/resolve/corpus/templates.
type ListTemplatesResponse struct {
	Templates []TemplateSummary `json:"templates"`
	Count     int               `json:"count"`
}

// ReloadResponse is the body of POST /v1/resolve/corpus/reload.
type ReloadResponse struct {
	Templates int    `json:"templates"`
	Source    string `json:"source"`
}

// HealthResponse is the body of the health and readiness endpoints.
type HealthResponse struct {
	Status    string `json:"status"`
	Templates int    `json:"templates,omitempty"`
}
