// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolver exposes the question resolution pipeline over HTTP.
//
// The package wires the pipeline.Resolver into Gin handlers and owns the
// corpus reload endpoint. Handlers hold no per-request state and are safe
// for concurrent use.
package resolver

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianResolve/services/resolver/corpus"
	"github.com/AleutianAI/AleutianResolve/services/resolver/pipeline"
)

// Handlers holds the HTTP handlers for the resolve service.
type Handlers struct {
	resolver   *pipeline.Resolver
	corpusPath string
	logger     *slog.Logger
}

// NewHandlers creates a Handlers instance.
//
// Inputs:
//
//	r - The resolution pipeline. Must not be nil.
//	corpusPath - Path the reload endpoint reads the corpus from.
//	logger - Structured logger. Nil falls back to slog.Default().
func NewHandlers(r *pipeline.Resolver, corpusPath string, logger *slog.Logger) *Handlers {
	if r == nil {
		panic("resolver: pipeline must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{resolver: r, corpusPath: corpusPath, logger: logger}
}

// getOrCreateRequestID returns the request ID from the X-Request-ID header,
// generating one when the client did not send it.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// HandleResolve handles POST /v1/resolve.
//
// Description:
//
//	Resolves a French natural-language question to a parameterized SQL
//	template. The response always has status 200 when the request body
//	is well formed. A question no template covers yields an empty
//	selection with confidence 0 rather than an error.
//
// Response:
//
//	200 OK: pipeline.SelectionResult
//	400 Bad Request: Missing or empty question
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleResolve(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleResolve")

	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "question is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	result := h.resolver.Resolve(c.Request.Context(), req.Question)

	logger.Info("question resolved",
		slog.String("template_id", result.TemplateID),
		slog.Float64("confidence", result.Confidence),
	)
	c.JSON(http.StatusOK, result)
}

// HandleReloadCorpus handles POST /v1/resolve/corpus/reload.
//
// Description:
//
//	Re-reads the corpus file the service was started with and swaps it
//	into the pipeline. The swap is atomic: in-flight requests finish
//	against the corpus they started with. A corpus that fails to load
//	leaves the previous one serving.
//
// Response:
//
//	200 OK: ReloadResponse
//	500 Internal Server Error: Corpus file unreadable or invalid
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleReloadCorpus(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleReloadCorpus")

	loaded, err := corpus.Load(h.corpusPath)
	if err != nil {
		logger.Error("corpus reload failed",
			slog.String("path", h.corpusPath),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "failed to load corpus: " + err.Error(),
			Code:  pipeline.CodeCorpusLoadFailed,
		})
		return
	}
	h.resolver.SetCorpus(loaded)

	count := len(loaded.Templates())
	logger.Info("corpus reloaded",
		slog.String("path", h.corpusPath),
		slog.Int("templates", count),
	)
	c.JSON(http.StatusOK, ReloadResponse{Templates: count, Source: h.corpusPath})
}

// HandleListTemplates handles GET /v1/resolve/corpus/templates.
//
// Description:
//
//	Lists the identifiers, descriptions, and declared parameter names of
//	every template in the active corpus. Query texts are not included.
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleListTemplates(c *gin.Context) {
	templates := h.resolver.Corpus().Templates()

	resp := ListTemplatesResponse{
		Templates: make([]TemplateSummary, 0, len(templates)),
		Count:     len(templates),
	}
	for _, tpl := range templates {
		summary := TemplateSummary{
			ID:          tpl.ID,
			Description: tpl.Description,
		}
		for _, p := range tpl.Parameters {
			summary.Parameters = append(summary.Parameters, p.Name)
		}
		resp.Templates = append(resp.Templates, summary)
	}
	c.JSON(http.StatusOK, resp)
}

// HandleHealth handles GET /v1/resolve/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// HandleReady handles GET /v1/resolve/ready.
//
// Readiness requires a non-empty corpus to be loaded.
func (h *Handlers) HandleReady(c *gin.Context) {
	count := len(h.resolver.Corpus().Templates())
	if count == 0 {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "no corpus loaded"})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ready", Templates: count})
}
