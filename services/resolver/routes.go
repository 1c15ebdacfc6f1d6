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

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all resolve routes with the router.
//
// Description:
//
//	Registers all /v1/resolve/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/resolve - Resolve a question to a SQL template
//	POST /v1/resolve/corpus/reload - Reload the corpus from disk
//	GET  /v1/resolve/corpus/templates - List the active templates
//	GET  /v1/resolve/health - Health check
//	GET  /v1/resolve/ready - Readiness check
//
// Example:
//
//	r := pipeline.NewResolver(c, tbl, semantic, arb, logger)
//	handlers := resolver.NewHandlers(r, corpusPath, logger)
//
//	v1 := router.Group("/v1")
//	resolver.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	resolve := rg.Group("/resolve")
	{
		// Question resolution
		resolve.POST("", handlers.HandleResolve)

		// Corpus management
		resolve.POST("/corpus/reload", handlers.HandleReloadCorpus)
		resolve.GET("/corpus/templates", handlers.HandleListTemplates)

		// Health checks
		resolve.GET("/health", handlers.HandleHealth)
		resolve.GET("/ready", handlers.HandleReady)
	}
}
