// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command resolve runs the Aleutian Resolve service and client.
//
// Aleutian Resolve maps French natural-language questions to parameterized
// SQL templates using hybrid lexical plus semantic retrieval with
// LLM-arbitrated tie breaking.
//
// Usage:
//
//	resolve serve --corpus configs/corpus.yaml
//	resolve serve --corpus configs/corpus.yaml --port 9090 --debug
//	resolve ask "Quels sont les clients à Lyon ?"
//
// With semantic retrieval (requires Weaviate and an embedding service):
//
//	WEAVIATE_HOST=localhost:8080 EMBEDDING_SERVICE_URL=http://localhost:8001/embed \
//	  resolve serve --corpus configs/corpus.yaml
//
// Example requests:
//
//	# Resolve a question
//	curl -X POST http://localhost:8080/v1/resolve \
//	  -H "Content-Type: application/json" \
//	  -d '{"question": "Quelles sont les factures impayées ?"}'
//
//	# Reload the corpus after editing it
//	curl -X POST http://localhost:8080/v1/resolve/corpus/reload
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// version is stamped at build time with -ldflags.
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Map French questions to parameterized SQL templates",
		Long: "Aleutian Resolve maps French natural-language questions to SQL templates\n" +
			"using hybrid lexical and semantic retrieval.",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newAskCommand())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging installs the default slog logger.
//
// Terminals get human-readable text output, everything else gets JSON for
// log aggregation.
func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
