// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/AleutianResolve/services/resolver"
	"github.com/AleutianAI/AleutianResolve/services/resolver/arbiter"
	"github.com/AleutianAI/AleutianResolve/services/resolver/config"
	"github.com/AleutianAI/AleutianResolve/services/resolver/corpus"
	"github.com/AleutianAI/AleutianResolve/services/resolver/pipeline"
	"github.com/AleutianAI/AleutianResolve/services/resolver/retrieval"
)

// serveOptions holds the flag values for the serve command.
type serveOptions struct {
	port        int
	corpusPath  string
	scoringPath string
	cacheDir    string
	debug       bool
	traceStdout bool
	noWatch     bool
}

func newServeCommand() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the resolve API server",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(opts)
		},
	}

	cmd.Flags().IntVar(&opts.port, "port", 8080, "Port to listen on")
	cmd.Flags().StringVar(&opts.corpusPath, "corpus", "configs/corpus.yaml", "Path to the corpus YAML file")
	cmd.Flags().StringVar(&opts.scoringPath, "scoring", "", "Path to a scoring table YAML (default: embedded table)")
	cmd.Flags().StringVar(&opts.cacheDir, "cache-dir", "", "Embedding cache directory (default: ~/.aleutian/cache/resolve)")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging and Gin debug mode")
	cmd.Flags().BoolVar(&opts.traceStdout, "trace-stdout", false, "Export OTel spans to stdout")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "Disable automatic corpus reload on file change")

	return cmd
}

func runServe(opts *serveOptions) error {
	setupLogging(opts.debug)
	logger := slog.Default()

	if opts.debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if opts.traceStdout {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("stdout trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		otel.SetTracerProvider(tp)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	// Scoring table and corpus are both required to serve. The corpus being
	// unreadable at startup is fatal; later reload failures are not.
	tbl, err := loadScoringTable(opts.scoringPath)
	if err != nil {
		return fmt.Errorf("scoring table: %w", err)
	}
	loaded, err := corpus.Load(opts.corpusPath)
	if err != nil {
		return pipeline.NewResolverError(pipeline.CodeCorpusLoadFailed, "startup corpus load failed", err)
	}
	logger.Info("corpus loaded",
		slog.String("path", opts.corpusPath),
		slog.Int("templates", len(loaded.Templates())),
	)

	// Embedding cache BadgerDB. Graceful degradation: without it every
	// embedding request goes to the embedding service.
	embedDB := openEmbedCache(opts.cacheDir, logger)
	if embedDB != nil {
		defer func() {
			if err := embedDB.Close(); err != nil {
				logger.Warn("failed to close embedding cache", slog.String("error", err.Error()))
			}
		}()
	}

	semantic := setupSemanticIndex(embedDB, logger)
	arb := setupArbiter(logger)

	r := pipeline.NewResolver(loaded, tbl, semantic, arb, logger)
	handlers := resolver.NewHandlers(r, opts.corpusPath, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("aleutian-resolve"))
	if opts.debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	resolver.RegisterRoutes(v1, handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !opts.noWatch {
		watcher := corpus.NewWatcher(opts.corpusPath, func() error {
			reloaded, loadErr := corpus.Load(opts.corpusPath)
			if loadErr != nil {
				return loadErr
			}
			r.SetCorpus(reloaded)
			return nil
		}, logger)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Warn("corpus watcher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting resolve server",
			slog.String("address", srv.Addr),
			slog.Bool("semantic", semantic != nil),
			slog.Bool("arbitration", arb != nil),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down resolve server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func loadScoringTable(path string) (*config.ScoringTable, error) {
	if path != "" {
		return config.LoadScoringTable(path)
	}
	return config.GetScoringTable()
}

// openEmbedCache opens the embedding cache BadgerDB. Returns nil when the
// cache directory is unavailable.
func openEmbedCache(dir string, logger *slog.Logger) *badger.DB {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			logger.Warn("no home directory, embedding cache disabled", slog.String("error", err.Error()))
			return nil
		}
		dir = filepath.Join(home, ".aleutian", "cache", "resolve")
	}

	badgerOpts := badger.DefaultOptions(dir)
	badgerOpts.Logger = nil
	db, err := badger.Open(badgerOpts)
	if err != nil {
		logger.Warn("embedding cache BadgerDB unavailable, caching disabled",
			slog.String("path", dir),
			slog.String("error", err.Error()),
		)
		return nil
	}
	logger.Info("embedding cache opened", slog.String("path", dir))
	return db
}

// setupSemanticIndex wires the Weaviate-backed semantic index when
// WEAVIATE_HOST is set. Without it the service runs lexical-only.
func setupSemanticIndex(embedDB *badger.DB, logger *slog.Logger) retrieval.SemanticSearcher {
	host := os.Getenv("WEAVIATE_HOST")
	if host == "" {
		logger.Info("WEAVIATE_HOST not set, semantic retrieval disabled")
		return nil
	}
	scheme := os.Getenv("WEAVIATE_SCHEME")
	if scheme == "" {
		scheme = "http"
	}

	client, err := weaviate.NewClient(weaviate.Config{Host: host, Scheme: scheme})
	if err != nil {
		logger.Warn("Weaviate client unavailable, semantic retrieval disabled",
			slog.String("host", host),
			slog.String("error", err.Error()),
		)
		return nil
	}

	var cache retrieval.EmbeddingCache
	if embedDB != nil {
		cache = retrieval.NewBadgerEmbeddingCache(embedDB, 0, logger)
	}
	embedder := retrieval.NewEmbedClient("", "", cache, logger)

	logger.Info("semantic retrieval enabled",
		slog.String("weaviate_host", host),
	)
	return retrieval.NewSemanticIndex(client, embedder, os.Getenv("WEAVIATE_CLASS"), logger)
}

// setupArbiter wires the LLM arbitration client when credentials or a local
// completion endpoint are configured. Without it ambiguous questions fall
// back to the top-scored candidate.
func setupArbiter(logger *slog.Logger) pipeline.Arbitrator {
	if os.Getenv("OPENAI_API_KEY") == "" && os.Getenv("COMPLETION_SERVICE_URL") == "" {
		logger.Info("no completion service configured, arbitration disabled")
		return nil
	}
	client := arbiter.NewOpenAIClient("", "", "", logger)
	return arbiter.NewArbiter(client, logger)
}
