// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpAdapter "github.com/openresponses/inference-gw/pkg/adapters/http"
	"github.com/openresponses/inference-gw/pkg/core/config"
	"github.com/openresponses/inference-gw/pkg/core/engine"
	"github.com/openresponses/inference-gw/pkg/core/state"
	"github.com/openresponses/inference-gw/pkg/mcp"
	"github.com/openresponses/inference-gw/pkg/observability/logging"
	"github.com/openresponses/inference-gw/pkg/provider"
	"github.com/openresponses/inference-gw/pkg/storage/memory"
	"github.com/openresponses/inference-gw/pkg/storage/postgres"
	"github.com/openresponses/inference-gw/pkg/storage/sqlite"
	"github.com/openresponses/inference-gw/pkg/websearch"
)

var (
	// Version is set via ldflags during build
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	port := flag.Int("port", 8080, "HTTP port to listen on")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("Inference Gateway Server\nVersion: %s\nBuild Time: %s\n", Version, BuildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.Default()
	}
	if *port != 8080 {
		cfg.Server.Port = *port
	}

	// Initialize logger
	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logger.Info("Starting Inference Gateway Server",
		"version", Version,
		"build_time", BuildTime)
	if err != nil {
		logger.Warn("Failed to load config, using defaults", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize session storage
	var store state.SessionStore
	switch cfg.Storage.Type {
	case "sqlite":
		s, sErr := sqlite.New(cfg.Storage.Path)
		if sErr != nil {
			logger.Error("Failed to open sqlite store", "error", sErr, "path", cfg.Storage.Path)
			os.Exit(1)
		}
		defer s.Close()
		store = s
		logger.Info("Initialized sqlite storage", "path", cfg.Storage.Path)
	case "postgres":
		s, pErr := postgres.New(cfg.Storage.DSN)
		if pErr != nil {
			logger.Error("Failed to connect to postgres", "error", pErr)
			os.Exit(1)
		}
		defer s.Close()
		store = s
		logger.Info("Initialized postgres storage")
	default:
		store = memory.New()
		logger.Info("Initialized in-memory storage")
	}

	// Construct the provider pool from configured backends
	entries := make([]provider.PoolEntry, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		backend, bErr := provider.Backends.New(ctx, p.Type, map[string]string{
			"base_url": p.BaseURL,
			"api_key":  p.APIKey,
		})
		if bErr != nil {
			logger.Error("Failed to initialize provider", "error", bErr, "name", p.Name, "type", p.Type)
			os.Exit(1)
		}
		entries = append(entries, provider.PoolEntry{Name: p.Name, Provider: backend})
		logger.Info("Initialized provider", "name", p.Name, "type", p.Type)
	}
	pool := provider.NewPool(entries, logger)

	opts := engine.Options{Logger: logger}

	// Web search provider (optional)
	if cfg.WebSearch.Provider != "" {
		search, wsErr := websearch.Providers.New(ctx, cfg.WebSearch.Provider, map[string]string{
			"api_key": cfg.WebSearch.APIKey,
		})
		if wsErr != nil {
			logger.Error("Failed to initialize web search provider", "error", wsErr, "provider", cfg.WebSearch.Provider)
			os.Exit(1)
		}
		opts.WebSearch = search
		logger.Info("Initialized web search provider", "provider", cfg.WebSearch.Provider)
	}

	// MCP servers (optional)
	if len(cfg.MCP) > 0 {
		mgr := mcp.NewManager(cfg.MCP, logger)
		opts.MCP = mgr
		logger.Info("Initialized MCP manager", "servers", mgr.Labels())
	}

	eng, err := engine.New(pool, store, opts)
	if err != nil {
		logger.Error("Failed to initialize engine", "error", err)
		os.Exit(1)
	}
	logger.Info("Initialized engine")

	handler := httpAdapter.New(eng, pool, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Server listening", "address", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
		os.Exit(1)
	}

	// Let detached persistence finish before exiting.
	eng.Wait()

	logger.Info("Server stopped gracefully")
}
