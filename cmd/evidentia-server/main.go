// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

// Command evidentia-server runs the evidence management service: a
// content-addressed evidence catalog with hash-chained custody
// history, case management, and deterministic search, served over
// HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/evidentia-foundation/evidentia/lib/blobstore"
	"github.com/evidentia-foundation/evidentia/lib/caseindex"
	"github.com/evidentia-foundation/evidentia/lib/clock"
	"github.com/evidentia-foundation/evidentia/lib/config"
	"github.com/evidentia-foundation/evidentia/lib/custody"
	"github.com/evidentia-foundation/evidentia/lib/evidence"
	"github.com/evidentia-foundation/evidentia/lib/keymutex"
	"github.com/evidentia-foundation/evidentia/lib/search"
	"github.com/evidentia-foundation/evidentia/lib/storage"
	"github.com/evidentia-foundation/evidentia/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	pflag.StringVar(&configPath, "config", "", "path to the server configuration file (required)")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Println(version.Full())
		return nil
	}
	if configPath == "" {
		return errors.New("--config is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	pool, err := storage.Open(storage.Config{
		Path:     filepath.Join(cfg.DataDir, "catalog.db"),
		PoolSize: cfg.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("opening catalog database: %w", err)
	}
	defer pool.Close()

	blobs, err := blobstore.New(blobstore.Config{
		Root:        filepath.Join(cfg.DataDir, "blobs"),
		Compression: cfg.Compression,
		SealKey:     cfg.SealKey,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	clk := clock.Real()
	evidenceLocks := keymutex.New()
	ledger := custody.NewLedger(pool, evidenceLocks, clk, logger)
	store := evidence.NewStore(pool, ledger, evidenceLocks, clk, logger)
	cases := caseindex.NewIndex(pool, ledger, evidenceLocks, clk, logger)
	engine := search.NewEngine(pool, cases)

	server := NewServer(Deps{
		Evidence: store,
		Ledger:   ledger,
		Cases:    cases,
		Engine:   engine,
		Blobs:    blobs,
		TrustKey: cfg.TrustKey,
		Clock:    clk,
		Logger:   logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveDone := make(chan error, 1)
	go func() {
		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveDone <- err
	}()

	logger.Info("evidentia server running",
		"version", version.Info(),
		"addr", cfg.ListenAddr,
		"data_dir", cfg.DataDir,
		"compression", cfg.Compression,
		"sealed", cfg.SealKey != nil,
		"environment", cfg.Environment,
	)

	select {
	case err := <-serveDone:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("draining connections: %w", err)
	}
	return <-serveDone
}
