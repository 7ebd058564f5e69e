// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

// Package main is the entry point for the Synclinic server.
//
// Synclinic keeps contact records aligned between a CRM and a clinical
// intake system. It pulls records from each side, projects them through
// a configurable field mapping, and upserts them into the other side,
// matching records by a per-category key field.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered load (defaults, YAML file, env)
//  2. Store: embedded BadgerDB for sync config, credentials, activity log
//  3. Relay clients: rate-limited, circuit-breaking HTTP clients per system
//  4. Platform clients: the CRM and clinical-intake adapters
//  5. Engine: the sync runner wiring stores, platforms, and notifications
//  6. HTTP server: dashboard REST API plus Prometheus metrics
//
// # Configuration
//
// Bootstrap settings come from environment variables or config.yaml (see
// internal/config). Runtime sync settings (direction, filters, field
// mapping) live in the store and are edited through the API.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests (10s timeout), pending debounced configuration
// writes are flushed, and the store is closed last.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/synclinic/synclinic/internal/api"
	"github.com/synclinic/synclinic/internal/config"
	"github.com/synclinic/synclinic/internal/engine"
	"github.com/synclinic/synclinic/internal/logging"
	"github.com/synclinic/synclinic/internal/models"
	"github.com/synclinic/synclinic/internal/notify"
	"github.com/synclinic/synclinic/internal/platform/crm"
	"github.com/synclinic/synclinic/internal/platform/intake"
	"github.com/synclinic/synclinic/internal/relay"
	"github.com/synclinic/synclinic/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("addr", cfg.Server.Addr()).Msg("Starting Synclinic")

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close store")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seedCredentials(ctx, db, crm.SystemName, cfg.CRM)
	seedCredentials(ctx, db, intake.SystemName, cfg.Intake)

	// Platform clients read credentials from the store per call, so
	// dashboard credential edits apply to the next run.
	crmClient := crm.New(relay.NewClient(crm.SystemName, relay.Options{
		Timeout:        cfg.CRM.Timeout,
		RequestsPerSec: cfg.CRM.RequestsPerSec,
		MaxRetries:     cfg.CRM.MaxRetries,
	}), db)
	intakeClient := intake.New(relay.NewClient(intake.SystemName, relay.Options{
		Timeout:        cfg.Intake.Timeout,
		RequestsPerSec: cfg.Intake.RequestsPerSec,
		MaxRetries:     cfg.Intake.MaxRetries,
	}), db)

	notifier := notify.New()
	defer func() {
		if err := notifier.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close notifier")
		}
	}()

	runner := &engine.Runner{
		Config:      db,
		Credentials: db,
		Activity:    db,
		Source:      crmClient,
		Target:      intakeClient,
		Notifier:    notifier,
	}

	saver := store.NewDebouncedSaver(db, cfg.Store.DebounceWindow)
	defer saver.Close()

	handler := &api.Handler{
		Config:      db,
		Saver:       saver,
		Credentials: db,
		Activity:    db,
		Runner:      runner,
	}
	router := api.NewRouter(cfg.Server, handler)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		serverErr <- server.ListenAndServe()
	}()

	if cfg.Sync.Interval > 0 {
		go runPeriodicSync(ctx, runner, cfg.Sync.Interval)
	}

	select {
	case <-ctx.Done():
		logging.Info().Msg("Received shutdown signal")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("HTTP server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	logging.Info().Msg("Synclinic stopped")
}

// seedCredentials copies bootstrap credentials from process configuration
// into the store, but never overwrites credentials the dashboard already
// manages.
func seedCredentials(ctx context.Context, db *store.BadgerStore, system string, sys config.SystemConfig) {
	if sys.APIKey == "" {
		return
	}
	if _, err := db.Get(ctx, system); err == nil {
		return
	}
	creds := &models.Credentials{
		System:    system,
		BaseURL:   sys.BaseURL,
		APIKey:    sys.APIKey,
		AccountID: sys.AccountID,
	}
	if err := db.Put(ctx, creds); err != nil {
		logging.Error().Err(err).Str("system", system).Msg("Failed to seed credentials")
		return
	}
	logging.Info().Str("system", system).Msg("Seeded credentials from configuration")
}

// runPeriodicSync triggers a run on every tick. Disabled sync and
// missing configuration are normal states for scheduled runs, so they
// log at debug only; the engine logs the rest itself.
func runPeriodicSync(ctx context.Context, runner *engine.Runner, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logging.Info().Dur("interval", interval).Msg("Periodic sync enabled")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := runner.Run(ctx, "")
			switch {
			case err == nil:
			case errors.Is(err, engine.ErrSyncDisabled),
				errors.Is(err, engine.ErrConfigurationMissing):
				logging.Debug().Err(err).Msg("Periodic sync skipped")
			default:
				logging.Error().Err(err).Msg("Periodic sync failed")
			}
		}
	}
}
