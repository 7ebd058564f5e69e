// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

// Package api provides the dashboard HTTP surface using the Chi router:
// health probes, sync trigger, sync configuration, credentials, the
// activity log, and Prometheus metrics.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/synclinic/synclinic/internal/config"
)

// Router wires handlers into the HTTP mux.
type Router struct {
	cfg     config.ServerConfig
	handler *Handler
}

// NewRouter builds a router around the given handler set.
func NewRouter(cfg config.ServerConfig, handler *Handler) *Router {
	return &Router{cfg: cfg, handler: handler}
}

// Setup returns the fully configured HTTP handler.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: router.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Health probes get a permissive limit so monitoring never trips it.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, time.Minute))
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(router.cfg.RateLimitReqs, rateWindow(router.cfg.RateLimitWindow)))
		r.Use(prometheusMetrics)

		r.Post("/sync/run", router.handler.SyncRun)
		r.Get("/sync/config", router.handler.GetSyncConfig)
		r.Put("/sync/config", router.handler.PutSyncConfig)
		r.Put("/sync/config/key-field", router.handler.PutKeyField)
		r.Get("/credentials/{system}", router.handler.GetCredentials)
		r.Put("/credentials/{system}", router.handler.PutCredentials)
		r.Get("/activity", router.handler.ActivityLog)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

func rateWindow(window time.Duration) time.Duration {
	if window <= 0 {
		return time.Minute
	}
	return window
}
