// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/synclinic/synclinic/internal/logging"
	"github.com/synclinic/synclinic/internal/metrics"
)

// requestLogger logs one line per completed request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logging.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

// prometheusMetrics records request counts and latency per route
// pattern. The chi route pattern keeps label cardinality bounded even
// with parameterized paths.
func prometheusMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		endpoint := chi.RouteContext(r.Context()).RoutePattern()
		if endpoint == "" {
			endpoint = r.URL.Path
		}
		metrics.APIRequestsTotal.
			WithLabelValues(r.Method, endpoint, strconv.Itoa(ww.Status())).
			Inc()
		metrics.APIRequestDuration.
			WithLabelValues(r.Method, endpoint).
			Observe(time.Since(start).Seconds())
	})
}
