// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/synclinic/synclinic/internal/engine"
	"github.com/synclinic/synclinic/internal/mapping"
	"github.com/synclinic/synclinic/internal/models"
	"github.com/synclinic/synclinic/internal/store"
	"github.com/synclinic/synclinic/internal/validation"
)

// Handler implements the dashboard endpoints. Configuration writes go
// through the debounced saver so bursts of dashboard edits collapse into
// one store write.
type Handler struct {
	Config      store.ConfigStore
	Saver       *store.DebouncedSaver
	Credentials store.CredentialsStore
	Activity    store.ActivityStore
	Runner      *engine.Runner
}

// HealthLive reports process liveness.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.NewAPIResponse(map[string]string{"status": "alive"}))
}

// HealthReady reports readiness: the store must answer. A missing
// configuration document is still ready; first-run deployments have none.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Config.Load(r.Context()); err != nil && !errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "store is not answering", err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewAPIResponse(map[string]string{"status": "ready"}))
}

// syncRunRequest is the optional body of POST /sync/run.
type syncRunRequest struct {
	Direction string `json:"direction" validate:"omitempty,oneof=bidirectional source_to_target target_to_source"`
}

// syncRunResponse summarizes a finished run for the dashboard.
type syncRunResponse struct {
	Direction string `json:"direction"`
	Created   int    `json:"created"`
	Updated   int    `json:"updated"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// SyncRun triggers a synchronization run. An optional body overrides the
// configured direction for this run only.
func (h *Handler) SyncRun(w http.ResponseWriter, r *http.Request) {
	var req syncRunRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", err)
			return
		}
		if err := validation.ValidateStruct(&req); err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
	}

	run, err := h.Runner.Run(r.Context(), mapping.Direction(req.Direction))
	switch {
	case errors.Is(err, engine.ErrSyncDisabled):
		respondError(w, http.StatusConflict, "SYNC_DISABLED", "sync is disabled in the configuration", nil)
		return
	case errors.Is(err, engine.ErrConfigurationMissing):
		respondError(w, http.StatusPreconditionFailed, "CONFIG_MISSING", "sync configuration not found", nil)
		return
	case errors.Is(err, engine.ErrCredentialsMissing):
		respondError(w, http.StatusPreconditionFailed, "CREDENTIALS_MISSING", "API keys not configured", err)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "SYNC_FAILED", "sync run failed", err)
		return
	}

	created, updated, skipped, failed := run.Counts()
	respondJSON(w, http.StatusOK, models.NewAPIResponse(syncRunResponse{
		Direction: run.Direction,
		Created:   created,
		Updated:   updated,
		Skipped:   skipped,
		Failed:    failed,
	}))
}

// GetSyncConfig returns the persisted sync configuration. When none has
// been saved yet it answers with the defaults the engine would use, so
// the dashboard always has something to render.
func (h *Handler) GetSyncConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Config.Load(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		cfg = &models.SyncConfig{
			SyncDirection: models.StoredDirectionBidirectional,
			FieldMapping:  mapping.Default(),
		}
		err = nil
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to load configuration", err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewAPIResponse(cfg))
}

// PutSyncConfig replaces the sync configuration. The write is debounced:
// rapid dashboard edits collapse into one persisted document, and the
// response is 202 because the write completes after the quiet window.
func (h *Handler) PutSyncConfig(w http.ResponseWriter, r *http.Request) {
	var cfg models.SyncConfig
	if err := decodeJSON(w, r, &cfg); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid configuration document", err)
		return
	}
	cfg.UpdatedAt = time.Now().UTC()
	h.Saver.Save(&cfg)
	respondJSON(w, http.StatusAccepted, models.NewAPIResponse(map[string]string{"status": "accepted"}))
}

// keyFieldRequest is the body of PUT /sync/config/key-field.
type keyFieldRequest struct {
	Category string `json:"category" validate:"required"`
	Field    string `json:"field" validate:"required"`
}

// PutKeyField designates the key field of one category. The swap is
// atomic: no intermediate state with zero or two key fields is ever
// persisted or observable.
func (h *Handler) PutKeyField(w http.ResponseWriter, r *http.Request) {
	var req keyFieldRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", err)
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	cfg, err := h.Config.Load(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		cfg = &models.SyncConfig{
			SyncDirection: models.StoredDirectionBidirectional,
			FieldMapping:  mapping.Default(),
		}
		err = nil
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to load configuration", err)
		return
	}
	if cfg.FieldMapping == nil {
		cfg.FieldMapping = mapping.Default()
	}

	if err := cfg.FieldMapping.SetKeyField(req.Category, req.Field); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "KEY_FIELD_REJECTED", err.Error(), nil)
		return
	}

	cfg.UpdatedAt = time.Now().UTC()
	h.Saver.Save(cfg)

	keyFields, _ := cfg.FieldMapping.ResolveKeyFields()
	respondJSON(w, http.StatusOK, models.NewAPIResponse(map[string]interface{}{
		"key_fields": keyFields,
	}))
}

// credentialsView is the redacted credential representation returned by
// the API. The key itself never leaves the store.
type credentialsView struct {
	System    string `json:"system"`
	BaseURL   string `json:"base_url"`
	AccountID string `json:"account_id,omitempty"`
	APIKeySet bool   `json:"api_key_set"`
}

// GetCredentials returns the redacted credential set for one system.
func (h *Handler) GetCredentials(w http.ResponseWriter, r *http.Request) {
	system := chi.URLParam(r, "system")
	creds, err := h.Credentials.Get(r.Context(), system)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "no credentials for system "+system, nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to load credentials", err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewAPIResponse(credentialsView{
		System:    creds.System,
		BaseURL:   creds.BaseURL,
		AccountID: creds.AccountID,
		APIKeySet: creds.Configured(),
	}))
}

// credentialsRequest is the body of PUT /credentials/{system}.
type credentialsRequest struct {
	BaseURL   string `json:"base_url" validate:"required,url"`
	APIKey    string `json:"api_key" validate:"required"`
	AccountID string `json:"account_id"`
}

// PutCredentials stores the credential set for one system.
func (h *Handler) PutCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", err)
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	creds := &models.Credentials{
		System:    chi.URLParam(r, "system"),
		BaseURL:   req.BaseURL,
		APIKey:    req.APIKey,
		AccountID: req.AccountID,
	}
	if err := h.Credentials.Put(r.Context(), creds); err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to store credentials", err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewAPIResponse(map[string]string{"status": "stored"}))
}

// ActivityLog returns the most recent activity log entries, newest first.
func (h *Handler) ActivityLog(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be between 1 and 500", nil)
			return
		}
		limit = parsed
	}

	entries, err := h.Activity.List(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to list activity", err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewAPIResponse(map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	}))
}
