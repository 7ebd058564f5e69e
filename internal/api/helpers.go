// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

package api

import (
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/synclinic/synclinic/internal/logging"
	"github.com/synclinic/synclinic/internal/models"
)

// maxRequestBody caps request bodies. Configuration documents are small;
// anything near this limit is malformed or hostile.
const maxRequestBody = 1 << 20

// respondJSON writes the uniform response envelope.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondError writes an error envelope and logs the underlying cause.
// The cause never reaches the client; only code and message do.
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().Err(err).Str("code", code).Msg(message)
	} else {
		logging.Warn().Str("code", code).Msg(message)
	}
	respondJSON(w, status, models.NewAPIError(code, message))
}

// decodeJSON decodes a request body into v with a size cap.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}
