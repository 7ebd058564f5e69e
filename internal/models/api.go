// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

package models

import "time"

// APIResponse is the uniform JSON envelope for all dashboard endpoints.
type APIResponse struct {
	Status    string      `json:"status"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError carries a machine-readable code alongside the human message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAPIResponse wraps data in a success envelope.
func NewAPIResponse(data interface{}) *APIResponse {
	return &APIResponse{
		Status:    "success",
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// NewAPIError builds an error envelope.
func NewAPIError(code, message string) *APIResponse {
	return &APIResponse{
		Status:    "error",
		Error:     &APIError{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	}
}
