// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

// Package platform defines the contract every upstream system client
// implements. The engine talks to platforms only through this interface,
// so adding a third system means one new subpackage, not engine changes.
package platform

import (
	"context"
	"errors"

	"github.com/synclinic/synclinic/internal/models"
)

// ErrUnsupportedCategory is returned by a platform for record categories
// it does not sync. The engine treats it as a per-category skip, never a
// run abort.
var ErrUnsupportedCategory = errors.New("unsupported record category")

// CredentialsSource resolves a system's credentials at call time. Clients
// must not cache the result across calls: credentials edited through the
// dashboard take effect on the next run, not the next restart.
type CredentialsSource interface {
	Get(ctx context.Context, system string) (*models.Credentials, error)
}

// Platform is one side of the synchronization. Records are schemaless
// maps because the two systems disagree on field naming and nesting; the
// mapping layer owns all translation.
type Platform interface {
	// Name returns the system name used in credentials and activity logs.
	Name() string

	// FetchRecords returns the records of one category, with the
	// platform's applicable filters already applied.
	FetchRecords(ctx context.Context, category string, filters models.Filters) ([]map[string]interface{}, error)

	// LookupByKey finds an existing record by its key field value.
	// Returns (nil, nil) when no record matches.
	LookupByKey(ctx context.Context, category, keyField, value string) (map[string]interface{}, error)

	// CreateRecord creates a record from a mapped target fragment.
	CreateRecord(ctx context.Context, category string, fragment map[string]interface{}) error

	// UpdateRecord applies a mapped fragment to the record previously
	// returned by LookupByKey.
	UpdateRecord(ctx context.Context, category string, existing, fragment map[string]interface{}) error
}
