// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

// Package store persists the sync configuration, upstream credentials, and
// the append-only activity log. Production deployments use the embedded
// BadgerDB implementation; memory implementations back tests and
// development.
//
// The configuration document is replaced atomically on save: a reader
// never observes a torn, field-by-field write. Activity entries are
// immutable once appended; retention is a deployment concern, not the
// engine's.
package store

import (
	"context"
	"errors"

	"github.com/synclinic/synclinic/internal/models"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("store: not found")

// ConfigStore holds the single sync configuration document.
type ConfigStore interface {
	// Load returns the sync configuration, or ErrNotFound when none has
	// been saved yet.
	Load(ctx context.Context) (*models.SyncConfig, error)

	// Save replaces the configuration document atomically.
	Save(ctx context.Context, cfg *models.SyncConfig) error
}

// CredentialsStore holds credential sets keyed by system name. A keyed
// store avoids baking a single-tenant, single-key assumption into the
// data model even while only two systems exist.
type CredentialsStore interface {
	// Get returns the credential set for a system, or ErrNotFound.
	Get(ctx context.Context, system string) (*models.Credentials, error)

	// Put stores a credential set under its system name.
	Put(ctx context.Context, creds *models.Credentials) error
}

// ActivityStore is the append-only activity log.
type ActivityStore interface {
	// Append persists an entry, assigning its ID and timestamp. Entries
	// are immutable once written.
	Append(ctx context.Context, entry models.ActivityEntry) (*models.ActivityEntry, error)

	// List returns up to limit entries, most recent first.
	List(ctx context.Context, limit int) ([]models.ActivityEntry, error)
}
