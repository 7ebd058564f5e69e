// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

// Package models defines the data model shared across the sync service:
// the persisted sync configuration, per-system filters, upstream
// credentials, activity log entries, and per-run result types.
//
// Persisted documents tolerate the two encodings produced by older
// dashboard builds: filter and field-mapping values may arrive either as
// native JSON objects or as JSON-encoded strings. DecodeMaybeJSON absorbs
// that ambiguity at the store boundary so every other package only ever
// sees native structures.
package models
