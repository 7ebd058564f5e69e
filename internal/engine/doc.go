// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

// Package engine orchestrates synchronization runs between the CRM and
// the clinical-intake system.
//
// A run is pull-project-upsert: fetch records from the origin platform,
// project each through the configured field mapping, look up the
// counterpart by key field on the destination, then update or create.
// Record failures are isolated: one bad record logs an error activity
// entry and the run continues. Only missing configuration or credentials
// abort a run, and both abort before any network traffic.
package engine
