// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

package models

import "time"

// ActivityStatus indicates the outcome recorded in an activity log entry.
type ActivityStatus string

const (
	ActivityStatusSuccess ActivityStatus = "success"
	ActivityStatusError   ActivityStatus = "error"
	ActivityStatusPending ActivityStatus = "pending"
)

// Activity entry types. Run-level entries use the sync.* types; record-level
// entries use the contact.* types so the log viewer can group them.
const (
	ActivityTypeSyncRun        = "sync.run"
	ActivityTypeSyncAborted    = "sync.aborted"
	ActivityTypeCategoryFailed = "sync.category_failed"

	ActivityTypeContactCreation = "contact.creation"
	ActivityTypeContactUpdate   = "contact.update"
	ActivityTypeRecordSkipped   = "record.skipped"
)

// FieldChange records a single field delta applied during an update.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value,omitempty"`
	NewValue string `json:"new_value,omitempty"`
}

// ActivityEntry is one immutable row in the append-only activity log.
// ID and Timestamp are assigned by the store on append; entries are never
// updated or deleted by the sync core (retention is a store concern).
type ActivityEntry struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	Type        string         `json:"type"`
	Status      ActivityStatus `json:"status"`
	Detail      string         `json:"detail"`
	Source      string         `json:"source,omitempty"`
	Destination string         `json:"destination,omitempty"`
	Error       string         `json:"error,omitempty"`
	Changes     []FieldChange  `json:"changes,omitempty"`
}

// RecordAction is the action the engine took for a single source record.
type RecordAction string

const (
	RecordCreated RecordAction = "created"
	RecordUpdated RecordAction = "updated"
	RecordSkipped RecordAction = "skipped"
	RecordFailed  RecordAction = "failed"
)

// RecordOutcome is the per-record result of a sync leg.
type RecordOutcome struct {
	Category string        `json:"category"`
	Key      string        `json:"key"`
	Action   RecordAction  `json:"action"`
	Error    string        `json:"error,omitempty"`
	Changes  []FieldChange `json:"changes,omitempty"`
}

// SyncRun captures the result of one engine invocation. It is ephemeral:
// the engine returns it to the caller and persists only activity entries.
type SyncRun struct {
	Direction           string            `json:"direction"`
	KeyFieldsByCategory map[string]string `json:"key_fields_by_category"`
	Results             []RecordOutcome   `json:"results"`
	StartedAt           time.Time         `json:"started_at"`
	FinishedAt          time.Time         `json:"finished_at"`
}

// Counts returns created/updated/skipped/failed totals for the run.
func (r *SyncRun) Counts() (created, updated, skipped, failed int) {
	for i := range r.Results {
		switch r.Results[i].Action {
		case RecordCreated:
			created++
		case RecordUpdated:
			updated++
		case RecordSkipped:
			skipped++
		case RecordFailed:
			failed++
		}
	}
	return created, updated, skipped, failed
}
