// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

package models

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/synclinic/synclinic/internal/mapping"
)

// Stored sync_direction values as written by the dashboard. Anything else
// (including the empty string) is treated as bidirectional.
const (
	StoredDirectionSourceToTarget = "one_way_source_to_target"
	StoredDirectionTargetToSource = "one_way_target_to_source"
	StoredDirectionBidirectional  = "bidirectional"
)

// Filters holds per-system inclusion lists. An empty list means no
// filtering for that dimension (sync all).
type Filters struct {
	ContactIDs []string `json:"contact_ids,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Statuses   []string `json:"statuses,omitempty"`
}

// Empty reports whether no inclusion list is configured.
func (f Filters) Empty() bool {
	return len(f.ContactIDs) == 0 && len(f.Tags) == 0 && len(f.Statuses) == 0
}

// AllowsContact reports whether the contact ID allow-list admits the given
// key value. An empty allow-list admits everything. Comparison is
// case-insensitive because contact keys are usually email addresses and
// email case is not semantically meaningful.
func (f Filters) AllowsContact(key string) bool {
	if len(f.ContactIDs) == 0 {
		return true
	}
	for _, id := range f.ContactIDs {
		if strings.EqualFold(id, key) {
			return true
		}
	}
	return false
}

// SyncConfig is the single persisted configuration document for the
// synchronizer: direction, per-system filters, the field mapping, and the
// master enable flag.
type SyncConfig struct {
	SyncDirection string                `json:"sync_direction"`
	SourceFilters Filters               `json:"source_filters"`
	TargetFilters Filters               `json:"target_filters"`
	FieldMapping  *mapping.FieldMapping `json:"field_mapping"`
	IsSyncEnabled bool                  `json:"is_sync_enabled"`
	UpdatedAt     time.Time             `json:"updated_at,omitempty"`
}

// EffectiveDirection translates the stored direction vocabulary into a run
// direction, honoring a caller-supplied override first.
func (c *SyncConfig) EffectiveDirection(override mapping.Direction) mapping.Direction {
	if override != "" {
		return override
	}
	switch c.SyncDirection {
	case StoredDirectionSourceToTarget:
		return mapping.DirectionSourceToTarget
	case StoredDirectionTargetToSource:
		return mapping.DirectionTargetToSource
	default:
		return mapping.DirectionBidirectional
	}
}

// syncConfigAlias avoids recursion in UnmarshalJSON while keeping the
// maybe-JSON fields raw for a second decode pass.
type syncConfigAlias struct {
	SyncDirection string          `json:"sync_direction"`
	SourceFilters json.RawMessage `json:"source_filters"`
	TargetFilters json.RawMessage `json:"target_filters"`
	FieldMapping  json.RawMessage `json:"field_mapping"`
	IsSyncEnabled bool            `json:"is_sync_enabled"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// UnmarshalJSON decodes a persisted configuration document, accepting the
// filter and field-mapping fields either as native JSON objects or as
// JSON-encoded strings.
func (c *SyncConfig) UnmarshalJSON(data []byte) error {
	var aux syncConfigAlias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	c.SyncDirection = aux.SyncDirection
	c.IsSyncEnabled = aux.IsSyncEnabled
	c.UpdatedAt = aux.UpdatedAt
	c.SourceFilters = Filters{}
	c.TargetFilters = Filters{}
	c.FieldMapping = nil

	if err := DecodeMaybeJSON(aux.SourceFilters, &c.SourceFilters); err != nil {
		return fmt.Errorf("decode source_filters: %w", err)
	}
	if err := DecodeMaybeJSON(aux.TargetFilters, &c.TargetFilters); err != nil {
		return fmt.Errorf("decode target_filters: %w", err)
	}

	if len(bytes.TrimSpace(aux.FieldMapping)) > 0 && string(aux.FieldMapping) != "null" {
		fm := mapping.New()
		if err := DecodeMaybeJSON(aux.FieldMapping, fm); err != nil {
			return fmt.Errorf("decode field_mapping: %w", err)
		}
		c.FieldMapping = fm
	}

	return nil
}

// DecodeMaybeJSON unmarshals raw into v, transparently handling values that
// were persisted as JSON-encoded strings instead of native structures.
// Null, empty, and empty-string values decode to nothing.
func DecodeMaybeJSON(raw json.RawMessage, v interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("unquote encoded value: %w", err)
		}
		s = strings.TrimSpace(s)
		if s == "" || s == "null" {
			return nil
		}
		return json.Unmarshal([]byte(s), v)
	}

	return json.Unmarshal(raw, v)
}

// Credentials is one keyed credential set for an upstream system. The store
// keys sets by system name so adding a second tenant or system never
// requires a data-model change.
type Credentials struct {
	System    string `json:"system"`
	BaseURL   string `json:"base_url"`
	APIKey    string `json:"api_key"`
	AccountID string `json:"account_id,omitempty"`
}

// Configured reports whether the credential set is usable for API calls.
func (c Credentials) Configured() bool {
	return c.APIKey != ""
}
