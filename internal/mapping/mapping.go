// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

package mapping

import (
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
)

// Direction constrains when a field (or a whole run) applies.
type Direction string

const (
	DirectionBidirectional  Direction = "bidirectional"
	DirectionSourceToTarget Direction = "source_to_target"
	DirectionTargetToSource Direction = "target_to_source"
)

// appliesOn reports whether a field with this direction participates in a
// run with the given direction. Bidirectional fields apply on any run; a
// one-way field applies only on runs of the same direction (a
// bidirectional run includes both legs, so every direction applies).
func (d Direction) appliesOn(run Direction) bool {
	if d == DirectionBidirectional || d == "" {
		return true
	}
	if run == DirectionBidirectional {
		return true
	}
	return d == run
}

// Record categories known at first configuration load. The mapping is
// extensible: the dashboard may add further categories.
const (
	CategoryContact     = "contact"
	CategoryAppointment = "appointment"
	CategoryForm        = "form"
)

// contactFallbackKeyField is the fixed key-field fallback for the contact
// category when no key is configured. Email is the universal identity
// anchor between the two systems.
const contactFallbackKeyField = "email"

// ErrKeyFieldUnresolved is returned when a category has no configured key
// field and no fallback exists. The engine surfaces it as a per-category
// skip, never a run abort.
var ErrKeyFieldUnresolved = errors.New("no key field for category")

// FieldSpec describes how one field participates in synchronization.
type FieldSpec struct {
	Sync        bool      `json:"sync"`
	Direction   Direction `json:"direction,omitempty"`
	SourceField string    `json:"source_field,omitempty"`
	TargetField string    `json:"target_field,omitempty"`
	IsKeyField  bool      `json:"is_key_field,omitempty"`
}

// CategoryMapping is the mapping for one record category.
type CategoryMapping struct {
	// KeyField names the field used for cross-system matching. When set it
	// must agree with the single FieldSpec whose IsKeyField flag is true.
	KeyField string               `json:"key_field,omitempty"`
	Fields   map[string]FieldSpec `json:"fields"`
}

// FieldMapping is the per-deployment schema mapping, one CategoryMapping
// per category. All reads and mutations go through methods so the
// single-key-field invariant holds atomically under concurrent access.
type FieldMapping struct {
	mu         sync.RWMutex
	categories map[string]CategoryMapping
}

// New returns an empty FieldMapping.
func New() *FieldMapping {
	return &FieldMapping{categories: make(map[string]CategoryMapping)}
}

// Default returns the mapping created at first configuration load: a
// contact category syncing the base identity fields bidirectionally with
// email as the key.
func Default() *FieldMapping {
	fm := New()
	fm.categories[CategoryContact] = CategoryMapping{
		KeyField: "email",
		Fields: map[string]FieldSpec{
			"email": {
				Sync:        true,
				Direction:   DirectionBidirectional,
				SourceField: "email",
				TargetField: "email",
				IsKeyField:  true,
			},
			"firstName": {
				Sync:        true,
				Direction:   DirectionBidirectional,
				SourceField: "firstName",
				TargetField: "firstName",
			},
			"lastName": {
				Sync:        true,
				Direction:   DirectionBidirectional,
				SourceField: "lastName",
				TargetField: "lastName",
			},
			"phone": {
				Sync:        true,
				Direction:   DirectionBidirectional,
				SourceField: "phone",
				TargetField: "phone",
			},
		},
	}
	fm.categories[CategoryAppointment] = CategoryMapping{Fields: map[string]FieldSpec{}}
	fm.categories[CategoryForm] = CategoryMapping{Fields: map[string]FieldSpec{}}
	return fm
}

// Categories returns the category names present in the mapping.
func (fm *FieldMapping) Categories() []string {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	names := make([]string, 0, len(fm.categories))
	for name := range fm.categories {
		names = append(names, name)
	}
	return names
}

// Category returns a deep copy of one category mapping. The copy is safe to
// read for the remainder of a sync run while the dashboard mutates the
// original.
func (fm *FieldMapping) Category(name string) (CategoryMapping, bool) {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	cm, ok := fm.categories[name]
	if !ok {
		return CategoryMapping{}, false
	}
	return copyCategory(cm), true
}

// SetCategory replaces one category mapping wholesale.
func (fm *FieldMapping) SetCategory(name string, cm CategoryMapping) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if fm.categories == nil {
		fm.categories = make(map[string]CategoryMapping)
	}
	fm.categories[name] = copyCategory(cm)
}

// SetKeyField designates field as the key for category, clearing the flag
// on every other field in the category and updating KeyField in the same
// critical section. A concurrent reader never observes two key fields.
func (fm *FieldMapping) SetKeyField(category, field string) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	cm, ok := fm.categories[category]
	if !ok {
		return fmt.Errorf("unknown category %q", category)
	}
	if _, ok := cm.Fields[field]; !ok {
		return fmt.Errorf("unknown field %q in category %q", field, category)
	}

	for name, spec := range cm.Fields {
		spec.IsKeyField = name == field
		cm.Fields[name] = spec
	}
	cm.KeyField = field
	fm.categories[category] = cm
	return nil
}

// ResolveKeyField derives the match field for a category: the explicit
// KeyField when set, else the single flagged FieldSpec, else the contact
// fallback, else ErrKeyFieldUnresolved.
func ResolveKeyField(category string, cm CategoryMapping) (string, error) {
	if cm.KeyField != "" {
		return cm.KeyField, nil
	}
	for name, spec := range cm.Fields {
		if spec.IsKeyField {
			return name, nil
		}
	}
	if category == CategoryContact {
		return contactFallbackKeyField, nil
	}
	return "", fmt.Errorf("%w: %s", ErrKeyFieldUnresolved, category)
}

// ResolveKeyFields resolves every category in the mapping. Categories whose
// key cannot be resolved are absent from the result; the second return
// lists them so the engine can log the skips.
func (fm *FieldMapping) ResolveKeyFields() (map[string]string, []string) {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	keys := make(map[string]string, len(fm.categories))
	var unresolved []string
	for name, cm := range fm.categories {
		key, err := ResolveKeyField(name, cm)
		if err != nil {
			unresolved = append(unresolved, name)
			continue
		}
		keys[name] = key
	}
	return keys, unresolved
}

func copyCategory(cm CategoryMapping) CategoryMapping {
	out := CategoryMapping{KeyField: cm.KeyField, Fields: make(map[string]FieldSpec, len(cm.Fields))}
	for name, spec := range cm.Fields {
		out.Fields[name] = spec
	}
	return out
}

// MarshalJSON serializes the mapping as a flat category-name to
// CategoryMapping object, the shape the dashboard persists.
func (fm *FieldMapping) MarshalJSON() ([]byte, error) {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	return json.Marshal(fm.categories)
}

// UnmarshalJSON replaces the mapping contents from the persisted shape.
func (fm *FieldMapping) UnmarshalJSON(data []byte) error {
	categories := make(map[string]CategoryMapping)
	if err := json.Unmarshal(data, &categories); err != nil {
		return err
	}
	for name, cm := range categories {
		if cm.Fields == nil {
			cm.Fields = make(map[string]FieldSpec)
			categories[name] = cm
		}
	}

	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.categories = categories
	return nil
}
