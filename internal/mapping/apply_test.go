// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

package mapping

import (
	"reflect"
	"testing"
)

// TestApplyContactBackfill tests the canonical partial-mapping case: a
// CRM record with a combined name still produces a complete contact.
func TestApplyContactBackfill(t *testing.T) {
	cm := CategoryMapping{Fields: map[string]FieldSpec{}}
	source := map[string]interface{}{
		"Email": "a@x.com",
		"Name":  "Jane Doe",
		"Phone": "555-1000",
	}

	fragment := Apply(CategoryContact, cm, DirectionSourceToTarget, source)

	want := map[string]interface{}{
		"email":     "a@x.com",
		"firstName": "Jane",
		"lastName":  "Doe",
		"phone":     "555-1000",
	}
	if !reflect.DeepEqual(fragment, want) {
		t.Errorf("fragment = %v, want %v", fragment, want)
	}
}

func TestApplyDirectionFilter(t *testing.T) {
	cm := CategoryMapping{Fields: map[string]FieldSpec{
		"both":    {Sync: true, Direction: DirectionBidirectional, SourceField: "both", TargetField: "both"},
		"forward": {Sync: true, Direction: DirectionSourceToTarget, SourceField: "forward", TargetField: "forward"},
		"reverse": {Sync: true, Direction: DirectionTargetToSource, SourceField: "reverse", TargetField: "reverse"},
		"off":     {Sync: false, Direction: DirectionBidirectional, SourceField: "off", TargetField: "off"},
	}}
	source := map[string]interface{}{
		"both": "b", "forward": "f", "reverse": "r", "off": "o",
	}

	tests := []struct {
		name string
		run  Direction
		want []string
	}{
		{"source to target run", DirectionSourceToTarget, []string{"both", "forward"}},
		{"target to source run", DirectionTargetToSource, []string{"both", "reverse"}},
		{"bidirectional run includes one-way fields", DirectionBidirectional, []string{"both", "forward", "reverse"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fragment := Apply(CategoryAppointment, cm, tt.run, source)
			if len(fragment) != len(tt.want) {
				t.Fatalf("fragment = %v, want keys %v", fragment, tt.want)
			}
			for _, key := range tt.want {
				if _, ok := fragment[key]; !ok {
					t.Errorf("missing key %q in fragment %v", key, fragment)
				}
			}
		})
	}
}

func TestApplyDottedSourcePath(t *testing.T) {
	cm := CategoryMapping{Fields: map[string]FieldSpec{
		"city": {Sync: true, SourceField: "address.city", TargetField: "city"},
		"deep": {Sync: true, SourceField: "a.b.c", TargetField: "deep"},
	}}
	source := map[string]interface{}{
		"address": map[string]interface{}{"city": "Berlin"},
		"a":       map[string]interface{}{"b": map[string]interface{}{"c": "nested"}},
	}

	fragment := Apply(CategoryAppointment, cm, DirectionBidirectional, source)

	if fragment["city"] != "Berlin" {
		t.Errorf("city = %v, want Berlin", fragment["city"])
	}
	// Only one level of nesting is part of the mapping language.
	if _, ok := fragment["deep"]; ok {
		t.Errorf("two-dot path resolved to %v, want absent", fragment["deep"])
	}
}

func TestApplySkipsMissingAndNilValues(t *testing.T) {
	cm := CategoryMapping{Fields: map[string]FieldSpec{
		"present": {Sync: true, SourceField: "present", TargetField: "present"},
		"missing": {Sync: true, SourceField: "missing", TargetField: "missing"},
		"null":    {Sync: true, SourceField: "null", TargetField: "null"},
	}}
	source := map[string]interface{}{
		"present": "yes",
		"null":    nil,
	}

	fragment := Apply(CategoryAppointment, cm, DirectionBidirectional, source)

	if len(fragment) != 1 || fragment["present"] != "yes" {
		t.Errorf("fragment = %v, want only present=yes", fragment)
	}
}

// TestBackfillDoesNotOverwriteMapped tests that explicit mapping output
// wins over backfilled name parts.
func TestBackfillDoesNotOverwriteMapped(t *testing.T) {
	cm := CategoryMapping{Fields: map[string]FieldSpec{
		"firstName": {Sync: true, SourceField: "given", TargetField: "firstName"},
	}}
	source := map[string]interface{}{
		"given": "Janet",
		"Name":  "Jane Doe",
		"email": "a@x.com",
	}

	fragment := Apply(CategoryContact, cm, DirectionBidirectional, source)

	if fragment["firstName"] != "Janet" {
		t.Errorf("firstName = %v, want mapped value Janet", fragment["firstName"])
	}
	// lastName was not mapped, so the name split fills it.
	if fragment["lastName"] != "Doe" {
		t.Errorf("lastName = %v, want backfilled Doe", fragment["lastName"])
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		full  string
		first string
		last  string
	}{
		{"Jane Doe", "Jane", "Doe"},
		{"Jane", "Jane", ""},
		{"Jane van der Berg", "Jane", "van der Berg"},
		{"  Jane   Doe  ", "Jane", "Doe"},
		{"", "", ""},
	}

	for _, tt := range tests {
		first, last := SplitName(tt.full)
		if first != tt.first || last != tt.last {
			t.Errorf("SplitName(%q) = (%q, %q), want (%q, %q)", tt.full, first, last, tt.first, tt.last)
		}
	}
}

func TestFieldString(t *testing.T) {
	record := map[string]interface{}{
		"Email": "A@X.com",
		"count": 3,
	}

	if got := FieldString(record, "email"); got != "A@X.com" {
		t.Errorf("case-insensitive lookup = %q", got)
	}
	if got := FieldString(record, "count"); got != "" {
		t.Errorf("non-string value = %q, want empty", got)
	}
	if got := FieldString(record, "absent"); got != "" {
		t.Errorf("absent field = %q, want empty", got)
	}
}
