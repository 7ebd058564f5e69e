// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

package mapping

import "strings"

// Target-side base fields backfilled for contacts when the configured
// mapping leaves them empty. Upstream dashboards routinely ship partial
// mappings; the backfill keeps contact records usable anyway.
const (
	targetFieldEmail     = "email"
	targetFieldFirstName = "firstName"
	targetFieldLastName  = "lastName"
	targetFieldPhone     = "phone"
)

// Apply projects sourceRecord onto the target schema for one category and
// run direction, honoring each FieldSpec's sync flag and direction.
// Missing source values produce no key on the fragment. For the contact
// category the base-field backfill runs after the explicit mapping.
func Apply(category string, cm CategoryMapping, run Direction, sourceRecord map[string]interface{}) map[string]interface{} {
	fragment := make(map[string]interface{})

	for _, spec := range cm.Fields {
		if !spec.Sync || !spec.Direction.appliesOn(run) {
			continue
		}
		if spec.SourceField == "" || spec.TargetField == "" {
			continue
		}
		value, ok := resolvePath(sourceRecord, spec.SourceField)
		if !ok {
			continue
		}
		fragment[spec.TargetField] = value
	}

	if category == CategoryContact {
		backfillContactBaseFields(sourceRecord, fragment)
	}

	return fragment
}

// resolvePath reads a value from record. A single dot splits the path into
// parent.child; deeper nesting is not part of the mapping language.
func resolvePath(record map[string]interface{}, path string) (interface{}, bool) {
	if parent, child, found := strings.Cut(path, "."); found {
		nested, ok := record[parent].(map[string]interface{})
		if !ok {
			return nil, false
		}
		value, ok := nested[child]
		return value, ok && value != nil
	}
	value, ok := record[path]
	return value, ok && value != nil
}

// backfillContactBaseFields tolerates incomplete mapping configuration:
// derive first/last name from the full name, carry the raw phone, and
// always propagate email, the cross-system identity anchor.
func backfillContactBaseFields(source, fragment map[string]interface{}) {
	_, hasFirst := fragment[targetFieldFirstName]
	_, hasLast := fragment[targetFieldLastName]
	if !hasFirst || !hasLast {
		if full, ok := lookupFold(source, "name"); ok {
			first, last := SplitName(full)
			if !hasFirst && first != "" {
				fragment[targetFieldFirstName] = first
			}
			if !hasLast && last != "" {
				fragment[targetFieldLastName] = last
			}
		}
	}

	if _, ok := fragment[targetFieldPhone]; !ok {
		if phone, ok := lookupFold(source, "phone"); ok && phone != "" {
			fragment[targetFieldPhone] = phone
		}
	}

	if email, ok := lookupFold(source, "email"); ok && email != "" {
		fragment[targetFieldEmail] = email
	}
}

// SplitName splits a full name on whitespace: first token becomes the
// first name, the remaining tokens join into the last name.
func SplitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// FieldString reads a top-level field from record as a string,
// case-insensitively. Upstream schemas disagree on capitalization
// (Email vs email), so the engine and backfill never assume one.
func FieldString(record map[string]interface{}, name string) string {
	s, _ := lookupFold(record, name)
	return s
}

func lookupFold(record map[string]interface{}, name string) (string, bool) {
	if v, ok := record[name]; ok {
		return stringValue(v)
	}
	for key, v := range record {
		if strings.EqualFold(key, name) {
			return stringValue(v)
		}
	}
	return "", false
}

func stringValue(v interface{}) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return s, true
}
