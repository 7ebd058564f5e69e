// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

/*
Package mapping implements the field-mapping data model and its two core
operations: key-field resolution and mapping application.

A FieldMapping holds one CategoryMapping per record category (contact,
appointment, form, extensible). Each CategoryMapping carries a set of
FieldSpecs and at most one designated key field used to match records
across the two systems. The invariant that at most one field per category
is the key is maintained atomically by SetKeyField: a concurrent reader
never observes two flagged fields.

Apply projects a source record onto the target schema for one run
direction. It is a pure function over its inputs: it never touches the
network and never mutates the source record.
*/
package mapping
