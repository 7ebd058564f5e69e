// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/synclinic/synclinic/internal/models"
)

func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s
}

func TestBadgerConfigRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load on empty store = %v, want ErrNotFound", err)
	}

	cfg := &models.SyncConfig{
		SyncDirection: models.StoredDirectionSourceToTarget,
		SourceFilters: models.Filters{Tags: []string{"vip"}},
		IsSyncEnabled: true,
	}
	if err := s.Save(ctx, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.SyncDirection != cfg.SyncDirection {
		t.Errorf("direction = %q", loaded.SyncDirection)
	}
	if len(loaded.SourceFilters.Tags) != 1 || loaded.SourceFilters.Tags[0] != "vip" {
		t.Errorf("filters = %+v", loaded.SourceFilters)
	}
	if !loaded.IsSyncEnabled {
		t.Error("enabled flag lost")
	}
}

func TestBadgerConfigSaveReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, &models.SyncConfig{SyncDirection: models.StoredDirectionBidirectional}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, &models.SyncConfig{SyncDirection: models.StoredDirectionTargetToSource}); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.SyncDirection != models.StoredDirectionTargetToSource {
		t.Errorf("direction = %q, want replacement to win", loaded.SyncDirection)
	}
}

func TestBadgerCredentials(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "crm"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty store = %v, want ErrNotFound", err)
	}

	creds := &models.Credentials{
		System:  "crm",
		BaseURL: "https://crm.example.com",
		APIKey:  "secret",
	}
	if err := s.Put(ctx, creds); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "crm")
	if err != nil {
		t.Fatal(err)
	}
	if got.APIKey != "secret" || got.BaseURL != "https://crm.example.com" {
		t.Errorf("credentials = %+v", got)
	}

	// A second system does not collide.
	if err := s.Put(ctx, &models.Credentials{System: "intake", APIKey: "other"}); err != nil {
		t.Fatal(err)
	}
	got, err = s.Get(ctx, "crm")
	if err != nil || got.APIKey != "secret" {
		t.Errorf("crm credentials disturbed by intake put: %+v, %v", got, err)
	}
}

// TestBadgerActivityOrdering tests newest-first listing and the limit.
func TestBadgerActivityOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	details := []string{"first", "second", "third"}
	for _, d := range details {
		entry, err := s.Append(ctx, models.ActivityEntry{
			Type:   models.ActivityTypeSyncRun,
			Status: models.ActivityStatusSuccess,
			Detail: d,
		})
		if err != nil {
			t.Fatalf("append %q: %v", d, err)
		}
		if entry.ID == "" {
			t.Error("append did not assign an ID")
		}
		if entry.Timestamp.IsZero() {
			t.Error("append did not assign a timestamp")
		}
		time.Sleep(time.Millisecond) // distinct timestamps keep ordering deterministic
	}

	entries, err := s.List(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("listed %d entries, want 3", len(entries))
	}
	for i, want := range []string{"third", "second", "first"} {
		if entries[i].Detail != want {
			t.Errorf("entries[%d] = %q, want %q (newest first)", i, entries[i].Detail, want)
		}
	}

	limited, err := s.List(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 || limited[0].Detail != "third" {
		t.Errorf("limited list = %+v", limited)
	}
}
