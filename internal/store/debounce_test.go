// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/synclinic/synclinic/internal/models"
)

// countingStore records every Save so tests can assert how many writes
// actually reached the store.
type countingStore struct {
	mu    sync.Mutex
	saves []*models.SyncConfig
}

func (c *countingStore) Load(ctx context.Context) (*models.SyncConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.saves) == 0 {
		return nil, ErrNotFound
	}
	return c.saves[len(c.saves)-1], nil
}

func (c *countingStore) Save(ctx context.Context, cfg *models.SyncConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves = append(c.saves, cfg)
	return nil
}

func (c *countingStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.saves)
}

func (c *countingStore) last() *models.SyncConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.saves) == 0 {
		return nil
	}
	return c.saves[len(c.saves)-1]
}

// TestDebouncedSaverCoalesces tests that a burst of edits produces one
// persisted write carrying the last value.
func TestDebouncedSaverCoalesces(t *testing.T) {
	cs := &countingStore{}
	saver := NewDebouncedSaver(cs, 50*time.Millisecond)
	defer saver.Close()

	directions := []string{
		models.StoredDirectionSourceToTarget,
		models.StoredDirectionTargetToSource,
		models.StoredDirectionBidirectional,
	}
	for _, d := range directions {
		saver.Save(&models.SyncConfig{SyncDirection: d})
	}

	if cs.count() != 0 {
		t.Fatalf("%d saves before quiescence window elapsed, want 0", cs.count())
	}

	deadline := time.Now().Add(2 * time.Second)
	for cs.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if cs.count() != 1 {
		t.Fatalf("%d saves after quiescence, want exactly 1", cs.count())
	}
	if got := cs.last().SyncDirection; got != models.StoredDirectionBidirectional {
		t.Errorf("persisted direction = %q, want last written value", got)
	}
}

// TestDebouncedSaverReset tests that edits inside the window push the
// save out instead of firing per edit.
func TestDebouncedSaverReset(t *testing.T) {
	cs := &countingStore{}
	saver := NewDebouncedSaver(cs, 80*time.Millisecond)
	defer saver.Close()

	for i := 0; i < 4; i++ {
		saver.Save(&models.SyncConfig{IsSyncEnabled: i%2 == 0})
		time.Sleep(30 * time.Millisecond) // under the window, timer re-arms
	}

	if cs.count() != 0 {
		t.Fatalf("save fired while edits kept arriving (%d writes)", cs.count())
	}

	time.Sleep(200 * time.Millisecond)
	if cs.count() != 1 {
		t.Fatalf("%d saves, want 1", cs.count())
	}
}

func TestDebouncedSaverFlush(t *testing.T) {
	cs := &countingStore{}
	saver := NewDebouncedSaver(cs, time.Hour)

	saver.Save(&models.SyncConfig{IsSyncEnabled: true})
	saver.Flush()

	if cs.count() != 1 {
		t.Fatalf("%d saves after flush, want 1", cs.count())
	}
	if !cs.last().IsSyncEnabled {
		t.Error("flushed value lost the pending edit")
	}

	// Flush with nothing pending is a no-op.
	saver.Flush()
	if cs.count() != 1 {
		t.Errorf("%d saves after empty flush, want still 1", cs.count())
	}
}

func TestDebouncedSaverCloseRejectsLateSaves(t *testing.T) {
	cs := &countingStore{}
	saver := NewDebouncedSaver(cs, 10*time.Millisecond)

	saver.Save(&models.SyncConfig{IsSyncEnabled: true})
	saver.Close()

	before := cs.count()
	saver.Save(&models.SyncConfig{IsSyncEnabled: false})
	time.Sleep(50 * time.Millisecond)

	if cs.count() != before {
		t.Errorf("save accepted after Close")
	}
}
