// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

package store

import (
	"context"
	"sync"
	"time"

	"github.com/synclinic/synclinic/internal/logging"
	"github.com/synclinic/synclinic/internal/models"
)

// DefaultDebounceWindow is the quiescence window after the last edit
// before a save is persisted.
const DefaultDebounceWindow = 750 * time.Millisecond

// DebouncedSaver coalesces rapid successive configuration edits into a
// single persisted write. A save happens no sooner than the quiescence
// window after the last edit, and always persists the last value written,
// never an intermediate one. The underlying ConfigStore.Save replaces the
// document atomically, so concurrent readers never see a torn write.
type DebouncedSaver struct {
	store  ConfigStore
	window time.Duration

	mu      sync.Mutex
	pending *models.SyncConfig
	timer   *time.Timer
	closed  bool
}

// NewDebouncedSaver wraps a ConfigStore with save debouncing. A window of
// zero takes DefaultDebounceWindow.
func NewDebouncedSaver(store ConfigStore, window time.Duration) *DebouncedSaver {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &DebouncedSaver{store: store, window: window}
}

// Save records cfg as the latest value and (re)arms the quiescence timer.
func (d *DebouncedSaver) Save(cfg *models.SyncConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	pending := *cfg
	d.pending = &pending

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// Flush persists any pending value immediately. Used on shutdown so the
// last edit is never lost to an unexpired timer.
func (d *DebouncedSaver) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	d.flush()
}

// Close flushes pending state and stops accepting further saves.
func (d *DebouncedSaver) Close() {
	d.Flush()

	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

func (d *DebouncedSaver) flush() {
	d.mu.Lock()
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()

	if pending == nil {
		return
	}

	if err := d.store.Save(context.Background(), pending); err != nil {
		logging.Err(err).Msg("Debounced configuration save failed")
	}
}
