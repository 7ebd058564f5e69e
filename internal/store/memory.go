// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/synclinic/synclinic/internal/models"
)

// MemoryStore implements ConfigStore, CredentialsStore, and ActivityStore
// in memory. Suitable for development and testing; data is lost on
// restart.
type MemoryStore struct {
	mu          sync.RWMutex
	config      *models.SyncConfig
	credentials map[string]models.Credentials
	entries     []models.ActivityEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{credentials: make(map[string]models.Credentials)}
}

// Load returns the configuration document.
func (s *MemoryStore) Load(ctx context.Context) (*models.SyncConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.config == nil {
		return nil, ErrNotFound
	}
	cfg := *s.config
	return &cfg, nil
}

// Save replaces the configuration document atomically.
func (s *MemoryStore) Save(ctx context.Context, cfg *models.SyncConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg.UpdatedAt = time.Now().UTC()
	saved := *cfg
	s.config = &saved
	return nil
}

// Get returns the credential set for a system.
func (s *MemoryStore) Get(ctx context.Context, system string) (*models.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creds, ok := s.credentials[system]
	if !ok {
		return nil, ErrNotFound
	}
	return &creds, nil
}

// Put stores a credential set under its system name.
func (s *MemoryStore) Put(ctx context.Context, creds *models.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.credentials[creds.System] = *creds
	return nil
}

// Append persists an activity entry, assigning ID and timestamp.
func (s *MemoryStore) Append(ctx context.Context, entry models.ActivityEntry) (*models.ActivityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = uuid.NewString()
	entry.Timestamp = time.Now().UTC()
	s.entries = append(s.entries, entry)
	return &entry, nil
}

// List returns up to limit entries, most recent first.
func (s *MemoryStore) List(ctx context.Context, limit int) ([]models.ActivityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	var entries []models.ActivityEntry
	for i := len(s.entries) - 1; i >= 0 && len(entries) < limit; i-- {
		entries = append(entries, s.entries[i])
	}
	return entries, nil
}

// Len returns the number of stored activity entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
