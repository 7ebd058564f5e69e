// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/synclinic/synclinic/internal/metrics"
	"github.com/synclinic/synclinic/internal/models"
)

// Key layout in BadgerDB.
const (
	configKey            = "config:sync"
	credentialsKeyPrefix = "credentials:"
	activityKeyPrefix    = "activity:"
)

// BadgerStore implements ConfigStore, CredentialsStore, and ActivityStore
// on a shared BadgerDB instance.
type BadgerStore struct {
	db *badger.DB
}

// Open opens (or creates) the BadgerDB at path and returns the store.
func Open(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store at %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already-open BadgerDB.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Load returns the sync configuration document.
func (s *BadgerStore) Load(ctx context.Context) (*models.SyncConfig, error) {
	var cfg models.SyncConfig

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(configKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get config: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cfg)
		})
	})
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save replaces the configuration document in a single transaction, so a
// concurrent Load sees either the old document or the new one, never a
// mixture.
func (s *BadgerStore) Save(ctx context.Context, cfg *models.SyncConfig) error {
	cfg.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(configKey), data)
	})
}

// Get returns the credential set stored for a system.
func (s *BadgerStore) Get(ctx context.Context, system string) (*models.Credentials, error) {
	var creds models.Credentials

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(credentialsKeyPrefix + system))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get credentials: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &creds)
		})
	})
	if err != nil {
		return nil, err
	}

	return &creds, nil
}

// Put stores a credential set under its system name.
func (s *BadgerStore) Put(ctx context.Context, creds *models.Credentials) error {
	if creds.System == "" {
		return errors.New("credentials missing system name")
	}

	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(credentialsKeyPrefix+creds.System), data)
	})
}

// Append persists an activity entry. The key embeds an inverted timestamp
// so a forward prefix scan yields entries newest-first without an index.
func (s *BadgerStore) Append(ctx context.Context, entry models.ActivityEntry) (*models.ActivityEntry, error) {
	entry.ID = uuid.NewString()
	entry.Timestamp = time.Now().UTC()

	data, err := json.Marshal(&entry)
	if err != nil {
		return nil, fmt.Errorf("marshal activity entry: %w", err)
	}

	key := activityKey(entry.Timestamp, entry.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return nil, fmt.Errorf("append activity entry: %w", err)
	}

	metrics.ActivityEntriesTotal.WithLabelValues(string(entry.Status)).Inc()
	return &entry, nil
}

// List returns up to limit entries, most recent first.
func (s *BadgerStore) List(ctx context.Context, limit int) ([]models.ActivityEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	var entries []models.ActivityEntry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(activityKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid() && len(entries) < limit; it.Next() {
			var entry models.ActivityEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return fmt.Errorf("decode activity entry: %w", err)
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// activityKey builds "activity:<inverted-unixnano>:<id>" so lexicographic
// order is reverse chronological.
func activityKey(ts time.Time, id string) string {
	inverted := uint64(math.MaxInt64) - uint64(ts.UnixNano())
	return fmt.Sprintf("%s%020d:%s", activityKeyPrefix, inverted, id)
}
