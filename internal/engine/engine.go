// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/synclinic/synclinic/internal/logging"
	"github.com/synclinic/synclinic/internal/mapping"
	"github.com/synclinic/synclinic/internal/metrics"
	"github.com/synclinic/synclinic/internal/models"
	"github.com/synclinic/synclinic/internal/notify"
	"github.com/synclinic/synclinic/internal/platform"
	"github.com/synclinic/synclinic/internal/store"
)

// Abort conditions. Both surface as exactly one error activity entry and
// a notification, with no upstream API call made.
var (
	ErrConfigurationMissing = errors.New("sync configuration not found")
	ErrCredentialsMissing   = errors.New("API keys not configured")
	ErrSyncDisabled         = errors.New("sync is disabled")
)

// Runner executes synchronization runs. All collaborators are interfaces
// so tests run against memory stores and fake platforms.
type Runner struct {
	Config      store.ConfigStore
	Credentials store.CredentialsStore
	Activity    store.ActivityStore
	Source      platform.Platform
	Target      platform.Platform
	Notifier    *notify.Notifier
}

// Run executes one synchronization pass. An empty override uses the
// configured direction; a non-empty override wins for this run only.
// The returned SyncRun carries per-record outcomes even when err is nil
// and some records failed.
func (r *Runner) Run(ctx context.Context, override mapping.Direction) (*models.SyncRun, error) {
	started := time.Now().UTC()

	cfg, err := r.loadConfig(ctx)
	if err != nil {
		return nil, r.abort(ctx, started, err)
	}
	if !cfg.IsSyncEnabled && override == "" {
		logging.Debug().Msg("Sync run skipped: sync is disabled")
		return nil, ErrSyncDisabled
	}
	if err := r.checkCredentials(ctx); err != nil {
		return nil, r.abort(ctx, started, err)
	}

	fm := cfg.FieldMapping
	if fm == nil {
		fm = mapping.Default()
	}
	keyFields, unresolved := fm.ResolveKeyFields()
	for _, category := range unresolved {
		logging.Warn().
			Str("category", category).
			Msg("Category skipped: no key field resolvable")
	}

	direction := cfg.EffectiveDirection(override)
	run := &models.SyncRun{
		Direction:           string(direction),
		KeyFieldsByCategory: keyFields,
		StartedAt:           started,
	}

	if direction == mapping.DirectionSourceToTarget || direction == mapping.DirectionBidirectional {
		r.runLeg(ctx, run, fm, keyFields, mapping.DirectionSourceToTarget, r.Source, r.Target, cfg.SourceFilters)
	}
	if direction == mapping.DirectionTargetToSource || direction == mapping.DirectionBidirectional {
		r.runLeg(ctx, run, fm, keyFields, mapping.DirectionTargetToSource, r.Target, r.Source, cfg.TargetFilters)
	}

	run.FinishedAt = time.Now().UTC()
	r.finish(ctx, run)
	return run, nil
}

func (r *Runner) loadConfig(ctx context.Context) (*models.SyncConfig, error) {
	cfg, err := r.Config.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrConfigurationMissing
	}
	if err != nil {
		return nil, fmt.Errorf("load sync configuration: %w", err)
	}
	return cfg, nil
}

// checkCredentials verifies both systems have usable credentials before
// any network call is attempted.
func (r *Runner) checkCredentials(ctx context.Context) error {
	for _, system := range []string{r.Source.Name(), r.Target.Name()} {
		creds, err := r.Credentials.Get(ctx, system)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrCredentialsMissing, system)
		}
		if err != nil {
			return fmt.Errorf("load %s credentials: %w", system, err)
		}
		if !creds.Configured() {
			return fmt.Errorf("%w: %s", ErrCredentialsMissing, system)
		}
	}
	return nil
}

// runLeg synchronizes every resolvable category from origin to dest.
// Category fetch failures and per-record failures are logged and do not
// stop the leg.
func (r *Runner) runLeg(ctx context.Context, run *models.SyncRun, fm *mapping.FieldMapping, keyFields map[string]string, leg mapping.Direction, origin, dest platform.Platform, filters models.Filters) {
	for category, keyField := range keyFields {
		cm, ok := fm.Category(category)
		if !ok {
			continue
		}
		if leg == mapping.DirectionTargetToSource {
			cm = reverseCategory(cm)
		}

		records, err := origin.FetchRecords(ctx, category, filters)
		if err != nil {
			if errors.Is(err, platform.ErrUnsupportedCategory) {
				logging.Debug().
					Str("platform", origin.Name()).
					Str("category", category).
					Msg("Category not supported by platform")
				continue
			}
			r.logError(ctx, models.ActivityTypeCategoryFailed, origin.Name(), dest.Name(),
				fmt.Sprintf("Failed to fetch %s records from %s", category, origin.Name()), err)
			continue
		}

		for _, record := range records {
			r.syncRecord(ctx, run, leg, origin, dest, category, keyField, cm, filters, record)
		}
	}
}

// syncRecord pushes one origin record to the destination. Every failure
// path appends an activity entry and records an outcome; the silent path
// is the allow-list exclusion, which is normal operation, not an event.
func (r *Runner) syncRecord(ctx context.Context, run *models.SyncRun, leg mapping.Direction, origin, dest platform.Platform, category, keyField string, cm mapping.CategoryMapping, filters models.Filters, record map[string]interface{}) {
	key := mapping.FieldString(record, keyField)
	if key == "" {
		outcome := models.RecordOutcome{
			Category: category,
			Action:   models.RecordSkipped,
			Error:    fmt.Sprintf("missing key field %q", keyField),
		}
		run.Results = append(run.Results, outcome)
		metrics.RecordOutcome(category, string(outcome.Action))
		r.logError(ctx, models.ActivityTypeRecordSkipped, origin.Name(), dest.Name(),
			fmt.Sprintf("Record skipped: missing key field %q", keyField),
			fmt.Errorf("missing key field %q", keyField))
		return
	}

	if category == mapping.CategoryContact && !filters.AllowsContact(key) {
		return
	}

	fragment := mapping.Apply(category, cm, leg, record)

	existing, err := dest.LookupByKey(ctx, category, keyField, key)
	if err != nil {
		r.failRecord(ctx, run, origin, dest, category, key,
			fmt.Sprintf("Lookup failed on %s", dest.Name()), err)
		return
	}

	if existing == nil {
		if err := dest.CreateRecord(ctx, category, fragment); err != nil {
			r.failRecord(ctx, run, origin, dest, category, key,
				fmt.Sprintf("Create failed on %s", dest.Name()), err)
			return
		}
		run.Results = append(run.Results, models.RecordOutcome{
			Category: category,
			Key:      key,
			Action:   models.RecordCreated,
		})
		metrics.RecordOutcome(category, string(models.RecordCreated))
		r.logSuccess(ctx, models.ActivityTypeContactCreation, origin.Name(), dest.Name(),
			fmt.Sprintf("Contact Creation: %s", key), nil)
		return
	}

	changes := fieldChanges(existing, fragment)
	if len(changes) == 0 {
		run.Results = append(run.Results, models.RecordOutcome{
			Category: category,
			Key:      key,
			Action:   models.RecordSkipped,
		})
		metrics.RecordOutcome(category, string(models.RecordSkipped))
		return
	}

	if err := dest.UpdateRecord(ctx, category, existing, fragment); err != nil {
		r.failRecord(ctx, run, origin, dest, category, key,
			fmt.Sprintf("Update failed on %s", dest.Name()), err)
		return
	}
	run.Results = append(run.Results, models.RecordOutcome{
		Category: category,
		Key:      key,
		Action:   models.RecordUpdated,
		Changes:  changes,
	})
	metrics.RecordOutcome(category, string(models.RecordUpdated))
	r.logSuccess(ctx, models.ActivityTypeContactUpdate, origin.Name(), dest.Name(),
		fmt.Sprintf("Contact Update: %s", key), changes)
}

func (r *Runner) failRecord(ctx context.Context, run *models.SyncRun, origin, dest platform.Platform, category, key, detail string, err error) {
	run.Results = append(run.Results, models.RecordOutcome{
		Category: category,
		Key:      key,
		Action:   models.RecordFailed,
		Error:    err.Error(),
	})
	metrics.RecordOutcome(category, string(models.RecordFailed))
	r.logError(ctx, models.ActivityTypeRecordSkipped, origin.Name(), dest.Name(),
		fmt.Sprintf("%s: %s", detail, key), err)
}

// abort records the single error activity entry for a run that never
// reached the upstream APIs and notifies subscribers.
func (r *Runner) abort(ctx context.Context, started time.Time, cause error) error {
	logging.Error().Err(cause).Msg("Sync run aborted")
	r.logError(ctx, models.ActivityTypeSyncAborted, "", "", "Sync run aborted", cause)
	if r.Notifier != nil {
		r.Notifier.Publish(notify.LevelError, "Sync aborted", cause.Error())
	}
	metrics.RecordSyncRun("none", "aborted", time.Since(started))
	return cause
}

func (r *Runner) finish(ctx context.Context, run *models.SyncRun) {
	created, updated, skipped, failed := run.Counts()
	detail := fmt.Sprintf("Sync completed (%s): %d created, %d updated, %d skipped, %d failed",
		run.Direction, created, updated, skipped, failed)

	level := notify.LevelSuccess
	result := "success"
	if failed > 0 {
		level = notify.LevelError
		result = "partial"
	}

	// The completion entry stays a success even when records failed:
	// each failure already has its own error entry, and the run itself
	// ran to the end.
	entry := models.ActivityEntry{
		Type:   models.ActivityTypeSyncRun,
		Status: models.ActivityStatusSuccess,
		Detail: detail,
	}
	if _, err := r.Activity.Append(ctx, entry); err != nil {
		logging.Error().Err(err).Msg("Failed to append run activity entry")
	}
	if r.Notifier != nil {
		r.Notifier.Publish(level, "Sync completed", detail)
	}
	metrics.RecordSyncRun(run.Direction, result, run.FinishedAt.Sub(run.StartedAt))
	logging.Info().
		Str("direction", run.Direction).
		Int("created", created).
		Int("updated", updated).
		Int("skipped", skipped).
		Int("failed", failed).
		Msg("Sync run finished")
}

func (r *Runner) logSuccess(ctx context.Context, entryType, source, dest, detail string, changes []models.FieldChange) {
	entry := models.ActivityEntry{
		Type:        entryType,
		Status:      models.ActivityStatusSuccess,
		Detail:      detail,
		Source:      source,
		Destination: dest,
		Changes:     changes,
	}
	if _, err := r.Activity.Append(ctx, entry); err != nil {
		logging.Error().Err(err).Msg("Failed to append activity entry")
	}
}

func (r *Runner) logError(ctx context.Context, entryType, source, dest, detail string, cause error) {
	entry := models.ActivityEntry{
		Type:        entryType,
		Status:      models.ActivityStatusError,
		Detail:      detail,
		Source:      source,
		Destination: dest,
		Error:       cause.Error(),
	}
	if _, err := r.Activity.Append(ctx, entry); err != nil {
		logging.Error().Err(err).Msg("Failed to append activity entry")
	}
}

// reverseCategory swaps source and target roles of every field spec so a
// target-to-source leg reads from the target schema and writes the source
// schema. The key field designation is schema-neutral and carries over.
func reverseCategory(cm mapping.CategoryMapping) mapping.CategoryMapping {
	reversed := mapping.CategoryMapping{
		KeyField: cm.KeyField,
		Fields:   make(map[string]mapping.FieldSpec, len(cm.Fields)),
	}
	for name, spec := range cm.Fields {
		spec.SourceField, spec.TargetField = spec.TargetField, spec.SourceField
		reversed.Fields[name] = spec
	}
	return reversed
}

// fieldChanges diffs the base contact fields between the destination's
// existing record and the incoming fragment. Only string-valued deltas
// are reported; equality is case-sensitive except for email.
func fieldChanges(existing, fragment map[string]interface{}) []models.FieldChange {
	var changes []models.FieldChange
	for _, field := range []string{"email", "firstName", "lastName", "phone"} {
		incoming := mapping.FieldString(fragment, field)
		if incoming == "" {
			continue
		}
		current := mapping.FieldString(existing, field)
		if field == "email" {
			if strings.EqualFold(current, incoming) {
				continue
			}
		} else if current == incoming {
			continue
		}
		changes = append(changes, models.FieldChange{
			Field:    field,
			OldValue: current,
			NewValue: incoming,
		})
	}
	return changes
}
