// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

// Package crm implements the CRM-side platform client. It speaks the
// CRM's REST contacts API through the relay and interprets responses via
// the normalizer; it holds no engine logic.
package crm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/synclinic/synclinic/internal/logging"
	"github.com/synclinic/synclinic/internal/mapping"
	"github.com/synclinic/synclinic/internal/models"
	"github.com/synclinic/synclinic/internal/platform"
	"github.com/synclinic/synclinic/internal/relay"
)

// SystemName identifies this platform in credentials and activity logs.
const SystemName = "crm"

// Client is the CRM platform client. It holds no credential state:
// BaseURL and API key are resolved from the source on every call, so
// credentials saved through the dashboard apply to the next run.
type Client struct {
	relay  *relay.Client
	source platform.CredentialsSource
}

// New builds a CRM client over a credentials source.
func New(rc *relay.Client, source platform.CredentialsSource) *Client {
	return &Client{relay: rc, source: source}
}

// Name returns the platform's system name.
func (c *Client) Name() string { return SystemName }

func (c *Client) connection(ctx context.Context) (base string, headers map[string]string, err error) {
	creds, err := c.source.Get(ctx, SystemName)
	if err != nil {
		return "", nil, fmt.Errorf("load %s credentials: %w", SystemName, err)
	}
	headers = map[string]string{
		"Authorization": "Bearer " + creds.APIKey,
		"Content-Type":  "application/json",
	}
	return strings.TrimRight(creds.BaseURL, "/"), headers, nil
}

// FetchRecords returns contact records, applying the configured tag
// allow-list client-side. Other inclusion lists are re-checked by the
// engine.
func (c *Client) FetchRecords(ctx context.Context, category string, filters models.Filters) ([]map[string]interface{}, error) {
	if category != mapping.CategoryContact {
		return nil, fmt.Errorf("%w: %s", platform.ErrUnsupportedCategory, category)
	}

	base, headers, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}

	// Ordered endpoint shapes for the contact list; some CRM tenants
	// route the same API under different path shapes. First success
	// wins, every attempt is logged.
	candidates := []string{
		base + "/contacts/?limit=100",
		base + "/contacts?limit=100",
	}

	resp, endpoint, err := c.relay.InvokeCandidates(ctx, "GET", candidates, headers, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("fetch contacts: %w", resp.Err())
		}
		return nil, fmt.Errorf("fetch contacts: %w", err)
	}
	logging.Debug().Str("endpoint", endpoint).Msg("CRM contact fetch succeeded")

	records := extractRecords(resp.Payload, "contacts")
	if len(filters.Tags) == 0 {
		return records, nil
	}

	filtered := records[:0]
	for _, record := range records {
		if hasAnyTag(record, filters.Tags) {
			filtered = append(filtered, record)
		}
	}
	return filtered, nil
}

// LookupByKey finds an existing contact by its key field. Email lookups
// are case-insensitive; the CRM's lookup endpoint already folds case, and
// the value is lowercased for defense in depth. Returns (nil, nil) when
// no match exists.
func (c *Client) LookupByKey(ctx context.Context, category, keyField, value string) (map[string]interface{}, error) {
	if category != mapping.CategoryContact {
		return nil, fmt.Errorf("%w: %s", platform.ErrUnsupportedCategory, category)
	}

	base, headers, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	if strings.EqualFold(keyField, "email") {
		query.Set("email", strings.ToLower(value))
	} else {
		query.Set("query", value)
	}

	resp, err := c.relay.InvokeNormalized(ctx, relay.Request{
		Method:  "GET",
		URL:     base + "/contacts/lookup?" + query.Encode(),
		Headers: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("lookup contact: %w", err)
	}
	if resp.Status == 404 {
		return nil, nil
	}
	if !resp.OK() {
		return nil, fmt.Errorf("lookup contact: %w", resp.Err())
	}

	for _, record := range extractRecords(resp.Payload, "contacts") {
		if matchesKey(record, keyField, value) {
			return record, nil
		}
	}
	return nil, nil
}

// CreateRecord creates a contact from a mapped fragment.
func (c *Client) CreateRecord(ctx context.Context, category string, fragment map[string]interface{}) error {
	if category != mapping.CategoryContact {
		return fmt.Errorf("%w: %s", platform.ErrUnsupportedCategory, category)
	}

	base, headers, err := c.connection(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(fragment)
	if err != nil {
		return fmt.Errorf("marshal contact: %w", err)
	}

	resp, err := c.relay.InvokeNormalized(ctx, relay.Request{
		Method:  "POST",
		URL:     base + "/contacts/",
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("create contact: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("create contact: %w", resp.Err())
	}
	return nil
}

// UpdateRecord updates the contact previously returned by LookupByKey.
func (c *Client) UpdateRecord(ctx context.Context, category string, existing, fragment map[string]interface{}) error {
	if category != mapping.CategoryContact {
		return fmt.Errorf("%w: %s", platform.ErrUnsupportedCategory, category)
	}

	id := mapping.FieldString(existing, "id")
	if id == "" {
		return errors.New("update contact: existing record has no id")
	}

	base, headers, err := c.connection(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(fragment)
	if err != nil {
		return fmt.Errorf("marshal contact: %w", err)
	}

	resp, err := c.relay.InvokeNormalized(ctx, relay.Request{
		Method:  "PUT",
		URL:     base + "/contacts/" + url.PathEscape(id),
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("update contact: %w", resp.Err())
	}
	return nil
}

// extractRecords pulls a record list out of a normalized payload: either
// a bare array or an object wrapping the array under listKey.
func extractRecords(payload interface{}, listKey string) []map[string]interface{} {
	var items []interface{}
	switch v := payload.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		items, _ = v[listKey].([]interface{})
	}

	records := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if record, ok := item.(map[string]interface{}); ok {
			records = append(records, record)
		}
	}
	return records
}

func matchesKey(record map[string]interface{}, keyField, value string) bool {
	got := mapping.FieldString(record, keyField)
	if strings.EqualFold(keyField, "email") {
		return strings.EqualFold(got, value)
	}
	return got == value
}

func hasAnyTag(record map[string]interface{}, allowed []string) bool {
	tags, ok := record["tags"].([]interface{})
	if !ok {
		return false
	}
	for _, tag := range tags {
		name, ok := tag.(string)
		if !ok {
			continue
		}
		for _, want := range allowed {
			if strings.EqualFold(name, want) {
				return true
			}
		}
	}
	return false
}
