// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

// Package intake implements the clinical-intake platform client. The
// intake system's client API uses PascalCase field names, upserts via
// POST, and authenticates with an X-Auth-Key header.
package intake

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
const SystemName = "intake"

// Client is the clinical-intake platform client. Credentials are
// resolved from the source on every call, so dashboard edits apply to
// the next run without a restart.
type Client struct {
	relay  *relay.Client
	source platform.CredentialsSource
}

// New builds an intake client over a credentials source.
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
		"X-Auth-Key":   creds.APIKey,
		"Content-Type": "application/json",
	}
	return strings.TrimRight(creds.BaseURL, "/"), headers, nil
}

// FetchRecords returns client records, applying the configured status
// allow-list client-side.
func (c *Client) FetchRecords(ctx context.Context, category string, filters models.Filters) ([]map[string]interface{}, error) {
	if category != mapping.CategoryContact {
		return nil, fmt.Errorf("%w: %s", platform.ErrUnsupportedCategory, category)
	}

	base, headers, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}

	candidates := []string{
		base + "/clients?includeProfile=true",
		base + "/clients",
	}

	resp, endpoint, err := c.relay.InvokeCandidates(ctx, "GET", candidates, headers, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("fetch clients: %w", resp.Err())
		}
		return nil, fmt.Errorf("fetch clients: %w", err)
	}
	logging.Debug().Str("endpoint", endpoint).Msg("Intake client fetch succeeded")

	records := extractRecords(resp.Payload)
	if len(filters.Statuses) == 0 {
		return records, nil
	}

	filtered := records[:0]
	for _, record := range records {
		if statusAllowed(record, filters.Statuses) {
			filtered = append(filtered, record)
		}
	}
	return filtered, nil
}

// LookupByKey finds an existing client by its key field via the search
// endpoint. Email comparison is case-insensitive. Returns (nil, nil) when
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
	query.Set("search", value)

	resp, err := c.relay.InvokeNormalized(ctx, relay.Request{
		Method:  "GET",
		URL:     base + "/clients?" + query.Encode(),
		Headers: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("search clients: %w", err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("search clients: %w", resp.Err())
	}

	for _, record := range extractRecords(resp.Payload) {
		got := mapping.FieldString(record, keyField)
		if strings.EqualFold(keyField, "email") {
			if strings.EqualFold(got, value) {
				return record, nil
			}
			continue
		}
		if got == value {
			return record, nil
		}
	}
	return nil, nil
}

// CreateRecord creates a client record from a mapped fragment. The
// fragment's camelCase target fields are translated to the intake API's
// PascalCase schema.
func (c *Client) CreateRecord(ctx context.Context, category string, fragment map[string]interface{}) error {
	if category != mapping.CategoryContact {
		return fmt.Errorf("%w: %s", platform.ErrUnsupportedCategory, category)
	}
	return c.save(ctx, toIntakeSchema(fragment))
}

// UpdateRecord upserts the client previously returned by LookupByKey; the
// intake API updates in place when ClientId is present.
func (c *Client) UpdateRecord(ctx context.Context, category string, existing, fragment map[string]interface{}) error {
	if category != mapping.CategoryContact {
		return fmt.Errorf("%w: %s", platform.ErrUnsupportedCategory, category)
	}

	payload := toIntakeSchema(fragment)
	if id, ok := existing["ClientId"]; ok {
		payload["ClientId"] = id
	} else if id := mapping.FieldString(existing, "id"); id != "" {
		payload["ClientId"] = id
	} else {
		return errors.New("update client: existing record has no ClientId")
	}
	return c.save(ctx, payload)
}

func (c *Client) save(ctx context.Context, payload map[string]interface{}) error {
	base, headers, err := c.connection(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal client: %w", err)
	}

	resp, err := c.relay.InvokeNormalized(ctx, relay.Request{
		Method:  "POST",
		URL:     base + "/clients",
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("save client: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("save client: %w", resp.Err())
	}
	return nil
}

// toIntakeSchema maps the engine's camelCase target fragment onto the
// intake API's PascalCase client schema. Unknown fields pass through
// untouched so custom mappings still reach the API.
func toIntakeSchema(fragment map[string]interface{}) map[string]interface{} {
	renames := map[string]string{
		"email":     "Email",
		"firstName": "FirstName",
		"lastName":  "LastName",
		"phone":     "Phone",
	}

	out := make(map[string]interface{}, len(fragment))
	for key, value := range fragment {
		if renamed, ok := renames[key]; ok {
			out[renamed] = value
			continue
		}
		out[key] = value
	}

	if _, ok := out["Name"]; !ok {
		first, _ := out["FirstName"].(string)
		last, _ := out["LastName"].(string)
		if full := strings.TrimSpace(first + " " + last); full != "" {
			out["Name"] = full
		}
	}
	return out
}

func extractRecords(payload interface{}) []map[string]interface{} {
	var items []interface{}
	switch v := payload.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		items, _ = v["clients"].([]interface{})
	}

	records := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if record, ok := item.(map[string]interface{}); ok {
			records = append(records, record)
		}
	}
	return records
}

func statusAllowed(record map[string]interface{}, allowed []string) bool {
	status := mapping.FieldString(record, "status")
	if status == "" {
		return false
	}
	for _, want := range allowed {
		if strings.EqualFold(status, want) {
			return true
		}
	}
	return false
}
