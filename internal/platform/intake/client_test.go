// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

package intake

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/synclinic/synclinic/internal/models"
	"github.com/synclinic/synclinic/internal/relay"
	"github.com/synclinic/synclinic/internal/store"
)

func newTestRelay(t *testing.T) *relay.Client {
	t.Helper()
	return relay.NewClient("intake-test", relay.Options{
		Timeout:        5 * time.Second,
		RequestsPerSec: 1000,
		MaxRetries:     1,
		RetryBaseDelay: time.Millisecond,
	})
}

func putCredentials(t *testing.T, ms *store.MemoryStore, baseURL, apiKey string) {
	t.Helper()
	err := ms.Put(context.Background(), &models.Credentials{
		System:  SystemName,
		BaseURL: baseURL,
		APIKey:  apiKey,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ms := store.NewMemoryStore()
	putCredentials(t, ms, srv.URL, "auth-key")
	return New(newTestRelay(t), ms)
}

// TestCredentialUpdateAppliesNextCall tests that a rotated API key is
// sent on the very next request.
func TestCredentialUpdateAppliesNextCall(t *testing.T) {
	var keys []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("X-Auth-Key"))
		json.NewEncoder(w).Encode([]map[string]interface{}{})
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ms := store.NewMemoryStore()
	putCredentials(t, ms, srv.URL, "first-key")
	client := New(newTestRelay(t), ms)

	if _, err := client.FetchRecords(context.Background(), "contact", models.Filters{}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	putCredentials(t, ms, srv.URL, "rotated-key")
	if _, err := client.FetchRecords(context.Background(), "contact", models.Filters{}); err != nil {
		t.Fatalf("fetch after rotation: %v", err)
	}

	if len(keys) < 2 {
		t.Fatalf("server saw %d requests, want 2", len(keys))
	}
	if keys[0] != "first-key" {
		t.Errorf("first request key = %q", keys[0])
	}
	if keys[len(keys)-1] != "rotated-key" {
		t.Errorf("last request key = %q, want rotated key", keys[len(keys)-1])
	}
}

func TestFetchRecordsStatusFilter(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Auth-Key"); got != "auth-key" {
			t.Errorf("X-Auth-Key = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"ClientId": "1", "Email": "a@x.com", "Status": "Active"},
			{"ClientId": "2", "Email": "b@y.com", "Status": "Archived"},
			{"ClientId": "3", "Email": "c@z.com"},
		})
	})

	client := newTestClient(t, handler)
	records, err := client.FetchRecords(context.Background(), "contact", models.Filters{Statuses: []string{"active"}})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 1 || records[0]["ClientId"] != "1" {
		t.Errorf("filtered records = %v", records)
	}
}

func TestFetchRecordsWrappedList(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"clients": []map[string]interface{}{
				{"ClientId": "1", "Email": "a@x.com"},
			},
		})
	})

	client := newTestClient(t, handler)
	records, err := client.FetchRecords(context.Background(), "contact", models.Filters{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("fetched %d records, want 1", len(records))
	}
}

func TestLookupByKeyPascalCaseSchema(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("search"); got != "a@x.com" {
			t.Errorf("search query = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"ClientId": "7", "Email": "A@X.COM"},
		})
	})

	client := newTestClient(t, handler)
	record, err := client.LookupByKey(context.Background(), "contact", "email", "a@x.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if record == nil || record["ClientId"] != "7" {
		t.Errorf("record = %v; case-insensitive email match across schemas failed", record)
	}
}

func TestLookupByKeyNoMatch(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"ClientId": "7", "Email": "other@x.com"},
		})
	})

	client := newTestClient(t, handler)
	record, err := client.LookupByKey(context.Background(), "contact", "email", "a@x.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if record != nil {
		t.Errorf("record = %v, want nil for no match", record)
	}
}

// TestCreateRecordTranslatesSchema tests the camelCase to PascalCase
// translation and the derived Name field.
func TestCreateRecordTranslatesSchema(t *testing.T) {
	var gotBody map[string]interface{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/clients" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"ClientId":"9"}`))
	})

	client := newTestClient(t, handler)
	fragment := map[string]interface{}{
		"email":     "a@x.com",
		"firstName": "Jane",
		"lastName":  "Doe",
		"phone":     "555-1000",
		"custom":    "kept",
	}
	if err := client.CreateRecord(context.Background(), "contact", fragment); err != nil {
		t.Fatalf("create: %v", err)
	}

	if gotBody["Email"] != "a@x.com" || gotBody["FirstName"] != "Jane" || gotBody["LastName"] != "Doe" || gotBody["Phone"] != "555-1000" {
		t.Errorf("body = %v, want PascalCase fields", gotBody)
	}
	if gotBody["Name"] != "Jane Doe" {
		t.Errorf("Name = %v, want derived full name", gotBody["Name"])
	}
	if gotBody["custom"] != "kept" {
		t.Error("unknown fields must pass through")
	}
	if _, leaked := gotBody["email"]; leaked {
		t.Error("camelCase fields must be renamed, not duplicated")
	}
}

func TestUpdateRecordCarriesClientID(t *testing.T) {
	var gotBody map[string]interface{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"ClientId":"42"}`))
	})

	client := newTestClient(t, handler)
	existing := map[string]interface{}{"ClientId": "42", "Email": "a@x.com"}
	fragment := map[string]interface{}{"firstName": "Janet"}

	if err := client.UpdateRecord(context.Background(), "contact", existing, fragment); err != nil {
		t.Fatalf("update: %v", err)
	}
	if gotBody["ClientId"] != "42" {
		t.Errorf("ClientId = %v, want carried from existing record", gotBody["ClientId"])
	}
	if gotBody["FirstName"] != "Janet" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestUpdateRecordWithoutClientID(t *testing.T) {
	client := newTestClient(t, http.NotFoundHandler())
	err := client.UpdateRecord(context.Background(), "contact",
		map[string]interface{}{"Email": "a@x.com"}, map[string]interface{}{})
	if err == nil {
		t.Fatal("expected error for record without ClientId")
	}
}
