// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

package crm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/synclinic/synclinic/internal/models"
	"github.com/synclinic/synclinic/internal/platform"
	"github.com/synclinic/synclinic/internal/relay"
	"github.com/synclinic/synclinic/internal/store"
)

func newTestRelay(t *testing.T) *relay.Client {
	t.Helper()
	return relay.NewClient("crm-test", relay.Options{
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

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ms := store.NewMemoryStore()
	putCredentials(t, ms, srv.URL, "test-key")
	return New(newTestRelay(t), ms), srv
}

// TestCredentialUpdateAppliesNextCall tests that storing new credentials
// redirects the very next request, with no client rebuild.
func TestCredentialUpdateAppliesNextCall(t *testing.T) {
	contacts := func(key string, hits *int) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*hits++
			if got := r.Header.Get("Authorization"); got != "Bearer "+key {
				t.Errorf("Authorization = %q, want key %q", got, key)
			}
			json.NewEncoder(w).Encode([]map[string]interface{}{
				{"id": "1", "email": "a@x.com"},
			})
		})
	}

	var oldHits, newHits int
	oldSrv := httptest.NewServer(contacts("old-key", &oldHits))
	t.Cleanup(oldSrv.Close)
	newSrv := httptest.NewServer(contacts("new-key", &newHits))
	t.Cleanup(newSrv.Close)

	ms := store.NewMemoryStore()
	putCredentials(t, ms, oldSrv.URL, "old-key")
	client := New(newTestRelay(t), ms)

	if _, err := client.FetchRecords(context.Background(), "contact", models.Filters{}); err != nil {
		t.Fatalf("fetch with initial credentials: %v", err)
	}
	if oldHits == 0 {
		t.Fatal("initial server received no requests")
	}

	putCredentials(t, ms, newSrv.URL, "new-key")

	if _, err := client.FetchRecords(context.Background(), "contact", models.Filters{}); err != nil {
		t.Fatalf("fetch with updated credentials: %v", err)
	}
	if newHits == 0 {
		t.Fatal("updated server received no requests; stale credentials still in use")
	}
}

// TestFetchRecordsCandidateFallback tests that a failing first endpoint
// shape falls through to the second.
func TestFetchRecordsCandidateFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/contacts/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`<html><body>404 Not Found</body></html>`))
	})
	mux.HandleFunc("/contacts", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"contacts": []map[string]interface{}{
				{"id": "1", "email": "a@x.com", "tags": []string{"vip"}},
				{"id": "2", "email": "b@y.com", "tags": []string{"lead"}},
			},
		})
	})

	client, _ := newTestClient(t, mux)
	records, err := client.FetchRecords(context.Background(), "contact", models.Filters{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("fetched %d records, want 2", len(records))
	}
}

func TestFetchRecordsTagFilter(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"contacts": []map[string]interface{}{
				{"id": "1", "email": "a@x.com", "tags": []interface{}{"vip"}},
				{"id": "2", "email": "b@y.com", "tags": []interface{}{"lead"}},
				{"id": "3", "email": "c@z.com"},
			},
		})
	})

	client, _ := newTestClient(t, handler)
	records, err := client.FetchRecords(context.Background(), "contact", models.Filters{Tags: []string{"vip"}})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 1 || records[0]["email"] != "a@x.com" {
		t.Errorf("filtered records = %v", records)
	}
}

func TestFetchRecordsUnsupportedCategory(t *testing.T) {
	client, _ := newTestClient(t, http.NotFoundHandler())
	_, err := client.FetchRecords(context.Background(), "appointment", models.Filters{})
	if err == nil || !errors.Is(err, platform.ErrUnsupportedCategory) {
		t.Fatalf("err = %v, want ErrUnsupportedCategory", err)
	}
}

func TestLookupByKeyEmail(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/contacts/lookup" {
			t.Errorf("path = %q", r.URL.Path)
		}
		// The client lowercases the email before sending.
		if got := r.URL.Query().Get("email"); got != "a@x.com" {
			t.Errorf("email query = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"contacts": []map[string]interface{}{
				{"id": "1", "Email": "A@X.com"},
			},
		})
	})

	client, _ := newTestClient(t, handler)
	record, err := client.LookupByKey(context.Background(), "contact", "email", "A@X.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if record == nil || record["id"] != "1" {
		t.Errorf("record = %v", record)
	}
}

func TestLookupByKeyNotFound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}`))
	})

	client, _ := newTestClient(t, handler)
	record, err := client.LookupByKey(context.Background(), "contact", "email", "nobody@x.com")
	if err != nil {
		t.Fatalf("404 must not be an error: %v", err)
	}
	if record != nil {
		t.Errorf("record = %v, want nil", record)
	}
}

func TestUpdateRecordUsesExistingID(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"ok":true}`))
	})

	client, _ := newTestClient(t, handler)
	existing := map[string]interface{}{"ID": "contact-42", "email": "a@x.com"}
	fragment := map[string]interface{}{"firstName": "Jane"}

	if err := client.UpdateRecord(context.Background(), "contact", existing, fragment); err != nil {
		t.Fatalf("update: %v", err)
	}
	if gotPath != "/contacts/contact-42" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["firstName"] != "Jane" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestUpdateRecordWithoutID(t *testing.T) {
	client, _ := newTestClient(t, http.NotFoundHandler())
	err := client.UpdateRecord(context.Background(), "contact",
		map[string]interface{}{"email": "a@x.com"}, map[string]interface{}{})
	if err == nil {
		t.Fatal("expected error for record without id")
	}
}

func TestCreateRecordSurfacesHTMLError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`<html><body>401 Unauthorized</body></html>`))
	})

	client, _ := newTestClient(t, handler)
	err := client.CreateRecord(context.Background(), "contact", map[string]interface{}{"email": "a@x.com"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "invalid API key") {
		t.Errorf("err = %v, want HTML diagnosis in message", err)
	}
}
