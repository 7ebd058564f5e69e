// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

// Package normalize classifies raw upstream HTTP responses into typed
// outcomes. Both upstream systems are known to return HTML error pages,
// redirects, and non-JSON bodies under error conditions; Classify turns
// that opaque surface into an explicit tagged variant with a
// human-readable diagnostic, so no caller ever inspects ad hoc sentinel
// fields on a JSON blob.
//
// Classify is a pure function of its inputs: identical (status,
// contentType, body) always yields the identical variant and diagnostics.
// It performs no retries and no I/O.
package normalize

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Kind tags the variant of a normalized response.
type Kind string

const (
	// KindSuccess carries a usable payload: parsed JSON, or an opaque-text
	// wrapper for non-JSON APIs degrading gracefully.
	KindSuccess Kind = "success"
	// KindHTMLError marks an HTML document returned where JSON was
	// expected, the signature failure mode of a misconfigured upstream.
	KindHTMLError Kind = "html_error"
	// KindRedirect marks a raw 3xx surfaced by the relay.
	KindRedirect Kind = "redirect"
	// KindEmpty marks a body that is empty after trimming.
	KindEmpty Kind = "empty"
	// KindParseError marks a body that looked like JSON but did not parse.
	KindParseError Kind = "parse_error"
)

// Snippet length limits for diagnostics.
const (
	htmlSnippetLen  = 500
	parseSnippetLen = 1000
)

// Response is the normalized form of one upstream HTTP response. Exactly
// one variant-specific field group is populated, selected by Kind.
// ErrorMessage is out-of-band: a status-band diagnostic attached whenever
// the HTTP status is 400 or above, regardless of variant.
type Response struct {
	Kind   Kind
	Status int

	// KindSuccess
	Payload interface{}

	// KindHTMLError
	Snippet   string
	Diagnosis string

	// KindRedirect
	Location string

	// KindParseError
	RawSnippet string
	Reason     string

	// Status-band message for status >= 400. Augments the variant, never
	// changes it.
	ErrorMessage string
}

// OK reports whether the response is a success with no status-band error.
func (r *Response) OK() bool {
	return r.Kind == KindSuccess && r.ErrorMessage == ""
}

// Err converts a non-OK response into an error for callers that propagate
// failures. It returns nil for OK responses.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	switch r.Kind {
	case KindHTMLError:
		return &UpstreamError{StatusCode: r.Status, Kind: r.Kind, Message: r.Diagnosis}
	case KindRedirect:
		return &UpstreamError{StatusCode: r.Status, Kind: r.Kind, Message: "unexpected redirect to " + r.Location}
	case KindParseError:
		return &UpstreamError{StatusCode: r.Status, Kind: r.Kind, Message: "response body is not valid JSON: " + r.Reason}
	default:
		return &UpstreamError{StatusCode: r.Status, Kind: r.Kind, Message: r.ErrorMessage}
	}
}

// PayloadObject returns the payload as a JSON object when it is one.
func (r *Response) PayloadObject() (map[string]interface{}, bool) {
	obj, ok := r.Payload.(map[string]interface{})
	return obj, ok
}

// PayloadArray returns the payload as a JSON array when it is one.
func (r *Response) PayloadArray() ([]interface{}, bool) {
	arr, ok := r.Payload.([]interface{})
	return arr, ok
}

// UpstreamError is the typed failure a non-OK normalized response reduces
// to when a caller needs an error value.
type UpstreamError struct {
	StatusCode int
	Kind       Kind
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return "upstream error: " + e.Message
}

// Classify normalizes one raw upstream response. requestURL appears only
// in diagnostics; it never influences the variant.
func Classify(status int, contentType string, body []byte, requestURL string) *Response {
	resp := classifyVariant(status, contentType, body, requestURL)
	resp.Status = status
	if status >= 400 {
		resp.ErrorMessage = statusBandMessage(status)
	}
	return resp
}

func classifyVariant(status int, contentType string, body []byte, requestURL string) *Response {
	text := string(body)

	if isHTMLDocument(text) {
		return &Response{
			Kind:      KindHTMLError,
			Snippet:   truncate(text, htmlSnippetLen),
			Diagnosis: diagnoseHTML(text),
		}
	}

	if status >= 300 && status < 400 {
		return &Response{Kind: KindRedirect}
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return &Response{Kind: KindEmpty}
	}

	if (trimmed[0] == '{' || trimmed[0] == '[') && jsonContentType(contentType) {
		var payload interface{}
		if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
			return &Response{
				Kind:       KindParseError,
				RawSnippet: truncate(text, parseSnippetLen),
				Reason:     err.Error(),
			}
		}
		return &Response{Kind: KindSuccess, Payload: payload}
	}

	// Opaque non-JSON body: degrade gracefully rather than failing, so
	// callers of plain-text endpoints still get a usable payload.
	return &Response{
		Kind: KindSuccess,
		Payload: map[string]interface{}{
			"text":        text,
			"contentType": contentType,
		},
	}
}

// WithLocation sets the redirect target from the Location header. The
// relay does not follow raw redirects on the caller's behalf; it reports
// them instead of guessing a destination.
func (r *Response) WithLocation(location string) *Response {
	r.Location = location
	return r
}

func isHTMLDocument(text string) bool {
	return strings.Contains(text, "<!DOCTYPE") || strings.Contains(text, "<html")
}

// diagnoseHTML derives a diagnostic from an HTML error page by substring
// search, in priority order.
func diagnoseHTML(text string) string {
	switch {
	case strings.Contains(text, "401") || strings.Contains(text, "Unauthorized"):
		return "401 Unauthorized - invalid API key or credentials"
	case strings.Contains(text, "403") || strings.Contains(text, "Forbidden"):
		return "403 Forbidden - access denied"
	case strings.Contains(text, "404") || strings.Contains(text, "Not Found"):
		return "404 Not Found - endpoint missing"
	case strings.Contains(text, "500") || strings.Contains(text, "Internal Server Error"):
		return "500 Internal Server Error - upstream server fault"
	default:
		return "authentication failed or invalid endpoint"
	}
}

// jsonContentType reports whether the content type permits a JSON parse
// attempt. An absent content type is treated as JSON because both
// upstreams omit it on some endpoints.
func jsonContentType(contentType string) bool {
	return contentType == "" || strings.Contains(contentType, "application/json")
}

func statusBandMessage(status int) string {
	switch {
	case status == 401:
		return "authentication failed: API key invalid or expired"
	case status == 403:
		return "access forbidden: check API permissions"
	case status == 404:
		return "resource not found: check endpoint URL"
	case status >= 500:
		return "server error: upstream internal fault"
	default:
		return "client error: check request parameters"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
