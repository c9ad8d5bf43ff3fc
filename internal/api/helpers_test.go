package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// doJSON sends body as JSON and decodes the response into out when non-nil.
func doJSON(t *testing.T, ts *httptest.Server, method, path string, body, out any) *http.Response {
	t.Helper()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp
}

// startSession creates a session through the API and fails the test otherwise.
func startSession(t *testing.T, ts *httptest.Server, id, userID string) {
	t.Helper()
	resp := doJSON(t, ts, http.MethodPost, "/v1/sessions", startSessionRequest{
		SessionID: id,
		UserID:    userID,
		UserName:  "User " + userID,
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start session %s: status = %d, want 201", id, resp.StatusCode)
	}
}
