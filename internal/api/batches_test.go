package api

import (
	"bufio"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redcentre/carbonsvc/internal/batch"
	"github.com/redcentre/carbonsvc/internal/executor/stub"
	"github.com/redcentre/carbonsvc/internal/model"
)

// pollBatch queries the batch until it reports completed.
func pollBatch(t *testing.T, ts *httptest.Server, id string) model.BatchSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var snap model.BatchSnapshot
		resp := doJSON(t, ts, http.MethodGet, "/v1/batches/"+id, nil, &snap)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET batch status = %d, want 200", resp.StatusCode)
		}
		if snap.Completed {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("batch %s did not complete within 5s", id)
	return model.BatchSnapshot{}
}

func TestStartBatchRunsReports(t *testing.T) {
	srv := newTestServerWith(t, stub.Config{Failures: map[string]error{"RepB": errors.New("boom")}})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	startSession(t, ts, "S1", "u1")

	var started startBatchResponse
	resp := doJSON(t, ts, http.MethodPost, "/v1/batches", batch.Request{
		SessionID: "S1",
		Reports:   []string{"RepA", "RepB", "RepC"},
	}, &started)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST status = %d, want 202", resp.StatusCode)
	}
	if started.Parallelism != 1 {
		t.Errorf("parallelism = %d, want 1", started.Parallelism)
	}

	snap := pollBatch(t, ts, started.ID)
	if snap.Counts.Succeeded != 2 || snap.Counts.Failed != 1 {
		t.Errorf("counts = %+v, want 2 succeeded, 1 failed", snap.Counts)
	}
	if len(snap.Items) != 3 || snap.Items[1].State != model.ItemFailed {
		t.Fatalf("items = %+v, want RepB failed", snap.Items)
	}
	if len(snap.Items[1].FailureMessages) == 0 || snap.Items[1].FailureMessages[0] != "boom" {
		t.Errorf("RepB failure messages = %v, want [boom]", snap.Items[1].FailureMessages)
	}

	resp = doJSON(t, ts, http.MethodGet, "/v1/batches/"+started.ID, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET after completed read: status = %d, want 404", resp.StatusCode)
	}

	var rec model.SessionRecord
	doJSON(t, ts, http.MethodGet, "/v1/sessions/S1", nil, &rec)
	if rec.LastActivity != "Batch 3 reports" {
		t.Errorf("last activity = %q, want %q", rec.LastActivity, "Batch 3 reports")
	}
}

func TestStartBatchValidation(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		name string
		req  batch.Request
		want int
	}{
		{"missing session", batch.Request{Reports: []string{"A"}}, http.StatusBadRequest},
		{"no reports", batch.Request{SessionID: "S1"}, http.StatusBadRequest},
		{"unknown session", batch.Request{SessionID: "NOPE", Reports: []string{"A"}}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, ts, http.MethodPost, "/v1/batches", tt.req, nil)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestStartBatchClampsParallelism(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	startSession(t, ts, "S1", "u1")

	var started startBatchResponse
	doJSON(t, ts, http.MethodPost, "/v1/batches", batch.Request{
		SessionID:   "S1",
		Reports:     []string{"A", "B"},
		Parallelism: 64,
	}, &started)
	if started.Parallelism != 4 {
		t.Errorf("parallelism = %d, want 4", started.Parallelism)
	}
	pollBatch(t, ts, started.ID)
}

func TestGetUnknownBatch(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		resp := doJSON(t, ts, method, "/v1/batches/missing", nil, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s unknown batch: status = %d, want 404", method, resp.StatusCode)
		}
	}
}

func TestCancelBatch(t *testing.T) {
	srv := newTestServerWith(t, stub.Config{Delay: 20 * time.Millisecond})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	startSession(t, ts, "S1", "u1")

	var started startBatchResponse
	doJSON(t, ts, http.MethodPost, "/v1/batches", batch.Request{
		SessionID: "S1",
		Reports:   []string{"A", "B", "C", "D", "E", "F", "G", "H"},
	}, &started)

	var cancelled cancelBatchResponse
	resp := doJSON(t, ts, http.MethodDelete, "/v1/batches/"+started.ID, nil, &cancelled)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("DELETE status = %d, want 202", resp.StatusCode)
	}
	if !cancelled.CancelRequested {
		t.Error("cancel_requested = false")
	}

	snap := pollBatch(t, ts, started.ID)
	if !snap.Cancelled {
		t.Errorf("cancelled = false, progress %q", snap.ProgressMessage)
	}
	if snap.Counts.Waiting == 0 {
		t.Errorf("counts = %+v, want some reports left waiting", snap.Counts)
	}
}

func TestBatchEventsStream(t *testing.T) {
	srv := newTestServerWith(t, stub.Config{Delay: 5 * time.Millisecond})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	startSession(t, ts, "S1", "u1")

	var started startBatchResponse
	doJSON(t, ts, http.MethodPost, "/v1/batches", batch.Request{
		SessionID: "S1",
		Reports:   []string{"A", "B"},
	}, &started)

	resp, err := http.Get(ts.URL + "/v1/batches/" + started.ID + "/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	var events []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			events = append(events, name)
		}
	}
	if len(events) == 0 || events[len(events)-1] != "done" {
		t.Fatalf("events = %v, want a trailing done event", events)
	}
	if events[0] != "progress" {
		t.Errorf("first event = %q, want progress", events[0])
	}
}

func TestWriteSSEEventMultiline(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := writeSSEEvent(rec, "progress", "a\nb"); err != nil {
		t.Fatalf("writeSSEEvent: %v", err)
	}
	want := "event: progress\ndata: a\ndata: b\n\n"
	if got := rec.Body.String(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}
