package editor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kwv/floorplan/spatial"
)

func planJSON(t *testing.T, p *spatial.FloorPlan) []byte {
	t.Helper()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal plan: %v", err)
	}
	return data
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...ClientOption) *APIClient {
	t.Helper()
	opts = append([]ClientOption{WithHTTPClient(srv.Client()), WithBaseBackoff(time.Millisecond)}, opts...)
	c, err := NewAPIClient(srv.URL+"/api/", opts...)
	if err != nil {
		t.Fatalf("NewAPIClient: %v", err)
	}
	return c
}

func TestNewAPIClient_EmptyURL(t *testing.T) {
	_, err := NewAPIClient("")
	if err == nil || !strings.Contains(err.Error(), "base URL is empty") {
		t.Fatalf("expected empty URL error, got %v", err)
	}
}

func TestGetFloorPlan_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/floor-plans/fp-1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer secret")
		}
		w.Header().Set("Cache-Control", "private, max-age=30")
		w.Header().Set("ETag", `"4"`)
		_, _ = w.Write(planJSON(t, testPlan()))
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv, WithToken("secret")).GetFloorPlan(context.Background(), "fp-1")
	if err != nil {
		t.Fatalf("GetFloorPlan: %v", err)
	}
	if res.Plan.ID != "fp-1" || len(res.Plan.Spaces) != 1 {
		t.Errorf("plan = %+v, want fp-1 with one space", res.Plan)
	}
	if res.CacheControl != "private, max-age=30" {
		t.Errorf("CacheControl = %q", res.CacheControl)
	}
	if res.ETag != `"4"` {
		t.Errorf("ETag = %q", res.ETag)
	}
}

func TestSaveFloorPlan_SendsIfMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		if got := r.Header.Get("If-Match"); got != "4" {
			t.Errorf("If-Match = %q, want %q", got, "4")
		}
		var p spatial.FloorPlan
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode body: %v", err)
		}
		p.Metadata.Version = 5
		_ = json.NewEncoder(w).Encode(p)
	}))
	defer srv.Close()

	saved, err := newTestClient(t, srv).SaveFloorPlan(context.Background(), testPlan(), 4)
	if err != nil {
		t.Fatalf("SaveFloorPlan: %v", err)
	}
	if saved.Metadata.Version != 5 {
		t.Errorf("Version = %d, want 5", saved.Metadata.Version)
	}
}

func TestSaveFloorPlan_Conflict(t *testing.T) {
	for _, status := range []int{http.StatusConflict, http.StatusPreconditionFailed} {
		var attempts atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			attempts.Add(1)
			http.Error(w, "modified by another user", status)
		}))

		_, err := newTestClient(t, srv).SaveFloorPlan(context.Background(), testPlan(), 4)
		srv.Close()

		if !IsConflict(err) {
			t.Fatalf("status %d: expected conflict, got %v", status, err)
		}
		var ce *ConflictError
		errors.As(err, &ce)
		if ce.Version != 4 || !strings.Contains(ce.Message, "modified by another user") {
			t.Errorf("status %d: conflict = %+v", status, ce)
		}
		if attempts.Load() != 1 {
			t.Errorf("status %d: attempts = %d, want 1", status, attempts.Load())
		}
	}
}

func TestAPIClient_RetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		switch attempts.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = w.Write(planJSON(t, testPlan()))
		}
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).GetFloorPlan(context.Background(), "fp-1")
	if err != nil {
		t.Fatalf("GetFloorPlan: %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestAPIClient_RetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, WithMaxRetries(4)).SaveFloorPlan(context.Background(), testPlan(), 4)
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	var te *TransientError
	errors.As(err, &te)
	if te.Attempts != 4 || te.StatusCode != http.StatusBadGateway {
		t.Errorf("TransientError = %+v", te)
	}
	if attempts.Load() != 4 {
		t.Errorf("attempts = %d, want 4", attempts.Load())
	}
}

func TestAPIClient_ClientErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		http.Error(w, "no such plan", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).GetFloorPlan(context.Background(), "missing")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
	if IsTransient(err) || IsConflict(err) {
		t.Errorf("404 classified as transient or conflict: %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1", attempts.Load())
	}
}

func TestAPIClient_MalformedPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "not json"},
		{"missing id", `{"metadata":{"dimensions":{"width":10,"height":10}},"spaces":[],"status":"DRAFT"}`},
		{"unknown status", `{"id":"fp-1","metadata":{"dimensions":{"width":10,"height":10}},"spaces":[],"status":"LIVE"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				attempts.Add(1)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).GetFloorPlan(context.Background(), "fp-1")
			if !errors.Is(err, spatial.ErrMalformedPayload) {
				t.Fatalf("expected ErrMalformedPayload, got %v", err)
			}
			if attempts.Load() != 1 {
				t.Errorf("attempts = %d, want 1 (parse errors are not retried)", attempts.Load())
			}
		})
	}
}

func TestAPIClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, srv, WithBaseBackoff(time.Second)).GetFloorPlan(ctx, "fp-1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPatchMetadataAndStatus(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		p := testPlan()
		if strings.HasSuffix(r.URL.Path, "/status") {
			if !strings.Contains(string(body), `"status":"REVIEW"`) {
				t.Errorf("status body = %s", body)
			}
			p.Status = spatial.StatusReview
		} else if !strings.Contains(string(body), `"name":"Renamed"`) {
			t.Errorf("metadata body = %s", body)
		}
		_, _ = w.Write(planJSON(t, p))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	name := "Renamed"
	if _, err := c.PatchMetadata(context.Background(), "fp-1", MetadataUpdate{Name: &name}, 4); err != nil {
		t.Fatalf("PatchMetadata: %v", err)
	}
	p, err := c.PatchStatus(context.Background(), "fp-1", spatial.StatusReview, 4)
	if err != nil {
		t.Fatalf("PatchStatus: %v", err)
	}
	if p.Status != spatial.StatusReview {
		t.Errorf("Status = %s, want REVIEW", p.Status)
	}
	want := []string{"PATCH /api/floor-plans/fp-1/metadata", "PATCH /api/floor-plans/fp-1/status"}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Errorf("paths = %v, want %v", paths, want)
	}

	if _, err := c.PatchStatus(context.Background(), "fp-1", "LIVE", 4); !errors.Is(err, ErrUnknownStatus) {
		t.Errorf("expected ErrUnknownStatus, got %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("2"); got != 2*time.Second {
		t.Errorf("parseRetryAfter(2) = %v", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("parseRetryAfter(\"\") = %v", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Errorf("parseRetryAfter(soon) = %v", got)
	}
	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(future); got < 59*time.Minute {
		t.Errorf("parseRetryAfter(date) = %v, want about 1h", got)
	}
}
