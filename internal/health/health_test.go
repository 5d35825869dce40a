package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jensholdgaard/assault-pugbot/internal/clock"
	"github.com/jensholdgaard/assault-pugbot/internal/health"
	"github.com/jensholdgaard/assault-pugbot/internal/match"
)

var testClk = clock.NewMock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))

type fakePugs []match.Snapshot

func (f fakePugs) Snapshots() []match.Snapshot { return f }

func TestLivenessHandler(t *testing.T) {
	h := health.NewHandler(testClk)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	h.LivenessHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", rec.Code, http.StatusOK)
	}
	var s health.Status
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s.Status != "ok" || s.Timestamp != "2025-06-15T12:00:00Z" {
		t.Errorf("got %+v, want ok at the mocked time", s)
	}
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name       string
		ready      bool
		checkers   []health.Checker
		wantCode   int
		wantStatus string
	}{
		{
			name:       "not ready",
			ready:      false,
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "not_ready",
		},
		{
			name:       "ready no checkers",
			ready:      true,
			wantCode:   http.StatusOK,
			wantStatus: "ready",
		},
		{
			name:  "ready all checks pass",
			ready: true,
			checkers: []health.Checker{
				{Name: "store", Check: func(ctx context.Context) error { return nil }},
				{Name: "gameserver", Check: func(ctx context.Context) error { return nil }},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ready",
		},
		{
			name:  "game server unreachable",
			ready: true,
			checkers: []health.Checker{
				{Name: "store", Check: func(ctx context.Context) error { return nil }},
				{Name: "gameserver", Check: func(ctx context.Context) error { return errors.New("connection refused") }},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "not_ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := health.NewHandler(testClk, tt.checkers...)
			h.SetReady(tt.ready, nil)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

			h.ReadinessHandler().ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("got status %d, want %d", rec.Code, tt.wantCode)
			}
			var s health.Status
			if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
				t.Fatal(err)
			}
			if s.Status != tt.wantStatus {
				t.Errorf("got status %q, want %q", s.Status, tt.wantStatus)
			}
		})
	}
}

func TestPugsHandler(t *testing.T) {
	pugs := fakePugs{
		{Channel: "c1", Mode: "stdAS", Signed: 3, Capacity: 12, Server: "Pug 1"},
		{Channel: "c2", Mode: "rASplus", Ranked: true, Signed: 8, Capacity: 8, Locked: true, MatchCode: "M1"},
	}
	tests := []struct {
		name string
		pugs health.Snapshotter
		want []match.Snapshot
	}{
		{name: "not leading", pugs: nil, want: []match.Snapshot{}},
		{name: "leading", pugs: pugs, want: pugs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := health.NewHandler(testClk)
			h.SetReady(tt.pugs != nil, tt.pugs)

			rec := httptest.NewRecorder()
			h.PugsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pugz", nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("got status %d, want %d", rec.Code, http.StatusOK)
			}
			var got health.PugStatus
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got.Pugs); diff != "" {
				t.Errorf("pugs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
