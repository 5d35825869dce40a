package match_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jensholdgaard/assault-pugbot/internal/gameserver"
	"github.com/jensholdgaard/assault-pugbot/internal/match"
)

func newTestManager(t *testing.T, mode string) (*match.Manager, *harness) {
	t.Helper()
	h := newHarness(t, 4)
	cfg := testPugConfig(4)
	cfg.Mode = mode
	return match.NewManager(cfg, testServers(), testDeps(h)), h
}

func TestManager_EnableDisable(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, "proAS")

	if _, err := m.Get("chan-1"); !errors.Is(err, match.ErrNotEnabled) {
		t.Errorf("Get() before enable error = %v, want ErrNotEnabled", err)
	}
	c, err := m.Enable(ctx, "chan-1")
	if err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	if got := c.Snapshot().Mode; got != "proAS" {
		t.Errorf("mode = %q, want proAS", got)
	}
	if _, err := m.Enable(ctx, "chan-1"); !errors.Is(err, match.ErrAlreadyEnabled) {
		t.Errorf("second Enable() error = %v, want ErrAlreadyEnabled", err)
	}
	if _, err := m.Enable(ctx, "chan-0"); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	if diff := cmp.Diff([]string{"chan-0", "chan-1"}, m.Channels()); diff != "" {
		t.Errorf("Channels() mismatch (-want +got):\n%s", diff)
	}

	if err := m.Disable(ctx, "chan-1"); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}
	if err := m.Disable(ctx, "chan-1"); !errors.Is(err, match.ErrNotEnabled) {
		t.Errorf("second Disable() error = %v, want ErrNotEnabled", err)
	}
	if got := len(m.Snapshots()); got != 1 {
		t.Errorf("Snapshots() = %d pugs, want 1", got)
	}
}

func TestManager_EnableRejectedRankedMode(t *testing.T) {
	m, _ := newTestManager(t, "rASplus")
	c, err := m.Enable(context.Background(), "chan-1")
	if err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	// An empty roster is always eligible, so ranked mode is taken.
	if s := c.Snapshot(); s.Mode != "rASplus" || !s.Ranked {
		t.Errorf("Snapshot() = %+v, want ranked rASplus", s)
	}
}

func TestManager_TickPollsLiveMatches(t *testing.T) {
	ctx := context.Background()
	m, h := newTestManager(t, "stdAS")
	c, err := m.Enable(ctx, "chan-1")
	if err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	h.c = c
	h.draftCasual(t)

	m.Tick(ctx)
	if !c.Snapshot().Locked {
		t.Fatal("Tick() ended a match that has not finished")
	}

	h.api.check = gameserver.Info{
		SetupResult: gameserver.ResultMatchFinished,
		Status:      gameserver.ServerStatus{Summary: "MATCH OVER", ScoreRed: 1, ScoreBlue: 2},
	}
	m.Tick(ctx)
	if c.Snapshot().Locked {
		t.Error("Tick() did not end the finished match")
	}
}
