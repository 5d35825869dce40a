package match_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/jensholdgaard/assault-pugbot/internal/maps"
	"github.com/jensholdgaard/assault-pugbot/internal/match"
	"github.com/jensholdgaard/assault-pugbot/internal/rating"
)

// memMapLists implements maps.Repository in memory. Save fails while
// failSave is set.
type memMapLists struct {
	mu       sync.Mutex
	lists    map[string][]string
	saves    int
	failSave bool
}

func (m *memMapLists) Load(_ context.Context, channel string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, ok := m.lists[channel]
	if !ok {
		return nil, maps.ErrNoSavedList
	}
	return slices.Clone(list), nil
}

func (m *memMapLists) Save(_ context.Context, channel string, list []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errors.New("disk full")
	}
	if m.lists == nil {
		m.lists = make(map[string][]string)
	}
	m.lists[channel] = slices.Clone(list)
	m.saves++
	return nil
}

// serverMaps is the ListMaps output of a casual pug offering ms.
func serverMaps(ms ...string) string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = fmt.Sprintf("**%d)** %s", i+1, m)
	}
	return "Server map list is:\n" + strings.Join(out, "\U0001F538")
}

func newMapListManager(t *testing.T, lists *memMapLists) *match.Manager {
	t.Helper()
	deps := testDeps(newHarness(t, 4))
	deps.MapLists = lists
	return match.NewManager(testPugConfig(4), testServers(), deps)
}

func TestMapListEditsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	lists := &memMapLists{}

	c, err := newMapListManager(t, lists).Enable(ctx, "chan-1")
	if err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	if _, err := c.AddMap(ctx, "AS-Mazon"); err != nil {
		t.Fatalf("AddMap() error = %v", err)
	}
	if _, err := c.InsertMap(ctx, 1, "AS-Siege]["); err != nil {
		t.Fatalf("InsertMap() error = %v", err)
	}
	if _, err := c.ReplaceMap(ctx, 3, "AS-Riverbed]["); err != nil {
		t.Fatalf("ReplaceMap() error = %v", err)
	}
	if _, err := c.RemoveMap(ctx, "AS-Rook"); err != nil {
		t.Fatalf("RemoveMap() error = %v", err)
	}
	if _, err := c.AddMap(ctx, "AS-Bridge"); !errors.Is(err, maps.ErrDuplicateMap) {
		t.Fatalf("AddMap(duplicate) error = %v, want ErrDuplicateMap", err)
	}
	if lists.saves != 4 {
		t.Errorf("saves = %d, want one per successful edit", lists.saves)
	}

	want := serverMaps("AS-Siege][", "AS-Bridge", "AS-Riverbed][", "AS-Guardia", "AS-Mazon")
	if got := c.ListMaps(false); got != want {
		t.Fatalf("ListMaps() = %q, want %q", got, want)
	}

	// A new manager stands in for a restart or a new leader.
	restarted, err := newMapListManager(t, lists).Enable(ctx, "chan-1")
	if err != nil {
		t.Fatalf("Enable() after restart error = %v", err)
	}
	if got := restarted.ListMaps(false); got != want {
		t.Errorf("ListMaps() after restart = %q, want %q", got, want)
	}

	other, err := newMapListManager(t, lists).Enable(ctx, "chan-2")
	if err != nil {
		t.Fatalf("Enable(chan-2) error = %v", err)
	}
	if got, want := other.ListMaps(false), serverMaps(testPugConfig(4).MapList...); got != want {
		t.Errorf("ListMaps() in another channel = %q, want the configured list", got)
	}
}

func TestMapListEditUndoneWhenSaveFails(t *testing.T) {
	ctx := context.Background()
	lists := &memMapLists{failSave: true}

	c, err := newMapListManager(t, lists).Enable(ctx, "chan-1")
	if err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	if _, err := c.AddMap(ctx, "AS-Mazon"); err == nil {
		t.Fatal("AddMap() error = nil, want save failure")
	}
	if _, err := c.RemoveMap(ctx, "AS-Bridge"); err == nil {
		t.Fatal("RemoveMap() error = nil, want save failure")
	}
	if got, want := c.ListMaps(false), serverMaps(testPugConfig(4).MapList...); got != want {
		t.Errorf("ListMaps() = %q, want the list before the failed edits", got)
	}
}

func TestMapListEditsRefusedWhileLive(t *testing.T) {
	ctx := context.Background()
	lists := &memMapLists{}
	m := newMapListManager(t, lists)
	c, err := m.Enable(ctx, "chan-1")
	if err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	h := newHarness(t, 4)
	h.c = c
	h.draftCasual(t)

	if _, err := c.AddMap(ctx, "AS-Mazon"); !errors.Is(err, match.ErrInProgress) {
		t.Errorf("AddMap() while live error = %v, want ErrInProgress", err)
	}
	if lists.saves != 0 {
		t.Errorf("saves = %d, want 0", lists.saves)
	}
}

func TestLockedAndInProgress(t *testing.T) {
	ctx := context.Background()
	m, h := newTestManager(t, "stdAS")
	c, err := m.Enable(ctx, "chan-1")
	if err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	if _, err := m.Enable(ctx, "chan-2"); err != nil {
		t.Fatalf("Enable(chan-2) error = %v", err)
	}
	if c.Locked() || m.InProgress("stdAS") {
		t.Fatal("pug locked before any match")
	}

	h.c = c
	h.draftCasual(t)

	if !c.Locked() {
		t.Error("Locked() = false with a live match")
	}
	tests := []struct {
		mode string
		want bool
	}{
		{"stdAS", true},
		{"stdas", true},
		{"rASplus", false},
	}
	for _, tt := range tests {
		if got := m.InProgress(tt.mode); got != tt.want {
			t.Errorf("InProgress(%q) = %v, want %v", tt.mode, got, tt.want)
		}
	}
}

func TestSimulateMapsClampsRuns(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 4)
	_, err := h.ratings.Update(ctx, "rASplus", func(b *rating.Block) error {
		b.Maps.MapList = []maps.Weighting{
			{Map: "AS-Bridge", Order: 1, Weight: 1},
			{Map: "AS-Frigate", Order: 2, Weight: 1},
			{Map: "AS-Rook", Order: 0, Weight: 2},
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if _, err := h.c.SetMode(ctx, "rASplus"); err != nil {
		t.Fatalf("SetMode(rASplus) error = %v", err)
	}

	tests := []struct {
		runs int
		want int
	}{
		{runs: 0, want: 1},
		{runs: 3, want: 3},
		{runs: 100000, want: match.MaxSimulations},
	}
	for _, tt := range tests {
		reply, err := h.c.SimulateMaps(ctx, tt.runs)
		if err != nil {
			t.Fatalf("SimulateMaps(%d) error = %v", tt.runs, err)
		}
		if got := strings.Count(reply, "**Run "); got != tt.want {
			t.Errorf("SimulateMaps(%d) ran %d times, want %d", tt.runs, got, tt.want)
		}
	}
}
