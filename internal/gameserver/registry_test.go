package gameserver_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jensholdgaard/assault-pugbot/internal/config"
	"github.com/jensholdgaard/assault-pugbot/internal/gameserver"
)

func testRegistry() *gameserver.Registry {
	return gameserver.NewRegistry(config.GameServerConfig{
		Default: "pugs2",
		List: []config.ServerEntry{
			{Ref: "pugs1", Name: "One"},
			{Ref: "pugs2", Name: "Two", OnDemand: true},
			{Ref: "pugs3", Name: "Three"},
		},
		Rotation: []int{1, 3, 9},
	})
}

func TestRegistry_DefaultAndUse(t *testing.T) {
	r := testRegistry()
	if got := r.Current().Ref; got != "pugs2" {
		t.Fatalf("Current() = %q, want default pugs2", got)
	}

	prev, changed, err := r.Use(0)
	if err != nil || !changed || prev.Ref != "pugs2" || r.Current().Ref != "pugs1" {
		t.Errorf("Use(0) = %v, %v, %v; current %q", prev, changed, err, r.Current().Ref)
	}
	if _, changed, _ := r.Use(0); changed {
		t.Error("Use() of the current server reported a change")
	}
	if _, _, err := r.Use(5); !errors.Is(err, gameserver.ErrUnknownServer) {
		t.Errorf("Use(5) error = %v, want ErrUnknownServer", err)
	}
	if _, _, err := r.UseRef("pugs3"); err != nil || r.Current().Ref != "pugs3" {
		t.Errorf("UseRef(pugs3) error = %v, current %q", err, r.Current().Ref)
	}
}

func TestRegistry_RotationIndex(t *testing.T) {
	r := testRegistry()
	if diff := cmp.Diff([]int{1, 3}, r.Rotation()); diff != "" {
		t.Errorf("out-of-range rotation entries kept (-want +got):\n%s", diff)
	}

	tests := []struct {
		date time.Time
		want int
	}{
		// 2025 ISO week 2: 202502 % 2 == 0 -> rotation[0] = 1 -> index 0.
		{date: time.Date(2025, 1, 8, 12, 0, 0, 0, time.UTC), want: 0},
		// 2025 ISO week 3: 202503 % 2 == 1 -> rotation[1] = 3 -> index 2.
		{date: time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC), want: 2},
	}
	for _, tt := range tests {
		got, ok := r.RotationIndex(tt.date)
		if !ok || got != tt.want {
			t.Errorf("RotationIndex(%s) = %d, %v; want %d", tt.date.Format("2006-01-02"), got, ok, tt.want)
		}
	}

	empty := gameserver.NewRegistry(config.GameServerConfig{List: []config.ServerEntry{{Ref: "a"}}})
	if _, ok := empty.RotationIndex(time.Now()); ok {
		t.Error("RotationIndex() without rotation should report false")
	}
}

func TestRegistry_Refresh(t *testing.T) {
	r := testRegistry()

	withoutDefault := []gameserver.Info{{ServerRef: "x", Status: gameserver.ServerStatus{Summary: "OPEN - PUBLIC"}}}
	if r.Refresh(withoutDefault) {
		t.Fatal("Refresh() replaced the list without a working default server")
	}

	list := []gameserver.Info{
		{ServerRef: "pugs1", ServerName: "One", ServerAddr: "1.2.3.4", ServerPort: 7777, ServerDefault: true,
			Status: gameserver.ServerStatus{Summary: "OPEN - PUBLIC"}},
		{ServerRef: "pugs2", ServerName: "Two", CloudManaged: true, Status: gameserver.ServerStatus{Summary: "N/A"}},
		{ServerRef: "dead", ServerName: "Dead", Status: gameserver.ServerStatus{Summary: "N/A"}},
	}
	if !r.Refresh(list) {
		t.Fatal("Refresh() kept the local list")
	}
	servers := r.Servers()
	if len(servers) != 2 {
		t.Fatalf("Servers() = %+v, want the online and on-demand servers", servers)
	}
	if servers[0].URL != "unreal://1.2.3.4:7777" || servers[0].LastStatus != "OPEN - PUBLIC" {
		t.Errorf("servers[0] = %+v", servers[0])
	}
	if r.Current().Ref != "pugs2" {
		t.Errorf("Current() = %q, want pugs2 kept", r.Current().Ref)
	}
	if diff := cmp.Diff([]int{1}, r.Rotation()); diff != "" {
		t.Errorf("rotation not trimmed to the new list (-want +got):\n%s", diff)
	}
}
