package postgres_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jensholdgaard/assault-pugbot/internal/event"
	"github.com/jensholdgaard/assault-pugbot/internal/store/postgres"
)

func TestEventStore_AppendAndLoad(t *testing.T) {
	db := newTestDB(t)
	es := postgres.NewEventStore(db)
	ctx := context.Background()

	aggID := "PUG-001"
	events := []event.Event{
		{AggregateID: aggID, Type: event.MatchSetup, Data: json.RawMessage(`{"match_code":"PUG-001"}`), Version: 1},
		{AggregateID: aggID, Type: event.MatchEnded, Data: json.RawMessage(`{"red_score":3,"blue_score":1}`), Version: 2},
	}

	if err := es.Append(ctx, events...); err != nil {
		t.Fatalf("Append: %v", err)
	}

	loaded, err := es.Load(ctx, aggID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("Load returned %d events, want 2", len(loaded))
	}

	// Should be ordered by version.
	if loaded[0].Version != 1 || loaded[1].Version != 2 {
		t.Errorf("versions = [%d, %d], want [1, 2]", loaded[0].Version, loaded[1].Version)
	}
	if loaded[0].Type != event.MatchSetup {
		t.Errorf("event[0].Type = %q, want %q", loaded[0].Type, event.MatchSetup)
	}
}

func TestEventStore_AssignsVersions(t *testing.T) {
	db := newTestDB(t)
	es := postgres.NewEventStore(db)
	ctx := context.Background()

	if err := es.Append(ctx,
		event.New("42", event.RatingSet, event.RatingChangeData{PlayerID: "42", After: 500}),
		event.New("42", event.RatingsAwarded, event.RatingChangeData{PlayerID: "42", Before: 500, After: 523}),
	); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := es.Append(ctx, event.New("42", event.RatingRecalculated, nil)); err != nil {
		t.Fatalf("second Append: %v", err)
	}

	loaded, err := es.Load(ctx, "42")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("Load returned %d events, want 3", len(loaded))
	}
	for i, e := range loaded {
		if e.Version != i+1 {
			t.Errorf("event[%d].Version = %d, want %d", i, e.Version, i+1)
		}
	}
}

func TestEventStore_LoadByType(t *testing.T) {
	db := newTestDB(t)
	es := postgres.NewEventStore(db)
	ctx := context.Background()

	events := []event.Event{
		{AggregateID: "m1", Type: event.MatchSetup, Data: json.RawMessage(`{}`), Version: 1},
		{AggregateID: "m1", Type: event.MatchEnded, Data: json.RawMessage(`{}`), Version: 2},
		{AggregateID: "m2", Type: event.MatchSetup, Data: json.RawMessage(`{}`), Version: 1},
	}

	if err := es.Append(ctx, events...); err != nil {
		t.Fatalf("Append: %v", err)
	}

	setups, err := es.LoadByType(ctx, event.MatchSetup)
	if err != nil {
		t.Fatalf("LoadByType: %v", err)
	}
	if len(setups) != 2 {
		t.Fatalf("LoadByType(MatchSetup) returned %d, want 2", len(setups))
	}

	ended, err := es.LoadByType(ctx, event.MatchEnded)
	if err != nil {
		t.Fatalf("LoadByType: %v", err)
	}
	if len(ended) != 1 {
		t.Fatalf("LoadByType(MatchEnded) returned %d, want 1", len(ended))
	}
}

func TestEventStore_UniqueAggregateVersion(t *testing.T) {
	db := newTestDB(t)
	es := postgres.NewEventStore(db)
	ctx := context.Background()

	e := event.Event{
		AggregateID: "dup-test",
		Type:        event.MatchReset,
		Data:        json.RawMessage(`{}`),
		Version:     1,
	}

	if err := es.Append(ctx, e); err != nil {
		t.Fatalf("first Append: %v", err)
	}

	// Duplicate version for the same aggregate should fail.
	err := es.Append(ctx, e)
	if err == nil {
		t.Fatal("expected error for duplicate aggregate_id + version")
	}
}

func TestEventStore_LoadEmpty(t *testing.T) {
	db := newTestDB(t)
	es := postgres.NewEventStore(db)
	ctx := context.Background()

	loaded, err := es.Load(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected empty slice, got %d events", len(loaded))
	}
}
