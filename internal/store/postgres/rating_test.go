package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jensholdgaard/assault-pugbot/internal/clock"
	"github.com/jensholdgaard/assault-pugbot/internal/rating"
	"github.com/jensholdgaard/assault-pugbot/internal/store/postgres"
)

func TestRatingRepo_LoadMissing(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewRatingRepo(db, clock.Real{})

	if _, err := repo.Load(context.Background(), "rASplus"); !errors.Is(err, rating.ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestRatingRepo_SaveAndLoad(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2025, 5, 1, 19, 30, 0, 0, time.UTC)
	repo := postgres.NewRatingRepo(db, clock.NewMock(now))
	ctx := context.Background()

	b := rating.NewBlock("rASplus")
	b.SetRating("123456789012345678", "Alpha", 700, "", now)
	b.RecordMatch(rating.Match{
		Ref:       "PUG-9",
		Start:     rating.At(now),
		Red:       []rating.ID{"123456789012345678"},
		Blue:      []rating.ID{"2"},
		Completed: true,
		RedScore:  2,
	})
	if err := repo.Save(ctx, b); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	b.SetRating("123456789012345678", "Alpha", 710, "", now.Add(time.Minute))
	if err := repo.Save(ctx, b); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	got, err := repo.Load(ctx, "RASPLUS")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	r := got.Find(rating.ByID("123456789012345678"))
	if r == nil || r.Value != 710 || len(r.History) != 1 {
		t.Fatalf("loaded record = %+v", r)
	}
	if m := got.FindMatch("pug-9"); m == nil || !m.Start.Equal(rating.At(now)) {
		t.Errorf("loaded match = %+v", m)
	}

	var count int
	if err := db.GetContext(ctx, &count, `SELECT count(*) FROM rating_blocks`); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("rating_blocks rows = %d, want 1", count)
	}
}
