package chart_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/jensholdgaard/assault-pugbot/internal/chart"
	"github.com/jensholdgaard/assault-pugbot/internal/rating"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestPoints(t *testing.T) {
	t0 := time.Date(2025, 2, 1, 20, 0, 0, 0, time.UTC)
	b := rating.NewBlock("rASplus")
	_ = b.SetScoring(rating.Scoring{Mode: rating.PerGame, TeamWin: 10})
	b.SetRating("1", "A", 500, "", t0)
	b.RecordMatch(rating.Match{Ref: "G1", Start: rating.At(t0.Add(time.Hour)), Completed: true,
		Red: []rating.ID{"1"}, Blue: []rating.ID{"2"}, RedScore: 1})
	if _, err := b.ApplyScoring("G1"); err != nil {
		t.Fatal(err)
	}

	pts := chart.Points(b.Find(rating.ByID("1")))
	if len(pts) != 2 {
		t.Fatalf("Points() = %d points, want 2", len(pts))
	}
	if !pts[0].Admin || pts[0].Value != 500 {
		t.Errorf("first point = %+v, want the admin-set 500", pts[0])
	}
	if pts[1].Admin || pts[1].Value != 510 || !pts[1].At.Equal(t0.Add(time.Hour)) {
		t.Errorf("last point = %+v, want the match result 510", pts[1])
	}
}

func TestRatingHistory(t *testing.T) {
	t0 := time.Date(2025, 2, 1, 20, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		points []chart.Point
	}{
		{
			name: "several matches",
			points: []chart.Point{
				{At: t0, Value: 500, Admin: true},
				{At: t0.Add(24 * time.Hour), Value: 523},
				{At: t0.Add(48 * time.Hour), Value: 511},
			},
		},
		{
			name:   "single point",
			points: []chart.Point{{At: t0, Value: 500, Admin: true}},
		},
		{
			name: "flat line without admin points",
			points: []chart.Point{
				{At: t0, Value: 600},
				{At: t0.Add(time.Hour), Value: 600},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := chart.RatingHistory("Alpha", "rASplus", tt.points)
			if err != nil {
				t.Fatalf("RatingHistory() error = %v", err)
			}
			if !bytes.HasPrefix(img, pngMagic) {
				t.Error("RatingHistory() did not return a PNG")
			}
		})
	}
}

func TestRatingHistory_Empty(t *testing.T) {
	if _, err := chart.RatingHistory("Alpha", "rASplus", nil); !errors.Is(err, chart.ErrNoHistory) {
		t.Errorf("RatingHistory(nil) error = %v, want ErrNoHistory", err)
	}
}
