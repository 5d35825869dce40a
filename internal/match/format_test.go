package match

import (
	"testing"
	"time"

	"github.com/jensholdgaard/assault-pugbot/internal/rating"
)

func TestDuration(t *testing.T) {
	then := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{name: "seconds", d: 42 * time.Second, want: "42 seconds"},
		{name: "minutes", d: 3*time.Minute + 5*time.Second, want: "3 minutes, 5 seconds"},
		{name: "skips empty units", d: 26*time.Hour + 7*time.Second, want: "1 days, 2 hours, 7 seconds"},
		{name: "negative", d: -time.Minute, want: "0 seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := duration(then, then.Add(tt.d)); got != tt.want {
				t.Errorf("duration() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatChanges(t *testing.T) {
	got := formatChanges("M1", []rating.Change{
		{Name: "loser", Before: 500, After: 490},
		{Name: "winner", Before: 500, After: 515},
	})
	want := "Ranked results for **M1**:\nwinner: 500 → 515 (+15)\nloser: 500 → 490 (-10)"
	if got != want {
		t.Errorf("formatChanges() = %q, want %q", got, want)
	}
}

func TestFormatMaps(t *testing.T) {
	want := "**1)** AS-Bridge" + plasep + "**2)** AS-Rook"
	if got := formatMaps([]string{"AS-Bridge", "AS-Rook"}); got != want {
		t.Errorf("formatMaps() = %q, want %q", got, want)
	}
}
