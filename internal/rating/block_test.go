package rating_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jensholdgaard/assault-pugbot/internal/rating"
	"github.com/jensholdgaard/assault-pugbot/internal/roster"
)

var t0 = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func scoredBlock() *rating.Block {
	b := rating.NewBlock("rASplus")
	_ = b.SetScoring(rating.Scoring{Mode: rating.PerMap, TeamWin: 2, TeamLose: 1, CapWin: 10, CapLose: 0})
	return b
}

func completedMatch(ref string, start time.Time, red, blue []rating.ID, redScore, blueScore int) rating.Match {
	return rating.Match{
		Ref:       ref,
		Start:     rating.At(start),
		End:       rating.At(start.Add(40 * time.Minute)),
		Completed: true,
		Red:       red,
		Blue:      blue,
		RedScore:  redScore,
		BlueScore: blueScore,
	}
}

func TestApplyScoring_PerMapWithCaptainBonus(t *testing.T) {
	b := scoredBlock()
	b.SetRating("1", "Alpha", 500, "", t0)
	b.SetRating("2", "Bravo", 500, "", t0)

	b.RecordMatch(completedMatch("M1", t0.Add(time.Hour), []rating.ID{"1"}, []rating.ID{"2"}, 5, 3))
	changes, err := b.ApplyScoring("m1")
	if err != nil {
		t.Fatalf("ApplyScoring() error = %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("ApplyScoring() changed %d players, want 2", len(changes))
	}

	alpha := b.Find(rating.ByID("1"))
	if alpha.Value != 523 {
		t.Errorf("winning captain rating = %d, want 523", alpha.Value)
	}
	if alpha.Previous != 500 || alpha.LastRef != "M1" {
		t.Errorf("previous = %d, lastRef = %q, want 500, M1", alpha.Previous, alpha.LastRef)
	}
	if bravo := b.Find(rating.ByID("2")); bravo.Value != 511 {
		t.Errorf("losing captain rating = %d, want 511", bravo.Value)
	}
	if len(alpha.History) != 1 || alpha.History[0].Ref != rating.AdminSet || alpha.History[0].After != 500 {
		t.Errorf("history = %+v, want the admin-set state archived", alpha.History)
	}

	again, err := b.ApplyScoring("M1")
	if err != nil {
		t.Fatalf("second ApplyScoring() error = %v", err)
	}
	if len(again) != 0 || alpha.Value != 523 {
		t.Errorf("second ApplyScoring() changed %d players, rating %d; want no change", len(again), alpha.Value)
	}
}

func TestApplyScoring_PerGameAndTie(t *testing.T) {
	b := rating.NewBlock("rASplus")
	_ = b.SetScoring(rating.Scoring{Mode: rating.PerGame, TeamWin: 15, TeamLose: -5})
	b.SetRating("1", "A", 100, "", t0)
	b.SetRating("2", "B", 100, "", t0)

	b.RecordMatch(completedMatch("TIE", t0.Add(time.Hour), []rating.ID{"1"}, []rating.ID{"2"}, 2, 2))
	if changes, _ := b.ApplyScoring("TIE"); len(changes) != 0 {
		t.Errorf("tie awarded points to %d players", len(changes))
	}

	b.RecordMatch(completedMatch("WIN", t0.Add(2*time.Hour), []rating.ID{"1"}, []rating.ID{"2"}, 1, 3))
	if _, err := b.ApplyScoring("WIN"); err != nil {
		t.Fatalf("ApplyScoring() error = %v", err)
	}
	if got := b.Find(rating.ByID("2")).Value; got != 115 {
		t.Errorf("winner rating = %d, want 115", got)
	}
	if got := b.Find(rating.ByID("1")).Value; got != 95 {
		t.Errorf("loser rating = %d, want 95", got)
	}
}

func TestApplyScoring_Errors(t *testing.T) {
	b := rating.NewBlock("rASplus")
	if _, err := b.ApplyScoring("nope"); !errors.Is(err, rating.ErrMatchNotFound) {
		t.Errorf("unknown match error = %v, want ErrMatchNotFound", err)
	}
	m := completedMatch("M1", t0, []rating.ID{"1"}, []rating.ID{"2"}, 1, 0)
	m.Completed = false
	b.RecordMatch(m)
	if _, err := b.ApplyScoring("M1"); !errors.Is(err, rating.ErrNotCompleted) {
		t.Errorf("uncompleted match error = %v, want ErrNotCompleted", err)
	}
	b.RecordMatch(completedMatch("M1", t0, nil, nil, 1, 0))
	if _, err := b.ApplyScoring("M1"); !errors.Is(err, rating.ErrScoringNotSet) {
		t.Errorf("unscored block error = %v, want ErrScoringNotSet", err)
	}
}

func TestRecordMatch_UpsertIsCaseInsensitive(t *testing.T) {
	b := rating.NewBlock("rASplus")
	m := completedMatch("ABC-1", t0, []rating.ID{"1", "3"}, []rating.ID{"2", "4"}, 0, 0)
	m.Completed = false
	m.RedPower, m.BluePower = 1000, 990

	stored, created := b.RecordMatch(m)
	if !created {
		t.Fatal("first RecordMatch() should create")
	}
	if stored.RedCaptain.ID != "1" || stored.BlueCaptain.ID != "2" {
		t.Errorf("captains = %s/%s, want first players 1/2", stored.RedCaptain.ID, stored.BlueCaptain.ID)
	}

	update := rating.Match{Ref: "abc-1", RedScore: 4, BlueScore: 2, Completed: true, End: rating.At(t0.Add(time.Hour))}
	stored, created = b.RecordMatch(update)
	if created {
		t.Fatal("second RecordMatch() should update")
	}
	if len(b.Games) != 1 {
		t.Fatalf("len(Games) = %d, want 1", len(b.Games))
	}
	if stored.RedPower != 1000 || stored.RedScore != 4 || !stored.Completed || len(stored.Red) != 2 {
		t.Errorf("stored = %+v, want power kept, scores updated, teams kept", stored)
	}
}

func TestSetRating_ArchivesAndRegisters(t *testing.T) {
	b := rating.NewBlock("rASplus")
	r := b.SetRating("42", "Zed", 400, "7", t0)
	if !b.Registered("42") || r.Value != 400 || r.LastRef != rating.AdminSet {
		t.Fatalf("new record = %+v", r)
	}

	r = b.SetRating("42", "Zed2", 450, "", t0.Add(time.Hour))
	if r.Previous != 400 || r.Value != 450 || r.Name != "Zed2" || r.ExternalID != "7" {
		t.Errorf("updated record = %+v", r)
	}
	if len(r.History) != 1 || r.History[0].After != 400 {
		t.Errorf("history = %+v, want previous state archived", r.History)
	}
	if len(b.Registrations) != 1 {
		t.Errorf("registrations = %v, want one entry", b.Registrations)
	}

	if err := b.DeleteRating("42"); err != nil {
		t.Fatalf("DeleteRating() error = %v", err)
	}
	if b.Registered("42") || b.Find(rating.ByID("42")) != nil {
		t.Error("DeleteRating() left data behind")
	}
	if err := b.DeleteRating("42"); !errors.Is(err, rating.ErrPlayerNotFound) {
		t.Errorf("DeleteRating(missing) error = %v, want ErrPlayerNotFound", err)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	b := scoredBlock()
	b.SetRating("1", "A", 500, "", t0)
	b.SetRating("2", "B", 500, "", t0)
	for i := 0; i < rating.MaxHistory+20; i++ {
		ref := fmt.Sprintf("M%03d", i)
		b.RecordMatch(completedMatch(ref, t0.Add(time.Duration(i+1)*time.Hour), []rating.ID{"1"}, []rating.ID{"2"}, 1, 0))
		if _, err := b.ApplyScoring(ref); err != nil {
			t.Fatalf("ApplyScoring(%s) error = %v", ref, err)
		}
	}
	r := b.Find(rating.ByID("1"))
	if len(r.History) != rating.MaxHistory {
		t.Fatalf("len(History) = %d, want %d", len(r.History), rating.MaxHistory)
	}
	for i := 1; i < len(r.History); i++ {
		if r.History[i].Date.Before(r.History[i-1].Date.Time) {
			t.Fatalf("history not sorted at %d", i)
		}
	}
	if r.History[0].Ref == rating.AdminSet {
		t.Error("oldest entries should have been pruned")
	}
}

func playedBlock(t *testing.T) *rating.Block {
	t.Helper()
	b := scoredBlock()
	b.SetRating("1", "A", 500, "", t0)
	b.SetRating("2", "B", 500, "", t0)
	games := []rating.Match{
		completedMatch("G1", t0.Add(1*time.Hour), []rating.ID{"1"}, []rating.ID{"2"}, 3, 1),
		completedMatch("G2", t0.Add(2*time.Hour), []rating.ID{"2"}, []rating.ID{"1"}, 4, 0),
		completedMatch("G3", t0.Add(3*time.Hour), []rating.ID{"1"}, []rating.ID{"2"}, 2, 1),
	}
	for _, g := range games {
		b.RecordMatch(g)
		if _, err := b.ApplyScoring(g.Ref); err != nil {
			t.Fatalf("ApplyScoring(%s) error = %v", g.Ref, err)
		}
	}
	return b
}

func TestRecalculate_MatchesIncrementalScoring(t *testing.T) {
	b := playedBlock(t)
	want := b.Find(rating.ByID("1")).Value

	r, err := b.Recalculate("1", 0)
	if err != nil {
		t.Fatalf("Recalculate() error = %v", err)
	}
	if r.Value != want {
		t.Errorf("Recalculate() value = %d, want %d", r.Value, want)
	}

	first := append([]rating.HistoryEntry(nil), r.History...)
	r, err = b.Recalculate("1", 0)
	if err != nil {
		t.Fatalf("second Recalculate() error = %v", err)
	}
	if r.Value != want {
		t.Errorf("second Recalculate() value = %d, want %d", r.Value, want)
	}
	if diff := cmp.Diff(first, r.History); diff != "" {
		t.Errorf("Recalculate() not idempotent (-first +second):\n%s", diff)
	}
}

func TestRecalculate_ExplicitSeedAndAdminOverride(t *testing.T) {
	b := playedBlock(t)

	r, err := b.Recalculate("1", 600)
	if err != nil {
		t.Fatalf("Recalculate(600) error = %v", err)
	}
	// G1 win 3-1: 2*3+1*1+10 = 17; G2 loss 0-4: 2*0+1*4 = 4; G3 win 2-1: 2*2+1*1+10 = 15.
	if r.Value != 600+17+4+15 {
		t.Errorf("Recalculate(600) = %d, want %d", r.Value, 636)
	}

	b.SetRating("1", "A", 1000, "", t0.Add(150*time.Minute))
	r, err = b.Recalculate("1", 0)
	if err != nil {
		t.Fatalf("Recalculate() error = %v", err)
	}
	if r.Value != 1000+15 {
		t.Errorf("value after admin override = %d, want %d", r.Value, 1015)
	}
}

func TestRecalculate_NoSeed(t *testing.T) {
	b := scoredBlock()
	b.Ratings = append(b.Ratings, &rating.Record{ID: "9", LastRef: "G1", LastDate: rating.At(t0)})
	if _, err := b.Recalculate("9", 0); !errors.Is(err, rating.ErrNoSeed) {
		t.Errorf("Recalculate() error = %v, want ErrNoSeed", err)
	}
	if _, err := b.Recalculate("404", 0); !errors.Is(err, rating.ErrPlayerNotFound) {
		t.Errorf("Recalculate(unknown) error = %v, want ErrPlayerNotFound", err)
	}
}

func TestVoid_TogglesAndRecalculates(t *testing.T) {
	b := playedBlock(t)
	before := b.Find(rating.ByID("1")).Value

	res, err := b.Void("g3")
	if err != nil {
		t.Fatalf("Void() error = %v", err)
	}
	if res.Match.Completed {
		t.Error("voided match still completed")
	}
	if got := b.Find(rating.ByID("1")).Value; got != before-15 {
		t.Errorf("rating after void = %d, want %d", got, before-15)
	}

	if _, err := b.Void("G3"); err != nil {
		t.Fatalf("re-establish Void() error = %v", err)
	}
	if got := b.Find(rating.ByID("1")).Value; got != before {
		t.Errorf("rating after re-establish = %d, want %d", got, before)
	}

	if _, err := b.Void("missing"); !errors.Is(err, rating.ErrMatchNotFound) {
		t.Errorf("Void(missing) error = %v, want ErrMatchNotFound", err)
	}
}

func TestFindMatch_Last(t *testing.T) {
	b := playedBlock(t)
	if m := b.FindMatch("last"); m == nil || m.Ref != "G3" {
		t.Errorf("FindMatch(last) = %v, want G3", m)
	}
	recent := b.Recent(2, true)
	if len(recent) != 2 || recent[0].Ref != "G3" || recent[1].Ref != "G2" {
		t.Errorf("Recent(2) = %v, want G3, G2", recent)
	}
}

func TestMatchReport(t *testing.T) {
	b := playedBlock(t)
	_, changes, err := b.MatchReport("G2")
	if err != nil {
		t.Fatalf("MatchReport() error = %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("MatchReport() = %d changes, want 2", len(changes))
	}
	for _, c := range changes {
		if c.After <= c.Before {
			t.Errorf("%s: %d -> %d, want a gain", c.ID, c.Before, c.After)
		}
	}
}

func TestIneligible(t *testing.T) {
	b := rating.NewBlock("rASplus")
	b.Eligibility = "Ranked"
	b.SetRating("1", "A", 500, "", t0)
	b.SetRating("2", "B", 500, "", t0)

	ok := &roster.Player{ID: "1", Roles: []string{"ranked"}}
	noRole := &roster.Player{ID: "2"}
	unregistered := &roster.Player{ID: "3", Roles: []string{"Ranked"}}

	got := b.Ineligible([]*roster.Player{ok, noRole, unregistered})
	if len(got) != 2 || got[0].ID != "2" || got[1].ID != "3" {
		t.Errorf("Ineligible() = %v, want players 2 and 3", got)
	}
	if got := b.Ineligible([]*roster.Player{ok}); len(got) != 0 {
		t.Errorf("Ineligible(eligible) = %v, want none", got)
	}

	// A new mode has an empty registrations list, which admits nobody.
	fresh := rating.NewBlock("iAS")
	if got := fresh.Ineligible([]*roster.Player{ok}); len(got) != 1 {
		t.Errorf("Ineligible() with no registrations = %v, want player 1", got)
	}
}

func rated(values ...int) []rating.Rated {
	out := make([]rating.Rated, len(values))
	for i, v := range values {
		out[i] = rating.Rated{Player: &roster.Player{ID: fmt.Sprint(i + 1)}, Rating: v}
	}
	return out
}

func bruteMinDiff(values []int) int {
	n := len(values)
	best := -1
	for mask := 0; mask < 1<<n; mask++ {
		cnt, a, c := 0, 0, 0
		for i, v := range values {
			if mask&(1<<i) != 0 {
				cnt++
				a += v
			} else {
				c += v
			}
		}
		if cnt != n/2 {
			continue
		}
		d := a - c
		if d < 0 {
			d = -d
		}
		if best < 0 || d < best {
			best = d
		}
	}
	return best
}

func TestBalancedTeams_MinimalDifference(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	for trial := 0; trial < 25; trial++ {
		n := 2 * (1 + rng.IntN(5))
		values := make([]int, n)
		for i := range values {
			values[i] = 300 + rng.IntN(700)
		}
		b := rating.NewBlock("rASplus")
		teams, err := b.BalancedTeams(rated(values...), rng)
		if err != nil {
			t.Fatalf("BalancedTeams() error = %v", err)
		}
		if len(teams.Red) != n/2 || len(teams.Blue) != n/2 {
			t.Fatalf("team sizes %d/%d, want %d each", len(teams.Red), len(teams.Blue), n/2)
		}
		diff := teams.RedPower - teams.BluePower
		if diff < 0 {
			diff = -diff
		}
		if want := bruteMinDiff(values); diff != want {
			t.Errorf("values %v: diff %d, want %d", values, diff, want)
		}
	}
}

func TestBalancedTeams_Captains(t *testing.T) {
	b := rating.NewBlock("rASplus")
	b.Configure(rating.CapRole, "Captain", 0)

	for seed := uint64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed+1))
		players := rated(500, 500, 400, 600, 450, 550)
		players[3].Player.Roles = []string{"captain"}

		teams, err := b.BalancedTeams(players, rng)
		if err != nil {
			t.Fatalf("BalancedTeams() error = %v", err)
		}
		if len(teams.Red) != 3 || len(teams.Blue) != 3 {
			t.Fatalf("team sizes %d/%d", len(teams.Red), len(teams.Blue))
		}
		// The only role holder captains their side. The other side has
		// none and draws from the whole team.
		holder, other := teams.Red, teams.Blue
		if !slices.ContainsFunc(holder, func(r rating.Rated) bool { return r.Player.ID == "4" }) {
			holder, other = other, holder
		}
		if holder[0].Player.ID != "4" {
			t.Errorf("seed %d: captain = %s, want the role holder 4", seed, holder[0].Player.ID)
		}
		if len(other) != 3 {
			t.Errorf("seed %d: other side = %d players", seed, len(other))
		}
	}

	if _, err := b.BalancedTeams(rated(1, 2, 3), rand.New(rand.NewPCG(3, 4))); !errors.Is(err, rating.ErrUnevenPlayers) {
		t.Errorf("odd players error = %v, want ErrUnevenPlayers", err)
	}
}

func TestParseMapEntry(t *testing.T) {
	tests := []struct {
		in      string
		order   int
		weight  float64
		wantErr bool
	}{
		{in: "AS-Bridge", weight: 1},
		{in: "AS-Bridge:2", order: 2, weight: 1},
		{in: "AS-Bridge:0:3", weight: 3},
		{in: "AS-Bridge:x", wantErr: true},
		{in: "123:1:1", wantErr: true},
	}
	for _, tt := range tests {
		w, err := rating.ParseMapEntry(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMapEntry(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && (w.Order != tt.order || w.Weight != tt.weight) {
			t.Errorf("ParseMapEntry(%q) = %+v", tt.in, w)
		}
	}
}

func TestBlockJSON_AcceptsStoredLayout(t *testing.T) {
	raw := `{
		"mode": "rASplus",
		"maps": {},
		"eligibility": "",
		"registrations": [123456789012345678, "42"],
		"ratings": [{
			"did": 123456789012345678,
			"dlastnick": "Alpha",
			"externalpid": 0,
			"ratingvalue": 510,
			"ratingprevious": 500,
			"ratingdate": "2024-01-02T10:00:00.123456",
			"lastgameref": "",
			"lastgamedate": "",
			"ratinghistory": null
		}],
		"lastsync": "",
		"games": [],
		"scoring": {}
	}`
	var b rating.Block
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	b.Migrate()

	if !b.Registered("123456789012345678") || !b.Registered("42") {
		t.Errorf("registrations = %v", b.Registrations)
	}
	r := b.Find(rating.ByName("alpha"))
	if r == nil || r.Value != 510 || r.Date.Year() != 2024 {
		t.Fatalf("record = %+v", r)
	}

	out, err := json.Marshal(&b)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var back rating.Block
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("re-Unmarshal() error = %v", err)
	}
	if back.Ratings[0].ID != "123456789012345678" || !back.Ratings[0].Date.Equal(r.Date) {
		t.Errorf("round trip record = %+v", back.Ratings[0])
	}
}
