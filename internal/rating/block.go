package rating

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jensholdgaard/assault-pugbot/internal/maps"
	"github.com/jensholdgaard/assault-pugbot/internal/roster"
)

var (
	ErrNotFound         = errors.New("no rating data")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrMatchNotFound    = errors.New("match not found")
	ErrNoSeed           = errors.New("no seed rating to recalculate from")
	ErrNotCompleted     = errors.New("match is not completed")
	ErrScoringNotSet    = errors.New("scoring is not configured")
	ErrInvalidScoring   = errors.New("invalid scoring configuration")
	ErrTooManyPlayers   = errors.New("too many players to balance")
	ErrUnevenPlayers    = errors.New("an even number of players is required")
	ErrMissingRatings   = errors.New("players without a rating")
	ErrInvalidMapConfig = errors.New("invalid map configuration")
)

// seedLead is how far before its first match an explicit seed is dated.
const seedLead = 5 * time.Minute

// PlayerRef identifies a rated player either by id or by display name.
type PlayerRef struct {
	id   ID
	name string
}

// ByID refers to a player by chat id.
func ByID(id ID) PlayerRef { return PlayerRef{id: id} }

// ByName refers to a player by last known display name.
func ByName(name string) PlayerRef { return PlayerRef{name: name} }

func (r PlayerRef) String() string {
	if r.id != "" {
		return string(r.id)
	}
	return r.name
}

// Find returns the rating record referred to by ref, or nil.
func (b *Block) Find(ref PlayerRef) *Record {
	for _, r := range b.Ratings {
		if ref.id != "" && r.ID == ref.id {
			return r
		}
		if ref.id == "" && ref.name != "" && strings.EqualFold(r.Name, ref.name) {
			return r
		}
	}
	return nil
}

// Registered reports whether id may play ranked matches in this mode.
func (b *Block) Registered(id ID) bool { return slices.Contains(b.Registrations, id) }

// Ineligible returns the players who may not play ranked: those missing the
// eligibility role and those not registered. An empty result means every
// player is eligible.
func (b *Block) Ineligible(players []*roster.Player) []*roster.Player {
	var out []*roster.Player
	for _, p := range players {
		if p == nil {
			continue
		}
		roleOK := b.Eligibility == "" || p.HasRole(b.Eligibility)
		if !roleOK || !b.Registered(ID(p.ID)) {
			out = append(out, p)
		}
	}
	return out
}

// SetRating sets a player's rating as an administrator, registering the
// player if needed. The previous state is archived to history.
func (b *Block) SetRating(id ID, name string, value int, externalID ID, now time.Time) *Record {
	if !b.Registered(id) {
		b.Registrations = append(b.Registrations, id)
	}
	at := At(now)
	r := b.Find(ByID(id))
	if r == nil {
		r = &Record{
			ID:         id,
			Name:       name,
			ExternalID: externalID,
			Value:      value,
			Date:       at,
			LastRef:    AdminSet,
			LastDate:   at,
			History:    []HistoryEntry{},
		}
		b.Ratings = append(b.Ratings, r)
		return r
	}

	r.push()
	if name != "" {
		r.Name = name
	}
	if externalID != "" && externalID != "0" {
		r.ExternalID = externalID
	}
	r.Previous = r.Value
	r.Value = value
	r.Date = at
	r.LastDate = at
	r.LastRef = AdminSet
	return r
}

// DeleteRating removes a player's registration and rating.
func (b *Block) DeleteRating(id ID) error {
	found := false
	if i := slices.Index(b.Registrations, id); i >= 0 {
		b.Registrations = slices.Delete(b.Registrations, i, i+1)
		found = true
	}
	if i := slices.IndexFunc(b.Ratings, func(r *Record) bool { return r.ID == id }); i >= 0 {
		b.Ratings = slices.Delete(b.Ratings, i, i+1)
		found = true
	}
	if !found {
		return ErrPlayerNotFound
	}
	return nil
}

// FindMatch returns the stored match with ref, compared case-insensitively.
// The ref "last" selects the most recently started match.
func (b *Block) FindMatch(ref string) *Match {
	if strings.EqualFold(ref, "last") {
		var last *Match
		for _, m := range b.Games {
			if last == nil || !m.Start.Before(last.Start.Time) {
				last = m
			}
		}
		return last
	}
	return b.match(ref)
}

func (b *Block) match(ref string) *Match {
	for _, m := range b.Games {
		if strings.EqualFold(m.Ref, ref) {
			return m
		}
	}
	return nil
}

// Recent returns up to n matches, newest first, optionally only completed
// ones.
func (b *Block) Recent(n int, completedOnly bool) []*Match {
	games := slices.Clone(b.Games)
	sort.SliceStable(games, func(i, j int) bool { return games[i].Start.After(games[j].Start.Time) })
	out := make([]*Match, 0, n)
	for _, m := range games {
		if len(out) == n {
			break
		}
		if completedOnly && !m.Completed {
			continue
		}
		out = append(out, m)
	}
	return out
}

// RecordMatch inserts m, or updates the stored match with the same ref.
// Updates keep the stored teams and only overwrite team power when the new
// value is positive. It returns the stored match.
func (b *Block) RecordMatch(m Match) (*Match, bool) {
	if stored := b.match(m.Ref); stored != nil {
		if m.RedPower > 0 {
			stored.RedPower = m.RedPower
		}
		if m.BluePower > 0 {
			stored.BluePower = m.BluePower
		}
		stored.RedScore = m.RedScore
		stored.BlueScore = m.BlueScore
		stored.Completed = m.Completed
		if m.Completed {
			stored.End = m.End
		}
		return stored, false
	}

	nm := m
	nm.Red = slices.Clone(m.Red)
	nm.Blue = slices.Clone(m.Blue)
	nm.Maps = slices.Clone(m.Maps)
	if nm.RedCaptain.ID == "" && len(nm.Red) > 0 {
		nm.RedCaptain = Captain{ID: nm.Red[0]}
	}
	if nm.BlueCaptain.ID == "" && len(nm.Blue) > 0 {
		nm.BlueCaptain = Captain{ID: nm.Blue[0]}
	}
	b.Games = append(b.Games, &nm)
	return &nm, true
}

// Change is one player's rating movement.
type Change struct {
	ID     ID
	Name   string
	Before int
	After  int
}

type outcome struct {
	winners, losers []ID
	winCap, loseCap ID
	winRP, loseRP   int
}

// outcome works out who won m and the points each side earns. Drawn
// matches have no outcome.
func (b *Block) outcome(m *Match) (outcome, bool) {
	var o outcome
	var winScore, loseScore int
	switch {
	case m.RedScore > m.BlueScore:
		o.winners, o.losers = m.Red, m.Blue
		o.winCap, o.loseCap = m.RedCaptain.ID, m.BlueCaptain.ID
		winScore, loseScore = m.RedScore, m.BlueScore
	case m.BlueScore > m.RedScore:
		o.winners, o.losers = m.Blue, m.Red
		o.winCap, o.loseCap = m.BlueCaptain.ID, m.RedCaptain.ID
		winScore, loseScore = m.BlueScore, m.RedScore
	default:
		return o, false
	}

	s := b.Scoring
	if s.Mode == PerMap {
		o.winRP = s.TeamWin*winScore + s.TeamLose*loseScore
		o.loseRP = s.TeamWin*loseScore + s.TeamLose*winScore
	} else {
		o.winRP, o.loseRP = s.TeamWin, s.TeamLose
	}
	return o, true
}

// delta returns the points player id earns from o and whether the player
// took part.
func (o outcome) delta(id ID, capWin, capLose int) (int, bool) {
	switch {
	case slices.Contains(o.winners, id):
		if id == o.winCap {
			return o.winRP + capWin, true
		}
		return o.winRP, true
	case slices.Contains(o.losers, id):
		if id == o.loseCap {
			return o.loseRP + capLose, true
		}
		return o.loseRP, true
	}
	return 0, false
}

// ApplyScoring awards the points for the completed match ref to each
// participant. Players whose last scored match is already ref are skipped,
// so applying twice awards nothing extra.
func (b *Block) ApplyScoring(ref string) ([]Change, error) {
	m := b.FindMatch(ref)
	if m == nil {
		return nil, ErrMatchNotFound
	}
	if !m.Completed {
		return nil, ErrNotCompleted
	}
	if !b.Scoring.Configured() {
		return nil, ErrScoringNotSet
	}
	o, ok := b.outcome(m)
	if !ok {
		return nil, nil
	}

	var changes []Change
	for _, r := range b.Ratings {
		if r.LastRef == m.Ref {
			continue
		}
		if r.LastRef == "" {
			r.LastRef = AdminSet
		}
		if r.LastDate.IsZero() {
			r.LastDate = r.Date
		}
		d, played := o.delta(r.ID, b.Scoring.CapWin, b.Scoring.CapLose)
		if !played {
			continue
		}
		before := r.Value
		r.push()
		r.Previous = r.Value
		r.Value += d
		r.LastDate = m.Start
		r.LastRef = m.Ref
		changes = append(changes, Change{ID: r.ID, Name: r.Name, Before: before, After: r.Value})
	}
	return changes, nil
}

type replayStep struct {
	date  Time
	admin bool
	value int
	match *Match
}

// Recalculate rebuilds a player's rating by replaying completed matches in
// order from a seed. A seed of 0 starts from the earliest administrator-set
// rating; any other seed replaces it. Later administrator changes are kept
// in place between matches.
func (b *Block) Recalculate(id ID, seed int) (*Record, error) {
	r := b.Find(ByID(id))
	if r == nil {
		return nil, ErrPlayerNotFound
	}

	var admins []HistoryEntry
	for _, h := range r.History {
		if h.Ref == AdminSet {
			admins = append(admins, h)
		}
	}
	if r.LastRef == AdminSet || r.LastRef == "" {
		cur := r.current()
		if cur.Date.IsZero() {
			cur.Date = r.Date
		}
		admins = append(admins, cur)
	}
	sort.SliceStable(admins, func(i, j int) bool { return admins[i].Date.Before(admins[j].Date.Time) })

	var played []*Match
	for _, m := range b.Games {
		if m.Completed && slices.Contains(m.Players(), id) {
			played = append(played, m)
		}
	}
	sort.SliceStable(played, func(i, j int) bool { return played[i].Start.Before(played[j].Start.Time) })

	var start HistoryEntry
	switch {
	case seed != 0 && len(admins) > 0:
		start = admins[0]
		start.After = seed
		admins = admins[1:]
	case seed != 0:
		start = HistoryEntry{Ref: AdminSet, Date: r.Date, After: seed}
		if len(played) > 0 {
			start.Date = At(played[0].Start.Add(-seedLead))
		}
	case len(admins) > 0:
		start = admins[0]
		admins = admins[1:]
	default:
		return nil, ErrNoSeed
	}

	var steps []replayStep
	for _, a := range admins {
		steps = append(steps, replayStep{date: a.Date, admin: true, value: a.After})
	}
	for _, m := range played {
		if m.Start.Before(start.Date.Time) {
			continue
		}
		steps = append(steps, replayStep{date: m.Start, match: m})
	}
	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].date.Equal(steps[j].date) {
			return steps[i].admin && !steps[j].admin
		}
		return steps[i].date.Before(steps[j].date.Time)
	})

	r.History = []HistoryEntry{}
	r.LastRef = AdminSet
	r.LastDate = start.Date
	r.Previous = start.Before
	r.Value = start.After

	for _, st := range steps {
		if st.admin {
			r.push()
			r.Previous = r.Value
			r.Value = st.value
			r.LastRef = AdminSet
			r.LastDate = st.date
			continue
		}
		if !b.Scoring.Configured() {
			continue
		}
		o, ok := b.outcome(st.match)
		if !ok {
			continue
		}
		d, _ := o.delta(id, b.Scoring.CapWin, b.Scoring.CapLose)
		r.push()
		r.Previous = r.Value
		r.Value += d
		r.LastRef = st.match.Ref
		r.LastDate = st.match.Start
	}
	return r, nil
}

// VoidResult reports the outcome of toggling a match.
type VoidResult struct {
	Match        *Match
	Recalculated []*Record
	Skipped      []ID
}

// Void toggles whether match ref counts, then recalculates every
// participant so their ratings reflect the change.
func (b *Block) Void(ref string) (*VoidResult, error) {
	m := b.FindMatch(ref)
	if m == nil {
		return nil, ErrMatchNotFound
	}
	m.Completed = !m.Completed

	res := &VoidResult{Match: m}
	for _, id := range m.Players() {
		r, err := b.Recalculate(id, 0)
		if err != nil {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		res.Recalculated = append(res.Recalculated, r)
	}
	return res, nil
}

// MatchReport lists each participant's rating before and after match ref.
func (b *Block) MatchReport(ref string) (*Match, []Change, error) {
	m := b.FindMatch(ref)
	if m == nil {
		return nil, nil, ErrMatchNotFound
	}
	var out []Change
	for _, id := range m.Players() {
		r := b.Find(ByID(id))
		if r == nil {
			continue
		}
		c := Change{ID: id, Name: r.Name, Before: r.Value, After: r.Value}
		if r.LastRef == m.Ref {
			c.Before = r.Previous
		} else if i := slices.IndexFunc(r.History, func(h HistoryEntry) bool { return h.Ref == m.Ref }); i >= 0 {
			c.Before, c.After = r.History[i].Before, r.History[i].After
		}
		out = append(out, c)
	}
	return m, out, nil
}

// SetScoring validates and stores the scoring configuration.
func (b *Block) SetScoring(s Scoring) error {
	s.Mode = strings.ToLower(s.Mode)
	if s.Mode != PerMap && s.Mode != PerGame {
		return ErrInvalidScoring
	}
	s.TeamWin = max(0, s.TeamWin)
	s.CapWin = max(0, s.CapWin)
	s.VolCapWin = max(0, s.VolCapWin)
	b.Scoring = s
	return nil
}

// Configure sets captain selection for balanced teams. The captain window
// only applies to volunteer captains and is clamped to 30..240 seconds.
func (b *Block) Configure(capMode int, capRole string, capWindow int) {
	b.CapMode = max(CapNone, min(capMode, CapRole))
	if capMode == CapVolunteer {
		b.CapMode = CapVolunteer
		b.CapWindow = max(30, min(capWindow, 240))
	}
	if b.CapMode == CapRole {
		b.CapRole = capRole
	}
}

// AddMaps appends weighting entries to the ranked map list.
func (b *Block) AddMaps(ws ...maps.Weighting) {
	b.Maps.MapList = append(b.Maps.MapList, ws...)
}

// ParseMapEntry reads a "Map:Order:Weight" ranked map definition. Order
// and weight are optional and default to 0 and 1.
func ParseMapEntry(s string) (maps.Weighting, error) {
	parts := strings.Split(s, ":")
	w := maps.Weighting{Map: strings.TrimSpace(parts[0]), Weight: 1}
	if !maps.ValidName(w.Map) || len(parts) > 3 {
		return w, fmt.Errorf("%w: %q", ErrInvalidMapConfig, s)
	}
	if len(parts) > 1 && parts[1] != "" {
		n, err := strconv.Atoi(parts[1])
		if err != nil || n < 0 {
			return w, fmt.Errorf("%w: order in %q", ErrInvalidMapConfig, s)
		}
		w.Order = n
	}
	if len(parts) > 2 && parts[2] != "" {
		f, err := strconv.ParseFloat(parts[2], 64)
		if err != nil || f < 0 {
			return w, fmt.Errorf("%w: weight in %q", ErrInvalidMapConfig, s)
		}
		w.Weight = f
	}
	return w, nil
}

// ClearMaps empties the ranked map list and pick limit.
func (b *Block) ClearMaps() {
	b.Maps.MapList = b.Maps.MapList[:0]
	b.Maps.FixedPickLimit = 0
}

func pruneHistory(r *Record) {
	sort.SliceStable(r.History, func(i, j int) bool { return r.History[i].Date.Before(r.History[j].Date.Time) })
	if len(r.History) > MaxHistory {
		r.History = slices.Clone(r.History[len(r.History)-MaxHistory:])
	}
}
