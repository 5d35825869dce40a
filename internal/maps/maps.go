// Package maps maintains the map list offered for a pug, the maps chosen
// for the current match and the desirability weighting used when ranked
// matches pick their maps automatically.
package maps

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"unicode"

	"github.com/jensholdgaard/assault-pugbot/internal/draft"
)

const (
	// DesirabilityMultiplier converts a map weight into its default
	// desirability.
	DesirabilityMultiplier = 100
	// DesirabilityReduction divides a map's desirability each time it is
	// picked.
	DesirabilityReduction = 2
	// MaxTickets bounds how many draws a single map holds in one slot.
	MaxTickets = 500
)

var (
	ErrInvalidMap     = errors.New("invalid map name")
	ErrDuplicateMap   = errors.New("map is already in the list")
	ErrInvalidIndex   = errors.New("invalid map index")
	ErrMapNotFound    = errors.New("map not found")
	ErrMapsFull       = errors.New("all maps have been chosen")
	ErrAlreadyChosen  = errors.New("map has already been chosen")
	ErrInvalidMaxMaps = errors.New("invalid number of maps")
	ErrNotRanked      = errors.New("no ranked map list is configured")
	ErrNoCandidates   = errors.New("no maps left to pick from")
	ErrNoSavedList    = errors.New("no saved map list")
)

// Weighting describes how a map takes part in ranked auto-picking.
// Order pins the map to a 1-based pick slot, 0 lets it fill any slot.
type Weighting struct {
	Map          string  `json:"map"`
	Order        int     `json:"order"`
	Weight       float64 `json:"weight"`
	Desirability float64 `json:"desirability,omitempty"`
}

// Default returns the desirability a map starts from and is capped at.
func (w Weighting) Default() float64 { return w.Weight * DesirabilityMultiplier }

func (w Weighting) hasDesirability() bool { return w.Desirability != 0 }

// Pick records one auto-picked map and the odds it won its slot with.
type Pick struct {
	Map     string
	Slot    int
	Tickets int
	Total   int
}

// Adjustment selects how AdjustDesirability changes the weighting table.
type Adjustment int

const (
	// Revert restores the desirability spent by the chosen maps.
	Revert Adjustment = iota
	// ResetAll sets every map back to its default desirability.
	ResetAll
	// Increase multiplies one map's desirability.
	Increase
	// Decrease divides one map's desirability.
	Decrease
)

// Pool holds the available maps and the picks for the current match.
type Pool struct {
	available []string
	filtered  []string
	weighting []Weighting
	chosen    []string
	maxMaps   int
	order     draft.TurnOrder
	ranked    bool
	shuffle   bool
	rng       *rand.Rand
}

// NewPool returns a pool offering available, picking maxMaps maps with the
// given pick mode.
func NewPool(available []string, maxMaps, pickMode int, rng *rand.Rand) *Pool {
	p := &Pool{
		available: slices.Clone(available),
		filtered:  slices.Clone(available),
		maxMaps:   max(1, maxMaps),
		order:     draft.Order(pickMode),
		rng:       rng,
	}
	return p
}

// Available returns a copy of the available map list.
func (p *Pool) Available() []string { return slices.Clone(p.available) }

// Filtered returns the ranked map list, or the available list outside
// ranked play.
func (p *Pool) Filtered() []string { return slices.Clone(p.filtered) }

// Chosen returns the maps picked for the current match in pick order.
func (p *Pool) Chosen() []string { return slices.Clone(p.chosen) }

// Weighting returns a copy of the ranked weighting table.
func (p *Pool) Weighting() []Weighting { return slices.Clone(p.weighting) }

// MaxMaps returns how many maps a match is played on.
func (p *Pool) MaxMaps() int { return p.maxMaps }

// Full reports whether every map has been chosen.
func (p *Pool) Full() bool { return len(p.chosen) == p.maxMaps }

// Ranked reports whether ranked weighting is active.
func (p *Pool) Ranked() bool { return p.ranked }

// Has reports whether m has been chosen.
func (p *Pool) Has(m string) bool { return slices.Contains(p.chosen, m) }

// CurrentSide returns the side whose captain picks the next map.
func (p *Pool) CurrentSide() draft.Side {
	return p.order[min(len(p.chosen), len(p.order)-1)]
}

// SetMaxMaps changes the number of maps per match. n must be between 1 and
// the size of the available list.
func (p *Pool) SetMaxMaps(n int) error {
	if n < 1 || n > len(p.available) {
		return ErrInvalidMaxMaps
	}
	p.maxMaps = n
	if len(p.chosen) > n {
		p.chosen = p.chosen[:n]
	}
	return nil
}

// ValidName reports whether m can be added to the available list: it must
// not be blank or purely numeric.
func ValidName(m string) bool {
	if strings.TrimSpace(m) == "" {
		return false
	}
	return strings.IndexFunc(m, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0
}

func (p *Pool) validateNew(m string) error {
	if !ValidName(m) {
		return ErrInvalidMap
	}
	if slices.Contains(p.available, m) {
		return ErrDuplicateMap
	}
	return nil
}

// AddAvailable appends m to the available list.
func (p *Pool) AddAvailable(m string) error {
	if err := p.validateNew(m); err != nil {
		return err
	}
	p.available = append(p.available, m)
	p.syncFiltered()
	return nil
}

// InsertAvailable inserts m at the 0-based index.
func (p *Pool) InsertAvailable(index int, m string) error {
	if index < 0 || index > len(p.available) {
		return ErrInvalidIndex
	}
	if err := p.validateNew(m); err != nil {
		return err
	}
	p.available = slices.Insert(p.available, index, m)
	p.syncFiltered()
	return nil
}

// SubstituteAvailable replaces the map at the 0-based index with m and
// returns the map it replaced.
func (p *Pool) SubstituteAvailable(index int, m string) (string, error) {
	if index < 0 || index >= len(p.available) {
		return "", ErrInvalidIndex
	}
	if err := p.validateNew(m); err != nil {
		return "", err
	}
	old := p.available[index]
	p.available[index] = m
	p.syncFiltered()
	return old, nil
}

// SetAvailable replaces the available list with list, which must hold
// distinct valid names. The maps per match shrink to fit a shorter list.
func (p *Pool) SetAvailable(list []string) error {
	if len(list) == 0 {
		return ErrInvalidMaxMaps
	}
	for i, m := range list {
		if !ValidName(m) {
			return ErrInvalidMap
		}
		if slices.Contains(list[:i], m) {
			return ErrDuplicateMap
		}
	}
	p.available = slices.Clone(list)
	p.syncFiltered()
	if p.maxMaps > len(p.available) {
		_ = p.SetMaxMaps(len(p.available))
	}
	return nil
}

// RemoveAvailable removes m from the available list.
func (p *Pool) RemoveAvailable(m string) error {
	i := slices.Index(p.available, m)
	if m == "" || i < 0 {
		return ErrMapNotFound
	}
	p.available = slices.Delete(p.available, i, i+1)
	p.syncFiltered()
	return nil
}

// AvailableAt returns the map at the 0-based index.
func (p *Pool) AvailableAt(index int) (string, error) {
	if index < 0 || index >= len(p.available) {
		return "", ErrInvalidIndex
	}
	return p.available[index], nil
}

func (p *Pool) syncFiltered() {
	if !p.ranked {
		p.filtered = slices.Clone(p.available)
	}
}

// Pick chooses the available map at the 0-based index for the match.
func (p *Pool) Pick(index int) (string, error) {
	if p.Full() {
		return "", ErrMapsFull
	}
	m, err := p.AvailableAt(index)
	if err != nil {
		return "", err
	}
	if p.Has(m) {
		return "", ErrAlreadyChosen
	}
	p.chosen = append(p.chosen, m)
	return m, nil
}

// Unpick removes m from the chosen maps.
func (p *Pool) Unpick(m string) bool {
	i := slices.Index(p.chosen, m)
	if i < 0 {
		return false
	}
	p.chosen = slices.Delete(p.chosen, i, i+1)
	return true
}

// Reset clears the chosen maps.
func (p *Pool) Reset() { p.chosen = nil }

// ConfigureRanked switches the pool to ranked weighting. The ranked list
// becomes the distinct maps of the weighting table, or stays the available
// list when the table is empty. A positive limit fixes the number of maps
// per match.
func (p *Pool) ConfigureRanked(weighting []Weighting, shuffle bool, limit int) {
	p.ranked = true
	p.shuffle = shuffle
	p.weighting = slices.Clone(weighting)
	p.filtered = slices.Clone(p.available)
	if len(weighting) > 0 {
		p.filtered = p.filtered[:0:0]
	}
	for _, w := range weighting {
		if !slices.Contains(p.filtered, w.Map) {
			p.filtered = append(p.filtered, w.Map)
		}
	}
	if limit > 0 {
		_ = p.SetMaxMaps(limit)
	}
}

// ClearRanked leaves ranked weighting.
func (p *Pool) ClearRanked() {
	p.ranked = false
	p.shuffle = false
	p.weighting = nil
	p.filtered = slices.Clone(p.available)
}

// AutoPick fills the remaining map slots from the ranked weighting and
// spends desirability on each map picked.
func (p *Pool) AutoPick() ([]Pick, error) {
	if !p.ranked || len(p.filtered) == 0 {
		return nil, ErrNotRanked
	}
	picks, err := p.draw(p.chosen, len(p.chosen), p.maxMaps)
	if err != nil {
		return nil, err
	}
	for _, pk := range picks {
		p.chosen = append(p.chosen, pk.Map)
	}
	return picks, nil
}

// Simulate runs the auto-pick runs times in a row, each run seeing the
// desirability left behind by the previous one. Maps already chosen for the
// match are never drawn. The weighting table is restored afterwards and no
// maps are chosen.
func (p *Pool) Simulate(runs int) ([][]string, error) {
	if !p.ranked || len(p.filtered) == 0 {
		return nil, ErrNotRanked
	}
	saved := slices.Clone(p.weighting)
	defer func() { p.weighting = saved }()

	out := make([][]string, 0, runs)
	for range runs {
		picks, err := p.draw(p.chosen, 0, p.maxMaps)
		if err != nil {
			return nil, err
		}
		run := make([]string, len(picks))
		for i, pk := range picks {
			run[i] = pk.Map
		}
		out = append(out, run)
	}
	return out, nil
}

// draw picks slots first+1 through slots, never drawing a map in taken.
func (p *Pool) draw(taken []string, first, slots int) ([]Pick, error) {
	taken = slices.Clone(taken)
	var picks []Pick

	for i := first; i < slots; i++ {
		slot := i + 1
		free := func(m string) bool { return !slices.Contains(taken, m) }

		var check, decayed int
		for _, w := range p.weighting {
			if w.Order == slot && free(w.Map) {
				check++
				if w.hasDesirability() && w.Desirability < w.Default() {
					decayed++
				}
			}
		}

		var tickets []string
		for j := range p.weighting {
			w := &p.weighting[j]
			if (w.Order != slot && w.Order != 0) || !free(w.Map) {
				continue
			}
			if w.Weight <= 0 {
				tickets = append(tickets, w.Map)
				continue
			}
			if !w.hasDesirability() || decayed == check {
				w.Desirability = w.Default()
			}
			w.Desirability = float64(clampTickets(w.Desirability))
			for range int(w.Desirability) {
				tickets = append(tickets, w.Map)
			}
		}

		pk := Pick{Slot: slot}
		if len(tickets) > 0 {
			pk.Map = tickets[p.rng.IntN(len(tickets))]
			pk.Total = len(tickets)
			for _, t := range tickets {
				if t == pk.Map {
					pk.Tickets++
				}
			}
		} else {
			var rest []string
			for _, m := range p.filtered {
				if free(m) {
					rest = append(rest, m)
				}
			}
			if len(rest) == 0 {
				return nil, ErrNoCandidates
			}
			pk.Map = rest[p.rng.IntN(len(rest))]
			pk.Tickets, pk.Total = 1, len(rest)
		}

		taken = append(taken, pk.Map)
		picks = append(picks, pk)
		p.decay(pk.Map)
	}

	if p.shuffle {
		p.rng.Shuffle(len(picks), func(a, b int) { picks[a], picks[b] = picks[b], picks[a] })
	}
	return picks, nil
}

func (p *Pool) decay(m string) {
	for j := range p.weighting {
		w := &p.weighting[j]
		if w.Map != m {
			continue
		}
		if !w.hasDesirability() {
			w.Desirability = w.Default()
		}
		w.Desirability = max(1, math.RoundToEven(w.Desirability/DesirabilityReduction))
	}
}

func clampTickets(d float64) int {
	return max(1, min(int(d), MaxTickets))
}

// AdjustDesirability changes the weighting table. For Increase and
// Decrease, m names the map case-insensitively and factor is the
// multiplier; the result reports whether the map was found.
func (p *Pool) AdjustDesirability(adj Adjustment, m string, factor float64) bool {
	factor = max(1, factor)
	switch adj {
	case ResetAll:
		for j := range p.weighting {
			p.weighting[j].Desirability = p.weighting[j].Default()
		}
		return true
	case Increase, Decrease:
		found := false
		for j := range p.weighting {
			w := &p.weighting[j]
			if m == "" || !strings.EqualFold(w.Map, m) {
				continue
			}
			d := w.Desirability
			if !w.hasDesirability() {
				d = w.Default()
			}
			if adj == Decrease {
				d /= factor
			} else {
				d *= factor
			}
			w.Desirability = max(1, min(d, w.Default()))
			found = true
		}
		return found
	default:
		for _, pick := range p.chosen {
			for j := range p.weighting {
				w := &p.weighting[j]
				if w.Map != pick {
					continue
				}
				if !w.hasDesirability() {
					w.Desirability = w.Default()
					continue
				}
				w.Desirability = max(1, min(math.RoundToEven(w.Desirability*DesirabilityReduction), w.Default()))
			}
		}
		return true
	}
}
