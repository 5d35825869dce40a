// Package draft splits a full roster into red and blue teams through
// captain picks.
package draft

import (
	"errors"
	"math/rand/v2"
	"slices"

	"github.com/jensholdgaard/assault-pugbot/internal/roster"
)

var (
	ErrCaptainsFull  = errors.New("both teams already have a captain")
	ErrRosterNotFull = errors.New("pug is not full yet")
	ErrNotInRoster   = errors.New("player is not available for the draft")
	ErrNotYourTurn   = errors.New("it is not your turn to pick")
	ErrInvalidPick   = errors.New("invalid player selection")
)

// Side identifies a team.
type Side int

const (
	Red Side = iota
	Blue
)

func (s Side) String() string {
	if s == Blue {
		return "Blue"
	}
	return "Red"
}

// Other returns the opposing side.
func (s Side) Other() Side { return 1 - s }

// TurnOrder lists which side owns each successive pick.
type TurnOrder [roster.MaxPlayers - 2]Side

// Uniform reports whether every turn in [from, to) belongs to the same side.
// An empty range is not uniform.
func (o TurnOrder) Uniform(from, to int) (Side, bool) {
	to = min(to, len(o))
	if from < 0 || from >= to {
		return Red, false
	}
	for _, s := range o[from+1 : to] {
		if s != o[from] {
			return Red, false
		}
	}
	return o[from], true
}

// PickOrders are the selectable turn tables.
var PickOrders = [...]TurnOrder{
	turns(nil, Red, Blue),
	turns(nil, Red, Blue, Blue, Red),
	turns([]Side{Red, Blue, Blue, Red}, Red, Blue),
	turns([]Side{Red, Blue, Blue, Red}, Blue, Red),
}

func turns(prefix []Side, cycle ...Side) TurnOrder {
	var o TurnOrder
	n := copy(o[:], prefix)
	for i := n; i < len(o); i++ {
		o[i] = cycle[(i-n)%len(cycle)]
	}
	return o
}

// Order returns the turn table for mode, defaulting to the first table.
func Order(mode int) TurnOrder {
	if mode < 0 || mode >= len(PickOrders) {
		return PickOrders[0]
	}
	return PickOrders[mode]
}

// Draft tracks the two teams being built from a roster pool. Index 0 of
// each team is its captain.
type Draft struct {
	pool  *roster.Pool
	order TurnOrder
	teams [2][]*roster.Player
	rng   *rand.Rand
}

// New returns a Draft over pool using the given pick mode.
func New(pool *roster.Pool, pickMode int, rng *rand.Rand) *Draft {
	return &Draft{pool: pool, order: Order(pickMode), rng: rng}
}

// Team returns a copy of the players on side.
func (d *Draft) Team(s Side) []*roster.Player { return slices.Clone(d.teams[s]) }

// Captain returns the captain of side, or nil.
func (d *Draft) Captain(s Side) *roster.Player {
	if len(d.teams[s]) == 0 {
		return nil
	}
	return d.teams[s][0]
}

// NumCaptains returns how many sides have a captain.
func (d *Draft) NumCaptains() int {
	n := 0
	for _, t := range d.teams {
		if len(t) > 0 {
			n++
		}
	}
	return n
}

// CaptainsFull reports whether both sides have a captain.
func (d *Draft) CaptainsFull() bool { return d.NumCaptains() == 2 }

// TeamsFull reports whether every roster slot has been drafted.
func (d *Draft) TeamsFull() bool {
	return len(d.teams[Red])+len(d.teams[Blue]) == d.pool.Capacity()
}

// Has reports whether the player is on either team.
func (d *Draft) Has(id string) bool {
	for _, t := range d.teams {
		if slices.ContainsFunc(t, func(p *roster.Player) bool { return p.ID == id }) {
			return true
		}
	}
	return false
}

// CurrentPickIndex is the position in the turn table of the next pick.
func (d *Draft) CurrentPickIndex() int {
	if !d.CaptainsFull() {
		return 0
	}
	return len(d.teams[Red]) + len(d.teams[Blue]) - 2
}

// CurrentSide returns the side whose turn it is. ok is false before both
// captains are set and once every pick has been made.
func (d *Draft) CurrentSide() (side Side, ok bool) {
	i := d.CurrentPickIndex()
	if !d.CaptainsFull() || i >= d.maxPicks() || i >= len(d.order) {
		return Red, false
	}
	return d.order[i], true
}

// CurrentCaptain returns the captain who picks next, or nil when nobody
// is due to pick.
func (d *Draft) CurrentCaptain() *roster.Player {
	side, ok := d.CurrentSide()
	if !ok {
		return nil
	}
	return d.Captain(side)
}

func (d *Draft) maxPicks() int { return d.pool.Capacity() - 2 }

// SetCaptain puts the player on a random captainless side. The roster must
// be full and the player must still be undrafted.
func (d *Draft) SetCaptain(p *roster.Player) (Side, error) {
	if d.CaptainsFull() {
		return Red, ErrCaptainsFull
	}
	if !d.pool.Full() {
		return Red, ErrRosterNotFull
	}
	idx := slices.IndexFunc(d.pool.Slots(), func(s *roster.Player) bool { return s != nil && s.ID == p.ID })
	if idx < 0 {
		return Red, ErrNotInRoster
	}

	var open []Side
	for _, s := range []Side{Red, Blue} {
		if len(d.teams[s]) == 0 {
			open = append(open, s)
		}
	}
	side := open[d.rng.IntN(len(open))]

	pl, err := d.pool.Take(idx)
	if err != nil {
		return Red, err
	}
	d.teams[side] = append(d.teams[side], pl)
	return side, nil
}

// Pick moves the roster player at index to the picking captain's team. If
// every remaining turn then belongs to one side, the rest of the roster is
// assigned to it at once. It returns all players moved.
func (d *Draft) Pick(captainID string, index int) ([]*roster.Player, error) {
	cur := d.CurrentCaptain()
	if cur == nil || cur.ID != captainID {
		return nil, ErrNotYourTurn
	}
	side, _ := d.CurrentSide()
	pl, err := d.pool.Take(index)
	if err != nil {
		return nil, ErrInvalidPick
	}
	d.teams[side] = append(d.teams[side], pl)
	moved := []*roster.Player{pl}

	if rest, ok := d.order.Uniform(d.CurrentPickIndex(), d.maxPicks()); ok {
		for i, p := range d.pool.Slots() {
			if p == nil {
				continue
			}
			_, _ = d.pool.Take(i)
			d.teams[rest] = append(d.teams[rest], p)
			moved = append(moved, p)
		}
	}
	return moved, nil
}

// Assign drafts whole teams at once, as balanced team generation does.
// Players are taken out of the roster pool.
func (d *Draft) Assign(red, blue []*roster.Player) {
	d.SoftReset()
	for side, team := range [2][]*roster.Player{red, blue} {
		for _, p := range team {
			idx := slices.IndexFunc(d.pool.Slots(), func(s *roster.Player) bool { return s != nil && s.ID == p.ID })
			if idx < 0 {
				continue
			}
			pl, _ := d.pool.Take(idx)
			d.teams[side] = append(d.teams[side], pl)
		}
	}
}

// SoftReset returns drafted players to the roster and clears both teams.
func (d *Draft) SoftReset() bool {
	if len(d.teams[Red]) == 0 && len(d.teams[Blue]) == 0 {
		return false
	}
	d.pool.Restore(append(d.teams[Red], d.teams[Blue]...)...)
	d.teams = [2][]*roster.Player{}
	return true
}

// FullReset clears the teams and the roster, and the queue when clearQueue
// is set.
func (d *Draft) FullReset(clearQueue bool) {
	d.SoftReset()
	d.pool.Reset(clearQueue)
}
