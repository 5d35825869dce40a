// Package roster tracks the players signed for a pug and the queue that
// feeds the next one.
package roster

import (
	"errors"
	"slices"
	"strings"
)

// MaxPlayers is the largest supported roster: one pick per turn table entry
// plus the two captains.
const MaxPlayers = 34

var (
	ErrAlreadySigned   = errors.New("player is already signed")
	ErrRosterFull      = errors.New("pug is full")
	ErrQueueFull       = errors.New("queue is full")
	ErrInvalidCapacity = errors.New("player count must be a positive even number")
	ErrInvalidIndex    = errors.New("no player at that index")
)

// Player is a chat user taking part in a pug.
type Player struct {
	ID    string
	Name  string
	Roles []string
	// Flags is a free-form sign-up note such as "nomic".
	Flags string
}

// Mention returns the chat mention for the player.
func (p *Player) Mention() string {
	return "<@" + p.ID + ">"
}

// HasRole reports whether the player holds role, matched by name
// case-insensitively or by mention.
func (p *Player) HasRole(role string) bool {
	for _, r := range p.Roles {
		if strings.EqualFold(r, role) || "<@&"+r+">" == role {
			return true
		}
	}
	return false
}

// Pool holds the signed players in sign-up order and the overflow queue.
// Drafted players leave a nil slot behind so indexes stay stable while
// captains pick.
type Pool struct {
	slots    []*Player
	queue    []*Player
	capacity int
}

// NewPool returns an empty pool. An invalid capacity falls back to 2.
func NewPool(capacity int) *Pool {
	p := &Pool{capacity: 2}
	_, _ = p.SetCapacity(capacity)
	return p
}

// Capacity returns the number of players required for a match.
func (p *Pool) Capacity() int { return p.capacity }

// Len returns the number of slots in use, drafted placeholders included.
func (p *Pool) Len() int { return len(p.slots) }

// Needed returns how many more players are required.
func (p *Pool) Needed() int { return p.capacity - len(p.slots) }

// Full reports whether every slot is taken.
func (p *Pool) Full() bool { return len(p.slots) == p.capacity }

// Slots returns a copy of the roster slots including drafted placeholders.
func (p *Pool) Slots() []*Player { return slices.Clone(p.slots) }

// Players returns the undrafted players in sign-up order.
func (p *Pool) Players() []*Player {
	out := make([]*Player, 0, len(p.slots))
	for _, pl := range p.slots {
		if pl != nil {
			out = append(out, pl)
		}
	}
	return out
}

// Queue returns a copy of the queued players.
func (p *Pool) Queue() []*Player { return slices.Clone(p.queue) }

// Has reports whether the player holds a roster slot.
func (p *Pool) Has(id string) bool { return indexOf(p.slots, id) >= 0 }

// Queued reports whether the player is in the queue.
func (p *Pool) Queued(id string) bool { return indexOf(p.queue, id) >= 0 }

// Add signs a player to the roster, or to the queue when queued is set.
// The queue is bounded by the roster capacity.
func (p *Pool) Add(pl *Player, queued bool) error {
	if p.Has(pl.ID) || p.Queued(pl.ID) {
		return ErrAlreadySigned
	}
	if queued {
		if len(p.queue) >= p.capacity {
			return ErrQueueFull
		}
		p.queue = append(p.queue, pl)
		return nil
	}
	if p.Full() {
		return ErrRosterFull
	}
	p.slots = append(p.slots, pl)
	return nil
}

// Remove takes the player out of the queue or the roster and returns it.
func (p *Pool) Remove(id string) (*Player, bool) {
	if i := indexOf(p.queue, id); i >= 0 {
		pl := p.queue[i]
		p.queue = slices.Delete(p.queue, i, i+1)
		return pl, true
	}
	if i := indexOf(p.slots, id); i >= 0 {
		pl := p.slots[i]
		p.slots = slices.Delete(p.slots, i, i+1)
		return pl, true
	}
	return nil, false
}

// SetCapacity changes the number of players required, capping at
// MaxPlayers. Players beyond the new capacity are dropped from the end of
// the roster and queue and returned.
func (p *Pool) SetCapacity(n int) ([]*Player, error) {
	if n < 1 || n%2 != 0 {
		return nil, ErrInvalidCapacity
	}
	p.capacity = min(n, MaxPlayers)

	var dropped []*Player
	for len(p.slots) > p.capacity {
		last := p.slots[len(p.slots)-1]
		p.slots = p.slots[:len(p.slots)-1]
		if last != nil {
			dropped = append(dropped, last)
		}
	}
	if len(p.queue) > p.capacity {
		dropped = append(dropped, p.queue[p.capacity:]...)
		p.queue = p.queue[:p.capacity]
	}
	return dropped, nil
}

// ConvertQueue replaces the roster with the queued players and empties the
// queue. It returns the number of players moved.
func (p *Pool) ConvertQueue() int {
	p.slots = p.queue
	p.queue = nil
	return len(p.slots)
}

// Take removes the player at index from play, leaving a placeholder.
func (p *Pool) Take(index int) (*Player, error) {
	if index < 0 || index >= len(p.slots) || p.slots[index] == nil {
		return nil, ErrInvalidIndex
	}
	pl := p.slots[index]
	p.slots[index] = nil
	return pl, nil
}

// Restore compacts drafted placeholders away and appends players returning
// from the teams.
func (p *Pool) Restore(players ...*Player) {
	out := p.Players()
	for _, pl := range players {
		if pl != nil {
			out = append(out, pl)
		}
	}
	p.slots = out
}

// Reset clears the roster, and the queue as well when includeQueue is set.
func (p *Pool) Reset(includeQueue bool) {
	p.slots = nil
	if includeQueue {
		p.queue = nil
	}
}

func indexOf(players []*Player, id string) int {
	return slices.IndexFunc(players, func(pl *Player) bool {
		return pl != nil && pl.ID == id
	})
}
