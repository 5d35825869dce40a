package rating

import (
	"math/bits"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/jensholdgaard/assault-pugbot/internal/roster"
)

// maxBalancedPlayers bounds the exhaustive search in BalancedTeams.
const maxBalancedPlayers = 24

// Rated pairs a player with the rating used for balancing.
type Rated struct {
	Player *roster.Player
	Rating int
}

// Teams is the result of balancing. Index 0 of each side is its captain
// when captains were chosen.
type Teams struct {
	Red, Blue           []Rated
	RedPower, BluePower int
}

func playersOf(rs []Rated) []*roster.Player {
	out := make([]*roster.Player, len(rs))
	for i, r := range rs {
		out[i] = r.Player
	}
	return out
}

// RedPlayers returns the red team's players.
func (t *Teams) RedPlayers() []*roster.Player { return playersOf(t.Red) }

// BluePlayers returns the blue team's players.
func (t *Teams) BluePlayers() []*roster.Player { return playersOf(t.Blue) }

// Rate looks up the rating of each player. Players without a record are
// returned as missing.
func (b *Block) Rate(ps []*roster.Player) ([]Rated, []*roster.Player) {
	var out []Rated
	var missing []*roster.Player
	for _, p := range ps {
		r := b.Find(ByID(ID(p.ID)))
		if r == nil {
			missing = append(missing, p)
			continue
		}
		out = append(out, Rated{Player: p, Rating: r.Value})
	}
	return out, missing
}

// BalancedTeams splits players into two equal halves whose rating sums
// differ as little as possible, then chooses captains according to the
// block's captain mode.
func (b *Block) BalancedTeams(players []Rated, rng *rand.Rand) (*Teams, error) {
	n := len(players)
	if n == 0 || n%2 != 0 {
		return nil, ErrUnevenPlayers
	}
	if n > maxBalancedPlayers {
		return nil, ErrTooManyPlayers
	}

	best, bestDiff := uint32(0), -1
	for mask := uint32(0); mask < 1<<n; mask++ {
		if bits.OnesCount32(mask) != n/2 {
			continue
		}
		var a, c int
		for i, p := range players {
			if mask&(1<<i) != 0 {
				a += p.Rating
			} else {
				c += p.Rating
			}
		}
		diff := a - c
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			best, bestDiff = mask, diff
		}
	}

	t := &Teams{}
	for i, p := range players {
		if best&(1<<i) != 0 {
			t.Red = append(t.Red, p)
			t.RedPower += p.Rating
		} else {
			t.Blue = append(t.Blue, p)
			t.BluePower += p.Rating
		}
	}
	b.chooseCaptains(t, rng)
	return t, nil
}

func (b *Block) chooseCaptains(t *Teams, rng *rand.Rand) {
	mode := b.CapMode
	if mode > CapRole {
		// Volunteer windows are not run for balanced teams.
		mode = CapRandom
	}
	redPool, bluePool := t.Red, t.Blue
	if mode == CapRole {
		hasRole := func(r Rated) bool {
			return b.CapRole != "" && slices.ContainsFunc(r.Player.Roles, func(role string) bool {
				return strings.EqualFold(role, b.CapRole)
			})
		}
		// A side with no role holder draws from its whole team.
		if pool := filter(t.Red, hasRole); len(pool) > 0 {
			redPool = pool
		}
		if pool := filter(t.Blue, hasRole); len(pool) > 0 {
			bluePool = pool
		}
		mode = CapRandom
	}
	if mode != CapRandom || len(redPool) == 0 || len(bluePool) == 0 {
		return
	}
	promote(t.Red, redPool[rng.IntN(len(redPool))])
	promote(t.Blue, bluePool[rng.IntN(len(bluePool))])
}

func filter(rs []Rated, keep func(Rated) bool) []Rated {
	var out []Rated
	for _, r := range rs {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// promote moves captain to the front of team.
func promote(team []Rated, captain Rated) {
	i := slices.IndexFunc(team, func(r Rated) bool { return r.Player.ID == captain.Player.ID })
	if i <= 0 {
		return
	}
	copy(team[1:i+1], team[:i])
	team[0] = captain
}
