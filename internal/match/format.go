package match

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jensholdgaard/assault-pugbot/internal/draft"
	"github.com/jensholdgaard/assault-pugbot/internal/gameserver"
	"github.com/jensholdgaard/assault-pugbot/internal/rating"
	"github.com/jensholdgaard/assault-pugbot/internal/roster"
)

const (
	plasep  = "\U0001F538"
	capSign = "\U0001F451"
)

func (c *Coordinator) desc() string {
	if c.mode.Ranked {
		return fmt.Sprintf("Ranked Assault (%s) PUG", c.mode.Name)
	}
	return fmt.Sprintf("Assault (%s) PUG", c.mode.Name)
}

func (c *Coordinator) isCaptain(p *roster.Player) bool {
	for _, s := range []draft.Side{draft.Red, draft.Blue} {
		if cp := c.draft.Captain(s); cp != nil && cp.ID == p.ID {
			return true
		}
	}
	return false
}

// formatPlayers joins ps, numbering by slot when number is set. Empty
// slots keep their number.
func (c *Coordinator) formatPlayers(ps []*roster.Player, number, mention bool) string {
	markCaptains := c.mode.Ranked && c.ranked != nil && c.ranked.CapMode > rating.CapNone
	var out []string
	for i, p := range ps {
		if p == nil {
			continue
		}
		name := p.Name
		if mention {
			name = p.Mention()
		}
		if markCaptains && c.isCaptain(p) {
			name += " (" + capSign + ")"
		}
		if number {
			name = fmt.Sprintf("**%d)** %s", i+1, name)
		}
		out = append(out, name)
	}
	return strings.Join(out, plasep)
}

func (c *Coordinator) allPlayers() []*roster.Player {
	out := c.players.Players()
	out = append(out, c.draft.Team(draft.Red)...)
	return append(out, c.draft.Team(draft.Blue)...)
}

func formatMaps(ms []string) string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = fmt.Sprintf("**%d)** %s", i+1, m)
	}
	return strings.Join(out, plasep)
}

func (c *Coordinator) formatTeams(mention bool) string {
	return fmt.Sprintf("**Red Team:** %s\n**Blue Team:** %s",
		c.formatPlayers(c.draft.Team(draft.Red), false, mention),
		c.formatPlayers(c.draft.Team(draft.Blue), false, mention))
}

func (c *Coordinator) formatPugShort() string {
	return fmt.Sprintf("**__%s [%d/%d] \\|\\| %s \\|\\| %d maps__**",
		c.desc(), c.players.Len(), c.players.Capacity(), c.servers.Current().Name, c.maps.MaxMaps())
}

func (c *Coordinator) formatPug(mention bool) string {
	return fmt.Sprintf("**__%s [%d/%d] \\|\\| %s \\|\\| %d maps:__**\n%s",
		c.desc(), c.players.Len(), c.players.Capacity(), c.servers.Current().Name, c.maps.MaxMaps(),
		c.formatPlayers(c.allPlayers(), true, mention))
}

func displayName(p *roster.Player, mention bool) string {
	if p == nil {
		return "Nobody"
	}
	if mention {
		return p.Mention()
	}
	return p.Name
}

func (c *Coordinator) formatPickNextPlayer(mention bool) string {
	return fmt.Sprintf("%s to pick next player (**/pick <number>**)", displayName(c.draft.CurrentCaptain(), mention))
}

func (c *Coordinator) formatPickNextMap(mention bool) string {
	return fmt.Sprintf("%s to pick next map (use **/map <number>** to pick and **/listmaps** to view available maps)",
		displayName(c.mapCaptain(), mention))
}

func (c *Coordinator) formatPower() string {
	return fmt.Sprintf("Red RP: %d; Blue RP: %d", c.redPower, c.bluePower)
}

func (c *Coordinator) formatMatchReady() string {
	lines := []string{
		"Match is ready:",
		c.formatTeams(true),
		fmt.Sprintf("Maps (%d):\n%s", c.maps.MaxMaps(), formatMaps(c.maps.Chosen())),
	}
	if c.live != nil {
		lines = append(lines,
			fmt.Sprintf("Pug Server: **%s**", c.live.url),
			fmt.Sprintf("Spectator password: **%s**", c.live.passwords.Spectator))
	}
	return strings.Join(lines, "\n")
}

func (c *Coordinator) formatMatchInProgress() string {
	if !c.matchReady() || c.live == nil {
		return "Match is in progress, but no pug info is available. Use **/serverstatus** to monitor this match."
	}
	lines := []string{
		fmt.Sprintf("Match in progress (%s ago):", duration(c.live.started, c.clock.Now())),
		c.formatTeams(false),
	}
	if c.mode.Ranked {
		lines = append(lines, c.formatPower())
	}
	lines = append(lines,
		fmt.Sprintf("Maps (%d): %s", c.maps.MaxMaps(), formatMaps(c.maps.Chosen())),
		fmt.Sprintf("Mode: %s @ Pug Server: **%s**", c.mode.Name, c.live.url),
		fmt.Sprintf("Spectator password: **%s**", c.live.passwords.Spectator),
	)
	if q := c.players.Queue(); len(q) > 0 {
		lines = append(lines, "Queued players for next pug: "+c.formatPlayers(q, false, false))
	}
	return strings.Join(lines, "\n")
}

func (c *Coordinator) formatLastPug() string {
	l := c.last
	if l.started.IsZero() {
		return "No last pug info available."
	}
	lines := []string{
		fmt.Sprintf("Last **%s** (%s ago)", l.desc, duration(l.started, c.clock.Now())),
		fmt.Sprintf("**Red Team:** %s\n**Blue Team:** %s",
			c.formatPlayers(l.red, false, false), c.formatPlayers(l.blue, false, false)),
	}
	if l.ranked {
		lines = append(lines, fmt.Sprintf("Red RP: %d; Blue RP: %d", l.redPower, l.bluePower))
	}
	lines = append(lines, fmt.Sprintf("Maps (%d):\n%s", len(l.maps), formatMaps(l.maps)))
	if l.score != "" {
		lines = append(lines, l.score)
	}
	return strings.Join(lines, "\n")
}

func formatStatus(info *gameserver.Info) string {
	s := info.Status
	return strings.Join([]string{
		"```",
		"Server: " + info.ServerName,
		info.URL(),
		"Summary: " + s.Summary,
		"Map: " + s.Map,
		"Mode: " + s.Mode,
		"Match Code: " + s.MatchCode,
		"Players: " + s.Players,
		"Remaining Time: " + s.RemainingTime,
		"TournamentMode: " + s.TournamentMode,
		"Status: " + info.SetupResult,
		"```",
	}, "\n")
}

func formatChanges(code string, changes []rating.Change) string {
	lines := []string{fmt.Sprintf("Ranked results for **%s**:", code)}
	slices.SortFunc(changes, func(a, b rating.Change) int { return (b.After - b.Before) - (a.After - a.Before) })
	for _, ch := range changes {
		lines = append(lines, fmt.Sprintf("%s: %d → %d (%+d)", ch.Name, ch.Before, ch.After, ch.After-ch.Before))
	}
	return strings.Join(lines, "\n")
}

// duration renders the time between then and now, largest unit first.
func duration(then, now time.Time) string {
	d := now.Sub(then)
	if d < 0 {
		d = 0
	}
	secs := int(d.Seconds())
	units := []struct {
		name string
		size int
	}{
		{"years", 31536000},
		{"days", 86400},
		{"hours", 3600},
		{"minutes", 60},
	}
	var out []string
	for _, u := range units {
		if n := secs / u.size; n > 0 {
			out = append(out, fmt.Sprintf("%d %s", n, u.name))
			secs %= u.size
		}
	}
	out = append(out, fmt.Sprintf("%d seconds", secs))
	return strings.Join(out, ", ")
}
