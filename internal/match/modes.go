package match

import (
	"strings"

	"github.com/jensholdgaard/assault-pugbot/internal/gameserver"
)

const leagueAssault = "LeagueAS140.LeagueAssault"

// Mode is a playable pug mode and the server settings it implies.
type Mode struct {
	Name              string
	Ranked            bool
	MinPlayers        int
	MaxPlayers        int
	FriendlyFireScale int
	GameType          string
	Mutators          string
}

// Game returns the setup settings for the mode.
func (m Mode) Game() gameserver.GameSettings {
	return gameserver.GameSettings{
		GameType:          m.GameType,
		Mutators:          m.Mutators,
		FriendlyFireScale: m.FriendlyFireScale,
	}
}

// Modes lists the supported modes in display order.
var Modes = []Mode{
	{Name: "stdAS", MinPlayers: 2, MaxPlayers: 20, GameType: leagueAssault},
	{Name: "proAS", MinPlayers: 2, MaxPlayers: 20, FriendlyFireScale: 100, GameType: leagueAssault},
	{Name: "ASplus", MinPlayers: 2, MaxPlayers: 20, GameType: leagueAssault, Mutators: "LeagueAS-SP.ASPlus"},
	{Name: "rASplus", Ranked: true, MinPlayers: 8, MaxPlayers: 14, GameType: leagueAssault, Mutators: "LeagueAS-SP.ASPlus,rAS140.RankedAS"},
	{Name: "proASplus", MinPlayers: 2, MaxPlayers: 20, FriendlyFireScale: 100, GameType: leagueAssault, Mutators: "LeagueAS-SP.ASPlus"},
	{Name: "iAS", MinPlayers: 2, MaxPlayers: 20, GameType: leagueAssault, Mutators: "LeagueAS-SP.iAS"},
	{Name: "ZPiAS", MinPlayers: 2, MaxPlayers: 20, GameType: leagueAssault, Mutators: "ZeroPingPlus103.ColorAccuGib"},
}

// LookupMode finds a mode by name, ignoring case.
func LookupMode(name string) (Mode, bool) {
	for _, m := range Modes {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return Mode{}, false
}

// ModeNames returns the names of every mode.
func ModeNames() []string {
	out := make([]string, len(Modes))
	for i, m := range Modes {
		out[i] = m.Name
	}
	return out
}
