package gameserver

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// API request modes sent in the Mode header.
const (
	ModeCheck       = "check"
	ModeList        = "list"
	ModeSetup       = "setup"
	ModeEndGame     = "endgame"
	ModeRemoteStart = "remotestart"
	ModeRemoteStop  = "remotestop"
)

// Setup results reported by the API.
const (
	ResultCompleted       = "Completed"
	ResultMatchFinished   = "Match Finished"
	ResultMatchInProgress = "Match In Progress"
	ResultFailed          = "Failed"
)

// Password defaults.
const (
	RedPasswordPrefix  = "RP"
	BluePasswordPrefix = "BP"
	SpectatorPassword  = "pug"
	SpectatorLimit     = 4
	InitialWait        = 180
)

// ServerStatus is the live state block of a check response.
type ServerStatus struct {
	Summary        string `json:"Summary"`
	Map            string `json:"Map"`
	Mode           string `json:"Mode"`
	MatchCode      string `json:"MatchCode"`
	Players        string `json:"Players"`
	RemainingTime  string `json:"RemainingTime"`
	TournamentMode string `json:"TournamentMode"`
	ScoreRed       int    `json:"ScoreRed"`
	ScoreBlue      int    `json:"ScoreBlue"`
}

// Public reports whether the server is idle and open to the public, in
// which case its scores are stale.
func (s ServerStatus) Public() bool {
	return strings.HasPrefix(s.Summary, "OPEN - PUBLIC") || strings.HasPrefix(s.Summary, "LOCKED - PRIVATE")
}

// Online reports whether the status describes a reachable server.
func (s ServerStatus) Online() bool {
	switch s.Summary {
	case "", "N/A", "N/AN/A":
		return false
	}
	return true
}

// SetupConfig is the match configuration echoed back by a setup request.
type SetupConfig struct {
	MatchCode string `json:"matchCode"`
	RedPass   string `json:"redPass"`
	BluePass  string `json:"bluePass"`
	SpecPass  string `json:"specPass"`
}

// Info is the API response for every request mode.
type Info struct {
	ServerRef     string       `json:"serverRef"`
	ServerName    string       `json:"serverName"`
	ServerAddr    string       `json:"serverAddr"`
	ServerPort    int          `json:"serverPort"`
	CloudManaged  bool         `json:"cloudManaged"`
	ServerDefault bool         `json:"serverDefault"`
	MatchStarted  bool         `json:"matchStarted"`
	SetupResult   string       `json:"setupResult"`
	Status        ServerStatus `json:"serverStatus"`
	SetupConfig   *SetupConfig `json:"setupConfig,omitempty"`
}

// URL returns the unreal:// address of the server.
func (i *Info) URL() string {
	return fmt.Sprintf("unreal://%s:%d", i.ServerAddr, i.ServerPort)
}

// SetupRequest is the body of a setup request.
type SetupRequest struct {
	Server            string   `json:"server"`
	AuthEnabled       bool     `json:"authEnabled"`
	TIWEnabled        bool     `json:"tiwEnabled"`
	MatchLength       int      `json:"matchLength"`
	MaxPlayers        int      `json:"maxPlayers"`
	SpecLimit         int      `json:"specLimit"`
	RedPass           string   `json:"redPass"`
	BluePass          string   `json:"bluePass"`
	SpecPass          string   `json:"specPass"`
	MapList           []string `json:"maplist"`
	GameType          string   `json:"gameType"`
	Mutators          *string  `json:"mutators"`
	FriendlyFireScale int      `json:"friendlyFireScale"`
	InitialWait       int      `json:"initialWait"`
}

// GameSettings are the mode-dependent parts of a setup request.
type GameSettings struct {
	GameType          string
	Mutators          string
	FriendlyFireScale int
}

// Passwords holds the credentials for one match.
type Passwords struct {
	Red, Blue, Spectator string
}

// NewPasswords generates random team passwords. The spectator password is
// fixed.
func NewPasswords(rng *rand.Rand) Passwords {
	return Passwords{
		Red:       fmt.Sprintf("%s%d", RedPasswordPrefix, rng.IntN(1000)),
		Blue:      fmt.Sprintf("%s%d", BluePasswordPrefix, rng.IntN(1000)),
		Spectator: SpectatorPassword,
	}
}

// NewSetupRequest builds the setup body for a match on server.
func NewSetupRequest(server string, players int, maps []string, game GameSettings, pw Passwords) SetupRequest {
	req := SetupRequest{
		Server:            server,
		AuthEnabled:       true,
		TIWEnabled:        true,
		MatchLength:       len(maps),
		MaxPlayers:        players,
		SpecLimit:         SpectatorLimit,
		RedPass:           pw.Red,
		BluePass:          pw.Blue,
		SpecPass:          pw.Spectator,
		MapList:           maps,
		GameType:          game.GameType,
		FriendlyFireScale: game.FriendlyFireScale,
		InitialWait:       InitialWait,
	}
	if game.Mutators != "" {
		m := game.Mutators
		req.Mutators = &m
	}
	return req
}
