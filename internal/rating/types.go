package rating

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/jensholdgaard/assault-pugbot/internal/maps"
)

// AdminSet marks a rating change made by an administrator rather than a
// match.
const AdminSet = "admin-set"

// MaxHistory is the number of rating history entries kept per player.
const MaxHistory = 150

// SchemaVersion is the current layout of a ranked block.
const SchemaVersion = 1

// ID is a chat user id. Stored files may hold it as a JSON number or string.
type ID string

// UnmarshalJSON accepts both numeric and string ids.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decoding id %s: %w", b, err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as JSON numbers.
func (id ID) MarshalJSON() ([]byte, error) {
	numeric := id != "" && (id[0] != '0' || len(id) == 1) &&
		strings.IndexFunc(string(id), func(r rune) bool { return !unicode.IsDigit(r) }) < 0
	if numeric {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Time is a timestamp stored as an ISO-8601 string. The empty string is the
// zero time.
type Time struct {
	time.Time
}

// Equal reports whether both times are the same instant.
func (t Time) Equal(u Time) bool { return t.Time.Equal(u.Time) }

// At wraps t.
func At(t time.Time) Time { return Time{t} }

const isoLayout = "2006-01-02T15:04:05.999999-07:00"

var parseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02",
}

// ParseTime reads the timestamp layouts found in stored rating files.
func ParseTime(s string) (Time, error) {
	if s == "" {
		return Time{}, nil
	}
	for _, l := range parseLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return Time{t}, nil
		}
	}
	return Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// UnmarshalJSON parses an ISO-8601 string.
func (t *Time) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTime(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON writes the time as an ISO-8601 string with offset.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Format(isoLayout))
}

// HistoryEntry is one past rating state: the event that produced it, when,
// and the values before and after.
type HistoryEntry struct {
	Ref    string `json:"matchref"`
	Date   Time   `json:"matchdate"`
	Before int    `json:"ratingbefore"`
	After  int    `json:"ratingafter"`
}

// Record is a player's rating in one ranked mode.
type Record struct {
	ID         ID             `json:"did"`
	Name       string         `json:"dlastnick"`
	ExternalID ID             `json:"externalpid"`
	Value      int            `json:"ratingvalue"`
	Previous   int            `json:"ratingprevious"`
	Date       Time           `json:"ratingdate"`
	LastRef    string         `json:"lastgameref"`
	LastDate   Time           `json:"lastgamedate"`
	History    []HistoryEntry `json:"ratinghistory"`
}

// current returns the record's latest state as a history entry.
func (r *Record) current() HistoryEntry {
	return HistoryEntry{Ref: r.LastRef, Date: r.LastDate, Before: r.Previous, After: r.Value}
}

// push archives the latest state, keeping history sorted by date and
// bounded to MaxHistory entries.
func (r *Record) push() {
	r.History = append(r.History, r.current())
	pruneHistory(r)
}

// Captain identifies a team captain in a stored match.
type Captain struct {
	ID          ID   `json:"id"`
	Volunteered bool `json:"volunteered"`
}

// Match is a stored ranked match.
type Match struct {
	Ref         string   `json:"gameref"`
	Start       Time     `json:"startdate"`
	End         Time     `json:"enddate"`
	Completed   bool     `json:"completed"`
	Maps        []string `json:"maplist"`
	Red         []ID     `json:"teamred"`
	Blue        []ID     `json:"teamblue"`
	RedPower    int      `json:"rpred"`
	BluePower   int      `json:"rpblue"`
	RedScore    int      `json:"scorered"`
	BlueScore   int      `json:"scoreblue"`
	RedCaptain  Captain  `json:"capred"`
	BlueCaptain Captain  `json:"capblue"`
}

// Players returns the ids of both teams.
func (m *Match) Players() []ID {
	out := make([]ID, 0, len(m.Red)+len(m.Blue))
	out = append(out, m.Red...)
	return append(out, m.Blue...)
}

// Scoring modes.
const (
	PerMap  = "permap"
	PerGame = "pergame"
)

// Scoring configures the rating points awarded per match.
type Scoring struct {
	Mode       string `json:"mode"`
	TeamWin    int    `json:"teamWin"`
	TeamLose   int    `json:"teamLose"`
	CapWin     int    `json:"capWin"`
	CapLose    int    `json:"capLose"`
	VolCapWin  int    `json:"volCapWin"`
	VolCapLose int    `json:"volCapLose"`
}

// Configured reports whether a scoring mode has been set.
func (s Scoring) Configured() bool { return s.Mode == PerMap || s.Mode == PerGame }

// MapSettings holds the ranked map weighting for a mode.
type MapSettings struct {
	MapList        []maps.Weighting `json:"maplist"`
	FixedPickLimit int              `json:"fixedpicklimit"`
	RandomOrder    bool             `json:"randomorder"`
	CooldownPool   []string         `json:"cooldownpool,omitempty"`
	CooldownCount  int              `json:"cooldowncount,omitempty"`
}

// Captain selection modes for balanced teams.
const (
	CapNone = iota
	CapRandom
	CapRole
	CapVolunteer
)

// Block holds everything stored for one ranked mode.
type Block struct {
	Mode          string      `json:"mode"`
	Version       int         `json:"schemaversion"`
	Maps          MapSettings `json:"maps"`
	Eligibility   string      `json:"eligibility"`
	Registrations []ID        `json:"registrations"`
	Ratings       []*Record   `json:"ratings"`
	LastSync      string      `json:"lastsync"`
	CapMode       int         `json:"capMode"`
	CapWindow     int         `json:"capWindow"`
	CapRole       string      `json:"capRole"`
	Games         []*Match    `json:"games"`
	Scoring       Scoring     `json:"scoring"`
	LastUpdated   Time        `json:"lastupdated"`
}

// NewBlock returns the empty schema for mode.
func NewBlock(mode string) *Block {
	b := &Block{Mode: mode}
	b.Migrate()
	return b
}

// Migrate fills defaults for fields absent from older files and brings the
// block to the current schema version.
func (b *Block) Migrate() {
	if b.Registrations == nil {
		b.Registrations = []ID{}
	}
	if b.Ratings == nil {
		b.Ratings = []*Record{}
	}
	if b.Games == nil {
		b.Games = []*Match{}
	}
	if b.Maps.MapList == nil {
		b.Maps.MapList = []maps.Weighting{}
	}
	for _, r := range b.Ratings {
		if r.History == nil {
			r.History = []HistoryEntry{}
		}
	}
	b.CapMode = max(CapNone, min(b.CapMode, CapVolunteer))
	b.Version = SchemaVersion
}
