package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	MatchSetup     Type = "match.setup"
	MatchSetupFail Type = "match.setup_failed"
	MatchEnded     Type = "match.ended"
	MatchReset     Type = "match.reset"
	MatchRecorded  Type = "match.recorded"
	MatchVoided    Type = "match.voided"

	RatingSet          Type = "rating.set"
	RatingDeleted      Type = "rating.deleted"
	RatingRecalculated Type = "rating.recalculated"
	RatingsAwarded     Type = "rating.awarded"
)

// Event represents a single domain event.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// New builds an event with data marshalled to JSON.
func New(aggregateID string, t Type, data any) Event {
	raw, _ := json.Marshal(data)
	return Event{AggregateID: aggregateID, Type: t, Data: raw}
}

// MatchSetupData is the payload for MatchSetup events.
type MatchSetupData struct {
	Channel   string   `json:"channel"`
	Mode      string   `json:"mode"`
	Server    string   `json:"server"`
	MatchCode string   `json:"match_code"`
	Red       []string `json:"red"`
	Blue      []string `json:"blue"`
	Maps      []string `json:"maps"`
	Attempts  int      `json:"attempts"`
}

// MatchEndedData is the payload for MatchEnded and MatchReset events.
type MatchEndedData struct {
	Channel   string `json:"channel"`
	MatchCode string `json:"match_code"`
	RedScore  int    `json:"red_score"`
	BlueScore int    `json:"blue_score"`
	Manual    bool   `json:"manual"`
}

// MatchRecordedData is the payload for MatchRecorded and MatchVoided events.
type MatchRecordedData struct {
	Mode      string `json:"mode"`
	MatchRef  string `json:"match_ref"`
	Completed bool   `json:"completed"`
}

// RatingChangeData is the payload for rating events.
type RatingChangeData struct {
	Mode     string `json:"mode"`
	PlayerID string `json:"player_id"`
	Before   int    `json:"before"`
	After    int    `json:"after"`
	Reason   string `json:"reason"`
}
