package event

import "context"

// Store is the append-only audit log of match and rating events. Match
// events are keyed by match ref, rating events by player id.
type Store interface {
	Append(ctx context.Context, events ...Event) error
	// Load returns the events of one match or player, oldest first.
	Load(ctx context.Context, aggregateID string) ([]Event, error)
	// LoadByType returns every event of type t, oldest first.
	LoadByType(ctx context.Context, t Type) ([]Event, error)
}
