package maps

import "context"

// Repository persists the available map list of each pug channel. Load
// returns ErrNoSavedList when the channel has never been saved.
type Repository interface {
	Load(ctx context.Context, channel string) ([]string, error)
	Save(ctx context.Context, channel string, list []string) error
}
