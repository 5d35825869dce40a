// Package store selects the persistence backend for ratings, saved map
// lists and the event log. Backends register themselves from their init
// functions.
package store

import (
	"context"

	"github.com/jensholdgaard/assault-pugbot/internal/event"
	"github.com/jensholdgaard/assault-pugbot/internal/maps"
	"github.com/jensholdgaard/assault-pugbot/internal/rating"
)

// Repositories groups all repository implementations returned by a store driver.
type Repositories struct {
	Ratings  rating.Repository
	Events   event.Store
	MapLists maps.Repository
	// Closer is called to release underlying resources (e.g. DB connection).
	Closer interface{ Close() error }
	// Ping checks the underlying storage health.
	Ping func(ctx context.Context) error
}

// CloserFunc adapts a func() error into an io.Closer.
type CloserFunc func() error

func (f CloserFunc) Close() error { return f() }
