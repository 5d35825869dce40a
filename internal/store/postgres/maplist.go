package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/assault-pugbot/internal/clock"
	"github.com/jensholdgaard/assault-pugbot/internal/maps"
)

// MapListRepo implements maps.Repository with one row per channel.
type MapListRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewMapListRepo returns a new MapListRepo.
func NewMapListRepo(db *sqlx.DB, clk clock.Clock) *MapListRepo {
	return &MapListRepo{db: db, clock: clk}
}

func (r *MapListRepo) Load(ctx context.Context, channel string) ([]string, error) {
	var data []byte
	err := r.db.GetContext(ctx, &data, `SELECT maps FROM map_lists WHERE channel = $1`, channel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, maps.ErrNoSavedList
	}
	if err != nil {
		return nil, fmt.Errorf("loading map list: %w", err)
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decoding map list: %w", err)
	}
	return list, nil
}

func (r *MapListRepo) Save(ctx context.Context, channel string, list []string) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encoding map list: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO map_lists (channel, maps, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (channel) DO UPDATE
		 SET maps = EXCLUDED.maps, updated_at = EXCLUDED.updated_at`,
		channel, data, r.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving map list: %w", err)
	}
	return nil
}
