package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/assault-pugbot/internal/clock"
	"github.com/jensholdgaard/assault-pugbot/internal/rating"
)

// RatingRepo implements rating.Repository with one JSONB row per mode.
type RatingRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewRatingRepo returns a new RatingRepo.
func NewRatingRepo(db *sqlx.DB, clk clock.Clock) *RatingRepo {
	return &RatingRepo{db: db, clock: clk}
}

func (r *RatingRepo) Load(ctx context.Context, mode string) (*rating.Block, error) {
	var data []byte
	err := r.db.GetContext(ctx, &data, `SELECT data FROM rating_blocks WHERE mode_key = lower($1)`, mode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rating.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading rating block: %w", err)
	}

	var b rating.Block
	if err := json.Unmarshal(data, &b); err != nil {
		// An unreadable row is treated as no data.
		return nil, rating.ErrNotFound
	}
	return &b, nil
}

func (r *RatingRepo) Save(ctx context.Context, b *rating.Block) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encoding rating block: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO rating_blocks (mode_key, mode, data, updated_at)
		 VALUES (lower($1), $1, $2, $3)
		 ON CONFLICT (mode_key) DO UPDATE
		 SET mode = EXCLUDED.mode, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		b.Mode, data, r.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving rating block: %w", err)
	}
	return nil
}
