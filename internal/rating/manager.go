package rating

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/assault-pugbot/internal/clock"
	"github.com/jensholdgaard/assault-pugbot/internal/event"
	"github.com/jensholdgaard/assault-pugbot/internal/maps"
	"github.com/jensholdgaard/assault-pugbot/internal/roster"
)

// Repository persists ranked blocks, one per mode. Load returns ErrNotFound
// when the mode has never been stored.
type Repository interface {
	Load(ctx context.Context, mode string) (*Block, error)
	Save(ctx context.Context, b *Block) error
}

// Manager handles ranked rating operations against a Repository. Every
// mutation is a load-modify-save under one lock.
type Manager struct {
	mu     sync.Mutex
	repo   Repository
	events event.Store
	clock  clock.Clock
	logger *slog.Logger
	tracer trace.Tracer
}

// NewManager returns a new rating Manager.
func NewManager(repo Repository, events event.Store, clk clock.Clock, logger *slog.Logger, tp trace.TracerProvider) *Manager {
	return &Manager{
		repo:   repo,
		events: events,
		clock:  clk,
		logger: logger,
		tracer: tp.Tracer("github.com/jensholdgaard/assault-pugbot/internal/rating"),
	}
}

// Load returns the block for mode, creating and storing the empty schema
// the first time a mode is used.
func (m *Manager) Load(ctx context.Context, mode string) (*Block, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Load", trace.WithAttributes(attribute.String("mode", mode)))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(ctx, mode)
}

func (m *Manager) load(ctx context.Context, mode string) (*Block, error) {
	b, err := m.repo.Load(ctx, mode)
	if errors.Is(err, ErrNotFound) {
		b = NewBlock(mode)
		b.LastUpdated = At(m.clock.Now())
		if err := m.repo.Save(ctx, b); err != nil {
			return nil, fmt.Errorf("creating ratings for %s: %w", mode, err)
		}
		m.logger.InfoContext(ctx, "created ranked mode ratings", slog.String("mode", mode))
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading ratings for %s: %w", mode, err)
	}
	b.Migrate()
	return b, nil
}

// Update loads the block for mode, applies fn and saves the result. Nothing
// is saved when fn fails.
func (m *Manager) Update(ctx context.Context, mode string, fn func(*Block) error) (*Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.load(ctx, mode)
	if err != nil {
		return nil, err
	}
	if err := fn(b); err != nil {
		return nil, err
	}
	b.LastUpdated = At(m.clock.Now())
	if err := m.repo.Save(ctx, b); err != nil {
		return nil, fmt.Errorf("saving ratings for %s: %w", mode, err)
	}
	return b, nil
}

func (m *Manager) appendEvents(ctx context.Context, evts ...event.Event) {
	if len(evts) == 0 {
		return
	}
	if err := m.events.Append(ctx, evts...); err != nil {
		m.logger.ErrorContext(ctx, "failed to append rating events", slog.Any("error", err))
	}
}

// SetRating sets a player's rating and registers them for mode.
func (m *Manager) SetRating(ctx context.Context, mode string, p *roster.Player, value int, externalID ID) (*Record, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.SetRating",
		trace.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("player_id", p.ID),
			attribute.Int("rating", value),
		),
	)
	defer span.End()

	var rec Record
	var before int
	_, err := m.Update(ctx, mode, func(b *Block) error {
		if r := b.Find(ByID(ID(p.ID))); r != nil {
			before = r.Value
		}
		rec = *b.SetRating(ID(p.ID), p.Name, value, externalID, m.clock.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.appendEvents(ctx, event.New(p.ID, event.RatingSet, event.RatingChangeData{
		Mode: mode, PlayerID: p.ID, Before: before, After: value, Reason: AdminSet,
	}))
	m.logger.InfoContext(ctx, "rating set",
		slog.String("mode", mode),
		slog.String("player_id", p.ID),
		slog.Int("rating", value),
	)
	return &rec, nil
}

// DeleteRating removes a player's rating and registration for mode.
func (m *Manager) DeleteRating(ctx context.Context, mode string, id ID) error {
	ctx, span := m.tracer.Start(ctx, "Manager.DeleteRating",
		trace.WithAttributes(attribute.String("mode", mode), attribute.String("player_id", string(id))),
	)
	defer span.End()

	if _, err := m.Update(ctx, mode, func(b *Block) error { return b.DeleteRating(id) }); err != nil {
		return err
	}
	m.appendEvents(ctx, event.New(string(id), event.RatingDeleted, event.RatingChangeData{Mode: mode, PlayerID: string(id)}))
	m.logger.InfoContext(ctx, "rating deleted", slog.String("mode", mode), slog.String("player_id", string(id)))
	return nil
}

// Recalculate replays a player's completed matches from seed.
func (m *Manager) Recalculate(ctx context.Context, mode string, id ID, seed int) (*Record, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Recalculate",
		trace.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("player_id", string(id)),
			attribute.Int("seed", seed),
		),
	)
	defer span.End()

	var rec Record
	var before int
	_, err := m.Update(ctx, mode, func(b *Block) error {
		if r := b.Find(ByID(id)); r != nil {
			before = r.Value
		}
		r, err := b.Recalculate(id, seed)
		if err != nil {
			return err
		}
		rec = *r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recalculating %s: %w", id, err)
	}

	m.appendEvents(ctx, event.New(string(id), event.RatingRecalculated, event.RatingChangeData{
		Mode: mode, PlayerID: string(id), Before: before, After: rec.Value, Reason: "recalculate",
	}))
	m.logger.InfoContext(ctx, "rating recalculated",
		slog.String("mode", mode),
		slog.String("player_id", string(id)),
		slog.Int("before", before),
		slog.Int("after", rec.Value),
	)
	return &rec, nil
}

// VoidMatch toggles whether match ref counts and recalculates its players.
func (m *Manager) VoidMatch(ctx context.Context, mode, ref string) (*VoidResult, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.VoidMatch",
		trace.WithAttributes(attribute.String("mode", mode), attribute.String("match_ref", ref)),
	)
	defer span.End()

	var res *VoidResult
	_, err := m.Update(ctx, mode, func(b *Block) error {
		var err error
		res, err = b.Void(ref)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.appendEvents(ctx, event.New(res.Match.Ref, event.MatchVoided, event.MatchRecordedData{
		Mode: mode, MatchRef: res.Match.Ref, Completed: res.Match.Completed,
	}))
	m.logger.InfoContext(ctx, "match void toggled",
		slog.String("mode", mode),
		slog.String("match_ref", res.Match.Ref),
		slog.Bool("completed", res.Match.Completed),
		slog.Int("recalculated", len(res.Recalculated)),
	)
	return res, nil
}

// RecordMatch stores a match and, once it is completed, awards rating
// points for it.
func (m *Manager) RecordMatch(ctx context.Context, mode string, match Match) (*Match, []Change, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.RecordMatch",
		trace.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("match_ref", match.Ref),
			attribute.Bool("completed", match.Completed),
		),
	)
	defer span.End()

	var stored Match
	var changes []Change
	_, err := m.Update(ctx, mode, func(b *Block) error {
		sm, _ := b.RecordMatch(match)
		if sm.Completed {
			c, err := b.ApplyScoring(sm.Ref)
			switch {
			case errors.Is(err, ErrScoringNotSet):
				m.logger.WarnContext(ctx, "ranked scoring not configured, no points awarded", slog.String("mode", mode))
			case err != nil:
				return err
			}
			changes = c
		}
		stored = *sm
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("recording match %s: %w", match.Ref, err)
	}

	evts := []event.Event{event.New(stored.Ref, event.MatchRecorded, event.MatchRecordedData{
		Mode: mode, MatchRef: stored.Ref, Completed: stored.Completed,
	})}
	for _, c := range changes {
		evts = append(evts, event.New(string(c.ID), event.RatingsAwarded, event.RatingChangeData{
			Mode: mode, PlayerID: string(c.ID), Before: c.Before, After: c.After, Reason: stored.Ref,
		}))
	}
	m.appendEvents(ctx, evts...)
	m.logger.InfoContext(ctx, "ranked match recorded",
		slog.String("mode", mode),
		slog.String("match_ref", stored.Ref),
		slog.Bool("completed", stored.Completed),
		slog.Int("rated_players", len(changes)),
	)
	return &stored, changes, nil
}

// SaveWeighting stores the current map desirability for mode.
func (m *Manager) SaveWeighting(ctx context.Context, mode string, ws []maps.Weighting) error {
	ctx, span := m.tracer.Start(ctx, "Manager.SaveWeighting", trace.WithAttributes(attribute.String("mode", mode)))
	defer span.End()

	_, err := m.Update(ctx, mode, func(b *Block) error {
		b.Maps.MapList = ws
		return nil
	})
	return err
}

// SimulateTeams balances an arbitrary set of rated players without
// touching stored data.
func (m *Manager) SimulateTeams(ctx context.Context, mode string, players []Rated, rng *rand.Rand) (*Teams, error) {
	b, err := m.Load(ctx, mode)
	if err != nil {
		return nil, err
	}
	return b.BalancedTeams(players, rng)
}
