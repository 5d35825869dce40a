package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/assault-pugbot/internal/clock"
	"github.com/jensholdgaard/assault-pugbot/internal/config"
	"github.com/jensholdgaard/assault-pugbot/internal/gameserver"
	"github.com/jensholdgaard/assault-pugbot/internal/maps"
	"github.com/jensholdgaard/assault-pugbot/internal/match"
	"github.com/jensholdgaard/assault-pugbot/internal/rating"
	"github.com/jensholdgaard/assault-pugbot/internal/roster"
	"github.com/jensholdgaard/assault-pugbot/internal/store/jsonfile"
)

// stubServer implements match.GameServer. Check reports the match finished
// once finished is set.
type stubServer struct {
	mu       sync.Mutex
	finished bool
}

func (s *stubServer) Check(_ context.Context, ref string) (*gameserver.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return &gameserver.Info{
			ServerRef:   ref,
			SetupResult: gameserver.ResultMatchFinished,
			Status:      gameserver.ServerStatus{Summary: "MATCH OVER", ScoreRed: 3, ScoreBlue: 1},
		}, nil
	}
	return &gameserver.Info{ServerRef: ref, MatchStarted: true, SetupResult: gameserver.ResultMatchInProgress}, nil
}

func (s *stubServer) Status(ctx context.Context, ref string) (*gameserver.Info, error) {
	return s.Check(ctx, ref)
}

func (s *stubServer) List(context.Context) ([]gameserver.Info, error) { return nil, nil }

func (s *stubServer) Setup(_ context.Context, req gameserver.SetupRequest) (*gameserver.Info, error) {
	return &gameserver.Info{
		ServerRef:   req.Server,
		ServerAddr:  "pug1.example.net",
		ServerPort:  7777,
		SetupResult: gameserver.ResultCompleted,
		SetupConfig: &gameserver.SetupConfig{MatchCode: "M1", RedPass: req.RedPass, BluePass: req.BluePass, SpecPass: req.SpecPass},
	}, nil
}

func (s *stubServer) EndGame(_ context.Context, ref string) (*gameserver.Info, error) {
	return &gameserver.Info{ServerRef: ref, SetupResult: gameserver.ResultCompleted}, nil
}

func (s *stubServer) Control(_ context.Context, ref string, _ bool) (*gameserver.Info, error) {
	return &gameserver.Info{ServerRef: ref, SetupResult: gameserver.ResultCompleted}, nil
}

type quietNotifier struct{}

func (quietNotifier) Announce(context.Context, string, string) error { return nil }
func (quietNotifier) DirectMessage(context.Context, string, string) error { return nil }

func stringOption(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

// liveRankedPug starts a four player rASplus match with code M1 in
// chan-1.
func liveRankedPug(t *testing.T) (*Handlers, *match.Manager, *stubServer) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tp := noop.NewTracerProvider()
	clk := clock.NewMock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	dir := t.TempDir()

	ratings := rating.NewManager(
		jsonfile.NewRatingRepo(filepath.Join(dir, "ratings.json"), clk),
		jsonfile.NewEventStore(filepath.Join(dir, "ratings.events.jsonl"), clk),
		clk, logger, tp,
	)
	players := make([]*roster.Player, 4)
	for i := range players {
		players[i] = &roster.Player{ID: fmt.Sprintf("u%d", i+1), Name: fmt.Sprintf("player%d", i+1)}
		if _, err := ratings.SetRating(ctx, "rASplus", players[i], 500+10*i, ""); err != nil {
			t.Fatalf("SetRating() error = %v", err)
		}
	}
	_, err := ratings.Update(ctx, "rASplus", func(b *rating.Block) error {
		b.Maps.MapList = []maps.Weighting{
			{Map: "AS-Bridge", Order: 1, Weight: 1},
			{Map: "AS-Frigate", Order: 2, Weight: 1},
		}
		b.Maps.FixedPickLimit = 2
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	api := &stubServer{}
	pugs := match.NewManager(config.PugConfig{
		Mode:          "rASplus",
		Players:       4,
		Maps:          2,
		MapList:       []string{"AS-Bridge", "AS-Frigate", "AS-Rook"},
		PollInterval:  time.Minute,
		Cooldown:      time.Minute,
		SetupAttempts: 1,
	}, config.GameServerConfig{
		Default: "pugs1",
		List:    []config.ServerEntry{{Ref: "pugs1", Name: "Pug 1", URL: "unreal://pug1.example.net"}},
	}, match.Deps{
		API:            api,
		Ratings:        ratings,
		Events:         jsonfile.NewEventStore(filepath.Join(dir, "pugs.events.jsonl"), clk),
		Notifier:       quietNotifier{},
		Clock:          clk,
		Logger:         logger,
		TracerProvider: tp,
		MeterProvider:  metricnoop.NewMeterProvider(),
		Rand:           rand.New(rand.NewPCG(3, 4)),
	})
	pug, err := pugs.Enable(ctx, "chan-1")
	if err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	for _, p := range players {
		if _, err := pug.Join(ctx, p, ""); err != nil {
			t.Fatalf("Join(%s) error = %v", p.Name, err)
		}
	}
	if s := pug.Snapshot(); !s.Ranked || !s.Locked {
		t.Fatalf("Snapshot() = %+v, want a live ranked match", s)
	}

	return NewHandlers(config.DiscordConfig{}, pugs, ratings, 0, logger, tp), pugs, api
}

func TestRkVoidRefusedWhileMatchLive(t *testing.T) {
	ctx := context.Background()
	h, pugs, api := liveRankedPug(t)
	r := &request{
		channel: "chan-1",
		admin:   true,
		opts:    map[string]*discordgo.ApplicationCommandInteractionDataOption{"match": stringOption("match", "M1")},
	}

	_, err := h.rkVoid(ctx, r)
	if !errors.Is(err, match.ErrInProgress) {
		t.Fatalf("rkVoid() while live error = %v, want ErrInProgress", err)
	}
	b, err := h.ratings.Load(ctx, "rASplus")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if m := b.FindMatch("M1"); m == nil || m.Completed {
		t.Fatalf("stored match = %+v, want M1 left uncompleted", m)
	}

	api.mu.Lock()
	api.finished = true
	api.mu.Unlock()
	pugs.Tick(ctx)

	reply, err := h.rkVoid(ctx, r)
	if err != nil {
		t.Fatalf("rkVoid() after the match error = %v", err)
	}
	if !strings.HasPrefix(reply, "Match **M1** voided.") {
		t.Errorf("rkVoid() = %q, want M1 voided", reply)
	}
}
