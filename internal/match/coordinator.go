// Package match runs the pug in each enabled channel: sign-up, captains,
// the team and map drafts, provisioning the match on a game server and
// resetting once it has been played.
package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/jensholdgaard/assault-pugbot/internal/clock"
	"github.com/jensholdgaard/assault-pugbot/internal/config"
	"github.com/jensholdgaard/assault-pugbot/internal/draft"
	"github.com/jensholdgaard/assault-pugbot/internal/event"
	"github.com/jensholdgaard/assault-pugbot/internal/gameserver"
	"github.com/jensholdgaard/assault-pugbot/internal/maps"
	"github.com/jensholdgaard/assault-pugbot/internal/rating"
	"github.com/jensholdgaard/assault-pugbot/internal/roster"
)

var (
	ErrInProgress      = errors.New("a pug is in progress")
	ErrNotSigned       = errors.New("you are not signed for this pug")
	ErrAlreadyQueued   = errors.New("already queued for the next pug")
	ErrIneligible      = errors.New("not eligible for ranked play")
	ErrRankedOnly      = errors.New("not available in ranked mode")
	ErrPicking         = errors.New("pug is already in picking mode, reset to change it")
	ErrUnknownMode     = errors.New("mode not recognised")
	ErrPlayerLimit     = errors.New("invalid player limit")
	ErrFixedMaps       = errors.New("map limit is fixed in this ranked mode")
	ErrNotPicking      = errors.New("not picking right now")
	ErrCooldown        = errors.New("please wait before doing that again")
	ErrTooFewToPoke    = errors.New("not enough players signed to poke")
	ErrRetryNotAllowed = errors.New("retry can only be used after a failed setup")
	ErrNoMatch         = errors.New("there is no game in progress")
	ErrNotInMatch      = errors.New("only players in the pug or admins can reset it")
	ErrSetupFailed     = errors.New("match setup failed")
)

// IneligibleError lists the players refused from ranked play.
type IneligibleError struct {
	Players []*roster.Player
}

func (e *IneligibleError) Error() string {
	names := make([]string, len(e.Players))
	for i, p := range e.Players {
		names[i] = p.Name
	}
	return fmt.Sprintf("not eligible for ranked play: %s", strings.Join(names, ", "))
}

// Is makes errors.Is(err, ErrIneligible) match.
func (e *IneligibleError) Is(target error) bool { return target == ErrIneligible }

// GameServer is the match setup API.
type GameServer interface {
	Check(ctx context.Context, ref string) (*gameserver.Info, error)
	Status(ctx context.Context, ref string) (*gameserver.Info, error)
	List(ctx context.Context) ([]gameserver.Info, error)
	Setup(ctx context.Context, req gameserver.SetupRequest) (*gameserver.Info, error)
	EndGame(ctx context.Context, ref string) (*gameserver.Info, error)
	Control(ctx context.Context, ref string, start bool) (*gameserver.Info, error)
}

// Ratings is the ranked data the pug reads and records to.
type Ratings interface {
	Load(ctx context.Context, mode string) (*rating.Block, error)
	RecordMatch(ctx context.Context, mode string, m rating.Match) (*rating.Match, []rating.Change, error)
	SaveWeighting(ctx context.Context, mode string, ws []maps.Weighting) error
}

// Notifier delivers messages to chat.
type Notifier interface {
	Announce(ctx context.Context, channelID, msg string) error
	DirectMessage(ctx context.Context, userID, msg string) error
}

// Deps are the collaborators shared by every coordinator.
type Deps struct {
	API            GameServer
	Ratings        Ratings
	Events         event.Store
	Notifier       Notifier
	Clock          clock.Clock
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	// MapLists keeps admin edits of the server map list. Edits live in
	// memory only when nil.
	MapLists maps.Repository
	// Rand seeds the drafts. A time-seeded source is used when nil.
	Rand *rand.Rand
}

// liveMatch is a match provisioned on a game server.
type liveMatch struct {
	// code is shown to players and follows the server's match code. ref
	// keys the stored ranked match and never changes.
	code      string
	ref       string
	server    gameserver.Server
	url       string
	passwords gameserver.Passwords
	started   time.Time
	redScore  int
	blueScore int
}

// lastPug is the summary kept for the last command.
type lastPug struct {
	desc      string
	mode      string
	ranked    bool
	red, blue []*roster.Player
	maps      []string
	redPower  int
	bluePower int
	started   time.Time
	score     string
}

// Coordinator is the pug state machine for one channel. All methods are
// serialised by its lock.
type Coordinator struct {
	mu sync.Mutex

	channel string
	cfg     config.PugConfig
	mode    Mode
	players *roster.Pool
	draft   *draft.Draft
	maps    *maps.Pool
	servers *gameserver.Registry

	api      GameServer
	ratings  Ratings
	events   event.Store
	mapLists maps.Repository
	notify   Notifier
	clock    clock.Clock
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *metrics
	rng      *rand.Rand

	ranked              *rating.Block
	redPower, bluePower int

	// pugLocked is set while a match is live on the server. pugTempLocked
	// is set while a setup or reset is running.
	pugLocked     bool
	pugTempLocked bool

	live          *liveMatch
	last          lastPug
	resetRequests [2]bool
	cooldown      *rate.Limiter
}

// NewCoordinator returns a coordinator for channel in the default stdAS
// mode.
func NewCoordinator(channel string, cfg config.PugConfig, servers *gameserver.Registry, deps Deps) *Coordinator {
	rng := deps.Rand
	if rng == nil {
		seed := uint64(deps.Clock.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>17))
	}
	players := roster.NewPool(cfg.Players)
	c := &Coordinator{
		channel:  channel,
		cfg:      cfg,
		mode:     Modes[0],
		players:  players,
		draft:    draft.New(players, cfg.PickModeTeams, rng),
		maps:     maps.NewPool(cfg.MapList, cfg.Maps, cfg.PickModeMaps, rng),
		servers:  servers,
		api:      deps.API,
		ratings:  deps.Ratings,
		events:   deps.Events,
		mapLists: deps.MapLists,
		notify:   deps.Notifier,
		clock:    deps.Clock,
		logger:   deps.Logger.With(slog.String("channel", channel)),
		tracer:   deps.TracerProvider.Tracer("github.com/jensholdgaard/assault-pugbot/internal/match"),
		metrics:  newMetrics(deps.MeterProvider),
		rng:      rng,
		cooldown: rate.NewLimiter(rate.Every(cfg.Cooldown), 1),
	}
	return c
}

// Channel returns the channel the pug runs in.
func (c *Coordinator) Channel() string { return c.channel }

// Locked reports whether a match is live on the server.
func (c *Coordinator) Locked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pugLocked
}

func (c *Coordinator) playersReady() bool  { return c.players.Full() }
func (c *Coordinator) captainsReady() bool { return c.draft.CaptainsFull() }
func (c *Coordinator) teamsReady() bool    { return c.draft.CaptainsFull() && c.draft.TeamsFull() }
func (c *Coordinator) mapsReady() bool     { return c.maps.Full() }

func (c *Coordinator) matchReady() bool {
	return c.playersReady() && c.teamsReady() && c.mapsReady()
}

// mapCaptain returns the captain who picks the next map, or nil.
func (c *Coordinator) mapCaptain() *roster.Player {
	if !c.captainsReady() || c.maps.Full() {
		return nil
	}
	return c.draft.Captain(c.maps.CurrentSide())
}

func (c *Coordinator) announce(ctx context.Context, msg string) {
	if err := c.notify.Announce(ctx, c.channel, msg); err != nil {
		c.logger.WarnContext(ctx, "failed to announce", slog.Any("error", err))
	}
}

func (c *Coordinator) appendEvents(ctx context.Context, evts ...event.Event) {
	if err := c.events.Append(ctx, evts...); err != nil {
		c.logger.ErrorContext(ctx, "failed to append match events", slog.Any("error", err))
	}
}

func ids(ps []*roster.Player) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func ratingIDs(ps []*roster.Player) []rating.ID {
	out := make([]rating.ID, 0, len(ps))
	for _, p := range ps {
		out = append(out, rating.ID(p.ID))
	}
	return out
}

// Snapshot is a read-only view of a pug.
type Snapshot struct {
	Channel   string   `json:"channel"`
	Mode      string   `json:"mode"`
	Ranked    bool     `json:"ranked"`
	Signed    int      `json:"signed"`
	Capacity  int      `json:"capacity"`
	Queued    int      `json:"queued"`
	Red       []string `json:"red,omitempty"`
	Blue      []string `json:"blue,omitempty"`
	Maps      []string `json:"maps,omitempty"`
	Server    string   `json:"server"`
	Locked    bool     `json:"locked"`
	MatchCode string   `json:"match_code,omitempty"`
}

// Snapshot returns the current state of the pug.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Channel:  c.channel,
		Mode:     c.mode.Name,
		Ranked:   c.mode.Ranked,
		Signed:   c.players.Len(),
		Capacity: c.players.Capacity(),
		Queued:   len(c.players.Queue()),
		Red:      names(c.draft.Team(draft.Red)),
		Blue:     names(c.draft.Team(draft.Blue)),
		Maps:     c.maps.Chosen(),
		Server:   c.servers.Current().Name,
		Locked:   c.pugLocked,
	}
	if c.live != nil {
		s.MatchCode = c.live.code
	}
	return s
}

func names(ps []*roster.Player) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name)
	}
	return out
}
