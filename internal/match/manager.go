package match

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/assault-pugbot/internal/config"
	"github.com/jensholdgaard/assault-pugbot/internal/gameserver"
)

var (
	ErrNotEnabled     = errors.New("pug commands are not enabled in this channel")
	ErrAlreadyEnabled = errors.New("pug commands are already enabled in this channel")
)

// Manager owns the coordinator of every channel pugs run in.
type Manager struct {
	mu     sync.RWMutex
	pugs   map[string]*Coordinator
	cfg    config.PugConfig
	gs     config.GameServerConfig
	deps   Deps
	logger *slog.Logger
	tracer trace.Tracer
}

// NewManager creates a Manager. Channels are enabled with Enable.
func NewManager(cfg config.PugConfig, gs config.GameServerConfig, deps Deps) *Manager {
	return &Manager{
		pugs:   make(map[string]*Coordinator),
		cfg:    cfg,
		gs:     gs,
		deps:   deps,
		logger: deps.Logger,
		tracer: deps.TracerProvider.Tracer("github.com/jensholdgaard/assault-pugbot/internal/match"),
	}
}

// Enable starts a pug in channel using the configured defaults.
func (m *Manager) Enable(ctx context.Context, channel string) (*Coordinator, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Enable", trace.WithAttributes(attribute.String("channel", channel)))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pugs[channel]; ok {
		return nil, ErrAlreadyEnabled
	}
	c := NewCoordinator(channel, m.cfg, gameserver.NewRegistry(m.gs), m.deps)
	if err := c.RestoreMaps(ctx); err != nil {
		m.logger.WarnContext(ctx, "saved map list not restored, using configured list",
			slog.String("channel", channel),
			slog.Any("error", err),
		)
	}
	if mode, ok := LookupMode(m.cfg.Mode); ok && mode.Name != c.mode.Name {
		if _, err := c.SetMode(ctx, mode.Name); err != nil {
			m.logger.WarnContext(ctx, "configured pug mode rejected, using default",
				slog.String("channel", channel),
				slog.String("mode", mode.Name),
				slog.Any("error", err),
			)
		}
	}
	m.pugs[channel] = c
	m.logger.InfoContext(ctx, "pug enabled", slog.String("channel", channel), slog.String("mode", c.mode.Name))
	return c, nil
}

// Disable stops handling pug commands in channel. A running match is left
// on the server.
func (m *Manager) Disable(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pugs[channel]; !ok {
		return ErrNotEnabled
	}
	delete(m.pugs, channel)
	m.logger.InfoContext(ctx, "pug disabled", slog.String("channel", channel))
	return nil
}

// Get returns the coordinator for channel.
func (m *Manager) Get(channel string) (*Coordinator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.pugs[channel]
	if !ok {
		return nil, ErrNotEnabled
	}
	return c, nil
}

// Channels returns the enabled channels in sorted order.
func (m *Manager) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.pugs))
	for ch := range m.pugs {
		out = append(out, ch)
	}
	slices.Sort(out)
	return out
}

func (m *Manager) coordinators() []*Coordinator {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Coordinator, 0, len(m.pugs))
	for _, c := range m.pugs {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *Coordinator) int { return strings.Compare(a.channel, b.channel) })
	return out
}

// Tick polls every live match and applies the weekly server rotation.
func (m *Manager) Tick(ctx context.Context) {
	for _, c := range m.coordinators() {
		c.Poll(ctx)
		c.CheckRotation(ctx)
	}
}

// Run ticks at the configured poll interval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	interval := m.cfg.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// ReloadRanked re-reads the ranked data of every pug playing mode.
func (m *Manager) ReloadRanked(ctx context.Context, mode string) {
	for _, c := range m.coordinators() {
		if !strings.EqualFold(c.Snapshot().Mode, mode) {
			continue
		}
		if err := c.ReloadRanked(ctx); err != nil {
			m.logger.WarnContext(ctx, "failed to reload ranked data",
				slog.String("channel", c.Channel()),
				slog.String("mode", mode),
				slog.Any("error", err),
			)
		}
	}
}

// InProgress reports whether any pug playing mode has a live match.
func (m *Manager) InProgress(mode string) bool {
	for _, c := range m.coordinators() {
		if c.Locked() && strings.EqualFold(c.Snapshot().Mode, mode) {
			return true
		}
	}
	return false
}

// Snapshots returns the state of every pug.
func (m *Manager) Snapshots() []Snapshot {
	cs := m.coordinators()
	out := make([]Snapshot, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Snapshot())
	}
	return out
}
