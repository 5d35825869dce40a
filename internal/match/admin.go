package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jensholdgaard/assault-pugbot/internal/gameserver"
	"github.com/jensholdgaard/assault-pugbot/internal/maps"
)

// RestoreMaps replaces the server map list with the one saved for the
// channel. The configured list stays when nothing has been saved.
func (c *Coordinator) RestoreMaps(ctx context.Context) error {
	if c.mapLists == nil {
		return nil
	}
	ctx, span := c.start(ctx, "RestoreMaps")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	list, err := c.mapLists.Load(ctx, c.channel)
	if errors.Is(err, maps.ErrNoSavedList) {
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("loading map list: %w", err)
	}
	if err := c.maps.SetAvailable(list); err != nil {
		return fmt.Errorf("restoring map list: %w", err)
	}
	c.logger.InfoContext(ctx, "map list restored", slog.Int("maps", len(list)))
	return nil
}

// editMaps applies edit to the server map list and saves the result. The
// edit is undone when the list cannot be saved. c.mu must be held.
func (c *Coordinator) editMaps(ctx context.Context, name string, edit func() error) error {
	if c.pugLocked {
		return ErrInProgress
	}
	prev := c.maps.Available()
	if err := edit(); err != nil {
		return err
	}
	if c.mapLists == nil {
		return nil
	}

	ctx, span := c.start(ctx, name)
	defer span.End()
	if err := c.mapLists.Save(ctx, c.channel, c.maps.Available()); err != nil {
		span.RecordError(err)
		_ = c.maps.SetAvailable(prev)
		return fmt.Errorf("saving map list: %w", err)
	}
	return nil
}

// AddMap appends m to the server map list.
func (c *Coordinator) AddMap(ctx context.Context, m string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.editMaps(ctx, "AddMap", func() error {
		if err := c.maps.AddAvailable(m); err != nil {
			return fmt.Errorf("adding %s: %w", m, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	c.logger.InfoContext(ctx, "map added", slog.String("map", m))
	return fmt.Sprintf("**%s** was added to the server map list.\n%s", m, formatMaps(c.maps.Available())), nil
}

// InsertMap puts m at the 1-based position in the server map list.
func (c *Coordinator) InsertMap(ctx context.Context, number int, m string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.editMaps(ctx, "InsertMap", func() error {
		if err := c.maps.InsertAvailable(number-1, m); err != nil {
			return fmt.Errorf("inserting %s at %d: %w", m, number, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	c.logger.InfoContext(ctx, "map inserted", slog.String("map", m), slog.Int("position", number))
	return fmt.Sprintf("**%s** was inserted at position %d.\n%s", m, number, formatMaps(c.maps.Available())), nil
}

// ReplaceMap swaps the map at the 1-based position for m.
func (c *Coordinator) ReplaceMap(ctx context.Context, number int, m string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var old string
	err := c.editMaps(ctx, "ReplaceMap", func() error {
		var err error
		if old, err = c.maps.SubstituteAvailable(number-1, m); err != nil {
			return fmt.Errorf("replacing map %d with %s: %w", number, m, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	c.logger.InfoContext(ctx, "map replaced", slog.String("old", old), slog.String("map", m))
	return fmt.Sprintf("**%s** was replaced by **%s**.\n%s", old, m, formatMaps(c.maps.Available())), nil
}

// RemoveMap takes m off the server map list.
func (c *Coordinator) RemoveMap(ctx context.Context, m string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.editMaps(ctx, "RemoveMap", func() error {
		if err := c.maps.RemoveAvailable(m); err != nil {
			return fmt.Errorf("removing %s: %w", m, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	c.logger.InfoContext(ctx, "map removed", slog.String("map", m))
	return fmt.Sprintf("**%s** was removed from the server map list.\n%s", m, formatMaps(c.maps.Available())), nil
}

// ListServers describes the known game servers.
func (c *Coordinator) ListServers() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.servers.Current().Ref
	lines := []string{"Available servers:"}
	for i, s := range c.servers.Servers() {
		line := fmt.Sprintf("**%d)** %s - %s", i+1, s.Name, s.URL)
		if s.LastStatus != "" {
			line += " (" + s.LastStatus + ")"
		}
		if s.OnDemand {
			line += " [on demand]"
		}
		if s.Ref == cur {
			line += " " + plasep + " **selected**"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// Server names the server in use.
func (c *Coordinator) Server() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.servers.Current()
	return fmt.Sprintf("Pug server: **%s** (%s)", s.Name, s.URL)
}

// CurrentServer returns the server in use.
func (c *Coordinator) CurrentServer() gameserver.Server {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.servers.Current()
}

// ServerStatus reports the live state of the server in use.
func (c *Coordinator) ServerStatus(ctx context.Context) (string, error) {
	c.mu.Lock()
	srv := c.servers.Current()
	c.mu.Unlock()

	info, err := c.api.Status(ctx, srv.Ref)
	if err != nil {
		return "", fmt.Errorf("cannot contact game server: %w", err)
	}
	return formatStatus(info), nil
}

// UseServer selects the server with the 1-based number. A previously used
// on-demand server is stopped.
func (c *Coordinator) UseServer(ctx context.Context, number int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := c.start(ctx, "UseServer", attribute.Int("number", number))
	defer span.End()

	if c.pugLocked {
		return "", ErrInProgress
	}
	return c.useServer(ctx, number-1)
}

func (c *Coordinator) useServer(ctx context.Context, index int) (string, error) {
	prev, changed, err := c.servers.Use(index)
	if err != nil {
		return "", err
	}
	cur := c.servers.Current()
	if changed {
		if prev.OnDemand {
			if _, err := c.api.Control(ctx, prev.Ref, false); err != nil {
				c.logger.WarnContext(ctx, "failed to stop on-demand server", slog.String("server", prev.Ref), slog.Any("error", err))
			}
		}
		c.logger.InfoContext(ctx, "pug server changed", slog.String("from", prev.Ref), slog.String("to", cur.Ref))
	}
	if c.captainsReady() {
		c.checkOnDemand(ctx)
	}
	return fmt.Sprintf("Server was set to **%s** (%s)", cur.Name, cur.URL), nil
}

// ControlServer starts or stops the on-demand server with the 1-based
// number.
func (c *Coordinator) ControlServer(ctx context.Context, number int, start bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	servers := c.servers.Servers()
	if number < 1 || number > len(servers) {
		return "", fmt.Errorf("no server #%d", number)
	}
	srv := servers[number-1]
	if !start && c.pugLocked && srv.Ref == c.servers.Current().Ref {
		return "", ErrInProgress
	}
	info, err := c.api.Control(ctx, srv.Ref, start)
	if err != nil {
		return "", fmt.Errorf("controlling %s: %w", srv.Name, err)
	}
	verb := "Stopping"
	if start {
		verb = "Starting"
	}
	return fmt.Sprintf("%s %s: %s", verb, srv.Name, info.SetupResult), nil
}

// RefreshServers replaces the server list with the one reported by the
// API. The local list is kept when the API has no working default server.
func (c *Coordinator) RefreshServers(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := c.start(ctx, "RefreshServers")
	defer span.End()

	list, err := c.api.List(ctx)
	if err != nil {
		return "", fmt.Errorf("cannot contact game server API: %w", err)
	}
	if !c.servers.Refresh(list) {
		return "Server list unchanged: the API reported no working default server.", nil
	}
	c.logger.InfoContext(ctx, "server list refreshed", slog.Int("servers", len(c.servers.Servers())))
	return fmt.Sprintf("Server list refreshed: %d servers available.", len(c.servers.Servers())), nil
}

// CheckRotation switches to the server scheduled for this week when no
// match is running and announces the change. It reports whether the server
// changed.
func (c *Coordinator) CheckRotation(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, ok := c.servers.RotationIndex(c.clock.Now())
	if !ok || c.pugLocked || c.captainsReady() {
		return false
	}
	servers := c.servers.Servers()
	if idx < 0 || idx >= len(servers) || servers[idx].Ref == c.servers.Current().Ref {
		return false
	}
	msg, err := c.useServer(ctx, idx)
	if err != nil {
		c.logger.WarnContext(ctx, "server rotation failed", slog.Any("error", err))
		return false
	}
	c.announce(ctx, "Weekly server rotation: "+msg)
	return true
}

// Rotation describes the weekly server rotation.
func (c *Coordinator) Rotation() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	rot := c.servers.Rotation()
	if len(rot) == 0 {
		return "No server rotation is configured."
	}
	servers := c.servers.Servers()
	idx, _ := c.servers.RotationIndex(c.clock.Now())
	parts := make([]string, 0, len(rot))
	for _, n := range rot {
		if n-1 < len(servers) {
			parts = append(parts, servers[n-1].Name)
		}
	}
	current := ""
	if idx >= 0 && idx < len(servers) {
		current = servers[idx].Name
	}
	return fmt.Sprintf("Server rotation: %s\nThis week: **%s**", strings.Join(parts, " "+plasep+" "), current)
}

// AdjustMap changes the ranked desirability of m, or of every map for
// maps.ResetAll, and stores the result.
func (c *Coordinator) AdjustMap(ctx context.Context, adj maps.Adjustment, m string, factor float64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := c.start(ctx, "AdjustMap", attribute.String("map", m), attribute.Float64("factor", factor))
	defer span.End()

	if !c.mode.Ranked {
		return "", maps.ErrNotRanked
	}
	if !c.maps.AdjustDesirability(adj, m, factor) {
		return "", fmt.Errorf("%w: %s", maps.ErrMapNotFound, m)
	}
	if err := c.ratings.SaveWeighting(ctx, c.mode.Name, c.maps.Weighting()); err != nil {
		return "", fmt.Errorf("saving map weighting: %w", err)
	}
	return formatWeighting(c.maps.Weighting()), nil
}

// MaxSimulations bounds the runs of one SimulateMaps call.
const MaxSimulations = 100

// SimulateMaps draws runs ranked map lists in a row without keeping them.
// runs is clamped to [1, MaxSimulations].
func (c *Coordinator) SimulateMaps(ctx context.Context, runs int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.mode.Ranked {
		return "", maps.ErrNotRanked
	}
	out, err := c.maps.Simulate(min(max(1, runs), MaxSimulations))
	if err != nil {
		return "", err
	}
	lines := []string{fmt.Sprintf("Simulated %d ranked map selections for %s:", len(out), c.mode.Name)}
	for i, run := range out {
		lines = append(lines, fmt.Sprintf("**Run %d:** %s", i+1, strings.Join(run, ", ")))
	}
	return strings.Join(lines, "\n"), nil
}

func formatWeighting(ws []maps.Weighting) string {
	lines := []string{"Ranked map desirability:"}
	for _, w := range ws {
		d := w.Desirability
		if d == 0 {
			d = w.Default()
		}
		lines = append(lines, fmt.Sprintf("%s (slot %d): %.0f / %.0f", w.Map, w.Order, d, w.Default()))
	}
	return strings.Join(lines, "\n")
}
