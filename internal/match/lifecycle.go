package match

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/assault-pugbot/internal/draft"
	"github.com/jensholdgaard/assault-pugbot/internal/event"
	"github.com/jensholdgaard/assault-pugbot/internal/gameserver"
	"github.com/jensholdgaard/assault-pugbot/internal/maps"
	"github.com/jensholdgaard/assault-pugbot/internal/rating"
)

// maxSteps bounds how many stages evaluate moves through in one call. The
// longest chain is ranked: teams, maps, setup.
const maxSteps = 8

const tempCodeLayout = "20060102150405"

// evaluate moves the pug through every stage its state allows, announcing
// each one. It runs after anything that changes the roster, teams or maps.
func (c *Coordinator) evaluate(ctx context.Context) {
	for range maxSteps {
		if !c.advance(ctx) {
			return
		}
	}
}

// advance handles the furthest stage reached and reports whether another
// stage may follow without user input.
func (c *Coordinator) advance(ctx context.Context) bool {
	switch {
	case !c.playersReady():
		return false

	case c.matchReady():
		if c.pugLocked || c.pugTempLocked {
			return false
		}
		if c.mode.Ranked {
			c.announce(ctx, "Ranked mode map selection complete. Setting up match now.\n"+formatMaps(c.maps.Chosen()))
		}
		if err := c.setup(ctx); err != nil {
			c.announce(ctx, "**PUG Setup Failed**. Use **/retry** to attempt setting up again with current configuration, or **/reset** to start again from the beginning.")
		}
		return false

	case c.teamsReady():
		if !c.mode.Ranked {
			c.announce(ctx, c.formatPickNextMap(true))
			return false
		}
		if err := c.autoPickMaps(ctx); err != nil {
			c.logger.ErrorContext(ctx, "ranked map selection failed", slog.Any("error", err))
			c.announce(ctx, "Ranked map selection failed: "+err.Error())
			return false
		}
		return true

	case c.captainsReady():
		red, blue := c.draft.Team(draft.Red), c.draft.Team(draft.Blue)
		if len(red) == 1 && len(blue) == 1 {
			c.announce(ctx, red[0].Mention()+" is captain for the **Red Team**")
			c.announce(ctx, blue[0].Mention()+" is captain for the **Blue Team**")
		}
		c.announce(ctx, strings.Join([]string{
			c.formatPlayers(c.players.Slots(), true, false),
			c.formatTeams(false),
			c.formatPickNextPlayer(true),
		}, "\n"))
		c.checkOnDemand(ctx)
		return false

	case c.draft.NumCaptains() == 1:
		c.announce(ctx, "Waiting for 2nd captain. Type **/captain** to become a captain. To choose a random captain type **/randomcaptains**")
		return false
	}

	// Roster full, nobody drafted yet.
	if c.mode.Ranked {
		if err := c.rankTeams(ctx); err != nil {
			c.logger.ErrorContext(ctx, "ranked team balancing failed", slog.Any("error", err))
			c.announce(ctx, "Ranked team balancing failed: "+err.Error())
			return false
		}
		c.announce(ctx, strings.Join([]string{"Ranked teams have been established:", c.formatTeams(false), c.formatPower()}, "\n"))
		c.checkOnDemand(ctx)
		return true
	}
	if c.players.Capacity() == 2 {
		for _, p := range c.players.Players() {
			if _, err := c.draft.SetCaptain(p); err != nil {
				c.logger.ErrorContext(ctx, "failed to assign 1v1 captain", slog.Any("error", err))
				return false
			}
		}
		c.announce(ctx, "Teams have been automatically filled.\n"+c.formatTeams(true))
		c.announce(ctx, c.formatPickNextMap(false))
		c.checkOnDemand(ctx)
		return false
	}
	c.announce(ctx, strings.Join([]string{
		fmt.Sprintf("**%s** has filled.", c.desc()),
		c.formatPug(true),
		"Waiting for captains. Type **/captain** to become a captain. To choose random captains type **/randomcaptains**",
	}, "\n"))
	return false
}

// checkOnDemand starts the current server when it is managed on demand
// and not running.
func (c *Coordinator) checkOnDemand(ctx context.Context) {
	srv := c.servers.Current()
	if !srv.OnDemand {
		return
	}
	if info, err := c.api.Check(ctx, srv.Ref); err == nil && info.Status.Online() {
		return
	}
	c.announce(ctx, fmt.Sprintf("Starting on-demand server: %s...", srv.Name))
	if _, err := c.api.Control(ctx, srv.Ref, true); err != nil {
		c.logger.ErrorContext(ctx, "failed to start on-demand server",
			slog.String("server", srv.Ref),
			slog.Any("error", err),
		)
		c.announce(ctx, fmt.Sprintf("Failed to start on-demand server: %s. Select another server before completing map selection.", srv.Name))
	}
}

// rankTeams splits the roster into rating-balanced teams.
func (c *Coordinator) rankTeams(ctx context.Context) error {
	if c.ranked == nil {
		if err := c.loadRanked(ctx); err != nil {
			return err
		}
	}
	rated, missing := c.ranked.Rate(c.players.Players())
	if len(missing) > 0 {
		return &IneligibleError{Players: missing}
	}
	teams, err := c.ranked.BalancedTeams(rated, c.rng)
	if err != nil {
		return err
	}
	c.draft.Assign(teams.RedPlayers(), teams.BluePlayers())
	c.redPower, c.bluePower = teams.RedPower, teams.BluePower
	c.logger.InfoContext(ctx, "ranked teams established",
		slog.Int("red_power", c.redPower),
		slog.Int("blue_power", c.bluePower),
	)
	return nil
}

// autoPickMaps fills the map list from the ranked weighting and stores the
// spent desirability.
func (c *Coordinator) autoPickMaps(ctx context.Context) error {
	picks, err := c.maps.AutoPick()
	if err != nil {
		return err
	}
	for _, p := range picks {
		c.logger.DebugContext(ctx, "ranked map picked",
			slog.String("map", p.Map),
			slog.Int("slot", p.Slot),
			slog.Int("tickets", p.Tickets),
			slog.Int("total", p.Total),
		)
	}
	if err := c.ratings.SaveWeighting(ctx, c.mode.Name, c.maps.Weighting()); err != nil {
		c.logger.ErrorContext(ctx, "failed to save map weighting", slog.Any("error", err))
	}
	return nil
}

// loadRanked reads the ranked block for the current mode and applies its
// map configuration.
func (c *Coordinator) loadRanked(ctx context.Context) error {
	b, err := c.ratings.Load(ctx, c.mode.Name)
	if err != nil {
		return fmt.Errorf("loading ranked data for %s: %w", c.mode.Name, err)
	}
	c.ranked = b
	c.maps.ConfigureRanked(b.Maps.MapList, b.Maps.RandomOrder, b.Maps.FixedPickLimit)
	return nil
}

func (c *Coordinator) clearRanked() {
	c.ranked = nil
	c.maps.ClearRanked()
	c.redPower, c.bluePower = 0, 0
}

// setup provisions the match on the current server, retrying on failure.
// The pug is left as it is when every attempt fails so it can be retried.
func (c *Coordinator) setup(ctx context.Context) error {
	srv := c.servers.Current()
	ctx, span := c.tracer.Start(ctx, "Coordinator.setup",
		trace.WithAttributes(
			attribute.String("channel", c.channel),
			attribute.String("mode", c.mode.Name),
			attribute.String("server", srv.Ref),
		),
	)
	defer span.End()

	c.pugTempLocked = true
	defer func() { c.pugTempLocked = false }()

	if srv.OnDemand {
		if info, err := c.api.Check(ctx, srv.Ref); err != nil || !info.Status.Online() {
			c.announce(ctx, fmt.Sprintf("Waiting for %s to be ready for action...", srv.Name))
		}
	}

	pw := gameserver.NewPasswords(c.rng)
	req := gameserver.NewSetupRequest(srv.Ref, c.players.Capacity(), c.maps.Chosen(), c.mode.Game(), pw)

	var info *gameserver.Info
	var err error
	attempts := max(1, c.cfg.SetupAttempts)
	n := 0
	for n < attempts {
		n++
		info, err = c.api.Setup(ctx, req)
		if err == nil {
			break
		}
		c.logger.WarnContext(ctx, "match setup attempt failed",
			slog.Int("attempt", n),
			slog.Int("attempts", attempts),
			slog.Any("error", err),
		)
		if n < attempts {
			c.clock.Sleep(c.cfg.SetupDelay)
		}
	}

	red, blue := c.draft.Team(draft.Red), c.draft.Team(draft.Blue)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "setup failed")
		c.metrics.setupFailures.Add(ctx, 1)
		c.appendEvents(ctx, event.New(c.channel, event.MatchSetupFail, event.MatchSetupData{
			Channel: c.channel, Mode: c.mode.Name, Server: srv.Ref,
			Red: ids(red), Blue: ids(blue), Maps: c.maps.Chosen(), Attempts: n,
		}))
		c.logger.ErrorContext(ctx, "match setup failed", slog.Int("attempts", n), slog.Any("error", err))
		return fmt.Errorf("%w after %d attempts: %w", ErrSetupFailed, n, err)
	}

	now := c.clock.Now()
	code := ""
	if info.SetupConfig != nil {
		code = info.SetupConfig.MatchCode
		if info.SetupConfig.RedPass != "" {
			pw.Red = info.SetupConfig.RedPass
		}
		if info.SetupConfig.BluePass != "" {
			pw.Blue = info.SetupConfig.BluePass
		}
		if info.SetupConfig.SpecPass != "" {
			pw.Spectator = info.SetupConfig.SpecPass
		}
	}
	if code == "" {
		code = "temp-" + now.Format(tempCodeLayout)
	}
	url := info.URL()
	if info.ServerAddr == "" {
		url = srv.URL
	}

	c.pugLocked = true
	c.resetRequests = [2]bool{}
	c.live = &liveMatch{code: code, ref: code, server: srv, url: url, passwords: pw, started: now}
	c.storeLastPug(ctx)

	span.SetAttributes(attribute.String("match_code", code))
	c.metrics.setups.Add(ctx, 1)
	c.appendEvents(ctx, event.New(code, event.MatchSetup, event.MatchSetupData{
		Channel: c.channel, Mode: c.mode.Name, Server: srv.Ref, MatchCode: code,
		Red: ids(red), Blue: ids(blue), Maps: c.maps.Chosen(), Attempts: n,
	}))
	c.logger.InfoContext(ctx, "match setup complete",
		slog.String("match_code", code),
		slog.String("server", srv.Ref),
		slog.Int("attempts", n),
	)

	c.sendPasswords(ctx)
	c.announce(ctx, c.formatMatchReady())
	return nil
}

// storeLastPug records the match just set up for the last command and,
// in ranked mode, as an uncompleted ranked match.
func (c *Coordinator) storeLastPug(ctx context.Context) {
	red, blue := c.draft.Team(draft.Red), c.draft.Team(draft.Blue)
	c.last = lastPug{
		desc:      c.desc(),
		mode:      c.mode.Name,
		ranked:    c.mode.Ranked,
		red:       red,
		blue:      blue,
		maps:      c.maps.Chosen(),
		redPower:  c.redPower,
		bluePower: c.bluePower,
		started:   c.live.started,
	}
	if !c.mode.Ranked {
		return
	}
	m := rating.Match{
		Ref:       c.live.ref,
		Start:     rating.At(c.live.started),
		Maps:      c.maps.Chosen(),
		Red:       ratingIDs(red),
		Blue:      ratingIDs(blue),
		RedPower:  c.redPower,
		BluePower: c.bluePower,
	}
	if _, _, err := c.ratings.RecordMatch(ctx, c.mode.Name, m); err != nil {
		c.logger.ErrorContext(ctx, "failed to store ranked match", slog.Any("error", err))
	}
}

// sendPasswords messages each player their team's password. Players who
// cannot be reached are named in the channel.
func (c *Coordinator) sendPasswords(ctx context.Context) {
	if c.live == nil {
		return
	}
	teams := []struct {
		side draft.Side
		pass string
	}{
		{draft.Red, c.live.passwords.Red},
		{draft.Blue, c.live.passwords.Blue},
	}
	for _, t := range teams {
		name := strings.ToLower(t.side.String())
		msg := fmt.Sprintf("%s team password: **%s**\nJoin the server @ **%s?password=%s**",
			t.side, t.pass, c.live.url, t.pass)
		for _, p := range c.draft.Team(t.side) {
			if err := c.notify.DirectMessage(ctx, p.ID, msg); err != nil {
				c.logger.WarnContext(ctx, "failed to send password",
					slog.String("player_id", p.ID),
					slog.Any("error", err),
				)
				c.announce(ctx, fmt.Sprintf("Unable to send password to %s - are DMs enabled? Please ask your teammates for the %s team password.", p.Mention(), name))
			}
		}
	}
	c.announce(ctx, "Check private messages for server passwords.")
}

// Poll checks a live match on the server. Once the server reports it
// finished, the pug is reset and any queued players form the next one.
func (c *Coordinator) Poll(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.pugLocked || c.live == nil || c.pugTempLocked {
		return
	}
	ctx, span := c.tracer.Start(ctx, "Coordinator.Poll",
		trace.WithAttributes(
			attribute.String("channel", c.channel),
			attribute.String("match_code", c.live.code),
		),
	)
	defer span.End()

	info, err := c.api.Check(ctx, c.live.server.Ref)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to check match status", slog.Any("error", err))
		return
	}
	c.observe(info)
	if info.MatchStarted || info.SetupResult != gameserver.ResultMatchFinished {
		return
	}

	suffix := "..."
	if c.mode.Ranked {
		suffix = " and updating player RP."
	}
	c.announce(ctx, "Match finished. Resetting pug"+suffix)
	c.reset(ctx, false)
	c.announce(ctx, c.formatPug(false))
	if c.playersReady() {
		c.announce(ctx, "Queued players have been added and the pug is full. Continuing with the next pug.")
		c.evaluate(ctx)
	}
}

// observe takes the scores and match code reported by the server.
func (c *Coordinator) observe(info *gameserver.Info) {
	if c.live == nil || info == nil {
		return
	}
	if !info.Status.Public() {
		c.live.redScore = info.Status.ScoreRed
		c.live.blueScore = info.Status.ScoreBlue
	}
	if mc := info.Status.MatchCode; mc != "" && strings.HasPrefix(c.live.code, "temp-") {
		c.live.code = mc
	}
}

// endMatch returns the server to public play and settles the match.
// Ranked matches only count when they ended on the server.
func (c *Coordinator) endMatch(ctx context.Context, manual bool) {
	live := c.live
	if live == nil {
		return
	}
	if info, err := c.api.Check(ctx, live.server.Ref); err == nil {
		c.observe(info)
	} else {
		c.logger.WarnContext(ctx, "failed to check match before ending", slog.Any("error", err))
	}
	if _, err := c.api.EndGame(ctx, live.server.Ref); err != nil {
		c.logger.ErrorContext(ctx, "failed to end match on server",
			slog.String("server", live.server.Ref),
			slog.Any("error", err),
		)
	}

	c.last.score = fmt.Sprintf("**Score:** Red %d - %d Blue", live.redScore, live.blueScore)

	if c.last.ranked {
		m := rating.Match{
			Ref:       live.ref,
			RedScore:  live.redScore,
			BlueScore: live.blueScore,
			Completed: !manual,
		}
		if !manual {
			m.End = rating.At(c.clock.Now())
		}
		_, changes, err := c.ratings.RecordMatch(ctx, c.last.mode, m)
		switch {
		case err != nil:
			c.logger.ErrorContext(ctx, "failed to record ranked result", slog.Any("error", err))
		case len(changes) > 0:
			c.announce(ctx, formatChanges(live.code, changes))
		}
	}

	typ := event.MatchEnded
	if manual {
		typ = event.MatchReset
	} else {
		c.metrics.completed.Add(ctx, 1)
	}
	c.appendEvents(ctx, event.New(live.ref, typ, event.MatchEndedData{
		Channel: c.channel, MatchCode: live.code,
		RedScore: live.redScore, BlueScore: live.blueScore, Manual: manual,
	}))
	c.logger.InfoContext(ctx, "match ended",
		slog.String("match_code", live.code),
		slog.Int("red_score", live.redScore),
		slog.Int("blue_score", live.blueScore),
		slog.Bool("manual", manual),
	)
	c.live = nil
}

// reset clears the pug. A manual reset also clears the queue; otherwise
// the queue becomes the next roster.
func (c *Coordinator) reset(ctx context.Context, manual bool) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.reset",
		trace.WithAttributes(
			attribute.String("channel", c.channel),
			attribute.Bool("manual", manual),
		),
	)
	defer span.End()

	c.pugTempLocked = true
	if manual && c.pugLocked && c.mode.Ranked && len(c.maps.Chosen()) > 0 {
		c.maps.AdjustDesirability(maps.Revert, "", 0)
		if err := c.ratings.SaveWeighting(ctx, c.mode.Name, c.maps.Weighting()); err != nil {
			c.logger.ErrorContext(ctx, "failed to save map weighting", slog.Any("error", err))
		}
	}
	c.maps.Reset()
	c.draft.FullReset(manual)
	c.redPower, c.bluePower = 0, 0

	if c.pugLocked || c.live != nil {
		c.endMatch(ctx, manual)
	}
	if !manual {
		c.players.ConvertQueue()
	} else {
		c.metrics.resets.Add(ctx, 1)
	}

	c.pugTempLocked = false
	c.pugLocked = false
	c.resetRequests = [2]bool{}
	if c.mode.Ranked {
		if err := c.loadRanked(ctx); err != nil {
			c.logger.ErrorContext(ctx, "failed to reload ranked data", slog.Any("error", err))
		}
	}
}
