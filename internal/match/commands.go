package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/assault-pugbot/internal/draft"
	"github.com/jensholdgaard/assault-pugbot/internal/rating"
	"github.com/jensholdgaard/assault-pugbot/internal/roster"
)

// pokeMinPlayers is how many players must be signed before poke may be used.
const pokeMinPlayers = 2

func (c *Coordinator) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("channel", c.channel))
	return c.tracer.Start(ctx, "Coordinator."+name, trace.WithAttributes(attrs...))
}

// checkEligible reports the players who may not join the ranked pug.
func (c *Coordinator) checkEligible(ps []*roster.Player) error {
	if c.ranked == nil {
		return fmt.Errorf("%w: no ranked data loaded", ErrIneligible)
	}
	bad := c.ranked.Ineligible(ps)
	_, missing := c.ranked.Rate(ps)
	for _, p := range missing {
		if !contains(bad, p.ID) {
			bad = append(bad, p)
		}
	}
	if len(bad) > 0 {
		return &IneligibleError{Players: bad}
	}
	return nil
}

func contains(ps []*roster.Player, id string) bool {
	for _, p := range ps {
		if p.ID == id {
			return true
		}
	}
	return false
}

// Join signs p for the pug. A note of "nomic" tags the player; a note
// starting with "q" or "next" queues the player for the next pug when this
// one is full or running.
func (c *Coordinator) Join(ctx context.Context, p *roster.Player, note string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := c.start(ctx, "Join", attribute.String("player_id", p.ID))
	defer span.End()

	note = strings.ToLower(strings.TrimSpace(note))
	suffix := ""
	queued := false
	if note == "nomic" {
		p.Flags = note
		suffix = ` and tagged as "no mic"`
	}
	if strings.HasPrefix(note, "q") || strings.HasPrefix(note, "next") {
		if c.players.Queued(p.ID) {
			return "", fmt.Errorf("%s is %w", p.Name, ErrAlreadyQueued)
		}
		if c.pugLocked || c.playersReady() {
			queued = true
			suffix = " to the queue for the next pug"
		} else {
			suffix = " immediately, as a pug is not yet running"
		}
	}
	if !queued && c.pugLocked {
		return "", ErrInProgress
	}
	if c.mode.Ranked {
		if err := c.checkEligible([]*roster.Player{p}); err != nil {
			return "", err
		}
	}
	if c.draft.Has(p.ID) {
		return "", roster.ErrAlreadySigned
	}
	if err := c.players.Add(p, queued); err != nil {
		return "", err
	}
	c.logger.InfoContext(ctx, "player joined",
		slog.String("player_id", p.ID),
		slog.Bool("queued", queued),
		slog.Int("signed", c.players.Len()),
	)

	if queued {
		return fmt.Sprintf("%s was added%s.", p.Name, suffix), nil
	}
	reply := fmt.Sprintf("%s was added%s.\n%s", p.Name, suffix, c.formatPug(false))
	c.evaluate(ctx)
	return reply, nil
}

// Leave removes p from the queue, or from the pug while it is not running.
// Leaving the pug undoes any team and map picks.
func (c *Coordinator) Leave(ctx context.Context, p *roster.Player) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := c.start(ctx, "Leave", attribute.String("player_id", p.ID))
	defer span.End()

	if c.players.Queued(p.ID) {
		c.players.Remove(p.ID)
		return fmt.Sprintf("%s has left the queue.", p.Name), nil
	}
	if c.pugLocked {
		return "", ErrInProgress
	}
	if !c.players.Has(p.ID) && !c.draft.Has(p.ID) {
		return "", ErrNotSigned
	}
	c.draft.SoftReset()
	c.players.Remove(p.ID)
	c.maps.Reset()
	c.logger.InfoContext(ctx, "player left", slog.String("player_id", p.ID), slog.Int("signed", c.players.Len()))

	c.evaluate(ctx)
	return fmt.Sprintf("%s left.", p.Name), nil
}

// List describes the pug at its current stage.
func (c *Coordinator) List(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.pugLocked:
		return c.formatMatchInProgress()
	case c.teamsReady() && c.mode.Ranked:
		return strings.Join([]string{c.formatPugShort(), c.formatTeams(false), formatMaps(c.maps.Chosen())}, "\n")
	case c.teamsReady():
		return strings.Join([]string{c.formatPugShort(), c.formatTeams(false), formatMaps(c.maps.Chosen()), c.formatPickNextMap(false)}, "\n")
	case c.captainsReady():
		return strings.Join([]string{
			c.formatPugShort(),
			c.formatPlayers(c.players.Slots(), true, false),
			c.formatTeams(false),
			c.formatPickNextPlayer(false),
		}, "\n")
	}
	msg := []string{c.formatPug(false)}
	if c.playersReady() && !c.mode.Ranked {
		if c.draft.NumCaptains() == 1 {
			msg = append(msg, "Waiting for 2nd captain. Type **/captain** to become a captain. To choose a random captain type **/randomcaptains**")
		} else {
			msg = append(msg, "Waiting for captains. Type **/captain** to become a captain. To choose random captains type **/randomcaptains**")
		}
	}
	return strings.Join(msg, "\n")
}

func (c *Coordinator) checkCaptainable() error {
	switch {
	case c.mode.Ranked:
		return ErrRankedOnly
	case c.pugLocked:
		return ErrInProgress
	case !c.playersReady():
		return draft.ErrRosterNotFull
	case c.captainsReady():
		return draft.ErrCaptainsFull
	}
	return nil
}

// Captain volunteers p as a captain.
func (c *Coordinator) Captain(ctx context.Context, p *roster.Player) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := c.start(ctx, "Captain", attribute.String("player_id", p.ID))
	defer span.End()

	if err := c.checkCaptainable(); err != nil {
		return "", err
	}
	side, err := c.draft.SetCaptain(p)
	if err != nil {
		return "", err
	}
	c.logger.InfoContext(ctx, "captain volunteered", slog.String("player_id", p.ID), slog.String("side", side.String()))

	c.evaluate(ctx)
	return p.Mention() + " has volunteered as a captain!", nil
}

// RandomCaptains fills every captainless side with a random signed player.
func (c *Coordinator) RandomCaptains(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := c.start(ctx, "RandomCaptains")
	defer span.End()

	if err := c.checkCaptainable(); err != nil {
		return "", err
	}
	for !c.captainsReady() {
		ps := c.players.Players()
		if _, err := c.draft.SetCaptain(ps[c.rng.IntN(len(ps))]); err != nil {
			return "", err
		}
	}

	c.evaluate(ctx)
	return "Captains have been chosen at random.", nil
}

// Pick drafts players by their 1-based roster numbers. Picking stops at
// the first number that cannot be taken, including once the turn passes to
// the other captain.
func (c *Coordinator) Pick(ctx context.Context, captain *roster.Player, numbers ...int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := c.start(ctx, "Pick", attribute.String("captain_id", captain.ID), attribute.IntSlice("numbers", numbers))
	defer span.End()

	switch {
	case c.mode.Ranked:
		return "", ErrRankedOnly
	case c.pugLocked:
		return "", ErrInProgress
	case !c.captainsReady() || c.draft.TeamsFull():
		return "", ErrNotPicking
	}
	if cur := c.draft.CurrentCaptain(); cur == nil || cur.ID != captain.ID {
		return "", draft.ErrNotYourTurn
	}

	var picked []*roster.Player
	for _, n := range numbers {
		moved, err := c.draft.Pick(captain.ID, n-1)
		if err != nil {
			break
		}
		picked = append(picked, moved...)
		if c.draft.TeamsFull() {
			break
		}
	}
	if len(picked) == 0 {
		return "", draft.ErrInvalidPick
	}
	c.logger.InfoContext(ctx, "players picked",
		slog.String("captain_id", captain.ID),
		slog.Any("players", ids(picked)),
	)

	reply := fmt.Sprintf("%s picked %s.", captain.Name, strings.Join(names(picked), ", "))
	if c.draft.TeamsFull() {
		reply = "Teams have been selected:\n" + c.formatTeams(true)
	}
	c.evaluate(ctx)
	return reply, nil
}

// PickMap chooses the map with the 1-based number for the match.
func (c *Coordinator) PickMap(ctx context.Context, captain *roster.Player, number int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := c.start(ctx, "PickMap", attribute.String("captain_id", captain.ID), attribute.Int("number", number))
	defer span.End()

	switch {
	case c.mode.Ranked:
		return "", ErrRankedOnly
	case c.pugLocked || c.matchReady() || !c.teamsReady():
		return "", ErrNotPicking
	}
	if mc := c.mapCaptain(); mc == nil || mc.ID != captain.ID {
		return "", draft.ErrNotYourTurn
	}
	m, err := c.maps.Pick(number - 1)
	if err != nil {
		return "", err
	}
	c.logger.InfoContext(ctx, "map picked", slog.String("captain_id", captain.ID), slog.String("map", m))

	reply := fmt.Sprintf("Maps chosen **(%d of %d)**:\n%s", len(c.maps.Chosen()), c.maps.MaxMaps(), formatMaps(c.maps.Chosen()))
	c.evaluate(ctx)
	return reply, nil
}

// ListMaps returns the maps captains pick from. In ranked mode the weighted
// list is shown unless all is set.
func (c *Coordinator) ListMaps(all bool) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.mode.Ranked {
		return "Server map list is:\n" + formatMaps(c.maps.Available())
	}
	if all {
		return fmt.Sprintf("Ranked mode (%s) will pick from the following underscored maps:\n%s", c.mode.Name, formatMaps(c.maps.Available()))
	}
	return fmt.Sprintf("Ranked mode (%s) will pick from the following map list:\n%s", c.mode.Name, formatMaps(c.maps.Filtered()))
}

// ListModes names every mode.
func ListModes() string {
	var b strings.Builder
	b.WriteString("Available modes are:")
	for _, m := range ModeNames() {
		b.WriteString(" " + plasep + " **" + m + "**")
	}
	b.WriteString(" " + plasep)
	return b.String()
}

// SetMode switches the pug mode. Capacity drops to the mode's maximum.
// A ranked mode requires every signed player to be eligible; otherwise the
// previous mode is kept.
func (c *Coordinator) SetMode(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := c.start(ctx, "SetMode", attribute.String("mode", name))
	defer span.End()

	return c.setMode(ctx, name)
}

func (c *Coordinator) setMode(ctx context.Context, name string) (string, error) {
	switch {
	case c.pugLocked:
		return "", ErrInProgress
	case c.captainsReady():
		return "", ErrPicking
	}
	mode, ok := LookupMode(name)
	if !ok {
		return "", fmt.Errorf("%w, valid modes are: %s", ErrUnknownMode, strings.Join(ModeNames(), ", "))
	}
	if c.players.Len() > mode.MaxPlayers {
		return "", fmt.Errorf("%w: %d or fewer players must be signed for a switch to %s", ErrPlayerLimit, mode.MaxPlayers, mode.Name)
	}

	prev, prevCap := c.mode, c.players.Capacity()
	c.draft.SoftReset()
	c.maps.Reset()
	c.mode = mode
	if prevCap > mode.MaxPlayers {
		if _, err := c.players.SetCapacity(mode.MaxPlayers); err != nil {
			return "", err
		}
	}

	if mode.Ranked {
		err := c.loadRanked(ctx)
		if err == nil {
			err = c.checkEligible(c.players.Players())
		}
		if err != nil {
			c.revertMode(ctx, prev, prevCap)
			c.logger.WarnContext(ctx, "ranked mode rejected", slog.String("mode", mode.Name), slog.Any("error", err))
			return "", fmt.Errorf("pug mode kept as %s: %w", prev.Name, err)
		}
	} else {
		c.clearRanked()
	}
	c.logger.InfoContext(ctx, "pug mode changed", slog.String("from", prev.Name), slog.String("to", mode.Name))

	reply := "Pug mode changed to: **" + mode.Name + "**"
	if mode.Ranked {
		reply += fmt.Sprintf(" (ranked, best of %d maps)", c.maps.MaxMaps())
	}
	c.evaluate(ctx)
	return reply, nil
}

func (c *Coordinator) revertMode(ctx context.Context, prev Mode, capacity int) {
	c.mode = prev
	_, _ = c.players.SetCapacity(capacity)
	if !prev.Ranked {
		c.clearRanked()
		return
	}
	if err := c.loadRanked(ctx); err != nil {
		c.logger.ErrorContext(ctx, "failed to restore ranked data", slog.Any("error", err))
	}
}

// SetPlayers changes the pug size. Unless force is set the size must lie
// within the mode's limits; it must always be even.
func (c *Coordinator) SetPlayers(ctx context.Context, n int, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := c.start(ctx, "SetPlayers", attribute.Int("players", n), attribute.Bool("force", force))
	defer span.End()

	switch {
	case c.pugLocked:
		return "", ErrInProgress
	case !c.mode.Ranked && c.captainsReady():
		return "", ErrPicking
	case n%2 != 0 || n < 2:
		return "", fmt.Errorf("%w: players must be a multiple of 2", ErrPlayerLimit)
	case !force && (n < c.mode.MinPlayers || n > c.mode.MaxPlayers):
		return "", fmt.Errorf("%w: players must be a multiple of 2 between %d and %d", ErrPlayerLimit, c.mode.MinPlayers, c.mode.MaxPlayers)
	}
	c.draft.SoftReset()
	c.maps.Reset()
	dropped, err := c.players.SetCapacity(n)
	if err != nil {
		return "", err
	}
	c.logger.InfoContext(ctx, "player limit set", slog.Int("players", c.players.Capacity()), slog.Int("dropped", len(dropped)))

	reply := fmt.Sprintf("Player limit set to %d", c.players.Capacity())
	if force {
		reply = fmt.Sprintf("Player limit forcefully set to %d. (%s min: %d, max: %d)",
			c.players.Capacity(), c.mode.Name, c.mode.MinPlayers, c.mode.MaxPlayers)
	}
	c.evaluate(ctx)
	return reply, nil
}

// SetMaps changes how many maps are played.
func (c *Coordinator) SetMaps(ctx context.Context, n int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := c.start(ctx, "SetMaps", attribute.Int("maps", n))
	defer span.End()

	if c.pugLocked {
		return "", ErrInProgress
	}
	if c.mode.Ranked && c.ranked != nil && c.ranked.Maps.FixedPickLimit > 0 {
		return "", fmt.Errorf("%w to %d maps", ErrFixedMaps, c.maps.MaxMaps())
	}
	if err := c.maps.SetMaxMaps(n); err != nil {
		return "", err
	}
	reply := fmt.Sprintf("Map limit set to %d", c.maps.MaxMaps())
	if c.teamsReady() {
		c.evaluate(ctx)
	}
	return reply, nil
}

// Reset clears the pug. While a match is live only admins may reset at
// once; otherwise a player from each team has to ask.
func (c *Coordinator) Reset(ctx context.Context, requester *roster.Player, admin bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := c.start(ctx, "Reset", attribute.String("player_id", requester.ID), attribute.Bool("admin", admin))
	defer span.End()

	if !admin && c.pugLocked {
		side, ok := c.sideOf(requester.ID)
		if !ok {
			return "", ErrNotInMatch
		}
		other := side.Other()
		if c.resetRequests[side] {
			return fmt.Sprintf("%s team have already requested reset. %s team must also request.", side, other), nil
		}
		c.resetRequests[side] = true
		if !c.resetRequests[other] {
			return fmt.Sprintf("%s team have requested reset. %s team must also request.", side, other), nil
		}
	}

	lines := []string{"Removing all signed players: " + c.formatPlayers(c.allPlayers(), false, true)}
	if q := c.players.Queue(); len(q) > 0 {
		lines = append(lines, "Removing all queued players: "+c.formatPlayers(q, false, true))
	}
	c.reset(ctx, true)
	c.logger.InfoContext(ctx, "pug reset", slog.String("player_id", requester.ID), slog.Bool("admin", admin))
	lines = append(lines, "Pug Reset: "+c.formatPugShort())
	return strings.Join(lines, "\n"), nil
}

func (c *Coordinator) sideOf(id string) (draft.Side, bool) {
	for _, s := range []draft.Side{draft.Red, draft.Blue} {
		if contains(c.draft.Team(s), id) {
			return s, true
		}
	}
	return draft.Red, false
}

// Retry runs the match setup again after it failed.
func (c *Coordinator) Retry(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := c.start(ctx, "Retry")
	defer span.End()

	if !c.matchReady() || (c.pugLocked && !c.servers.Current().OnDemand) {
		return "", ErrRetryNotAllowed
	}
	if c.pugLocked {
		// On-demand servers may lose a match when they stop.
		c.pugLocked = false
		c.live = nil
	}
	if err := c.setup(ctx); err != nil {
		return "", err
	}
	return "Match setup retried.", nil
}

// ResetCaptains returns every drafted player to the roster and clears the
// picked maps.
func (c *Coordinator) ResetCaptains(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := c.start(ctx, "ResetCaptains")
	defer span.End()

	switch {
	case c.mode.Ranked:
		return "", ErrRankedOnly
	case c.pugLocked:
		return "", ErrInProgress
	case c.draft.NumCaptains() < 1:
		return "", ErrNotPicking
	}
	c.maps.Reset()
	c.draft.SoftReset()
	c.evaluate(ctx)
	return "Captains have been reset.", nil
}

func (c *Coordinator) allowPing() error {
	if c.pugLocked {
		return ErrInProgress
	}
	if !c.cooldown.AllowN(c.clock.Now(), 1) {
		return ErrCooldown
	}
	return nil
}

// Promote advertises the pug to the channel. It shares a cooldown with
// Poke.
func (c *Coordinator) Promote(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.allowPing(); err != nil {
		return "", err
	}
	return fmt.Sprintf("Hey @here it's PUG TIME!!!\n**%d** needed for **%s**!", c.players.Needed(), c.desc()), nil
}

// Poke mentions everyone signed.
func (c *Coordinator) Poke(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.allPlayers()) < pokeMinPlayers {
		return "", ErrTooFewToPoke
	}
	if err := c.allowPing(); err != nil {
		return "", err
	}
	return fmt.Sprintf("Poking those signed (you will be unable to poke for %d seconds): %s",
		int(c.cfg.Cooldown.Seconds()), c.formatPlayers(c.allPlayers(), false, true)), nil
}

// Last describes the last match played, or the current one while it is
// running.
func (c *Coordinator) Last() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.live != nil {
		return "Last match not complete...\n" + c.formatMatchInProgress()
	}
	return c.formatLastPug()
}

// Passwords returns the credentials of the live match.
func (c *Coordinator) Passwords() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.live == nil {
		return "", ErrNoMatch
	}
	pw := c.live.passwords
	return fmt.Sprintf("Red team password: **%s**\nBlue team password: **%s**\nSpectator password: **%s**", pw.Red, pw.Blue, pw.Spectator), nil
}

// ReloadRanked re-reads the ranked data after an administrator changed it.
func (c *Coordinator) ReloadRanked(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.mode.Ranked {
		return nil
	}
	if c.pugLocked || c.teamsReady() {
		// Keep the weighting in use until the match is over.
		return nil
	}
	err := c.loadRanked(ctx)
	if errors.Is(err, rating.ErrNotFound) {
		return nil
	}
	return err
}
