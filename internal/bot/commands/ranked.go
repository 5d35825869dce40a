package commands

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/jensholdgaard/assault-pugbot/internal/chart"
	"github.com/jensholdgaard/assault-pugbot/internal/maps"
	"github.com/jensholdgaard/assault-pugbot/internal/match"
	"github.com/jensholdgaard/assault-pugbot/internal/rating"
)

const defaultRecent = 5

var captainModes = map[string]int{
	"none":      rating.CapNone,
	"random":    rating.CapRandom,
	"role":      rating.CapRole,
	"volunteer": rating.CapVolunteer,
}

// rankedMode resolves the ranked mode a command applies to: the explicit
// option, else the channel's pug when it is ranked, else the first ranked
// mode.
func (h *Handlers) rankedMode(r *request) (string, error) {
	if name := r.str("ranked-mode"); name != "" {
		m, ok := match.LookupMode(name)
		if !ok || !m.Ranked {
			return "", fmt.Errorf("%w: %s is not a ranked mode", ErrNoRankedMode, name)
		}
		return m.Name, nil
	}
	if pug, err := h.pugs.Get(r.channel); err == nil {
		if s := pug.Snapshot(); s.Ranked {
			return s.Mode, nil
		}
	}
	for _, m := range match.Modes {
		if m.Ranked {
			return m.Name, nil
		}
	}
	return "", ErrNoRankedMode
}

// changed reloads the ranked data of every pug playing mode.
func (h *Handlers) changed(ctx context.Context, mode string) {
	h.pugs.ReloadRanked(ctx, mode)
}

func (h *Handlers) rkSet(ctx context.Context, r *request) (string, error) {
	mode, err := h.rankedMode(r)
	if err != nil {
		return "", err
	}
	p := r.target("player")
	rec, err := h.ratings.SetRating(ctx, mode, p, r.integer("rating", 0), rating.ID(r.str("external-id")))
	if err != nil {
		return "", err
	}
	h.changed(ctx, mode)
	return fmt.Sprintf("%s rating for **%s** set to **%d**.", mode, rec.Name, rec.Value), nil
}

func (h *Handlers) rkDel(ctx context.Context, r *request) (string, error) {
	mode, err := h.rankedMode(r)
	if err != nil {
		return "", err
	}
	p := r.target("player")
	if err := h.ratings.DeleteRating(ctx, mode, rating.ID(p.ID)); err != nil {
		return "", err
	}
	h.changed(ctx, mode)
	return fmt.Sprintf("Removed the %s rating of **%s**.", mode, p.Name), nil
}

func (h *Handlers) rkRecalc(ctx context.Context, r *request) (string, error) {
	mode, err := h.rankedMode(r)
	if err != nil {
		return "", err
	}
	p := r.target("player")
	rec, err := h.ratings.Recalculate(ctx, mode, rating.ID(p.ID), r.integer("seed", 0))
	if err != nil {
		return "", err
	}
	h.changed(ctx, mode)
	return fmt.Sprintf("Recalculated **%s**: %s rating is now **%d**.", rec.Name, mode, rec.Value), nil
}

func (h *Handlers) rkVoid(ctx context.Context, r *request) (string, error) {
	mode, err := h.rankedMode(r)
	if err != nil {
		return "", err
	}
	if h.pugs.InProgress(mode) {
		return "", fmt.Errorf("%w, matches cannot be voided until it ends", match.ErrInProgress)
	}
	res, err := h.ratings.VoidMatch(ctx, mode, r.str("match"))
	if err != nil {
		return "", err
	}
	h.changed(ctx, mode)

	state := "voided"
	if res.Match.Completed {
		state = "restored"
	}
	lines := []string{fmt.Sprintf("Match **%s** %s.", res.Match.Ref, state)}
	for _, rec := range res.Recalculated {
		lines = append(lines, fmt.Sprintf("%s: %d", rec.Name, rec.Value))
	}
	if len(res.Skipped) > 0 {
		skipped := make([]string, len(res.Skipped))
		for i, id := range res.Skipped {
			skipped[i] = "<@" + string(id) + ">"
		}
		lines = append(lines, "Not recalculated: "+strings.Join(skipped, ", "))
	}
	return strings.Join(lines, "\n"), nil
}

func (h *Handlers) rkRecent(ctx context.Context, r *request) (string, error) {
	mode, err := h.rankedMode(r)
	if err != nil {
		return "", err
	}
	b, err := h.ratings.Load(ctx, mode)
	if err != nil {
		return "", err
	}
	games := b.Recent(max(1, r.integer("count", defaultRecent)), false)
	if len(games) == 0 {
		return fmt.Sprintf("No %s matches recorded.", mode), nil
	}
	lines := []string{fmt.Sprintf("Recent %s matches:", mode)}
	for _, m := range games {
		lines = append(lines, formatMatch(m))
	}
	return strings.Join(lines, "\n"), nil
}

func formatMatch(m *rating.Match) string {
	state := "void"
	if m.Completed {
		state = fmt.Sprintf("Red %d : %d Blue", m.RedScore, m.BlueScore)
	}
	return fmt.Sprintf("**%s** %s, %s (%s) RP %d vs %d",
		m.Ref, m.Start.Format("2006-01-02 15:04"), state, strings.Join(m.Maps, ", "), m.RedPower, m.BluePower)
}

func (h *Handlers) rkReport(ctx context.Context, r *request) (string, error) {
	mode, err := h.rankedMode(r)
	if err != nil {
		return "", err
	}
	b, err := h.ratings.Load(ctx, mode)
	if err != nil {
		return "", err
	}
	m, changes, err := b.MatchReport(r.str("match"))
	if err != nil {
		return "", err
	}
	lines := []string{formatMatch(m)}
	for _, c := range changes {
		lines = append(lines, fmt.Sprintf("%s: %d → %d (%+d)", c.Name, c.Before, c.After, c.After-c.Before))
	}
	return strings.Join(lines, "\n"), nil
}

// rkRP shows a rating with its history chart attached.
func (h *Handlers) rkRP(ctx context.Context, r *request) (string, error) {
	mode, err := h.rankedMode(r)
	if err != nil {
		return "", err
	}
	b, err := h.ratings.Load(ctx, mode)
	if err != nil {
		return "", err
	}
	p := r.target("player")
	rec := b.Find(rating.ByID(rating.ID(p.ID)))
	if rec == nil {
		return "", fmt.Errorf("%w: %s", rating.ErrPlayerNotFound, p.Name)
	}

	reply := fmt.Sprintf("**%s** %s rating: **%d** (previous %d, %d matches on record)",
		rec.Name, mode, rec.Value, rec.Previous, len(rec.History))
	png, err := chart.RatingHistory(rec.Name, mode, chart.Points(rec))
	if err != nil {
		h.logger.WarnContext(ctx, "rendering rating chart failed", slog.String("player_id", p.ID), slog.Any("error", err))
		return reply, nil
	}
	r.files = append(r.files, &discordgo.File{
		Name:        "rating.png",
		ContentType: "image/png",
		Reader:      bytes.NewReader(png),
	})
	return reply, nil
}

func (h *Handlers) rkMapSim(ctx context.Context, r *request) (string, error) {
	return r.pug.SimulateMaps(ctx, r.integer("runs", 1))
}

func (h *Handlers) rkResetMaps(ctx context.Context, r *request) (string, error) {
	return r.pug.AdjustMap(ctx, maps.ResetAll, "", 0)
}

func (h *Handlers) rkBoost(ctx context.Context, r *request) (string, error) {
	return r.pug.AdjustMap(ctx, maps.Increase, r.str("map"), r.number("factor", 2))
}

func (h *Handlers) rkNerf(ctx context.Context, r *request) (string, error) {
	return r.pug.AdjustMap(ctx, maps.Decrease, r.str("map"), r.number("factor", 2))
}

func (h *Handlers) rkConf(ctx context.Context, r *request) (string, error) {
	mode, err := h.rankedMode(r)
	if err != nil {
		return "", err
	}
	capMode, ok := captainModes[r.str("captains")]
	if !ok {
		return "", fmt.Errorf("unknown captain mode %q", r.str("captains"))
	}
	b, err := h.ratings.Update(ctx, mode, func(b *rating.Block) error {
		b.Configure(capMode, r.str("role"), r.integer("window", 0))
		return nil
	})
	if err != nil {
		return "", err
	}
	h.changed(ctx, mode)
	return fmt.Sprintf("%s captains: %s (role %q, window %ds).", mode, r.str("captains"), b.CapRole, b.CapWindow), nil
}

func (h *Handlers) rkScoring(ctx context.Context, r *request) (string, error) {
	mode, err := h.rankedMode(r)
	if err != nil {
		return "", err
	}
	s := rating.Scoring{
		Mode:       r.str("type"),
		TeamWin:    r.integer("teamwin", 0),
		TeamLose:   r.integer("teamlose", 0),
		CapWin:     r.integer("capwin", 0),
		CapLose:    r.integer("caplose", 0),
		VolCapWin:  r.integer("volcapwin", 0),
		VolCapLose: r.integer("volcaplose", 0),
	}
	b, err := h.ratings.Update(ctx, mode, func(b *rating.Block) error { return b.SetScoring(s) })
	if err != nil {
		return "", err
	}
	sc := b.Scoring
	return fmt.Sprintf("%s scoring (%s): team %+d/%+d, captain %+d/%+d, volunteer captain %+d/%+d.",
		mode, sc.Mode, sc.TeamWin, sc.TeamLose, sc.CapWin, sc.CapLose, sc.VolCapWin, sc.VolCapLose), nil
}

func (h *Handlers) rkAddMaps(ctx context.Context, r *request) (string, error) {
	mode, err := h.rankedMode(r)
	if err != nil {
		return "", err
	}
	var ws []maps.Weighting
	for _, entry := range strings.Fields(r.str("maps")) {
		w, err := rating.ParseMapEntry(entry)
		if err != nil {
			return "", err
		}
		ws = append(ws, w)
	}
	empty := r.boolean("clear")
	b, err := h.ratings.Update(ctx, mode, func(b *rating.Block) error {
		if empty {
			b.ClearMaps()
		}
		b.AddMaps(ws...)
		return nil
	})
	if err != nil {
		return "", err
	}
	h.changed(ctx, mode)
	return fmt.Sprintf("Added %d maps; the %s map list now has %d.", len(ws), mode, len(b.Maps.MapList)), nil
}

func (h *Handlers) rkMapLimit(ctx context.Context, r *request) (string, error) {
	mode, err := h.rankedMode(r)
	if err != nil {
		return "", err
	}
	limit := r.integer("limit", 0)
	if limit < 0 {
		return "", fmt.Errorf("%w: negative map limit", rating.ErrInvalidMapConfig)
	}
	if _, err := h.ratings.Update(ctx, mode, func(b *rating.Block) error {
		b.Maps.FixedPickLimit = limit
		return nil
	}); err != nil {
		return "", err
	}
	h.changed(ctx, mode)
	if limit == 0 {
		return fmt.Sprintf("%s map count is no longer fixed.", mode), nil
	}
	return fmt.Sprintf("%s matches are now played over %d maps.", mode, limit), nil
}
