package commands

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/jensholdgaard/assault-pugbot/internal/gameserver"
	"github.com/jensholdgaard/assault-pugbot/internal/match"
)

var ErrNoServerAddress = errors.New("the current server has no address to query")

func (h *Handlers) enable(ctx context.Context, r *request) (string, error) {
	c, err := h.pugs.Enable(ctx, r.channel)
	if err != nil {
		return "", err
	}
	return "Pugs are now running in this channel.\n" + c.List(ctx), nil
}

func (h *Handlers) disable(ctx context.Context, r *request) (string, error) {
	if err := h.pugs.Disable(ctx, r.channel); err != nil {
		return "", err
	}
	return "Pugs are no longer running in this channel.", nil
}

func (h *Handlers) join(ctx context.Context, r *request) (string, error) {
	return r.pug.Join(ctx, r.user, r.str("note"))
}

func (h *Handlers) leave(ctx context.Context, r *request) (string, error) {
	return r.pug.Leave(ctx, r.user)
}

func (h *Handlers) list(ctx context.Context, r *request) (string, error) {
	return r.pug.List(ctx), nil
}

func (h *Handlers) captain(ctx context.Context, r *request) (string, error) {
	return r.pug.Captain(ctx, r.user)
}

func (h *Handlers) randomCaptains(ctx context.Context, r *request) (string, error) {
	return r.pug.RandomCaptains(ctx)
}

func (h *Handlers) pick(ctx context.Context, r *request) (string, error) {
	numbers, err := ParseNumbers(r.str("numbers"))
	if err != nil {
		return "", err
	}
	return r.pug.Pick(ctx, r.user, numbers...)
}

func (h *Handlers) pickMap(ctx context.Context, r *request) (string, error) {
	return r.pug.PickMap(ctx, r.user, r.integer("number", 0))
}

func (h *Handlers) listMaps(_ context.Context, r *request) (string, error) {
	return r.pug.ListMaps(r.boolean("all")), nil
}

func (h *Handlers) listModes(context.Context, *request) (string, error) {
	return match.ListModes(), nil
}

func (h *Handlers) setMode(ctx context.Context, r *request) (string, error) {
	return r.pug.SetMode(ctx, r.str("mode"))
}

func (h *Handlers) setPlayers(ctx context.Context, r *request) (string, error) {
	return r.pug.SetPlayers(ctx, r.integer("players", 0), false)
}

func (h *Handlers) adminSetPlayers(ctx context.Context, r *request) (string, error) {
	return r.pug.SetPlayers(ctx, r.integer("players", 0), true)
}

func (h *Handlers) setMaps(ctx context.Context, r *request) (string, error) {
	return r.pug.SetMaps(ctx, r.integer("maps", 0))
}

func (h *Handlers) reset(ctx context.Context, r *request) (string, error) {
	return r.pug.Reset(ctx, r.user, r.admin)
}

func (h *Handlers) retry(ctx context.Context, r *request) (string, error) {
	return r.pug.Retry(ctx)
}

func (h *Handlers) resetCaptains(ctx context.Context, r *request) (string, error) {
	return r.pug.ResetCaptains(ctx)
}

func (h *Handlers) last(_ context.Context, r *request) (string, error) {
	return r.pug.Last(), nil
}

func (h *Handlers) passwords(_ context.Context, r *request) (string, error) {
	return r.pug.Passwords()
}

func (h *Handlers) promote(ctx context.Context, r *request) (string, error) {
	return r.pug.Promote(ctx)
}

func (h *Handlers) poke(ctx context.Context, r *request) (string, error) {
	return r.pug.Poke(ctx)
}

func (h *Handlers) servers(_ context.Context, r *request) (string, error) {
	return r.pug.ListServers(), nil
}

func (h *Handlers) server(_ context.Context, r *request) (string, error) {
	return r.pug.Server(), nil
}

func (h *Handlers) serverStatus(ctx context.Context, r *request) (string, error) {
	return r.pug.ServerStatus(ctx)
}

// serverQuery asks the current server directly over its UDP query port.
func (h *Handlers) serverQuery(ctx context.Context, r *request) (string, error) {
	queryType := r.str("type")
	if queryType == "" {
		queryType = "info"
	}
	srv := r.pug.CurrentServer()
	host, port, err := hostPort(srv.URL)
	if err != nil {
		return "", err
	}
	res, err := gameserver.Query(ctx, host, port, queryType, h.queryTimeout)
	if err != nil {
		return "", fmt.Errorf("querying %s: %w", srv.Name, err)
	}
	return formatQuery(srv.Name, queryType, res), nil
}

// hostPort reads the host and game port of an unreal:// server address.
func hostPort(raw string) (string, int, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" || u.Port() == "" {
		return "", 0, ErrNoServerAddress
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return "", 0, ErrNoServerAddress
	}
	return u.Hostname(), port, nil
}

func formatQuery(name, queryType string, res map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** %s query:\n```\n", name, queryType)
	for _, k := range slices.Sorted(maps.Keys(res)) {
		fmt.Fprintf(&b, "%s: %s\n", k, res[k])
	}
	b.WriteString("```")
	return b.String()
}

func (h *Handlers) setServer(ctx context.Context, r *request) (string, error) {
	return r.pug.UseServer(ctx, r.integer("number", 0))
}

func (h *Handlers) controlServer(ctx context.Context, r *request) (string, error) {
	return r.pug.ControlServer(ctx, r.integer("number", 0), r.str("action") == "start")
}

func (h *Handlers) refreshServers(ctx context.Context, r *request) (string, error) {
	return r.pug.RefreshServers(ctx)
}

func (h *Handlers) rotation(_ context.Context, r *request) (string, error) {
	return r.pug.Rotation(), nil
}

func (h *Handlers) addMap(ctx context.Context, r *request) (string, error) {
	return r.pug.AddMap(ctx, r.str("map"))
}

func (h *Handlers) insertMap(ctx context.Context, r *request) (string, error) {
	return r.pug.InsertMap(ctx, r.integer("position", 0), r.str("map"))
}

func (h *Handlers) replaceMap(ctx context.Context, r *request) (string, error) {
	return r.pug.ReplaceMap(ctx, r.integer("number", 0), r.str("map"))
}

func (h *Handlers) removeMap(ctx context.Context, r *request) (string, error) {
	return r.pug.RemoveMap(ctx, r.str("map"))
}
