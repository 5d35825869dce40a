package gameserver

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jensholdgaard/assault-pugbot/internal/config"
)

var ErrUnknownServer = errors.New("unknown server")

// Server is one game server the pug can be played on.
type Server struct {
	Ref        string
	Name       string
	URL        string
	OnDemand   bool
	LastStatus string
}

// Registry holds the known servers, the one in use and the weekly
// rotation. It is not safe for concurrent use; the owning coordinator
// serialises access.
type Registry struct {
	servers  []Server
	current  int
	rotation []int
}

// NewRegistry builds a registry from configuration. The default server is
// selected when present, otherwise the first.
func NewRegistry(cfg config.GameServerConfig) *Registry {
	r := &Registry{}
	for _, s := range cfg.List {
		r.servers = append(r.servers, Server{Ref: s.Ref, Name: s.Name, URL: s.URL, OnDemand: s.OnDemand})
	}
	if i := r.index(cfg.Default); i >= 0 {
		r.current = i
	}
	for _, n := range cfg.Rotation {
		if n >= 1 && n <= len(r.servers) {
			r.rotation = append(r.rotation, n)
		}
	}
	return r
}

func (r *Registry) index(ref string) int {
	return slices.IndexFunc(r.servers, func(s Server) bool { return s.Ref == ref })
}

// Servers returns a copy of the known servers.
func (r *Registry) Servers() []Server { return slices.Clone(r.servers) }

// Current returns the server in use.
func (r *Registry) Current() Server {
	if len(r.servers) == 0 {
		return Server{}
	}
	return r.servers[r.current]
}

// Use selects the server at the 0-based index. It returns the previously
// selected server and whether the selection changed.
func (r *Registry) Use(index int) (Server, bool, error) {
	if index < 0 || index >= len(r.servers) {
		return Server{}, false, fmt.Errorf("%w: #%d", ErrUnknownServer, index+1)
	}
	prev := r.Current()
	r.current = index
	return prev, prev.Ref != r.servers[index].Ref, nil
}

// UseRef selects the server with ref.
func (r *Registry) UseRef(ref string) (Server, bool, error) {
	i := r.index(ref)
	if i < 0 {
		return Server{}, false, fmt.Errorf("%w: %s", ErrUnknownServer, ref)
	}
	return r.Use(i)
}

// Update records the latest details of a server, adding it when unknown.
func (r *Registry) Update(s Server) {
	if i := r.index(s.Ref); i >= 0 {
		r.servers[i] = s
		return
	}
	r.servers = append(r.servers, s)
}

// Refresh replaces the known servers with the API list, keeping only those
// online or managed on demand. The local list is kept when the API's
// default server is not working. It reports whether the list was replaced.
func (r *Registry) Refresh(list []Info) bool {
	usable := func(i Info) bool { return i.CloudManaged || i.Status.Online() }
	if !slices.ContainsFunc(list, func(i Info) bool { return i.ServerDefault && usable(i) }) {
		return false
	}

	currentRef := r.Current().Ref
	var servers []Server
	for _, i := range list {
		if !usable(i) {
			continue
		}
		servers = append(servers, Server{
			Ref:        i.ServerRef,
			Name:       i.ServerName,
			URL:        i.URL(),
			OnDemand:   i.CloudManaged,
			LastStatus: i.Status.Summary,
		})
	}
	r.servers = servers
	r.current = max(0, r.index(currentRef))
	r.rotation = slices.DeleteFunc(r.rotation, func(n int) bool { return n > len(r.servers) })
	return true
}

// Rotation returns the configured 1-based rotation.
func (r *Registry) Rotation() []int { return slices.Clone(r.rotation) }

// RotationIndex returns the 0-based server index scheduled for the week
// containing now, keyed on year*100 + ISO week.
func (r *Registry) RotationIndex(now time.Time) (int, bool) {
	if len(r.rotation) == 0 {
		return 0, false
	}
	_, week := now.ISOWeek()
	key := now.Year()*100 + week
	return r.rotation[key%len(r.rotation)] - 1, true
}
