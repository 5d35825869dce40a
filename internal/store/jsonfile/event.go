package jsonfile

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jensholdgaard/assault-pugbot/internal/clock"
	"github.com/jensholdgaard/assault-pugbot/internal/event"
)

// EventStore implements event.Store as an append-only JSON lines file.
type EventStore struct {
	mu       sync.Mutex
	path     string
	clock    clock.Clock
	versions map[string]int
}

// NewEventStore returns a new EventStore writing to path.
func NewEventStore(path string, clk clock.Clock) *EventStore {
	return &EventStore{path: path, clock: clk}
}

func (s *EventStore) readAll() ([]event.Event, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	defer f.Close()

	var out []event.Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e event.Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			// A torn final line from a crash is skipped.
			continue
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading event log: %w", err)
	}
	return out, nil
}

// Append writes events, assigning ids, timestamps and, when unset, the
// next version for each aggregate. An aggregate version may only be used
// once.
func (s *EventStore) Append(_ context.Context, events ...event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.versions == nil {
		existing, err := s.readAll()
		if err != nil {
			return err
		}
		s.versions = make(map[string]int)
		for _, e := range existing {
			s.versions[e.AggregateID] = max(s.versions[e.AggregateID], e.Version)
		}
	}

	next := make(map[string]int, len(events))
	lines := make([]byte, 0, 256*len(events))
	for _, e := range events {
		cur, ok := next[e.AggregateID]
		if !ok {
			cur = s.versions[e.AggregateID]
		}
		switch {
		case e.Version == 0:
			e.Version = cur + 1
		case e.Version <= cur:
			return fmt.Errorf("inserting event (aggregate=%s, version=%d): version already used", e.AggregateID, e.Version)
		}
		next[e.AggregateID] = e.Version
		e.ID = uuid.NewString()
		e.CreatedAt = s.clock.Now().UTC()

		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encoding event: %w", err)
		}
		lines = append(lines, raw...)
		lines = append(lines, '\n')
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening event log: %w", err)
	}
	if _, err := f.Write(lines); err != nil {
		f.Close()
		return fmt.Errorf("appending events: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	for id, v := range next {
		s.versions[id] = v
	}
	return nil
}

func (s *EventStore) Load(_ context.Context, aggregateID string) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return nil, err
	}
	var out []event.Event
	for _, e := range all {
		if e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *EventStore) LoadByType(_ context.Context, eventType event.Type) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return nil, err
	}
	var out []event.Event
	for _, e := range all {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out, nil
}
