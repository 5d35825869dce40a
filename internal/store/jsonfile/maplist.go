package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"sync"

	"github.com/jensholdgaard/assault-pugbot/internal/maps"
)

// MapListRepo implements maps.Repository as one JSON object of channel to
// map list.
type MapListRepo struct {
	mu   sync.Mutex
	path string
}

// NewMapListRepo returns a new MapListRepo for the file at path.
func NewMapListRepo(path string) *MapListRepo {
	return &MapListRepo{path: path}
}

func (r *MapListRepo) read() (map[string][]string, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading map lists: %w", err)
	}
	lists := map[string][]string{}
	if err := json.Unmarshal(data, &lists); err != nil {
		return nil, fmt.Errorf("decoding map lists: %w", err)
	}
	return lists, nil
}

func (r *MapListRepo) Load(_ context.Context, channel string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lists, err := r.read()
	if err != nil {
		return nil, err
	}
	list, ok := lists[channel]
	if !ok {
		return nil, maps.ErrNoSavedList
	}
	return list, nil
}

func (r *MapListRepo) Save(_ context.Context, channel string, list []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lists, err := r.read()
	if err != nil {
		return err
	}
	lists[channel] = slices.Clone(list)

	data, err := json.MarshalIndent(lists, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding map lists: %w", err)
	}
	return writeAtomic(r.path, data)
}
