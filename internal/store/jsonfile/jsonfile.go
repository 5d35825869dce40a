// Package jsonfile provides a store.Driver that keeps every ranked mode in
// one JSON document on disk, with the saved map lists and the event log as
// files beside it.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jensholdgaard/assault-pugbot/internal/clock"
	"github.com/jensholdgaard/assault-pugbot/internal/config"
	"github.com/jensholdgaard/assault-pugbot/internal/rating"
	"github.com/jensholdgaard/assault-pugbot/internal/store"
)

func init() {
	store.Register("file", openFile)
}

// openFile is the store.Driver for the "file" backend.
func openFile(_ context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ratings directory: %w", err)
	}
	ratings := NewRatingRepo(cfg.Path, clk)
	return &store.Repositories{
		Ratings:  ratings,
		Events:   NewEventStore(siblingPath(cfg.Path, ".events.jsonl"), clk),
		MapLists: NewMapListRepo(siblingPath(cfg.Path, ".maps.json")),
		Closer:   store.CloserFunc(func() error { return nil }),
		Ping:     ratings.Ping,
	}, nil
}

// siblingPath swaps the extension of the ratings file for suffix.
func siblingPath(ratingsPath, suffix string) string {
	ext := filepath.Ext(ratingsPath)
	return strings.TrimSuffix(ratingsPath, ext) + suffix
}

// document is the on-disk layout of the ratings file.
type document struct {
	SyncAPI     json.RawMessage `json:"syncapi,omitempty"`
	RankedGames []*rating.Block `json:"rankedgames"`
	SaveDate    rating.Time     `json:"savedate"`
}

// RatingRepo implements rating.Repository on a single JSON file. Writes
// replace the file atomically and the last write wins.
type RatingRepo struct {
	mu    sync.Mutex
	path  string
	clock clock.Clock
}

// NewRatingRepo returns a new RatingRepo for the file at path.
func NewRatingRepo(path string, clk clock.Clock) *RatingRepo {
	return &RatingRepo{path: path, clock: clk}
}

// read loads the document. A missing file is an empty document; so is one
// that does not parse, which is reported through corrupt.
func (r *RatingRepo) read() (doc *document, corrupt bool, err error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &document{}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading ratings file: %w", err)
	}
	doc = &document{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return doc, false, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return &document{}, true, nil
	}
	return doc, false, nil
}

func (r *RatingRepo) Load(_ context.Context, mode string) (*rating.Block, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, _, err := r.read()
	if err != nil {
		return nil, err
	}
	for _, b := range doc.RankedGames {
		if b != nil && strings.EqualFold(b.Mode, mode) {
			return b, nil
		}
	}
	return nil, rating.ErrNotFound
}

func (r *RatingRepo) Save(_ context.Context, b *rating.Block) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, corrupt, err := r.read()
	if err != nil {
		return err
	}
	if corrupt {
		// Keep the unreadable file for manual recovery rather than
		// overwriting it.
		aside := fmt.Sprintf("%s.corrupt-%d", r.path, r.clock.Now().Unix())
		if err := os.Rename(r.path, aside); err != nil {
			return fmt.Errorf("moving aside unreadable ratings file: %w", err)
		}
	}

	replaced := false
	for i, existing := range doc.RankedGames {
		if existing != nil && strings.EqualFold(existing.Mode, b.Mode) {
			doc.RankedGames[i] = b
			replaced = true
			break
		}
	}
	if !replaced {
		doc.RankedGames = append(doc.RankedGames, b)
	}
	doc.SaveDate = rating.At(r.clock.Now())

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding ratings: %w", err)
	}
	return writeAtomic(r.path, data)
}

// Ping reports whether the ratings directory is reachable.
func (r *RatingRepo) Ping(_ context.Context) error {
	info, err := os.Stat(filepath.Dir(r.path))
	if err != nil {
		return fmt.Errorf("checking ratings directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("ratings path parent %s is not a directory", filepath.Dir(r.path))
	}
	return nil
}

// writeAtomic writes data to a temporary file in the target directory and
// renames it over path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}
