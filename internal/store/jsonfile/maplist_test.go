package jsonfile_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jensholdgaard/assault-pugbot/internal/maps"
	"github.com/jensholdgaard/assault-pugbot/internal/store/jsonfile"
)

func TestMapListRepo_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ratings.maps.json")
	repo := jsonfile.NewMapListRepo(path)

	if _, err := repo.Load(ctx, "chan-1"); !errors.Is(err, maps.ErrNoSavedList) {
		t.Fatalf("Load() before save error = %v, want ErrNoSavedList", err)
	}

	if err := repo.Save(ctx, "chan-1", []string{"AS-Rook", "AS-Bridge"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := repo.Save(ctx, "chan-2", []string{"AS-Frigate"}); err != nil {
		t.Fatalf("Save(chan-2) error = %v", err)
	}
	if err := repo.Save(ctx, "chan-1", []string{"AS-Rook", "AS-Mazon", "AS-Bridge"}); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	// A fresh repo reads what the first one wrote.
	reopened := jsonfile.NewMapListRepo(path)
	tests := []struct {
		channel string
		want    []string
	}{
		{"chan-1", []string{"AS-Rook", "AS-Mazon", "AS-Bridge"}},
		{"chan-2", []string{"AS-Frigate"}},
	}
	for _, tt := range tests {
		got, err := reopened.Load(ctx, tt.channel)
		if err != nil {
			t.Fatalf("Load(%s) error = %v", tt.channel, err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Load(%s) mismatch (-want +got):\n%s", tt.channel, diff)
		}
	}
}

func TestMapListRepo_UnreadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ratings.maps.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	repo := jsonfile.NewMapListRepo(path)
	if _, err := repo.Load(context.Background(), "chan-1"); err == nil || errors.Is(err, maps.ErrNoSavedList) {
		t.Errorf("Load() error = %v, want a decode error", err)
	}
}
