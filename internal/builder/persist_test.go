package builder

import (
	"context"
	"errors"
	"testing"

	"github.com/aeyemap/aeye/internal/vectorstore"
)

// memStore is a minimal in-memory vectorstore.Store for persistence
// tests; failAtCall, if >0, makes the Nth call to InsertChunked fail.
type memStore struct {
	vectorstore.Store
	tables      map[string]bool
	insertCalls int
	failAtCall  int
}

func newMemStore() *memStore {
	return &memStore{tables: map[string]bool{}}
}

func (m *memStore) CreateCollection(ctx context.Context, schema vectorstore.Schema, repopulate bool) error {
	m.tables[schema.Name] = true
	return nil
}

func (m *memStore) DropCollection(ctx context.Context, name string) error {
	delete(m.tables, name)
	return nil
}

func (m *memStore) InsertChunked(ctx context.Context, name string, rows []vectorstore.Row, batchSize int) error {
	m.insertCalls++
	if m.failAtCall != 0 && m.insertCalls == m.failAtCall {
		return errors.New("simulated insert failure")
	}
	return nil
}

func TestPersistRollsBackOnInsertFailure(t *testing.T) {
	rows := uniformGrid61()
	cfg := DefaultConfig()
	cfg.MaxPerTile = 30
	p, err := Tile(rows, cfg)
	if err != nil {
		t.Fatalf("Tile: %v", err)
	}

	store := newMemStore()
	store.failAtCall = 2 // level 0's insert succeeds, level 1's insert fails

	err = Persist(context.Background(), store, "paintings", p, cfg)
	if err == nil {
		t.Fatal("expected Persist to return an error")
	}

	clustersName := "paintings_zoom_levels_clusters"
	imageToTileName := "paintings_image_to_tile"
	if store.tables[clustersName] {
		t.Errorf("clusters collection %q still present after rollback", clustersName)
	}
	if store.tables[imageToTileName] {
		t.Errorf("image-to-tile collection %q still present after rollback", imageToTileName)
	}
}

func TestPersistSucceeds(t *testing.T) {
	rows := rowsAt([][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {0.5, 0.5}})
	cfg := DefaultConfig()
	p, err := Tile(rows, cfg)
	if err != nil {
		t.Fatalf("Tile: %v", err)
	}

	store := newMemStore()
	if err := Persist(context.Background(), store, "paintings", p, cfg); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if !store.tables["paintings_zoom_levels_clusters"] {
		t.Error("expected clusters collection to exist")
	}
	if !store.tables["paintings_image_to_tile"] {
		t.Error("expected image-to-tile collection to exist")
	}
}
