package facade

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/aeyemap/aeye/internal/apperr"
	"github.com/aeyemap/aeye/internal/dataset"
	"github.com/aeyemap/aeye/internal/lifecycle"
	"github.com/aeyemap/aeye/internal/vectorstore"
)

// fakeStore is a minimal in-memory vectorstore.Store for facade tests:
// each collection is just a slice of rows, searched/scanned linearly.
type fakeStore struct {
	collections map[string][]vectorstore.Row
	missing     map[string]bool // collections to report as absent
}

func newFakeStore() *fakeStore {
	return &fakeStore{collections: map[string][]vectorstore.Row{}, missing: map[string]bool{}}
}

func (s *fakeStore) HasCollection(ctx context.Context, name string) (bool, error) {
	if s.missing[name] {
		return false, nil
	}
	_, ok := s.collections[name]
	return ok, nil
}

func (s *fakeStore) ListCollections(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(s.collections))
	for n := range s.collections {
		names = append(names, n)
	}
	return names, nil
}

func (s *fakeStore) CreateCollection(ctx context.Context, schema vectorstore.Schema, repopulate bool) error {
	s.collections[schema.Name] = nil
	return nil
}

func (s *fakeStore) DropCollection(ctx context.Context, name string) error {
	delete(s.collections, name)
	return nil
}

func (s *fakeStore) InsertChunked(ctx context.Context, name string, rows []vectorstore.Row, batchSize int) error {
	s.collections[name] = append(s.collections[name], rows...)
	return nil
}

func (s *fakeStore) Load(ctx context.Context, name string) error    { return nil }
func (s *fakeStore) Release(ctx context.Context, name string) error { return nil }

func (s *fakeStore) NumEntities(ctx context.Context, name string) (int64, error) {
	if s.missing[name] {
		return 0, errors.New("no such collection")
	}
	return int64(len(s.collections[name])), nil
}

func (s *fakeStore) QueryByPK(ctx context.Context, name string, pks []int64, fields []string) ([]vectorstore.Row, error) {
	if s.missing[name] {
		return nil, errors.New("no such collection")
	}
	want := make(map[int64]bool, len(pks))
	for _, pk := range pks {
		want[pk] = true
	}
	var out []vectorstore.Row
	for _, r := range s.collections[name] {
		if idx, ok := r["index"].(int64); ok && want[idx] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) QueryRange(ctx context.Context, name string, start, end int64, fields []string) ([]vectorstore.Row, error) {
	if s.missing[name] {
		return nil, errors.New("no such collection")
	}
	var out []vectorstore.Row
	for _, r := range s.collections[name] {
		idx, _ := r["index"].(int64)
		if idx >= start && idx < end {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) SearchVector(ctx context.Context, name, field string, query []float32, metric vectorstore.Metric, limit int, fields []string) ([]vectorstore.SearchHit, error) {
	if s.missing[name] {
		return nil, errors.New("no such collection")
	}
	type scored struct {
		row  vectorstore.Row
		dist float64
	}
	var all []scored
	for _, r := range s.collections[name] {
		vec, ok := r[field].([]float32)
		if !ok {
			continue
		}
		all = append(all, scored{row: r, dist: cosineDistance(query, vec)})
	}
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if all[j].dist < all[i].dist {
				all[i], all[j] = all[j], all[i]
			}
		}
	}
	if limit < len(all) {
		all = all[:limit]
	}
	hits := make([]vectorstore.SearchHit, len(all))
	for i, a := range all {
		hits[i] = vectorstore.SearchHit{Row: a.row, Distance: a.dist}
	}
	return hits, nil
}

func (s *fakeStore) StreamEmbeddings(ctx context.Context, name string, batchSize int, fn func(batch []vectorstore.Row) error) error {
	return fn(s.collections[name])
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

var _ vectorstore.Store = (*fakeStore)(nil)

func setup(t *testing.T) (*Facade, *fakeStore, *lifecycle.Registry) {
	t.Helper()
	store := newFakeStore()
	reg := lifecycle.NewRegistry(store)
	ds := dataset.New([]dataset.Dataset{{Name: "paintings"}})
	return New(store, reg, ds, nil), store, reg
}

// seedEmbeddings populates a collection's rows and seeds the lifecycle
// registry with its name — standing in for the Updater tick that would
// discover it in a running server.
func seedEmbeddings(store *fakeStore, reg *lifecycle.Registry, name string, rows []vectorstore.Row) {
	store.collections[name] = rows
	reg.Seed(name)
}

func TestFacadeNeighborsSelfRank1(t *testing.T) {
	f, store, reg := setup(t)
	embeddingsName := "paintings"
	seedEmbeddings(store, reg, embeddingsName, []vectorstore.Row{
		{"index": int64(1), "path": "a.jpg", "x": 0.0, "y": 0.0, "embedding": []float32{1, 0, 0}},
		{"index": int64(2), "path": "b.jpg", "x": 1.0, "y": 0.0, "embedding": []float32{0, 1, 0}},
		{"index": int64(3), "path": "c.jpg", "x": 2.0, "y": 0.0, "embedding": []float32{0.9, 0.1, 0}},
	})

	rows, err := f.Neighbors(context.Background(), "paintings", 1, 2)
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(rows) == 0 || rows[0].Index != 1 {
		t.Fatalf("Neighbors()[0].Index = %v, want 1 (self at rank 1)", rows)
	}
}

func TestFacadeFirstTilesUsesZorderConstant(t *testing.T) {
	f, store, reg := setup(t)
	clustersName := "paintings_zoom_levels_clusters"
	// Seed one row comfortably inside the first-tiles window and one
	// comfortably outside it.
	seedEmbeddings(store, reg, clustersName, []vectorstore.Row{
		{"index": int64(0), "zoom_plus_tile": []float32{0, 0, 0}, "data": "[]"},
		{"index": int64(100000), "zoom_plus_tile": []float32{10, 0, 0}, "data": "[]"},
	})

	tiles, err := f.FirstTiles(context.Background(), "paintings")
	if err != nil {
		t.Fatalf("FirstTiles: %v", err)
	}
	if len(tiles) != 1 {
		t.Fatalf("FirstTiles returned %d tiles, want 1 (only the in-window row)", len(tiles))
	}
	if tiles[0].Index != 0 {
		t.Errorf("FirstTiles()[0].Index = %d, want 0", tiles[0].Index)
	}
}

func TestFacadeUnknownDatasetIsNotFound(t *testing.T) {
	f, _, _ := setup(t)
	_, err := f.CollectionInfo(context.Background(), "nope")
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("KindOf(err) = %v, want KindNotFound", apperr.KindOf(err))
	}
}

func TestFacadeUnseededCollectionIsNotFound(t *testing.T) {
	f, _, _ := setup(t)
	// "paintings" is a known dataset (registered in setup's dataset.Registry)
	// but its collections have never been seeded into the lifecycle
	// registry, matching a dataset the Updater hasn't discovered yet.
	_, err := f.Paths(context.Background(), "paintings", []int64{1})
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("KindOf(err) = %v, want KindNotFound", apperr.KindOf(err))
	}
}

func TestFacadeMissingRowIsNotFound(t *testing.T) {
	f, store, reg := setup(t)
	seedEmbeddings(store, reg, "paintings", nil)
	_, err := f.Paths(context.Background(), "paintings", []int64{42})
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("KindOf(err) = %v, want KindNotFound", apperr.KindOf(err))
	}
}

func TestFacadeStoreErrorIsVectorStoreKind(t *testing.T) {
	f, store, reg := setup(t)
	reg.Seed("paintings")
	store.missing["paintings"] = true
	_, err := f.Paths(context.Background(), "paintings", []int64{1})
	if apperr.KindOf(err) != apperr.KindVectorStore {
		t.Errorf("KindOf(err) = %v, want KindVectorStore", apperr.KindOf(err))
	}
}

func TestFacadeSearchByTextWithoutEncoderIsFatal(t *testing.T) {
	f, store, reg := setup(t)
	seedEmbeddings(store, reg, "paintings", nil)
	_, err := f.SearchByText(context.Background(), "paintings", "a red barn")
	if apperr.KindOf(err) != apperr.KindFatal {
		t.Errorf("KindOf(err) = %v, want KindFatal", apperr.KindOf(err))
	}
}

func TestFacadeListCollectionsUsesLiveRegistry(t *testing.T) {
	f, store, reg := setup(t)
	// "paintings" is built and seeded (as the Updater would do on its next
	// tick); "unbuilt" is only known to the static dataset.Registry and has
	// never been seeded, so it must not appear.
	seedEmbeddings(store, reg, "paintings", nil)
	seedEmbeddings(store, reg, "paintings_zoom_levels_clusters", nil)

	names, err := f.ListCollections(context.Background())
	if err != nil {
		t.Fatalf("ListCollections: %v", err)
	}
	if len(names) != 1 || names[0] != "paintings" {
		t.Fatalf("ListCollections() = %v, want [paintings]", names)
	}
}
