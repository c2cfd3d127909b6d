// Package facade implements the Query Facade: the eight read-only
// operations the HTTP layer exposes, each resolving its collection
// through the Lifecycle Controller and translating vector-store results
// into the model types the API layer serializes.
//
// Grounded on original_source's app/database/gets.py
// (get_image_info_from_text_embedding, get_tiles, get_tile_from_image,
// get_paths_from_indexes, get_neighbors, get_first_tiles) and
// app/dependencies.py's DatasetCollectionInfoGetter, rendered in the
// teacher's huma-handler style: typed inputs, explicit error returns.
package facade

import (
	"context"
	"encoding/json"

	"github.com/aeyemap/aeye/internal/apperr"
	"github.com/aeyemap/aeye/internal/dataset"
	"github.com/aeyemap/aeye/internal/lifecycle"
	"github.com/aeyemap/aeye/internal/model"
	"github.com/aeyemap/aeye/internal/vectorstore"
	"github.com/aeyemap/aeye/internal/zorder"
)

// TextEncoder turns free text into the same 512-d embedding space the
// Embeddings Collection is indexed under. No concrete implementation
// ships in this repo — it is the out-of-scope image/text encoder spec.md
// §1 names as an external collaborator.
type TextEncoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// Facade is the Query Facade. It never writes to the vector store.
type Facade struct {
	store    vectorstore.Store
	registry *lifecycle.Registry
	datasets *dataset.Registry
	encoder  TextEncoder
}

// New returns a Facade over store, with collection residency governed by
// registry and dataset names resolved through datasets. encoder may be
// nil; SearchByText returns apperr.Fatal if it's nil and called.
func New(store vectorstore.Store, registry *lifecycle.Registry, datasets *dataset.Registry, encoder TextEncoder) *Facade {
	return &Facade{store: store, registry: registry, datasets: datasets, encoder: encoder}
}

// ListCollections returns every dataset name the Updater has discovered
// live in the vector store, deduplicated from its per-family collection
// names (spec.md §4.5 resolves list_collections() to "Updater output",
// not the static dataset registry, so a dataset built by a separate
// `aeye build` process while this server is running shows up here as
// soon as the next Updater tick seeds the lifecycle registry — no
// restart and no YAML reload required).
func (f *Facade) ListCollections(ctx context.Context) ([]string, error) {
	return f.registry.DatasetNames(), nil
}

// CollectionInfo returns the entity count and zoom-level depth of
// dataset's Embeddings Collection.
func (f *Facade) CollectionInfo(ctx context.Context, dsName string) (model.CollectionInfo, error) {
	if _, err := f.datasets.Get(dsName); err != nil {
		return model.CollectionInfo{}, err
	}
	embeddingsName := model.CollectionName(dsName, model.FamilyEmbeddings)
	if err := f.access(ctx, embeddingsName); err != nil {
		return model.CollectionInfo{}, err
	}

	n, err := f.store.NumEntities(ctx, embeddingsName)
	if err != nil {
		return model.CollectionInfo{}, apperr.WrapVectorStore(err)
	}

	clustersName := model.CollectionName(dsName, model.FamilyClusters)
	if err := f.access(ctx, clustersName); err != nil {
		return model.CollectionInfo{}, err
	}
	rows, err := f.store.QueryRange(ctx, clustersName, 0, 1<<62, []string{"zoom_plus_tile"})
	if err != nil {
		return model.CollectionInfo{}, apperr.WrapVectorStore(err)
	}
	zoomLevels := 0
	for _, r := range rows {
		if z, ok := zoomOf(r); ok && z+1 > zoomLevels {
			zoomLevels = z + 1
		}
	}

	return model.CollectionInfo{NumberOfEntities: int(n), ZoomLevels: zoomLevels}, nil
}

func zoomOf(r vectorstore.Row) (int, bool) {
	v, ok := r["zoom_plus_tile"]
	if !ok {
		return 0, false
	}
	switch vec := v.(type) {
	case []float32:
		if len(vec) > 0 {
			return int(vec[0]), true
		}
	case []float64:
		if len(vec) > 0 {
			return int(vec[0]), true
		}
	}
	return 0, false
}

// SearchByText encodes text and returns the nearest representative in
// dataset by cosine distance.
func (f *Facade) SearchByText(ctx context.Context, dsName, text string) (model.Representative, error) {
	if f.encoder == nil {
		return model.Representative{}, apperr.WrapFatal("facade: no text encoder configured")
	}
	if _, err := f.datasets.Get(dsName); err != nil {
		return model.Representative{}, err
	}
	embeddingsName := model.CollectionName(dsName, model.FamilyEmbeddings)
	if err := f.access(ctx, embeddingsName); err != nil {
		return model.Representative{}, err
	}

	vec, err := f.encoder.Encode(ctx, text)
	if err != nil {
		return model.Representative{}, apperr.WrapTransient(err)
	}

	hits, err := f.store.SearchVector(ctx, embeddingsName, "embedding", vec, vectorstore.MetricCosine, 1, nil)
	if err != nil {
		return model.Representative{}, apperr.WrapVectorStore(err)
	}
	if len(hits) == 0 {
		return model.Representative{}, apperr.NewNotFound("facade: no match for text query in %q", dsName)
	}
	return representativeFromRow(hits[0].Row), nil
}

// GetTiles fetches tiles by primary key from dataset's Clusters
// Collection.
func (f *Facade) GetTiles(ctx context.Context, dsName string, indexes []int64) ([]model.Tile, error) {
	if _, err := f.datasets.Get(dsName); err != nil {
		return nil, err
	}
	clustersName := model.CollectionName(dsName, model.FamilyClusters)
	if err := f.access(ctx, clustersName); err != nil {
		return nil, err
	}
	rows, err := f.store.QueryByPK(ctx, clustersName, indexes, nil)
	if err != nil {
		return nil, apperr.WrapVectorStore(err)
	}
	if len(rows) == 0 {
		return nil, apperr.NewNotFound("facade: no tiles found for indexes %v in %q", indexes, dsName)
	}
	tiles := make([]model.Tile, len(rows))
	for i, r := range rows {
		t, err := tileFromRow(r)
		if err != nil {
			return nil, apperr.WrapVectorStore(err)
		}
		tiles[i] = t
	}
	return tiles, nil
}

// ImageToTile resolves the coarsest tile an image first appears in.
func (f *Facade) ImageToTile(ctx context.Context, dsName string, imageIndex int64) (model.ImageToTile, error) {
	if _, err := f.datasets.Get(dsName); err != nil {
		return model.ImageToTile{}, err
	}
	name := model.CollectionName(dsName, model.FamilyImageToTile)
	if err := f.access(ctx, name); err != nil {
		return model.ImageToTile{}, err
	}
	rows, err := f.store.QueryByPK(ctx, name, []int64{imageIndex}, nil)
	if err != nil {
		return model.ImageToTile{}, apperr.WrapVectorStore(err)
	}
	if len(rows) == 0 {
		return model.ImageToTile{}, apperr.NewNotFound("facade: no image-to-tile row for image %d in %q", imageIndex, dsName)
	}
	zt, _ := rows[0]["zoom_plus_tile"].([]float32)
	var out model.ImageToTile
	out.Index = imageIndex
	if len(zt) == 3 {
		out.ZoomPlusTile = [3]float64{float64(zt[0]), float64(zt[1]), float64(zt[2])}
	}
	return out, nil
}

// Paths fetches the image path for each index from dataset's Embeddings
// Collection.
func (f *Facade) Paths(ctx context.Context, dsName string, indexes []int64) ([]model.EmbeddingRow, error) {
	if _, err := f.datasets.Get(dsName); err != nil {
		return nil, err
	}
	name := model.CollectionName(dsName, model.FamilyEmbeddings)
	if err := f.access(ctx, name); err != nil {
		return nil, err
	}
	rows, err := f.store.QueryByPK(ctx, name, indexes, []string{"index", "path"})
	if err != nil {
		return nil, apperr.WrapVectorStore(err)
	}
	if len(rows) == 0 {
		return nil, apperr.NewNotFound("facade: no images found for indexes %v in %q", indexes, dsName)
	}
	out := make([]model.EmbeddingRow, len(rows))
	for i, r := range rows {
		out[i] = embeddingRowFromFacadeRow(r)
	}
	return out, nil
}

// Neighbors returns the k nearest embeddings to imageIndex by cosine
// distance, including imageIndex itself at rank 1 (E6).
func (f *Facade) Neighbors(ctx context.Context, dsName string, imageIndex int64, k int) ([]model.EmbeddingRow, error) {
	if _, err := f.datasets.Get(dsName); err != nil {
		return nil, err
	}
	name := model.CollectionName(dsName, model.FamilyEmbeddings)
	if err := f.access(ctx, name); err != nil {
		return nil, err
	}

	self, err := f.store.QueryByPK(ctx, name, []int64{imageIndex}, nil)
	if err != nil {
		return nil, apperr.WrapVectorStore(err)
	}
	if len(self) == 0 {
		return nil, apperr.NewNotFound("facade: no image %d in %q", imageIndex, dsName)
	}
	vec, ok := self[0]["embedding"].([]float32)
	if !ok {
		return nil, apperr.WrapFatal("facade: image %d has no embedding vector", imageIndex)
	}

	hits, err := f.store.SearchVector(ctx, name, "embedding", vec, vectorstore.MetricCosine, k, nil)
	if err != nil {
		return nil, apperr.WrapVectorStore(err)
	}
	out := make([]model.EmbeddingRow, len(hits))
	for i, h := range hits {
		out[i] = embeddingRowFromFacadeRow(h.Row)
	}
	return out, nil
}

// FirstTiles returns the first zorder.FirstTilesCount tile records of
// dataset's Clusters Collection: the coarsest levels of the pyramid,
// cheap enough to ship to a client on initial page load.
func (f *Facade) FirstTiles(ctx context.Context, dsName string) ([]model.Tile, error) {
	if _, err := f.datasets.Get(dsName); err != nil {
		return nil, err
	}
	name := model.CollectionName(dsName, model.FamilyClusters)
	if err := f.access(ctx, name); err != nil {
		return nil, err
	}
	rows, err := f.store.QueryRange(ctx, name, 0, zorder.FirstTilesCount(), nil)
	if err != nil {
		return nil, apperr.WrapVectorStore(err)
	}
	tiles := make([]model.Tile, 0, len(rows))
	for _, r := range rows {
		t, err := tileFromRow(r)
		if err != nil {
			return nil, apperr.WrapVectorStore(err)
		}
		tiles = append(tiles, t)
	}
	return tiles, nil
}

func (f *Facade) access(ctx context.Context, collection string) error {
	if err := f.registry.Access(ctx, collection); err != nil {
		// registry.Access itself returns apperr.NotFound for a collection
		// the Updater hasn't discovered yet; propagate that Kind rather
		// than flattening it into a VectorStore error.
		if apperr.KindOf(err) == apperr.KindNotFound {
			return err
		}
		return apperr.WrapVectorStore(err)
	}
	return nil
}

func tileFromRow(r vectorstore.Row) (model.Tile, error) {
	var t model.Tile
	if v, ok := r["index"].(int64); ok {
		t.Index = v
	}
	if zt, ok := r["zoom_plus_tile"].([]float32); ok && len(zt) == 3 {
		t.ZoomPlusTile = [3]float64{float64(zt[0]), float64(zt[1]), float64(zt[2])}
	}
	if data, ok := r["data"].(string); ok && data != "" {
		if err := json.Unmarshal([]byte(data), &t.Data); err != nil {
			return model.Tile{}, err
		}
	}
	if rng, ok := r["range"].(string); ok && rng != "" {
		var bb model.BoundingBox
		if err := json.Unmarshal([]byte(rng), &bb); err != nil {
			return model.Tile{}, err
		}
		t.Range = &bb
	}
	return t, nil
}

func representativeFromRow(r vectorstore.Row) model.Representative {
	var rep model.Representative
	if v, ok := r["index"].(int64); ok {
		rep.Index = v
	}
	if v, ok := r["path"].(string); ok {
		rep.Path = v
	}
	if v, ok := r["x"].(float64); ok {
		rep.X = v
	}
	if v, ok := r["y"].(float64); ok {
		rep.Y = v
	}
	return rep
}

func embeddingRowFromFacadeRow(r vectorstore.Row) model.EmbeddingRow {
	var row model.EmbeddingRow
	if v, ok := r["index"].(int64); ok {
		row.Index = v
	}
	if v, ok := r["path"].(string); ok {
		row.Path = v
	}
	if v, ok := r["x"].(float64); ok {
		row.X = v
	}
	if v, ok := r["y"].(float64); ok {
		row.Y = v
	}
	return row
}
