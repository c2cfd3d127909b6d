// Package builder implements the Tile Builder: it turns a flat set of
// projected embeddings into a zoom pyramid of Representative sets plus an
// Image-To-Tile index, and persists both to a vectorstore.Store.
//
// The algorithm is ported from original_source's
// create_and_populate_clusters_collection.py (load_vectors_from_collection,
// create_tiling, process_tile, create_image_to_tile_collection), adapted
// to Go's explicit-error-return style the way the teacher's
// internal/service package structures its tiler/source/layer pipeline.
package builder

import (
	"context"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aeyemap/aeye/internal/apperr"
	"github.com/aeyemap/aeye/internal/builder/composite"
	"github.com/aeyemap/aeye/internal/model"
	"github.com/aeyemap/aeye/internal/vectorstore"
)

// Config tunes the builder. Zero-valued fields are replaced by
// DefaultConfig's values in Tile and Persist.
type Config struct {
	MaxPerTile     int
	NumClusters    int
	InsertSize     int
	LimitForInsert int
	Repopulate     bool
	MergeClusters  bool
	MergeThreshold float64
	KMeansNInit    int
	KMeansMaxIter  int
	Rand           *rand.Rand

	// Images and ImagesDir gate the debug PNG tile composites named by
	// spec.md §6.3's --images flag; skipped entirely when Images is false.
	Images    bool
	ImagesDir string
}

// DefaultConfig returns the tunables from spec.md §6.4.
func DefaultConfig() Config {
	return Config{
		MaxPerTile:     30,
		NumClusters:    30,
		InsertSize:     500,
		LimitForInsert: 1_000_000,
		MergeThreshold: 0.8,
		KMeansNInit:    5,
		KMeansMaxIter:  300,
		ImagesDir:      ".data/debug/tiles",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPerTile <= 0 {
		c.MaxPerTile = d.MaxPerTile
	}
	if c.NumClusters <= 0 {
		c.NumClusters = d.NumClusters
	}
	if c.InsertSize <= 0 {
		c.InsertSize = d.InsertSize
	}
	if c.LimitForInsert <= 0 {
		c.LimitForInsert = d.LimitForInsert
	}
	if c.MergeThreshold <= 0 {
		c.MergeThreshold = d.MergeThreshold
	}
	if c.KMeansNInit <= 0 {
		c.KMeansNInit = d.KMeansNInit
	}
	if c.KMeansMaxIter <= 0 {
		c.KMeansMaxIter = d.KMeansMaxIter
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(0))
	}
	if c.ImagesDir == "" {
		c.ImagesDir = d.ImagesDir
	}
	return c
}

// Pyramid is the in-memory product of Tile: the full zoom pyramid and the
// image-to-tile index, with no store dependency. Kept separate from
// Persist so the algorithm is testable without a vectorstore.Store.
type Pyramid struct {
	MaxZoom     int
	Tiles       []model.Tile
	ImageToTile []model.ImageToTile
}

// Result summarizes a completed build for the CLI/API caller.
type Result struct {
	MaxZoom    int
	TileCount  int
	ImageCount int
}

// Build streams the Embeddings Collection for dataset out of store, tiles
// it, and persists the result as the Clusters and Image-To-Tile
// collections. On any failure it rolls back by dropping both collections.
func Build(ctx context.Context, store vectorstore.Store, dataset string, cfg Config) (Result, error) {
	cfg = cfg.withDefaults()

	embeddingsName := model.CollectionName(dataset, model.FamilyEmbeddings)
	var rows []model.EmbeddingRow

	// A stream failure is treated as transient (a network blip against the
	// vector store) and retried once with a short backoff before the build
	// is given up on as Fatal, per spec.md's retry-once policy for
	// Transient errors.
	streamOnce := func() error {
		rows = nil
		return store.StreamEmbeddings(ctx, embeddingsName, 16384, func(batch []vectorstore.Row) error {
			for _, r := range batch {
				rows = append(rows, embeddingRowFromVectorRow(r))
			}
			return nil
		})
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(200*time.Millisecond), 1)
	if err := backoff.Retry(streamOnce, policy); err != nil {
		return Result{}, apperr.WrapFatal("tile builder: stream %q failed after one retry: %v", embeddingsName, err)
	}

	pyramid, err := Tile(rows, cfg)
	if err != nil {
		return Result{}, err
	}

	if cfg.MergeClusters {
		MergeAdjacentClusters(pyramid.Tiles, cfg.MergeThreshold)
	}

	if cfg.Images {
		for _, t := range pyramid.Tiles {
			if err := composite.WriteTile(t, composite.Options{Dir: cfg.ImagesDir}); err != nil {
				return Result{}, apperr.WrapFatal("tile builder: write debug composite for tile %d: %v", t.Index, err)
			}
		}
	}

	if err := Persist(ctx, store, dataset, pyramid, cfg); err != nil {
		return Result{}, err
	}

	return Result{
		MaxZoom:    pyramid.MaxZoom,
		TileCount:  len(pyramid.Tiles),
		ImageCount: len(rows),
	}, nil
}

func embeddingRowFromVectorRow(r vectorstore.Row) model.EmbeddingRow {
	row := model.EmbeddingRow{}
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
	if v, ok := r["width"].(int64); ok {
		row.Width = int(v)
	}
	if v, ok := r["height"].(int64); ok {
		row.Height = int(v)
	}
	return row
}
