package builder

import (
	"context"
	"encoding/json"

	"github.com/hashicorp/go-multierror"

	"github.com/aeyemap/aeye/internal/apperr"
	"github.com/aeyemap/aeye/internal/model"
	"github.com/aeyemap/aeye/internal/vectorstore"
)

func clustersSchema(name string) vectorstore.Schema {
	return vectorstore.Schema{
		Name: name,
		Fields: []vectorstore.Field{
			{Name: "index", Type: vectorstore.FieldInt64, PrimaryKey: true},
			{Name: "zoom_plus_tile", Type: vectorstore.FieldVector, Dim: 3, Metric: vectorstore.MetricL2},
			{Name: "data", Type: vectorstore.FieldJSON},
			{Name: "range", Type: vectorstore.FieldJSON},
		},
	}
}

func imageToTileSchema(name string) vectorstore.Schema {
	return vectorstore.Schema{
		Name: name,
		Fields: []vectorstore.Field{
			{Name: "index", Type: vectorstore.FieldInt64, PrimaryKey: true},
			{Name: "zoom_plus_tile", Type: vectorstore.FieldVector, Dim: 3, Metric: vectorstore.MetricL2},
		},
	}
}

func tileRow(t model.Tile) (vectorstore.Row, error) {
	data, err := json.Marshal(t.Data)
	if err != nil {
		return nil, err
	}
	row := vectorstore.Row{
		"index":          t.Index,
		"zoom_plus_tile": []float32{float32(t.ZoomPlusTile[0]), float32(t.ZoomPlusTile[1]), float32(t.ZoomPlusTile[2])},
		"data":           string(data),
	}
	if t.Range != nil {
		rangeJSON, err := json.Marshal(t.Range)
		if err != nil {
			return nil, err
		}
		row["range"] = string(rangeJSON)
	} else {
		row["range"] = nil
	}
	return row, nil
}

func imageToTileRow(r model.ImageToTile) vectorstore.Row {
	return vectorstore.Row{
		"index":          r.Index,
		"zoom_plus_tile": []float32{float32(r.ZoomPlusTile[0]), float32(r.ZoomPlusTile[1]), float32(r.ZoomPlusTile[2])},
	}
}

// spill bounds how many tile levels stay resident in levels before
// flushing to the store, matching spec.md §4.1's "keep the most recent
// completed level resident" rule. This only bounds the persisted working
// set: Tile still computes every level's representatives in memory
// before Persist ever runs, so it does not by itself keep the whole
// pyramid from being resident during the tiling pass (see DESIGN.md).
type spill struct {
	store      vectorstore.Store
	collection string
	insertSize int
	limit      int

	levels      [][]model.Tile
	pendingRows int
}

func newSpill(store vectorstore.Store, collection string, insertSize, limit int) *spill {
	return &spill{store: store, collection: collection, insertSize: insertSize, limit: limit}
}

func (s *spill) addLevel(ctx context.Context, tiles []model.Tile) error {
	s.levels = append(s.levels, tiles)
	s.pendingRows += len(tiles)
	if s.pendingRows > s.limit {
		return s.flush(ctx, 1)
	}
	return nil
}

// flush inserts every level except the keepLast most recently added ones.
func (s *spill) flush(ctx context.Context, keepLast int) error {
	for len(s.levels) > keepLast {
		level := s.levels[0]
		s.levels = s.levels[1:]
		rows := make([]vectorstore.Row, 0, len(level))
		for _, t := range level {
			row, err := tileRow(t)
			if err != nil {
				return apperr.WrapFatal("builder: encode tile %d: %v", t.Index, err)
			}
			rows = append(rows, row)
		}
		if err := s.store.InsertChunked(ctx, s.collection, rows, s.insertSize); err != nil {
			return apperr.WrapVectorStore(err)
		}
		s.pendingRows -= len(level)
	}
	return nil
}

// Persist writes a Pyramid to the vector store as the Clusters and
// Image-To-Tile collections, per spec.md §4.3's contract. Any failure
// drops both collections and returns a Fatal error — no partial pyramid
// is ever left visible.
func Persist(ctx context.Context, store vectorstore.Store, dataset string, p Pyramid, cfg Config) error {
	cfg = cfg.withDefaults()
	clustersName := model.CollectionName(dataset, model.FamilyClusters)
	imageToTileName := model.CollectionName(dataset, model.FamilyImageToTile)

	abort := func(cause error) error {
		var result *multierror.Error
		result = multierror.Append(result, cause)
		if err := store.DropCollection(ctx, clustersName); err != nil {
			result = multierror.Append(result, err)
		}
		if err := store.DropCollection(ctx, imageToTileName); err != nil {
			result = multierror.Append(result, err)
		}
		return apperr.WrapFatal("tile builder aborted: %v", result.ErrorOrNil())
	}

	if err := store.CreateCollection(ctx, clustersSchema(clustersName), cfg.Repopulate); err != nil {
		return abort(err)
	}

	byLevel := map[int][]model.Tile{}
	var levelOrder []int
	seen := map[int]bool{}
	for _, t := range p.Tiles {
		z := t.Zoom()
		if !seen[z] {
			seen[z] = true
			levelOrder = append(levelOrder, z)
		}
		byLevel[z] = append(byLevel[z], t)
	}

	sp := newSpill(store, clustersName, cfg.InsertSize, cfg.LimitForInsert)
	for _, z := range levelOrder {
		if err := sp.addLevel(ctx, byLevel[z]); err != nil {
			return abort(err)
		}
	}
	if err := sp.flush(ctx, 0); err != nil {
		return abort(err)
	}

	// Image-To-Tile is only created once Clusters has been fully flushed.
	if err := store.CreateCollection(ctx, imageToTileSchema(imageToTileName), cfg.Repopulate); err != nil {
		return abort(err)
	}
	rows := make([]vectorstore.Row, len(p.ImageToTile))
	for i, r := range p.ImageToTile {
		rows[i] = imageToTileRow(r)
	}
	if err := store.InsertChunked(ctx, imageToTileName, rows, cfg.InsertSize); err != nil {
		return abort(err)
	}

	return nil
}
