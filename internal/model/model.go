// Package model defines the entity shapes shared across the builder,
// vector store, lifecycle, and facade packages.
package model

// EmbeddingRow is one row streamed out of an Embeddings Collection.
type EmbeddingRow struct {
	Index     int64
	Path      string
	X, Y      float64
	Width     int
	Height    int
	Embedding []float32
}

// BoundingBox is the axis-aligned extent of tile (0,0,0), stored only on
// the root tile.
type BoundingBox struct {
	XMin float64 `json:"x_min"`
	XMax float64 `json:"x_max"`
	YMin float64 `json:"y_min"`
	YMax float64 `json:"y_max"`
}

// Representative is a single image standing in for a cluster of images
// within a tile at a given zoom level.
type Representative struct {
	Index      int64  `json:"index"`
	Path       string `json:"path"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Zoom       int    `json:"zoom"`
	InPrevious bool   `json:"in_previous"`
	// MergeGroup is non-zero when the cluster-merge post-pass (gated by
	// --merge-clusters) groups this representative with one in an
	// adjacent tile; 0 means ungrouped.
	MergeGroup int64 `json:"merge_group,omitempty"`
}

// Tile is one node of the zoom pyramid. Range is non-nil only for the
// root tile (0,0,0).
type Tile struct {
	Index        int64            `json:"index"`
	ZoomPlusTile [3]float64       `json:"zoom_plus_tile"`
	Data         []Representative `json:"data"`
	Range        *BoundingBox     `json:"range,omitempty"`
}

// Zoom, TileX, TileY split the packed ZoomPlusTile vector back into ints.
func (t Tile) Zoom() int  { return int(t.ZoomPlusTile[0]) }
func (t Tile) TileX() int { return int(t.ZoomPlusTile[1]) }
func (t Tile) TileY() int { return int(t.ZoomPlusTile[2]) }

// ImageToTile maps an image index to the coarsest tile in which it first
// appears as a representative.
type ImageToTile struct {
	Index        int64      `json:"index"`
	ZoomPlusTile [3]float64 `json:"zoom_plus_tile"`
}

// CollectionInfo is the summary metadata the facade returns for a dataset.
type CollectionInfo struct {
	NumberOfEntities int `json:"number_of_entities"`
	ZoomLevels       int `json:"zoom_levels"`
}

// CollectionFamily names the three collection suffixes a dataset produces.
type CollectionFamily string

const (
	FamilyEmbeddings  CollectionFamily = ""
	FamilyClusters    CollectionFamily = "_zoom_levels_clusters"
	FamilyImageToTile CollectionFamily = "_image_to_tile"
)

// CollectionName returns the storage name for dataset+family.
func CollectionName(dataset string, family CollectionFamily) string {
	return dataset + string(family)
}
