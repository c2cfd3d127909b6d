package builder

import (
	"testing"

	"github.com/aeyemap/aeye/internal/model"
)

func rowsAt(coords [][2]float64) []model.EmbeddingRow {
	rows := make([]model.EmbeddingRow, len(coords))
	for i, c := range coords {
		rows[i] = model.EmbeddingRow{Index: int64(i), Path: "img", X: c[0], Y: c[1]}
	}
	return rows
}

func TestTileE1NoSplit(t *testing.T) {
	rows := rowsAt([][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {0.5, 0.5}})
	cfg := DefaultConfig()
	p, err := Tile(rows, cfg)
	if err != nil {
		t.Fatalf("Tile: %v", err)
	}
	if p.MaxZoom != 0 {
		t.Fatalf("MaxZoom = %d, want 0", p.MaxZoom)
	}
	if len(p.Tiles) != 1 {
		t.Fatalf("len(Tiles) = %d, want 1", len(p.Tiles))
	}
	root := p.Tiles[0]
	if root.Zoom() != 0 || root.TileX() != 0 || root.TileY() != 0 {
		t.Fatalf("root coords = (%d,%d,%d), want (0,0,0)", root.Zoom(), root.TileX(), root.TileY())
	}
	if len(root.Data) != 5 {
		t.Fatalf("len(root.Data) = %d, want 5", len(root.Data))
	}
	for _, r := range root.Data {
		if r.InPrevious {
			t.Errorf("representative %d: InPrevious = true, want false", r.Index)
		}
	}
	if root.Range == nil {
		t.Fatal("root.Range is nil, want the corpus bounding box")
	}
	if root.Range.XMin != 0 || root.Range.XMax != 1 || root.Range.YMin != 0 || root.Range.YMax != 1 {
		t.Fatalf("root.Range = %+v, want {0,1,0,1}", *root.Range)
	}
}

// uniformGrid61 lays 61 points roughly uniformly over [0,1]^2: an 8x8
// grid (64 cells) with the last 3 cells left empty.
func uniformGrid61() []model.EmbeddingRow {
	var coords [][2]float64
	n := 0
	for i := 0; i < 8 && n < 61; i++ {
		for j := 0; j < 8 && n < 61; j++ {
			x := (float64(i) + 0.5) / 8
			y := (float64(j) + 0.5) / 8
			coords = append(coords, [2]float64{x, y})
			n++
		}
	}
	return rowsAt(coords)
}

func TestTileE2ForceSplit(t *testing.T) {
	rows := uniformGrid61()
	cfg := DefaultConfig()
	cfg.MaxPerTile = 30
	p, err := Tile(rows, cfg)
	if err != nil {
		t.Fatalf("Tile: %v", err)
	}
	if p.MaxZoom != 1 {
		t.Fatalf("MaxZoom = %d, want 1", p.MaxZoom)
	}
	if len(p.Tiles) != 5 {
		t.Fatalf("len(Tiles) = %d, want 5 (1 parent + 4 children)", len(p.Tiles))
	}

	var root *model.Tile
	var children []model.Tile
	for i, tl := range p.Tiles {
		if tl.Zoom() == 0 {
			root = &p.Tiles[i]
		} else {
			children = append(children, tl)
		}
	}
	if root == nil {
		t.Fatal("no root tile found")
	}
	if len(root.Data) != 30 {
		t.Fatalf("len(root.Data) = %d, want 30", len(root.Data))
	}
	if len(children) != 4 {
		t.Fatalf("len(children) = %d, want 4", len(children))
	}

	// property 3 / E2: every root representative appears in exactly one
	// child, with in_previous = true there.
	for _, rep := range root.Data {
		count := 0
		for _, c := range children {
			for _, cr := range c.Data {
				if cr.Index == rep.Index {
					count++
					if !cr.InPrevious {
						t.Errorf("rep %d in child (%d,%d): InPrevious = false, want true", rep.Index, c.TileX(), c.TileY())
					}
				}
			}
		}
		if count != 1 {
			t.Errorf("rep %d appears in %d children, want exactly 1", rep.Index, count)
		}
	}

	// property 1: partition completeness across children.
	seen := map[int64]int{}
	for _, c := range children {
		for _, r := range c.Data {
			seen[r.Index]++
		}
	}
	if len(seen) != len(rows) {
		t.Errorf("children cover %d distinct images, want %d", len(seen), len(rows))
	}
	for idx, n := range seen {
		if n != 1 {
			t.Errorf("image %d appears in %d children, want exactly 1", idx, n)
		}
	}
}

func TestTilePropertyMaxPerTileBound(t *testing.T) {
	rows := uniformGrid61()
	cfg := DefaultConfig()
	cfg.MaxPerTile = 30
	p, err := Tile(rows, cfg)
	if err != nil {
		t.Fatalf("Tile: %v", err)
	}
	for _, tl := range p.Tiles {
		if len(tl.Data) > cfg.MaxPerTile {
			t.Errorf("tile (%d,%d,%d) has %d representatives, exceeds MaxPerTile=%d", tl.Zoom(), tl.TileX(), tl.TileY(), len(tl.Data), cfg.MaxPerTile)
		}
	}
}

func TestTileE5ImageToTileCoarsestRule(t *testing.T) {
	rows := uniformGrid61()
	cfg := DefaultConfig()
	cfg.MaxPerTile = 30
	p, err := Tile(rows, cfg)
	if err != nil {
		t.Fatalf("Tile: %v", err)
	}

	var root model.Tile
	for _, tl := range p.Tiles {
		if tl.Zoom() == 0 {
			root = tl
		}
	}
	rootRepIndex := root.Data[0].Index

	var rootAssignment *model.ImageToTile
	for i, r := range p.ImageToTile {
		if r.Index == rootRepIndex {
			rootAssignment = &p.ImageToTile[i]
		}
	}
	if rootAssignment == nil {
		t.Fatalf("no image_to_tile row for root representative %d", rootRepIndex)
	}
	if rootAssignment.ZoomPlusTile != [3]float64{0, 0, 0} {
		t.Errorf("root representative assigned to %v, want (0,0,0)", rootAssignment.ZoomPlusTile)
	}

	// A leaf image that is not a root representative must be assigned at
	// z=1 (the only deeper level in this corpus).
	rootReps := map[int64]bool{}
	for _, r := range root.Data {
		rootReps[r.Index] = true
	}
	var leafAssignment *model.ImageToTile
	for i, r := range p.ImageToTile {
		if !rootReps[r.Index] {
			leafAssignment = &p.ImageToTile[i]
			break
		}
	}
	if leafAssignment == nil {
		t.Fatal("expected at least one non-root-representative image")
	}
	if leafAssignment.ZoomPlusTile[0] != 1 {
		t.Errorf("leaf image assigned zoom %v, want 1", leafAssignment.ZoomPlusTile[0])
	}
}
