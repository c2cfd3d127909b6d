package builder

import "github.com/aeyemap/aeye/internal/model"

// MergeAdjacentClusters is the opt-in cluster-merge post-pass
// SPEC_FULL.md resolves as an opt-in feature (spec.md §9's open question):
// original_source's early revisions ran this over 512-d embeddings before
// the project disabled it. Lacking a retained embedding vector per
// representative in this data model, the merge criterion here operates on
// layout-space proximity between representatives of adjacent tiles (the
// right and upper neighbor) at the same zoom level — any pair whose
// similarity score is at least threshold is tagged into the same
// MergeGroup so a client can visually coalesce them. It never removes a
// representative: identity and in_previous continuity are untouched.
func MergeAdjacentClusters(tiles []model.Tile, threshold float64) {
	byLevel := map[int][]*model.Tile{}
	for i := range tiles {
		t := &tiles[i]
		byLevel[t.Zoom()] = append(byLevel[t.Zoom()], t)
	}

	nextGroup := int64(1)
	for _, levelTiles := range byLevel {
		byKey := map[[2]int]*model.Tile{}
		for _, t := range levelTiles {
			byKey[[2]int{t.TileX(), t.TileY()}] = t
		}

		for _, t := range levelTiles {
			neighbors := []*model.Tile{
				byKey[[2]int{t.TileX() + 1, t.TileY()}],
				byKey[[2]int{t.TileX(), t.TileY() + 1}],
			}
			for _, n := range neighbors {
				if n == nil {
					continue
				}
				mergeClose(t, n, threshold, &nextGroup)
			}
		}
	}
}

func mergeClose(a, b *model.Tile, threshold float64, nextGroup *int64) {
	for i := range a.Data {
		for j := range b.Data {
			ra, rb := &a.Data[i], &b.Data[j]
			if similarity(ra, rb) < threshold {
				continue
			}
			group := ra.MergeGroup
			if group == 0 {
				group = rb.MergeGroup
			}
			if group == 0 {
				group = *nextGroup
				*nextGroup++
			}
			ra.MergeGroup = group
			rb.MergeGroup = group
		}
	}
}

// similarity scores how likely two representatives from adjacent tiles
// are to be the same visual cluster split by a tile boundary: the closer
// their layout coordinates, the higher the score. The score is 1/(1+d²)
// for the squared layout distance d², so it lies in (0,1] and is 1 only
// for coincident points; it is not scaled by tile size.
func similarity(a, b *model.Representative) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	d2 := dx*dx + dy*dy
	return 1 / (1 + d2)
}
