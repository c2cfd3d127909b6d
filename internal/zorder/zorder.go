// Package zorder implements the dense primary-key mapping from a
// (zoom, tile_x, tile_y) triplet to a single int64 index, so the Clusters
// Collection and the "first tiles" query can be addressed by contiguous
// primary-key ranges instead of a vector search.
//
// Grounded on original_source's get_index_from_tile: level z contributes
// a block of 4^z tiles, offset by the prefix sum of all coarser levels.
package zorder

// FirstTilesDepth is the deepest coarse level (inclusive) that
// facade.FirstTiles returns. Levels 0..7 sum to 21845 tile records,
// matching the literal limit in original_source's get_first_tiles.
const FirstTilesDepth = 7

// LevelOffset returns the index of the first tile at zoom level z, i.e.
// sum(4^i) for i in [0, z).
func LevelOffset(z int) int64 {
	var offset int64
	power := int64(1)
	for i := 0; i < z; i++ {
		offset += power
		power *= 4
	}
	return offset
}

// Index packs (z, tx, ty) into the dense primary key used by the
// Clusters Collection.
func Index(z, tx, ty int) int64 {
	return LevelOffset(z) + int64(1<<uint(z))*int64(tx) + int64(ty)
}

// FirstTilesCount is the number of tile records in levels [0, FirstTilesDepth],
// i.e. sum(4^i) for i in [0, FirstTilesDepth]: Σ 4^i, i∈[0,7] = 21845.
func FirstTilesCount() int64 {
	return LevelOffset(FirstTilesDepth + 1)
}
