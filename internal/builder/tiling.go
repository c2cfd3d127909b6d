package builder

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/aeyemap/aeye/internal/apperr"
	"github.com/aeyemap/aeye/internal/kmeans"
	"github.com/aeyemap/aeye/internal/model"
	"github.com/aeyemap/aeye/internal/zorder"
)

// point is the builder's working copy of one embedding's layout position.
type point struct {
	Index         int64
	Path          string
	X, Y          float64
	Width, Height int
}

func pointsFromRows(rows []model.EmbeddingRow) []point {
	pts := make([]point, len(rows))
	for i, r := range rows {
		pts[i] = point{Index: r.Index, Path: r.Path, X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
	}
	return pts
}

// boundingBox computes the corpus extent with orb.MultiPoint's own Bound
// method — the same bounding-box primitive the teacher's gotiler package
// uses for tile-intersection tests, applied here to image layout
// coordinates instead of geographic ones.
func boundingBox(points []point) model.BoundingBox {
	if len(points) == 0 {
		return model.BoundingBox{}
	}
	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = orb.Point{p.X, p.Y}
	}
	b := mp.Bound()
	return model.BoundingBox{
		XMin: b.Min.X(), XMax: b.Max.X(),
		YMin: b.Min.Y(), YMax: b.Max.Y(),
	}
}

// maxChooseDepthIters bounds chooseDepth's refinement loop so a
// degenerate corpus (every point at the same coordinate) can't spin
// forever: no grid refinement can ever separate coincident points.
const maxChooseDepthIters = 24

// tileXY returns the (tx,ty) of p within a 2^z grid over bbox, clamped to
// [0, 2^z - 1] per axis the way spec.md §4.1 step 2 specifies.
func tileXY(p point, bbox model.BoundingBox, z int) (int, int) {
	n := 1 << uint(z)
	tx := axisIndex(p.X, bbox.XMin, bbox.XMax, n)
	ty := axisIndex(p.Y, bbox.YMin, bbox.YMax, n)
	return tx, ty
}

func axisIndex(v, min, max float64, n int) int {
	width := max - min
	if width <= 0 {
		return 0
	}
	idx := int(math.Floor((v - min) * float64(n) / width))
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return idx
}

// chooseDepth finds the smallest Z at which no tile of the 2^Z x 2^Z grid
// holds more than maxPerTile points.
func chooseDepth(points []point, bbox model.BoundingBox, maxPerTile int) int {
	for z := 0; z < maxChooseDepthIters; z++ {
		counts := make(map[[2]int]int)
		worst := 0
		for _, p := range points {
			tx, ty := tileXY(p, bbox, z)
			counts[[2]int{tx, ty}]++
			if counts[[2]int{tx, ty}] > worst {
				worst = counts[[2]int{tx, ty}]
			}
		}
		if worst <= maxPerTile {
			return z
		}
	}
	return maxChooseDepthIters - 1
}

type tileKey struct{ z, tx, ty int }

// Tile runs the Tile Builder's pure layout algorithm: choose the maximum
// zoom depth, then walk the pyramid coarse-to-fine, selecting
// representatives per tile (all-of-tile under MaxPerTile, Constrained
// K-Means otherwise) and recording each image's coarsest appearance.
func Tile(rows []model.EmbeddingRow, cfg Config) (Pyramid, error) {
	cfg = cfg.withDefaults()
	if len(rows) == 0 {
		return Pyramid{}, apperr.NewBadRequest("builder: no rows to tile")
	}

	points := pointsFromRows(rows)
	byIndex := make(map[int64]point, len(points))
	for _, p := range points {
		byIndex[p.Index] = p
	}

	bbox := boundingBox(points)
	maxZoom := chooseDepth(points, bbox, cfg.MaxPerTile)

	// level 0 starts as a single tile holding every point.
	level := map[tileKey][]int64{{0, 0, 0}: indexList(points)}
	parentReps := map[int64]bool{}

	assignedTile := make(map[int64][3]int) // image index -> coarsest (z,tx,ty)
	var allTiles []model.Tile

	for z := 0; z <= maxZoom; z++ {
		next := map[tileKey][]int64{}
		repsThisLevel := map[int64]bool{}

		// Tiles at a fixed level mutate disjoint point sets, so
		// representative selection runs one goroutine per tile; the
		// results are merged back in deterministic key order below.
		keys := sortedKeys(level)
		tilePointsByKey := make([][]point, len(keys))
		repsByKey := make([][]model.Representative, len(keys))

		// Every tile worker's error is collected rather than cancelling its
		// siblings, so one level's full set of bad tiles is reported
		// together instead of whichever failed first.
		var group errgroup.Group
		var mu sync.Mutex
		var levelErr *multierror.Error
		for i, key := range keys {
			i, key := i, key
			idxs := level[key]
			tilePoints := make([]point, len(idxs))
			for j, idx := range idxs {
				tilePoints[j] = byIndex[idx]
			}
			tilePointsByKey[i] = tilePoints

			group.Go(func() error {
				reps, err := selectRepresentatives(tilePoints, parentReps, cfg, key.z, key.tx, key.ty)
				if err != nil {
					mu.Lock()
					levelErr = multierror.Append(levelErr, err)
					mu.Unlock()
					return nil
				}
				if len(reps) > cfg.MaxPerTile {
					mu.Lock()
					levelErr = multierror.Append(levelErr, apperr.WrapFatal("builder: tile (%d,%d,%d) has %d representatives, exceeds MaxPerTile=%d", key.z, key.tx, key.ty, len(reps), cfg.MaxPerTile))
					mu.Unlock()
					return nil
				}
				repsByKey[i] = reps
				return nil
			})
		}
		group.Wait()
		if err := levelErr.ErrorOrNil(); err != nil {
			return Pyramid{}, apperr.WrapFatal("builder: level %d: %v", z, err)
		}

		for i, key := range keys {
			tilePoints := tilePointsByKey[i]
			reps := repsByKey[i]

			for _, r := range reps {
				repsThisLevel[r.Index] = true
				if _, seen := assignedTile[r.Index]; !seen {
					assignedTile[r.Index] = [3]int{key.z, key.tx, key.ty}
				}
			}

			tile := model.Tile{
				Index:        zorder.Index(key.z, key.tx, key.ty),
				ZoomPlusTile: [3]float64{float64(key.z), float64(key.tx), float64(key.ty)},
				Data:         reps,
			}
			if key.z == 0 && key.tx == 0 && key.ty == 0 {
				b := bbox
				tile.Range = &b
			}
			allTiles = append(allTiles, tile)

			if z < maxZoom {
				for _, p := range tilePoints {
					ctx, cty := tileXY(p, bbox, z+1)
					ck := tileKey{z + 1, ctx, cty}
					next[ck] = append(next[ck], p.Index)
				}
			}
		}

		parentReps = repsThisLevel
		level = next
	}

	imageToTile := make([]model.ImageToTile, 0, len(assignedTile))
	for idx, zt := range assignedTile {
		imageToTile = append(imageToTile, model.ImageToTile{
			Index:        idx,
			ZoomPlusTile: [3]float64{float64(zt[0]), float64(zt[1]), float64(zt[2])},
		})
	}
	sort.Slice(imageToTile, func(i, j int) bool { return imageToTile[i].Index < imageToTile[j].Index })

	return Pyramid{MaxZoom: maxZoom, Tiles: allTiles, ImageToTile: imageToTile}, nil
}

func indexList(points []point) []int64 {
	out := make([]int64, len(points))
	for i, p := range points {
		out[i] = p.Index
	}
	return out
}

func sortedKeys(level map[tileKey][]int64) []tileKey {
	keys := make([]tileKey, 0, len(level))
	for k := range level {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].tx != keys[j].tx {
			return keys[i].tx < keys[j].tx
		}
		return keys[i].ty < keys[j].ty
	})
	return keys
}

// selectRepresentatives chooses T's representatives per spec.md §4.1
// step 3: keep everything if the tile is within bound, else run
// Constrained K-Means with the tile's pinned (previous-level) images held
// fixed.
func selectRepresentatives(tilePoints []point, parentReps map[int64]bool, cfg Config, z, tx, ty int) ([]model.Representative, error) {
	if len(tilePoints) <= cfg.MaxPerTile {
		reps := make([]model.Representative, len(tilePoints))
		for i, p := range tilePoints {
			reps[i] = toRepresentative(p, parentReps[p.Index], z)
		}
		sortRepsByIndex(reps)
		return reps, nil
	}

	pinned := make([]point, 0, len(tilePoints))
	for _, p := range tilePoints {
		if parentReps[p.Index] {
			pinned = append(pinned, p)
		}
	}
	sort.Slice(pinned, func(i, j int) bool { return pinned[i].Index < pinned[j].Index })

	k := cfg.NumClusters
	if k < len(pinned) {
		k = len(pinned)
	}
	if k > len(tilePoints) {
		k = len(tilePoints)
	}

	kPoints := make([]kmeans.Point, len(tilePoints))
	for i, p := range tilePoints {
		kPoints[i] = kmeans.Point{X: p.X, Y: p.Y}
	}
	fixedPoints := make([]kmeans.Point, len(pinned))
	for i, p := range pinned {
		fixedPoints[i] = kmeans.Point{X: p.X, Y: p.Y}
	}

	// Each tile gets its own deterministic RNG derived from its
	// coordinates: cfg.Rand is shared across the level's goroutines and
	// math/rand.Rand isn't safe for concurrent use.
	seed := int64(z)*1_000_003 + int64(tx)*997 + int64(ty)
	rng := rand.New(rand.NewSource(seed))
	km := kmeans.New(k, cfg.KMeansNInit, cfg.KMeansMaxIter, rng)
	if err := km.Fit(kPoints, fixedPoints); err != nil {
		return nil, apperr.WrapFatal("builder: kmeans fit failed: %v", err)
	}
	centers := km.Centers()

	used := make(map[int64]bool, k)
	reps := make([]model.Representative, 0, k)
	for i, c := range centers {
		if i < len(pinned) {
			p := pinned[i]
			reps = append(reps, toRepresentative(p, true, z))
			used[p.Index] = true
			continue
		}
		p := nearestUnused(tilePoints, c, used)
		used[p.Index] = true
		reps = append(reps, toRepresentative(p, false, z))
	}
	sortRepsByIndex(reps)
	return reps, nil
}

func nearestUnused(points []point, c kmeans.Point, used map[int64]bool) point {
	var best point
	bestDist := math.Inf(1)
	found := false
	for _, p := range points {
		if used[p.Index] {
			continue
		}
		dx, dy := p.X-c.X, p.Y-c.Y
		d := dx*dx + dy*dy
		if d < bestDist || (d == bestDist && found && p.Index < best.Index) {
			bestDist = d
			best = p
			found = true
		}
	}
	return best
}

func toRepresentative(p point, inPrevious bool, z int) model.Representative {
	return model.Representative{
		Index:      p.Index,
		Path:       p.Path,
		X:          p.X,
		Y:          p.Y,
		Width:      p.Width,
		Height:     p.Height,
		Zoom:       z,
		InPrevious: inPrevious,
	}
}

func sortRepsByIndex(reps []model.Representative) {
	sort.Slice(reps, func(i, j int) bool { return reps[i].Index < reps[j].Index })
}
