// Package kmeans implements a constrained 2-D k-means variant: a prefix
// of centers can be pinned to caller-supplied fixed points that Lloyd
// iteration never moves. This is the Go rendering of the algorithm
// original_source's create_and_populate_clusters_collection.py drives
// via ModifiedKMeans.fit(coordinates, fixed_centers=...); the subclass
// body itself wasn't present in the retrieved source, so the Lloyd-loop
// internals follow spec.md §4.2 directly.
package kmeans

import (
	"errors"
	"math"
	"math/rand"
)

// Point is a 2-D coordinate.
type Point struct {
	X, Y float64
}

func sqDist(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return dx*dx + dy*dy
}

// KMeans fits k centers to a set of points, with the first len(Fixed)
// centers held immovable across the whole fit.
type KMeans struct {
	K       int
	NInit   int
	MaxIter int
	Rand    *rand.Rand

	centers []Point
	fixed   int
}

// New returns a KMeans configured for k clusters. nInit and maxIter
// default to 1 and 300 if <= 0.
func New(k, nInit, maxIter int, rng *rand.Rand) *KMeans {
	if nInit <= 0 {
		nInit = 1
	}
	if maxIter <= 0 {
		maxIter = 300
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(0))
	}
	return &KMeans{K: k, NInit: nInit, MaxIter: maxIter, Rand: rng}
}

// Centers returns the fitted centers, in order, with the fixed prefix
// first.
func (m *KMeans) Centers() []Point { return m.centers }

// Fit fits the model to points, with an optional prefix of fixed
// centers. len(fixed) must be <= k.
func (m *KMeans) Fit(points []Point, fixed []Point) error {
	if len(points) == 0 {
		return errors.New("kmeans: no points to fit")
	}
	if len(fixed) > m.K {
		return errors.New("kmeans: more fixed centers than k")
	}
	m.fixed = len(fixed)

	var best []Point
	bestInertia := math.Inf(1)

	for init := 0; init < m.NInit; init++ {
		centers := m.seed(points, fixed, init)
		centers, inertia := m.lloyd(points, centers)
		if inertia < bestInertia {
			bestInertia = inertia
			best = centers
		}
	}
	m.centers = best
	return nil
}

// seed builds the initial K centers: the fixed prefix verbatim, then
// k-len(fixed) free centers chosen by farthest-point sampling when
// init==0 (matching n_init=1's deterministic path), or D²-weighted
// sampling otherwise.
func (m *KMeans) seed(points []Point, fixed []Point, init int) []Point {
	centers := make([]Point, 0, m.K)
	centers = append(centers, fixed...)

	if len(centers) == 0 {
		// No pinned centers: seed the very first center either from a
		// fixed-point ordering (n_init==1 path) or at random.
		if init == 0 {
			centers = append(centers, points[0])
		} else {
			centers = append(centers, points[m.Rand.Intn(len(points))])
		}
	}

	for len(centers) < m.K {
		if init == 0 {
			centers = append(centers, farthestPoint(points, centers))
		} else {
			centers = append(centers, weightedSample(points, centers, m.Rand))
		}
	}
	return centers
}

// farthestPoint returns the point in points with the largest minimum
// distance to any existing center (farthest-point sampling).
func farthestPoint(points []Point, centers []Point) Point {
	var best Point
	bestDist := -1.0
	for _, p := range points {
		d := nearestDist(p, centers)
		if d > bestDist {
			bestDist = d
			best = p
		}
	}
	return best
}

// weightedSample draws a point with probability proportional to its
// squared distance to the nearest existing center (D²-sampling / k-means++).
func weightedSample(points []Point, centers []Point, rng *rand.Rand) Point {
	weights := make([]float64, len(points))
	var total float64
	for i, p := range points {
		d := nearestDist(p, centers)
		weights[i] = d
		total += d
	}
	if total == 0 {
		return points[rng.Intn(len(points))]
	}
	r := rng.Float64() * total
	var cum float64
	for i, w := range weights {
		cum += w
		if cum >= r {
			return points[i]
		}
	}
	return points[len(points)-1]
}

func nearestDist(p Point, centers []Point) float64 {
	best := math.Inf(1)
	for _, c := range centers {
		if d := sqDist(p, c); d < best {
			best = d
		}
	}
	return best
}

// lloyd runs Lloyd iteration, recomputing only the means of the moving
// (non-pinned) centers. Empty moving clusters are reseeded with a random
// point, per spec.md §4.2. Returns the final centers and total inertia.
func (m *KMeans) lloyd(points []Point, centers []Point) ([]Point, float64) {
	centers = append([]Point(nil), centers...)
	assign := make([]int, len(points))

	for iter := 0; iter < m.MaxIter; iter++ {
		changed := false
		for i, p := range points {
			best, bestDist := 0, math.Inf(1)
			for c, center := range centers {
				if d := sqDist(p, center); d < bestDist {
					bestDist = d
					best = c
				}
			}
			if assign[i] != best {
				changed = true
				assign[i] = best
			}
		}

		sumX := make([]float64, len(centers))
		sumY := make([]float64, len(centers))
		count := make([]int, len(centers))
		for i, p := range points {
			c := assign[i]
			sumX[c] += p.X
			sumY[c] += p.Y
			count[c]++
		}

		for c := m.fixed; c < len(centers); c++ {
			if count[c] == 0 {
				centers[c] = points[m.Rand.Intn(len(points))]
				changed = true
				continue
			}
			newCenter := Point{X: sumX[c] / float64(count[c]), Y: sumY[c] / float64(count[c])}
			if newCenter != centers[c] {
				changed = true
			}
			centers[c] = newCenter
		}

		if !changed {
			break
		}
	}

	var inertia float64
	for i, p := range points {
		inertia += sqDist(p, centers[assign[i]])
	}
	return centers, inertia
}

// Predict returns the index of the nearest center to p.
func (m *KMeans) Predict(p Point) int {
	best, bestDist := 0, math.Inf(1)
	for c, center := range m.centers {
		if d := sqDist(p, center); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}
