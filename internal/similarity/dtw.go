// Package similarity aligns feature sequences with dynamic time warping and
// fuses the per-dimension evidence into one blended score.
package similarity

import (
	"math"
	"sync"

	"github.com/wildcall/callmatch-go/internal/dsp"
)

// PathPoint is one step of a DTW alignment path.
type PathPoint struct {
	U int // index into the user sequence
	M int // index into the master sequence
}

// maxPathPoints bounds the alignment path attached to reports.
const maxPathPoints = 4096

// matrixPool recycles DTW cost matrices across alignments.
var matrixPool = sync.Pool{
	New: func() any { return []float64(nil) },
}

func acquireMatrix(n int) []float64 {
	m := matrixPool.Get().([]float64)
	if cap(m) < n {
		m = make([]float64, n)
	}
	return m[:n]
}

func releaseMatrix(m []float64) {
	matrixPool.Put(m) //nolint:staticcheck // slice reuse is the point
}

// BandHalfWidth computes the Sakoe-Chiba half-width for two sequence lengths:
// max(bandMin, fraction of the longer), widened when the length difference
// alone would make the corner unreachable.
func BandHalfWidth(m, n, bandMin int, fraction float64) int {
	longer := max(m, n)
	hw := max(bandMin, int(fraction*float64(longer)))
	if d := abs(m - n); hw < d {
		hw = d
	}
	return hw
}

// Alignment is the outcome of a DTW pass.
type Alignment struct {
	AvgDistance float64 // accumulated cost divided by path length
	PathLength  int
	Path        []PathPoint // nil unless requested; bounded
}

// distFunc returns the local cost between user frame i and master frame j.
type distFunc func(i, j int) float64

// Align runs banded DTW between the MFCC sequences and returns the
// per-step average Euclidean distance along the optimal path.
func Align(user, master *dsp.FeatureSequence, band int, wantPath bool) Alignment {
	return alignCore(user.Len(), master.Len(), band, wantPath, func(i, j int) float64 {
		return euclidean(user.Frame(i), master.Frame(j))
	})
}

// AlignEnergies runs DTW over the scalar energy envelopes.
func AlignEnergies(user, master []float32, band int) Alignment {
	return alignCore(len(user), len(master), band, false, func(i, j int) float64 {
		return math.Abs(float64(user[i]) - float64(master[j]))
	})
}

const inf = math.MaxFloat64 / 4

// alignCore is the shared three-neighbor recurrence with a Sakoe-Chiba band
// around the scaled diagonal. Matrices come from the pool; nothing is
// retained after return.
func alignCore(m, n, band int, wantPath bool, dist distFunc) Alignment {
	if m == 0 || n == 0 {
		return Alignment{AvgDistance: inf}
	}

	// (m+1) x (n+1) accumulated-cost matrix, flattened.
	w := n + 1
	acc := acquireMatrix((m + 1) * w)
	defer releaseMatrix(acc)
	for i := range acc {
		acc[i] = inf
	}
	acc[0] = 0

	for i := 1; i <= m; i++ {
		lo, hi := bandBounds(i, m, n, band)
		for j := lo; j <= hi; j++ {
			d := dist(i-1, j-1)
			best := acc[(i-1)*w+j-1] // diagonal
			if v := acc[(i-1)*w+j]; v < best {
				best = v
			}
			if v := acc[i*w+j-1]; v < best {
				best = v
			}
			if best >= inf {
				continue
			}
			acc[i*w+j] = best + d
		}
	}

	total := acc[m*w+n]
	if total >= inf {
		return Alignment{AvgDistance: inf}
	}

	// Backtrack for the path length (and optionally the path itself).
	pathLen := 0
	var path []PathPoint
	i, j := m, n
	for i > 0 && j > 0 {
		pathLen++
		if wantPath && len(path) < maxPathPoints {
			path = append(path, PathPoint{U: i - 1, M: j - 1})
		}
		diag := acc[(i-1)*w+j-1]
		up := acc[(i-1)*w+j]
		left := acc[i*w+j-1]
		switch {
		case diag <= up && diag <= left:
			i, j = i-1, j-1
		case up <= left:
			i--
		default:
			j--
		}
	}
	reverse(path)

	return Alignment{
		AvgDistance: total / float64(pathLen),
		PathLength:  pathLen,
		Path:        path,
	}
}

// bandBounds returns the master-side index window for user row i.
func bandBounds(i, m, n, band int) (lo, hi int) {
	center := i * n / m
	lo = center - band
	hi = center + band
	if lo < 1 {
		lo = 1
	}
	if hi > n {
		hi = n
	}
	if lo > hi {
		lo = hi
	}
	return lo, hi
}

// Similarity converts an average per-step distance into [0, 1].
func Similarity(avgDistance, gamma float64) float64 {
	if avgDistance >= inf {
		return 0
	}
	return math.Exp(-gamma * avgDistance)
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i, v := range a {
		d := float64(v) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func reverse(p []PathPoint) {
	for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
		p[i], p[j] = p[j], p[i]
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
