package similarity

import (
	"github.com/wildcall/callmatch-go/internal/dsp"
)

// subsequenceRatio is the user/master length ratio below which the relaxed
// subsequence search runs in addition to the full alignment.
const subsequenceRatio = 0.5

// AlignSubsequence runs DTW with free start and end columns on the master
// side, so a short user utterance may match anywhere inside a longer master
// call. No band is applied; the search space is the whole matrix.
func AlignSubsequence(user, master *dsp.FeatureSequence) Alignment {
	m, n := user.Len(), master.Len()
	if m == 0 || n == 0 {
		return Alignment{AvgDistance: inf}
	}

	w := n + 1
	acc := acquireMatrix((m + 1) * w)
	defer releaseMatrix(acc)

	// Free start: the first user frame may align against any master frame.
	for j := 0; j <= n; j++ {
		acc[j] = 0
	}
	for i := 1; i <= m; i++ {
		acc[i*w] = inf
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			d := euclidean(user.Frame(i-1), master.Frame(j-1))
			best := acc[(i-1)*w+j-1]
			if v := acc[(i-1)*w+j]; v < best {
				best = v
			}
			if v := acc[i*w+j-1]; v < best {
				best = v
			}
			acc[i*w+j] = best + d
		}
	}

	// Free end: best cost anywhere along the last user row.
	endJ := 1
	for j := 2; j <= n; j++ {
		if acc[m*w+j] < acc[m*w+endJ] {
			endJ = j
		}
	}
	total := acc[m*w+endJ]
	if total >= inf {
		return Alignment{AvgDistance: inf}
	}

	pathLen := 0
	i, j := m, endJ
	for i > 0 && j > 0 {
		pathLen++
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
		if i == 0 {
			break
		}
	}

	return Alignment{
		AvgDistance: total / float64(pathLen),
		PathLength:  pathLen,
	}
}

// ShouldTrySubsequence reports whether the user sequence is short enough
// relative to the master to justify the relaxed search.
func ShouldTrySubsequence(userLen, masterLen int) bool {
	return userLen > 0 && float64(userLen) < subsequenceRatio*float64(masterLen)
}
