package similarity

import (
	"math"

	"github.com/wildcall/callmatch-go/internal/analyzers"
)

// Component is one scored similarity dimension. A zero confidence removes
// the component from the blend entirely.
type Component struct {
	Score      float64
	Confidence float64
}

// Breakdown holds every component dimension of a similarity report.
type Breakdown struct {
	MFCC     Component
	Pitch    Component
	Harmonic Component
	Cadence  Component
	Energy   Component
}

// Weights are the blend weights; they need not sum to one, the blend
// renormalizes over the components that carry confidence.
type Weights struct {
	MFCC     float64
	Pitch    float64
	Harmonic float64
	Cadence  float64
	Energy   float64
}

// DefaultWeights matches the tested fusion configuration.
func DefaultWeights() Weights {
	return Weights{MFCC: 0.5, Pitch: 0.2, Harmonic: 0.15, Cadence: 0.1, Energy: 0.05}
}

// Report is the full similarity outcome for a session.
type Report struct {
	Overall    float64
	Breakdown  Breakdown
	Confidence float64
	Path       []PathPoint // optional, bounded
	Ready      bool

	UserFrames   int
	MasterFrames int
}

// PitchScore compares median fundamentals on the cent scale: a full octave
// of error scores zero. The master median is the cents reference.
func PitchScore(user, master analyzers.PitchProfile) Component {
	if user.MedianF0Hz <= 0 || master.MedianF0Hz <= 0 {
		return Component{}
	}
	cents := math.Abs(1200 * math.Log2(user.MedianF0Hz/master.MedianF0Hz))
	score := 1 - math.Min(1, cents/1200)
	return Component{
		Score:      score,
		Confidence: math.Min(user.Confidence, master.Confidence),
	}
}

// HarmonicScore is the cosine similarity of the tonal-quality vectors.
func HarmonicScore(user, master analyzers.HarmonicProfile) Component {
	u := [4]float64{
		clip01(user.Tonal.Rasp), clip01(user.Tonal.Brightness),
		clip01(user.Tonal.Resonance), clip01(user.Tonal.Roughness),
	}
	m := [4]float64{
		clip01(master.Tonal.Rasp), clip01(master.Tonal.Brightness),
		clip01(master.Tonal.Resonance), clip01(master.Tonal.Roughness),
	}
	var dot, nu, nm float64
	for i := range u {
		dot += u[i] * m[i]
		nu += u[i] * u[i]
		nm += m[i] * m[i]
	}
	if nu == 0 || nm == 0 {
		return Component{}
	}
	return Component{
		Score:      clip01(dot / (math.Sqrt(nu) * math.Sqrt(nm))),
		Confidence: math.Min(user.Confidence, master.Confidence),
	}
}

// CadenceScore compares tempi; a difference of 60 BPM or more scores zero.
// Both sides must clear the confidence floor or the component carries no
// weight at all.
func CadenceScore(user, master analyzers.CadenceProfile, confidenceFloor float64) Component {
	if user.Confidence < confidenceFloor || master.Confidence < confidenceFloor {
		return Component{}
	}
	delta := math.Abs(user.TempoBPM - master.TempoBPM)
	return Component{
		Score:      1 - math.Min(1, delta/60),
		Confidence: math.Min(user.Confidence, master.Confidence),
	}
}

// Blend computes the confidence-weighted mean over the components. Terms
// with zero confidence drop out and the remaining weights renormalize.
func Blend(w Weights, b Breakdown) (overall, confidence float64) {
	type term struct {
		weight float64
		comp   Component
	}
	terms := []term{
		{w.MFCC, b.MFCC},
		{w.Pitch, b.Pitch},
		{w.Harmonic, b.Harmonic},
		{w.Cadence, b.Cadence},
		{w.Energy, b.Energy},
	}

	var num, den, wSum float64
	for _, t := range terms {
		wc := t.weight * t.comp.Confidence
		num += wc * t.comp.Score
		den += wc
		wSum += t.weight
	}
	if den == 0 {
		return 0, 0
	}
	return num / den, den / wSum
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
