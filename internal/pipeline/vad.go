package pipeline

import "time"

// VADState is the voice activity detector state.
type VADState int

const (
	VADSilence VADState = iota
	VADCandidate
	VADVoiced
	VADHangover
)

// String returns the state name for logging.
func (s VADState) String() string {
	switch s {
	case VADSilence:
		return "silence"
	case VADCandidate:
		return "candidate"
	case VADVoiced:
		return "voiced"
	case VADHangover:
		return "hangover"
	default:
		return "unknown"
	}
}

// VADConfig holds the energy-gate parameters.
type VADConfig struct {
	Enabled         bool
	EnergyThreshold float64 // mean-square threshold
	MinVoiced       time.Duration
	Hangover        time.Duration
	SampleRate      int
	HopSize         int
}

// VAD is an energy-based voice activity gate. Frames advance the state
// machine by one hop each; frames observed in Silence are dropped from
// feature extraction while still counting toward total duration.
type VAD struct {
	cfg   VADConfig
	state VADState

	minVoicedSamples int64
	hangoverSamples  int64
	voicedRun        int64 // samples of sustained energy while Candidate
	hangoverRun      int64 // samples below threshold while Hangover
}

// NewVAD creates the gate. A disabled gate forwards every frame.
func NewVAD(cfg VADConfig) *VAD {
	return &VAD{
		cfg:              cfg,
		state:            VADSilence,
		minVoicedSamples: durationToSamples(cfg.MinVoiced, cfg.SampleRate),
		hangoverSamples:  durationToSamples(cfg.Hangover, cfg.SampleRate),
	}
}

func durationToSamples(d time.Duration, sampleRate int) int64 {
	return int64(d) * int64(sampleRate) / int64(time.Second)
}

// State returns the current detector state.
func (v *VAD) State() VADState { return v.state }

// Process advances the state machine with one frame and reports whether the
// frame should be forwarded to feature extraction. Candidate frames are
// forwarded so call onsets are not clipped; a candidate run that regresses
// to silence only cost a few extra frames of extraction.
func (v *VAD) Process(frame []float32) bool {
	if !v.cfg.Enabled {
		return true
	}

	energy := meanSquare(frame)
	active := energy > v.cfg.EnergyThreshold
	hop := int64(v.cfg.HopSize)

	switch v.state {
	case VADSilence:
		if active {
			v.state = VADCandidate
			v.voicedRun = hop
			if v.voicedRun >= v.minVoicedSamples {
				v.state = VADVoiced
			}
			return true
		}
		return false

	case VADCandidate:
		if !active {
			v.state = VADSilence
			v.voicedRun = 0
			return false
		}
		v.voicedRun += hop
		if v.voicedRun >= v.minVoicedSamples {
			v.state = VADVoiced
		}
		return true

	case VADVoiced:
		if !active {
			v.state = VADHangover
			v.hangoverRun = hop
			if v.hangoverRun >= v.hangoverSamples {
				v.state = VADSilence
			}
			return true
		}
		return true

	case VADHangover:
		if active {
			v.state = VADVoiced
			v.hangoverRun = 0
			return true
		}
		v.hangoverRun += hop
		if v.hangoverRun >= v.hangoverSamples {
			v.state = VADSilence
			return false
		}
		return true
	}
	return false
}

// Reset returns the detector to Silence.
func (v *VAD) Reset() {
	v.state = VADSilence
	v.voicedRun = 0
	v.hangoverRun = 0
}

func meanSquare(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		f := float64(s)
		sum += f * f
	}
	return sum / float64(len(frame))
}
