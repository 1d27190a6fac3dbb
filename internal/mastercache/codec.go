package mastercache

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/wildcall/callmatch-go/internal/analyzers"
	"github.com/wildcall/callmatch-go/internal/dsp"
	"github.com/wildcall/callmatch-go/internal/errors"
)

const componentMasterCache = "mastercache"

// mfcMagic opens every feature file.
var mfcMagic = [4]byte{'M', 'F', 'C', '1'}

// header layout: magic(4) version(2) flags(2) sample_rate(4) frame_size(4)
// hop_size(4) mfcc_coeffs(4) n_filters(4) n_frames(4) fingerprint(8)
const headerSize = 40

// enhancedBlockSize is ten little-endian float32 fields.
const enhancedBlockSize = 10 * 4

// Encode serializes a record into the .mfc container.
func Encode(r *Record) []byte {
	nFrames := r.Features.Len()
	stride := r.Features.Stride()
	frameBytes := (stride + 1) * 4

	size := headerSize + nFrames*frameBytes
	var flags uint16
	if r.Enhanced != nil {
		flags |= flagHasEnhancedProfile
		size += enhancedBlockSize
	}

	buf := make([]byte, size)
	copy(buf[0:4], mfcMagic[:])
	binary.LittleEndian.PutUint16(buf[4:6], FormatVersion)
	binary.LittleEndian.PutUint16(buf[6:8], flags)
	binary.LittleEndian.PutUint32(buf[8:12], r.Params.SampleRate)
	binary.LittleEndian.PutUint32(buf[12:16], r.Params.FrameSize)
	binary.LittleEndian.PutUint32(buf[16:20], r.Params.HopSize)
	binary.LittleEndian.PutUint32(buf[20:24], r.Params.NumCoeffs)
	binary.LittleEndian.PutUint32(buf[24:28], r.Params.NumFilters)
	binary.LittleEndian.PutUint32(buf[28:32], uint32(nFrames))
	binary.LittleEndian.PutUint64(buf[32:40], r.Features.Fingerprint())

	off := headerSize
	for i := range nFrames {
		for _, c := range r.Features.Frame(i) {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(c))
			off += 4
		}
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(r.Features.Energy(i)))
		off += 4
	}

	if r.Enhanced != nil {
		for _, f := range enhancedFields(r.Enhanced) {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f))
			off += 4
		}
	}
	return buf
}

// Decode parses and validates a .mfc container.
func Decode(callID string, data []byte) (*Record, error) {
	if len(data) < headerSize {
		return nil, corrupt(callID, "file shorter than header")
	}
	if [4]byte(data[0:4]) != mfcMagic {
		return nil, corrupt(callID, "bad magic")
	}

	version := binary.LittleEndian.Uint16(data[4:6])
	if version != FormatVersion {
		return nil, versionMismatch(callID, "unsupported version", version)
	}
	flags := binary.LittleEndian.Uint16(data[6:8])
	if flags&^knownFlags != 0 {
		return nil, versionMismatch(callID, "unknown flag bits", version)
	}

	params := Params{
		SampleRate: binary.LittleEndian.Uint32(data[8:12]),
		FrameSize:  binary.LittleEndian.Uint32(data[12:16]),
		HopSize:    binary.LittleEndian.Uint32(data[16:20]),
		NumCoeffs:  binary.LittleEndian.Uint32(data[20:24]),
		NumFilters: binary.LittleEndian.Uint32(data[24:28]),
	}
	nFrames := int(binary.LittleEndian.Uint32(data[28:32]))
	fingerprint := binary.LittleEndian.Uint64(data[32:40])

	if nFrames == 0 {
		return nil, corrupt(callID, "record holds no frames")
	}
	if params.SampleRate == 0 || params.HopSize == 0 || params.NumCoeffs == 0 {
		return nil, corrupt(callID, "zero parameter block")
	}

	stride := int(params.NumCoeffs)
	frameBytes := (stride + 1) * 4
	want := headerSize + nFrames*frameBytes
	if flags&flagHasEnhancedProfile != 0 {
		want += enhancedBlockSize
	}
	if len(data) != want {
		return nil, corrupt(callID, "size does not match frame count")
	}

	features := dsp.NewFeatureSequence(stride)
	coeffs := make([]float32, stride)
	off := headerSize
	for i := range nFrames {
		for c := range coeffs {
			coeffs[c] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		energy := math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		ts := time.Duration(int64(i)*int64(params.HopSize)) * time.Second / time.Duration(params.SampleRate)
		features.Append(coeffs, energy, ts)
	}

	if features.Fingerprint() != fingerprint {
		return nil, corrupt(callID, "fingerprint mismatch")
	}

	rec := &Record{
		CallID:      callID,
		Params:      params,
		Features:    features,
		Fingerprint: fingerprint,
	}
	if flags&flagHasEnhancedProfile != 0 {
		fields := make([]float64, 10)
		for i := range fields {
			fields[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[off:])))
			off += 4
		}
		rec.Enhanced = &analyzers.EnhancedProfile{
			Pitch: analyzers.PitchProfile{
				MedianF0Hz: fields[0],
				Confidence: fields[1],
			},
			Harmonic: analyzers.HarmonicProfile{
				CentroidHz: fields[2],
				SpreadHz:   fields[3],
				Tonal: analyzers.TonalQuality{
					Rasp:       fields[4],
					Brightness: fields[5],
					Resonance:  fields[6],
					Roughness:  fields[7],
				},
				Confidence: harmonicConfidenceFromStored(fields),
			},
			Cadence: analyzers.CadenceProfile{
				TempoBPM:            fields[8],
				PeriodicityStrength: fields[9],
				Confidence:          fields[9],
			},
		}
	}
	return rec, nil
}

// enhancedFields flattens the profile into the on-disk field order:
// pitch_median_hz, pitch_conf, centroid_hz, spread_hz, rasp, brightness,
// resonance, roughness, tempo_bpm, tempo_conf.
func enhancedFields(p *analyzers.EnhancedProfile) [10]float32 {
	return [10]float32{
		float32(p.Pitch.MedianF0Hz),
		float32(p.Pitch.Confidence),
		float32(p.Harmonic.CentroidHz),
		float32(p.Harmonic.SpreadHz),
		float32(p.Harmonic.Tonal.Rasp),
		float32(p.Harmonic.Tonal.Brightness),
		float32(p.Harmonic.Tonal.Resonance),
		float32(p.Harmonic.Tonal.Roughness),
		float32(p.Cadence.TempoBPM),
		float32(p.Cadence.Confidence),
	}
}

// harmonicConfidenceFromStored reconstitutes a usable harmonic confidence
// for decoded files: the container does not persist it separately, so a stored
// profile with any tonal energy is trusted at a fixed level.
func harmonicConfidenceFromStored(fields []float64) float64 {
	if fields[4] == 0 && fields[5] == 0 && fields[6] == 0 && fields[7] == 0 {
		return 0
	}
	return 0.75
}

func corrupt(callID, msg string) error {
	return errors.Newf("master call %q: %s", callID, msg).
		Component(componentMasterCache).
		Category(errors.CategoryCorruptData).
		Context("call_id", callID).
		Build()
}

func versionMismatch(callID, msg string, version uint16) error {
	return errors.Newf("master call %q: %s", callID, msg).
		Component(componentMasterCache).
		Category(errors.CategoryVersionMismatch).
		Context("call_id", callID).
		Context("version", version).
		Build()
}
