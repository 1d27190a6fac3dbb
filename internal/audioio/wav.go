// Package audioio bridges WAV files and the mono float32 sample slices the
// engine consumes. Decoding downmixes multi-channel input; the engine itself
// only ever sees mono.
package audioio

import (
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/wildcall/callmatch-go/internal/errors"
)

const componentAudioIO = "audioio"

// Clip is decoded mono audio.
type Clip struct {
	Samples    []float32
	SampleRate int
}

// ReadWAV decodes a WAV file into mono float32 samples in [-1, 1]. Stereo
// and higher channel counts are averaged down to mono.
func ReadWAV(path string) (*Clip, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component(componentAudioIO).
			Category(errors.CategoryFileIO).
			Context("operation", "open_wav").
			Context("path", path).
			Build()
	}
	defer file.Close() //nolint:errcheck // read-only handle

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, errors.Newf("input is not a valid WAV audio file").
			Component(componentAudioIO).
			Category(errors.CategoryCorruptData).
			Context("path", path).
			Build()
	}

	// Divisor for converting audio samples from int to float32
	var divisor float32
	switch decoder.BitDepth {
	case 8:
		divisor = 128.0
	case 16:
		divisor = 32768.0
	case 24:
		divisor = 8388608.0
	case 32:
		divisor = 2147483648.0
	default:
		return nil, errors.Newf("unsupported bit depth %d", decoder.BitDepth).
			Component(componentAudioIO).
			Category(errors.CategoryInvalidAudio).
			Context("bit_depth", decoder.BitDepth).
			Build()
	}

	channels := int(decoder.NumChans)
	if channels < 1 {
		channels = 1
	}

	buf := &audio.IntBuffer{
		Data:   make([]int, 8192),
		Format: &audio.Format{SampleRate: int(decoder.SampleRate), NumChannels: channels},
	}

	var samples []float32
	carry := make([]float32, 0, channels)
	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return nil, errors.New(err).
				Component(componentAudioIO).
				Category(errors.CategoryCorruptData).
				Context("operation", "read_pcm").
				Build()
		}
		if n == 0 {
			break
		}
		for _, sample := range buf.Data[:n] {
			carry = append(carry, float32(sample)/divisor)
			if len(carry) == channels {
				var sum float32
				for _, s := range carry {
					sum += s
				}
				samples = append(samples, sum/float32(channels))
				carry = carry[:0]
			}
		}
	}

	return &Clip{Samples: samples, SampleRate: int(decoder.SampleRate)}, nil
}

// WriteWAV encodes mono float32 samples as a 16-bit PCM WAV file.
func WriteWAV(path string, samples []float32, sampleRate int) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.New(err).
			Component(componentAudioIO).
			Category(errors.CategoryFileIO).
			Context("operation", "create_wav").
			Context("path", path).
			Build()
	}

	encoder := wav.NewEncoder(file, sampleRate, 16, 1, 1)

	buf := &audio.IntBuffer{
		Data:   make([]int, len(samples)),
		Format: &audio.Format{SampleRate: sampleRate, NumChannels: 1},
	}
	for i, s := range samples {
		if s > 1 {
			s = 1
		}
		if s < -1 {
			s = -1
		}
		buf.Data[i] = int(math.Round(float64(s) * 32767))
	}

	if err := encoder.Write(buf); err != nil {
		_ = file.Close()
		return errors.New(err).
			Component(componentAudioIO).
			Category(errors.CategoryFileIO).
			Context("operation", "write_pcm").
			Build()
	}
	if err := encoder.Close(); err != nil {
		_ = file.Close()
		return errors.New(err).
			Component(componentAudioIO).
			Category(errors.CategoryFileIO).
			Context("operation", "finalize_wav").
			Build()
	}
	return file.Close()
}
