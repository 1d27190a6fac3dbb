// Package capture provides a microphone source for realtime scoring. The
// device callback writes raw PCM bytes into a ring buffer; a reader
// goroutine converts them to mono float32 chunks for the engine. The engine
// itself never touches a device.
package capture

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"

	"github.com/wildcall/callmatch-go/internal/errors"
	"github.com/wildcall/callmatch-go/internal/logging"
)

const componentCapture = "capture"

// stagingSeconds sizes the raw byte ring between the device callback and
// the converter goroutine.
const stagingSeconds = 2

// Config describes the capture device setup.
type Config struct {
	DeviceName string // reported in device errors only; capture always opens the system default device
	SampleRate int
	ChunkSize  int // samples per emitted chunk
}

// Source captures mono 16-bit PCM from the default backend for the platform
// and emits float32 chunks.
type Source struct {
	cfg    Config
	logger *slog.Logger

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	staging *ringbuffer.RingBuffer
	output  chan []float32
	errs    chan error

	mu      sync.Mutex
	running atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// NewSource creates an inactive capture source.
func NewSource(cfg Config) *Source {
	logger := logging.ForService(componentCapture)
	if logger == nil {
		logger = slog.Default().With("service", componentCapture)
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 512
	}
	return &Source{
		cfg:     cfg,
		logger:  logger,
		staging: ringbuffer.New(cfg.SampleRate * 2 * stagingSeconds),
		output:  make(chan []float32, 16),
		errs:    make(chan error, 4),
	}
}

// Chunks returns the channel of converted sample chunks.
func (s *Source) Chunks() <-chan []float32 { return s.output }

// Errors returns the asynchronous error channel.
func (s *Source) Errors() <-chan error { return s.errs }

// Dropped returns how many bytes the device callback discarded because the
// staging ring was full.
func (s *Source) Dropped() int64 { return s.dropped.Load() }

// Start opens the device and begins capture.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return nil
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		s.logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return errors.New(err).
			Component(componentCapture).
			Category(errors.CategoryProcessing).
			Context("operation", "init_context").
			Build()
	}
	s.ctx = mctx

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(s.cfg.SampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			// Device thread: stage bytes without blocking.
			n, _ := s.staging.Write(input)
			if n < len(input) {
				s.dropped.Add(int64(len(input) - n))
			}
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		s.teardownContext()
		return errors.New(err).
			Component(componentCapture).
			Category(errors.CategoryProcessing).
			Context("operation", "init_device").
			Context("device", s.cfg.DeviceName).
			Build()
	}
	s.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		s.teardownContext()
		return errors.New(err).
			Component(componentCapture).
			Category(errors.CategoryProcessing).
			Context("operation", "start_device").
			Build()
	}

	s.stop = make(chan struct{})
	s.running.Store(true)
	s.wg.Add(1)
	go s.convertLoop(ctx)

	s.logger.Info("capture started", "sample_rate", s.cfg.SampleRate, "chunk_size", s.cfg.ChunkSize)
	return nil
}

// convertLoop drains the staging ring, converts s16le to float32, and emits
// fixed-size chunks.
func (s *Source) convertLoop(ctx context.Context) {
	defer s.wg.Done()

	raw := make([]byte, s.cfg.ChunkSize*2)
	chunk := make([]float32, 0, s.cfg.ChunkSize)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for s.staging.Length() >= 2 {
			n, err := s.staging.Read(raw)
			if err != nil || n < 2 {
				break
			}
			for i := 0; i+1 < n; i += 2 {
				sample := int16(raw[i]) | int16(raw[i+1])<<8
				chunk = append(chunk, float32(sample)/32768)
				if len(chunk) == s.cfg.ChunkSize {
					out := make([]float32, s.cfg.ChunkSize)
					copy(out, chunk)
					chunk = chunk[:0]
					select {
					case s.output <- out:
					default:
						// Consumer is behind; drop the oldest chunk.
						select {
						case <-s.output:
						default:
						}
						s.output <- out
					}
				}
			}
		}
	}
}

// Stop halts capture and releases the device.
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		return
	}
	s.running.Store(false)
	close(s.stop)
	s.wg.Wait()

	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	s.teardownContext()
	s.logger.Info("capture stopped", "dropped_bytes", s.dropped.Load())
}

func (s *Source) teardownContext() {
	if s.ctx != nil {
		_ = s.ctx.Uninit()
		s.ctx.Free()
		s.ctx = nil
	}
}
