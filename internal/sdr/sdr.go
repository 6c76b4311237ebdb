// Package sdr defines the acquisition side of the pipeline: the raw sample
// buffer type, the StreamSource contract consumed by the controller, the
// hardware driver registry and the test-mode sources.
package sdr

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/radiocollartracker/sdr-record/internal/bridge"
	"github.com/radiocollartracker/sdr-record/internal/conf"
	"github.com/radiocollartracker/sdr-record/internal/errors"
	"github.com/radiocollartracker/sdr-record/internal/logger"
)

// Buffer is a fixed-size block of IQ samples. Ordering between buffers is
// given by the FIFO order of the sample bridge; Seq mirrors it for logging.
// A Buffer has exactly one owner: once pushed, the producer must not touch it.
type Buffer struct {
	Seq     uint64
	Time    time.Time // capture time of the first sample
	Samples []complex64
}

// SampleBridge carries raw buffers from the source to the processing stage
type SampleBridge = bridge.Bridge[*Buffer]

// RunState is the view of the shared program state handed to a source. The
// acquisition loop polls Stopping; end of input calls RequestStop and an
// acquisition failure calls Fault.
type RunState interface {
	Stopping() bool
	RequestStop()
	Fault(err error)
}

// StreamSource produces raw sample buffers on its own goroutine
type StreamSource interface {
	// StartStreaming starts the acquisition goroutine pushing into samples
	// until state reports stopping or StopStreaming is called.
	StartStreaming(samples *SampleBridge, state RunState) error

	// StopStreaming asks the acquisition goroutine to finish and waits for
	// it. No push happens after StopStreaming returns.
	StopStreaming() error
}

// ErrHardwareUnavailable is the sentinel matched by HardwareUnavailableError
var ErrHardwareUnavailable = errors.NewStd("no compatible SDR device found")

// HardwareUnavailableError reports that no driver could open a device
type HardwareUnavailableError struct {
	Tried []string // driver names that were attempted
	Cause error    // last driver error, nil when no driver is registered
}

func (e *HardwareUnavailableError) Error() string {
	if len(e.Tried) == 0 {
		return "no devices found: no SDR driver registered"
	}
	msg := fmt.Sprintf("no devices found (tried %s)", strings.Join(e.Tried, ", "))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap lets errors.Is match ErrHardwareUnavailable
func (e *HardwareUnavailableError) Unwrap() error {
	return ErrHardwareUnavailable
}

// ErrorCategory implements errors.CategorizedError
func (e *HardwareUnavailableError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryHardware
}

// DeviceConfig carries the tuning parameters a hardware driver needs
type DeviceConfig struct {
	Gain       float64
	SampleRate uint64
	CenterFreq uint64
	BufferLen  int
}

// Driver opens a hardware-backed StreamSource
type Driver interface {
	Name() string
	Open(cfg DeviceConfig, log logger.Logger) (StreamSource, error)
}

var (
	driversMu sync.RWMutex
	drivers   []Driver
)

// Register adds a hardware driver. Drivers are tried in registration order.
// Hardware drivers call it from init in their own build-tagged file (for
// example a `//go:build uhd` file wrapping the vendor library), so a default
// build has an empty registry and only test mode can stream.
func Register(d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers = append(drivers, d)
}

// Open tries every registered driver and returns the first device that opens.
// It fails with a HardwareUnavailableError when none does, which is always
// the case for a build without driver tags.
func Open(cfg DeviceConfig, log logger.Logger) (StreamSource, error) {
	driversMu.RLock()
	candidates := append([]Driver(nil), drivers...)
	driversMu.RUnlock()

	notFound := &HardwareUnavailableError{}
	for _, d := range candidates {
		notFound.Tried = append(notFound.Tried, d.Name())
		src, err := d.Open(cfg, log)
		if err == nil {
			log.Info("opened SDR device", logger.String("driver", d.Name()))
			return src, nil
		}
		log.Warn("SDR driver failed to open device",
			logger.String("driver", d.Name()),
			logger.Error(err))
		notFound.Cause = err
	}
	return nil, notFound
}

// New builds the StreamSource selected by the settings: a file replay or a
// synthetic generator in test mode, otherwise a hardware device.
func New(s *conf.Settings, log logger.Logger) (StreamSource, error) {
	if log == nil {
		log = logger.Global().Module("sdr")
	}

	if s.TestConfig {
		if s.TestData != "" {
			log.Info("replaying recorded samples", logger.String("path", s.TestData))
			src, err := NewFileSource(FileSourceConfig{
				Path:       s.TestData,
				SampleRate: s.SamplingFreq,
				BufferLen:  s.BufferLen,
			}, log.Module("file"))
			if err != nil {
				return nil, err
			}
			return src, nil
		}
		log.Info("using synthetic sample generator")
		return NewSynthetic(SyntheticConfig{
			SampleRate:  s.SamplingFreq,
			CenterFreq:  s.CenterFreq,
			Frequencies: s.Frequencies,
			PingWidth:   time.Duration(s.PingWidthMs) * time.Millisecond,
			BufferLen:   s.BufferLen,
			Realtime:    true,
		}, log.Module("synthetic")), nil
	}

	log.Info("initializing radio",
		logger.Float64("gain", s.Gain),
		logger.Uint64("sampling_freq", s.SamplingFreq),
		logger.Uint64("center_freq", s.CenterFreq))
	return Open(DeviceConfig{
		Gain:       s.Gain,
		SampleRate: s.SamplingFreq,
		CenterFreq: s.CenterFreq,
		BufferLen:  s.BufferLen,
	}, log)
}
