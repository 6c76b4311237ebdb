package sdr

import (
	"io"
	"math"
	"math/rand/v2"
	"time"

	"github.com/radiocollartracker/sdr-record/internal/logger"
)

// Synthetic pulse generator defaults
const (
	DefaultPingPeriod     = time.Second
	DefaultPingAmplitude  = 0.5
	DefaultNoiseAmplitude = 0.01
)

// SyntheticConfig configures the generator
type SyntheticConfig struct {
	SampleRate  uint64
	CenterFreq  uint64
	Frequencies []int64       // absolute transmitter frequencies in Hz
	PingWidth   time.Duration // pulse length
	PingPeriod  time.Duration // pulse repetition interval, DefaultPingPeriod if zero
	Amplitude   float64       // pulse amplitude, DefaultPingAmplitude if zero
	Noise       float64       // noise amplitude, DefaultNoiseAmplitude if zero; negative disables noise
	BufferLen   int
	Realtime    bool // pace buffers at the sample rate
	MaxBuffers  int  // stop after this many buffers; 0 means unbounded
	Seed        uint64
}

// Synthetic emits complex baseband containing periodic carrier pulses at the
// configured frequencies plus Gaussian noise.
type Synthetic struct {
	cfg     SyntheticConfig
	offsets []float64
	rng     *rand.Rand
	clock   func() time.Time

	emitted  int
	position uint64 // sample index of the next buffer
	epoch    time.Time

	streamer
}

// NewSynthetic returns a generator ready to stream
func NewSynthetic(cfg SyntheticConfig, log logger.Logger) *Synthetic {
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = DefaultPingPeriod
	}
	if cfg.Amplitude == 0 {
		cfg.Amplitude = DefaultPingAmplitude
	}
	if cfg.Noise == 0 {
		cfg.Noise = DefaultNoiseAmplitude
	}
	if cfg.BufferLen <= 0 {
		cfg.BufferLen = 1 << 16
	}

	offsets := make([]float64, 0, len(cfg.Frequencies))
	for _, f := range cfg.Frequencies {
		offsets = append(offsets, float64(f)-float64(cfg.CenterFreq))
	}

	return &Synthetic{
		cfg:      cfg,
		offsets:  offsets,
		rng:      rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		clock:    time.Now,
		streamer: streamer{log: log},
	}
}

// StartStreaming implements StreamSource
func (g *Synthetic) StartStreaming(samples *SampleBridge, state RunState) error {
	return g.start(samples, state, g.next)
}

// StopStreaming implements StreamSource
func (g *Synthetic) StopStreaming() error {
	return g.stop()
}

func (g *Synthetic) next(quit <-chan struct{}) (*Buffer, error) {
	if g.cfg.MaxBuffers > 0 && g.emitted >= g.cfg.MaxBuffers {
		return nil, io.EOF
	}

	if g.epoch.IsZero() {
		g.epoch = g.clock()
	}
	start := g.epoch.Add(sampleOffset(g.position, g.cfg.SampleRate))

	if g.cfg.Realtime {
		due := g.epoch.Add(sampleOffset(g.position+uint64(g.cfg.BufferLen), g.cfg.SampleRate))
		if wait := time.Until(due); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-quit:
				timer.Stop()
				return nil, nil
			case <-timer.C:
			}
		}
	}

	buf := &Buffer{Time: start, Samples: g.Generate(g.position, g.cfg.BufferLen)}
	g.position += uint64(g.cfg.BufferLen)
	g.emitted++
	return buf, nil
}

// Generate synthesizes n samples starting at absolute sample index pos
func (g *Synthetic) Generate(pos uint64, n int) []complex64 {
	out := make([]complex64, n)
	rate := float64(g.cfg.SampleRate)
	period := g.cfg.PingPeriod.Seconds()
	width := g.cfg.PingWidth.Seconds()

	for i := range out {
		t := float64(pos+uint64(i)) / rate
		var re, im float64
		if math.Mod(t, period) < width {
			for _, off := range g.offsets {
				phase := 2 * math.Pi * off * t
				re += g.cfg.Amplitude * math.Cos(phase)
				im += g.cfg.Amplitude * math.Sin(phase)
			}
		}
		if g.cfg.Noise > 0 {
			re += g.cfg.Noise * g.rng.NormFloat64()
			im += g.cfg.Noise * g.rng.NormFloat64()
		}
		out[i] = complex(float32(re), float32(im))
	}
	return out
}
