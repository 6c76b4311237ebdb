package dsp

import (
	"math"
	"math/cmplx"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/radiocollartracker/sdr-record/internal/errors"
	"github.com/radiocollartracker/sdr-record/internal/logger"
	"github.com/radiocollartracker/sdr-record/internal/sdr"
)

// Detector tuning defaults
const (
	DefaultNoiseAlpha = 0.05
	minFrameSize      = 16
	maxFrameSize      = 4096
	// frames per expected pulse width used to size the FFT
	framesPerPulse = 8
)

// DetectorConfig configures the reference ping detector
type DetectorConfig struct {
	SampleRate  uint64
	CenterFreq  uint64
	Frequencies []int64
	PingWidth   time.Duration
	MinSNR      float64 // dB
	MinLenMult  float64
	MaxLenMult  float64
	FrameSize   int     // FFT length, derived from rate and ping width if zero
	NoiseAlpha  float64 // noise floor smoothing, DefaultNoiseAlpha if zero
}

// DetectorStats are cumulative counters published to metrics
type DetectorStats struct {
	Buffers  uint64
	Frames   uint64
	Pings    uint64
	Rejected uint64 // pulses outside the length gate
	Dropped  uint64 // pings refused by a closed event bridge
}

// channel tracks one transmitter frequency
type channel struct {
	freq  int64
	bin   int
	noise float64 // smoothed power floor, 0 until the first frame

	inPulse   bool
	start     time.Time
	frames    int
	peakAmp   float64
	peakPower float64
}

// Detector finds carrier pulses at the target frequencies with a sliding
// FFT. A pulse is reported when its power stays above the noise floor by
// MinSNR for a duration within [MinLenMult, MaxLenMult] * PingWidth.
type Detector struct {
	cfg       DetectorConfig
	log       logger.Logger
	fft       *fourier.CmplxFFT
	frameDur  time.Duration
	channels  []*channel
	minLen    time.Duration
	maxLen    time.Duration
	frame     []complex128
	coeffs    []complex128
	frameTime time.Time

	buffers  atomic.Uint64
	frames   atomic.Uint64
	pings    atomic.Uint64
	rejected atomic.Uint64
	dropped  atomic.Uint64

	mu      sync.Mutex
	running bool
	samples *sdr.SampleBridge
	wg      sync.WaitGroup
}

// NewDetector validates the configuration and precomputes FFT bins
func NewDetector(cfg DetectorConfig, log logger.Logger) (*Detector, error) {
	if cfg.SampleRate == 0 {
		return nil, errors.Newf("detector needs a sample rate").
			Component("dsp").
			Category(errors.CategoryProcessing).
			Build()
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = FrameSize(cfg.SampleRate, cfg.PingWidth)
	}
	if cfg.NoiseAlpha <= 0 {
		cfg.NoiseAlpha = DefaultNoiseAlpha
	}
	if log == nil {
		log = logger.Global().Module("dsp")
	}

	d := &Detector{
		cfg:      cfg,
		log:      log,
		fft:      fourier.NewCmplxFFT(cfg.FrameSize),
		frameDur: time.Duration(float64(cfg.FrameSize) / float64(cfg.SampleRate) * float64(time.Second)),
		minLen:   time.Duration(cfg.MinLenMult * float64(cfg.PingWidth)),
		maxLen:   time.Duration(cfg.MaxLenMult * float64(cfg.PingWidth)),
		frame:    make([]complex128, 0, cfg.FrameSize),
		coeffs:   make([]complex128, cfg.FrameSize),
	}

	for _, f := range cfg.Frequencies {
		offset := float64(f) - float64(cfg.CenterFreq)
		d.channels = append(d.channels, &channel{freq: f, bin: binFor(offset, cfg.SampleRate, cfg.FrameSize)})
	}

	log.Debug("detector configured",
		logger.Int("frame_size", cfg.FrameSize),
		logger.Duration("frame_duration", d.frameDur),
		logger.Int("channels", len(d.channels)))
	return d, nil
}

// FrameSize picks the largest power of two FFT that still resolves a pulse of
// the given width with several frames.
func FrameSize(rate uint64, width time.Duration) int {
	target := float64(rate) * width.Seconds() / framesPerPulse
	n := minFrameSize
	for n < maxFrameSize && float64(n*2) <= target {
		n *= 2
	}
	return n
}

// binFor maps a baseband offset in Hz to an FFT bin index
func binFor(offset float64, rate uint64, n int) int {
	k := int(math.Round(offset / float64(rate) * float64(n)))
	k %= n
	if k < 0 {
		k += n
	}
	return k
}

// StartProcessing implements ProcessingStage
func (d *Detector) StartProcessing(samples *sdr.SampleBridge, events *EventBridge) error {
	if samples == nil || events == nil {
		return errors.Newf("sample and event bridges are required").
			Component("dsp").
			Category(errors.CategoryProcessing).
			Build()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.Newf("processing already started").
			Component("dsp").
			Category(errors.CategoryState).
			Build()
	}
	d.running = true
	d.samples = samples

	d.wg.Add(1)
	go d.run(samples, events)
	return nil
}

// StopProcessing implements ProcessingStage
func (d *Detector) StopProcessing() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	samples := d.samples
	d.mu.Unlock()

	samples.Close()
	d.wg.Wait()
	return nil
}

// Stats returns a snapshot of the detector counters
func (d *Detector) Stats() DetectorStats {
	return DetectorStats{
		Buffers:  d.buffers.Load(),
		Frames:   d.frames.Load(),
		Pings:    d.pings.Load(),
		Rejected: d.rejected.Load(),
		Dropped:  d.dropped.Load(),
	}
}

func (d *Detector) run(samples *sdr.SampleBridge, events *EventBridge) {
	defer d.wg.Done()

	for {
		buf, ok := samples.Pop()
		if !ok {
			break
		}
		d.process(buf, events)
	}

	for _, ch := range d.channels {
		if ch.inPulse {
			d.log.Debug("discarding pulse still open at end of stream", logger.Int64("frequency", ch.freq))
		}
	}
	d.log.Debug("processing loop exited",
		logger.Uint64("buffers", d.buffers.Load()),
		logger.Uint64("pings", d.pings.Load()))
}

func (d *Detector) process(buf *sdr.Buffer, events *EventBridge) {
	d.buffers.Add(1)
	rate := float64(d.cfg.SampleRate)

	for i, s := range buf.Samples {
		if len(d.frame) == 0 {
			d.frameTime = buf.Time.Add(time.Duration(float64(i) / rate * float64(time.Second)))
		}
		d.frame = append(d.frame, complex128(s))
		if len(d.frame) == d.cfg.FrameSize {
			d.analyze(events)
			d.frame = d.frame[:0]
		}
	}
}

// analyze runs one FFT frame through every channel's pulse tracker
func (d *Detector) analyze(events *EventBridge) {
	d.frames.Add(1)
	if len(d.channels) == 0 {
		return
	}

	d.coeffs = d.fft.Coefficients(d.coeffs, d.frame)
	n := float64(d.cfg.FrameSize)

	for _, ch := range d.channels {
		amp := cmplx.Abs(d.coeffs[ch.bin]) / n
		power := amp * amp

		if ch.noise == 0 {
			ch.noise = math.Max(power, math.SmallestNonzeroFloat64)
			continue
		}

		snr := 10 * math.Log10(power/ch.noise)
		if snr >= d.cfg.MinSNR {
			if !ch.inPulse {
				ch.inPulse = true
				ch.start = d.frameTime
				ch.frames = 0
				ch.peakAmp = 0
				ch.peakPower = 0
			}
			ch.frames++
			if power > ch.peakPower {
				ch.peakPower = power
				ch.peakAmp = amp
			}
			continue
		}

		if ch.inPulse {
			d.closePulse(ch, events)
		}
		ch.noise += d.cfg.NoiseAlpha * (power - ch.noise)
		if ch.noise <= 0 {
			ch.noise = math.SmallestNonzeroFloat64
		}
	}
}

func (d *Detector) closePulse(ch *channel, events *EventBridge) {
	ch.inPulse = false
	dur := time.Duration(ch.frames) * d.frameDur

	if dur < d.minLen || dur > d.maxLen {
		d.rejected.Add(1)
		return
	}

	ping := &Ping{
		ID:        uuid.New(),
		Time:      ch.start,
		Frequency: ch.freq,
		Amplitude: ch.peakAmp,
		SNR:       10 * math.Log10(ch.peakPower/ch.noise),
		Duration:  dur,
	}
	if err := events.Push(ping); err != nil {
		d.dropped.Add(1)
		d.log.Warn("event bridge closed, ping dropped",
			logger.String("ping_id", ping.ID.String()),
			logger.Error(err))
		return
	}
	d.pings.Add(1)
	d.log.Debug("ping detected",
		logger.Int64("frequency", ping.Frequency),
		logger.Float64("snr_db", ping.SNR),
		logger.Duration("duration", ping.Duration))
}
