// Package localization consumes detected pings, tags them with the vehicle
// position and keeps a running position estimate per transmitter.
package localization

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/radiocollartracker/sdr-record/internal/dsp"
	"github.com/radiocollartracker/sdr-record/internal/errors"
	"github.com/radiocollartracker/sdr-record/internal/gps"
	"github.com/radiocollartracker/sdr-record/internal/logger"
)

// MinEstimatePings is the number of geotagged pings needed for an estimate
const MinEstimatePings = 3

// Localizer consumes the event bridge on its own goroutine
type Localizer interface {
	// Start begins consuming events until the bridge is closed and drained
	Start(events *dsp.EventBridge) error
	// Stop closes the bridge if still open, drains it and joins
	Stop() error
}

// FixSource supplies the current vehicle position
type FixSource interface {
	Latest() (gps.Fix, bool)
}

// Estimate is the amplitude-weighted centroid of the geotagged pings of one
// transmitter frequency.
type Estimate struct {
	Frequency int64
	Latitude  float64
	Longitude float64
	Pings     int
}

// track accumulates geotagged observations for one frequency
type track struct {
	lats    []float64
	lons    []float64
	weights []float64
}

// PingLocalizer writes every ping to the run's localization log and emits an
// estimate line whenever a frequency has enough geotagged pings.
type PingLocalizer struct {
	path  string
	fixes FixSource
	log   logger.Logger

	file   *os.File
	writer *bufio.Writer

	mu        sync.Mutex
	running   bool
	events    *dsp.EventBridge
	tracks    map[int64]*track
	estimates map[int64]Estimate
	pings     uint64
	writeErr  error

	wg sync.WaitGroup
}

// NewPingLocalizer prepares a localizer writing to path. fixes may be nil,
// in which case pings are logged without a position.
func NewPingLocalizer(path string, fixes FixSource, log logger.Logger) *PingLocalizer {
	if log == nil {
		log = logger.Global().Module("localization")
	}
	return &PingLocalizer{
		path:      path,
		fixes:     fixes,
		log:       log,
		tracks:    make(map[int64]*track),
		estimates: make(map[int64]Estimate),
	}
}

// Start implements Localizer
func (l *PingLocalizer) Start(events *dsp.EventBridge) error {
	if events == nil {
		return errors.Newf("event bridge is required").
			Component("localization").
			Category(errors.CategoryLocalization).
			Build()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return errors.Newf("localizer already started").
			Component("localization").
			Category(errors.CategoryState).
			Build()
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.New(err).
			Component("localization").
			Category(errors.CategoryFileIO).
			FileContext(l.path).
			Build()
	}
	l.file = f
	l.writer = bufio.NewWriter(f)
	l.running = true
	l.events = events

	l.wg.Add(1)
	go l.run(events)
	return nil
}

// Stop implements Localizer. It returns the first write error, if any.
func (l *PingLocalizer) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = false
	events := l.events
	l.mu.Unlock()

	events.Close()
	l.wg.Wait()

	flushErr := l.writer.Flush()
	closeErr := l.file.Close()

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := errors.Join(l.writeErr, flushErr, closeErr); err != nil {
		return errors.New(err).
			Component("localization").
			Category(errors.CategoryFileIO).
			FileContext(l.path).
			Build()
	}
	return nil
}

// Estimates returns the current estimates ordered by frequency
func (l *PingLocalizer) Estimates() []Estimate {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Estimate, 0, len(l.estimates))
	for _, e := range l.estimates {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Frequency < out[j].Frequency })
	return out
}

// Pings returns the number of pings consumed
func (l *PingLocalizer) Pings() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pings
}

func (l *PingLocalizer) run(events *dsp.EventBridge) {
	defer l.wg.Done()
	for {
		ping, ok := events.Pop()
		if !ok {
			return
		}
		l.consume(ping)
	}
}

func (l *PingLocalizer) consume(p *dsp.Ping) {
	var fix gps.Fix
	var tagged bool
	if l.fixes != nil {
		fix, tagged = l.fixes.Latest()
	}

	l.write(formatPing(p, fix, tagged))

	l.mu.Lock()
	l.pings++
	if !tagged {
		l.mu.Unlock()
		return
	}

	tr, ok := l.tracks[p.Frequency]
	if !ok {
		tr = &track{}
		l.tracks[p.Frequency] = tr
	}
	tr.lats = append(tr.lats, fix.Latitude)
	tr.lons = append(tr.lons, fix.Longitude)
	tr.weights = append(tr.weights, p.Amplitude)

	if len(tr.lats) < MinEstimatePings {
		l.mu.Unlock()
		return
	}
	est, ok := centroid(p.Frequency, tr)
	if ok {
		l.estimates[p.Frequency] = est
	}
	l.mu.Unlock()

	if ok {
		l.write(formatEstimate(est))
		l.log.Info("updated transmitter estimate",
			logger.Int64("frequency", est.Frequency),
			logger.Float64("lat", est.Latitude),
			logger.Float64("lon", est.Longitude),
			logger.Int("pings", est.Pings))
	}
}

// centroid computes the weighted mean position. All-zero weights yield no estimate.
func centroid(freq int64, tr *track) (Estimate, bool) {
	var total float64
	for _, w := range tr.weights {
		total += w
	}
	if total <= 0 {
		return Estimate{}, false
	}
	return Estimate{
		Frequency: freq,
		Latitude:  stat.Mean(tr.lats, tr.weights),
		Longitude: stat.Mean(tr.lons, tr.weights),
		Pings:     len(tr.lats),
	}, true
}

func (l *PingLocalizer) write(line string) {
	if _, err := l.writer.WriteString(line); err != nil {
		l.mu.Lock()
		if l.writeErr == nil {
			l.writeErr = err
			l.log.Error("failed to write localization record", logger.Error(err), logger.String("path", l.path))
		}
		l.mu.Unlock()
	}
}

func formatPing(p *dsp.Ping, fix gps.Fix, tagged bool) string {
	line := fmt.Sprintf("ping %s time=%s freq=%d amp=%s snr=%s dur_ms=%s",
		p.ID,
		formatFloat(float64(p.Time.Unix())+float64(p.Time.Nanosecond())/1e9),
		p.Frequency,
		formatFloat(p.Amplitude),
		formatFloat(p.SNR),
		formatFloat(float64(p.Duration.Microseconds())/1000))
	if tagged {
		line += fmt.Sprintf(" lat=%s lon=%s alt=%s",
			formatFloat(fix.Latitude), formatFloat(fix.Longitude), formatFloat(fix.Altitude))
	}
	return line + "\n"
}

func formatEstimate(e Estimate) string {
	return fmt.Sprintf("estimate freq=%d lat=%s lon=%s pings=%d\n",
		e.Frequency, formatFloat(e.Latitude), formatFloat(e.Longitude), e.Pings)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
