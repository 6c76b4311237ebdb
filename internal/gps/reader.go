// Package gps reads position fixes from an NMEA receiver on a serial port
package gps

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/radiocollartracker/sdr-record/internal/errors"
	"github.com/radiocollartracker/sdr-record/internal/logger"
)

// Port is the minimal interface needed from a serial port
type Port interface {
	io.Reader
	io.Closer
}

// Reader keeps the most recent fix parsed from a port
type Reader struct {
	port  Port
	log   logger.Logger
	clock func() time.Time

	mu     sync.RWMutex
	latest Fix
	hasFix bool
	lines  uint64
	bad    uint64

	closeOnce sync.Once
	closeErr  error
}

// Open opens the serial device at 9600 8N1
func Open(target string, log logger.Logger) (*Reader, error) {
	mode := &serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(target, mode)
	if err != nil {
		return nil, errors.New(err).
			Component("gps").
			Category(errors.CategoryGPS).
			Context("target", target).
			Build()
	}
	log.Info("opened GPS serial port", logger.String("target", target))
	return NewReader(port, log), nil
}

// NewReader wraps an already open port
func NewReader(port Port, log logger.Logger) *Reader {
	if log == nil {
		log = logger.Global().Module("gps")
	}
	return &Reader{port: port, log: log, clock: time.Now}
}

// Run reads sentences until ctx is cancelled or the port fails. Cancelling
// ctx closes the port to unblock the pending read.
func (r *Reader) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = r.Close() })
	defer stop()

	scan := bufio.NewScanner(r.port)
	for scan.Scan() {
		r.handle(scan.Text())
	}

	if ctx.Err() != nil {
		return nil
	}
	if err := scan.Err(); err != nil {
		return errors.New(err).
			Component("gps").
			Category(errors.CategoryGPS).
			Build()
	}
	r.log.Warn("GPS port reached end of input")
	return nil
}

func (r *Reader) handle(line string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") || len(line) < 6 || line[3:6] != "GGA" {
		return
	}

	fix, err := ParseGGA(line, r.clock())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines++
	switch {
	case errors.Is(err, ErrNoFix):
		return
	case err != nil:
		r.bad++
		r.log.Debug("discarding NMEA sentence", logger.Error(err))
		return
	}

	if !r.hasFix {
		r.log.Info("first GPS fix",
			logger.Float64("lat", fix.Latitude),
			logger.Float64("lon", fix.Longitude),
			logger.Int("satellites", fix.Satellites))
	}
	r.latest = fix
	r.hasFix = true
}

// Latest returns the most recent fix and whether one has been received
func (r *Reader) Latest() (Fix, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest, r.hasFix
}

// Counts returns how many GGA sentences were seen and how many were malformed
func (r *Reader) Counts() (lines, bad uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lines, r.bad
}

// Close releases the port. It is safe to call more than once.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.port.Close()
	})
	return r.closeErr
}
