// Package dsp holds the processing stage of the pipeline: it consumes raw
// sample buffers and emits ping events.
package dsp

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/radiocollartracker/sdr-record/internal/bridge"
	"github.com/radiocollartracker/sdr-record/internal/sdr"
)

// Ping is a detected transmitter pulse. Ownership moves with the pointer
// through the event bridge.
type Ping struct {
	ID        uuid.UUID
	Time      time.Time     // start of the pulse
	Frequency int64         // transmitter frequency in Hz
	Amplitude float64       // peak bin magnitude, full scale = 1
	SNR       float64       // peak signal to noise ratio in dB
	Duration  time.Duration // measured pulse length
}

func (p *Ping) String() string {
	return fmt.Sprintf("ping %s freq=%d amp=%.4f snr=%.1fdB dur=%s",
		p.ID, p.Frequency, p.Amplitude, p.SNR, p.Duration)
}

// EventBridge carries pings from the processing stage to the localizer
type EventBridge = bridge.Bridge[*Ping]

// ProcessingStage consumes sample buffers on its own goroutine
type ProcessingStage interface {
	// StartProcessing starts the consumer goroutine. Every buffer pushed to
	// samples is processed, in order, until samples is closed and drained.
	StartProcessing(samples *sdr.SampleBridge, events *EventBridge) error

	// StopProcessing closes the sample bridge if it is still open, waits until
	// every buffer already queued has been processed and joins the goroutine.
	StopProcessing() error
}
