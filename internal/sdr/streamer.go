package sdr

import (
	"io"
	"sync"
	"time"

	"github.com/radiocollartracker/sdr-record/internal/errors"
	"github.com/radiocollartracker/sdr-record/internal/logger"
)

// nextFunc produces the next buffer. It returns io.EOF at the end of input
// and must return promptly once quit is closed.
type nextFunc func(quit <-chan struct{}) (*Buffer, error)

// streamer runs the acquisition loop shared by the software sources
type streamer struct {
	log logger.Logger

	mu      sync.Mutex
	running bool
	quit    chan struct{}
	wg      sync.WaitGroup
	seq     uint64
}

func (s *streamer) start(samples *SampleBridge, state RunState, next nextFunc) error {
	if samples == nil || state == nil {
		return errors.Newf("sample bridge and run state are required").
			Component("sdr").
			Category(errors.CategoryAcquisition).
			Build()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.Newf("stream already started").
			Component("sdr").
			Category(errors.CategoryState).
			Build()
	}

	s.running = true
	s.quit = make(chan struct{})
	s.wg.Add(1)
	go s.run(samples, state, next, s.quit)
	return nil
}

func (s *streamer) run(samples *SampleBridge, state RunState, next nextFunc, quit <-chan struct{}) {
	defer s.wg.Done()

	started := time.Now()
	var pushed uint64
	defer func() {
		s.log.Debug("acquisition loop exited",
			logger.Uint64("buffers", pushed),
			logger.Duration("elapsed", time.Since(started)))
	}()

	for !state.Stopping() {
		select {
		case <-quit:
			return
		default:
		}

		buf, err := next(quit)
		switch {
		case errors.Is(err, io.EOF):
			s.log.Info("end of sample input, requesting stop", logger.Uint64("buffers", pushed))
			state.RequestStop()
			return
		case err != nil:
			state.Fault(errors.New(err).
				Component("sdr").
				Category(errors.CategoryAcquisition).
				Build())
			return
		case buf == nil:
			// quit observed inside next
			return
		}

		buf.Seq = s.seq
		s.seq++
		if err := samples.Push(buf); err != nil {
			// bridge closed underneath us; treat as shutdown
			s.log.Debug("sample bridge closed, dropping buffer", logger.Uint64("seq", buf.Seq))
			return
		}
		pushed++
	}
}

// sampleOffset converts a sample index into elapsed time at the given rate
func sampleOffset(pos, rate uint64) time.Duration {
	if rate == 0 {
		return 0
	}
	whole := pos / rate
	rem := pos % rate
	return time.Duration(whole)*time.Second + time.Duration(rem*uint64(time.Second)/rate)
}

func (s *streamer) stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.quit)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}
