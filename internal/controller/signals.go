package controller

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// DefaultSignals are the termination signals watched by default
var DefaultSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// signalWatcher turns termination signals into a stop request
type signalWatcher struct {
	ch     chan os.Signal
	done   chan struct{}
	wg     sync.WaitGroup
	caught atomic.Value // os.Signal
	once   sync.Once
}

// watchSignals calls requestStop for every signal received. requestStop is
// the only thing run on a signal.
func watchSignals(requestStop func(), sigs ...os.Signal) *signalWatcher {
	w := &signalWatcher{
		ch:   make(chan os.Signal, 1),
		done: make(chan struct{}),
	}
	signal.Notify(w.ch, sigs...)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case sig := <-w.ch:
				w.caught.Store(sig)
				requestStop()
			case <-w.done:
				return
			}
		}
	}()
	return w
}

// Caught returns the last signal received, if any
func (w *signalWatcher) Caught() (os.Signal, bool) {
	sig, ok := w.caught.Load().(os.Signal)
	return sig, ok
}

// Stop restores default signal handling and joins the watcher
func (w *signalWatcher) Stop() {
	w.once.Do(func() {
		signal.Stop(w.ch)
		close(w.done)
		w.wg.Wait()
	})
}
