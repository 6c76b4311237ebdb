package controller

import (
	"sync"
	"time"
)

// RunState is the two-valued program state shared by every stage
type RunState int

const (
	StateRunning RunState = iota
	StateStopping
)

func (s RunState) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// ProgramState is the process-wide run flag. Writes happen under its mutex and
// wake every waiter through its condition variable. The transition to
// STOPPING is one-way.
type ProgramState struct {
	mu    sync.Mutex
	cond  *sync.Cond
	state RunState
	err   error // first fault, nil for a normal stop
}

// NewProgramState returns a state in RUNNING
func NewProgramState() *ProgramState {
	s := &ProgramState{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// RequestStop moves to STOPPING and wakes waiters. It only takes the lock,
// writes the flag and broadcasts, so it is safe to call from the signal
// watcher.
func (s *ProgramState) RequestStop() {
	s.mu.Lock()
	s.state = StateStopping
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Fault records err as the reason for stopping. Only the first fault is kept.
func (s *ProgramState) Fault(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.state = StateStopping
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Stopping reports whether a stop has been requested
func (s *ProgramState) Stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateStopping
}

// State returns the current value
func (s *ProgramState) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the first recorded fault
func (s *ProgramState) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// WaitFor blocks until the state is STOPPING or timeout elapses, and reports
// whether it is STOPPING.
func (s *ProgramState) WaitFor(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopping {
		return true
	}

	deadline := time.Now().Add(timeout)
	// the timer takes the lock before broadcasting, so the wakeup cannot be
	// lost between scheduling it and entering Wait
	timer := time.AfterFunc(timeout, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer timer.Stop()

	for s.state != StateStopping && time.Now().Before(deadline) {
		s.cond.Wait()
	}
	return s.state == StateStopping
}
