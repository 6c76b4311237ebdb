package controller

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiocollartracker/sdr-record/internal/errors"
)

func TestWaitForTimesOutWhileRunning(t *testing.T) {
	t.Parallel()

	s := NewProgramState()
	start := time.Now()
	assert.False(t, s.WaitFor(50*time.Millisecond))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, StateRunning, s.State())
}

func TestRequestStopWakesWaiter(t *testing.T) {
	t.Parallel()

	s := NewProgramState()
	woke := make(chan time.Duration, 1)
	start := time.Now()
	go func() {
		for !s.WaitFor(time.Hour) {
		}
		woke <- time.Since(start)
	}()

	time.Sleep(20 * time.Millisecond)
	s.RequestStop()

	select {
	case d := <-woke:
		assert.Less(t, d, time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not woken by RequestStop")
	}
	assert.True(t, s.Stopping())
	assert.NoError(t, s.Err())
}

func TestStopIsOneWayAndFirstFaultWins(t *testing.T) {
	t.Parallel()

	s := NewProgramState()
	first := errors.NewStd("overflow")
	s.Fault(first)
	s.Fault(errors.NewStd("second"))
	s.RequestStop()

	assert.Equal(t, StateStopping, s.State())
	assert.Equal(t, first, s.Err())
	assert.True(t, s.WaitFor(0))
}

func TestManyWaitersAllWake(t *testing.T) {
	t.Parallel()

	s := NewProgramState()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !s.WaitFor(10 * time.Millisecond) {
			}
		}()
	}

	time.Sleep(30 * time.Millisecond)
	s.RequestStop()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waiters still blocked")
	}
}

func TestRunStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "RUNNING", StateRunning.String())
	assert.Equal(t, "STOPPING", StateStopping.String())
	require.Equal(t, "stopped", PhaseStopped.String())
}
