package sdr

import (
	"bytes"
	"io"
	"math/cmplx"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/radiocollartracker/sdr-record/internal/bridge"
	"github.com/radiocollartracker/sdr-record/internal/conf"
	"github.com/radiocollartracker/sdr-record/internal/errors"
	"github.com/radiocollartracker/sdr-record/internal/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeState records what a source reports back to the controller
type fakeState struct {
	mu       sync.Mutex
	stopping bool
	faults   []error
	stopped  chan struct{}
	once     sync.Once
}

func newFakeState() *fakeState {
	return &fakeState{stopped: make(chan struct{})}
}

func (s *fakeState) Stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

func (s *fakeState) RequestStop() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
	s.once.Do(func() { close(s.stopped) })
}

func (s *fakeState) Fault(err error) {
	s.mu.Lock()
	s.faults = append(s.faults, err)
	s.mu.Unlock()
	s.RequestStop()
}

func waitStopped(t *testing.T, s *fakeState) {
	t.Helper()
	select {
	case <-s.stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("source never requested stop")
	}
}

func drain(b *SampleBridge) []*Buffer {
	var out []*Buffer
	for {
		buf, ok := b.TryPop()
		if !ok {
			return out
		}
		out = append(out, buf)
	}
}

func writeRecording(t *testing.T, path string, samples []complex64) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteIQ(&buf, samples))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestFileSourceReplaysDirectoryInOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := []complex64{complex(0.5, -0.5), complex(0.25, 0.125), complex(-1, 0)}
	second := []complex64{complex(0, 0.75), complex(0.5, 0.5)}
	writeRecording(t, filepath.Join(dir, conf.RawDataPrefix+"000002"), second)
	writeRecording(t, filepath.Join(dir, conf.RawDataPrefix+"000001"), first)

	src, err := NewFileSource(FileSourceConfig{Path: dir, SampleRate: 1000, BufferLen: 4}, logger.NewDiscardLogger())
	require.NoError(t, err)
	require.Len(t, src.Files(), 2)
	assert.Equal(t, conf.RawDataPrefix+"000001", filepath.Base(src.Files()[0]))

	samples := bridge.New[*Buffer]("samples")
	state := newFakeState()
	require.NoError(t, src.StartStreaming(samples, state))
	waitStopped(t, state)
	require.NoError(t, src.StopStreaming())

	bufs := drain(samples)
	require.Len(t, bufs, 2)
	assert.Equal(t, uint64(0), bufs[0].Seq)
	assert.Equal(t, uint64(1), bufs[1].Seq)
	assert.Equal(t, 4*time.Millisecond, bufs[1].Time.Sub(bufs[0].Time))

	want := append(append([]complex64{}, first...), second...)
	want = append(want, 0, 0, 0) // zero padding of the final buffer
	var got []complex64
	for _, b := range bufs {
		require.Len(t, b.Samples, 4)
		got = append(got, b.Samples...)
	}
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, 0, cmplx.Abs(complex128(got[i]-want[i])), 1e-4, "sample %d", i)
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	assert.Empty(t, state.faults, "end of data is a normal stop")
}

func TestFileSourceRejectsMissingInput(t *testing.T) {
	t.Parallel()

	_, err := NewFileSource(FileSourceConfig{Path: filepath.Join(t.TempDir(), "nope")}, logger.NewDiscardLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))

	_, err = NewFileSource(FileSourceConfig{Path: t.TempDir()}, logger.NewDiscardLogger())
	require.Error(t, err)
}

func TestSyntheticPulsesOnTargetFrequency(t *testing.T) {
	t.Parallel()

	g := NewSynthetic(SyntheticConfig{
		SampleRate:  10_000,
		CenterFreq:  150_000_000,
		Frequencies: []int64{150_001_000},
		PingWidth:   20 * time.Millisecond,
		PingPeriod:  100 * time.Millisecond,
		Noise:       -1,
	}, logger.NewDiscardLogger())

	samples := g.Generate(0, 1000)

	// inside the pulse the carrier has the configured amplitude
	assert.InDelta(t, DefaultPingAmplitude, cmplx.Abs(complex128(samples[10])), 1e-3)
	// between pulses the output is silent when noise is disabled
	assert.Zero(t, samples[500])
	// the next period starts another pulse
	assert.InDelta(t, DefaultPingAmplitude, cmplx.Abs(complex128(g.Generate(1000, 10)[5])), 1e-3)
}

func TestSyntheticStopsAfterMaxBuffers(t *testing.T) {
	t.Parallel()

	g := NewSynthetic(SyntheticConfig{SampleRate: 8000, BufferLen: 128, MaxBuffers: 5}, logger.NewDiscardLogger())
	samples := bridge.New[*Buffer]("samples")
	state := newFakeState()

	require.NoError(t, g.StartStreaming(samples, state))
	waitStopped(t, state)
	require.NoError(t, g.StopStreaming())

	assert.Len(t, drain(samples), 5)
	state.mu.Lock()
	assert.Empty(t, state.faults, "end of input is a normal stop")
	state.mu.Unlock()

	buf, err := g.next(nil)
	assert.Nil(t, buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStopStreamingJoinsRealtimeSource(t *testing.T) {
	t.Parallel()

	g := NewSynthetic(SyntheticConfig{SampleRate: 1000, BufferLen: 10_000, Realtime: true}, logger.NewDiscardLogger())
	samples := bridge.New[*Buffer]("samples")
	state := newFakeState()

	require.NoError(t, g.StartStreaming(samples, state))
	require.Error(t, g.StartStreaming(samples, state), "second start must be rejected")

	start := time.Now()
	require.NoError(t, g.StopStreaming())
	assert.Less(t, time.Since(start), time.Second, "stop must interrupt the pacing wait")

	pushed, _ := samples.Stats()
	assert.Zero(t, pushed)
	require.NoError(t, g.StopStreaming(), "second stop is a no-op")
}

func TestSourceObservesStopping(t *testing.T) {
	t.Parallel()

	g := NewSynthetic(SyntheticConfig{SampleRate: 8000, BufferLen: 64}, logger.NewDiscardLogger())
	samples := bridge.New[*Buffer]("samples")
	state := newFakeState()
	state.RequestStop()

	require.NoError(t, g.StartStreaming(samples, state))
	require.NoError(t, g.StopStreaming())
	assert.Zero(t, samples.Len())
}

type failingDriver struct{ name string }

func (d failingDriver) Name() string { return d.name }

func (d failingDriver) Open(DeviceConfig, logger.Logger) (StreamSource, error) {
	return nil, errors.NewStd("device not found")
}

type fileDriver struct{ path string }

func (fileDriver) Name() string { return "file" }

func (d fileDriver) Open(cfg DeviceConfig, log logger.Logger) (StreamSource, error) {
	src, err := NewFileSource(FileSourceConfig{Path: d.path, SampleRate: cfg.SampleRate, BufferLen: cfg.BufferLen}, log)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// withDrivers swaps the registry for the duration of a test. Tests using it
// must not run in parallel.
func withDrivers(t *testing.T, ds ...Driver) {
	t.Helper()
	driversMu.Lock()
	saved := drivers
	drivers = nil
	driversMu.Unlock()
	for _, d := range ds {
		Register(d)
	}
	t.Cleanup(func() {
		driversMu.Lock()
		drivers = saved
		driversMu.Unlock()
	})
}

func TestOpenWithoutDriversIsHardwareUnavailable(t *testing.T) {
	withDrivers(t)

	_, err := Open(DeviceConfig{}, logger.NewDiscardLogger())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrHardwareUnavailable)

	var hwErr *HardwareUnavailableError
	require.ErrorAs(t, err, &hwErr)
	assert.Empty(t, hwErr.Tried)
}

func TestOpenTriesDriversInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.iq")
	writeRecording(t, path, []complex64{1, 2})

	withDrivers(t, failingDriver{name: "uhd"}, fileDriver{path: path})

	src, err := Open(DeviceConfig{SampleRate: 1000, BufferLen: 2}, logger.NewDiscardLogger())
	require.NoError(t, err)
	assert.IsType(t, &FileSource{}, src)
}

func TestOpenReportsLastDriverError(t *testing.T) {
	withDrivers(t, failingDriver{name: "uhd"}, failingDriver{name: "soapy"})

	_, err := Open(DeviceConfig{}, logger.NewDiscardLogger())
	var hwErr *HardwareUnavailableError
	require.ErrorAs(t, err, &hwErr)
	assert.Equal(t, []string{"uhd", "soapy"}, hwErr.Tried)
	assert.Contains(t, err.Error(), "device not found")
	assert.Equal(t, errors.CategoryHardware, hwErr.ErrorCategory())
}

func TestNewSelectsSourceFromSettings(t *testing.T) {
	withDrivers(t)

	settings := &conf.Settings{Options: conf.Options{
		RunNum: 1, Gain: 0, SamplingFreq: 2_000_000, CenterFreq: 150_000_000,
		Output: t.TempDir(), TestConfig: true, BufferLen: 1024,
	}}
	src, err := New(settings, logger.NewDiscardLogger())
	require.NoError(t, err)
	assert.IsType(t, &Synthetic{}, src)

	path := filepath.Join(t.TempDir(), "capture.iq")
	writeRecording(t, path, []complex64{1})
	settings.TestData = path
	src, err = New(settings, logger.NewDiscardLogger())
	require.NoError(t, err)
	assert.IsType(t, &FileSource{}, src)

	settings.TestConfig = false
	_, err = New(settings, logger.NewDiscardLogger())
	require.ErrorIs(t, err, ErrHardwareUnavailable)
}
