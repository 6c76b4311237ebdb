package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *PipelineMetrics {
	t.Helper()
	m, err := NewPipelineMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestObserveBridgeConvertsSnapshotsToDeltas(t *testing.T) {
	t.Parallel()

	m := newTestMetrics(t)
	m.ObserveBridge(BridgeSamples, 3, 10, 7)
	m.ObserveBridge(BridgeSamples, 1, 15, 14)

	assert.InDelta(t, 1, testutil.ToFloat64(m.bridgeDepth.WithLabelValues(BridgeSamples)), 0)
	assert.InDelta(t, 15, testutil.ToFloat64(m.bridgePushed.WithLabelValues(BridgeSamples)), 0)
	assert.InDelta(t, 14, testutil.ToFloat64(m.bridgePopped.WithLabelValues(BridgeSamples)), 0)
}

func TestObserveDetectorAndLocalizer(t *testing.T) {
	t.Parallel()

	m := newTestMetrics(t)
	m.ObserveDetector(100, 2, 5, 0)
	m.ObserveDetector(250, 4, 5, 1)
	m.ObserveLocalizer(4)

	assert.InDelta(t, 250, testutil.ToFloat64(m.framesAnalyzed), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.pingsDetected), 0)
	assert.InDelta(t, 5, testutil.ToFloat64(m.pulsesRejected), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.pingsDropped), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.pingsLocalized), 0)
}

func TestSetStateIsOneHot(t *testing.T) {
	t.Parallel()

	m := newTestMetrics(t)
	all := []string{"init", "running", "stopped"}
	m.SetState("running", all)

	assert.InDelta(t, 0, testutil.ToFloat64(m.state.WithLabelValues("init")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.state.WithLabelValues("running")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.state.WithLabelValues("stopped")), 0)
}

func TestRecorderInterface(t *testing.T) {
	t.Parallel()

	m := newTestMetrics(t)
	var r Recorder = m
	r.RecordOperation(OpStartStreaming, StatusSuccess)
	r.RecordOperation(OpStartStreaming, StatusSuccess)
	r.RecordError(OpStopProcessing, "signal-processing")
	r.RecordDuration(OpShutdown, 0.25)

	assert.InDelta(t, 2, testutil.ToFloat64(m.operations.WithLabelValues(OpStartStreaming, StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.errors.WithLabelValues(OpStopProcessing, "signal-processing")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.durations))
}

func TestRegistryRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPipelineMetrics(reg)
	require.NoError(t, err)
	_, err = NewPipelineMetrics(reg)
	require.Error(t, err)
}
