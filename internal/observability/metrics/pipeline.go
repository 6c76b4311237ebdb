package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains Prometheus metrics for the acquisition,
// processing and localization stages and the lifecycle controller.
type PipelineMetrics struct {
	registry *prometheus.Registry

	// Bridge metrics
	bridgeDepth  *prometheus.GaugeVec
	bridgePushed *prometheus.CounterVec
	bridgePopped *prometheus.CounterVec

	// Detector metrics
	framesAnalyzed prometheus.Counter
	pingsDetected  prometheus.Counter
	pulsesRejected prometheus.Counter
	pingsDropped   prometheus.Counter

	// Localizer metrics
	pingsLocalized prometheus.Counter

	// Lifecycle metrics
	state       *prometheus.GaugeVec
	operations  *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	runInfo     *prometheus.GaugeVec
	gpsFixValid prometheus.Gauge

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector

	// last cumulative values, for converting snapshots into counter deltas
	mu   sync.Mutex
	last map[string]uint64
}

// NewPipelineMetrics creates and registers new pipeline metrics
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry, last: make(map[string]uint64)}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.bridgeDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "bridge_depth",
			Help:      "Items currently queued in a hand-off bridge",
		},
		[]string{"bridge"},
	)
	m.bridgePushed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "bridge_pushed_total",
			Help:      "Items pushed into a hand-off bridge",
		},
		[]string{"bridge"},
	)
	m.bridgePopped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "bridge_popped_total",
			Help:      "Items taken out of a hand-off bridge",
		},
		[]string{"bridge"},
	)

	m.framesAnalyzed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "dsp_frames_total",
		Help:      "FFT frames analyzed by the detector",
	})
	m.pingsDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "pings_detected_total",
		Help:      "Pings emitted by the detector",
	})
	m.pulsesRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "pulses_rejected_total",
		Help:      "Pulses discarded by the length gate",
	})
	m.pingsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "pings_dropped_total",
		Help:      "Pings refused by a closed event bridge",
	})
	m.pingsLocalized = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "pings_localized_total",
		Help:      "Pings consumed by the localizer",
	})

	m.state = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "lifecycle_state",
			Help:      "1 for the current lifecycle phase, 0 otherwise",
		},
		[]string{"state"},
	)
	m.operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Lifecycle operations by outcome",
		},
		[]string{"operation", "status"},
	)
	m.durations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of lifecycle operations",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 12), // 100us to ~7min
		},
		[]string{"operation"},
	)
	m.errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Errors by operation and category",
		},
		[]string{"operation", "error_type"},
	)
	m.runInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "run_info",
			Help:      "Constant 1 labelled with the run parameters",
		},
		[]string{"run", "center_freq", "sampling_freq", "gain"},
	)
	m.gpsFixValid = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "gps_fix_valid",
		Help:      "1 when a GPS fix has been received",
	})

	m.collectors = []prometheus.Collector{
		m.bridgeDepth, m.bridgePushed, m.bridgePopped,
		m.framesAnalyzed, m.pingsDetected, m.pulsesRejected, m.pingsDropped,
		m.pingsLocalized,
		m.state, m.operations, m.durations, m.errors, m.runInfo, m.gpsFixValid,
	}
}

// Describe implements the prometheus.Collector interface
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// delta returns how much a cumulative value grew since the last call for key
func (m *PipelineMetrics) delta(key string, total uint64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.last[key]
	m.last[key] = total
	if total < prev {
		return 0
	}
	return float64(total - prev)
}

// ObserveBridge publishes a bridge snapshot
func (m *PipelineMetrics) ObserveBridge(name string, depth int, pushed, popped uint64) {
	m.bridgeDepth.WithLabelValues(name).Set(float64(depth))
	m.bridgePushed.WithLabelValues(name).Add(m.delta("pushed/"+name, pushed))
	m.bridgePopped.WithLabelValues(name).Add(m.delta("popped/"+name, popped))
}

// ObserveDetector publishes cumulative detector counters
func (m *PipelineMetrics) ObserveDetector(frames, pings, rejected, dropped uint64) {
	m.framesAnalyzed.Add(m.delta("frames", frames))
	m.pingsDetected.Add(m.delta("pings", pings))
	m.pulsesRejected.Add(m.delta("rejected", rejected))
	m.pingsDropped.Add(m.delta("dropped", dropped))
}

// ObserveLocalizer publishes the cumulative localized ping count
func (m *PipelineMetrics) ObserveLocalizer(pings uint64) {
	m.pingsLocalized.Add(m.delta("localized", pings))
}

// SetState marks current as the active lifecycle phase among all
func (m *PipelineMetrics) SetState(current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
}

// SetRunInfo records the run parameters
func (m *PipelineMetrics) SetRunInfo(run, centerFreq, samplingFreq uint64, gain float64) {
	m.runInfo.WithLabelValues(
		strconv.FormatUint(run, 10),
		strconv.FormatUint(centerFreq, 10),
		strconv.FormatUint(samplingFreq, 10),
		strconv.FormatFloat(gain, 'g', -1, 64),
	).Set(1)
}

// SetGPSFix records whether a GPS fix is available
func (m *PipelineMetrics) SetGPSFix(valid bool) {
	if valid {
		m.gpsFixValid.Set(1)
		return
	}
	m.gpsFixValid.Set(0)
}

// RecordOperation implements Recorder
func (m *PipelineMetrics) RecordOperation(operation, status string) {
	m.operations.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder
func (m *PipelineMetrics) RecordDuration(operation string, seconds float64) {
	m.durations.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder
func (m *PipelineMetrics) RecordError(operation, errorType string) {
	m.errors.WithLabelValues(operation, errorType).Inc()
}
