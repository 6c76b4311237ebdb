// Package controller owns the recording lifecycle: it builds the pipeline,
// starts the stages in dependency order, waits for a stop request from a
// signal or a stage fault, and tears the pipeline down producer first.
package controller

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/radiocollartracker/sdr-record/internal/bridge"
	"github.com/radiocollartracker/sdr-record/internal/conf"
	"github.com/radiocollartracker/sdr-record/internal/dsp"
	"github.com/radiocollartracker/sdr-record/internal/errors"
	"github.com/radiocollartracker/sdr-record/internal/localization"
	"github.com/radiocollartracker/sdr-record/internal/logger"
	"github.com/radiocollartracker/sdr-record/internal/metadata"
	"github.com/radiocollartracker/sdr-record/internal/observability"
	"github.com/radiocollartracker/sdr-record/internal/observability/metrics"
	"github.com/radiocollartracker/sdr-record/internal/sdr"
)

// DefaultPollInterval bounds each wait of the run loop
const DefaultPollInterval = 100 * time.Millisecond

// Phase is the lifecycle phase of the controller
type Phase int

const (
	PhaseInit Phase = iota
	PhaseReady
	PhaseRunning
	PhaseStopping
	PhaseStopped
)

var phaseNames = []string{"init", "ready", "running", "stopping", "stopped"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Options customise a Controller. The zero value is usable.
type Options struct {
	Factories    Factories
	Metrics      *observability.Metrics // created when nil
	Recorder     *metadata.Recorder     // created when nil
	Logger       logger.Logger // parent logger, components log as its children
	PollInterval time.Duration // DefaultPollInterval when zero
	Signals      []os.Signal   // DefaultSignals when nil
}

// Controller runs one recording session. Construct it once in main.
type Controller struct {
	settings  *conf.Settings
	factories Factories
	metrics   *observability.Metrics
	recorder  *metadata.Recorder
	root      logger.Logger // parent of every component logger
	log       logger.Logger
	poll      time.Duration
	signals   []os.Signal

	state *ProgramState

	mu    sync.Mutex // guards phase and serialises Init, Run and Shutdown
	phase Phase

	samples   *sdr.SampleBridge
	events    *dsp.EventBridge
	source    sdr.StreamSource
	stage     dsp.ProcessingStage
	localizer localization.Localizer
	gps       GPSReader
	endpoint  *observability.Endpoint

	sourceStarted    bool
	stageStarted     bool
	localizerStarted bool

	bgCancel context.CancelFunc
	bg       *errgroup.Group
	watcher  *signalWatcher
	started  time.Time
}

// New returns a controller in PhaseInit for validated settings
func New(settings *conf.Settings, opts Options) *Controller {
	root := opts.Logger
	if root == nil {
		root = logger.Global().Module("sdr_record")
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	sigs := opts.Signals
	if sigs == nil {
		sigs = DefaultSignals
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = metadata.NewRecorder(root.Module("metadata"))
	}

	return &Controller{
		settings:  settings,
		factories: opts.Factories.withDefaults(),
		metrics:   opts.Metrics,
		recorder:  recorder,
		root:      root,
		log:       root.Module("controller").With(logger.Uint64("run", settings.RunNum)),
		poll:      poll,
		signals:   sigs,
		state:     NewProgramState(),
	}
}

// State exposes the shared program state
func (c *Controller) State() *ProgramState {
	return c.state
}

// Phase returns the current lifecycle phase
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// setPhase must be called with c.mu held
func (c *Controller) setPhase(p Phase) {
	c.log.Debug("lifecycle transition",
		logger.String("from", c.phase.String()),
		logger.String("to", p.String()))
	c.phase = p
	c.metrics.Pipeline.SetState(p.String(), phaseNames)
}

// Init constructs the bridges and the pipeline collaborators. A missing
// radio surfaces here as sdr.HardwareUnavailableError.
func (c *Controller) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseInit {
		return errors.Newf("init called in phase %s", c.phase).
			Component("controller").
			Category(errors.CategoryState).
			Build()
	}

	if c.metrics == nil {
		m, err := observability.NewMetrics()
		if err != nil {
			return errors.New(err).
				Component("controller").
				Category(errors.CategoryMetrics).
				Build()
		}
		c.metrics = m
	}
	c.metrics.Pipeline.SetState(c.phase.String(), phaseNames)

	start := time.Now()
	err := c.build()
	recordOp(c.metrics.Pipeline, metrics.OpInit, start, err)
	if err != nil {
		c.release()
		return err
	}

	s := c.settings
	c.metrics.Pipeline.SetRunInfo(s.RunNum, s.CenterFreq, s.SamplingFreq, s.Gain)
	c.setPhase(PhaseReady)
	return nil
}

func (c *Controller) build() error {
	s := c.settings

	c.samples = bridge.New[*sdr.Buffer](metrics.BridgeSamples)
	c.events = bridge.New[*dsp.Ping](metrics.BridgeEvents)

	source, err := c.factories.Source(s, c.root.Module("sdr"))
	if err != nil {
		return err
	}
	c.source = source

	stage, err := c.factories.Stage(s, c.root.Module("dsp"))
	if err != nil {
		return err
	}
	c.stage = stage

	var fixes localization.FixSource
	if s.GPSTarget != "" {
		reader, err := c.factories.GPS(s, c.root.Module("gps"))
		if err != nil {
			return err
		}
		c.gps = reader
		if s.GPSMode {
			fixes = reader
		}
	}

	loc, err := c.factories.Localizer(s, fixes, c.root.Module("localization"))
	if err != nil {
		return err
	}
	c.localizer = loc

	if s.MetricsListen != "" {
		ep, err := observability.NewEndpoint(s.MetricsListen, c.metrics, c.root.Module("metrics"))
		if err != nil {
			return err
		}
		if err := ep.Listen(); err != nil {
			return err
		}
		c.endpoint = ep
	}
	return nil
}

// release frees resources acquired by a failed build
func (c *Controller) release() {
	if c.gps != nil {
		_ = c.gps.Close()
	}
	if c.endpoint != nil {
		_ = c.endpoint.Close()
	}
}

// Run writes the run metadata, starts the stages and blocks until a stop is
// requested, then shuts down. It returns the first stage fault or teardown
// error; a signal-driven stop returns nil.
func (c *Controller) Run() error {
	c.mu.Lock()
	if c.phase != PhaseReady {
		phase := c.phase
		c.mu.Unlock()
		return errors.Newf("run called in phase %s", phase).
			Component("controller").
			Category(errors.CategoryState).
			Build()
	}

	c.watcher = watchSignals(c.state.RequestStop, c.signals...)

	if err := c.start(); err != nil {
		c.mu.Unlock()
		c.state.Fault(err)
		return errors.Join(err, c.Shutdown())
	}
	c.started = time.Now()
	c.setPhase(PhaseRunning)
	c.mu.Unlock()

	c.log.Info("pipeline running")
	for !c.state.WaitFor(c.poll) {
		c.publish()
	}

	c.mu.Lock()
	if c.phase == PhaseRunning {
		c.setPhase(PhaseStopping)
	}
	c.mu.Unlock()

	if sig, ok := c.watcher.Caught(); ok {
		c.log.Warn("caught termination signal", logger.String("signal", sig.String()))
	}
	if err := c.state.Err(); err != nil {
		c.log.Error("stopping after fault", logger.Error(err))
	} else {
		c.log.Info("stop requested")
	}

	shutdownErr := c.Shutdown()
	return errors.Join(c.state.Err(), shutdownErr)
}

// start runs with c.mu held
func (c *Controller) start() error {
	rec, err := c.recorder.Record(c.settings)
	if err != nil {
		c.log.Error("failed to write run metadata", logger.Error(err))
		return err
	}
	c.log.Debug("run metadata recorded", logger.Time("start_time", rec.StartTime))

	ctx, cancel := context.WithCancel(context.Background())
	c.bgCancel = cancel
	c.bg = &errgroup.Group{}

	if c.endpoint != nil {
		ep := c.endpoint
		c.bg.Go(func() error {
			err := ep.Serve(ctx)
			if err != nil {
				c.log.Warn("metrics endpoint stopped", logger.Error(err))
			}
			return err
		})
	}
	if c.gps != nil {
		reader := c.gps
		c.bg.Go(func() error {
			err := reader.Run(ctx)
			if err != nil {
				c.log.Warn("GPS reader stopped", logger.Error(err))
			}
			return err
		})
	}

	if err := c.localizer.Start(c.events); err != nil {
		return err
	}
	c.localizerStarted = true

	c.log.Info("starting processing")
	if err := c.stage.StartProcessing(c.samples, c.events); err != nil {
		c.metrics.Pipeline.RecordOperation(metrics.OpStartProcessing, metrics.StatusError)
		return err
	}
	c.stageStarted = true
	c.metrics.Pipeline.RecordOperation(metrics.OpStartProcessing, metrics.StatusSuccess)

	c.log.Info("starting stream")
	if err := c.source.StartStreaming(c.samples, c.state); err != nil {
		c.metrics.Pipeline.RecordOperation(metrics.OpStartStreaming, metrics.StatusError)
		return err
	}
	c.sourceStarted = true
	c.metrics.Pipeline.RecordOperation(metrics.OpStartStreaming, metrics.StatusSuccess)
	return nil
}

// Shutdown stops the pipeline: the stream first, then processing, then the
// localizer and background services. Stop errors and failures of the
// metrics endpoint or GPS reader are joined into the result. It is
// idempotent; calls after the first return nil without touching any stage.
func (c *Controller) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.phase {
	case PhaseStopped:
		return nil
	case PhaseInit:
		// nothing was built
		c.phase = PhaseStopped
		return nil
	}

	c.state.RequestStop()
	if c.phase != PhaseStopping {
		c.setPhase(PhaseStopping)
	}

	start := time.Now()
	var errs []error

	if c.sourceStarted {
		errs = append(errs, c.timed(metrics.OpStopStreaming, c.source.StopStreaming))
		c.sourceStarted = false
	}
	c.samples.Close()

	if c.stageStarted {
		errs = append(errs, c.timed(metrics.OpStopProcessing, c.stage.StopProcessing))
		c.stageStarted = false
	}
	c.events.Close()

	if c.localizerStarted {
		errs = append(errs, c.timed(metrics.OpStopLocalizer, c.localizer.Stop))
		c.localizerStarted = false
	}

	if c.bgCancel != nil {
		c.bgCancel()
		errs = append(errs, c.bg.Wait())
	}
	if c.gps != nil {
		_ = c.gps.Close()
	}
	if c.endpoint != nil {
		_ = c.endpoint.Close()
	}
	if c.watcher != nil {
		c.watcher.Stop()
	}

	c.publish()
	c.metrics.Pipeline.RecordDuration(metrics.OpShutdown, time.Since(start).Seconds())
	if !c.started.IsZero() {
		c.metrics.Pipeline.RecordDuration(metrics.OpRun, time.Since(c.started).Seconds())
	}

	pushed, popped := c.samples.Stats()
	c.log.Info("pipeline stopped",
		logger.Uint64("buffers_pushed", pushed),
		logger.Uint64("buffers_processed", popped),
		logger.Duration("shutdown", time.Since(start)))

	c.setPhase(PhaseStopped)
	return errors.Join(errs...)
}

func (c *Controller) timed(op string, stop func() error) error {
	start := time.Now()
	err := stop()
	recordOp(c.metrics.Pipeline, op, start, err)
	if err == nil {
		return nil
	}
	c.log.Error("stage failed to stop cleanly", logger.String("operation", op), logger.Error(err))
	return errors.New(err).
		Component("controller").
		Category(categoryOf(err)).
		Timing(op, time.Since(start)).
		Build()
}

func recordOp(r metrics.Recorder, op string, start time.Time, err error) {
	r.RecordDuration(op, time.Since(start).Seconds())
	if err != nil {
		r.RecordOperation(op, metrics.StatusError)
		r.RecordError(op, string(categoryOf(err)))
		return
	}
	r.RecordOperation(op, metrics.StatusSuccess)
}

// publish pushes queue depths and stage counters to the metrics
func (c *Controller) publish() {
	p := c.metrics.Pipeline

	pushed, popped := c.samples.Stats()
	p.ObserveBridge(metrics.BridgeSamples, c.samples.Len(), pushed, popped)
	pushed, popped = c.events.Stats()
	p.ObserveBridge(metrics.BridgeEvents, c.events.Len(), pushed, popped)

	if d, ok := c.stage.(interface{ Stats() dsp.DetectorStats }); ok {
		st := d.Stats()
		p.ObserveDetector(st.Frames, st.Pings, st.Rejected, st.Dropped)
	}
	if l, ok := c.localizer.(interface{ Pings() uint64 }); ok {
		p.ObserveLocalizer(l.Pings())
	}
	if c.gps != nil {
		_, ok := c.gps.Latest()
		p.SetGPSFix(ok)
	}
}

func categoryOf(err error) errors.ErrorCategory {
	var cat errors.CategorizedError
	if errors.As(err, &cat) {
		return cat.ErrorCategory()
	}
	var ee *errors.EnhancedError
	if errors.As(err, &ee) && ee.Category != "" {
		return ee.Category
	}
	return errors.CategoryGeneric
}
