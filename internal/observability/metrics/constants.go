// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Namespace prefixes every metric exported by the recorder
const Namespace = "sdr_record"

// Operation names recorded by the lifecycle controller
const (
	// OpInit covers configuration, metadata and stage construction.
	OpInit = "init"
	// OpStartProcessing is the ProcessingStage start.
	OpStartProcessing = "start_processing"
	// OpStartStreaming is the StreamSource start.
	OpStartStreaming = "start_streaming"
	// OpStopStreaming is the StreamSource stop and join.
	OpStopStreaming = "stop_streaming"
	// OpStopProcessing is the ProcessingStage drain and join.
	OpStopProcessing = "stop_processing"
	// OpStopLocalizer is the Localizer drain and join.
	OpStopLocalizer = "stop_localizer"
	// OpShutdown is the whole teardown sequence.
	OpShutdown = "shutdown"
	// OpRun is the time spent in RUNNING.
	OpRun = "run"
)

// Status label values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Bridge label values
const (
	BridgeSamples = "samples"
	BridgeEvents  = "events"
)

// Time constants.
const (
	// ShutdownTimeout is the timeout for graceful shutdown operations.
	ShutdownTimeout = 5 * time.Second
)
