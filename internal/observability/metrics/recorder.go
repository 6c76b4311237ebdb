// Package metrics provides Prometheus metrics for the recording pipeline.
package metrics

// Recorder defines a minimal interface for recording metrics.
// Components depend on this abstraction rather than on the concrete
// Prometheus collectors.
type Recorder interface {
	// RecordOperation records an operation with its status.
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its category.
	RecordError(operation, errorType string)
}
