package observability

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/radiocollartracker/sdr-record/internal/errors"
	"github.com/radiocollartracker/sdr-record/internal/logger"
	metricspkg "github.com/radiocollartracker/sdr-record/internal/observability/metrics"
)

// Endpoint serves the Prometheus exposition over HTTP.
type Endpoint struct {
	listenAddress string
	metrics       *Metrics
	log           logger.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewEndpoint creates an endpoint for the given address. An empty address
// means metrics are disabled and is rejected.
func NewEndpoint(listenAddress string, metrics *Metrics, log logger.Logger) (*Endpoint, error) {
	if listenAddress == "" {
		return nil, errors.Newf("metrics endpoint not enabled").
			Component("observability").
			Category(errors.CategoryMetrics).
			Build()
	}
	if log == nil {
		log = logger.Global().Module("metrics")
	}

	mux := http.NewServeMux()
	metrics.RegisterHandlers(mux)

	return &Endpoint{
		listenAddress: listenAddress,
		metrics:       metrics,
		log:           log,
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Listen binds the listening socket so address errors surface before the
// pipeline starts.
func (e *Endpoint) Listen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return errors.New(err).
			Component("observability").
			Category(errors.CategoryMetrics).
			Context("listen", e.listenAddress).
			Build()
	}
	e.listener = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen
func (e *Endpoint) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener != nil {
		return e.listener.Addr().String()
	}
	return e.listenAddress
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (e *Endpoint) Serve(ctx context.Context) error {
	if err := e.Listen(); err != nil {
		return err
	}

	e.mu.Lock()
	ln := e.listener
	e.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		e.log.Info("metrics endpoint starting", logger.String("address", ln.Addr().String()))
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			e.log.Error("metrics HTTP server error", logger.Error(err))
			return errors.New(err).
				Component("observability").
				Category(errors.CategoryMetrics).
				Build()
		}
		return nil
	case <-ctx.Done():
	}

	e.log.Info("stopping metrics endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(shutdownCtx); err != nil {
		e.log.Error("metrics server shutdown error", logger.Error(err))
		return err
	}
	return <-errCh
}

// Close releases a listener that was bound but never served
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener == nil {
		return nil
	}
	err := e.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
