package proxy

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tcplb/internal/backend"
	"tcplb/internal/loadbalancer"
	"tcplb/internal/metrics"
)

// Forwarder runs the per-session state machine: select a backend, dial it,
// relay bytes in both directions, tear down. It never decodes the forwarded
// stream.
type Forwarder struct {
	logger           *slog.Logger
	balancer         *loadbalancer.LoadBalancer
	backends         []*backend.Backend
	metricsCollector *metrics.Collector
	dialTimeout      time.Duration
}

func NewForwarder(
	logger *slog.Logger,
	balancer *loadbalancer.LoadBalancer,
	backends []*backend.Backend,
	collector *metrics.Collector,
	dialTimeout time.Duration,
) *Forwarder {
	return &Forwarder{
		logger:           logger,
		balancer:         balancer,
		backends:         backends,
		metricsCollector: collector,
		dialTimeout:      dialTimeout,
	}
}

// Handle serves one accepted client connection to completion. The client
// connection is always closed before Handle returns, and a reserved backend's
// connection count is decremented exactly once no matter how the session ends.
func (f *Forwarder) Handle(ctx context.Context, clientConn net.Conn) {
	defer closeQuietly(clientConn)

	clientAddr := clientConn.RemoteAddr().String()

	server, err := f.balancer.GetAndReserveServer(f.backends)
	if err != nil {
		f.logger.Warn("No healthy backends available",
			slog.String("client", clientAddr))
		f.emitEvent(metrics.MetricEvent{
			Type:      metrics.EventNoBackendAvailable,
			Timestamp: time.Now(),
		})
		return
	}

	// Paired with the reservation made inside GetAndReserveServer.
	defer server.DecrementConn()

	dialer := net.Dialer{Timeout: f.dialTimeout}
	backendConn, err := dialer.DialContext(ctx, "tcp", server.Addr())
	if err != nil {
		// A hard dial failure means the backend is gone; flag it now rather
		// than waiting for the next probe cycle.
		if server.SetHealthy(false) {
			f.logger.Warn("Backend marked unhealthy after dial failure",
				slog.String("backend", server.String()))
		}
		f.logger.Warn("Failed to dial backend",
			slog.String("client", clientAddr),
			slog.String("backend", server.String()),
			slog.String("error", err.Error()))
		f.emitEvent(metrics.MetricEvent{
			Type:      metrics.EventDialFailed,
			Timestamp: time.Now(),
			Backend:   server.Name(),
		})
		return
	}
	defer closeQuietly(backendConn)

	f.logger.Info("Forwarding session",
		slog.String("client", clientAddr),
		slog.String("backend", server.Name()))

	f.emitEvent(metrics.MetricEvent{
		Type:      metrics.EventSessionStarted,
		Timestamp: time.Now(),
		Backend:   server.Name(),
	})

	start := time.Now()
	toBackend, toClient := relay(clientConn, backendConn)
	duration := time.Since(start)

	f.logger.Debug("Session closed",
		slog.String("client", clientAddr),
		slog.String("backend", server.Name()),
		slog.Duration("duration", duration),
		slog.Int64("bytes_to_backend", toBackend),
		slog.Int64("bytes_to_client", toClient))

	f.emitEvent(metrics.MetricEvent{
		Type:           metrics.EventSessionCompleted,
		Timestamp:      time.Now(),
		Backend:        server.Name(),
		Duration:       duration,
		BytesToBackend: toBackend,
		BytesToClient:  toClient,
	})
}

// relay copies bytes client->backend and backend->client concurrently.
// As soon as either direction finishes, both connections are closed, which
// unblocks the other copy loop. Relay errors are terminal for the session but
// are not surfaced: at this layer an error and a client disconnect look the
// same, and there is no response channel to report through.
func relay(clientConn, backendConn net.Conn) (toBackend, toClient int64) {
	var teardown sync.Once
	closeBoth := func() {
		closeQuietly(clientConn)
		closeQuietly(backendConn)
	}

	var g errgroup.Group
	g.Go(func() error {
		n, _ := io.Copy(backendConn, clientConn)
		toBackend = n
		teardown.Do(closeBoth)
		return nil
	})
	g.Go(func() error {
		n, _ := io.Copy(clientConn, backendConn)
		toClient = n
		teardown.Do(closeBoth)
		return nil
	})
	g.Wait()

	return toBackend, toClient
}

// closeQuietly tolerates an already-closed peer.
func closeQuietly(conn net.Conn) {
	if conn != nil {
		_ = conn.Close()
	}
}

func (f *Forwarder) emitEvent(event metrics.MetricEvent) {
	if f.metricsCollector == nil {
		return
	}

	select {
	case f.metricsCollector.EventChannel() <- event:
	default:
	}
}
