package healthcheck

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"tcplb/internal/backend"
)

// Config holds the parameters for the health monitor.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Monitor periodically probes all backends and updates their health flags.
// A probe is a short-lived TCP connection attempt: success means healthy,
// timeout or refusal means unhealthy. The monitor runs fully decoupled from
// the accept loop and only writes backend state through the synchronized
// mutators.
type Monitor struct {
	cfg      Config
	backends []*backend.Backend
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Monitor but does not start it; call Start to begin probing.
func New(backends []*backend.Backend, cfg Config, logger *slog.Logger) *Monitor {
	return &Monitor{
		cfg:      cfg,
		backends: backends,
		logger:   logger,
	}
}

// Start begins the background health-check loop. It runs an immediate probe
// cycle before the first ticker tick so backends are classified quickly at
// startup.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		m.logger.Info("Health monitor started",
			slog.Duration("interval", m.cfg.Interval),
			slog.Duration("timeout", m.cfg.Timeout))

		m.probeAll()

		for {
			select {
			case <-ticker.C:
				m.probeAll()
			case <-ctx.Done():
				m.logger.Info("Health monitor stopped")
				return
			}
		}
	}()
}

// Stop cancels the background loop and waits for it to exit. In-flight
// probes are abandoned; they carry no side effects beyond the health flag.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// probeAll checks every backend concurrently, waits for all probes, then
// logs transitions and one full-status line for the cycle.
func (m *Monitor) probeAll() {
	results := make([]bool, len(m.backends))

	var wg sync.WaitGroup
	for i, b := range m.backends {
		wg.Add(1)
		go func(i int, b *backend.Backend) {
			defer wg.Done()
			results[i] = m.probe(b)
		}(i, b)
	}
	wg.Wait()

	now := time.Now()
	for i, b := range m.backends {
		healthy := results[i]
		changed := b.SetHealthy(healthy)
		b.MarkChecked(now)

		if changed {
			if healthy {
				m.logger.Info("Backend recovered",
					slog.String("backend", b.String()))
			} else {
				m.logger.Warn("Backend failed health check",
					slog.String("backend", b.String()))
			}
		}
	}

	m.logger.Info("Health status", slog.String("backends", m.statusLine()))
}

// probe attempts a TCP connection within the configured timeout. The
// connection is closed immediately on success; a backend that accepts and
// then drops the probe still counts as healthy.
func (m *Monitor) probe(b *backend.Backend) bool {
	conn, err := net.DialTimeout("tcp", b.Addr(), m.cfg.Timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// statusLine renders "server1: alive (12 requests) | server2: dead (3 requests) | ...".
func (m *Monitor) statusLine() string {
	parts := make([]string, 0, len(m.backends))
	for _, b := range m.backends {
		status := "alive"
		if !b.IsHealthy() {
			status = "dead"
		}
		parts = append(parts, fmt.Sprintf("%s: %s (%d requests)", b.Name(), status, b.TotalRequests()))
	}
	return strings.Join(parts, " | ")
}
