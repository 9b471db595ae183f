package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventSessionStarted     EventType = "session_started"
	EventSessionCompleted   EventType = "session_completed"
	EventDialFailed         EventType = "dial_failed"
	EventNoBackendAvailable EventType = "no_backend_available"
)

type MetricEvent struct {
	Type           EventType
	Timestamp      time.Time
	Backend        string
	Duration       time.Duration
	BytesToBackend int64
	BytesToClient  int64
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
	done    chan struct{}
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
		done:    make(chan struct{}),
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

// Wait blocks until the collector has drained and exited after its context
// was cancelled. Snapshots taken after Wait include every buffered event.
func (c *Collector) Wait() {
	<-c.done
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)

	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventSessionStarted:
		c.metrics.RecordSessionStart(event.Backend)

	case EventSessionCompleted:
		c.metrics.RecordSessionEnd(event.Backend, event.BytesToBackend, event.BytesToClient)

	case EventDialFailed:
		c.metrics.RecordDialFailure(event.Backend)

	case EventNoBackendAvailable:
		c.metrics.RecordNoBackendDrop()
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot(algorithm string) Snapshot {
	return c.metrics.Snapshot(algorithm)
}
