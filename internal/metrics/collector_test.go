package metrics_test

import (
	"context"
	"io"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"tcplb/internal/metrics"
)

var _ = Describe("Collector", func() {
	var (
		collector *metrics.Collector
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		log := slog.New(slog.NewTextHandler(io.Discard, nil))
		collector = metrics.NewCollector(100, log)
		ctx, cancel = context.WithCancel(context.Background())
		collector.Start(ctx)
	})

	AfterEach(func() {
		cancel()
	})

	It("should process session events from the channel", func() {
		collector.EventChannel() <- metrics.MetricEvent{
			Type:      metrics.EventSessionStarted,
			Timestamp: time.Now(),
			Backend:   "server1",
		}
		collector.EventChannel() <- metrics.MetricEvent{
			Type:           metrics.EventSessionCompleted,
			Timestamp:      time.Now(),
			Backend:        "server1",
			Duration:       20 * time.Millisecond,
			BytesToBackend: 64,
			BytesToClient:  512,
		}

		Eventually(func() int64 {
			return collector.Snapshot("round_robin").Backends["server1"].SessionsClosed
		}, "1s", "10ms").Should(Equal(int64(1)))

		snap := collector.Snapshot("round_robin")
		Expect(snap.Backends["server1"].BytesToBackend).To(Equal(int64(64)))
		Expect(snap.Backends["server1"].BytesToClient).To(Equal(int64(512)))
	})

	It("should process failure events", func() {
		collector.EventChannel() <- metrics.MetricEvent{
			Type:    metrics.EventDialFailed,
			Backend: "server2",
		}
		collector.EventChannel() <- metrics.MetricEvent{
			Type: metrics.EventNoBackendAvailable,
		}

		Eventually(func() int64 {
			return collector.Snapshot("round_robin").NoBackendDrops
		}, "1s", "10ms").Should(Equal(int64(1)))

		Expect(collector.Snapshot("round_robin").Backends["server2"].DialFailures).To(Equal(int64(1)))
	})

	It("should drain buffered events on shutdown", func() {
		for i := 0; i < 10; i++ {
			collector.EventChannel() <- metrics.MetricEvent{
				Type:    metrics.EventSessionStarted,
				Backend: "server1",
			}
		}
		cancel()

		Eventually(func() int64 {
			return collector.Snapshot("round_robin").Backends["server1"].SessionsOpened
		}, "1s", "10ms").Should(Equal(int64(10)))
	})
})
