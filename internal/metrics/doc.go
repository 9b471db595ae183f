// Package metrics provides session metrics collection for the load balancer.
//
// It uses a channel-based event pipeline to asynchronously collect:
//   - Sessions opened and completed per backend
//   - Bytes relayed in each direction per backend
//   - Dial failures per backend
//   - Connections dropped because no healthy backend existed
//
// The collector runs in a dedicated goroutine and processes events without
// blocking the forwarding path. Events are sent via a buffered channel with
// non-blocking semantics so a slow collector can only lose samples, never
// stall a session.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.EventChannel() <- metrics.MetricEvent{
//		Type:    metrics.EventSessionStarted,
//		Backend: "server1",
//	}
//
//	snapshot := collector.Snapshot("round_robin")
//
// The collector drains pending events on shutdown so the final statistics
// report reflects every completed session.
package metrics
