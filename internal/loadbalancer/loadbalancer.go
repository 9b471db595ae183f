package loadbalancer

import (
	"errors"
	"sync"

	"tcplb/internal/backend"
	"tcplb/internal/strategy"
)

// ErrNoHealthyBackends is returned when every backend is currently marked
// unhealthy. Callers close the client connection; there is no retry loop.
var ErrNoHealthyBackends = errors.New("no healthy backends")

// LoadBalancer performs the select-and-reserve step: filter the healthy
// subset, let the strategy pick one backend, and reserve it by bumping its
// connection count before the backend connection exists. The mutex makes the
// whole step atomic so concurrent sessions observe each other's reservations.
type LoadBalancer struct {
	strategy strategy.Strategy
	mutex    sync.Mutex
}

func NewLoadBalancer(strategy strategy.Strategy) *LoadBalancer {
	return &LoadBalancer{
		strategy: strategy,
	}
}

// GetAndReserveServer picks a healthy backend and reserves it. The caller
// must pair every successful call with exactly one DecrementConn at session
// teardown.
func (lb *LoadBalancer) GetAndReserveServer(backends []*backend.Backend) (*backend.Backend, error) {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	healthyBackends := lb.filterHealthyBackends(backends)
	if len(healthyBackends) == 0 {
		return nil, ErrNoHealthyBackends
	}

	chosen := lb.strategy.SelectBackend(healthyBackends)
	if chosen == nil {
		return nil, ErrNoHealthyBackends
	}

	chosen.IncrementConn()
	return chosen, nil
}

// filterHealthyBackends snapshots the healthy subset preserving configuration
// order, which round-robin relies on for its cycle and least-connections for
// its tie-break.
func (lb *LoadBalancer) filterHealthyBackends(backends []*backend.Backend) []*backend.Backend {
	healthy := make([]*backend.Backend, 0, len(backends))

	for _, b := range backends {
		if b.IsHealthy() {
			healthy = append(healthy, b)
		}
	}

	return healthy
}

// Strategy exposes the configured strategy, used for logging and the final
// statistics report.
func (lb *LoadBalancer) Strategy() strategy.Strategy {
	return lb.strategy
}
