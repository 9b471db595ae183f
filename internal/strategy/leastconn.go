package strategy

import (
	"math"

	"tcplb/internal/backend"
)

type leastConnStrategy struct {
}

// SelectBackend picks the backend with the fewest active connections.
// Strict less-than keeps the first occurrence of the minimum, so ties break
// toward the earliest configuration index.
func (l *leastConnStrategy) SelectBackend(backends []*backend.Backend) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	var bestBackend *backend.Backend
	bestConns := math.MaxInt32

	for _, b := range backends {
		activeConns := b.ActiveConnections()
		if activeConns < bestConns {
			bestConns = activeConns
			bestBackend = b
		}
	}

	return bestBackend
}

func NewLeastConnStrategy() Strategy {
	return &leastConnStrategy{}
}
