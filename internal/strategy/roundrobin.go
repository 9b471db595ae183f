package strategy

import (
	"sync/atomic"

	"tcplb/internal/backend"
)

type roundRobinStrategy struct {
	cursor atomic.Uint64
}

// SelectBackend cycles through the given backends in order. The cursor is
// evaluated against the current healthy subset size, so a health transition
// shifts the cycle; an uneven burst right after a transition is accepted.
func (rb *roundRobinStrategy) SelectBackend(backends []*backend.Backend) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	index := (rb.cursor.Add(1) - 1) % uint64(len(backends))

	return backends[index]
}

func NewRoundRobinStrategy() Strategy {
	return &roundRobinStrategy{}
}
