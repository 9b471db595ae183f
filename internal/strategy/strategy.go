package strategy

import (
	"tcplb/internal/backend"
)

// Strategy picks one backend from the healthy subset for the next session.
// Implementations must tolerate concurrent calls; the input slice is in
// configuration order and may shrink or grow between calls as backends fail
// and recover.
type Strategy interface {
	SelectBackend(backends []*backend.Backend) *backend.Backend
}
