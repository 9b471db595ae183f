package backend

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

// Backend represents one worker target with health status and connection
// tracking. All mutable fields are guarded by a single mutex because the
// health monitor and concurrent forwarding sessions touch them at the same
// time.
type Backend struct {
	host string
	port int
	name string

	mutex             sync.Mutex
	isHealthy         bool
	activeConnections int
	totalRequests     int64
	lastHealthCheck   time.Time
}

// New creates a Backend for the given target.
// The backend starts in a healthy state.
func New(host string, port int, name string) *Backend {
	return &Backend{
		host:      host,
		port:      port,
		name:      name,
		isHealthy: true,
	}
}

// Name returns the backend's display name.
func (b *Backend) Name() string {
	return b.name
}

// Addr returns the backend's dialable host:port address.
func (b *Backend) Addr() string {
	return net.JoinHostPort(b.host, strconv.Itoa(b.port))
}

// String renders the backend as "name (host:port)".
func (b *Backend) String() string {
	return fmt.Sprintf("%s (%s)", b.name, b.Addr())
}

// IncrementConn reserves the backend for one session: the active connection
// count and the lifetime request count go up together. Reservation happens at
// selection time, before the backend connection is established, so concurrent
// selections see the updated load.
func (b *Backend) IncrementConn() {
	b.mutex.Lock()
	b.activeConnections++
	b.totalRequests++
	b.mutex.Unlock()
}

// DecrementConn releases one session's reservation. The count never drops
// below zero.
func (b *Backend) DecrementConn() {
	b.mutex.Lock()
	if b.activeConnections > 0 {
		b.activeConnections--
	}
	b.mutex.Unlock()
}

// ActiveConnections returns the current number of in-flight sessions.
func (b *Backend) ActiveConnections() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.activeConnections
}

// TotalRequests returns the lifetime count of sessions routed to this backend.
func (b *Backend) TotalRequests() int64 {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.totalRequests
}

// IsHealthy returns true if the backend is currently healthy.
func (b *Backend) IsHealthy() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.isHealthy
}

// SetHealthy updates the backend's health status.
// Returns true if the status changed, false if it was already in that state.
func (b *Backend) SetHealthy(healthy bool) (changed bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.isHealthy == healthy {
		return false
	}

	b.isHealthy = healthy
	return true
}

// MarkChecked records when the health monitor last probed this backend.
func (b *Backend) MarkChecked(t time.Time) {
	b.mutex.Lock()
	b.lastHealthCheck = t
	b.mutex.Unlock()
}

// LastChecked returns the timestamp of the most recent health probe, or the
// zero time if the backend has never been probed.
func (b *Backend) LastChecked() time.Time {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.lastHealthCheck
}
