// Package backend models the worker targets the load balancer forwards to.
// It provides health and connection-count tracking; the forwarding itself is
// opaque byte relaying handled by the proxy package.
package backend
