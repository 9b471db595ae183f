// Package healthcheck implements periodic health checking for backend servers.
// It monitors backend reachability with short-lived TCP connection attempts
// and updates each backend's health flag, logging only state transitions plus
// a per-cycle status summary.
package healthcheck
