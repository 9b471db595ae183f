// Package strategy defines the load balancing strategy interface and
// implements the available algorithms:
//
//   - Round Robin: sequential distribution across backends
//   - Least Connections: routes to the backend with fewest active connections
//
// Strategies operate on the healthy subset only; filtering and the
// select-and-reserve step live in the loadbalancer package.
package strategy
