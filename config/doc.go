// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the application configuration structure
// including the listen address, backend targets, strategy selection, health
// check parameters and forwarding timeouts.
package config
