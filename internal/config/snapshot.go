package config

import "sync/atomic"

// current holds the process-wide configuration snapshot. Readers never
// lock; reloads replace the whole pointer so an in-flight request keeps
// the snapshot it captured at its start.
var current atomic.Pointer[Config]

// Set installs a new configuration snapshot.
func Set(cfg *Config) {
	current.Store(cfg)
}

// Current returns the active configuration snapshot. Callers must
// capture it once per request and not re-read mid-request.
func Current() *Config {
	return current.Load()
}
