package monitor

import "time"

type Status struct {
	Database      bool   `json:"database"`
	DatabaseError string `json:"database_error,omitempty"`
	// CacheEnabled is false when no cache probe is registered.
	CacheEnabled bool      `json:"cache_enabled"`
	Cache        bool      `json:"cache"`
	LastCheck    time.Time `json:"last_check"`
}

// Healthy reports whether the service can serve requests. The cache is
// optional and never makes the service unhealthy.
func (s Status) Healthy() bool {
	return s.Database
}
