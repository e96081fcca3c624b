package transport

import "time"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// NewError returns an error body.
func NewError(code string, message string) ErrorResponse {
	return ErrorResponse{Error: message, Code: code}
}

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"

	StateConnected    = "connected"
	StateDisconnected = "disconnected"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Cache     string    `json:"cache,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
	Error     string    `json:"error,omitempty"`
}
