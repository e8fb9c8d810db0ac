// Package api defines the HTTP surface of the demtile server: response
// bodies, the ServerInterface handlers implement, and chi route wiring.
package api

import "time"

// HealthResponseStatus is the state reported by the health endpoint
type HealthResponseStatus string

const (
	Healthy   HealthResponseStatus = "healthy"
	Unhealthy HealthResponseStatus = "unhealthy"
)

// Error codes returned in ErrorResponse.Error
const (
	VALIDATIONERROR      = "VALIDATION_ERROR"
	TILELOADFAILURE      = "TILE_LOAD_FAILURE"
	TILENOTFOUND         = "TILE_NOT_FOUND"
	DECODECONTEXTFAILURE = "DECODE_CONTEXT_FAILURE"
	ENCODEFAILURE        = "ENCODE_FAILURE"
	NOTFOUND             = "NOT_FOUND"
	INTERNALERROR        = "INTERNAL_ERROR"
	TIMEOUT              = "TILE_SERVER_TIMEOUT"
)

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status    HealthResponseStatus `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
	Uptime    *int                 `json:"uptime,omitempty"`
	Version   *string              `json:"version,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error     string                  `json:"error"`
	Message   string                  `json:"message"`
	RequestId *string                 `json:"request_id,omitempty"`
	Details   *map[string]interface{} `json:"details,omitempty"`
}

// ValidationErrorResponse reports invalid request parameters
type ValidationErrorResponse struct {
	Error            string            `json:"error"`
	Message          string            `json:"message"`
	RequestId        *string           `json:"request_id,omitempty"`
	ValidationErrors []ValidationError `json:"validation_errors"`
}

// ValidationError describes one invalid field
type ValidationError struct {
	Code    *string `json:"code,omitempty"`
	Field   string  `json:"field"`
	Message string  `json:"message"`
}

// StyleList is returned by GET /styles
type StyleList struct {
	Default string   `json:"default"`
	Styles  []string `json:"styles"`
}
