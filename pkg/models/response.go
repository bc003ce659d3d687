package models

import "time"

// HealthResponse is the body of GET /health. It always reports 200; Running
// mirrors the current run state for cheap liveness dashboards.
type HealthResponse struct {
	OK      bool `json:"ok"`
	Running bool `json:"running"`
}

// ErrorResponse is the common error body for API endpoints.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}
