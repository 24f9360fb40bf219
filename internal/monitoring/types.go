// Package monitoring - types.go defines telemetry event shapes.
package monitoring

import "time"

// TelemetryConfig controls the JSONL request log.
type TelemetryConfig struct {
	Enabled     bool
	LogPath     string
	LogToStdout bool
}

// RequestEvent is recorded once per resolved proxied request.
type RequestEvent struct {
	RequestID        string    `json:"request_id"`
	Timestamp        time.Time `json:"timestamp"`
	Identity         string    `json:"identity"`
	Method           string    `json:"method"`
	Path             string    `json:"path"`
	URLHash          string    `json:"url_hash"`
	StatusCode       int       `json:"status_code"`
	ResolutionTag    string    `json:"resolution_tag"`
	RequestBodySize  int       `json:"request_body_size"`
	ResponseBodySize int       `json:"response_body_size"`
	BackendEnv       string    `json:"backend_env,omitempty"`
	BackendURL       string    `json:"backend_url,omitempty"`
	DurationMs       int64     `json:"duration_ms"`
	Error            string    `json:"error,omitempty"`
}
