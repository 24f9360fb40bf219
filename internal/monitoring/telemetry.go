// Package monitoring - telemetry.go records events to JSONL files.
//
// DESIGN: Tracker appends structured events as JSONL (one JSON object per
// line) immediately after each event, and keeps in-memory counters by
// resolution tag for the /stats endpoint.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Tracker handles telemetry event recording to file and in-memory counters.
type Tracker struct {
	config         TelemetryConfig
	requestLogPath string
	requestCount   int64
	byTag          map[string]int64
	mu             sync.Mutex
}

// NewTracker creates a new telemetry tracker.
func NewTracker(cfg TelemetryConfig) (*Tracker, error) {
	t := &Tracker{
		config: cfg,
		byTag:  make(map[string]int64),
	}

	if !cfg.Enabled {
		return t, nil
	}

	if cfg.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0750); err != nil {
			return nil, err
		}
		t.requestLogPath = cfg.LogPath
		if _, err := os.Stat(cfg.LogPath); os.IsNotExist(err) {
			if f, err := os.Create(cfg.LogPath); err == nil {
				_ = f.Close()
			}
		}
	}

	return t, nil
}

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.Write(data)
	return err
}

// RecordRequest records a request event. Counters update even when the file
// log is disabled.
func (t *Tracker) RecordRequest(event *RequestEvent) {
	t.mu.Lock()
	t.requestCount++
	t.byTag[event.ResolutionTag]++
	path := t.requestLogPath
	t.mu.Unlock()

	if !t.config.Enabled || path == "" {
		return
	}

	if err := appendJSONL(path, event); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to append request event")
	}

	if t.config.LogToStdout {
		log.Info().
			Str("request_id", event.RequestID).
			Str("method", event.Method).
			Str("path", event.Path).
			Int("status", event.StatusCode).
			Str("resolved_by", event.ResolutionTag).
			Int64("duration_ms", event.DurationMs).
			Msg("request resolved")
	}
}

// Stats returns total and per-tag request counts.
func (t *Tracker) Stats() (total int64, byTag map[string]int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int64, len(t.byTag))
	for k, v := range t.byTag {
		out[k] = v
	}
	return t.requestCount, out
}
