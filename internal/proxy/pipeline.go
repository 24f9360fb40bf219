// Package proxy implements the request resolution pipeline: an ordered chain
// of stages evaluated first-match-wins for every request carrying a mock
// identity under the proxy prefix.
//
// Stage order is fixed: override check, manual mock, backend forward, AI
// mock. The AI stage always terminates, so a resolved exchange reaches the
// client, the live-viewer hub, and the telemetry log exactly once.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zsjie/imock-open/internal/config"
	"github.com/zsjie/imock-open/internal/events"
	"github.com/zsjie/imock-open/internal/monitoring"
	"github.com/zsjie/imock-open/internal/routekey"
	"github.com/zsjie/imock-open/internal/store"
	"github.com/zsjie/imock-open/internal/utils"
)

// Pipeline owns the stage chain plus the side channels every resolution
// feeds: the live-viewer hub and the telemetry tracker.
type Pipeline struct {
	store   store.Store
	hub     *events.Hub
	tracker *monitoring.Tracker
	stages  []Stage
}

// New builds the pipeline with its canonical stage order.
func New(st store.Store, gen TextGenerator, hub *events.Hub, tracker *monitoring.Tracker) *Pipeline {
	return &Pipeline{
		store:   st,
		hub:     hub,
		tracker: tracker,
		stages: []Stage{
			&overrideStage{store: st},
			&manualStage{store: st},
			newForwardStage(st),
			&aiStage{store: st, gen: gen},
		},
	}
}

// StageNames reports the evaluation order.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Middleware wraps next so that only identified requests under the proxy
// prefix enter the pipeline; everything else flows through untouched.
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !routekey.IsProxyAPI(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		identity, ok := routekey.ExtractIdentity(r.Header)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		p.serve(w, r, identity)
	})
}

func (p *Pipeline) serve(w http.ResponseWriter, r *http.Request, identity string) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize))
	if err != nil {
		log.Warn().Err(err).Str("identity", identity).Msg("reading request body failed")
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	ex := &Exchange{
		ID:              uuid.NewString(),
		Identity:        identity,
		Key:             routekey.Derive(r.Method, r.URL.RequestURI()),
		Method:          r.Method,
		OriginalURL:     r.URL.RequestURI(),
		Header:          r.Header,
		Host:            eventHost(r),
		RequestBody:     body,
		StartTime:       time.Now(),
		UseCache:        r.Header.Get(config.HeaderUseCache) != "false",
		ResponseHeaders: make(http.Header),
	}

	for _, stage := range p.stages {
		outcome, err := p.runStage(r.Context(), stage, ex)
		if err != nil {
			switch {
			case errors.Is(err, ErrAIGeneration):
				log.Error().Err(err).Str("identity", identity).Str("url", ex.OriginalURL).Msg("ai mock generation failed")
				ex.respondError(http.StatusInternalServerError, http.StatusInternalServerError, "mock generation failed")
			case stage.Name() == "forward" && !errors.Is(err, errBackendLookup):
				// Once forwarding is attempted the client is owed an answer.
				log.Error().Err(err).Str("identity", identity).Str("url", ex.OriginalURL).Msg("forward stage failed")
				ex.respondError(http.StatusInternalServerError, "upstream_error", "forwarding failed")
			default:
				log.Warn().Err(err).Str("stage", stage.Name()).Str("identity", identity).Msg("stage failed, passing")
				continue
			}
		}
		if outcome == Handled || ex.Handled {
			ex.Handled = true
			break
		}
	}

	// The AI stage terminates every exchange, so this only fires if the
	// whole chain errored out.
	if !ex.Handled {
		ex.respondNotFound()
	}

	p.write(w, ex)
	p.emit(ex)
	p.record(ex)
}

// runStage isolates one stage: a panic is downgraded to a stage error so a
// single misbehaving resolver cannot take the process down.
func (p *Pipeline) runStage(ctx context.Context, stage Stage, ex *Exchange) (outcome Outcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			outcome = Pass
			err = fmt.Errorf("stage %s panicked: %v", stage.Name(), rec)
		}
	}()
	return stage.Resolve(ctx, ex)
}

// write replays the resolved exchange to the client.
func (p *Pipeline) write(w http.ResponseWriter, ex *Exchange) {
	for k, vv := range ex.ResponseHeaders {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	if ex.Status == 0 {
		ex.Status = http.StatusOK
	}

	var body []byte
	switch b := ex.ResponseBody.(type) {
	case nil:
	case []byte:
		body = b
	case string:
		body = []byte(b)
	default:
		encoded, err := utils.MarshalNoEscape(b)
		if err != nil {
			log.Error().Err(err).Str("request_id", ex.ID).Msg("encoding response body failed")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
		}
		body = encoded
	}

	w.WriteHeader(ex.Status)
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			log.Debug().Err(err).Str("request_id", ex.ID).Msg("client went away mid-write")
		}
	}
}

// emit publishes the exchange to live viewers on the identity's channel.
func (p *Pipeline) emit(ex *Exchange) {
	if p.hub == nil {
		return
	}
	requestHeaders := flattenForEvent(ex.Header)
	requestHeaders["host"] = ex.Host

	var requestBody any
	if len(ex.RequestBody) > 0 {
		requestBody = utils.SafeParse(string(ex.RequestBody))
	}

	responseBody := ex.ResponseBody
	if raw, ok := responseBody.([]byte); ok {
		responseBody = utils.SafeParse(string(raw))
	}

	p.hub.Emit(ex.Identity, &events.Exchange{
		URL:             routekey.StripPrefix(ex.OriginalURL),
		Method:          ex.Method,
		Status:          ex.Status,
		RequestHeaders:  requestHeaders,
		ResponseHeaders: flattenForEvent(ex.ResponseHeaders),
		RequestBody:     requestBody,
		ResponseBody:    responseBody,
		RequestTime:     ex.StartTime.UnixMilli(),
		ResponseTime:    time.Now().UnixMilli(),
		ResolutionTag:   ex.ResolutionTag,
	})
}

// record appends the exchange to the telemetry log.
func (p *Pipeline) record(ex *Exchange) {
	if p.tracker == nil {
		return
	}
	responseSize := 0
	switch b := ex.ResponseBody.(type) {
	case nil:
	case []byte:
		responseSize = len(b)
	case string:
		responseSize = len(b)
	default:
		if encoded, err := utils.MarshalNoEscape(b); err == nil {
			responseSize = len(encoded)
		}
	}
	p.tracker.RecordRequest(&monitoring.RequestEvent{
		RequestID:        ex.ID,
		Timestamp:        ex.StartTime,
		Identity:         ex.Identity,
		Method:           ex.Method,
		Path:             routekey.Path(routekey.StripPrefix(ex.OriginalURL)),
		URLHash:          ex.Key.URLHash,
		StatusCode:       ex.Status,
		ResolutionTag:    ex.ResolutionTag,
		RequestBodySize:  len(ex.RequestBody),
		ResponseBodySize: responseSize,
		BackendEnv:       ex.ResponseHeaders.Get(config.HeaderBackendEnv),
		BackendURL:       ex.ResponseHeaders.Get(config.HeaderBackendURL),
		DurationMs:       time.Since(ex.StartTime).Milliseconds(),
	})
}

// eventHost resolves the host shown to live viewers, preferring the edge
// proxy's forwarded value.
func eventHost(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		return fwd
	}
	return r.Host
}
