package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/zsjie/imock-open/internal/config"
	"github.com/zsjie/imock-open/internal/proxy"
	"github.com/zsjie/imock-open/internal/routekey"
	"github.com/zsjie/imock-open/internal/store"
	"github.com/zsjie/imock-open/internal/utils"
)

// apiEnvelope is the management API response frame.
type apiEnvelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func respond(w http.ResponseWriter, status int, data any) {
	body, err := utils.MarshalNoEscape(apiEnvelope{Code: 0, Message: "success", Data: data})
	if err != nil {
		log.Error().Err(err).Msg("encoding api response failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}

func respondErr(w http.ResponseWriter, status int, msg string) {
	body, _ := utils.MarshalNoEscape(apiEnvelope{Code: status, Message: msg, Data: nil})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}

// identityOr400 extracts the mock identity header, failing the request when
// it is absent or ambiguous.
func identityOr400(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity, ok := routekey.ExtractIdentity(r.Header)
	if !ok {
		respondErr(w, http.StatusBadRequest, "missing or ambiguous "+config.HeaderMockID+" header")
	}
	return identity, ok
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize))
	if err := dec.Decode(dst); err != nil {
		respondErr(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// registerManagementRoutes wires the CRUD surface for mocks, backend
// bindings, the AI switch, the AI override, and the AI cache.
func (s *Server) registerManagementRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/mocks", s.handleListMocks)
	mux.HandleFunc("POST /api/mocks", s.handleUpsertMock)
	mux.HandleFunc("POST /api/mocks/{id}/start", s.handleStartMock)
	mux.HandleFunc("POST /api/mocks/{id}/stop", s.handleStopMock)
	mux.HandleFunc("DELETE /api/mocks/{id}", s.handleDeleteMock)

	mux.HandleFunc("GET /api/backends", s.handleListBackends)
	mux.HandleFunc("POST /api/backends", s.handleUpsertBackend)
	mux.HandleFunc("POST /api/backends/{env}/start", s.handleStartBackend)
	mux.HandleFunc("POST /api/backends/{env}/stop", s.handleStopBackend)

	mux.HandleFunc("POST /api/ai/switch", s.handleAISwitch)
	mux.HandleFunc("POST /api/ai/override", s.handleAIOverride)
	mux.HandleFunc("DELETE /api/ai/cache", s.handleDeleteAICache)
}

// ============================================================
// Mock records
// ============================================================

func (s *Server) handleListMocks(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOr400(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	urlHash, method := "", ""
	if u := q.Get("url"); u != "" {
		urlHash = routekey.Hash(routekey.Path(u))
		method = strings.ToUpper(q.Get("method"))
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}
	mocks, err := s.store.ListMocks(r.Context(), identity, urlHash, method, offset, limit)
	if err != nil {
		respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, mocks)
}

type upsertMockRequest struct {
	ID         int64             `json:"id"`
	URL        string            `json:"url"`
	Name       string            `json:"name"`
	Method     string            `json:"method"`
	StatusCode string            `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	DelayMs    int               `json:"delayMs"`
}

func (s *Server) handleUpsertMock(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOr400(w, r)
	if !ok {
		return
	}
	var req upsertMockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.URL == "" || req.Method == "" {
		respondErr(w, http.StatusBadRequest, "url and method are required")
		return
	}

	// Reserved proxy headers are stripped at save time so stored mocks can
	// never spoof the response's mock markers.
	headers := "{}"
	if len(req.Headers) > 0 {
		encoded, err := json.Marshal(proxy.SanitizeStoredHeaders(req.Headers))
		if err != nil {
			respondErr(w, http.StatusBadRequest, "invalid headers")
			return
		}
		headers = string(encoded)
	}
	if req.StatusCode == "" {
		req.StatusCode = "200"
	}

	urlPath := routekey.Path(req.URL)
	rec := &store.MockRecord{
		ID:         req.ID,
		Identity:   identity,
		URL:        urlPath,
		URLHash:    routekey.Hash(urlPath),
		Name:       req.Name,
		Method:     strings.ToUpper(req.Method),
		StatusCode: req.StatusCode,
		Headers:    headers,
		Body:       req.Body,
		DelayMs:    req.DelayMs,
		Running:    true,
		Source:     store.SourceManual,
	}
	if err := s.store.InsertOrUpdateMock(r.Context(), rec); err != nil {
		respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, rec)
}

func (s *Server) mockIDFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondErr(w, http.StatusBadRequest, "invalid mock id")
		return 0, false
	}
	return id, true
}

func (s *Server) handleStartMock(w http.ResponseWriter, r *http.Request) {
	id, ok := s.mockIDFromPath(w, r)
	if !ok {
		return
	}
	if err := s.store.StartMock(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondErr(w, http.StatusNotFound, "mock not found")
			return
		}
		respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, nil)
}

func (s *Server) handleStopMock(w http.ResponseWriter, r *http.Request) {
	id, ok := s.mockIDFromPath(w, r)
	if !ok {
		return
	}
	if err := s.store.StopMock(r.Context(), id); err != nil {
		respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, nil)
}

func (s *Server) handleDeleteMock(w http.ResponseWriter, r *http.Request) {
	id, ok := s.mockIDFromPath(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteMock(r.Context(), id); err != nil {
		respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, nil)
}

// ============================================================
// Backend bindings
// ============================================================

func (s *Server) handleListBackends(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOr400(w, r)
	if !ok {
		return
	}
	backends, err := s.store.ListBackends(r.Context(), identity)
	if err != nil {
		respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, backends)
}

type upsertBackendRequest struct {
	Env string `json:"env"`
	URL string `json:"url"`
}

func (s *Server) handleUpsertBackend(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOr400(w, r)
	if !ok {
		return
	}
	var req upsertBackendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	env := store.Env(req.Env)
	if !store.ValidEnv(env) {
		respondErr(w, http.StatusBadRequest, "env must be one of dev, test, pre, prod")
		return
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		respondErr(w, http.StatusBadRequest, "url must be absolute")
		return
	}
	if err := s.store.UpsertBackend(r.Context(), identity, env, req.URL); err != nil {
		respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, nil)
}

func (s *Server) handleStartBackend(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOr400(w, r)
	if !ok {
		return
	}
	env := store.Env(r.PathValue("env"))
	if !store.ValidEnv(env) {
		respondErr(w, http.StatusBadRequest, "unknown env")
		return
	}
	if err := s.store.StartBackend(r.Context(), identity, env); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondErr(w, http.StatusNotFound, "no backend bound for env")
			return
		}
		respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, nil)
}

func (s *Server) handleStopBackend(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOr400(w, r)
	if !ok {
		return
	}
	env := store.Env(r.PathValue("env"))
	if !store.ValidEnv(env) {
		respondErr(w, http.StatusBadRequest, "unknown env")
		return
	}
	if err := s.store.StopBackend(r.Context(), identity, env); err != nil {
		respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, nil)
}

// ============================================================
// AI switch, override, cache
// ============================================================

type aiFlagRequest struct {
	URL     string `json:"url"`
	Method  string `json:"method"`
	Enabled bool   `json:"enabled"`
}

func (r *aiFlagRequest) route() (urlPath, urlHash, method string, ok bool) {
	if r.URL == "" || r.Method == "" {
		return "", "", "", false
	}
	urlPath = routekey.Path(r.URL)
	return urlPath, routekey.Hash(urlPath), strings.ToUpper(r.Method), true
}

func (s *Server) handleAISwitch(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOr400(w, r)
	if !ok {
		return
	}
	var req aiFlagRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	urlPath, urlHash, method, ok := req.route()
	if !ok {
		respondErr(w, http.StatusBadRequest, "url and method are required")
		return
	}
	// The switch record marks routes where AI mocking is turned OFF.
	if err := s.store.SetAISwitch(r.Context(), identity, urlPath, urlHash, method, !req.Enabled); err != nil {
		respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, nil)
}

func (s *Server) handleAIOverride(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOr400(w, r)
	if !ok {
		return
	}
	var req aiFlagRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	urlPath, urlHash, method, ok := req.route()
	if !ok {
		respondErr(w, http.StatusBadRequest, "url and method are required")
		return
	}
	if err := s.store.SetAIOverride(r.Context(), identity, urlPath, urlHash, method, req.Enabled); err != nil {
		respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Enabling the override retires any running manual mock for the route;
	// the pipeline also skips the manual stage while the flag is on.
	if req.Enabled {
		if err := s.store.StopAllRunningManualMocks(r.Context(), identity, urlHash, method); err != nil {
			log.Warn().Err(err).Str("identity", identity).Msg("stopping manual mocks for override failed")
		}
	}
	respond(w, http.StatusOK, nil)
}

func (s *Server) handleDeleteAICache(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOr400(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	rawURL, method := q.Get("url"), strings.ToUpper(q.Get("method"))
	if rawURL == "" || method == "" {
		respondErr(w, http.StatusBadRequest, "url and method query parameters are required")
		return
	}
	urlHash := routekey.Hash(routekey.Path(rawURL))
	if err := s.store.DeleteAICacheBody(r.Context(), identity, urlHash, method); err != nil {
		respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, nil)
}
