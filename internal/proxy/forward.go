package proxy

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/zsjie/imock-open/internal/config"
	"github.com/zsjie/imock-open/internal/routekey"
	"github.com/zsjie/imock-open/internal/store"
)

// errBackendLookup marks failures before any forwarding attempt began; the
// orchestrator may still fall through to the AI resolver on these.
var errBackendLookup = errors.New("backend lookup failed")

// forwardStage relays the request to the identity's running backend binding
// and replays the response. Once a forwarding attempt begins the client is
// owed an answer, so transport failures become structured error responses
// rather than falling through to the AI resolver.
type forwardStage struct {
	store  store.Store
	client *http.Client
}

func newForwardStage(st store.Store) *forwardStage {
	return &forwardStage{
		store: st,
		client: &http.Client{
			Timeout: config.ForwardTimeout,
			Transport: &http.Transport{
				// The inbound Accept-Encoding travels as-is and the body is
				// decoded here, so the transport must not negotiate its own.
				DisableCompression: true,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= config.MaxForwardRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

func (s *forwardStage) Name() string { return "forward" }

func (s *forwardStage) Resolve(ctx context.Context, ex *Exchange) (Outcome, error) {
	if ex.AIOverride {
		return Pass, nil
	}

	backend, err := s.store.FindRunningBackend(ctx, ex.Identity)
	if err != nil {
		return Pass, fmt.Errorf("%w: %v", errBackendLookup, err)
	}
	if backend == nil {
		return Pass, nil
	}

	// Tag the exchange with its origin regardless of how forwarding ends.
	ex.ResponseHeaders.Set(config.HeaderBackendEnv, string(backend.Env))
	ex.ResponseHeaders.Set(config.HeaderBackendURL, backend.URL)

	target := strings.TrimSuffix(backend.URL, "/") + routekey.StripPrefix(ex.OriginalURL)
	req, err := http.NewRequestWithContext(ctx, ex.Method, target, bytes.NewReader(ex.RequestBody))
	if err != nil {
		log.Warn().Err(err).Str("target", target).Msg("bad forward target")
		ex.respondError(http.StatusInternalServerError, "upstream_error", err.Error())
		return Handled, nil
	}
	copyForwardHeaders(req.Header, ex.Header)

	log.Debug().
		Str("identity", ex.Identity).
		Str("method", ex.Method).
		Str("target", target).
		Msg("forwarding to backend")

	resp, err := s.client.Do(req)
	if err != nil {
		code := "upstream_error"
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			code = "upstream_timeout"
		}
		log.Warn().Err(err).Str("target", target).Msg("forward failed")
		ex.respondError(http.StatusInternalServerError, code, err.Error())
		return Handled, nil
	}
	defer resp.Body.Close()

	ex.Status = resp.StatusCode
	ex.ResolutionTag = TagProxied

	// Not Modified carries no body and no useful entity headers.
	if resp.StatusCode == http.StatusNotModified {
		ex.ResponseBody = nil
		return Handled, nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, config.MaxResponseSize))
	if err != nil {
		log.Warn().Err(err).Str("target", target).Msg("reading backend body failed")
		ex.respondError(http.StatusInternalServerError, "upstream_error", err.Error())
		return Handled, nil
	}

	body := decompress(resp.Header.Get("Content-Encoding"), raw)

	for k, vv := range resp.Header {
		if _, drop := responseHeaderDrops[strings.ToLower(k)]; drop {
			continue
		}
		for _, v := range vv {
			ex.ResponseHeaders.Add(k, v)
		}
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var parsed any
		if err := json.Unmarshal(body, &parsed); err == nil {
			ex.ResponseBody = parsed
			return Handled, nil
		}
	}
	ex.ResponseBody = body
	return Handled, nil
}

// decompress decodes a backend body by its declared encoding. Any decode
// failure falls back to the raw bytes so the client still sees something.
func decompress(encoding string, data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	var (
		out []byte
		err error
	)
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return data
	case "gzip":
		var r *gzip.Reader
		if r, err = gzip.NewReader(bytes.NewReader(data)); err == nil {
			out, err = io.ReadAll(r)
			r.Close()
		}
	case "deflate":
		// Servers disagree on whether deflate means zlib-wrapped or raw.
		var r io.ReadCloser
		if r, err = zlib.NewReader(bytes.NewReader(data)); err == nil {
			out, err = io.ReadAll(r)
			r.Close()
		} else {
			fr := flate.NewReader(bytes.NewReader(data))
			out, err = io.ReadAll(fr)
			fr.Close()
		}
	case "br":
		out, err = io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	case "zstd":
		var d *zstd.Decoder
		if d, err = zstd.NewReader(bytes.NewReader(data)); err == nil {
			out, err = io.ReadAll(d)
			d.Close()
		}
	default:
		log.Debug().Str("encoding", encoding).Msg("unknown content encoding, passing body through")
		return data
	}
	if err != nil {
		log.Warn().Err(err).Str("encoding", encoding).Msg("decompression failed, passing body through")
		return data
	}
	return out
}
