package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/zsjie/imock-open/external"
	"github.com/zsjie/imock-open/internal/config"
	"github.com/zsjie/imock-open/internal/mocktpl"
	"github.com/zsjie/imock-open/internal/routekey"
	"github.com/zsjie/imock-open/internal/store"
)

// aiStage is the last resolver: it serves a cached machine-generated mock
// when one exists, otherwise asks the language model for a fresh one and
// caches the result. It always terminates the exchange.
type aiStage struct {
	store store.Store
	gen   TextGenerator
}

func (s *aiStage) Name() string { return "aimock" }

func (s *aiStage) Resolve(ctx context.Context, ex *Exchange) (Outcome, error) {
	disabled, err := s.store.IsAISwitchDisabled(ctx, ex.Identity, ex.Key.URLHash, ex.Key.Method)
	if err != nil {
		return Pass, fmt.Errorf("check ai switch: %w", err)
	}
	if disabled {
		ex.respondNotFound()
		return Handled, nil
	}

	if ex.UseCache {
		cached, err := s.store.GetAICacheBody(ctx, ex.Identity, ex.Key.URLHash, ex.Key.Method)
		if err != nil {
			return Pass, fmt.Errorf("read ai cache: %w", err)
		}
		if cached != "" {
			log.Debug().
				Str("identity", ex.Identity).
				Str("method", ex.Method).
				Str("url", ex.OriginalURL).
				Msg("serving cached ai mock")
			s.finish(ctx, ex, mocktpl.Expand(cached))
			return Handled, nil
		}
	}

	schema, err := s.store.GetResponseSchema(ctx, ex.Identity, ex.Key.URLHash, ex.Key.Method)
	if err != nil {
		log.Warn().Err(err).Str("identity", ex.Identity).Msg("response schema lookup failed, generating without it")
		schema = ""
	}

	requestBody := ""
	if len(ex.RequestBody) > 0 {
		requestBody = external.TruncateForPrompt(string(ex.RequestBody), config.PromptBodyTokenBudget)
	}
	prompt := external.BuildMockPrompt(ex.Method, routekey.StripPrefix(ex.OriginalURL), requestBody, schema)

	log.Info().
		Str("identity", ex.Identity).
		Str("method", ex.Method).
		Str("url", ex.OriginalURL).
		Msg("generating ai mock")

	text, err := s.gen.GenerateText(ctx, prompt)
	if err != nil {
		return Pass, fmt.Errorf("%w: %v", ErrAIGeneration, err)
	}

	var value any
	if gjson.Valid(text) {
		if err := json.Unmarshal([]byte(text), &value); err != nil {
			value = text
		}
	} else {
		value = text
	}

	// Cache the raw generation; templates expand freshly on each serve.
	if cached, err := json.Marshal(value); err == nil {
		urlPath := routekey.Path(ex.OriginalURL)
		if err := s.store.SetAICacheBody(ctx, ex.Identity, urlPath, ex.Key.URLHash, ex.Key.Method, string(cached)); err != nil {
			log.Warn().Err(err).Str("identity", ex.Identity).Msg("caching ai mock failed")
		}
	}

	s.finish(ctx, ex, mocktpl.ExpandValue(value))
	return Handled, nil
}

// finish stamps the AI-served markers and completes the exchange.
func (s *aiStage) finish(ctx context.Context, ex *Exchange, body any) {
	ex.ResponseHeaders.Set(config.HeaderMockedByAI, "true")
	if backend, err := s.store.FindRunningBackend(ctx, ex.Identity); err == nil && backend != nil {
		ex.ResponseHeaders.Set(config.HeaderBackendURL, backend.URL)
	}
	if ex.ResponseHeaders.Get("Content-Type") == "" {
		ex.ResponseHeaders.Set("Content-Type", "application/json; charset=utf-8")
	}
	ex.Status = http.StatusOK
	ex.ResponseBody = body
	ex.ResolutionTag = TagMockedAI
}
