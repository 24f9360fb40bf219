package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zsjie/imock-open/internal/config"
	"github.com/zsjie/imock-open/internal/mocktpl"
	"github.com/zsjie/imock-open/internal/store"
)

// overrideStage runs first and only annotates the exchange: when the AI
// override flag is active for this route, the manual and forward stages
// step aside so the AI resolver answers even while a manual mock runs.
type overrideStage struct {
	store store.Store
}

func (s *overrideStage) Name() string { return "override" }

func (s *overrideStage) Resolve(ctx context.Context, ex *Exchange) (Outcome, error) {
	active, err := s.store.IsAIOverrideActive(ctx, ex.Identity, ex.Key.URLHash, ex.Key.Method)
	if err != nil {
		return Pass, fmt.Errorf("check ai override: %w", err)
	}
	ex.AIOverride = active
	return Pass, nil
}

// manualStage answers with the single running hand-authored mock for the
// route, when one exists.
type manualStage struct {
	store store.Store
}

func (s *manualStage) Name() string { return "manual" }

func (s *manualStage) Resolve(ctx context.Context, ex *Exchange) (Outcome, error) {
	if ex.AIOverride {
		return Pass, nil
	}

	rec, err := s.store.GetRunningManualMock(ctx, ex.Identity, ex.Key.URLHash, ex.Key.Method)
	if err != nil {
		return Pass, fmt.Errorf("lookup manual mock: %w", err)
	}
	if rec == nil {
		return Pass, nil
	}

	log.Debug().
		Str("identity", ex.Identity).
		Str("method", ex.Method).
		Str("url", ex.OriginalURL).
		Str("mock_id", strconv.FormatInt(rec.ID, 10)).
		Msg("serving manual mock")

	if rec.Headers != "" {
		var hdrs map[string]string
		if err := json.Unmarshal([]byte(rec.Headers), &hdrs); err != nil {
			log.Warn().Err(err).Int64("mock_id", rec.ID).Msg("unparseable stored headers, skipping")
		} else {
			for k, v := range SanitizeStoredHeaders(hdrs) {
				ex.ResponseHeaders.Set(k, v)
			}
		}
	}
	ex.ResponseHeaders.Set(config.HeaderMockedBy, "true")
	if backend, err := s.store.FindRunningBackend(ctx, ex.Identity); err == nil && backend != nil {
		ex.ResponseHeaders.Set(config.HeaderBackendURL, backend.URL)
	}

	if rec.DelayMs > 0 {
		timer := time.NewTimer(time.Duration(rec.DelayMs) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Pass, ctx.Err()
		}
	}

	status, err := strconv.Atoi(rec.StatusCode)
	if err != nil || status < 100 || status > 599 {
		status = 200
	}
	ex.Status = status
	ex.ResponseBody = mocktpl.Expand(rec.Body)
	ex.ResolutionTag = TagMockedManual
	return Handled, nil
}
