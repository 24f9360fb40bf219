// Package proxy types - the exchange carried through the resolution pipeline.
//
// DESIGN: Types used by the pipeline for:
//   - Per-request state threaded through stages
//   - Stage contracts (explicit ordered evaluation)
//   - Error envelopes on the wire
package proxy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tidwall/sjson"

	"github.com/zsjie/imock-open/internal/routekey"
)

// Resolution tags attached to every terminal outcome.
const (
	TagMockedManual = "mocked-manual"
	TagProxied      = "proxied"
	TagMockedAI     = "mocked-ai"
	TagError        = "error"
)

// Outcome is a stage's verdict on an exchange.
type Outcome int

const (
	// Pass means the stage did not produce a response; evaluation continues.
	Pass Outcome = iota
	// Handled means the stage terminated the request.
	Handled
)

// Stage is one step of the ordered decision chain. Stages must not write to
// the network themselves; they fill in the Exchange and report an Outcome.
type Stage interface {
	// Name returns the stage identifier.
	Name() string

	// Resolve inspects the exchange and either handles it or passes.
	Resolve(ctx context.Context, ex *Exchange) (Outcome, error)
}

// TextGenerator is the language-model collaborator. Constructed once at
// process start and injected, so tests can substitute a fake.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// ErrAIGeneration marks language-model failures. The orchestrator surfaces
// these as a 500-class response instead of falling through.
var ErrAIGeneration = errors.New("ai generation failed")

// Exchange carries one proxied request through the pipeline stages.
type Exchange struct {
	ID          string
	Identity    string
	Key         routekey.Key
	Method      string
	OriginalURL string // path+query, proxy prefix included
	Header      http.Header
	Host        string
	RequestBody []byte

	StartTime  time.Time
	AIOverride bool // set by the override stage; manual and forward skip
	UseCache   bool // AI cache read allowed (default true)

	// Filled by the terminating stage.
	Handled         bool
	Status          int
	ResponseHeaders http.Header
	ResponseBody    any // []byte for passthrough, structured value otherwise
	ResolutionTag   string
}

// respondError fills the exchange with a structured error envelope:
// {"data":null,"msg":...,"code":...}.
func (ex *Exchange) respondError(status int, code any, msg string) {
	body, _ := sjson.SetBytes([]byte(`{"data":null}`), "msg", msg)
	body, _ = sjson.SetBytes(body, "code", code)
	ex.Status = status
	ex.ResponseHeaders.Set("Content-Type", "application/json; charset=utf-8")
	ex.ResponseBody = body
	ex.ResolutionTag = TagError
	ex.Handled = true
}

// respondNotFound fills the exchange with the fixed not-found envelope:
// {"data":null,"message":"Not Found","code":404}.
func (ex *Exchange) respondNotFound() {
	body, _ := sjson.SetBytes([]byte(`{"data":null}`), "message", "Not Found")
	body, _ = sjson.SetBytes(body, "code", http.StatusNotFound)
	ex.Status = http.StatusNotFound
	ex.ResponseHeaders.Set("Content-Type", "application/json; charset=utf-8")
	ex.ResponseBody = body
	ex.ResolutionTag = TagError
	ex.Handled = true
}
