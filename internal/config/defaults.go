// Package config - defaults.go centralizes magic numbers and wire constants.
//
// DESIGN: All default values and protocol constants that appear in multiple
// places are defined here. This makes configuration more maintainable and
// auditable.
package config

import "time"

// =============================================================================
// PROXY WIRE CONSTANTS
// =============================================================================

// ProxyAPIPrefix is the URL prefix that engages the mock pipeline.
const ProxyAPIPrefix = "/proxy-api"

// HeaderMockID carries the mock identity token on inbound requests.
const HeaderMockID = "x-imock-id"

// HeaderUseCache opts out of the AI response cache when set to "false".
const HeaderUseCache = "x-imock-use-cache"

// HeaderMockedBy marks responses served from a manual mock record.
const HeaderMockedBy = "x-mocked-by-imock"

// HeaderMockedByAI marks responses synthesized or replayed by the AI resolver.
const HeaderMockedByAI = "x-mocked-by-imock-ai"

// HeaderBackendEnv and HeaderBackendURL expose which backend binding was
// consulted, for client-side observability.
const (
	HeaderBackendEnv = "x-imock-backend-env"
	HeaderBackendURL = "x-imock-backend-url"
)

// ReservedHeaderPrefixes are internal routing headers that must never leak
// into stored mock headers or outbound responses authored by users.
var ReservedHeaderPrefixes = []string{"x-imock-", "x-mocked-by-imock"}

// =============================================================================
// FORWARDING
// =============================================================================

// ForwardTimeout caps a single backend forwarding attempt.
const ForwardTimeout = 60 * time.Second

// MaxForwardRedirects is the redirect-follow limit for backend calls.
const MaxForwardRedirects = 5

// MaxRequestBodySize is the maximum allowed inbound request body (50MB).
const MaxRequestBodySize = 50 * 1024 * 1024

// MaxResponseSize is the maximum allowed backend response body (50MB).
const MaxResponseSize = 50 * 1024 * 1024

// =============================================================================
// AI GENERATION
// =============================================================================

// DefaultAIEndpoint is the OpenAI-compatible endpoint of the default model.
const DefaultAIEndpoint = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"

// DefaultAIModel is the default text-generation model.
const DefaultAIModel = "qwen-turbo"

// DefaultAITimeout bounds one language-model invocation.
const DefaultAITimeout = 30 * time.Second

// DefaultAIMaxTokens caps the generated completion length.
const DefaultAIMaxTokens = 2048

// PromptBodyTokenBudget caps how many tokens of the request body are quoted
// in a generation prompt.
const PromptBodyTokenBudget = 1024

// =============================================================================
// SERVER
// =============================================================================

// DefaultServerPort is the listen port when none is configured.
const DefaultServerPort = 9527

// DefaultServerReadTimeout for the HTTP server.
const DefaultServerReadTimeout = 2 * time.Minute

// DefaultServerWriteTimeout for the HTTP server (safe for long mock delays).
const DefaultServerWriteTimeout = 10 * time.Minute

// DefaultStorePath is the sqlite database location.
const DefaultStorePath = "imock.db"
