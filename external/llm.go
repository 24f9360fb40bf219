// Direct LLM provider calls.
//
// DESIGN: CallLLM() is the single entry point for text generation. The
// provider string selects the wire format:
//   - "openai":    OpenAI-compatible chat completions (Qwen via DashScope
//                  compatible mode is the default deployment)
//   - "anthropic": Anthropic messages API
//   - "bedrock":   Anthropic messages format signed with AWS SigV4
//
// The Generator type adapts CallLLM to the narrow generate(prompt) -> text
// contract the AI resolver consumes, so tests can substitute a fake.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zsjie/imock-open/internal/utils"
)

// CallLLMParams holds everything needed for one generation call.
type CallLLMParams struct {
	Provider     string
	Endpoint     string
	APISecret    string
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Timeout      time.Duration

	// HTTPClient overrides the default client (used for Bedrock signing).
	HTTPClient *http.Client
}

// CallLLMResult is the extracted completion.
type CallLLMResult struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// CallLLM invokes the configured provider and extracts the completion text.
func CallLLM(ctx context.Context, params CallLLMParams) (*CallLLMResult, error) {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := params.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	var body []byte
	var err error
	switch params.Provider {
	case "anthropic", "bedrock":
		reqBody := AnthropicRequest{
			Model:     params.Model,
			MaxTokens: maxTokensOrDefault(params.MaxTokens),
			System:    params.SystemPrompt,
			Messages:  []AnthropicMessage{{Role: "user", Content: params.UserPrompt}},
		}
		if params.Provider == "bedrock" {
			// Bedrock addresses the model in the URL, not the body.
			reqBody.Model = ""
			reqBody.AnthropicVersion = "bedrock-2023-05-31"
		}
		body, err = json.Marshal(reqBody)
	default:
		body, err = json.Marshal(OpenAIChatRequest{
			Model: params.Model,
			Messages: []OpenAIMessage{
				{Role: "system", Content: params.SystemPrompt},
				{Role: "user", Content: params.UserPrompt},
			},
			MaxTokens: params.MaxTokens,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("marshal LLM request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, params.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build LLM request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	switch params.Provider {
	case "anthropic":
		req.Header.Set("x-api-key", params.APISecret)
		req.Header.Set("anthropic-version", "2023-06-01")
	case "bedrock":
		// Auth is applied by the signing transport.
	default:
		req.Header.Set("Authorization", "Bearer "+params.APISecret)
	}

	log.Debug().
		Str("provider", params.Provider).
		Str("model", params.Model).
		Str("api_key", utils.MaskKey(params.APISecret)).
		Msg("calling LLM")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("LLM request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read LLM response: %w", err)
	}

	switch params.Provider {
	case "anthropic", "bedrock":
		return extractAnthropicResponse(resp.StatusCode, respBody)
	default:
		return extractOpenAIResponse(resp.StatusCode, respBody)
	}
}

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return 2048
	}
	return n
}

func extractOpenAIResponse(status int, body []byte) (*CallLLMResult, error) {
	var parsed OpenAIChatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse LLM response (status %d): %w", status, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("LLM error (status %d): %s", status, parsed.Error.Message)
	}
	if status >= 400 {
		return nil, fmt.Errorf("LLM error: status %d", status)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}
	return &CallLLMResult{
		Content:      parsed.Choices[0].Message.Content,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}

func extractAnthropicResponse(status int, body []byte) (*CallLLMResult, error) {
	var parsed AnthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse LLM response (status %d): %w", status, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("LLM error (status %d): %s", status, parsed.Error.Message)
	}
	if status >= 400 {
		return nil, fmt.Errorf("LLM error: status %d", status)
	}
	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("LLM returned no text content")
	}
	return &CallLLMResult{
		Content:      text.String(),
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}, nil
}

// =============================================================================
// GENERATOR
// =============================================================================

// GeneratorConfig configures a reusable text generator.
type GeneratorConfig struct {
	Provider  string
	Endpoint  string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration

	// BedrockRegion selects the signing region when Provider is "bedrock".
	BedrockRegion string
}

// Generator is a process-wide text-generation collaborator constructed once
// at startup and injected into the AI resolver.
type Generator struct {
	cfg    GeneratorConfig
	client *http.Client
}

// NewGenerator builds a Generator, wiring the Bedrock signing transport when
// needed.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	g := &Generator{cfg: cfg}
	if cfg.Provider == "bedrock" {
		transport, err := NewBedrockSigningTransport(cfg.BedrockRegion, nil)
		if err != nil {
			return nil, fmt.Errorf("bedrock transport: %w", err)
		}
		g.client = &http.Client{Transport: transport, Timeout: cfg.Timeout}
	}
	return g, nil
}

// GenerateText produces a completion for prompt.
func (g *Generator) GenerateText(ctx context.Context, prompt string) (string, error) {
	result, err := CallLLM(ctx, CallLLMParams{
		Provider:     g.cfg.Provider,
		Endpoint:     g.cfg.Endpoint,
		APISecret:    g.cfg.APIKey,
		Model:        g.cfg.Model,
		SystemPrompt: MockSystemPrompt,
		UserPrompt:   prompt,
		MaxTokens:    g.cfg.MaxTokens,
		Timeout:      g.cfg.Timeout,
		HTTPClient:   g.client,
	})
	if err != nil {
		return "", err
	}
	return result.Content, nil
}
