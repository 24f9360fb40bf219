// Package store persists mock records and backend bindings.
//
// DESIGN: One user_mocks table holds every record kind, discriminated by the
// source column (manual, openapi, ai_cache, ai_mock_switch, ai_override).
// Each source only populates its relevant fields; accessors expose them as
// narrow, source-specific operations so the pipeline never touches a field
// belonging to another source. Backend bindings live in mock_urls, keyed by
// (identity, env).
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports that the addressed record does not exist.
var ErrNotFound = errors.New("record not found")

// Source discriminates record kinds sharing the user_mocks table.
type Source string

const (
	SourceManual     Source = "manual"
	SourceOpenAPI    Source = "openapi"
	SourceAICache    Source = "ai_cache"
	SourceAISwitch   Source = "ai_mock_switch"
	SourceAIOverride Source = "ai_override"
)

// Env names a backend binding environment.
type Env string

const (
	EnvDev  Env = "dev"
	EnvTest Env = "test"
	EnvPre  Env = "pre"
	EnvProd Env = "prod"
)

// ValidEnv reports whether e is one of the known environments.
func ValidEnv(e Env) bool {
	switch e {
	case EnvDev, EnvTest, EnvPre, EnvProd:
		return true
	}
	return false
}

// MockRecord is one stored mock response for an (identity, route) pair.
// StatusCode is kept as a string, matching how mock authors submit it.
type MockRecord struct {
	ID         int64     `json:"id"`
	Identity   string    `json:"identity"`
	URL        string    `json:"url"`
	URLHash    string    `json:"urlHash"`
	Name       string    `json:"name"`
	Method     string    `json:"method"`
	StatusCode string    `json:"statusCode"`
	Headers    string    `json:"headers"` // JSON-serialized header map
	Body       string    `json:"body"`    // may contain template directives
	DelayMs    int       `json:"delayMs"`
	Running    bool      `json:"running"`
	Deleted    bool      `json:"deleted"`
	Source     Source    `json:"source"`
	// OpenAPI-origin metadata
	Description    string    `json:"description,omitempty"`
	ResponseSchema string    `json:"responseSchema,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// BackendBinding is a per-environment real server URL for one identity.
type BackendBinding struct {
	ID       int64  `json:"id"`
	Identity string `json:"identity"`
	Env      Env    `json:"env"`
	URL      string `json:"url"`
	Running  bool   `json:"running"`
}

// Store is the persistence contract consumed by the resolution pipeline and
// the management API. Implementations must make each operation individually
// atomic; the deactivate-then-activate pair used when starting a manual mock
// is wrapped in a transaction by the sqlite implementation.
type Store interface {
	// Manual mock records
	GetRunningManualMock(ctx context.Context, identity, urlHash, method string) (*MockRecord, error)
	StopAllRunningManualMocks(ctx context.Context, identity, urlHash, method string) error
	InsertOrUpdateMock(ctx context.Context, rec *MockRecord) error
	StartMock(ctx context.Context, id int64) error
	StopMock(ctx context.Context, id int64) error
	DeleteMock(ctx context.Context, id int64) error
	FindMockByID(ctx context.Context, id int64) (*MockRecord, error)
	ListMocks(ctx context.Context, identity, urlHash, method string, offset, limit int) ([]MockRecord, error)

	// AI cache
	GetAICacheBody(ctx context.Context, identity, urlHash, method string) (string, error)
	SetAICacheBody(ctx context.Context, identity, url, urlHash, method, body string) error
	DeleteAICacheBody(ctx context.Context, identity, urlHash, method string) error

	// AI switch and override
	IsAISwitchDisabled(ctx context.Context, identity, urlHash, method string) (bool, error)
	SetAISwitch(ctx context.Context, identity, url, urlHash, method string, running bool) error
	IsAIOverrideActive(ctx context.Context, identity, urlHash, method string) (bool, error)
	SetAIOverride(ctx context.Context, identity, url, urlHash, method string, override bool) error

	// Imported response schemas
	GetResponseSchema(ctx context.Context, identity, urlHash, method string) (string, error)

	// Backend bindings
	FindRunningBackend(ctx context.Context, identity string) (*BackendBinding, error)
	UpsertBackend(ctx context.Context, identity string, env Env, url string) error
	StartBackend(ctx context.Context, identity string, env Env) error
	StopBackend(ctx context.Context, identity string, env Env) error
	ListBackends(ctx context.Context, identity string) ([]BackendBinding, error)

	Ping(ctx context.Context) error
	Close() error
}
