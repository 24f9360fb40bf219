package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func manualMock(identity, urlHash, method string) *MockRecord {
	return &MockRecord{
		Identity:   identity,
		URL:        "/todos",
		URLHash:    urlHash,
		Method:     method,
		StatusCode: "200",
		Body:       `{"ok": true}`,
		Source:     SourceManual,
	}
}

func TestInsertOrUpdateMock_SingleActivePerRoute(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := manualMock("alice", "hash1", "GET")
	require.NoError(t, s.InsertOrUpdateMock(ctx, first))
	assert.True(t, first.Running)

	second := manualMock("alice", "hash1", "GET")
	second.Body = `{"ok": false}`
	require.NoError(t, s.InsertOrUpdateMock(ctx, second))

	// Creating a second record deactivates the first.
	running, err := s.GetRunningManualMock(ctx, "alice", "hash1", "GET")
	require.NoError(t, err)
	require.NotNil(t, running)
	assert.Equal(t, second.ID, running.ID)

	old, err := s.FindMockByID(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, old)
	assert.False(t, old.Running)
}

func TestInsertOrUpdateMock_RoutesAreIndependent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	get := manualMock("alice", "hash1", "GET")
	post := manualMock("alice", "hash1", "POST")
	other := manualMock("bob", "hash1", "GET")
	require.NoError(t, s.InsertOrUpdateMock(ctx, get))
	require.NoError(t, s.InsertOrUpdateMock(ctx, post))
	require.NoError(t, s.InsertOrUpdateMock(ctx, other))

	for _, tc := range []struct {
		identity, method string
		want             int64
	}{
		{"alice", "GET", get.ID},
		{"alice", "POST", post.ID},
		{"bob", "GET", other.ID},
	} {
		rec, err := s.GetRunningManualMock(ctx, tc.identity, "hash1", tc.method)
		require.NoError(t, err)
		require.NotNil(t, rec, "%s %s", tc.identity, tc.method)
		assert.Equal(t, tc.want, rec.ID)
	}
}

func TestStartMock_DeactivatesSiblings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := manualMock("alice", "hash1", "GET")
	second := manualMock("alice", "hash1", "GET")
	require.NoError(t, s.InsertOrUpdateMock(ctx, first))
	require.NoError(t, s.InsertOrUpdateMock(ctx, second))

	require.NoError(t, s.StartMock(ctx, first.ID))

	running, err := s.GetRunningManualMock(ctx, "alice", "hash1", "GET")
	require.NoError(t, err)
	require.NotNil(t, running)
	assert.Equal(t, first.ID, running.ID)

	now, err := s.FindMockByID(ctx, second.ID)
	require.NoError(t, err)
	assert.False(t, now.Running)
}

func TestStartMock_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.StartMock(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStopMock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := manualMock("alice", "hash1", "GET")
	require.NoError(t, s.InsertOrUpdateMock(ctx, rec))
	require.NoError(t, s.StopMock(ctx, rec.ID))

	running, err := s.GetRunningManualMock(ctx, "alice", "hash1", "GET")
	require.NoError(t, err)
	assert.Nil(t, running)
}

func TestDeleteMock_SoftDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := manualMock("alice", "hash1", "GET")
	require.NoError(t, s.InsertOrUpdateMock(ctx, rec))
	require.NoError(t, s.DeleteMock(ctx, rec.ID))

	found, err := s.FindMockByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, found)

	running, err := s.GetRunningManualMock(ctx, "alice", "hash1", "GET")
	require.NoError(t, err)
	assert.Nil(t, running)
}

func TestListMocks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, s.InsertOrUpdateMock(ctx, manualMock("alice", "hash1", "GET")))
	}
	require.NoError(t, s.InsertOrUpdateMock(ctx, manualMock("alice", "hash2", "GET")))

	byRoute, err := s.ListMocks(ctx, "alice", "hash1", "GET", 0, 10)
	require.NoError(t, err)
	assert.Len(t, byRoute, 3)

	all, err := s.ListMocks(ctx, "alice", "", "", 0, 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	paged, err := s.ListMocks(ctx, "alice", "hash1", "GET", 1, 1)
	require.NoError(t, err)
	assert.Len(t, paged, 1)
}

func TestAICache_UpsertAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	body, err := s.GetAICacheBody(ctx, "alice", "hash1", "GET")
	require.NoError(t, err)
	assert.Empty(t, body)

	require.NoError(t, s.SetAICacheBody(ctx, "alice", "/todos", "hash1", "GET", `{"v":1}`))
	body, err = s.GetAICacheBody(ctx, "alice", "hash1", "GET")
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, body)

	// Second write replaces, never duplicates.
	require.NoError(t, s.SetAICacheBody(ctx, "alice", "/todos", "hash1", "GET", `{"v":2}`))
	body, err = s.GetAICacheBody(ctx, "alice", "hash1", "GET")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, body)

	require.NoError(t, s.DeleteAICacheBody(ctx, "alice", "hash1", "GET"))
	body, err = s.GetAICacheBody(ctx, "alice", "hash1", "GET")
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestAISwitch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Absent record means AI mocking is allowed.
	disabled, err := s.IsAISwitchDisabled(ctx, "alice", "hash1", "GET")
	require.NoError(t, err)
	assert.False(t, disabled)

	require.NoError(t, s.SetAISwitch(ctx, "alice", "/todos", "hash1", "GET", false))
	disabled, err = s.IsAISwitchDisabled(ctx, "alice", "hash1", "GET")
	require.NoError(t, err)
	assert.True(t, disabled)

	require.NoError(t, s.SetAISwitch(ctx, "alice", "/todos", "hash1", "GET", true))
	disabled, err = s.IsAISwitchDisabled(ctx, "alice", "hash1", "GET")
	require.NoError(t, err)
	assert.False(t, disabled)
}

func TestAIOverride(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active, err := s.IsAIOverrideActive(ctx, "alice", "hash1", "GET")
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, s.SetAIOverride(ctx, "alice", "/todos", "hash1", "GET", true))
	active, err = s.IsAIOverrideActive(ctx, "alice", "hash1", "GET")
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, s.SetAIOverride(ctx, "alice", "/todos", "hash1", "GET", false))
	active, err = s.IsAIOverrideActive(ctx, "alice", "hash1", "GET")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestBackends_SingleRunning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertBackend(ctx, "alice", EnvDev, "http://dev.internal"))
	require.NoError(t, s.UpsertBackend(ctx, "alice", EnvTest, "http://test.internal"))

	// Nothing runs until explicitly started.
	running, err := s.FindRunningBackend(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, running)

	require.NoError(t, s.StartBackend(ctx, "alice", EnvDev))
	running, err = s.FindRunningBackend(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, running)
	assert.Equal(t, EnvDev, running.Env)

	// Starting another env stops the first.
	require.NoError(t, s.StartBackend(ctx, "alice", EnvTest))
	running, err = s.FindRunningBackend(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, running)
	assert.Equal(t, EnvTest, running.Env)

	backends, err := s.ListBackends(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, backends, 2)
	runningCount := 0
	for _, b := range backends {
		if b.Running {
			runningCount++
		}
	}
	assert.Equal(t, 1, runningCount)

	require.NoError(t, s.StopBackend(ctx, "alice", EnvTest))
	running, err = s.FindRunningBackend(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, running)
}

func TestStartBackend_RequiresBinding(t *testing.T) {
	s := newTestStore(t)
	err := s.StartBackend(context.Background(), "alice", EnvProd)
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.StartBackend(context.Background(), "alice", Env("staging"))
	assert.Error(t, err)
}

func TestUpsertBackend_ReplacesURL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertBackend(ctx, "alice", EnvDev, "http://old.internal"))
	require.NoError(t, s.UpsertBackend(ctx, "alice", EnvDev, "http://new.internal"))

	backends, err := s.ListBackends(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, backends, 1)
	assert.Equal(t, "http://new.internal", backends[0].URL)
}

func TestGetResponseSchema(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	schema, err := s.GetResponseSchema(ctx, "alice", "hash1", "GET")
	require.NoError(t, err)
	assert.Empty(t, schema)

	rec := &MockRecord{
		Identity:       "alice",
		URL:            "/todos",
		URLHash:        "hash1",
		Method:         "GET",
		StatusCode:     "200",
		Source:         SourceOpenAPI,
		ResponseSchema: `{"type":"object"}`,
	}
	require.NoError(t, s.InsertOrUpdateMock(ctx, rec))

	schema, err = s.GetResponseSchema(ctx, "alice", "hash1", "GET")
	require.NoError(t, err)
	assert.Equal(t, `{"type":"object"}`, schema)
}
