package monitoring

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestTracker_CountsByTag(t *testing.T) {
	tr, err := NewTracker(TelemetryConfig{Enabled: false})
	require.NoError(t, err)

	tr.RecordRequest(&RequestEvent{ResolutionTag: "proxied"})
	tr.RecordRequest(&RequestEvent{ResolutionTag: "proxied"})
	tr.RecordRequest(&RequestEvent{ResolutionTag: "mocked-manual"})

	total, byTag := tr.Stats()
	assert.Equal(t, int64(3), total)
	assert.Equal(t, int64(2), byTag["proxied"])
	assert.Equal(t, int64(1), byTag["mocked-manual"])
}

func TestTracker_DisabledWritesNoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.jsonl")
	tr, err := NewTracker(TelemetryConfig{Enabled: false, LogPath: path})
	require.NoError(t, err)

	tr.RecordRequest(&RequestEvent{ResolutionTag: "proxied"})

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	total, _ := tr.Stats()
	assert.Equal(t, int64(1), total, "counters still update when file logging is off")
}

func TestTracker_AppendsJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "requests.jsonl")
	tr, err := NewTracker(TelemetryConfig{Enabled: true, LogPath: path})
	require.NoError(t, err)

	tr.RecordRequest(&RequestEvent{
		RequestID:     "req-1",
		Timestamp:     time.Now(),
		Identity:      "alice",
		Method:        "GET",
		Path:          "/todos",
		StatusCode:    200,
		ResolutionTag: "mocked-ai",
		DurationMs:    12,
	})
	tr.RecordRequest(&RequestEvent{RequestID: "req-2", ResolutionTag: "error"})

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 2)

	first := gjson.Parse(lines[0])
	assert.Equal(t, "req-1", first.Get("request_id").String())
	assert.Equal(t, "alice", first.Get("identity").String())
	assert.Equal(t, "mocked-ai", first.Get("resolution_tag").String())
	assert.Equal(t, int64(200), first.Get("status_code").Int())

	assert.Equal(t, "req-2", gjson.Parse(lines[1]).Get("request_id").String())
}
