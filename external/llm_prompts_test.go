package external

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildMockPrompt_Basics(t *testing.T) {
	prompt := BuildMockPrompt("GET", "/todos", "", "")

	assert.Contains(t, prompt, "camelCase")
	assert.Contains(t, prompt, "Request method: GET")
	assert.Contains(t, prompt, "Request path: /todos")
	assert.Contains(t, prompt, `{ "code": 0, "message": "success", "data": {} }`)
	assert.Contains(t, prompt, "@id")
	assert.Contains(t, prompt, "@image")
	assert.Contains(t, prompt, "@goodsImage")
	assert.Contains(t, prompt, "@avatar")
	assert.Contains(t, prompt, "@postImage")
	assert.Contains(t, prompt, "no more than 10 objects")
	assert.NotContains(t, prompt, "Request parameters")
	assert.NotContains(t, prompt, "Response data structure")
}

func TestBuildMockPrompt_BodyOnlyForBodyMethods(t *testing.T) {
	body := `{"title": "x"}`

	tests := []struct {
		method   string
		wantBody bool
	}{
		{"POST", true},
		{"PUT", true},
		{"post", true},
		{"GET", false},
		{"DELETE", false},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			prompt := BuildMockPrompt(tt.method, "/todos", body, "")
			if tt.wantBody {
				assert.Contains(t, prompt, "Request parameters: "+body)
			} else {
				assert.NotContains(t, prompt, "Request parameters")
			}
		})
	}
}

func TestBuildMockPrompt_IncludesSchema(t *testing.T) {
	schema := `{"type":"object","properties":{"id":{"type":"string"}}}`
	prompt := BuildMockPrompt("GET", "/todos", "", schema)
	assert.Contains(t, prompt, "Response data structure definition: "+schema)
}

func TestTruncateForPrompt(t *testing.T) {
	assert.Equal(t, "", TruncateForPrompt("", 10))
	assert.Equal(t, "short", TruncateForPrompt("short", 100))
	assert.Equal(t, "untouched", TruncateForPrompt("untouched", 0))

	long := strings.Repeat("lorem ipsum dolor sit amet ", 2000)
	capped := TruncateForPrompt(long, 64)
	assert.Less(t, len(capped), len(long))
}
