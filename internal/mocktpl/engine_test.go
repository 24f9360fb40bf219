package mocktpl

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand_NonJSONPassesThrough(t *testing.T) {
	assert.Equal(t, "plain text", Expand("plain text"))
	assert.Equal(t, "<html></html>", Expand("<html></html>"))
}

func TestExpand_ScalarJSONUntouched(t *testing.T) {
	assert.Equal(t, float64(42), Expand("42"))
	assert.Equal(t, "hello", Expand(`"hello"`))
}

func TestExpand_IDPlaceholder(t *testing.T) {
	out, ok := Expand(`{"id": "@id"}`).(map[string]any)
	require.True(t, ok)
	id, ok := out["id"].(string)
	require.True(t, ok)
	_, err := uuid.Parse(id)
	assert.NoError(t, err, "@id should expand to a uuid")
}

func TestExpand_TypedPlaceholders(t *testing.T) {
	out, ok := Expand(`{"done": "@boolean", "count": "@integer(5, 9)"}`).(map[string]any)
	require.True(t, ok)

	_, isBool := out["done"].(bool)
	assert.True(t, isBool, "exact @boolean becomes a real boolean")

	n, isInt := out["count"].(int)
	require.True(t, isInt, "exact @integer becomes a real integer")
	assert.GreaterOrEqual(t, n, 5)
	assert.LessOrEqual(t, n, 9)
}

func TestExpand_PlaceholderInsideText(t *testing.T) {
	out, ok := Expand(`{"msg": "order @integer(1,1) confirmed"}`).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "order 1 confirmed", out["msg"])
}

func TestExpand_ImagePlaceholders(t *testing.T) {
	out, ok := Expand(`{"cover": "@image", "thumb": "@goodsImage", "face": "@avatar"}`).(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"cover", "thumb", "face"} {
		s, isStr := out[key].(string)
		require.True(t, isStr, key)
		assert.True(t, strings.HasPrefix(s, "http"), "%s should expand to a URL, got %q", key, s)
	}
}

func TestExpand_StringPlaceholder(t *testing.T) {
	out, ok := Expand(`{"token": "@string(12)"}`).(map[string]any)
	require.True(t, ok)
	s, isStr := out["token"].(string)
	require.True(t, isStr)
	assert.Len(t, s, 12)
}

func TestExpand_KeyDirectiveArray(t *testing.T) {
	out, ok := Expand(`{"list|3": [{"id": "@id"}]}`).(map[string]any)
	require.True(t, ok)

	list, isList := out["list"].([]any)
	require.True(t, isList, "directive suffix should be stripped from the key")
	require.Len(t, list, 3)

	// Each copy expands independently.
	first := list[0].(map[string]any)["id"].(string)
	second := list[1].(map[string]any)["id"].(string)
	assert.NotEqual(t, first, second)
}

func TestExpand_KeyDirectiveArrayRange(t *testing.T) {
	out, ok := Expand(`{"list|2-5": ["x"]}`).(map[string]any)
	require.True(t, ok)
	list := out["list"].([]any)
	assert.GreaterOrEqual(t, len(list), 2)
	assert.LessOrEqual(t, len(list), 5)
}

func TestExpand_KeyDirectiveNumber(t *testing.T) {
	out, ok := Expand(`{"count|10-20": 0}`).(map[string]any)
	require.True(t, ok)
	n, isInt := out["count"].(int)
	require.True(t, isInt)
	assert.GreaterOrEqual(t, n, 10)
	assert.LessOrEqual(t, n, 20)
}

func TestExpand_FreshValuesPerCall(t *testing.T) {
	body := `{"id": "@id"}`
	a := Expand(body).(map[string]any)["id"]
	b := Expand(body).(map[string]any)["id"]
	assert.NotEqual(t, a, b, "each expansion must draw fresh randomness")
}

func TestExpand_NestedStructures(t *testing.T) {
	body := `{"data": {"items|2": [{"user": {"avatar": "@avatar"}}], "total": 7}}`
	out := Expand(body).(map[string]any)
	data := out["data"].(map[string]any)
	items := data["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, float64(7), data["total"])
}
