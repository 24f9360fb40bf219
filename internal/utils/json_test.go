package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalNoEscape(t *testing.T) {
	out, err := MarshalNoEscape(map[string]string{"html": "<b>&</b>"})
	require.NoError(t, err)
	assert.Equal(t, `{"html":"<b>&</b>"}`, string(out))
	assert.NotContains(t, string(out), "\n")
}

func TestSafeParse(t *testing.T) {
	assert.Equal(t, map[string]any{"a": float64(1)}, SafeParse(`{"a":1}`))
	assert.Equal(t, []any{float64(1), float64(2)}, SafeParse(`[1,2]`))
	assert.Equal(t, "not json {", SafeParse("not json {"))
	assert.Equal(t, "", SafeParse(""))
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "(empty)", MaskKey(""))
	assert.Equal(t, "****", MaskKey("short"))
	assert.Equal(t, "sk-12345...wxyz", MaskKey("sk-12345678901234567890wxyz"))
}
