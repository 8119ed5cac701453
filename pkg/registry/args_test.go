package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeArgsCoercesJSONNumbers(t *testing.T) {
	args := map[string]any{"duration_ms": float64(250)}
	out, err := DecodeArgs[sleepArgs](args)
	require.NoError(t, err)
	assert.Equal(t, float64(250), out.DurationMs)
}

func TestDecodeArgsWeaklyTypedString(t *testing.T) {
	args := map[string]any{"duration_ms": "10"}
	out, err := DecodeArgs[sleepArgs](args)
	require.NoError(t, err)
	assert.Equal(t, float64(10), out.DurationMs)
}
