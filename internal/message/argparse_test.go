package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgumentsStrictJSON(t *testing.T) {
	args, ok := ParseArguments(`{"city":"x","n":2}`)

	require.True(t, ok)
	assert.Equal(t, "x", args["city"])
	assert.Equal(t, float64(2), args["n"])
}

func TestParseArgumentsPermissiveFallback(t *testing.T) {
	// Trailing comma fails strict parsing but survives the permissive pass.
	args, ok := ParseArguments(`{"city":"x",}`)

	require.True(t, ok)
	assert.Equal(t, "x", args["city"])
}

func TestParseArgumentsGarbageYieldsEmptySet(t *testing.T) {
	args, ok := ParseArguments(`city=x`)

	assert.False(t, ok)
	assert.NotNil(t, args)
	assert.Empty(t, args)
}

func TestParseArgumentsEmptyString(t *testing.T) {
	args, ok := ParseArguments("")

	assert.False(t, ok)
	assert.Empty(t, args)
}
