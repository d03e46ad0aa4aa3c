package interpolate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandIdentityWithNoPercent(t *testing.T) {
	got, err := Expand("plain string, no placeholders", "ignored", PathMap())
	require.NoError(t, err)
	assert.Equal(t, "plain string, no placeholders", got)
}

func TestExpandDoublePercentQuirk(t *testing.T) {
	got, err := Expand("a%%b%Pc", "X", PathMap())
	require.NoError(t, err)
	assert.Equal(t, "a%b%Pc", got)
}

func TestExpandUnknownPlaceholder(t *testing.T) {
	_, err := Expand("x%Zy", "item", PathMap())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownInterpolation))
}

func TestExpandArgOutOfRange(t *testing.T) {
	got, err := Expand("%3", "a b", ArgMap())
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestExpandArgInRange(t *testing.T) {
	got, err := Expand("%0 %2", "alpha beta gamma", ArgMap())
	require.NoError(t, err)
	assert.Equal(t, "alpha gamma", got)
}

func TestExpandTrailingLonePercent(t *testing.T) {
	got, err := Expand("abc%", "item", NullMap())
	require.NoError(t, err)
	assert.Equal(t, "abc%", got)
}

func TestExpandMachMap(t *testing.T) {
	got, err := Expand("%M", "host.example.com", MachMap())
	require.NoError(t, err)
	assert.Equal(t, "host.example.com", got)
}

func TestExpandPathMapDecomposition(t *testing.T) {
	m := PathMap()
	item := "/tmp/foo/bar.txt"

	cases := map[string]string{
		"%P": item,
		"%D": "/tmp/foo",
		"%F": "bar.txt",
		"%N": "bar",
		"%E": ".txt",
		"%B": "/tmp/foo/bar",
	}
	for tmpl, want := range cases {
		got, err := Expand(tmpl, item, m)
		require.NoError(t, err)
		assert.Equal(t, want, got, tmpl)
	}
}

func TestExpandPathMapNoExtension(t *testing.T) {
	m := PathMap()
	got, err := Expand("%E", "/tmp/foo/noext", m)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestExpandEmptyMapUnknownEverything(t *testing.T) {
	_, err := Expand("%P", "item", NullMap())
	require.Error(t, err)
}

// TestExpandDeterministic checks that repeated application of Expand over
// the same inputs gives the same result, since templates are re-expanded
// once per item, never streamed.
func TestExpandDeterministic(t *testing.T) {
	m := ArgMap()
	first, err1 := Expand("%0-%1", "x y", m)
	second, err2 := Expand("%0-%1", "x y", m)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, first, second)
}
