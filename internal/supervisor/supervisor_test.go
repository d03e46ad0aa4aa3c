package supervisor

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-apply/internal/diagnostics"
	"github.com/joeycumines/go-apply/internal/interpolate"
)

func TestRunRejectsSpawnFailureWith127(t *testing.T) {
	var out, errw bytes.Buffer
	cfg := baseConfig(&out, &errw)
	cfg.Command = []string{"/no/such/executable-go-apply-test"}

	code, err := Run(cfg)
	assert.Equal(t, 127, code)
	require.ErrorIs(t, err, ErrSpawn)
}

func TestRunRejectsUnknownInterpolationWith1(t *testing.T) {
	var out, errw bytes.Buffer
	cfg := baseConfig(&out, &errw)
	cfg.Command = []string{"/bin/echo", "%x"}

	code, err := Run(cfg)
	assert.Equal(t, 1, code)
	require.ErrorIs(t, err, interpolate.ErrUnknownInterpolation)
	require.NotErrorIs(t, err, ErrSpawn)
}

func baseConfig(stdout, stderr *bytes.Buffer) Config {
	return Config{
		Items:   []string{"a", "b"},
		ItemMap: interpolate.PathMap(),
		Logger:  diagnostics.NewDefaultLogger(stderr, diagnostics.LevelInfo),
		Stdout:  stdout,
		Stderr:  stderr,
	}
}

func TestRunRejectsMissingCommand(t *testing.T) {
	var out, errw bytes.Buffer
	cfg := baseConfig(&out, &errw)
	code, err := Run(cfg)
	assert.Equal(t, 2, code)
	require.ErrorIs(t, err, ErrUsage)
}

func TestRunRejectsEmptyItemsWithNames(t *testing.T) {
	var out, errw bytes.Buffer
	cfg := Config{
		Items:   []string{""},
		ItemMap: interpolate.NullMap(),
		Names:   true,
		Command: []string{"/bin/true"},
		Logger:  diagnostics.NewDefaultLogger(&errw, diagnostics.LevelInfo),
		Stdout:  &out,
		Stderr:  &errw,
	}
	code, err := Run(cfg)
	assert.Equal(t, 2, code)
	require.ErrorIs(t, err, ErrUsage)
}

func TestRunEchoesItemsAndAggregatesExitCode(t *testing.T) {
	var out, errw bytes.Buffer
	cfg := baseConfig(&out, &errw)
	cfg.Command = []string{"/bin/echo", "%P"}

	code, err := runWithTimeout(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "a")
	assert.Contains(t, out.String(), "b")
}

func TestRunAggregatesMaxExitCode(t *testing.T) {
	var out, errw bytes.Buffer
	cfg := baseConfig(&out, &errw)
	cfg.Items = []string{"3", "7"}
	cfg.Command = []string{"/bin/sh", "-c", "exit %P"}

	code, err := runWithTimeout(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, 7, code)
}

func TestRunPrintsFailuresSummaryWithoutVerbose(t *testing.T) {
	var out, errw bytes.Buffer
	cfg := baseConfig(&out, &errw)
	cfg.Items = []string{"0", "2"}
	cfg.Command = []string{"/bin/sh", "-c", "exit %P"}

	_, err := runWithTimeout(t, cfg)
	require.NoError(t, err)
	assert.Contains(t, errw.String(), "[Failures: 2=2]")
	assert.NotContains(t, errw.String(), "0=0", "zero-exit children are not listed in the failures summary")
}

func TestRunNamesPrefixesOutput(t *testing.T) {
	var out, errw bytes.Buffer
	cfg := baseConfig(&out, &errw)
	cfg.Items = []string{"/tmp/file"}
	cfg.Names = true
	cfg.Command = []string{"/bin/echo", "hi"}

	_, err := runWithTimeout(t, cfg)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out.String()), "/tmp/file:"))
}

func runWithTimeout(t *testing.T, cfg Config) (int, error) {
	t.Helper()
	type result struct {
		code int
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		code, err := Run(cfg)
		ch <- result{code, err}
	}()
	select {
	case r := <-ch:
		return r.code, r.err
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return in time")
		return 0, nil
	}
}
