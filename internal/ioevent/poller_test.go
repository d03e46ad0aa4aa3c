package ioevent

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollerReadyOnWrite(t *testing.T) {
	p, _, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close(); _ = w.Close() })

	require.NoError(t, p.Register(int(r.Fd()), Read))

	ready, err := p.Poll(50)
	require.NoError(t, err)
	assert.Empty(t, ready, "nothing written yet")

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	ready, err = p.Poll(1000)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, int(r.Fd()), ready[0].FD)
	assert.NotZero(t, ready[0].Events&Read)
}

func TestPollerTimeoutReturnsEmpty(t *testing.T) {
	p, _, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close(); _ = w.Close() })

	require.NoError(t, p.Register(int(r.Fd()), Read))

	start := time.Now()
	ready, err := p.Poll(30)
	require.NoError(t, err)
	assert.Empty(t, ready)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestPollerUnregisterStopsDelivery(t *testing.T) {
	p, _, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close(); _ = w.Close() })

	require.NoError(t, p.Register(int(r.Fd()), Read))
	require.NoError(t, p.Unregister(int(r.Fd())))

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	ready, err := p.Poll(50)
	require.NoError(t, err)
	assert.Empty(t, ready)
}

func TestWakeSignalDrain(t *testing.T) {
	p, _, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	read, write, err := NewWake()
	require.NoError(t, err)
	t.Cleanup(func() { CloseWake(read, write) })

	require.NoError(t, p.Register(read, Read))

	require.NoError(t, Signal(write))

	ready, err := p.Poll(1000)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, read, ready[0].FD)

	Drain(read)

	ready, err = p.Poll(30)
	require.NoError(t, err)
	assert.Empty(t, ready)
}
