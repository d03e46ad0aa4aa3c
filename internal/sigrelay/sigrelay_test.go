package sigrelay

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-apply/internal/ioevent"
)

func newTestRelay(t *testing.T) *Relay {
	t.Helper()
	poller, _, err := ioevent.New()
	require.NoError(t, err)
	r, err := New(poller)
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Close()
		_ = poller.Close()
	})
	return r
}

func TestPendingEmptyInitially(t *testing.T) {
	r := newTestRelay(t)
	assert.Empty(t, r.Pending())
}

func TestMarkSentRemovesFromPending(t *testing.T) {
	r := newTestRelay(t)
	r.mu.Lock()
	r.received[sigInt] = true
	r.mu.Unlock()

	pending := r.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, sigInt, pending[0])

	r.MarkSent(pending)
	assert.Empty(t, r.Pending())
}

// TestSignalIdempotence checks that receiving the same signal twice before
// its first delivery results in exactly one pending entry, i.e. one
// forward per child.
func TestSignalIdempotence(t *testing.T) {
	r := newTestRelay(t)
	r.mu.Lock()
	r.received[sigInt] = true
	r.received[sigInt] = true
	r.mu.Unlock()

	assert.Len(t, r.Pending(), 1)
}

func TestAnyNonWaitSent(t *testing.T) {
	r := newTestRelay(t)
	assert.False(t, r.AnyNonWaitSent())

	r.MarkSent([]os.Signal{sigUsr1})
	assert.False(t, r.AnyNonWaitSent(), "USR1 alone must not count as escalating")

	r.MarkSent([]os.Signal{sigInt})
	assert.True(t, r.AnyNonWaitSent())
}
