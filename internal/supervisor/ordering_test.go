package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-apply/internal/lineio"
	"github.com/joeycumines/go-apply/internal/procchild"
)

type recordingSink struct {
	lines []string
}

func (r *recordingSink) WriteLine(_ lineio.Line, formatted string) {
	r.lines = append(r.lines, formatted)
}

func TestFormatLinePlain(t *testing.T) {
	l := lineio.Line{Stream: lineio.Stdout, Payload: []byte("hi")}
	assert.Equal(t, "hi", FormatLine(l, "", time.Time{}))
}

func TestFormatLineWithNameAndTimestamp(t *testing.T) {
	at := time.Date(2026, 1, 1, 1, 2, 3, 0, time.Local)
	l := lineio.Line{Stream: lineio.Stderr, Payload: []byte("oops")}
	assert.Equal(t, "job @01:02:03.000:: oops", FormatLine(l, "job", at))
}

func TestOutputPolicyStreamingFlushesImmediately(t *testing.T) {
	sink := &recordingSink{}
	policy := NewOutputPolicy(false, false, false, sink)
	c, err := procchild.Spawn("", []string{"/bin/true"}, false)
	require.NoError(t, err)

	policy.OnData(c, []lineio.Line{{Stream: lineio.Stdout, Payload: []byte("x")}}, 3)
	assert.Equal(t, []string{"x"}, sink.lines)
}

func TestOutputPolicySequentialBuffersUntilExit(t *testing.T) {
	sink := &recordingSink{}
	policy := NewOutputPolicy(true, false, false, sink)
	c, err := procchild.Spawn("", []string{"/bin/true"}, false)
	require.NoError(t, err)

	policy.OnData(c, []lineio.Line{{Stream: lineio.Stdout, Payload: []byte("buffered")}}, 2)
	assert.Empty(t, sink.lines, "sequential mode with 2+ live children must buffer")

	policy.OnExit(c, nil, nil)
	assert.Equal(t, []string{"buffered"}, sink.lines)
}

func TestOutputPolicySequentialStreamsWhenOneChildLeft(t *testing.T) {
	sink := &recordingSink{}
	policy := NewOutputPolicy(true, false, false, sink)
	c, err := procchild.Spawn("", []string{"/bin/true"}, false)
	require.NoError(t, err)

	policy.OnData(c, []lineio.Line{{Stream: lineio.Stdout, Payload: []byte("live")}}, 1)
	assert.Equal(t, []string{"live"}, sink.lines, "only one live child means streaming, not buffering")
}

func TestOutputPolicyCatchUpFlushesBufferedLines(t *testing.T) {
	sink := &recordingSink{}
	policy := NewOutputPolicy(true, false, false, sink)
	c, err := procchild.Spawn("", []string{"/bin/true"}, false)
	require.NoError(t, err)

	policy.OnData(c, []lineio.Line{{Stream: lineio.Stdout, Payload: []byte("queued")}}, 2)
	require.Empty(t, sink.lines)

	policy.CatchUp(c)
	assert.Equal(t, []string{"queued"}, sink.lines)
}
