package lineio

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payloads(lines []Line) [][]byte {
	out := make([][]byte, len(lines))
	for i, l := range lines {
		out[i] = l.Payload
	}
	return out
}

func TestFeedSingleCall(t *testing.T) {
	b := NewBuffer(Stdout)
	lines := b.Feed([]byte("one\ntwo\nthr"))
	assert.Equal(t, [][]byte{[]byte("one"), []byte("two")}, payloads(lines))
	assert.True(t, b.HasPartial())
	partial, ok := b.Drain()
	require.True(t, ok)
	assert.Equal(t, "thr", string(partial.Payload))
}

func TestFeedEmptyChunkNoLines(t *testing.T) {
	b := NewBuffer(Stdout)
	assert.Nil(t, b.Feed(nil))
	assert.False(t, b.HasPartial())
}

func TestFeedExactLineNoPartial(t *testing.T) {
	b := NewBuffer(Stdout)
	lines := b.Feed([]byte("one\n"))
	assert.Equal(t, [][]byte{[]byte("one")}, payloads(lines))
	assert.False(t, b.HasPartial())
	_, ok := b.Drain()
	assert.False(t, ok)
}

// TestFeedSplitInvariant checks that feeding any partition of a byte
// stream yields the same completed lines (and final partial) as feeding
// it in one call.
func TestFeedSplitInvariant(t *testing.T) {
	whole := []byte("alpha\nbeta\ngamma\ndelt")

	oneShot := NewBuffer(Stdout)
	wantLines := oneShot.Feed(whole)
	wantPartial, wantOK := oneShot.Drain()

	rng := rand.New(rand.NewSource(1))
	for attempt := 0; attempt < 50; attempt++ {
		chunked := NewBuffer(Stdout)
		var got []Line
		pos := 0
		for pos < len(whole) {
			n := rng.Intn(3) + 1
			if pos+n > len(whole) {
				n = len(whole) - pos
			}
			got = append(got, chunked.Feed(whole[pos:pos+n])...)
			pos += n
		}
		gotPartial, gotOK := chunked.Drain()

		require.Equal(t, len(wantLines), len(got))
		for i := range wantLines {
			assert.True(t, bytes.Equal(wantLines[i].Payload, got[i].Payload))
		}
		assert.Equal(t, wantOK, gotOK)
		if wantOK {
			assert.True(t, bytes.Equal(wantPartial.Payload, gotPartial.Payload))
		}
	}
}

func TestDecodeLatin1(t *testing.T) {
	raw := []byte{0x41, 0xFF, 0x00, 0x80}
	decoded := DecodeLatin1(raw)
	runes := []rune(decoded)
	require.Len(t, runes, 4)
	assert.Equal(t, rune(0x41), runes[0])
	assert.Equal(t, rune(0xFF), runes[1])
	assert.Equal(t, rune(0x00), runes[2])
	assert.Equal(t, rune(0x80), runes[3])
}
