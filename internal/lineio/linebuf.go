// Package lineio turns a byte-oriented child-process stream into
// timestamped, complete lines, the way the supervisor's per-child output
// pipes are reassembled before being printed or tagged.
package lineio

import (
	"bytes"
	"time"
)

// StreamKind distinguishes a child's two output streams.
type StreamKind int

const (
	Stdout StreamKind = iota
	Stderr
)

// Line is an immutable completed line of output from one stream.
type Line struct {
	Stream  StreamKind
	Time    time.Time
	Payload []byte // without trailing newline
}

// DecodeLatin1 renders payload for display using a permissive 8-bit
// decoding (one byte per code point), matching the original's use of
// str.decode('latin-1') for non-UTF-8 child output. Storage elsewhere
// always stays []byte; this is strictly a display-time transform.
func DecodeLatin1(payload []byte) string {
	runes := make([]rune, len(payload))
	for i, b := range payload {
		runes[i] = rune(b)
	}
	return string(runes)
}

// Buffer reassembles LF-delimited lines out of successive byte chunks from
// a single stream, retaining a residual partial line between calls. Each
// Child owns one Buffer per stream.
type Buffer struct {
	kind    StreamKind
	partial []byte
}

// NewBuffer returns an empty Buffer bound to one stream.
func NewBuffer(kind StreamKind) *Buffer { return &Buffer{kind: kind} }

// Feed splits chunk on 0x0A, concatenating the first fragment onto any
// existing partial line. Every fragment except the last becomes a
// completed Line, stamped at the time Feed was called; the last fragment
// becomes the new partial (possibly empty). Feeding no bytes returns nil.
func (b *Buffer) Feed(chunk []byte) []Line {
	if len(chunk) == 0 {
		return nil
	}
	now := time.Now()
	parts := bytes.Split(chunk, []byte{'\n'})

	if len(b.partial) > 0 {
		parts[0] = append(append([]byte{}, b.partial...), parts[0]...)
		b.partial = nil
	}

	last := len(parts) - 1
	var lines []Line
	for i := 0; i < last; i++ {
		lines = append(lines, Line{Stream: b.kind, Time: now, Payload: parts[i]})
	}
	if len(parts[last]) > 0 {
		b.partial = parts[last]
	}
	return lines
}

// HasPartial reports whether a residual partial line is pending.
func (b *Buffer) HasPartial() bool { return len(b.partial) > 0 }

// Drain returns the pending partial line, if any, and clears it. Unlike
// the Lines returned by Feed, a drained partial is reported separately by
// the caller (e.g. via PrintLast) rather than folded into the normal
// output sequence — it was never terminated by a newline.
func (b *Buffer) Drain() (Line, bool) {
	if len(b.partial) == 0 {
		return Line{}, false
	}
	line := Line{Stream: b.kind, Time: time.Now(), Payload: b.partial}
	b.partial = nil
	return line, true
}
