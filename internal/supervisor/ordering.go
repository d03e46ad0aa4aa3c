package supervisor

import (
	"time"

	"github.com/joeycumines/go-apply/internal/diagnostics"
	"github.com/joeycumines/go-apply/internal/lineio"
	"github.com/joeycumines/go-apply/internal/procchild"
)

// FormatLine renders one line of child output for printing. Stderr lines
// use "::" as the name/time separator, stdout uses ":". name is "" unless
// -n is set; stampAt is the zero Time unless -t is set.
func FormatLine(l lineio.Line, name string, stampAt time.Time) string {
	text := lineio.DecodeLatin1(l.Payload)
	sep := ":"
	if l.Stream == lineio.Stderr {
		sep = "::"
	}
	if !stampAt.IsZero() {
		ts := diagnostics.TimeStr(stampAt)
		if name != "" {
			return name + " @" + ts + sep + " " + text
		}
		return ts + sep + " " + text
	}
	if name != "" {
		return name + sep + " " + text
	}
	return text
}

// Sink is where formatted lines ultimately go: os.Stdout/os.Stderr chosen
// by the line's stream.
type Sink interface {
	WriteLine(l lineio.Line, formatted string)
}

// OutputPolicy decides, per emitted batch of lines, whether to flush
// immediately or buffer until the owning child finishes — the
// sequential-vs-interleaved choice, including the "switch to streaming
// once only one child remains" transition.
type OutputPolicy struct {
	Sequential bool
	Names      bool
	Times      bool

	sink     Sink
	buffered map[*procchild.Child][]lineio.Line
}

// NewOutputPolicy constructs a policy writing through sink.
func NewOutputPolicy(sequential, names, times bool, sink Sink) *OutputPolicy {
	return &OutputPolicy{
		Sequential: sequential,
		Names:      names,
		Times:      times,
		sink:       sink,
		buffered:   make(map[*procchild.Child][]lineio.Line),
	}
}

func (p *OutputPolicy) displayName(c *procchild.Child) string {
	if !p.Names {
		return ""
	}
	return c.Name
}

func (p *OutputPolicy) flush(c *procchild.Child, lines []lineio.Line) {
	name := p.displayName(c)
	for _, l := range lines {
		var stamp time.Time
		if p.Times {
			stamp = l.Time
		}
		p.sink.WriteLine(l, FormatLine(l, name, stamp))
	}
}

// OnData handles a Data poll result: newly-available lines from a child
// that is still running. liveCount is the number of children still live
// at the moment of this call (including c).
func (p *OutputPolicy) OnData(c *procchild.Child, lines []lineio.Line, liveCount int) {
	if len(lines) == 0 {
		return
	}
	if !p.Sequential || liveCount < 2 {
		p.flush(c, lines)
		return
	}
	p.buffered[c] = append(p.buffered[c], lines...)
}

// OnExit flushes a child's buffered lines (regardless of mode — a child
// that finishes always has its accumulated output printed), then its
// final partial line, then forgets it.
func (p *OutputPolicy) OnExit(c *procchild.Child, newLines []lineio.Line, last []lineio.Line) {
	buffered := p.buffered[c]
	delete(p.buffered, c)
	all := append(buffered, newLines...)
	p.flush(c, all)
	p.flush(c, last)
}

// CatchUp flushes the sole remaining child's buffered output immediately
// after a transition leaves exactly one live child under sequential mode —
// the original's "catch up" rule, so the last survivor's already-produced
// output isn't held back once streaming resumes.
func (p *OutputPolicy) CatchUp(c *procchild.Child) {
	lines := p.buffered[c]
	if len(lines) == 0 {
		return
	}
	delete(p.buffered, c)
	p.flush(c, lines)
}
