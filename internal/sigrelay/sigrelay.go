// Package sigrelay is the supervisor's signal-safe coordination point: it
// tracks which of a fixed set of signals have arrived, which have already
// been forwarded to children, and lets the supervisor block inside a
// Poller in a way that wakes up promptly (and race-free) the instant a new
// signal arrives.
//
// The original tool's approach — a signal handler raising an asynchronous
// exception to unwind out of a blocking poll(2) call — is fragile by
// construction. This package uses the self-pipe trick instead: a signal
// handler (here, Go's own signal.Notify goroutine) writes one byte to a
// wake descriptor that is permanently registered with the Poller. A poll
// wakeup on that descriptor just means "go recheck received signals";
// there is no race window to reason about, because the byte sits in the
// pipe/eventfd until drained, even if it was written between the
// supervisor's two poll phases.
package sigrelay

import (
	"os"
	"os/signal"
	"sync"

	"github.com/joeycumines/go-apply/internal/ioevent"
)

// Supervised is the fixed set of signals the supervisor forwards to
// children.
var Supervised = []os.Signal{
	sigInt, sigTerm, sigHup, sigQuit, sigUsr1, sigUsr2,
}

// Wait is the SIG_WAIT set: forwarded to children, but alone never starts
// a kill-escalation clock.
var Wait = map[os.Signal]bool{
	sigUsr1: true,
	sigUsr2: true,
}

// names maps each supervised signal to the symbolic name used in the
// "[Forwarding signal N (NAME) ...]" notice.
var names = map[os.Signal]string{
	sigInt:  "SIGINT",
	sigTerm: "SIGTERM",
	sigHup:  "SIGHUP",
	sigQuit: "SIGQUIT",
	sigUsr1: "SIGUSR1",
	sigUsr2: "SIGUSR2",
}

// Name returns the symbolic name of a supervised signal, or "?" for
// anything outside the fixed set.
func Name(sig os.Signal) string {
	if name, ok := names[sig]; ok {
		return name
	}
	return "?"
}

// Relay is an owned coordinator shared by reference between the
// Supervisor and the Poller — not a process-wide singleton.
type Relay struct {
	poller ioevent.Poller

	wakeRead, wakeWrite int

	mu       sync.Mutex
	received map[os.Signal]bool
	sent     map[os.Signal]bool

	sigCh chan os.Signal
	done  chan struct{}
}

// New creates a Relay whose wake descriptor is registered for reading with
// poller. Call Arm to begin observing signals.
func New(poller ioevent.Poller) (*Relay, error) {
	read, write, err := ioevent.NewWake()
	if err != nil {
		return nil, err
	}
	if err := poller.Register(read, ioevent.Read); err != nil {
		ioevent.CloseWake(read, write)
		return nil, err
	}
	r := &Relay{
		poller:    poller,
		wakeRead:  read,
		wakeWrite: write,
		received:  make(map[os.Signal]bool),
		sent:      make(map[os.Signal]bool),
		sigCh:     make(chan os.Signal, 16),
		done:      make(chan struct{}),
	}
	go r.relay()
	return r, nil
}

// Arm begins observing the supplied signals (defaults to Supervised).
func (r *Relay) Arm(sigs ...os.Signal) {
	if len(sigs) == 0 {
		sigs = Supervised
	}
	signal.Notify(r.sigCh, sigs...)
}

// Close stops observing signals and releases the wake descriptor. It does
// not attempt to unregister from the Poller; the caller is about to
// discard the Poller too.
func (r *Relay) Close() {
	signal.Stop(r.sigCh)
	close(r.done)
	ioevent.CloseWake(r.wakeRead, r.wakeWrite)
}

func (r *Relay) relay() {
	for {
		select {
		case <-r.done:
			return
		case sig := <-r.sigCh:
			r.mu.Lock()
			r.received[sig] = true
			r.mu.Unlock()
			_ = ioevent.Signal(r.wakeWrite)
		}
	}
}

// Pending returns the signals that have arrived but have not yet been
// forwarded to children.
func (r *Relay) Pending() []os.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []os.Signal
	for sig := range r.received {
		if !r.sent[sig] {
			out = append(out, sig)
		}
	}
	return out
}

// MarkSent records that sigs have now been forwarded to every live child.
// Idempotent: delivering the same signal twice before it is marked sent
// results in Pending still reporting it only once.
func (r *Relay) MarkSent(sigs []os.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sig := range sigs {
		r.sent[sig] = true
	}
}

// AnyNonWaitSent reports whether any signal outside the SIG_WAIT set has
// ever been marked sent — the basis of the supervisor's kill-escalation
// rule.
func (r *Relay) AnyNonWaitSent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sig := range r.sent {
		if !Wait[sig] {
			return true
		}
	}
	return false
}

// Poll performs a two-phase interruptible wait: a very short
// non-interruptible poll to drain trivially-ready events, then (if that
// returned nothing) the caller-supplied timeout. Any readiness on the wake
// descriptor itself is drained and filtered out of the result — it is
// Relay bookkeeping, not a child fd the supervisor should act on.
func (r *Relay) Poll(timeoutMs int) ([]ioevent.Ready, error) {
	ready, err := r.poller.Poll(1)
	if err != nil {
		return nil, err
	}
	if len(ready) == 0 {
		ready, err = r.poller.Poll(timeoutMs)
		if err != nil {
			return nil, err
		}
	}
	return r.filterWake(ready), nil
}

func (r *Relay) filterWake(ready []ioevent.Ready) []ioevent.Ready {
	out := ready[:0]
	for _, rd := range ready {
		if rd.FD == r.wakeRead {
			ioevent.Drain(r.wakeRead)
			continue
		}
		out = append(out, rd)
	}
	return out
}
