// Package ioevent is an interruptible readiness multiplexer over a dynamic
// set of file descriptors, used by the supervisor to watch every child's
// stdout/stderr pipe without blocking on any single one of them.
//
// Three backends exist behind the same Poller interface: epoll on Linux,
// kqueue on Darwin, and a select(2)-based fallback for everything else —
// mirroring the original's PollCompat, which stood in for select.poll on
// hosts lacking it.
package ioevent

import "errors"

// Events is a bitmask of readiness kinds. The supervisor only ever
// registers Read on child output pipes, but Write and Priority are part of
// the contract for completeness (and for the wake descriptor, which is
// always registered Read-only too).
type Events uint32

const (
	Read Events = 1 << iota
	Write
	Priority
)

// Ready reports one file descriptor's observed readiness.
type Ready struct {
	FD     int
	Events Events
}

// ErrClosed is returned by operations on a Poller that has been closed.
var ErrClosed = errors.New("ioevent: poller closed")

// Poller multiplexes readiness across a dynamic set of file descriptors.
type Poller interface {
	// Register starts watching fd for the given events.
	Register(fd int, events Events) error
	// Modify changes the event mask for an already-registered fd.
	Modify(fd int, events Events) error
	// Unregister stops watching fd.
	Unregister(fd int) error
	// Poll blocks for up to timeoutMs milliseconds (or indefinitely if
	// negative) waiting for at least one registered fd to become ready,
	// returning whatever became ready. A timeout or an interrupted system
	// call both return an empty, nil-error result — callers loop.
	Poll(timeoutMs int) ([]Ready, error)
	// Close releases the underlying OS resource.
	Close() error
}

// Backend identifies which concrete implementation New selected.
type Backend int

const (
	BackendEpoll Backend = iota
	BackendKqueue
	BackendSelect
)

// New constructs the best available Poller for the host, following the
// same fallback order as the original: a native readiness primitive
// (epoll/kqueue) where available, select(2) otherwise.
func New() (Poller, Backend, error) {
	return newPlatformPoller()
}
