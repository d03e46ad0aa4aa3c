//go:build unix && !linux && !darwin

package ioevent

import (
	"sync"

	"golang.org/x/sys/unix"
)

// selectPoller is the required fallback for hosts lacking epoll/kqueue,
// grounded on the original's PollCompat: three fd sets (read/write/
// priority), bitmask register/modify/unregister converted to set
// membership, select(2) underneath.
type selectPoller struct {
	mu     sync.Mutex
	fds    map[int]Events
	closed bool
}

func newPlatformPoller() (Poller, Backend, error) {
	return &selectPoller{fds: make(map[int]Events)}, BackendSelect, nil
}

func (p *selectPoller) Register(fd int, events Events) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.fds[fd] = events
	return nil
}

func (p *selectPoller) Modify(fd int, events Events) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.fds[fd] = events
	return nil
}

func (p *selectPoller) Unregister(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	delete(p.fds, fd)
	return nil
}

func (p *selectPoller) Poll(timeoutMs int) ([]Ready, error) {
	p.mu.Lock()
	var rset, wset, xset unix.FdSet
	maxFD := -1
	for fd, events := range p.fds {
		if events&Read != 0 {
			fdSet(&rset, fd)
		}
		if events&Write != 0 {
			fdSet(&wset, fd)
		}
		if events&Priority != 0 {
			fdSet(&xset, fd)
		}
		if fd > maxFD {
			maxFD = fd
		}
	}
	p.mu.Unlock()

	if maxFD < 0 {
		return nil, nil
	}

	var tv *unix.Timeval
	if timeoutMs >= 0 {
		timeout := unix.NsecToTimeval(int64(timeoutMs) * 1_000_000)
		tv = &timeout
	}

	n, err := unix.Select(maxFD+1, &rset, &wset, &xset, tv)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ready := make([]Ready, 0, n)
	for fd := range p.fds {
		var e Events
		if fdIsSet(&rset, fd) {
			e |= Read
		}
		if fdIsSet(&wset, fd) {
			e |= Write
		}
		if fdIsSet(&xset, fd) {
			e |= Priority
		}
		if e != 0 {
			ready = append(ready, Ready{FD: fd, Events: e})
		}
	}
	return ready, nil
}

func (p *selectPoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}
