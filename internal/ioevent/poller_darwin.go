//go:build darwin

package ioevent

import (
	"sync"

	"golang.org/x/sys/unix"
)

// kqueuePoller implements Poller using kqueue.
type kqueuePoller struct {
	mu     sync.Mutex
	kq     int
	fds    map[int]Events
	closed bool
}

func newPlatformPoller() (Poller, Backend, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, BackendKqueue, err
	}
	unix.CloseOnExec(kq)
	return &kqueuePoller{kq: kq, fds: make(map[int]Events)}, BackendKqueue, nil
}

func kevents(fd int, events Events, flags uint16) []unix.Kevent_t {
	var out []unix.Kevent_t
	if events&Read != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if events&Write != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return out
}

func (p *kqueuePoller) Register(fd int, events Events) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	changes := kevents(fd, events, unix.EV_ADD|unix.EV_ENABLE)
	if len(changes) > 0 {
		if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
			return err
		}
	}
	p.fds[fd] = events
	return nil
}

func (p *kqueuePoller) Modify(fd int, events Events) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	old := p.fds[fd]
	if del := kevents(fd, old&^events, unix.EV_DELETE); len(del) > 0 {
		_, _ = unix.Kevent(p.kq, del, nil, nil)
	}
	if add := kevents(fd, events&^old, unix.EV_ADD|unix.EV_ENABLE); len(add) > 0 {
		if _, err := unix.Kevent(p.kq, add, nil, nil); err != nil {
			return err
		}
	}
	p.fds[fd] = events
	return nil
}

func (p *kqueuePoller) Unregister(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	events := p.fds[fd]
	delete(p.fds, fd)
	if del := kevents(fd, events, unix.EV_DELETE); len(del) > 0 {
		_, _ = unix.Kevent(p.kq, del, nil, nil)
	}
	return nil
}

func (p *kqueuePoller) Poll(timeoutMs int) ([]Ready, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64((timeoutMs % 1000) * 1000000),
		}
	}
	var buf [64]unix.Kevent_t
	n, err := unix.Kevent(p.kq, nil, buf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	ready := make([]Ready, 0, n)
	for i := 0; i < n; i++ {
		kev := buf[i]
		var e Events
		switch kev.Filter {
		case unix.EVFILT_READ:
			e |= Read
		case unix.EVFILT_WRITE:
			e |= Write
		}
		if kev.Flags&unix.EV_EOF != 0 {
			e |= Read
		}
		ready = append(ready, Ready{FD: int(kev.Ident), Events: e})
	}
	return ready, nil
}

func (p *kqueuePoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.kq)
}
