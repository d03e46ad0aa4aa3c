//go:build linux

package ioevent

import (
	"sync"

	"golang.org/x/sys/unix"
)

// epollPoller implements Poller using epoll.
type epollPoller struct {
	mu     sync.Mutex
	epfd   int
	fds    map[int]Events
	closed bool
}

func newPlatformPoller() (Poller, Backend, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, BackendEpoll, err
	}
	return &epollPoller{epfd: fd, fds: make(map[int]Events)}, BackendEpoll, nil
}

func (p *epollPoller) Register(fd int, events Events) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	ev := &unix.EpollEvent{Events: toEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return err
	}
	p.fds[fd] = events
	return nil
}

func (p *epollPoller) Modify(fd int, events Events) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	ev := &unix.EpollEvent{Events: toEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return err
	}
	p.fds[fd] = events
	return nil
}

func (p *epollPoller) Unregister(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	delete(p.fds, fd)
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Poll(timeoutMs int) ([]Ready, error) {
	var buf [64]unix.EpollEvent
	n, err := unix.EpollWait(p.epfd, buf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	ready := make([]Ready, 0, n)
	for i := 0; i < n; i++ {
		ready = append(ready, Ready{FD: int(buf[i].Fd), Events: fromEpoll(buf[i].Events)})
	}
	return ready, nil
}

func (p *epollPoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.epfd)
}

func toEpoll(events Events) uint32 {
	var e uint32
	if events&Read != 0 {
		e |= unix.EPOLLIN
	}
	if events&Write != 0 {
		e |= unix.EPOLLOUT
	}
	if events&Priority != 0 {
		e |= unix.EPOLLPRI
	}
	return e
}

func fromEpoll(mask uint32) Events {
	var e Events
	if mask&unix.EPOLLIN != 0 {
		e |= Read
	}
	if mask&unix.EPOLLOUT != 0 {
		e |= Write
	}
	if mask&unix.EPOLLPRI != 0 {
		e |= Priority
	}
	if mask&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		e |= Read // surface hangup/error as read-ready so callers drain to EOF
	}
	return e
}
