//go:build darwin || (unix && !linux)

package ioevent

import "golang.org/x/sys/unix"

// NewWake creates a self-pipe wake descriptor pair for a signal relay to
// register with a Poller (kqueue has no eventfd equivalent, so Darwin
// and the select fallback both use a classic self-pipe).
func NewWake() (read int, write int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

// Signal writes one wake-up byte to the pipe's write end.
func Signal(fd int) error {
	_, err := unix.Write(fd, []byte{1})
	return err
}

// Drain empties the pipe's read end of pending wake-up bytes.
func Drain(fd int) {
	var buf [64]byte
	for {
		if _, err := unix.Read(fd, buf[:]); err != nil {
			return
		}
	}
}

// CloseWake closes both ends of a self-pipe.
func CloseWake(read, write int) {
	if read >= 0 {
		_ = unix.Close(read)
	}
	if write >= 0 && write != read {
		_ = unix.Close(write)
	}
}
