//go:build linux

package ioevent

import "golang.org/x/sys/unix"

// NewWake creates a wake descriptor for a signal relay to register with a
// Poller. On Linux a single eventfd serves as both read and write end.
func NewWake() (read int, write int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return -1, -1, err
	}
	return fd, fd, nil
}

// Signal writes one wake-up to fd.
func Signal(fd int) error {
	var buf [8]byte
	buf[7] = 1
	_, err := unix.Write(fd, buf[:])
	return err
}

// Drain empties a wake descriptor of pending wake-ups.
func Drain(fd int) {
	var buf [8]byte
	for {
		if _, err := unix.Read(fd, buf[:]); err != nil {
			return
		}
	}
}

// CloseWake closes a wake descriptor pair, tolerating read==write.
func CloseWake(read, write int) {
	if read >= 0 {
		_ = unix.Close(read)
	}
	if write >= 0 && write != read {
		_ = unix.Close(write)
	}
}
