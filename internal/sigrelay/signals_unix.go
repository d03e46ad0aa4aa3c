//go:build unix

package sigrelay

import (
	"os"
	"syscall"
)

var (
	sigInt  os.Signal = syscall.SIGINT
	sigTerm os.Signal = syscall.SIGTERM
	sigHup  os.Signal = syscall.SIGHUP
	sigQuit os.Signal = syscall.SIGQUIT
	sigUsr1 os.Signal = syscall.SIGUSR1
	sigUsr2 os.Signal = syscall.SIGUSR2
)
