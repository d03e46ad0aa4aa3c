// Package procchild models one spawned subprocess: its non-blocking
// stdout/stderr pipes, its accumulated output lines, and its escalation
// timer.
package procchild

import (
	"errors"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-apply/internal/ioevent"
	"github.com/joeycumines/go-apply/internal/lineio"
)

// Escalation timings: how long to wait after a warning signal before
// sending the kill signal, and how long to wait for that kill to take
// effect before giving up on the child.
const (
	KillDelay   = 7 * time.Second
	KillTimeout = 3 * time.Second
)

// KillState makes a child's kill-escalation progress an explicit
// three-valued state instead of an overloaded boolean-or-timestamp field.
type KillState int

const (
	NotKilled KillState = iota
	Armed
	Killed
)

// PollResult is the outcome of one PollOnce call.
type PollResult struct {
	Exited   bool
	ExitCode int
	Data     bool
}

// Child is one spawned subprocess plus its output-reassembly state.
type Child struct {
	// Name is the display name: the first whitespace-split token of the
	// item, or "(command)" for the anonymous/empty-item case.
	Name string
	// RealName is Name, or "" for the anonymous case — used to decide
	// whether per-child diagnostics get a "for NAME" suffix.
	RealName string

	Argv  []string
	Shell bool

	Started  time.Time
	Finished time.Time
	exited   bool
	ExitCode int

	KillState KillState
	KillTime  time.Time // zero means "not armed"
	KilledAt  time.Time
	SigFail   bool

	cmd        *exec.Cmd
	stdoutR    *os.File
	stderrR    *os.File
	stdoutBuf  *lineio.Buffer
	stderrBuf  *lineio.Buffer
	nonblock   bool
	pending    []lineio.Line
	pendingErr error
}

// Spawn launches one child with its stdin on the null device (this tool
// never sends input to children, so a read sees end-of-file at once) and
// switches its stdout/stderr pipes to non-blocking mode. A spawn failure is fatal to the whole invocation, so
// Spawn returns the raw error for the caller to turn into an exit code.
func Spawn(name string, argv []string, shell bool) (*Child, error) {
	if len(argv) == 0 {
		return nil, errors.New("procchild: empty argument vector")
	}

	var cmd *exec.Cmd
	if shell {
		shellPath := os.Getenv("SHELL")
		if shellPath == "" {
			shellPath = "/bin/sh"
		}
		cmd = exec.Command(shellPath, "-c", strings.Join(argv, " "))
	} else {
		cmd = exec.Command(argv[0], argv[1:]...)
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		_ = outR.Close()
		_ = outW.Close()
		return nil, err
	}

	cmd.Stdin = nil // the null device: this tool never writes to a child
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		_ = outR.Close()
		_ = outW.Close()
		_ = errR.Close()
		_ = errW.Close()
		return nil, err
	}
	_ = outW.Close()
	_ = errW.Close()

	if err := unix.SetNonblock(int(outR.Fd()), true); err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(int(errR.Fd()), true); err != nil {
		return nil, err
	}

	realName := name
	display := name
	if display == "" {
		display = "(command)"
	}

	return &Child{
		Name:      display,
		RealName:  realName,
		Argv:      argv,
		Shell:     shell,
		Started:   time.Now(),
		cmd:       cmd,
		stdoutR:   outR,
		stderrR:   errR,
		stdoutBuf: lineio.NewBuffer(lineio.Stdout),
		stderrBuf: lineio.NewBuffer(lineio.Stderr),
		nonblock:  true,
	}, nil
}

// Register attaches both output descriptors to the Poller, read-only.
func (c *Child) Register(p ioevent.Poller) error {
	if err := p.Register(int(c.stdoutR.Fd()), ioevent.Read); err != nil {
		return err
	}
	return p.Register(int(c.stderrR.Fd()), ioevent.Read)
}

// Unregister detaches both output descriptors from the Poller.
func (c *Child) Unregister(p ioevent.Poller) error {
	err1 := p.Unregister(int(c.stdoutR.Fd()))
	err2 := p.Unregister(int(c.stderrR.Fd()))
	if err1 != nil {
		return err1
	}
	return err2
}

// PollOnce checks whether the child has exited and, either way, drains
// whatever output is currently available without blocking.
func (c *Child) PollOnce() (PollResult, error) {
	if c.exited {
		return PollResult{Exited: true, ExitCode: c.ExitCode}, nil
	}

	var status unix.WaitStatus
	pid, err := unix.Wait4(c.cmd.Process.Pid, &status, unix.WNOHANG, nil)
	if err != nil && err != unix.ECHILD {
		return PollResult{}, err
	}

	if pid == c.cmd.Process.Pid {
		c.exited = true
		c.Finished = time.Now()
		c.ExitCode = exitCodeFromStatus(status)

		if c.nonblock {
			_ = unix.SetNonblock(int(c.stdoutR.Fd()), false)
			_ = unix.SetNonblock(int(c.stderrR.Fd()), false)
			c.nonblock = false
		}
		c.drainToEOF(c.stdoutR, c.stdoutBuf)
		c.drainToEOF(c.stderrR, c.stderrBuf)

		return PollResult{Exited: true, ExitCode: c.ExitCode}, nil
	}

	gotOut := c.readNonblocking(c.stdoutR, c.stdoutBuf)
	gotErr := c.readNonblocking(c.stderrR, c.stderrBuf)
	return PollResult{Data: gotOut || gotErr}, nil
}

func exitCodeFromStatus(status unix.WaitStatus) int {
	if status.Signaled() {
		return 128 + int(status.Signal())
	}
	return status.ExitStatus()
}

const readChunk = 64 * 1024

// readNonblocking performs at most one non-blocking read per fd, feeding
// any bytes read into buf. Returns whether any bytes were read.
func (c *Child) readNonblocking(f *os.File, buf *lineio.Buffer) bool {
	data := make([]byte, readChunk)
	n, err := unix.Read(int(f.Fd()), data)
	if n > 0 {
		c.takeLines(buf.Feed(data[:n]))
		return true
	}
	if err != nil && !errors.Is(err, unix.EAGAIN) {
		c.pendingErr = err
	}
	return false
}

// drainToEOF reads f to completion now that it has been switched back to
// blocking mode: by the time Finished is set, both streams have been
// drained to EOF.
func (c *Child) drainToEOF(f *os.File, buf *lineio.Buffer) {
	for {
		// A fresh buffer per read: Lines and the partial line alias it.
		data := make([]byte, readChunk)
		n, err := unix.Read(int(f.Fd()), data)
		if n > 0 {
			c.takeLines(buf.Feed(data[:n]))
		}
		if n == 0 || err != nil {
			return
		}
	}
}

// Lines returns and clears whatever completed lines have accumulated
// since the last call.
func (c *Child) Lines() []lineio.Line {
	out := c.pending
	c.pending = nil
	return out
}

func (c *Child) takeLines(lines []lineio.Line) {
	c.pending = append(c.pending, lines...)
}

// PrintLast returns the residual partial line from each stream, if any,
// clearing it from the buffer. Called once a child has exited, so any
// output left without a trailing newline is still reported.
func (c *Child) PrintLast() []lineio.Line {
	var out []lineio.Line
	if line, ok := c.stdoutBuf.Drain(); ok {
		out = append(out, line)
	}
	if line, ok := c.stderrBuf.Drain(); ok {
		out = append(out, line)
	}
	return out
}

// Signal sends sig to the child. A permission error is recorded on
// SigFail and returned so the caller can emit a diagnostic, rather than
// being swallowed silently or raised as fatal. If escalate, the
// kill-warning timer is armed (or left alone if already finalised).
func (c *Child) Signal(sig os.Signal, escalate bool) error {
	err := c.cmd.Process.Signal(sig)
	if err != nil {
		if errors.Is(err, syscall.EPERM) {
			c.SigFail = true
		} else {
			return err
		}
	}
	if escalate {
		c.SetKill(false)
	}
	return err
}

// Kill sends the OS's unconditional kill signal.
func (c *Child) Kill() error {
	err := c.cmd.Process.Kill()
	if err != nil && errors.Is(err, syscall.EPERM) {
		c.SigFail = true
	}
	return err
}

// SetKill arms or advances the kill timer. Once KillState has moved past
// NotKilled, further SetKill calls are no-ops — mirroring the original's
// "if self.killed: return" guard, now made explicit via the tri-state
// KillState rather than an overloaded field.
func (c *Child) SetKill(final bool) {
	if c.KillState != NotKilled {
		return
	}
	now := time.Now()
	if !final {
		c.KillTime = now.Add(KillDelay)
		return
	}
	c.KillState = Armed
	c.KillTime = now.Add(KillTimeout)
}

// MarkTimedOutKilling transitions KillState to Killed, recording the
// instant the supervisor gave up waiting for the kill to take effect.
func (c *Child) MarkTimedOutKilling(at time.Time) {
	c.KillState = Killed
	c.KilledAt = at
}

// HasKillTimer reports whether a warning/kill deadline is currently armed.
func (c *Child) HasKillTimer() bool { return !c.KillTime.IsZero() }

// Err returns the first unexpected (non-EAGAIN) read error observed, if
// any.
func (c *Child) Err() error { return c.pendingErr }
