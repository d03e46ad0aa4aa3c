// Package diagnostics is the supervisor's logging seam: a small structured
// Logger/LogEntry pair that every stderr notice flows through, plus the
// pure string formatters that produce the stable bracket- and
// percent-prefixed diagnostic lines external tooling greps for.
package diagnostics

import (
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Level is the severity of a LogEntry.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", l)
	}
}

// LogEntry is one structured log record. Category groups related entries
// (e.g. "signal", "child", "poll") for a future structured sink; the
// current Logger implementations render Message verbatim.
type LogEntry struct {
	Level    Level
	Category string
	Message  string
	Err      error
	Time     time.Time
}

// Logger is the interface the supervisor logs through.
type Logger interface {
	Log(entry LogEntry)
	IsEnabled(level Level) bool
}

// DefaultLogger writes each entry's Message to the io.Writer given to
// NewDefaultLogger (cmd/apply passes stderr), filtering below a minimum
// level. Entries are rendered as plain text,
// not JSON: this tool's diagnostics are a user-facing contract, not a
// machine log format.
type DefaultLogger struct {
	level atomic.Int32
	mu    sync.Mutex
	out   io.Writer
}

// NewDefaultLogger returns a Logger writing to out at the given minimum
// level.
func NewDefaultLogger(out io.Writer, level Level) *DefaultLogger {
	l := &DefaultLogger{out: out}
	l.level.Store(int32(level))
	return l
}

func (l *DefaultLogger) SetLevel(level Level) { l.level.Store(int32(level)) }

func (l *DefaultLogger) IsEnabled(level Level) bool {
	return level >= Level(l.level.Load())
}

func (l *DefaultLogger) Log(entry LogEntry) {
	if !l.IsEnabled(entry.Level) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%s\n", entry.Message)
}

// NoOpLogger discards everything; used in tests that don't care about
// diagnostic output.
type NoOpLogger struct{}

func (NoOpLogger) Log(LogEntry)         {}
func (NoOpLogger) IsEnabled(Level) bool { return false }

// Notice emits entry.Message through l at LevelInfo, a convenience for the
// supervisor's many single-line bracketed notices.
func Notice(l Logger, message string) {
	if !l.IsEnabled(LevelInfo) {
		return
	}
	l.Log(LogEntry{Level: LevelInfo, Category: "notice", Message: message, Time: time.Now()})
}

// Warning emits entry.Message through l at LevelWarn.
func Warning(l Logger, message string) {
	if !l.IsEnabled(LevelWarn) {
		return
	}
	l.Log(LogEntry{Level: LevelWarn, Category: "warning", Message: message, Time: time.Now()})
}

// TimeStr renders tstamp as "HH:MM:SS.mmm" in local time.
func TimeStr(t time.Time) string {
	return fmt.Sprintf("%s.%03d", t.Format("15:04:05"), t.Nanosecond()/1_000_000)
}

// ElapsedStr renders a duration the way the original tool does: plain
// seconds with millisecond precision under a minute, "MM:SS.mmm" under an
// hour, "HH:MM:SS.mmm" beyond that.
func ElapsedStr(d time.Duration) string {
	total := d.Seconds()
	frac, whole := math.Modf(total)
	secsInt := int(whole)
	mins, secs := secsInt/60, secsInt%60
	secf := float64(secs) + frac
	if mins == 0 {
		return fmt.Sprintf("%.3fs", secf)
	}
	hours, mins := mins/60, mins%60
	if hours == 0 {
		return fmt.Sprintf("%02d:%06.3f", mins, secf)
	}
	return fmt.Sprintf("%02d:%02d:%06.3f", hours, mins, secf)
}

// ForwardingSignal is the "[Forwarding signal N (NAME) to subprocesses at
// TIME]" notice emitted once per newly observed signal, under -v or
// --signal-test.
func ForwardingSignal(signum int, name string, at time.Time) string {
	return fmt.Sprintf("[Forwarding signal %d (%s) to subprocesses at %s]", signum, name, TimeStr(at))
}

// SignalTestBanner is the startup line printed to stdout (not stderr)
// under --signal-test, so an external harness can target this pid.
func SignalTestBanner(pid int) string {
	return fmt.Sprintf("[This pid = %d]", pid)
}

// FallbackPollerNotice is printed once at startup when no native readiness
// primitive (epoll/kqueue) is available and the select(2) fallback is in
// use.
func FallbackPollerNotice() string {
	return "%Substituting for missing select.poll"
}

// UnsignaledStillRunning is the warning for a child that could not be
// signalled (permission denied) and is still running past its kill
// deadline.
func UnsignaledStillRunning(name string, at time.Time) string {
	return fmt.Sprintf("%%Unsignaled subprocess %s still running at %s", name, TimeStr(at))
}

// SubprocessHung is the warning for a child past its warning deadline when
// kill-hung escalation is disabled.
func SubprocessHung(name string, at time.Time) string {
	return fmt.Sprintf("%%Subprocess %s hung at %s", name, TimeStr(at))
}

// KillingHungSubprocess is the warning emitted the moment the supervisor
// sends the unconditional kill signal to a hung child.
func KillingHungSubprocess(name string, at time.Time) string {
	return fmt.Sprintf("%%Killing hung subprocess %s at %s", name, TimeStr(at))
}

// TimedOutKillingSubprocess is the warning for a child that did not exit
// within the post-kill grace period.
func TimedOutKillingSubprocess(name string, at time.Time) string {
	return fmt.Sprintf("%%Timed out killing subprocess %s at %s", name, TimeStr(at))
}

// AbandoningSubprocesses is the final warning before the supervisor gives
// up on every remaining, unsignalable child.
func AbandoningSubprocesses(count int) string {
	return fmt.Sprintf("%%Abandoning %d unsignalable subprocesses", count)
}

// Returned is the per-child exit notice. nameSuffix is "" or " for NAME";
// timeSuffix is "" or " at TIME, took ELAPSED".
func Returned(code int, nameSuffix, timeSuffix string) string {
	return fmt.Sprintf("[Returned %d%s%s]", code, nameSuffix, timeSuffix)
}

// ReturnedNameSuffix builds the nameSuffix argument to Returned.
func ReturnedNameSuffix(realName string) string {
	if realName == "" {
		return ""
	}
	return " for " + realName
}

// ReturnedTimeSuffix builds the timeSuffix argument to Returned under -t.
func ReturnedTimeSuffix(finished time.Time, elapsed time.Duration) string {
	return fmt.Sprintf(" at %s, took %s", TimeStr(finished), ElapsedStr(elapsed))
}

// StartedCountAt is the "[Started (N) at TIME]" banner under -v -t.
func StartedCountAt(count int, at time.Time) string {
	return fmt.Sprintf("[Started (%d) at %s]", count, TimeStr(at))
}

// StartedCountNames is the "[Started (N): name,name,...]" banner under -v
// alone.
func StartedCountNames(count int, namesCSV string) string {
	return fmt.Sprintf("[Started (%d): %s]", count, namesCSV)
}

// ChildStartedNamed is the per-child "[name started at TIME]" line under
// -t.
func ChildStartedNamed(realName string, at time.Time) string {
	return fmt.Sprintf("[%s started at %s]", realName, TimeStr(at))
}

// ChildStartedAnonymous is the per-child "[Started at TIME]" line under -t
// for the anonymous/empty item.
func ChildStartedAnonymous(at time.Time) string {
	return fmt.Sprintf("[Started at %s]", TimeStr(at))
}

// ReturnsTally is the "[Returns (k/N): name=code, ...; retval = R]" line
// printed after each completion under -v when more than one child has
// finished.
func ReturnsTally(done, total int, resultsCSV string, retval int) string {
	return fmt.Sprintf("[Returns (%d/%d): %s; retval = %d]", done, total, resultsCSV, retval)
}

// StillRunning is the "[Still running (k/N): name,name,...]" line under -v.
func StillRunning(remaining, total int, namesCSV string) string {
	return fmt.Sprintf("[Still running (%d/%d): %s]", remaining, total, namesCSV)
}

// ReturnsSummary is the final "[Returns: name=code, ...]" line under -v
// without -t.
func ReturnsSummary(resultsCSV string) string {
	return fmt.Sprintf("[Returns: %s]", resultsCSV)
}

// ChildReturnedTook is the per-child "[name returned code, took ELAPSED]"
// line under -v and -t together.
func ChildReturnedTook(name string, code int, elapsed time.Duration) string {
	return fmt.Sprintf("[%s returned %d, took %s]", name, code, ElapsedStr(elapsed))
}

// AllProcessesComplete is the closing "[All N processes complete, final
// return = R]" line under -v.
func AllProcessesComplete(count, retval int) string {
	return fmt.Sprintf("[All %d processes complete, final return = %d]", count, retval)
}

// Failures is the terse "[Failures: name=code, ...]" line printed without
// -v when at least one child exited non-zero.
func Failures(resultsCSV string) string {
	return fmt.Sprintf("[Failures: %s]", resultsCSV)
}

// FinishedAt is the closing "[Finished at TIME, took ELAPSED]" line under
// -t, always printed regardless of -v.
func FinishedAt(at time.Time, elapsed time.Duration) string {
	return fmt.Sprintf("[Finished at %s, took %s]", TimeStr(at), ElapsedStr(elapsed))
}
