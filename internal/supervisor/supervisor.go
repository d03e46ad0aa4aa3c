// Package supervisor runs the main loop: it launches one Child per item,
// multiplexes their output through an OutputPolicy, forwards supervised
// signals, and escalates against children that stop responding.
package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/joeycumines/go-apply/internal/diagnostics"
	"github.com/joeycumines/go-apply/internal/interpolate"
	"github.com/joeycumines/go-apply/internal/ioevent"
	"github.com/joeycumines/go-apply/internal/lineio"
	"github.com/joeycumines/go-apply/internal/procchild"
	"github.com/joeycumines/go-apply/internal/sigrelay"
)

// Config is everything one invocation needs to run the loop.
type Config struct {
	Command []string
	Shell   bool

	Sequential bool
	Names      bool
	Times      bool
	Verbose    bool
	KillHung   bool
	SignalTest bool

	Items   []string
	ItemMap interpolate.Map

	Logger diagnostics.Logger
	Stdout io.Writer
	Stderr io.Writer
}

// writerSink writes formatted lines to the configured stdout/stderr
// writers, chosen by the line's stream.
type writerSink struct {
	stdout, stderr io.Writer
}

func newWriterSink(stdout, stderr io.Writer) writerSink {
	return writerSink{stdout: stdout, stderr: stderr}
}

func (s writerSink) WriteLine(l lineio.Line, formatted string) {
	w := s.stdout
	if l.Stream == lineio.Stderr {
		w = s.stderr
	}
	fmt.Fprintln(w, formatted)
}

// Run executes one apply invocation to completion and returns the
// aggregate exit code. A non-nil error before or during the launch phase
// is ErrUsage (exit 2), ErrSpawn (exit 127), or another setup failure
// (exit 1): an interpolation failure, or failing to create the poller or
// signal relay or to register a child with the poller.
func Run(cfg Config) (int, error) {
	if len(cfg.Items) == 0 {
		return 2, fmt.Errorf("%w: empty item list", ErrUsage)
	}
	if cfg.Names && len(cfg.Items) == 1 && cfg.Items[0] == "" {
		return 2, fmt.Errorf("%w: -n illegal with empty target list", ErrUsage)
	}
	if len(cfg.Command) == 0 {
		return 2, fmt.Errorf("%w: missing command", ErrUsage)
	}

	poller, backend, err := ioevent.New()
	if err != nil {
		return 1, fmt.Errorf("supervisor: creating poller: %w", err)
	}
	defer poller.Close()
	if backend == ioevent.BackendSelect {
		diagnostics.Notice(cfg.Logger, diagnostics.FallbackPollerNotice())
	}

	relay, err := sigrelay.New(poller)
	if err != nil {
		return 1, fmt.Errorf("supervisor: creating signal relay: %w", err)
	}
	defer relay.Close()
	relay.Arm()

	if cfg.SignalTest {
		fmt.Fprintln(cfg.Stdout, diagnostics.SignalTestBanner(os.Getpid()))
	}

	sink := newWriterSink(cfg.Stdout, cfg.Stderr)
	policy := NewOutputPolicy(cfg.Sequential, cfg.Names, cfg.Times, sink)

	live, err := launch(cfg, poller)
	if err != nil {
		if errors.Is(err, ErrSpawn) {
			return 127, err
		}
		// Everything else launch can fail with (an interpolation
		// failure, or registering a child with the poller) is fatal for
		// the invocation but distinct from a spawn failure, so it gets
		// the uncaught-exception exit code instead of the named 127
		// contract.
		return 1, err
	}

	started := time.Now()
	if cfg.Verbose && cfg.Times {
		diagnostics.Notice(cfg.Logger, diagnostics.StartedCountAt(len(live), started))
	} else if cfg.Verbose {
		diagnostics.Notice(cfg.Logger, diagnostics.StartedCountNames(len(live), namesCSV(live)))
	}

	retval := 0
	var done []*procchild.Child

	for len(live) > 0 {
		forwardSignals(cfg, relay, live)

		activity := false
		hungCheck := false
		deadProcs := 0
		now := time.Now()

		for i := 0; i < len(live); {
			c := live[i]
			res, pollErr := c.PollOnce()
			if pollErr != nil {
				diagnostics.Warning(cfg.Logger, fmt.Sprintf("%%Read error on %s: %v", childLabel(c), pollErr))
			}

			switch {
			case res.Exited:
				lines := c.Lines()
				last := c.PrintLast()
				live = append(live[:i], live[i+1:]...)
				done = append(done, c)
				_ = c.Unregister(poller)
				policy.OnExit(c, lines, last)

				if res.ExitCode > retval {
					retval = res.ExitCode
				}
				emitReturnedNotice(cfg, c, res.ExitCode)
				emitProgressTally(cfg, live, done, retval, len(cfg.Items))

				if cfg.Sequential && len(live) == 1 {
					policy.CatchUp(live[0])
				}
				activity = true
				continue // don't advance i: slice shrank in place

			case res.Data:
				activity = true
				policy.OnData(c, c.Lines(), len(live))
				if c.HasKillTimer() {
					c.SetKill(false)
				}

			default:
				if !c.HasKillTimer() {
					break
				}
				hungCheck = true
				if c.KillTime.After(now) {
					break
				}
				switch {
				case c.SigFail:
					diagnostics.Warning(cfg.Logger, diagnostics.UnsignaledStillRunning(childLabel(c), now))
					deadProcs++
				case c.KillState == procchild.Killed:
					// Already given up on; keeps counting toward abandonment
					// every iteration rather than only at the moment of
					// transition.
					deadProcs++
				case !cfg.KillHung:
					diagnostics.Warning(cfg.Logger, diagnostics.SubprocessHung(childLabel(c), now))
					c.SetKill(false)
				case c.KillState == procchild.NotKilled:
					diagnostics.Warning(cfg.Logger, diagnostics.KillingHungSubprocess(childLabel(c), now))
					_ = c.Kill()
					c.SetKill(true)
					activity = true
				case c.KillState == procchild.Armed:
					diagnostics.Warning(cfg.Logger, diagnostics.TimedOutKillingSubprocess(childLabel(c), now))
					c.MarkTimedOutKilling(now)
					deadProcs++
				}
			}
			i++
		}

		if deadProcs > 0 && deadProcs >= len(live) {
			diagnostics.Warning(cfg.Logger, diagnostics.AbandoningSubprocesses(deadProcs))
			retval = ExitAbandoned
			break
		}

		if !activity {
			timeoutMs := 5000
			if hungCheck {
				timeoutMs = 100
			}
			if _, pollErr := relay.Poll(timeoutMs); pollErr != nil {
				diagnostics.Warning(cfg.Logger, fmt.Sprintf("%%Poll error: %v", pollErr))
			}
		}
	}

	finished := time.Now()
	emitFinalSummary(cfg, done, retval, started, finished)

	return retval, nil
}

func launch(cfg Config, poller ioevent.Poller) ([]*procchild.Child, error) {
	var live []*procchild.Child
	for _, item := range cfg.Items {
		argv := make([]string, len(cfg.Command))
		for i, word := range cfg.Command {
			expanded, err := interpolate.Expand(word, item, cfg.ItemMap)
			if err != nil {
				return nil, fmt.Errorf("supervisor: %w", err)
			}
			argv[i] = expanded
		}

		name := DisplayName(item)
		c, err := procchild.Spawn(name, argv, cfg.Shell)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
		}
		if cfg.Times {
			if c.RealName != "" {
				diagnostics.Notice(cfg.Logger, diagnostics.ChildStartedNamed(c.RealName, c.Started))
			} else {
				diagnostics.Notice(cfg.Logger, diagnostics.ChildStartedAnonymous(c.Started))
			}
		}
		if err := c.Register(poller); err != nil {
			return nil, fmt.Errorf("supervisor: registering child: %w", err)
		}
		live = append(live, c)
	}
	return live, nil
}

// forwardSignals sends every signal the Relay has observed but not yet
// forwarded to every live child, applying the escalation rule: the
// SIG_WAIT set (user-1/user-2) alone never starts a kill clock, but any
// other signal does, and so does a subsequent SIG_WAIT signal once that
// has happened.
func forwardSignals(cfg Config, relay *sigrelay.Relay, live []*procchild.Child) {
	pending := relay.Pending()
	if len(pending) == 0 {
		return
	}
	escalate := cfg.SignalTest || relay.AnyNonWaitSent()
	for _, sig := range pending {
		if !sigrelay.Wait[sig] {
			escalate = true
		}
	}
	if cfg.Verbose || cfg.SignalTest {
		now := time.Now()
		for _, sig := range pending {
			diagnostics.Notice(cfg.Logger, diagnostics.ForwardingSignal(signalNumber(sig), sigrelay.Name(sig), now))
		}
	}
	for _, c := range live {
		for _, sig := range pending {
			if err := c.Signal(sig, escalate); err != nil {
				diagnostics.Warning(cfg.Logger, fmt.Sprintf("%%Error sending signal to %s: %v", childLabel(c), err))
			}
		}
	}
	relay.MarkSent(pending)
}

func childLabel(c *procchild.Child) string {
	if c.RealName != "" {
		return c.RealName
	}
	return c.Name
}

func namesCSV(children []*procchild.Child) string {
	names := make([]string, len(children))
	for i, c := range children {
		names[i] = c.Name
	}
	return strings.Join(names, ",")
}

func emitReturnedNotice(cfg Config, c *procchild.Child, code int) {
	if code == 0 && !cfg.Verbose && !cfg.Times {
		return
	}
	nameSuffix := diagnostics.ReturnedNameSuffix(c.RealName)
	timeSuffix := ""
	if cfg.Times {
		timeSuffix = diagnostics.ReturnedTimeSuffix(c.Finished, c.Finished.Sub(c.Started))
	}
	diagnostics.Notice(cfg.Logger, diagnostics.Returned(code, nameSuffix, timeSuffix))
}

func emitProgressTally(cfg Config, live []*procchild.Child, done []*procchild.Child, retval, total int) {
	if !cfg.Verbose || len(live) == 0 {
		return
	}
	if len(done) > 1 {
		results := make([]string, len(done))
		for i, c := range done {
			results[i] = fmt.Sprintf("%s=%d", c.Name, c.ExitCode)
		}
		diagnostics.Notice(cfg.Logger, diagnostics.ReturnsTally(len(done), total, strings.Join(results, ", "), retval))
	}
	diagnostics.Notice(cfg.Logger, diagnostics.StillRunning(len(live), total, namesCSV(live)))
}

func emitFinalSummary(cfg Config, done []*procchild.Child, retval int, started, finished time.Time) {
	if len(done) > 1 {
		if cfg.Verbose {
			if !cfg.Times {
				results := make([]string, len(done))
				for i, c := range done {
					results[i] = fmt.Sprintf("%s=%d", c.Name, c.ExitCode)
				}
				diagnostics.Notice(cfg.Logger, diagnostics.ReturnsSummary(strings.Join(results, ", ")))
			} else {
				for _, c := range done {
					diagnostics.Notice(cfg.Logger, diagnostics.ChildReturnedTook(c.Name, c.ExitCode, c.Finished.Sub(c.Started)))
				}
			}
			diagnostics.Notice(cfg.Logger, diagnostics.AllProcessesComplete(len(done), retval))
		} else {
			var results []string
			for _, c := range done {
				if c.ExitCode != 0 {
					results = append(results, fmt.Sprintf("%s=%d", c.Name, c.ExitCode))
				}
			}
			if len(results) > 0 {
				diagnostics.Notice(cfg.Logger, diagnostics.Failures(strings.Join(results, ", ")))
			}
		}
	}
	if cfg.Times {
		diagnostics.Notice(cfg.Logger, diagnostics.FinishedAt(finished, finished.Sub(started)))
	}
}

// signalNumber renders a forwarded signal's numeric value for the
// "[Forwarding signal N (NAME) ...]" notice.
func signalNumber(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return int(s)
	}
	return 0
}
