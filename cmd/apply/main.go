// Command apply runs a templated command once per item, concurrently,
// multiplexing their output and forwarding signals.
package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/joeycumines/go-apply/internal/diagnostics"
	"github.com/joeycumines/go-apply/internal/supervisor"
)

type options struct {
	Sequential bool     `short:"s" long:"sequential" description:"buffer each child's output until it completes"`
	Names      bool     `short:"n" long:"names" description:"prefix output lines with the child's display name"`
	Times      bool     `short:"t" long:"times" description:"prefix output lines with a wall-clock timestamp"`
	Verbose    bool     `short:"v" long:"verbose" description:"additional start/end/progress diagnostics on stderr"`
	Command    string   `short:"c" description:"shell-word-split command template (mutually exclusive with a positional command)"`
	Inline     []string `short:"a" description:"inline item list (repeatable); uses the PATH placeholder map"`
	ArgFile    string   `short:"f" long:"file" description:"one item per line from FILE; uses the ARG placeholder map"`
	Machines   []string `short:"m" description:"remote targets (repeatable); wraps the command in ssh"`
	IPv4       bool     `short:"4" description:"force IPv4 for the ssh wrapper"`
	IPv6       bool     `short:"6" description:"force IPv6 for the ssh wrapper"`
	Shell      bool     `short:"S" long:"shell" description:"invoke each child through the user's login shell"`
	KillHung   bool     `short:"K" long:"kill-hung" description:"permit escalation from warning to unconditional kill"`
	SignalTest bool     `long:"signal-test" description:"enable escalation even for SIG_WAIT signals; print this process's pid at start"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "[OPTIONS] [--] COMMAND [ARGS...]"
	positional, err := parser.ParseArgs(argv)
	if err != nil {
		if flags.WroteHelp(err) {
			return 0
		}
		return 2
	}

	exclusiveGroups := 0
	for _, set := range []bool{len(opts.Inline) > 0, opts.ArgFile != "", len(opts.Machines) > 0} {
		if set {
			exclusiveGroups++
		}
	}
	if exclusiveGroups > 1 {
		fmt.Fprintln(os.Stderr, "apply: -a, -f, and -m are mutually exclusive")
		return 2
	}
	if opts.Command != "" && len(positional) > 0 {
		fmt.Fprintln(os.Stderr, "apply: -c is mutually exclusive with a positional command")
		return 2
	}

	items, source, itemMap, err := supervisor.ResolveItems(opts.Inline, opts.ArgFile, opts.Machines)
	if err != nil {
		fmt.Fprintf(os.Stderr, "apply: %v\n", err)
		return 2
	}

	var command []string
	switch {
	case opts.Command != "":
		command, err = supervisor.SplitCommand(opts.Command)
		if err != nil {
			fmt.Fprintf(os.Stderr, "apply: %v\n", err)
			return 2
		}
	default:
		command = positional
	}

	if source == supervisor.SourceMachines {
		sshFlag := "-T"
		switch {
		case opts.IPv4:
			sshFlag = "-4T"
		case opts.IPv6:
			sshFlag = "-6T"
		}
		command = append([]string{"ssh", sshFlag, "%M"}, command...)
	}

	// The supervisor itself decides which notices are verbose-gated; the
	// logger's own threshold stays at Debug so nothing it's told to log
	// gets silently dropped a second time.
	logger := diagnostics.NewDefaultLogger(os.Stderr, diagnostics.LevelDebug)

	cfg := supervisor.Config{
		Command:    command,
		Shell:      opts.Shell,
		Sequential: opts.Sequential,
		Names:      opts.Names,
		Times:      opts.Times,
		Verbose:    opts.Verbose,
		KillHung:   opts.KillHung,
		SignalTest: opts.SignalTest,
		Items:      items,
		ItemMap:    itemMap,
		Logger:     logger,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}

	code, err := supervisor.Run(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "apply: %v\n", err)
	}
	return code
}
