package supervisor

import (
	"bufio"
	"os"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/joeycumines/go-apply/internal/interpolate"
)

// ItemSource identifies where the item list came from, which in turn
// selects the placeholder map.
type ItemSource int

const (
	SourceNone ItemSource = iota
	SourceInline
	SourceArgFile
	SourceMachines
)

// ResolveItems applies the precedence an invocation's flags imply: an
// inline list (-a), then an argument file (-f), then a machine list (-m),
// falling back to the single anonymous empty item when none were given.
// Exactly one of inline/argFile/machines may be non-empty; the caller
// (flag parsing) enforces mutual exclusion before this is called.
func ResolveItems(inline []string, argFile string, machines []string) ([]string, ItemSource, interpolate.Map, error) {
	switch {
	case len(inline) > 0:
		items, err := splitItemLists(inline)
		if err != nil {
			return nil, SourceNone, nil, err
		}
		return items, SourceInline, interpolate.PathMap(), nil
	case argFile != "":
		items, err := readArgFile(argFile)
		if err != nil {
			return nil, SourceNone, nil, err
		}
		return items, SourceArgFile, interpolate.ArgMap(), nil
	case len(machines) > 0:
		items, err := splitItemLists(machines)
		if err != nil {
			return nil, SourceNone, nil, err
		}
		return items, SourceMachines, interpolate.MachMap(), nil
	default:
		return []string{""}, SourceNone, interpolate.NullMap(), nil
	}
}

// splitItemLists tokenizes each -a/-m entry using shell-word splitting,
// treating commas as additional separators alongside whitespace. This
// mirrors the original's shlex-based SplitArgs (which widens shlex's
// whitespace set to include ',').
func splitItemLists(entries []string) ([]string, error) {
	var out []string
	for _, entry := range entries {
		normalized := strings.ReplaceAll(entry, ",", " ")
		words, err := shellquote.Split(normalized)
		if err != nil {
			return nil, err
		}
		out = append(out, words...)
	}
	return out, nil
}

// readArgFile reads one item per line from path, trimming the trailing
// newline but preserving the rest of each line verbatim (ARG map fields
// are whitespace-split from it independently).
func readArgFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// SplitCommand shell-word-splits a -c command-template string into a
// command vector.
func SplitCommand(cmd string) ([]string, error) {
	return shellquote.Split(cmd)
}

// DisplayName returns the display name for an item: its first
// whitespace-split word, or "" for the anonymous empty item.
func DisplayName(item string) string {
	fields := strings.Fields(item)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
