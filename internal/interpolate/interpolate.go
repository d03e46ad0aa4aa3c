// Package interpolate expands command-template placeholders against a
// single item string, the way the parallel applicator substitutes %P, %N,
// %0, %M and friends into each child's argument vector.
package interpolate

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnknownInterpolation is returned (wrapped) when a template contains
// a '%' followed by a character absent from the supplied Map.
var ErrUnknownInterpolation = errors.New("interpolate: unknown interpolation character")

// errOutOfRange is the sentinel a Map function returns when it cannot
// derive a value for the given item (e.g. an ARG index past the last
// whitespace-separated field). Expand swallows it into an empty string.
var errOutOfRange = errors.New("interpolate: value out of range")

// Func derives a substitution value from an item. Returning errOutOfRange
// (or any error, by convention) causes Expand to substitute "" rather than
// failing the whole expansion.
type Func func(item string) (string, error)

// Map is a finite mapping from a single placeholder byte to a Func. The
// four maps below are disjoint: at most one is active per invocation,
// chosen by where the item list came from.
type Map map[byte]Func

// Expand scans template left to right, substituting each '%x' using m.
//
// A bare "%%" emits one literal '%' and terminates scanning immediately —
// the remainder of the template, if any, is appended verbatim. This is a
// deliberate, testable quirk, not a bug to be fixed here.
//
// A trailing lone '%' (no following byte) is emitted verbatim.
func Expand(template string, item string, m Map) (string, error) {
	var b strings.Builder
	b.Grow(len(template))

	i := 0
	for i < len(template) {
		pct := strings.IndexByte(template[i:], '%')
		if pct < 0 {
			b.WriteString(template[i:])
			i = len(template)
			break
		}
		pct += i
		b.WriteString(template[i:pct])

		if pct == len(template)-1 {
			// Trailing lone '%': emitted verbatim.
			b.WriteByte('%')
			i = len(template)
			break
		}

		key := template[pct+1]
		i = pct + 2

		if key == '%' {
			b.WriteByte('%')
			b.WriteString(template[i:])
			return b.String(), nil
		}

		fn, ok := m[key]
		if !ok {
			return "", fmt.Errorf("%w: %%%c", ErrUnknownInterpolation, key)
		}
		val, err := fn(item)
		if err != nil {
			continue // out-of-range placeholders expand to "".
		}
		b.WriteString(val)
	}
	return b.String(), nil
}

// NullMap is the empty placeholder map used for the singleton-empty-item
// case (no -a/-f/-m supplied).
func NullMap() Map { return Map{} }

// MachMap returns the item verbatim under key 'M', for -m (machine list)
// dispatch.
func MachMap() Map {
	return Map{
		'M': func(item string) (string, error) { return item, nil },
	}
}

// PathMap decomposes a filesystem path under -a (inline item list)
// dispatch: P full path, B base w/o extension, D directory, F file name,
// N name w/o directory or extension, E extension (with leading dot, or
// empty).
func PathMap() Map {
	return Map{
		'P': func(item string) (string, error) { return item, nil },
		'B': func(item string) (string, error) {
			return strings.TrimSuffix(item, filepath.Ext(item)), nil
		},
		'D': func(item string) (string, error) { return filepath.Dir(item), nil },
		'F': func(item string) (string, error) { return filepath.Base(item), nil },
		'N': func(item string) (string, error) {
			base := filepath.Base(item)
			return strings.TrimSuffix(base, filepath.Ext(base)), nil
		},
		'E': func(item string) (string, error) { return filepath.Ext(filepath.Base(item)), nil },
	}
}

// ArgMap selects the 0th through 7th whitespace-split field of item, for
// -f (argument file) dispatch. An index past the last field is
// errOutOfRange, which Expand turns into "".
func ArgMap() Map {
	m := make(Map, 8)
	for i := 0; i < 8; i++ {
		idx := i
		m[byte('0'+idx)] = func(item string) (string, error) {
			fields := strings.Fields(item)
			if idx >= len(fields) {
				return "", errOutOfRange
			}
			return fields[idx], nil
		}
	}
	return m
}
