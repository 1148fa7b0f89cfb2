// Package filter provides composable predicates over remote file entries.
//
// Filters are immutable values; the package-level ones (True, False,
// Directories, Files) can be shared freely. Combinators short-circuit:
//
//	pdfs := filter.And(filter.Suffix(".pdf"), filter.Files, filter.Not(filter.Hidden))
package filter

import (
	"fmt"
	"io"
	"io/fs"
	"strings"
)

// Entry is a remote file or directory as seen by a filter.
type Entry interface {
	fs.FileInfo
	// Path returns the share-relative path of the entry.
	Path() string
	// Open returns a reader over the entry's content.
	Open() (io.ReadCloser, error)
}

// Filter decides whether an entry is accepted.
type Filter interface {
	Accept(e Entry) (bool, error)
	String() string
}

var (
	// True accepts every entry.
	True Filter = constFilter(true)

	// False rejects every entry.
	False Filter = constFilter(false)

	// Directories accepts directories only.
	Directories Filter = typeFilter(true)

	// Files accepts regular entries only.
	Files Filter = typeFilter(false)
)

type constFilter bool

func (f constFilter) Accept(Entry) (bool, error) { return bool(f), nil }

func (f constFilter) String() string {
	if f {
		return "True"
	}
	return "False"
}

type typeFilter bool

func (f typeFilter) Accept(e Entry) (bool, error) { return e.IsDir() == bool(f), nil }

func (f typeFilter) String() string {
	if f {
		return "Directories"
	}
	return "Files"
}

type andFilter []Filter

// And accepts an entry when every filter accepts it, evaluated in order and
// stopping at the first rejection. And with no filters rejects everything.
func And(filters ...Filter) Filter {
	return andFilter(compact(filters))
}

func (f andFilter) Accept(e Entry) (bool, error) {
	if len(f) == 0 {
		return false, nil
	}
	for _, child := range f {
		ok, err := child.Accept(e)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (f andFilter) String() string { return "And(" + join(f) + ")" }

type orFilter []Filter

// Or accepts an entry when any filter accepts it, evaluated in order and
// stopping at the first acceptance. Or with no filters rejects everything.
func Or(filters ...Filter) Filter {
	return orFilter(compact(filters))
}

func (f orFilter) Accept(e Entry) (bool, error) {
	for _, child := range f {
		ok, err := child.Accept(e)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (f orFilter) String() string { return "Or(" + join(f) + ")" }

type notFilter struct {
	f Filter
}

// Not negates f. Errors from f are passed through.
func Not(f Filter) Filter {
	if f == nil {
		panic("filter: Not of nil filter")
	}
	return notFilter{f: f}
}

func (f notFilter) Accept(e Entry) (bool, error) {
	ok, err := f.f.Accept(e)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (f notFilter) String() string { return "Not(" + f.f.String() + ")" }

type funcFilter struct {
	name string
	fn   func(Entry) (bool, error)
}

// Func wraps fn as a filter. name is used by String.
func Func(name string, fn func(Entry) (bool, error)) Filter {
	if fn == nil {
		panic("filter: Func with nil function")
	}
	return funcFilter{name: name, fn: fn}
}

func (f funcFilter) Accept(e Entry) (bool, error) { return f.fn(e) }

func (f funcFilter) String() string { return "Func(" + f.name + ")" }

// MakeDirectoryOnly restricts f to directories.
func MakeDirectoryOnly(f Filter) Filter {
	if f == nil {
		return Directories
	}
	return And(Directories, f)
}

// MakeFileOnly restricts f to regular entries.
func MakeFileOnly(f Filter) Filter {
	if f == nil {
		return Files
	}
	return And(Files, f)
}

// MakeCVSAware excludes CVS bookkeeping directories from f. A nil f
// accepts everything else.
func MakeCVSAware(f Filter) Filter {
	return excludeDir(f, "CVS")
}

// MakeSVNAware excludes .svn bookkeeping directories from f. A nil f
// accepts everything else.
func MakeSVNAware(f Filter) Filter {
	return excludeDir(f, ".svn")
}

func excludeDir(f Filter, name string) Filter {
	exclude := Not(And(Directories, Name(name)))
	if f == nil {
		return exclude
	}
	return And(f, exclude)
}

// Apply returns the entries accepted by f, in order. The first error stops
// the evaluation.
func Apply(f Filter, entries []Entry) ([]Entry, error) {
	var accepted []Entry
	for _, e := range entries {
		ok, err := f.Accept(e)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %s: %w", f, e.Path(), err)
		}
		if ok {
			accepted = append(accepted, e)
		}
	}
	return accepted, nil
}

func compact(filters []Filter) []Filter {
	out := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

func join(filters []Filter) string {
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = f.String()
	}
	return strings.Join(parts, ", ")
}
