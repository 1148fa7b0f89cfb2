package filter

import (
	"runtime"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Case controls how names are compared.
type Case int

const (
	// Sensitive compares names byte for byte.
	Sensitive Case = iota
	// Insensitive compares names with Unicode case folding.
	Insensitive
	// System is Insensitive on Windows and Sensitive elsewhere.
	System
)

func (c Case) fold() bool {
	switch c {
	case Insensitive:
		return true
	case System:
		return runtime.GOOS == "windows"
	}
	return false
}

func (c Case) equal(a, b string) bool {
	if c.fold() {
		return strings.EqualFold(a, b)
	}
	return a == b
}

func (c Case) hasPrefix(s, prefix string) bool {
	if !c.fold() {
		return strings.HasPrefix(s, prefix)
	}
	for prefix != "" {
		if s == "" {
			return false
		}
		r1, n1 := utf8.DecodeRuneInString(s)
		r2, n2 := utf8.DecodeRuneInString(prefix)
		if !equalFoldRune(r1, r2) {
			return false
		}
		s, prefix = s[n1:], prefix[n2:]
	}
	return true
}

func (c Case) hasSuffix(s, suffix string) bool {
	if !c.fold() {
		return strings.HasSuffix(s, suffix)
	}
	for suffix != "" {
		if s == "" {
			return false
		}
		r1, n1 := utf8.DecodeLastRuneInString(s)
		r2, n2 := utf8.DecodeLastRuneInString(suffix)
		if !equalFoldRune(r1, r2) {
			return false
		}
		s, suffix = s[:len(s)-n1], suffix[:len(suffix)-n2]
	}
	return true
}

// equalFoldRune reports whether a and b are equal under simple Unicode
// case folding, the relation strings.EqualFold uses.
func equalFoldRune(a, b rune) bool {
	if a == b {
		return true
	}
	for r := unicode.SimpleFold(a); r != a; r = unicode.SimpleFold(r) {
		if r == b {
			return true
		}
	}
	return false
}

func (c Case) String() string {
	switch c {
	case Insensitive:
		return "Insensitive"
	case System:
		return "System"
	}
	return "Sensitive"
}

type matchKind int

const (
	matchName matchKind = iota
	matchPrefix
	matchSuffix
)

// nameFilter matches the entry name against a list of patterns.
type nameFilter struct {
	kind     matchKind
	patterns []string
	c        Case
}

// Name accepts entries whose name equals one of names, case-sensitively.
func Name(names ...string) Filter { return NameCase(Sensitive, names...) }

// NameCase accepts entries whose name equals one of names under c.
func NameCase(c Case, names ...string) Filter {
	return nameFilter{kind: matchName, patterns: names, c: c}
}

// Prefix accepts entries whose name starts with one of prefixes,
// case-sensitively.
func Prefix(prefixes ...string) Filter { return PrefixCase(Sensitive, prefixes...) }

// PrefixCase accepts entries whose name starts with one of prefixes under c.
func PrefixCase(c Case, prefixes ...string) Filter {
	return nameFilter{kind: matchPrefix, patterns: prefixes, c: c}
}

// Suffix accepts entries whose name ends with one of suffixes,
// case-sensitively.
func Suffix(suffixes ...string) Filter { return SuffixCase(Sensitive, suffixes...) }

// SuffixCase accepts entries whose name ends with one of suffixes under c.
func SuffixCase(c Case, suffixes ...string) Filter {
	return nameFilter{kind: matchSuffix, patterns: suffixes, c: c}
}

func (f nameFilter) Accept(e Entry) (bool, error) {
	name := e.Name()
	for _, p := range f.patterns {
		var ok bool
		switch f.kind {
		case matchPrefix:
			ok = f.c.hasPrefix(name, p)
		case matchSuffix:
			ok = f.c.hasSuffix(name, p)
		default:
			ok = f.c.equal(name, p)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (f nameFilter) String() string {
	kind := "Name"
	switch f.kind {
	case matchPrefix:
		kind = "Prefix"
	case matchSuffix:
		kind = "Suffix"
	}
	s := kind + "(" + strings.Join(f.patterns, ", ")
	if f.c != Sensitive {
		s += "; " + f.c.String()
	}
	return s + ")"
}

// Extensions accepts regular entries whose name ends with "." plus one of
// exts, case-sensitively. Extensions() accepts every regular entry.
func Extensions(exts ...string) Filter {
	return ExtensionsCase(Sensitive, exts...)
}

// ExtensionsCase is Extensions with an explicit case rule.
func ExtensionsCase(c Case, exts ...string) Filter {
	if len(exts) == 0 {
		return Files
	}
	suffixes := make([]string, len(exts))
	for i, ext := range exts {
		suffixes[i] = "." + strings.TrimPrefix(ext, ".")
	}
	return And(SuffixCase(c, suffixes...), Files)
}
