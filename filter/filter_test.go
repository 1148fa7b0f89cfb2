package filter

import (
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEntry struct {
	name    string
	dir     bool
	size    int64
	modTime time.Time
	content string
	attrs   uint32
	openErr error
	opened  int
}

func (e *testEntry) Name() string       { return e.name }
func (e *testEntry) Size() int64        { return e.size }
func (e *testEntry) ModTime() time.Time { return e.modTime }
func (e *testEntry) IsDir() bool        { return e.dir }
func (e *testEntry) Sys() any           { return nil }
func (e *testEntry) Path() string       { return "share/" + e.name }

func (e *testEntry) Mode() fs.FileMode {
	if e.dir {
		return fs.ModeDir | 0755
	}
	return 0644
}

func (e *testEntry) Open() (io.ReadCloser, error) {
	e.opened++
	if e.openErr != nil {
		return nil, e.openErr
	}
	return io.NopCloser(strings.NewReader(e.content)), nil
}

type attrEntry struct {
	*testEntry
}

func (e attrEntry) FileAttributes() uint32 { return e.attrs }

func file(name string, size int64) *testEntry {
	return &testEntry{name: name, size: size}
}

func dir(name string) *testEntry {
	return &testEntry{name: name, dir: true}
}

func accept(t *testing.T, f Filter, e Entry) bool {
	t.Helper()
	ok, err := f.Accept(e)
	require.NoError(t, err)
	return ok
}

func TestConstants(t *testing.T) {
	f, d := file("a.txt", 1), dir("docs")

	assert.True(t, accept(t, True, f))
	assert.True(t, accept(t, True, d))
	assert.False(t, accept(t, False, f))
	assert.True(t, accept(t, Files, f))
	assert.False(t, accept(t, Files, d))
	assert.True(t, accept(t, Directories, d))
	assert.False(t, accept(t, Directories, f))
}

func TestCombinatorLaws(t *testing.T) {
	entries := []Entry{file("a.txt", 10), file("b.pdf", 0), dir("CVS"), dir("src")}
	filters := []Filter{True, False, Files, Directories, Suffix(".pdf"), Size(5, true)}

	for _, e := range entries {
		t.Run(e.Name(), func(t *testing.T) {
			assert.False(t, accept(t, And(), e), "empty And rejects")
			assert.False(t, accept(t, Or(), e), "empty Or rejects")
			assert.False(t, accept(t, Not(True), e))

			for _, f := range filters {
				want := accept(t, f, e)
				assert.Equal(t, want, accept(t, And(f, True), e), "And(%s, True)", f)
				assert.Equal(t, want, accept(t, Or(f, False), e), "Or(%s, False)", f)
				assert.Equal(t, want, accept(t, Not(Not(f)), e), "Not(Not(%s))", f)
				assert.Equal(t, !want, accept(t, Not(f), e), "Not(%s)", f)
			}
		})
	}
}

func TestAndShortCircuit(t *testing.T) {
	calls := 0
	counting := Func("count", func(Entry) (bool, error) {
		calls++
		return true, nil
	})

	assert.False(t, accept(t, And(False, counting), file("a", 1)))
	assert.Equal(t, 0, calls)

	assert.True(t, accept(t, Or(True, counting), file("a", 1)))
	assert.Equal(t, 0, calls)

	assert.True(t, accept(t, And(True, counting), file("a", 1)))
	assert.Equal(t, 1, calls)
}

func TestNilFiltersAreSkipped(t *testing.T) {
	assert.True(t, accept(t, And(nil, True), file("a", 1)))
	assert.False(t, accept(t, And(nil), file("a", 1)))
	assert.False(t, accept(t, Or(nil, False), file("a", 1)))
	assert.Panics(t, func() { Not(nil) })
}

func TestErrorPropagation(t *testing.T) {
	boom := errors.New("boom")
	failing := Func("fail", func(Entry) (bool, error) { return false, boom })

	_, err := And(True, failing).Accept(file("a", 1))
	assert.ErrorIs(t, err, boom)

	_, err = Not(failing).Accept(file("a", 1))
	assert.ErrorIs(t, err, boom)

	_, err = Apply(failing, []Entry{file("a", 1)})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "share/a")
}

func TestNameFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		entry  string
		want   bool
	}{
		{"exact", Name("README"), "README", true},
		{"exact case", Name("README"), "readme", false},
		{"exact folded", NameCase(Insensitive, "README"), "readme", true},
		{"prefix", Prefix("tmp_", "bak_"), "bak_1.txt", true},
		{"prefix miss", Prefix("tmp_"), "tm", false},
		{"suffix", Suffix(".log"), "app.log", true},
		{"suffix case", Suffix(".log"), "app.LOG", false},
		{"suffix folded", SuffixCase(Insensitive, ".log"), "app.LOG", true},
		{"prefix folded", PrefixCase(Insensitive, "TMP_"), "tmp_1.txt", true},
		{"prefix folded miss", PrefixCase(Insensitive, "tmp_"), "TM", false},
		{"prefix folded kelvin sign", PrefixCase(Insensitive, "\u212Aelvin"), "kelvin.txt", true},
		{"suffix folded kelvin sign", SuffixCase(Insensitive, ".k"), "data.\u212A", true},
		{"suffix folded miss", SuffixCase(Insensitive, ".LOG"), "applog", false},
		{"suffix folded accent", SuffixCase(Insensitive, "\u00e9"), "caf\u00c9", true},
		{"no patterns", Name(), "a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, accept(t, tt.filter, file(tt.entry, 1)))
		})
	}
}

func TestExtensions(t *testing.T) {
	f := Extensions("pdf", ".doc")

	assert.True(t, accept(t, f, file("a.pdf", 1)))
	assert.True(t, accept(t, f, file("a.doc", 1)))
	assert.False(t, accept(t, f, file("a.PDF", 1)))
	assert.False(t, accept(t, f, file("apdf", 1)))
	assert.False(t, accept(t, f, dir("x.pdf")))

	assert.True(t, accept(t, ExtensionsCase(Insensitive, "pdf"), file("a.PDF", 1)))
	assert.True(t, accept(t, Extensions(), file("anything", 1)))
	assert.False(t, accept(t, Extensions(), dir("anything")))
}

func TestMakeHelpers(t *testing.T) {
	assert.False(t, accept(t, MakeFileOnly(True), dir("d")))
	assert.True(t, accept(t, MakeFileOnly(nil), file("f", 1)))
	assert.False(t, accept(t, MakeDirectoryOnly(True), file("f", 1)))
	assert.True(t, accept(t, MakeDirectoryOnly(nil), dir("d")))

	cvs := MakeCVSAware(nil)
	assert.False(t, accept(t, cvs, dir("CVS")))
	assert.True(t, accept(t, cvs, file("CVS", 1)))
	assert.True(t, accept(t, cvs, dir("src")))

	svn := MakeSVNAware(Directories)
	assert.False(t, accept(t, svn, dir(".svn")))
	assert.True(t, accept(t, svn, dir("src")))
	assert.False(t, accept(t, svn, file("a", 1)))
}

func TestSize(t *testing.T) {
	assert.True(t, accept(t, Size(10, true), file("a", 10)))
	assert.False(t, accept(t, Size(10, true), file("a", 9)))
	assert.True(t, accept(t, Size(10, false), file("a", 9)))
	assert.False(t, accept(t, Size(10, false), file("a", 10)))

	r := SizeRange(5, 10)
	for size, want := range map[int64]bool{4: false, 5: true, 7: true, 10: true, 11: false} {
		assert.Equal(t, want, accept(t, r, file("a", size)), "size %d", size)
	}
}

func TestAge(t *testing.T) {
	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *testEntry {
		e := file("a", 1)
		e.modTime = cutoff.Add(d)
		return e
	}

	assert.True(t, accept(t, Age(cutoff, true), at(-time.Hour)))
	assert.True(t, accept(t, Age(cutoff, true), at(0)))
	assert.False(t, accept(t, Age(cutoff, true), at(time.Second)))
	assert.True(t, accept(t, Age(cutoff, false), at(time.Second)))
	assert.False(t, accept(t, Age(cutoff, false), at(0)))

	assert.True(t, accept(t, NewerThan(cutoff), at(time.Minute)))
	assert.False(t, accept(t, NewerThan(cutoff), at(0)))

	ref := at(0)
	assert.True(t, accept(t, AgeOf(ref, true), at(-time.Minute)))
	assert.False(t, accept(t, AgeOf(ref, false), at(-time.Minute)))
}

func TestMagicNumber(t *testing.T) {
	pdf := file("a.pdf", 8)
	pdf.content = "%PDF-1.7"

	assert.True(t, accept(t, MagicString("%PDF", 0), pdf))
	assert.True(t, accept(t, MagicString("1.7", 5), pdf))
	assert.False(t, accept(t, MagicString("PK", 0), pdf))

	// Reported size is large enough but the content is short.
	short := file("b.bin", 16)
	short.content = "PK"
	assert.False(t, accept(t, MagicString("PK\x03\x04", 0), short))

	tiny := file("c.bin", 1)
	assert.False(t, accept(t, MagicString("PK", 0), tiny))
	assert.Equal(t, 0, tiny.opened, "undersized entries are not opened")

	d := dir("dir")
	assert.False(t, accept(t, MagicString("PK", 0), d))

	broken := file("d.bin", 10)
	broken.openErr = fs.ErrPermission
	_, err := MagicString("PK", 0).Accept(broken)
	assert.ErrorIs(t, err, fs.ErrPermission)

	assert.Panics(t, func() { MagicNumber(nil, 0) })
	assert.Panics(t, func() { MagicString("x", -1) })
}

func TestAttributes(t *testing.T) {
	hidden := attrEntry{file("secret", 1)}
	hidden.attrs = 0x2 | 0x20
	plain := attrEntry{file(".profile", 1)}
	plain.attrs = 0x20

	assert.True(t, accept(t, Hidden, hidden))
	assert.False(t, accept(t, Hidden, plain), "attributes win over the dot prefix")
	assert.True(t, accept(t, Hidden, file(".profile", 1)))
	assert.False(t, accept(t, Hidden, file("profile", 1)))

	assert.True(t, accept(t, Attribute(0x20), hidden))
	assert.False(t, accept(t, Attribute(0x1), hidden))
	assert.False(t, accept(t, Attribute(0x20), file("x", 1)))
}

func TestApplyKeepsOrder(t *testing.T) {
	entries := []Entry{file("c.pdf", 1), dir("b"), file("a.pdf", 1), file("z.txt", 1)}

	got, err := Apply(Extensions("pdf"), entries)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c.pdf", got[0].Name())
	assert.Equal(t, "a.pdf", got[1].Name())
}

func TestString(t *testing.T) {
	f := And(Suffix(".pdf"), Not(Hidden), Or(Size(10, true), NameCase(Insensitive, "x")))
	assert.Equal(t, "And(Suffix(.pdf), Not(Hidden), Or(Size(>=10), Name(x; Insensitive)))", f.String())
}
