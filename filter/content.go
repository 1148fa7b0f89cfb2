package filter

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"time"
)

type sizeFilter struct {
	threshold    int64
	acceptLarger bool
}

// Size accepts entries of at least threshold bytes when acceptLarger is
// set, and entries smaller than threshold otherwise.
func Size(threshold int64, acceptLarger bool) Filter {
	return sizeFilter{threshold: threshold, acceptLarger: acceptLarger}
}

// SizeRange accepts entries whose size lies in [min, max].
func SizeRange(min, max int64) Filter {
	return And(Size(min, true), Size(max+1, false))
}

func (f sizeFilter) Accept(e Entry) (bool, error) {
	larger := e.Size() >= f.threshold
	return larger == f.acceptLarger, nil
}

func (f sizeFilter) String() string {
	if f.acceptLarger {
		return "Size(>=" + strconv.FormatInt(f.threshold, 10) + ")"
	}
	return "Size(<" + strconv.FormatInt(f.threshold, 10) + ")"
}

type ageFilter struct {
	cutoff      time.Time
	acceptOlder bool
}

// Age accepts entries modified at or before cutoff when acceptOlder is set,
// and entries modified after cutoff otherwise.
func Age(cutoff time.Time, acceptOlder bool) Filter {
	return ageFilter{cutoff: cutoff, acceptOlder: acceptOlder}
}

// AgeOf is Age with the modification time of ref as cutoff.
func AgeOf(ref fs.FileInfo, acceptOlder bool) Filter {
	return Age(ref.ModTime(), acceptOlder)
}

// NewerThan accepts entries modified strictly after t.
func NewerThan(t time.Time) Filter {
	return Age(t, false)
}

func (f ageFilter) Accept(e Entry) (bool, error) {
	newer := e.ModTime().After(f.cutoff)
	return newer != f.acceptOlder, nil
}

func (f ageFilter) String() string {
	op := ">"
	if f.acceptOlder {
		op = "<="
	}
	return "Age(" + op + f.cutoff.Format(time.RFC3339) + ")"
}

type magicFilter struct {
	magic  []byte
	offset int64
}

// MagicNumber accepts regular entries whose content holds magic at byte
// offset. Entries too short to hold it are rejected.
func MagicNumber(magic []byte, offset int64) Filter {
	if len(magic) == 0 {
		panic("filter: empty magic number")
	}
	if offset < 0 {
		panic("filter: negative magic number offset")
	}
	return magicFilter{magic: bytes.Clone(magic), offset: offset}
}

// MagicString is MagicNumber with the bytes of s.
func MagicString(s string, offset int64) Filter {
	return MagicNumber([]byte(s), offset)
}

func (f magicFilter) Accept(e Entry) (bool, error) {
	if e.IsDir() || e.Size() < f.offset+int64(len(f.magic)) {
		return false, nil
	}
	rc, err := e.Open()
	if err != nil {
		return false, err
	}
	defer rc.Close()

	if f.offset > 0 {
		if _, err := io.CopyN(io.Discard, rc, f.offset); err != nil {
			return false, shortRead(err)
		}
	}
	buf := make([]byte, len(f.magic))
	if _, err := io.ReadFull(rc, buf); err != nil {
		return false, shortRead(err)
	}
	return bytes.Equal(buf, f.magic), nil
}

func (f magicFilter) String() string {
	return fmt.Sprintf("MagicNumber(%x@%d)", f.magic, f.offset)
}

// shortRead turns a truncated read into a plain rejection.
func shortRead(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil
	}
	return err
}

// attributed is implemented by entries that carry Windows file attributes.
type attributed interface {
	FileAttributes() uint32
}

// fileAttributeHidden mirrors FILE_ATTRIBUTE_HIDDEN.
const fileAttributeHidden = 0x2

// Hidden accepts entries with the hidden attribute set, or whose name
// starts with a dot when the entry carries no attributes.
var Hidden Filter = hiddenFilter{}

type hiddenFilter struct{}

func (hiddenFilter) Accept(e Entry) (bool, error) {
	if a, ok := e.(attributed); ok && a.FileAttributes() != 0 {
		return a.FileAttributes()&fileAttributeHidden != 0, nil
	}
	name := e.Name()
	return len(name) > 1 && name[0] == '.' && name != "..", nil
}

func (hiddenFilter) String() string { return "Hidden" }

type attributeFilter uint32

// Attribute accepts entries carrying every bit of mask in their Windows
// file attributes. Entries without attributes are rejected.
func Attribute(mask uint32) Filter {
	return attributeFilter(mask)
}

func (f attributeFilter) Accept(e Entry) (bool, error) {
	a, ok := e.(attributed)
	if !ok {
		return false, nil
	}
	return a.FileAttributes()&uint32(f) == uint32(f), nil
}

func (f attributeFilter) String() string {
	return fmt.Sprintf("Attribute(0x%x)", uint32(f))
}
