package smbclient

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RenamePolicy derives a new file name from an existing one. The result is
// passed to RenamePath, so an extension-less name keeps the original
// extension.
type RenamePolicy interface {
	NewName(name string) string
}

// RenamePolicyFunc adapts a function to the RenamePolicy interface.
type RenamePolicyFunc func(name string) string

// NewName calls f(name).
func (f RenamePolicyFunc) NewName(name string) string { return f(name) }

// DateRenamePolicy names files after the current time as
// yyyyMMddHHmmss plus tenths of a second, keeping the extension.
type DateRenamePolicy struct {
	// Now returns the current time. Nil means time.Now.
	Now func() time.Time
}

func (p DateRenamePolicy) NewName(name string) string {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	t := now()
	stamp := fmt.Sprintf("%s%d", t.Format("20060102150405"), t.Nanosecond()/int(100*time.Millisecond))
	return withExt(stamp, name)
}

// UUIDRenamePolicy names files with a random UUID, keeping the extension.
type UUIDRenamePolicy struct{}

func (UUIDRenamePolicy) NewName(name string) string {
	return withExt(uuid.NewString(), name)
}

func withExt(stem, name string) string {
	if _, ext := splitExt(name); ext != "" {
		return stem + "." + ext
	}
	return stem
}
