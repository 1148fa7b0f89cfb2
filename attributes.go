package smbclient

import (
	"io/fs"
	"strings"
)

// Windows file attribute flags as defined in MS-FSCC.
const (
	// FILE_ATTRIBUTE_READONLY indicates the file is read-only.
	FILE_ATTRIBUTE_READONLY = 0x00000001

	// FILE_ATTRIBUTE_HIDDEN indicates the file is hidden.
	FILE_ATTRIBUTE_HIDDEN = 0x00000002

	// FILE_ATTRIBUTE_SYSTEM indicates the file is a system file.
	FILE_ATTRIBUTE_SYSTEM = 0x00000004

	// FILE_ATTRIBUTE_DIRECTORY indicates the file is a directory.
	FILE_ATTRIBUTE_DIRECTORY = 0x00000010

	// FILE_ATTRIBUTE_ARCHIVE indicates the file should be archived.
	FILE_ATTRIBUTE_ARCHIVE = 0x00000020

	// FILE_ATTRIBUTE_DEVICE indicates the file is a device.
	FILE_ATTRIBUTE_DEVICE = 0x00000040

	// FILE_ATTRIBUTE_NORMAL indicates the file has no other attributes set.
	FILE_ATTRIBUTE_NORMAL = 0x00000080

	// FILE_ATTRIBUTE_TEMPORARY indicates the file is temporary.
	FILE_ATTRIBUTE_TEMPORARY = 0x00000100

	// FILE_ATTRIBUTE_SPARSE_FILE indicates the file is a sparse file.
	FILE_ATTRIBUTE_SPARSE_FILE = 0x00000200

	// FILE_ATTRIBUTE_REPARSE_POINT indicates the file is a reparse point (symlink/junction).
	FILE_ATTRIBUTE_REPARSE_POINT = 0x00000400

	// FILE_ATTRIBUTE_COMPRESSED indicates the file is compressed.
	FILE_ATTRIBUTE_COMPRESSED = 0x00000800

	// FILE_ATTRIBUTE_OFFLINE indicates the file data is offline.
	FILE_ATTRIBUTE_OFFLINE = 0x00001000

	// FILE_ATTRIBUTE_ENCRYPTED indicates the file is encrypted.
	FILE_ATTRIBUTE_ENCRYPTED = 0x00004000
)

// WindowsAttributes is a read-only view of the attribute bits of a remote
// entry.
type WindowsAttributes struct {
	attrs uint32
}

// NewWindowsAttributes creates a new WindowsAttributes from a uint32 value.
func NewWindowsAttributes(attrs uint32) *WindowsAttributes {
	return &WindowsAttributes{attrs: attrs}
}

// Attributes returns the raw attribute value.
func (wa *WindowsAttributes) Attributes() uint32 {
	return wa.attrs
}

// Has reports whether every bit of mask is set.
func (wa *WindowsAttributes) Has(mask uint32) bool {
	return wa.attrs&mask == mask
}

// IsHidden returns true if the file has the hidden attribute.
func (wa *WindowsAttributes) IsHidden() bool { return wa.Has(FILE_ATTRIBUTE_HIDDEN) }

// IsSystem returns true if the file has the system attribute.
func (wa *WindowsAttributes) IsSystem() bool { return wa.Has(FILE_ATTRIBUTE_SYSTEM) }

// IsReadOnly returns true if the file has the read-only attribute.
func (wa *WindowsAttributes) IsReadOnly() bool { return wa.Has(FILE_ATTRIBUTE_READONLY) }

// IsArchive returns true if the file has the archive attribute.
func (wa *WindowsAttributes) IsArchive() bool { return wa.Has(FILE_ATTRIBUTE_ARCHIVE) }

// IsReparsePoint returns true if the file is a reparse point (symlink/junction).
func (wa *WindowsAttributes) IsReparsePoint() bool { return wa.Has(FILE_ATTRIBUTE_REPARSE_POINT) }

// IsOffline returns true if the file data is offline. Reading it may
// trigger a slow recall from archival storage.
func (wa *WindowsAttributes) IsOffline() bool { return wa.Has(FILE_ATTRIBUTE_OFFLINE) }

var attributeNames = []struct {
	bit  uint32
	name string
}{
	{FILE_ATTRIBUTE_READONLY, "ReadOnly"},
	{FILE_ATTRIBUTE_HIDDEN, "Hidden"},
	{FILE_ATTRIBUTE_SYSTEM, "System"},
	{FILE_ATTRIBUTE_DIRECTORY, "Directory"},
	{FILE_ATTRIBUTE_ARCHIVE, "Archive"},
	{FILE_ATTRIBUTE_TEMPORARY, "Temporary"},
	{FILE_ATTRIBUTE_SPARSE_FILE, "Sparse"},
	{FILE_ATTRIBUTE_REPARSE_POINT, "ReparsePoint"},
	{FILE_ATTRIBUTE_COMPRESSED, "Compressed"},
	{FILE_ATTRIBUTE_OFFLINE, "Offline"},
	{FILE_ATTRIBUTE_ENCRYPTED, "Encrypted"},
}

// String returns a human-readable string of the attributes.
func (wa *WindowsAttributes) String() string {
	var names []string
	for _, a := range attributeNames {
		if wa.attrs&a.bit != 0 {
			names = append(names, a.name)
		}
	}
	if len(names) == 0 {
		return "Normal"
	}
	return strings.Join(names, ", ")
}

// AttributesOf returns the Windows attributes carried by info, or nil when
// the adapter that produced it has none.
func AttributesOf(info fs.FileInfo) *WindowsAttributes {
	if a, ok := info.(attributed); ok {
		return NewWindowsAttributes(a.FileAttributes())
	}
	return nil
}

// attributedInfo attaches attribute bits to a plain fs.FileInfo.
type attributedInfo struct {
	fs.FileInfo
	attrs uint32
}

func (fi *attributedInfo) FileAttributes() uint32 {
	return fi.attrs
}

// withModeAttributes derives attribute bits from the Unix mode of info.
// Dot files are reported hidden, as Samba does by default.
func withModeAttributes(info fs.FileInfo) fs.FileInfo {
	attrs := modeToAttributes(info.Mode())
	if name := info.Name(); len(name) > 1 && name[0] == '.' {
		attrs |= FILE_ATTRIBUTE_HIDDEN
	}
	return &attributedInfo{FileInfo: info, attrs: attrs}
}

// modeToAttributes converts Unix file mode to Windows attributes.
// This is a best-effort mapping as Windows and Unix permissions are quite different.
func modeToAttributes(mode fs.FileMode) uint32 {
	var attrs uint32

	// Check if read-only (no write permissions)
	if mode&0222 == 0 {
		attrs |= FILE_ATTRIBUTE_READONLY
	}

	switch {
	case mode.IsDir():
		attrs |= FILE_ATTRIBUTE_DIRECTORY
	case mode&fs.ModeSymlink != 0:
		attrs |= FILE_ATTRIBUTE_REPARSE_POINT
	case mode&fs.ModeDevice != 0:
		attrs |= FILE_ATTRIBUTE_DEVICE
	case mode.IsRegular():
		// Archive is set by default for regular files
		attrs |= FILE_ATTRIBUTE_ARCHIVE
	}

	if attrs == 0 {
		attrs = FILE_ATTRIBUTE_NORMAL
	}
	return attrs
}
