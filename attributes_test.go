package smbclient

import (
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowsAttributes_Flags(t *testing.T) {
	tests := []struct {
		name  string
		attrs uint32
		check func(*WindowsAttributes) bool
		want  bool
	}{
		{"hidden attribute set", FILE_ATTRIBUTE_HIDDEN, (*WindowsAttributes).IsHidden, true},
		{"hidden attribute not set", FILE_ATTRIBUTE_NORMAL, (*WindowsAttributes).IsHidden, false},
		{"system attribute set", FILE_ATTRIBUTE_SYSTEM, (*WindowsAttributes).IsSystem, true},
		{"readonly attribute set", FILE_ATTRIBUTE_READONLY, (*WindowsAttributes).IsReadOnly, true},
		{"archive attribute set", FILE_ATTRIBUTE_ARCHIVE, (*WindowsAttributes).IsArchive, true},
		{"reparse point set", FILE_ATTRIBUTE_REPARSE_POINT, (*WindowsAttributes).IsReparsePoint, true},
		{"offline set", FILE_ATTRIBUTE_OFFLINE, (*WindowsAttributes).IsOffline, true},
		{"combined attributes", FILE_ATTRIBUTE_HIDDEN | FILE_ATTRIBUTE_SYSTEM, (*WindowsAttributes).IsSystem, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wa := NewWindowsAttributes(tt.attrs)
			assert.Equal(t, tt.want, tt.check(wa))
			assert.Equal(t, tt.attrs, wa.Attributes())
		})
	}
}

func TestWindowsAttributes_String(t *testing.T) {
	tests := []struct {
		attrs uint32
		want  string
	}{
		{0, "Normal"},
		{FILE_ATTRIBUTE_NORMAL, "Normal"},
		{FILE_ATTRIBUTE_HIDDEN, "Hidden"},
		{FILE_ATTRIBUTE_READONLY | FILE_ATTRIBUTE_HIDDEN | FILE_ATTRIBUTE_ARCHIVE, "ReadOnly, Hidden, Archive"},
		{FILE_ATTRIBUTE_DIRECTORY | FILE_ATTRIBUTE_SYSTEM, "System, Directory"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewWindowsAttributes(tt.attrs).String(), "attrs %#x", tt.attrs)
	}
}

// plainInfo is an fs.FileInfo without attributes.
type plainInfo struct {
	name string
	mode fs.FileMode
}

func (fi plainInfo) Name() string       { return fi.name }
func (fi plainInfo) Size() int64        { return 0 }
func (fi plainInfo) Mode() fs.FileMode  { return fi.mode }
func (fi plainInfo) ModTime() time.Time { return time.Time{} }
func (fi plainInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi plainInfo) Sys() any           { return nil }

func TestAttributesOf(t *testing.T) {
	assert.Nil(t, AttributesOf(plainInfo{name: "a.txt"}))

	info := &attributedInfo{FileInfo: plainInfo{name: "a.txt"}, attrs: FILE_ATTRIBUTE_HIDDEN}
	wa := AttributesOf(info)
	require.NotNil(t, wa)
	assert.True(t, wa.IsHidden())

	entry := newFileEntry("docs/a.txt", info)
	assert.Equal(t, uint32(FILE_ATTRIBUTE_HIDDEN), entry.FileAttributes())
	assert.Equal(t, uint32(0), newFileEntry("a", plainInfo{name: "a"}).FileAttributes())
	assert.Nil(t, newFileEntry("a", plainInfo{name: "a"}).Attributes())
}

func TestModeToAttributes(t *testing.T) {
	tests := []struct {
		name string
		mode fs.FileMode
		want uint32
	}{
		{"regular file", 0644, FILE_ATTRIBUTE_ARCHIVE},
		{"read-only file", 0444, FILE_ATTRIBUTE_READONLY | FILE_ATTRIBUTE_ARCHIVE},
		{"directory", fs.ModeDir | 0755, FILE_ATTRIBUTE_DIRECTORY},
		{"read-only directory", fs.ModeDir | 0555, FILE_ATTRIBUTE_DIRECTORY | FILE_ATTRIBUTE_READONLY},
		{"symlink", fs.ModeSymlink | 0777, FILE_ATTRIBUTE_REPARSE_POINT},
		{"device", fs.ModeDevice | 0666, FILE_ATTRIBUTE_DEVICE},
		{"named pipe", fs.ModeNamedPipe | 0666, FILE_ATTRIBUTE_NORMAL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, uint32(tt.want), modeToAttributes(tt.mode))
		})
	}
}

func TestWithModeAttributes(t *testing.T) {
	tests := []struct {
		name   string
		info   plainInfo
		hidden bool
	}{
		{"plain file", plainInfo{name: "report.pdf", mode: 0644}, false},
		{"dot file", plainInfo{name: ".profile", mode: 0644}, true},
		{"dot directory", plainInfo{name: ".git", mode: fs.ModeDir | 0755}, true},
		{"single dot", plainInfo{name: ".", mode: fs.ModeDir | 0755}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := withModeAttributes(tt.info)
			assert.Equal(t, tt.info.Name(), info.Name())
			wa := AttributesOf(info)
			require.NotNil(t, wa)
			assert.Equal(t, tt.hidden, wa.IsHidden())
		})
	}
}
