package smbclient

import (
	"context"
	"io"
	"io/fs"
)

// Share abstracts a mounted remote share. Paths are share-relative and use
// "/" separators; adapters convert them to their native form.
type Share interface {
	// OpenFile opens a file with the specified flags and permissions.
	OpenFile(name string, flag int, perm fs.FileMode) (RemoteFile, error)
	// Stat returns file info for the specified path.
	Stat(name string) (fs.FileInfo, error)
	// ReadDir returns the entries of a directory.
	ReadDir(name string) ([]fs.FileInfo, error)
	// Mkdir creates a single directory.
	Mkdir(name string, perm fs.FileMode) error
	// Remove removes a file or empty directory. Removing a directory with
	// children fails with an error matching ErrDirectoryNotEmpty.
	Remove(name string) error
	// Rename renames a file or directory.
	Rename(oldname, newname string) error
	// Close releases the share and the session behind it.
	Close() error
}

// RemoteFile abstracts an open remote file.
type RemoteFile interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
	// Stat returns file information.
	Stat() (fs.FileInfo, error)
	// Sync flushes written data to the server.
	Sync() error
}

// Connector opens shares. Each call yields an independent connection.
type Connector interface {
	Connect(ctx context.Context) (Share, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (Share, error)

// Connect calls f(ctx).
func (f ConnectorFunc) Connect(ctx context.Context) (Share, error) {
	return f(ctx)
}

// attributed is implemented by file info carrying Windows attributes.
type attributed interface {
	FileAttributes() uint32
}
