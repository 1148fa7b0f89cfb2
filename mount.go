package smbclient

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

// MountConnector serves a share that is already mounted into the local
// filesystem (mount.cifs, fstab, a mapped drive). Credentials are handled by
// the mount; Connect only checks the mount point.
type MountConnector struct {
	Root string
}

// NewMountConnector returns a connector for the share mounted at root.
func NewMountConnector(root string) *MountConnector {
	return &MountConnector{Root: root}
}

// Connect verifies the mount point is a directory.
func (c *MountConnector) Connect(ctx context.Context) (Share, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Root == "" {
		return nil, fmt.Errorf("%w: mount_path is required", ErrInvalidConfig)
	}
	info, err := os.Stat(c.Root)
	if err != nil {
		return nil, fmt.Errorf("mounted share at %s: %w", c.Root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mounted share at %s: %w", c.Root, ErrNotDirectory)
	}
	return &mountShare{root: c.Root}, nil
}

// mountShare maps share-relative paths under root.
type mountShare struct {
	root string
}

func (sh *mountShare) local(name string) string {
	return filepath.Join(sh.root, filepath.FromSlash(cleanPath(name)))
}

func (sh *mountShare) OpenFile(name string, flag int, perm fs.FileMode) (RemoteFile, error) {
	f, err := os.OpenFile(sh.local(name), flag, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (sh *mountShare) Stat(name string) (fs.FileInfo, error) {
	info, err := os.Stat(sh.local(name))
	if err != nil {
		return nil, err
	}
	return withModeAttributes(info), nil
}

func (sh *mountShare) ReadDir(name string) ([]fs.FileInfo, error) {
	entries, err := os.ReadDir(sh.local(name))
	if err != nil {
		return nil, err
	}
	infos := make([]fs.FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			// Entry vanished between listing and stat
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		infos = append(infos, withModeAttributes(info))
	}
	return infos, nil
}

func (sh *mountShare) Mkdir(name string, perm fs.FileMode) error {
	return os.Mkdir(sh.local(name), perm)
}

func (sh *mountShare) Remove(name string) error {
	err := os.Remove(sh.local(name))
	if errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST) {
		return fmt.Errorf("%w: %w", ErrDirectoryNotEmpty, err)
	}
	return err
}

func (sh *mountShare) Rename(oldname, newname string) error {
	return os.Rename(sh.local(oldname), sh.local(newname))
}

func (sh *mountShare) Close() error {
	return nil
}
