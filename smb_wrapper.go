package smbclient

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"

	"github.com/hirochachacha/go-smb2"
)

// statusDirectoryNotEmpty is STATUS_DIRECTORY_NOT_EMPTY from MS-ERREF.
const statusDirectoryNotEmpty = 0xC0000101

// SMB2Connector dials SMB2/3 servers with NTLM authentication.
type SMB2Connector struct {
	config *Config
}

// NewSMB2Connector returns a connector for the server and share in config.
func NewSMB2Connector(config *Config) *SMB2Connector {
	return &SMB2Connector{config: config}
}

// Connect dials the server, sets up a session and mounts the share.
func (c *SMB2Connector) Connect(ctx context.Context) (Share, error) {
	addr := net.JoinHostPort(c.config.Server, fmt.Sprint(c.config.Port))

	dialer := &net.Dialer{
		Timeout: c.config.ConnTimeout,
	}

	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	user := c.config.Username
	if c.config.GuestAccess && user == "" {
		user = "guest"
	}

	d := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     user,
			Password: c.config.Password,
			Domain:   c.config.Domain,
		},
	}

	session, err := d.Dial(netConn)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("SMB session setup failed: %w", err)
	}

	share, err := session.Mount(c.config.Share)
	if err != nil {
		_ = session.Logoff()
		netConn.Close()
		return nil, fmt.Errorf("failed to mount share %s: %w", c.config.Share, err)
	}

	return &smb2Share{conn: netConn, session: session, share: share}, nil
}

// smb2Share wraps a go-smb2 Share to implement Share.
type smb2Share struct {
	conn    net.Conn
	session *smb2.Session
	share   *smb2.Share
}

func (sh *smb2Share) OpenFile(name string, flag int, perm fs.FileMode) (RemoteFile, error) {
	file, err := sh.share.OpenFile(toSMBPath(name), flag, perm)
	if err != nil {
		return nil, err
	}
	return &smb2File{File: file}, nil
}

func (sh *smb2Share) Stat(name string) (fs.FileInfo, error) {
	info, err := sh.share.Stat(toSMBPath(name))
	if err != nil {
		return nil, err
	}
	return withAttributes(info), nil
}

func (sh *smb2Share) ReadDir(name string) ([]fs.FileInfo, error) {
	infos, err := sh.share.ReadDir(toSMBPath(name))
	if err != nil {
		return nil, err
	}
	for i, info := range infos {
		infos[i] = withAttributes(info)
	}
	return infos, nil
}

func (sh *smb2Share) Mkdir(name string, perm fs.FileMode) error {
	return sh.share.Mkdir(toSMBPath(name), perm)
}

func (sh *smb2Share) Remove(name string) error {
	err := sh.share.Remove(toSMBPath(name))
	var re *smb2.ResponseError
	if errors.As(err, &re) && re.Code == statusDirectoryNotEmpty {
		return fmt.Errorf("%w: %w", ErrDirectoryNotEmpty, err)
	}
	return err
}

func (sh *smb2Share) Rename(oldname, newname string) error {
	return sh.share.Rename(toSMBPath(oldname), toSMBPath(newname))
}

// Close unmounts the share, logs off and closes the TCP connection.
func (sh *smb2Share) Close() error {
	err := sh.share.Umount()
	if lerr := sh.session.Logoff(); err == nil {
		err = lerr
	}
	if cerr := sh.conn.Close(); err == nil && !errors.Is(cerr, net.ErrClosed) {
		err = cerr
	}
	return err
}

// smb2File wraps a go-smb2 File; Read, Write, Seek, Close and Sync are
// promoted as is.
type smb2File struct {
	*smb2.File
}

func (f *smb2File) Stat() (fs.FileInfo, error) {
	info, err := f.File.Stat()
	if err != nil {
		return nil, err
	}
	return withAttributes(info), nil
}

func withAttributes(info fs.FileInfo) fs.FileInfo {
	if st, ok := info.(*smb2.FileStat); ok {
		return &attributedInfo{FileInfo: info, attrs: st.FileAttributes}
	}
	return info
}
