package smbclient

import (
	"io/fs"
	"testing"
)

func testConfig() *Config {
	return &Config{
		Server:      "fileserver",
		Share:       "data",
		GuestAccess: true,
	}
}

// newTestHandle returns an unconnected handle over backend.
func newTestHandle(t *testing.T, backend *MockBackend, opts TransferConfig) *Handle {
	t.Helper()
	cfg := testConfig()
	cfg.Transfer = opts
	h := NewHandleBuilder(cfg, NewMockConnector(backend)).Build()
	t.Cleanup(func() { _ = h.Close() })
	return h
}

// pattern returns n bytes that differ at every position within 251 bytes.
func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

// sizedInfo overrides the reported size of a file.
type sizedInfo struct {
	fs.FileInfo
	size int64
}

func (fi sizedInfo) Size() int64 { return fi.size }

// inflatingShare reports every file extra bytes larger than it is.
type inflatingShare struct {
	Share
	extra int64
}

func (sh inflatingShare) Stat(name string) (fs.FileInfo, error) {
	info, err := sh.Share.Stat(name)
	if err != nil || info.IsDir() {
		return info, err
	}
	return sizedInfo{FileInfo: info, size: info.Size() + sh.extra}, nil
}
