package smbclient

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockBackend provides an in-memory share for testing.
// It maintains a virtual filesystem that can be populated with test data
// and tracks all operations for verification.
type MockBackend struct {
	mu sync.RWMutex

	// files maps paths to mock file data
	files map[string]*mockFileData

	// errors to inject for specific operations
	errorOnPath map[string]error
	errorOnOp   map[string]error

	// operation tracking for verification (separate mutex to avoid lock contention)
	opMu       sync.Mutex
	operations []MockOperation
}

// mockFileData represents a file or directory in the mock filesystem.
type mockFileData struct {
	name    string
	content []byte
	mode    fs.FileMode
	modTime time.Time
	attrs   uint32
	isDir   bool
}

// MockOperation records an operation performed on the mock backend.
type MockOperation struct {
	Op   string
	Path string
	Args []interface{}
	Time time.Time
}

// NewMockBackend creates an empty mock share.
func NewMockBackend() *MockBackend {
	m := &MockBackend{
		files:       make(map[string]*mockFileData),
		errorOnPath: make(map[string]error),
		errorOnOp:   make(map[string]error),
		operations:  make([]MockOperation, 0),
	}

	// Create root directory
	m.files["/"] = &mockFileData{
		name:    "/",
		isDir:   true,
		mode:    fs.ModeDir | 0755,
		modTime: time.Now(),
	}

	return m
}

// AddFile adds a file to the mock filesystem.
func (m *MockBackend) AddFile(path string, content []byte, mode fs.FileMode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = normalizeMockPath(path)
	m.files[path] = &mockFileData{
		name:    pathBase(path),
		content: content,
		mode:    mode,
		modTime: time.Now(),
	}

	m.ensureParentDirs(path)
}

// AddDir adds a directory to the mock filesystem.
func (m *MockBackend) AddDir(path string, mode fs.FileMode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = normalizeMockPath(path)
	m.files[path] = &mockFileData{
		name:    pathBase(path),
		isDir:   true,
		mode:    fs.ModeDir | mode,
		modTime: time.Now(),
	}

	m.ensureParentDirs(path)
}

// SetModTime sets the modification time of an existing entry.
func (m *MockBackend) SetModTime(path string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[normalizeMockPath(path)]; ok {
		f.modTime = t
	}
}

// SetAttributes sets the Windows attributes of an existing entry.
func (m *MockBackend) SetAttributes(path string, attrs uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[normalizeMockPath(path)]; ok {
		f.attrs = attrs
	}
}

// SetError sets an error to return for any operation on a specific path.
func (m *MockBackend) SetError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorOnPath[normalizeMockPath(path)] = err
}

// SetOperationError sets an error to return for a specific operation type.
func (m *MockBackend) SetOperationError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorOnOp[op] = err
}

// ClearErrors clears all injected errors.
func (m *MockBackend) ClearErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorOnPath = make(map[string]error)
	m.errorOnOp = make(map[string]error)
}

// GetOperations returns all recorded operations.
func (m *MockBackend) GetOperations() []MockOperation {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	ops := make([]MockOperation, len(m.operations))
	copy(ops, m.operations)
	return ops
}

// CountOperations returns how many times op was recorded.
func (m *MockBackend) CountOperations(op string) int {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	n := 0
	for _, o := range m.operations {
		if o.Op == op {
			n++
		}
	}
	return n
}

// ClearOperations clears the operation history.
func (m *MockBackend) ClearOperations() {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.operations = make([]MockOperation, 0)
}

// GetFile returns the content of a file (for test verification).
func (m *MockBackend) GetFile(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	path = normalizeMockPath(path)
	if f, ok := m.files[path]; ok && !f.isDir {
		content := make([]byte, len(f.content))
		copy(content, f.content)
		return content, true
	}
	return nil, false
}

// FileExists returns true if the file exists.
func (m *MockBackend) FileExists(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[normalizeMockPath(path)]
	return ok
}

// recordOp records an operation for later verification.
func (m *MockBackend) recordOp(op, path string, args ...interface{}) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.operations = append(m.operations, MockOperation{
		Op:   op,
		Path: path,
		Args: args,
		Time: time.Now(),
	})
}

// checkError checks for injected errors.
func (m *MockBackend) checkError(op, path string) error {
	if err, ok := m.errorOnOp[op]; ok {
		return err
	}
	if err, ok := m.errorOnPath[path]; ok {
		return err
	}
	return nil
}

// ensureParentDirs ensures all parent directories exist.
func (m *MockBackend) ensureParentDirs(p string) {
	dir := pathDir(p)
	if dir == p || dir == "/" {
		return
	}

	if _, ok := m.files[dir]; !ok {
		m.files[dir] = &mockFileData{
			name:    pathBase(dir),
			isDir:   true,
			mode:    fs.ModeDir | 0755,
			modTime: time.Now(),
		}
		m.ensureParentDirs(dir)
	}
}

// normalizeMockPath normalizes a path for the mock filesystem.
func normalizeMockPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func pathBase(p string) string {
	return path.Base(p)
}

func pathDir(p string) string {
	return path.Dir(p)
}

// MockConnector implements Connector over a MockBackend.
type MockConnector struct {
	Backend *MockBackend

	// Error to return on Connect
	ConnectError error

	mu              sync.Mutex
	connectionsMade int
	connectAttempts int
	closed          int
}

// NewMockConnector creates a new mock connector.
func NewMockConnector(backend *MockBackend) *MockConnector {
	return &MockConnector{
		Backend: backend,
	}
}

// Connect returns a share over the backend.
func (c *MockConnector) Connect(ctx context.Context) (Share, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectAttempts++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.ConnectError != nil {
		return nil, c.ConnectError
	}

	c.connectionsMade++
	c.Backend.recordOp("connect", "")
	return &MockShare{backend: c.Backend, connector: c}, nil
}

// SetConnectError makes subsequent Connect calls fail with err.
func (c *MockConnector) SetConnectError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ConnectError = err
}

// ConnectionsMade returns the number of successful connections.
func (c *MockConnector) ConnectionsMade() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectionsMade
}

// ConnectAttempts returns the total connection attempts.
func (c *MockConnector) ConnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectAttempts
}

// OpenConnections returns connections made and not yet closed.
func (c *MockConnector) OpenConnections() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectionsMade - c.closed
}

// MockShare implements Share for testing.
type MockShare struct {
	backend   *MockBackend
	connector *MockConnector
	closed    bool
	mu        sync.Mutex
}

func (sh *MockShare) checkOpen() error {
	if sh.closed {
		return ErrConnectionClosed
	}
	return nil
}

// OpenFile opens a file with the specified flags and permissions.
func (sh *MockShare) OpenFile(name string, flag int, perm fs.FileMode) (RemoteFile, error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if err := sh.checkOpen(); err != nil {
		return nil, err
	}

	sh.backend.mu.Lock()
	defer sh.backend.mu.Unlock()

	name = normalizeMockPath(name)

	if err := sh.backend.checkError("open", name); err != nil {
		return nil, err
	}

	sh.backend.recordOp("open", name, flag, perm)

	data, exists := sh.backend.files[name]

	create := flag&os.O_CREATE != 0
	excl := flag&os.O_EXCL != 0
	trunc := flag&os.O_TRUNC != 0

	if excl && exists {
		return nil, fs.ErrExist
	}

	if !exists {
		if !create {
			return nil, fs.ErrNotExist
		}
		parent, ok := sh.backend.files[pathDir(name)]
		if !ok || !parent.isDir {
			return nil, fs.ErrNotExist
		}

		data = &mockFileData{
			name:    pathBase(name),
			content: []byte{},
			mode:    perm,
			modTime: time.Now(),
		}
		sh.backend.files[name] = data
	}

	// Can't open a directory for writing
	if data.isDir && (flag&(os.O_WRONLY|os.O_RDWR) != 0) {
		return nil, ErrIsDirectory
	}

	if trunc && !data.isDir {
		data.content = []byte{}
		data.modTime = time.Now()
	}

	return &MockFile{
		backend: sh.backend,
		path:    name,
		data:    data,
		flag:    flag,
	}, nil
}

// Stat returns file info for the specified path.
func (sh *MockShare) Stat(name string) (fs.FileInfo, error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if err := sh.checkOpen(); err != nil {
		return nil, err
	}

	sh.backend.mu.RLock()
	defer sh.backend.mu.RUnlock()

	name = normalizeMockPath(name)

	if err := sh.backend.checkError("stat", name); err != nil {
		return nil, err
	}

	sh.backend.recordOp("stat", name)

	data, exists := sh.backend.files[name]
	if !exists {
		return nil, fs.ErrNotExist
	}

	return data.info(), nil
}

// ReadDir returns the direct children of a directory sorted by name.
func (sh *MockShare) ReadDir(name string) ([]fs.FileInfo, error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if err := sh.checkOpen(); err != nil {
		return nil, err
	}

	sh.backend.mu.RLock()
	defer sh.backend.mu.RUnlock()

	name = normalizeMockPath(name)

	if err := sh.backend.checkError("readdir", name); err != nil {
		return nil, err
	}

	sh.backend.recordOp("readdir", name)

	data, exists := sh.backend.files[name]
	if !exists {
		return nil, fs.ErrNotExist
	}
	if !data.isDir {
		return nil, ErrNotDirectory
	}

	prefix := name
	if prefix != "/" {
		prefix += "/"
	}

	var infos []fs.FileInfo
	for p, d := range sh.backend.files {
		if p == name || !strings.HasPrefix(p, prefix) {
			continue
		}
		// Direct children only
		if strings.Contains(strings.TrimPrefix(p, prefix), "/") {
			continue
		}
		infos = append(infos, d.info())
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name() < infos[j].Name()
	})

	return infos, nil
}

// Mkdir creates a directory.
func (sh *MockShare) Mkdir(name string, perm fs.FileMode) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if err := sh.checkOpen(); err != nil {
		return err
	}

	sh.backend.mu.Lock()
	defer sh.backend.mu.Unlock()

	name = normalizeMockPath(name)

	if err := sh.backend.checkError("mkdir", name); err != nil {
		return err
	}

	sh.backend.recordOp("mkdir", name, perm)

	if _, exists := sh.backend.files[name]; exists {
		return fs.ErrExist
	}

	// No recursive creation, like the protocol
	parentData, parentExists := sh.backend.files[pathDir(name)]
	if !parentExists {
		return fs.ErrNotExist
	}
	if !parentData.isDir {
		return ErrNotDirectory
	}

	sh.backend.files[name] = &mockFileData{
		name:    pathBase(name),
		isDir:   true,
		mode:    fs.ModeDir | perm,
		modTime: time.Now(),
	}

	return nil
}

// Remove removes a file or empty directory.
func (sh *MockShare) Remove(name string) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if err := sh.checkOpen(); err != nil {
		return err
	}

	sh.backend.mu.Lock()
	defer sh.backend.mu.Unlock()

	name = normalizeMockPath(name)

	if err := sh.backend.checkError("remove", name); err != nil {
		return err
	}

	sh.backend.recordOp("remove", name)

	data, exists := sh.backend.files[name]
	if !exists {
		return fs.ErrNotExist
	}

	if data.isDir {
		for p := range sh.backend.files {
			if p != name && strings.HasPrefix(p, name+"/") {
				return ErrDirectoryNotEmpty
			}
		}
	}

	delete(sh.backend.files, name)
	return nil
}

// Rename renames a file or directory.
func (sh *MockShare) Rename(oldname, newname string) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if err := sh.checkOpen(); err != nil {
		return err
	}

	sh.backend.mu.Lock()
	defer sh.backend.mu.Unlock()

	oldname = normalizeMockPath(oldname)
	newname = normalizeMockPath(newname)

	if err := sh.backend.checkError("rename", oldname); err != nil {
		return err
	}

	sh.backend.recordOp("rename", oldname, newname)

	data, exists := sh.backend.files[oldname]
	if !exists {
		return fs.ErrNotExist
	}

	if _, exists := sh.backend.files[newname]; exists {
		return fs.ErrExist
	}

	delete(sh.backend.files, oldname)
	data.name = pathBase(newname)
	sh.backend.files[newname] = data

	// If directory, also rename all children
	if data.isDir {
		for p, d := range sh.backend.files {
			if strings.HasPrefix(p, oldname+"/") {
				newPath := newname + strings.TrimPrefix(p, oldname)
				delete(sh.backend.files, p)
				sh.backend.files[newPath] = d
			}
		}
	}

	return nil
}

// Close closes the share.
func (sh *MockShare) Close() error {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if sh.closed {
		return nil
	}
	sh.closed = true

	sh.backend.recordOp("umount", "")
	if sh.connector != nil {
		sh.connector.mu.Lock()
		sh.connector.closed++
		sh.connector.mu.Unlock()
	}
	return nil
}

// MockFile implements RemoteFile for testing.
type MockFile struct {
	backend *MockBackend
	path    string
	data    *mockFileData
	flag    int
	offset  int64
	closed  bool
	mu      sync.Mutex
}

// Read reads up to len(p) bytes into p.
func (f *MockFile) Read(p []byte) (n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, fs.ErrClosed
	}

	f.backend.mu.RLock()
	defer f.backend.mu.RUnlock()

	if err := f.backend.checkError("read", f.path); err != nil {
		return 0, err
	}

	if f.data.isDir {
		return 0, ErrIsDirectory
	}

	if f.offset >= int64(len(f.data.content)) {
		return 0, io.EOF
	}

	n = copy(p, f.data.content[f.offset:])
	f.offset += int64(n)

	if f.offset >= int64(len(f.data.content)) {
		return n, io.EOF
	}

	return n, nil
}

// Write writes len(p) bytes from p to the file.
func (f *MockFile) Write(p []byte) (n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, fs.ErrClosed
	}

	if f.flag&(os.O_WRONLY|os.O_RDWR) == 0 {
		return 0, errors.New("file not opened for writing")
	}

	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()

	if err := f.backend.checkError("write", f.path); err != nil {
		return 0, err
	}

	endOffset := f.offset + int64(len(p))
	if endOffset > int64(len(f.data.content)) {
		newContent := make([]byte, endOffset)
		copy(newContent, f.data.content)
		f.data.content = newContent
	}

	n = copy(f.data.content[f.offset:], p)
	f.offset += int64(n)
	f.data.modTime = time.Now()

	return n, nil
}

// Seek sets the offset for the next Read or Write.
func (f *MockFile) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, fs.ErrClosed
	}

	f.backend.mu.RLock()
	size := int64(len(f.data.content))
	f.backend.mu.RUnlock()

	var newOffset int64
	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekCurrent:
		newOffset = f.offset + offset
	case io.SeekEnd:
		newOffset = size + offset
	default:
		return 0, errors.New("invalid whence")
	}

	if newOffset < 0 {
		return 0, errors.New("negative offset")
	}

	f.offset = newOffset
	return newOffset, nil
}

// Sync records a flush of the file.
func (f *MockFile) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fs.ErrClosed
	}

	f.backend.mu.RLock()
	err := f.backend.checkError("sync", f.path)
	f.backend.mu.RUnlock()
	if err != nil {
		return err
	}

	f.backend.recordOp("sync", f.path)
	return nil
}

// Close closes the file.
func (f *MockFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}

	f.closed = true
	f.backend.recordOp("close", f.path)
	return nil
}

// Stat returns file information.
func (f *MockFile) Stat() (fs.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, fs.ErrClosed
	}

	f.backend.mu.RLock()
	defer f.backend.mu.RUnlock()

	if err := f.backend.checkError("stat", f.path); err != nil {
		return nil, err
	}

	return f.data.info(), nil
}

// info snapshots the entry; callers hold the backend lock.
func (d *mockFileData) info() *mockFileInfo {
	return &mockFileInfo{
		name:    d.name,
		size:    int64(len(d.content)),
		mode:    d.mode,
		modTime: d.modTime,
		attrs:   d.attrs,
		isDir:   d.isDir,
	}
}

// mockFileInfo implements fs.FileInfo for mock files.
type mockFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	attrs   uint32
	isDir   bool
}

func (fi *mockFileInfo) Name() string           { return fi.name }
func (fi *mockFileInfo) Size() int64            { return fi.size }
func (fi *mockFileInfo) Mode() fs.FileMode      { return fi.mode }
func (fi *mockFileInfo) ModTime() time.Time     { return fi.modTime }
func (fi *mockFileInfo) IsDir() bool            { return fi.isDir }
func (fi *mockFileInfo) Sys() interface{}       { return nil }
func (fi *mockFileInfo) FileAttributes() uint32 { return fi.attrs }
