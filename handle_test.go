package smbclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle_Connect(t *testing.T) {
	connector := NewMockConnector(NewMockBackend())
	h := NewHandleBuilder(testConfig(), connector).Build()
	ctx := context.Background()

	assert.False(t, h.Connected())
	require.NoError(t, h.Connect(ctx))
	require.NoError(t, h.Connect(ctx))
	assert.True(t, h.Connected())
	assert.Equal(t, 1, connector.ConnectionsMade())
	assert.Len(t, h.ID(), 8)

	require.NoError(t, h.Close())
	assert.False(t, h.Connected())
	assert.Equal(t, 0, connector.OpenConnections())
	require.NoError(t, h.Close())

	// Closed handles reconnect
	require.NoError(t, h.Connect(ctx))
	assert.Equal(t, 2, connector.ConnectionsMade())
	require.NoError(t, h.Close())
}

func TestHandle_ConnectRetry(t *testing.T) {
	connector := NewMockConnector(NewMockBackend())
	connector.SetConnectError(&mockNetError{error: errors.New("connection reset"), temporary: true})

	cfg := testConfig()
	cfg.RetryPolicy = fastPolicy(3)
	h := NewHandleBuilder(cfg, connector).Build()

	err := h.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect:")
	assert.Equal(t, 3, connector.ConnectAttempts())
	assert.False(t, h.Connected())
}

func TestHandle_ConcurrentConnectKeepsOneShare(t *testing.T) {
	mock := NewMockConnector(NewMockBackend())
	var dialing sync.WaitGroup
	dialing.Add(2)
	connector := ConnectorFunc(func(ctx context.Context) (Share, error) {
		// Both callers dial before either stores its share.
		dialing.Done()
		dialing.Wait()
		return mock.Connect(ctx)
	})
	h := NewHandleBuilder(testConfig(), connector).Build()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.Connect(context.Background()))
		}()
	}
	wg.Wait()

	assert.True(t, h.Connected())
	assert.Equal(t, 2, mock.ConnectionsMade())
	assert.Equal(t, 1, mock.OpenConnections(), "the losing share is closed")

	require.NoError(t, h.Close())
	assert.Equal(t, 0, mock.OpenConnections())
}

func TestHandle_NotConnected(t *testing.T) {
	h := NewHandleBuilder(testConfig(), NewMockConnector(NewMockBackend())).Build()

	_, err := h.Stat("a.txt")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, h.MkdirAll("a/b"), ErrNotConnected)
	assert.ErrorIs(t, h.Remove("a.txt"), ErrNotConnected)
	assert.ErrorIs(t, h.Rename("a.txt", "b.txt"), ErrNotConnected)
}

func TestHandle_Metadata(t *testing.T) {
	backend := NewMockBackend()
	backend.AddFile("docs/a.txt", []byte("hello"), 0644)
	h := newTestHandle(t, backend, TransferConfig{})
	require.NoError(t, h.Connect(context.Background()))

	ok, err := h.Exists("docs/a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Exists("docs/b.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	isDir, err := h.IsDir("docs")
	require.NoError(t, err)
	assert.True(t, isDir)

	isDir, err = h.IsDir("docs/a.txt")
	require.NoError(t, err)
	assert.False(t, isDir)

	isDir, err = h.IsDir("nowhere")
	require.NoError(t, err)
	assert.False(t, isDir)

	n, err := h.Length("docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	_, err = h.Stat("../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidPath)

	backend.SetError("docs/broken", errors.New("access denied"))
	_, err = h.Exists("docs/broken")
	assert.Error(t, err, "only missing entries are reported as absent")
}

func TestHandle_MkdirAll(t *testing.T) {
	backend := NewMockBackend()
	backend.AddFile("a/file", []byte("x"), 0644)
	h := newTestHandle(t, backend, TransferConfig{})
	require.NoError(t, h.Connect(context.Background()))

	require.NoError(t, h.MkdirAll("x/y/z"))
	assert.True(t, backend.FileExists("x/y/z"))
	assert.Equal(t, 3, backend.CountOperations("mkdir"))

	backend.ClearOperations()
	require.NoError(t, h.MkdirAll("x/y/z"))
	assert.Equal(t, 0, backend.CountOperations("mkdir"))

	err := h.MkdirAll("a/file/sub")
	assert.ErrorIs(t, err, ErrNotDirectory)
	var pe *PathError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "mkdir", pe.Op)
}

func TestHandle_RemoveRename(t *testing.T) {
	backend := NewMockBackend()
	backend.AddFile("d/a.txt", []byte("x"), 0644)
	h := newTestHandle(t, backend, TransferConfig{})
	require.NoError(t, h.Connect(context.Background()))

	assert.ErrorIs(t, h.Remove("d"), ErrDirectoryNotEmpty)
	require.NoError(t, h.Rename("d/a.txt", "d/b.txt"))
	assert.True(t, backend.FileExists("d/b.txt"))
	assert.ErrorIs(t, h.Rename("d/b.txt", "../b.txt"), ErrInvalidPath)
	require.NoError(t, h.Remove("d/b.txt"))
	require.NoError(t, h.Remove("d"))
	assert.False(t, backend.FileExists("d"))
}

func TestHandle_Settings(t *testing.T) {
	h := newTestHandle(t, NewMockBackend(), TransferConfig{BufferSize: 16})

	assert.Equal(t, 16, h.Options().BufferSize)
	assert.Equal(t, DefaultChannelBufferSize, h.Options().ChannelReadBufferSize)

	h.SetOptions(TransferConfig{AutoFlush: true})
	assert.Equal(t, DefaultBufferSize, h.Options().BufferSize)
	assert.True(t, h.Options().AutoFlush)

	h.SetRestartOffset(-5)
	assert.Equal(t, int64(0), h.RestartOffset())
	h.SetRestartOffset(42)
	assert.Equal(t, int64(42), h.RestartOffset())

	h.SetProgressListener(ProgressFunc(func(_, _, _ int64) {}))
	h.reset()
	assert.Equal(t, int64(0), h.RestartOffset())
	assert.Nil(t, h.progressListener())
}

func TestHandle_OneTransferAtATime(t *testing.T) {
	backend := NewMockBackend()
	backend.AddFile("a.txt", []byte("hello"), 0644)
	h := newTestHandle(t, backend, TransferConfig{})
	ctx := context.Background()

	rc, err := h.OpenReader(ctx, "a.txt", 0)
	require.NoError(t, err)
	assert.True(t, h.Busy())

	_, err = h.Upload(ctx, bytes.NewReader([]byte("x")), 1, "b.txt", true)
	assert.ErrorIs(t, err, ErrHandleBusy)

	// reset leaves a busy handle alone
	h.SetRestartOffset(3)
	h.reset()
	assert.Equal(t, int64(3), h.RestartOffset())

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	require.NoError(t, rc.Close())
	assert.False(t, h.Busy())
	assert.Equal(t, int64(0), h.RestartOffset())
}
