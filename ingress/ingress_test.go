package ingress

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipebuffer/pipebuffer/buffer"
)

func Test_ReaderStage(t *testing.T) {
	assert := assert.New(t)

	input := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(input)

	buf := buffer.New(64)

	cfg := DefaultReaderConfig()
	cfg.StagingSize = 128

	stage := NewReaderStage("test", bytes.NewReader(input), buf, cfg)
	require.NoError(t, stage.Init(t.Context()))

	go stage.Run(t.Context())

	output, err := io.ReadAll(buf)
	require.NoError(t, err)

	assert.Equal(input, output)
	assert.Equal(int64(len(input)), stage.source.readBytes.Load())

	stage.Close()
}

func Test_FileStage(t *testing.T) {
	assert := assert.New(t)

	content := make([]byte, 10_000)
	rand.New(rand.NewSource(2)).Read(content)

	path := filepath.Join(t.TempDir(), "input.bin")
	require.NoError(t, os.WriteFile(path, content, 0644))

	buf := buffer.New(512)

	stage := NewFileStage(buf, DefaultFileConfig(path))
	require.NoError(t, stage.Init(t.Context()))

	go stage.Run(t.Context())

	output, err := io.ReadAll(buf)
	require.NoError(t, err)

	assert.Equal(content, output)

	stage.Close()
}

func Test_FileStage_MissingFile(t *testing.T) {
	buf := buffer.New(64)

	stage := NewFileStage(buf, DefaultFileConfig(filepath.Join(t.TempDir(), "missing")))

	assert.Error(t, stage.Init(t.Context()))
}

func Test_FileStage_Follow(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "followed.log")
	require.NoError(t, os.WriteFile(path, []byte("hello "), 0644))

	cfg := DefaultFileConfig(path)
	cfg.Follow = true

	buf := buffer.New(64)

	stage := NewFileStage(buf, cfg)
	require.NoError(t, stage.Init(t.Context()))

	go stage.Run(t.Context())

	got := make([]byte, 6)
	_, err := io.ReadFull(buf, got)
	require.NoError(t, err)
	assert.Equal([]byte("hello "), got)

	// Events for siblings of the followed file must be ignored
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "sibling.log"), []byte("noise"), 0644))

	// Appended bytes must flow through instead of ending the stream
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = file.WriteString("world")
	require.NoError(t, err)
	require.NoError(t, file.Close())

	got = make([]byte, 5)
	_, err = io.ReadFull(buf, got)
	require.NoError(t, err)
	assert.Equal([]byte("world"), got)

	// Removing the file ends the stream
	require.NoError(t, os.Remove(path))

	_, err = buf.Read(make([]byte, 1))
	assert.ErrorIs(err, io.EOF)

	stage.Close()
}

func Test_FileStage_FollowRename(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "followed.log")
	require.NoError(t, os.WriteFile(path, []byte("tail me"), 0644))

	cfg := DefaultFileConfig(path)
	cfg.Follow = true

	buf := buffer.New(64)

	stage := NewFileStage(buf, cfg)
	require.NoError(t, stage.Init(t.Context()))

	go stage.Run(t.Context())

	got := make([]byte, 7)
	_, err := io.ReadFull(buf, got)
	require.NoError(t, err)
	assert.Equal([]byte("tail me"), got)

	// Renaming the file ends the stream, as for log rotation
	require.NoError(t, os.Rename(path, filepath.Join(dir, "rotated.log")))

	_, err = buf.Read(make([]byte, 1))
	assert.ErrorIs(err, io.EOF)

	stage.Close()
}

func Test_TCPStage(t *testing.T) {
	assert := assert.New(t)

	payload := make([]byte, 50_000)
	rand.New(rand.NewSource(3)).Read(payload)

	cfg := DefaultTCPConfig()
	cfg.IPAddr = "127.0.0.1"
	cfg.Port = freePort(t)

	buf := buffer.New(256)

	stage := NewTCPStage(buf, cfg)
	require.NoError(t, stage.Init(t.Context()))

	go stage.Run(t.Context())

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Port))
	require.NoError(t, err)

	go func() {
		conn.Write(payload)
		conn.Close()
	}()

	output, err := io.ReadAll(buf)
	require.NoError(t, err)

	assert.Equal(payload, output)

	stage.Close()
}

func freePort(t *testing.T) uint16 {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	return uint16(port)
}
