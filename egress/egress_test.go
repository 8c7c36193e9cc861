package egress

import (
	"bytes"
	"io"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipebuffer/pipebuffer/buffer"
)

func Test_WriterStage(t *testing.T) {
	assert := assert.New(t)

	input := make([]byte, 10_000)
	rand.New(rand.NewSource(1)).Read(input)

	buf := buffer.New(128)

	go func() {
		buf.Write(input)
		buf.CloseWrite()
	}()

	var output bytes.Buffer

	stage := NewWriterStage("test", &output, buf, DefaultWriterConfig())
	require.NoError(t, stage.Init(t.Context()))

	stage.Run(t.Context())
	stage.Close()

	assert.Equal(input, output.Bytes())
	assert.Equal(int64(len(input)), stage.sink.writtenBytes.Load())
}

// shortWriter accepts at most max bytes per call without reporting an
// error, exercising the partial write retry path.
type shortWriter struct {
	output bytes.Buffer
	max    int
}

func (sw *shortWriter) Write(p []byte) (int, error) {
	if len(p) > sw.max {
		p = p[:sw.max]
	}

	return sw.output.Write(p)
}

func Test_WriterStage_PartialWrites(t *testing.T) {
	input := make([]byte, 1000)
	rand.New(rand.NewSource(2)).Read(input)

	buf := buffer.New(256)

	go func() {
		buf.Write(input)
		buf.CloseWrite()
	}()

	writer := &shortWriter{max: 3}

	stage := NewWriterStage("test", writer, buf, DefaultWriterConfig())
	require.NoError(t, stage.Init(t.Context()))

	stage.Run(t.Context())
	stage.Close()

	assert.Equal(t, input, writer.output.Bytes())
}

type flushCountingWriter struct {
	output  bytes.Buffer
	flushes int
}

func (fw *flushCountingWriter) Write(p []byte) (int, error) {
	return fw.output.Write(p)
}

func (fw *flushCountingWriter) Flush() error {
	fw.flushes++
	return nil
}

func Test_WriterStage_FlushesEachChunk(t *testing.T) {
	assert := assert.New(t)

	input := make([]byte, 500)
	rand.New(rand.NewSource(3)).Read(input)

	buf := buffer.New(64)

	go func() {
		buf.Write(input)
		buf.CloseWrite()
	}()

	writer := &flushCountingWriter{}

	stage := NewWriterStage("test", writer, buf, DefaultWriterConfig())
	require.NoError(t, stage.Init(t.Context()))

	stage.Run(t.Context())
	stage.Close()

	assert.Equal(input, writer.output.Bytes())
	assert.Positive(writer.flushes)
}

func Test_FileStage(t *testing.T) {
	assert := assert.New(t)

	payload := make([]byte, 5000)
	rand.New(rand.NewSource(4)).Read(payload)

	path := filepath.Join(t.TempDir(), "out.log")
	require.NoError(t, os.WriteFile(path, []byte("existing|"), 0644))

	buf := buffer.New(64)

	go func() {
		buf.Write(payload)
		buf.CloseWrite()
	}()

	stage := NewFileStage(buf, DefaultFileConfig(path))
	require.NoError(t, stage.Init(t.Context()))

	stage.Run(t.Context())
	stage.Close()

	got, err := os.ReadFile(path)
	require.NoError(t, err)

	// The sink appends, the pre-existing content survives
	assert.Equal(append([]byte("existing|"), payload...), got)
}

func Test_TCPStage(t *testing.T) {
	assert := assert.New(t)

	payload := make([]byte, 50_000)
	rand.New(rand.NewSource(5)).Read(payload)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			received <- nil
			return
		}
		defer conn.Close()

		data, _ := io.ReadAll(conn)
		received <- data
	}()

	cfg := DefaultTCPConfig()
	cfg.Port = uint16(listener.Addr().(*net.TCPAddr).Port)

	buf := buffer.New(128)

	go func() {
		buf.Write(payload)
		buf.CloseWrite()
	}()

	stage := NewTCPStage(buf, cfg)
	require.NoError(t, stage.Init(t.Context()))

	stage.Run(t.Context())
	stage.Close()

	select {
	case got := <-received:
		assert.Equal(payload, got)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the sink bytes")
	}
}
