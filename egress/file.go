package egress

import (
	"bufio"
	"context"
	"os"
	"sync/atomic"

	"github.com/pipebuffer/pipebuffer/internal/config"
	"github.com/pipebuffer/pipebuffer/internal/telemetry"
)

//////////////
//  CONFIG  //
//////////////

// DefaultFileConfigBufferSize is the default size of the bufio writer
// placed in front of the file.
const DefaultFileConfigBufferSize = 64 * 1024

// FileConfig contains the configuration for the file egress stage.
type FileConfig struct {
	// Path is the path to the file.
	Path string

	// BufferSize is the size of the write buffer in front of the file.
	//
	// Default: 64 KiB
	BufferSize int

	// StagingSize is the size of the staging buffer the shared buffer
	// is drained into before writing to the file.
	//
	// Default: 64 KiB
	StagingSize int
}

// DefaultFileConfig returns the default configuration for the file egress stage.
func DefaultFileConfig(path string) *FileConfig {
	return &FileConfig{
		Path:        path,
		BufferSize:  DefaultFileConfigBufferSize,
		StagingSize: DefaultStagingSize,
	}
}

// Validate checks the configuration.
func (c *FileConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotNegative(ac, "BufferSize", &c.BufferSize, DefaultFileConfigBufferSize)
	config.CheckNotZero(ac, "BufferSize", &c.BufferSize, DefaultFileConfigBufferSize)

	config.CheckNotNegative(ac, "StagingSize", &c.StagingSize, DefaultStagingSize)
	config.CheckNotZero(ac, "StagingSize", &c.StagingSize, DefaultStagingSize)
}

////////////
//  SINK  //
////////////

var _ sink = (*fileSink)(nil)

type fileSink struct {
	tel *telemetry.Telemetry

	cfg *FileConfig

	file   *os.File
	writer *bufio.Writer

	// Metrics
	writtenBytes  atomic.Int64
	writtenChunks atomic.Int64
}

func newFileSink(cfg *FileConfig) *fileSink {
	return &fileSink{
		cfg: cfg,
	}
}

func (fs *fileSink) setTelemetry(tel *telemetry.Telemetry) {
	fs.tel = tel
}

func (fs *fileSink) init() error {
	// Open the file as append only
	file, err := os.OpenFile(fs.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	fs.file = file
	fs.writer = bufio.NewWriterSize(file, fs.cfg.BufferSize)

	fs.initMetrics()

	return nil
}

func (fs *fileSink) initMetrics() {
	fs.tel.NewCounter("written_bytes", func() int64 { return fs.writtenBytes.Load() })
	fs.tel.NewCounter("written_chunks", func() int64 { return fs.writtenChunks.Load() })
}

func (fs *fileSink) run(_ context.Context, in *byteBuf) {
	staging := make([]byte, fs.cfg.StagingSize)

	drain(fs.tel, in, fs.writer, staging, func(n int) {
		fs.writtenBytes.Add(int64(n))
		fs.writtenChunks.Add(1)
	})
}

func (fs *fileSink) close() {
	if fs.file == nil {
		return
	}

	if err := fs.writer.Flush(); err != nil {
		fs.tel.LogError("failed to flush writer", err, "path", fs.cfg.Path)
	}

	if err := fs.file.Sync(); err != nil {
		fs.tel.LogError("failed to sync file", err, "path", fs.cfg.Path)
	}

	if err := fs.file.Close(); err != nil {
		fs.tel.LogError("failed to close file", err, "path", fs.cfg.Path)
	}
}

/////////////
//  STAGE  //
/////////////

// FileStage is an egress stage that appends the stream to a file.
type FileStage struct {
	*stage

	sink *fileSink
}

// NewFileStage returns a new file egress stage.
func NewFileStage(in *byteBuf, cfg *FileConfig) *FileStage {
	sink := newFileSink(cfg)

	return &FileStage{
		stage: newStage("file", sink, in, cfg),

		sink: sink,
	}
}

// Init initializes the stage.
func (fs *FileStage) Init(ctx context.Context) error {
	if err := fs.stage.Init(ctx); err != nil {
		return err
	}

	return fs.sink.init()
}
