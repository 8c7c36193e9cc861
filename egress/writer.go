package egress

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/pipebuffer/pipebuffer/internal/config"
	"github.com/pipebuffer/pipebuffer/internal/telemetry"
)

//////////////
//  CONFIG  //
//////////////

// WriterConfig contains the configuration for the writer egress stage.
type WriterConfig struct {
	// StagingSize is the size of the staging buffer the shared buffer
	// is drained into before writing downstream.
	//
	// Default: 64 KiB
	StagingSize int
}

// DefaultWriterConfig returns the default configuration for the writer egress stage.
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{
		StagingSize: DefaultStagingSize,
	}
}

// Validate checks the configuration.
func (c *WriterConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotNegative(ac, "StagingSize", &c.StagingSize, DefaultStagingSize)
	config.CheckNotZero(ac, "StagingSize", &c.StagingSize, DefaultStagingSize)
}

////////////
//  SINK  //
////////////

var _ sink = (*writerSink)(nil)

type writerSink struct {
	tel *telemetry.Telemetry

	writer io.Writer

	stagingSize int

	// Metrics
	writtenBytes  atomic.Int64
	writtenChunks atomic.Int64
}

func newWriterSink(writer io.Writer) *writerSink {
	return &writerSink{
		writer: writer,
	}
}

func (ws *writerSink) setTelemetry(tel *telemetry.Telemetry) {
	ws.tel = tel
}

func (ws *writerSink) init(stagingSize int) {
	ws.stagingSize = stagingSize

	ws.initMetrics()
}

func (ws *writerSink) initMetrics() {
	ws.tel.NewCounter("written_bytes", func() int64 { return ws.writtenBytes.Load() })
	ws.tel.NewCounter("written_chunks", func() int64 { return ws.writtenChunks.Load() })
}

func (ws *writerSink) run(_ context.Context, in *byteBuf) {
	staging := make([]byte, ws.stagingSize)

	drain(ws.tel, in, ws.writer, staging, func(n int) {
		ws.writtenBytes.Add(int64(n))
		ws.writtenChunks.Add(1)
	})
}

func (ws *writerSink) close() {}

/////////////
//  STAGE  //
/////////////

// WriterStage is an egress stage that streams bytes to an io.Writer.
type WriterStage struct {
	*stage

	sink *writerSink

	cfg *WriterConfig
}

// NewWriterStage returns a new writer egress stage.
func NewWriterStage(name string, writer io.Writer, in *byteBuf, cfg *WriterConfig) *WriterStage {
	sink := newWriterSink(writer)

	return &WriterStage{
		stage: newStage(name, sink, in, cfg),

		sink: sink,

		cfg: cfg,
	}
}

// Init initializes the stage.
func (ws *WriterStage) Init(ctx context.Context) error {
	if err := ws.stage.Init(ctx); err != nil {
		return err
	}

	ws.sink.init(ws.cfg.StagingSize)

	return nil
}
