package ingress

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

// ReaderConfig contains the configuration for the reader ingress stage.
type ReaderConfig struct {
	// StagingSize is the size of the staging buffer used to batch reads
	// from the source before copying them into the shared buffer.
	//
	// Default: 64 KiB
	StagingSize int
}

// DefaultReaderConfig returns the default configuration for the reader ingress stage.
func DefaultReaderConfig() *ReaderConfig {
	return &ReaderConfig{
		StagingSize: DefaultStagingSize,
	}
}

// Validate checks the configuration.
func (c *ReaderConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotNegative(ac, "StagingSize", &c.StagingSize, DefaultStagingSize)
	config.CheckNotZero(ac, "StagingSize", &c.StagingSize, DefaultStagingSize)
}

//////////////
//  SOURCE  //
//////////////

var _ source = (*readerSource)(nil)

type readerSource struct {
	tel *telemetry.Telemetry

	reader io.Reader

	stagingSize int

	// Metrics
	readBytes  atomic.Int64
	readChunks atomic.Int64
}

func newReaderSource(reader io.Reader) *readerSource {
	return &readerSource{
		reader: reader,
	}
}

func (rs *readerSource) setTelemetry(tel *telemetry.Telemetry) {
	rs.tel = tel
}

func (rs *readerSource) init(stagingSize int) {
	rs.stagingSize = stagingSize

	rs.initMetrics()
}

func (rs *readerSource) initMetrics() {
	rs.tel.NewCounter("read_bytes", func() int64 { return rs.readBytes.Load() })
	rs.tel.NewCounter("read_chunks", func() int64 { return rs.readChunks.Load() })
}

func (rs *readerSource) run(ctx context.Context, out *byteBuf) {
	staging := make([]byte, rs.stagingSize)

	pump(ctx, rs.tel, rs.reader, out, staging, func(n int) {
		rs.readBytes.Add(int64(n))
		rs.readChunks.Add(1)
	})
}

/////////////
//  STAGE  //
/////////////

// ReaderStage is an ingress stage that streams bytes from an io.Reader.
type ReaderStage struct {
	*stage

	source *readerSource

	cfg *ReaderConfig
}

// NewReaderStage returns a new reader ingress stage.
func NewReaderStage(name string, reader io.Reader, out *byteBuf, cfg *ReaderConfig) *ReaderStage {
	source := newReaderSource(reader)

	return &ReaderStage{
		stage: newStage(name, source, out, cfg),

		source: source,

		cfg: cfg,
	}
}

// Init initializes the stage.
func (rs *ReaderStage) Init(ctx context.Context) error {
	if err := rs.stage.Init(ctx); err != nil {
		return err
	}

	rs.source.init(rs.cfg.StagingSize)

	return nil
}
