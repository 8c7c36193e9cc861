package egress

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pipebuffer/pipebuffer/internal/config"
	"github.com/pipebuffer/pipebuffer/internal/telemetry"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the Kafka egress stage configuration.
const (
	DefaultKafkaConfigTopic        = "pipebuffer"
	DefaultKafkaConfigMaxAttempts  = 10
	DefaultKafkaConfigBatchTimeout = time.Second
	DefaultKafkaConfigWriteTimeout = 10 * time.Second
)

// DefaultKafkaConfigBrokers is the default list of Kafka brokers.
var DefaultKafkaConfigBrokers = []string{"localhost:9092"}

// KafkaConfig contains the configuration for the Kafka egress stage.
type KafkaConfig struct {
	// Brokers is the list of Kafka brokers to connect to.
	//
	// Default: localhost:9092
	Brokers []string

	// Topic is the topic each drained chunk is published to.
	//
	// Default: pipebuffer
	Topic string

	// MaxAttempts limits how many attempts will be made to deliver a chunk.
	//
	// Default: 10
	MaxAttempts int

	// BatchTimeout is the time limit on how often incomplete batches
	// are flushed to Kafka.
	//
	// Default: 1s
	BatchTimeout time.Duration

	// WriteTimeout is the timeout for write operations.
	//
	// Default: 10s
	WriteTimeout time.Duration

	// Compression sets the codec used to compress chunks.
	Compression kafka.Compression

	// StagingSize is the size of the staging buffer the shared buffer
	// is drained into; it bounds the size of a published message.
	//
	// Default: 64 KiB
	StagingSize int
}

// DefaultKafkaConfig returns the default configuration for the Kafka egress stage.
func DefaultKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Brokers:      DefaultKafkaConfigBrokers,
		Topic:        DefaultKafkaConfigTopic,
		MaxAttempts:  DefaultKafkaConfigMaxAttempts,
		BatchTimeout: DefaultKafkaConfigBatchTimeout,
		WriteTimeout: DefaultKafkaConfigWriteTimeout,
		Compression:  kafka.Snappy,
		StagingSize:  DefaultStagingSize,
	}
}

// Validate checks the configuration.
func (c *KafkaConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckLen(ac, "Brokers", &c.Brokers, DefaultKafkaConfigBrokers)
	config.CheckNotEmpty(ac, "Topic", &c.Topic, DefaultKafkaConfigTopic)

	config.CheckNotNegative(ac, "MaxAttempts", &c.MaxAttempts, DefaultKafkaConfigMaxAttempts)
	config.CheckNotZero(ac, "MaxAttempts", &c.MaxAttempts, DefaultKafkaConfigMaxAttempts)

	config.CheckNotNegative(ac, "BatchTimeout", &c.BatchTimeout, DefaultKafkaConfigBatchTimeout)
	config.CheckNotZero(ac, "BatchTimeout", &c.BatchTimeout, DefaultKafkaConfigBatchTimeout)

	config.CheckNotNegative(ac, "WriteTimeout", &c.WriteTimeout, DefaultKafkaConfigWriteTimeout)
	config.CheckNotZero(ac, "WriteTimeout", &c.WriteTimeout, DefaultKafkaConfigWriteTimeout)

	config.CheckNotNegative(ac, "StagingSize", &c.StagingSize, DefaultStagingSize)
	config.CheckNotZero(ac, "StagingSize", &c.StagingSize, DefaultStagingSize)
}

////////////
//  SINK  //
////////////

var _ sink = (*kafkaSink)(nil)

type kafkaSink struct {
	tel *telemetry.Telemetry

	cfg *KafkaConfig

	writer *kafka.Writer

	// Metrics
	deliveredBytes  atomic.Int64
	deliveredChunks atomic.Int64
}

func newKafkaSink(cfg *KafkaConfig) *kafkaSink {
	return &kafkaSink{
		cfg: cfg,
	}
}

func (ks *kafkaSink) setTelemetry(tel *telemetry.Telemetry) {
	ks.tel = tel
}

func (ks *kafkaSink) init() {
	// Synchronous writer: a delivered chunk is flushed, matching the
	// per-chunk flush contract of the other sinks.
	ks.writer = &kafka.Writer{
		Addr:         kafka.TCP(ks.cfg.Brokers...),
		Topic:        ks.cfg.Topic,
		Balancer:     &kafka.RoundRobin{},
		MaxAttempts:  ks.cfg.MaxAttempts,
		BatchTimeout: ks.cfg.BatchTimeout,
		WriteTimeout: ks.cfg.WriteTimeout,
		Compression:  ks.cfg.Compression,
		Async:        false,
	}

	ks.initMetrics()
}

func (ks *kafkaSink) initMetrics() {
	ks.tel.NewCounter("delivered_bytes", func() int64 { return ks.deliveredBytes.Load() })
	ks.tel.NewCounter("delivered_chunks", func() int64 { return ks.deliveredChunks.Load() })
}

func (ks *kafkaSink) run(ctx context.Context, in *byteBuf) {
	staging := make([]byte, ks.cfg.StagingSize)

	for {
		n, err := in.Read(staging)

		if n > 0 {
			if derr := ks.deliver(ctx, staging[:n]); derr != nil {
				ks.tel.LogError("failed to deliver chunk", derr, "topic", ks.cfg.Topic)
				return
			}
		}

		if err != nil {
			ks.tel.LogDebug("buffer drained, stopping")
			return
		}
	}
}

func (ks *kafkaSink) deliver(ctx context.Context, chunk []byte) error {
	ctx, span := ks.tel.NewTrace(ctx, "deliver kafka chunk")
	defer span.End()

	// The staging buffer is reused, the message value must own its bytes
	value := make([]byte, len(chunk))
	copy(value, chunk)

	if err := ks.writer.WriteMessages(ctx, kafka.Message{Value: value}); err != nil {
		return err
	}

	span.SetAttributes(attribute.Int("chunk_size", len(chunk)))

	ks.deliveredBytes.Add(int64(len(chunk)))
	ks.deliveredChunks.Add(1)

	return nil
}

func (ks *kafkaSink) close() {
	if ks.writer == nil {
		return
	}

	if err := ks.writer.Close(); err != nil {
		ks.tel.LogError("failed to close kafka writer", err)
	}
}

/////////////
//  STAGE  //
/////////////

// KafkaStage is an egress stage that publishes each drained chunk as a
// message to a Kafka topic.
type KafkaStage struct {
	*stage

	sink *kafkaSink
}

// NewKafkaStage returns a new Kafka egress stage.
func NewKafkaStage(in *byteBuf, cfg *KafkaConfig) *KafkaStage {
	sink := newKafkaSink(cfg)

	return &KafkaStage{
		stage: newStage("kafka", sink, in, cfg),

		sink: sink,
	}
}

// Init initializes the stage.
func (ks *KafkaStage) Init(ctx context.Context) error {
	if err := ks.stage.Init(ctx); err != nil {
		return err
	}

	ks.sink.init()

	return nil
}
