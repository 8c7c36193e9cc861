package ingress

import (
	"context"
	"errors"
	"io"

	"github.com/pipebuffer/pipebuffer/internal/config"
	"github.com/pipebuffer/pipebuffer/internal/telemetry"
)

type source interface {
	setTelemetry(tel *telemetry.Telemetry)
	run(ctx context.Context, out *byteBuf)
}

type stage struct {
	tel *telemetry.Telemetry

	source source

	config cfg

	outputBuffer *byteBuf
}

func newStage(name string, source source, out *byteBuf, stageCfg cfg) *stage {
	tel := telemetry.NewTelemetry("ingress", name)
	source.setTelemetry(tel)

	return &stage{
		tel: tel,

		source: source,

		config: stageCfg,

		outputBuffer: out,
	}
}

func (s *stage) Init(_ context.Context) error {
	s.tel.LogInfo("initializing")

	configValidator := config.NewValidator(s.tel)
	configValidator.Validate(s.config)

	return nil
}

func (s *stage) Run(ctx context.Context) {
	s.source.run(ctx, s.outputBuffer)
}

func (s *stage) Close() {
	s.tel.LogInfo("closing")

	// Close the output buffer so a blocked consumer can drain and stop
	s.outputBuffer.CloseWrite()
}

// pump moves bytes from src into the shared buffer one staging chunk at a
// time. It returns when the source is exhausted (the sole normal shutdown
// path), on a fatal read error, or when the buffer is closed underneath it.
// In every case it closes the write side of the buffer before returning,
// so the consumer is guaranteed to drain and terminate.
func pump(ctx context.Context, tel *telemetry.Telemetry, src io.Reader, out *byteBuf, staging []byte, onChunk func(int)) {
	defer out.CloseWrite()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := src.Read(staging)

		if n > 0 {
			if _, werr := out.Write(staging[:n]); werr != nil {
				// The write side was closed underneath the producer,
				// which only happens on early shutdown.
				tel.LogWarn("output buffer closed, stopping", "unwritten_bytes", n)
				return
			}

			if onChunk != nil {
				onChunk(n)
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				tel.LogDebug("source exhausted, closing buffer")
				return
			}

			tel.LogError("failed to read source", err)
			return
		}
	}
}
