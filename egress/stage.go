package egress

import (
	"context"
	"io"

	"github.com/pipebuffer/pipebuffer/internal/config"
	"github.com/pipebuffer/pipebuffer/internal/telemetry"
)

type sink interface {
	setTelemetry(tel *telemetry.Telemetry)
	run(ctx context.Context, in *byteBuf)
	close()
}

type stage struct {
	tel *telemetry.Telemetry

	sink sink

	config cfg

	inputBuffer *byteBuf
}

func newStage(name string, sink sink, in *byteBuf, stageCfg cfg) *stage {
	tel := telemetry.NewTelemetry("egress", name)
	sink.setTelemetry(tel)

	return &stage{
		tel: tel,

		sink: sink,

		config: stageCfg,

		inputBuffer: in,
	}
}

func (s *stage) Init(_ context.Context) error {
	s.tel.LogInfo("initializing")

	configValidator := config.NewValidator(s.tel)
	configValidator.Validate(s.config)

	return nil
}

func (s *stage) Run(ctx context.Context) {
	s.sink.run(ctx, s.inputBuffer)
}

func (s *stage) Close() {
	s.tel.LogInfo("closing")

	s.sink.close()
}

// flusher is implemented by sinks that buffer writes and need an explicit
// flush after each drained chunk.
type flusher interface {
	Flush() error
}

// drain copies bytes out of the shared buffer into dst until the buffer
// reports end-of-stream. Partial writes are retried until the whole chunk
// is flushed downstream; any write or flush error is fatal for the stage.
func drain(tel *telemetry.Telemetry, in *byteBuf, dst io.Writer, staging []byte, onChunk func(int)) {
	for {
		n, err := in.Read(staging)

		if n > 0 {
			written := 0
			for written < n {
				w, werr := dst.Write(staging[written:n])
				if werr != nil {
					tel.LogError("failed to write to sink", werr)
					return
				}

				written += w
			}

			if f, ok := dst.(flusher); ok {
				if ferr := f.Flush(); ferr != nil {
					tel.LogError("failed to flush sink", ferr)
					return
				}
			}

			if onChunk != nil {
				onChunk(n)
			}
		}

		if err != nil {
			// io.EOF: the producer closed the buffer and it is fully drained
			tel.LogDebug("buffer drained, stopping")
			return
		}
	}
}
