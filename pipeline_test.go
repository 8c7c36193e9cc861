package pipebuffer_test

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipebuffer/pipebuffer"
	"github.com/pipebuffer/pipebuffer/egress"
	"github.com/pipebuffer/pipebuffer/ingress"
)

func Test_Pipeline_EndToEnd(t *testing.T) {
	const (
		capacity    = 256
		stagingSize = 1024
	)

	// Sizes around the buffer capacity and the staging size, including
	// zero and several multiples of both.
	sizes := []int{
		0, 1, capacity - 1, capacity, capacity + 1,
		3 * capacity, stagingSize, stagingSize + 1,
		5*stagingSize + 17,
	}

	rng := rand.New(rand.NewSource(1))

	for _, size := range sizes {
		t.Run(fmt.Sprintf("%d_bytes", size), func(t *testing.T) {
			input := make([]byte, size)
			rng.Read(input)

			buf := pipebuffer.NewBuffer(capacity)

			readerCfg := ingress.DefaultReaderConfig()
			readerCfg.StagingSize = stagingSize
			source := ingress.NewReaderStage("test", bytes.NewReader(input), buf, readerCfg)

			writerCfg := egress.DefaultWriterConfig()
			writerCfg.StagingSize = stagingSize
			var output bytes.Buffer
			sink := egress.NewWriterStage("test", &output, buf, writerCfg)

			pipeline := pipebuffer.NewPipeline()
			pipeline.AddStage(source)
			pipeline.AddStage(sink)

			require.NoError(t, pipeline.Init(t.Context()))

			pipeline.Run(t.Context())
			pipeline.Wait()
			pipeline.Close()

			assert.Equal(t, len(input), output.Len())
			assert.True(t, bytes.Equal(input, output.Bytes()))
		})
	}
}

func Test_Pipeline_SmallBufferLargeStream(t *testing.T) {
	// The buffer is far smaller than the stream, forcing both sides to
	// block and wake repeatedly.
	const (
		capacity  = 64
		totalSize = 1 << 20
	)

	rng := rand.New(rand.NewSource(2))

	input := make([]byte, totalSize)
	rng.Read(input)

	buf := pipebuffer.NewBuffer(capacity)

	source := ingress.NewReaderStage("test", bytes.NewReader(input), buf, ingress.DefaultReaderConfig())

	var output bytes.Buffer
	sink := egress.NewWriterStage("test", &output, buf, egress.DefaultWriterConfig())

	pipeline := pipebuffer.NewPipeline()
	pipeline.AddStage(source)
	pipeline.AddStage(sink)

	require.NoError(t, pipeline.Init(t.Context()))

	pipeline.Run(t.Context())
	pipeline.Wait()
	pipeline.Close()

	assert.Equal(t, input, output.Bytes())
}
