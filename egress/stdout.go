package egress

import (
	"os"
)

// NewStdoutStage returns an egress stage that streams to standard output.
// This is the default downstream sink: the other side of the pipe reads
// what this stage writes. Writes to an os.File are unbuffered, so every
// drained chunk is flushed downstream as soon as the write returns.
func NewStdoutStage(in *byteBuf, cfg *WriterConfig) *WriterStage {
	return NewWriterStage("stdout", os.Stdout, in, cfg)
}
