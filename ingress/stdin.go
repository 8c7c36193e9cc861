package ingress

import (
	"os"
)

// NewStdinStage returns an ingress stage that streams standard input.
// This is the default upstream source: a read returning zero bytes means
// the producer on the other side of the pipe closed its end.
func NewStdinStage(out *byteBuf, cfg *ReaderConfig) *ReaderStage {
	return NewReaderStage("stdin", os.Stdin, out, cfg)
}
