// Package egress contains the consumer stages.
//
// A consumer stage copies bytes out of the shared buffer into a private
// staging buffer, writes them to the downstream sink in full (retrying
// partial writes) and flushes the sink after each drained chunk. It
// terminates once the buffer reports end-of-stream, which guarantees no
// accepted byte is ever lost.
package egress

import (
	"github.com/pipebuffer/pipebuffer/buffer"
	"github.com/pipebuffer/pipebuffer/internal/config"
)

// DefaultStagingSize is the default size of the private staging buffer
// each sink drains the shared buffer into.
const DefaultStagingSize = 64 * 1024

type byteBuf = buffer.Buffer

type cfg = config.Config
