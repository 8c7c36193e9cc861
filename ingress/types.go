// Package ingress contains the producer stages.
//
// A producer stage reads chunks from an upstream byte source into a
// private staging buffer, copies them into the shared buffer (blocking
// while it is full) and closes the write side of the buffer when the
// source signals end-of-stream.
package ingress

import (
	"github.com/pipebuffer/pipebuffer/buffer"
	"github.com/pipebuffer/pipebuffer/internal/config"
)

// DefaultStagingSize is the default size of the private staging buffer
// each source reads into before touching the shared buffer.
const DefaultStagingSize = 64 * 1024

type byteBuf = buffer.Buffer

type cfg = config.Config
