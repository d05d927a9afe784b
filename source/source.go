// Package source implements frame producers for the publisher side: they
// fill loaned transport slots in place, so pixel data goes straight into
// shared memory without an intermediate copy.
package source

import (
	"github.com/edgevid/shmcast/frame"
)

// FrameSource produces YUV420 video frames directly into a frame slot.
// Next fills geometry, payload length and pixel data; the caller owns
// sequence numbers and timestamps. Next returns io.EOF when a finite
// source is exhausted.
type FrameSource interface {
	Geometry() (width, height, stride uint32)
	Next(f *frame.Frame) error
}
