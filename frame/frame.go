// Package frame defines the shared-memory layout of one video frame.
//
// The Frame struct is mapped directly into a shared memory segment and read
// by independently built producer and consumer processes. Its field order and
// widths are the wire contract: any change breaks every peer that maps the
// same segment. The layout matches a C struct with no padding.
package frame

import (
	"errors"
	"fmt"
	"image"
	"unsafe"
)

// MaxFrameSize is the fixed payload capacity of one frame slot, sized for the
// largest supported format: 1080p YUV420 (1920 * 1080 * 1.5 bytes).
const MaxFrameSize = 1920 * 1080 * 3 / 2

// Size is the total layout size in bytes: 32 bytes of metadata followed by
// the payload buffer. Producers and consumers assert this against the segment
// header before touching any payload.
const Size = 32 + MaxFrameSize

// Frame is one captured video frame. Field order is fixed:
// timestamp_ns, sequence, width, height, stride, len, data.
type Frame struct {
	TimestampNS uint64
	Sequence    uint64
	Width       uint32
	Height      uint32
	Stride      uint32
	Len         uint32
	Data        [MaxFrameSize]byte
}

// Layout assertion. Fails to compile if the Go struct layout diverges from
// the declared cross-process size.
var _ [Size]byte = [unsafe.Sizeof(Frame{})]byte{}

var (
	// ErrInvalidGeometry reports width/height/stride values that are zero or
	// inconsistent with the payload length.
	ErrInvalidGeometry = errors.New("invalid frame geometry")

	// ErrPayloadTooLarge reports a len field exceeding the buffer capacity.
	ErrPayloadTooLarge = errors.New("frame payload exceeds capacity")
)

// Validate checks the metadata fields before the payload may be trusted.
// Consumers must call it on every received frame: the producer lives in
// another address space and nothing else guards against out-of-bounds reads
// during pixel-format conversion.
func (f *Frame) Validate() error {
	if f.Len > MaxFrameSize {
		return fmt.Errorf("%w: len=%d capacity=%d", ErrPayloadTooLarge, f.Len, MaxFrameSize)
	}
	if f.Width == 0 || f.Height == 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, f.Width, f.Height)
	}
	if f.Stride < f.Width {
		return fmt.Errorf("%w: stride=%d < width=%d", ErrInvalidGeometry, f.Stride, f.Width)
	}
	// YUV420: height luma rows plus height/2 chroma rows at full stride.
	rows := uint64(f.Stride) * uint64(f.Height) * 3 / 2
	if rows < uint64(f.Len) {
		return fmt.Errorf("%w: stride=%d height=%d holds %d bytes, len=%d", ErrInvalidGeometry, f.Stride, f.Height, rows, f.Len)
	}
	return nil
}

// Payload returns the valid portion of the data buffer. Callers must have
// validated the frame first.
func (f *Frame) Payload() []byte {
	return f.Data[:f.Len]
}

// YCbCr wraps the payload in an image.YCbCr without copying pixel data. The
// returned image aliases the frame's memory and is only valid as long as the
// frame itself, i.e. until the underlying sample is released.
func (f *Frame) YCbCr() (*image.YCbCr, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	ySize := int(f.Stride) * int(f.Height)
	cSize := ySize / 4
	if uint64(ySize+2*cSize) > uint64(f.Len) {
		return nil, fmt.Errorf("%w: %d payload bytes, need %d for %dx%d YUV420",
			ErrInvalidGeometry, f.Len, ySize+2*cSize, f.Width, f.Height)
	}
	return &image.YCbCr{
		Y:              f.Data[:ySize],
		Cb:             f.Data[ySize : ySize+cSize],
		Cr:             f.Data[ySize+cSize : ySize+2*cSize],
		YStride:        int(f.Stride),
		CStride:        int(f.Stride) / 2,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, int(f.Width), int(f.Height)),
	}, nil
}
