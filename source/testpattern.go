package source

import (
	"fmt"

	"github.com/edgevid/shmcast/frame"
)

// TestPattern generates a moving synthetic YUV420 pattern: a diagonal luma
// gradient scrolling one step per frame over a slowly cycling chroma wash.
// It stands in for a camera when none is attached.
type TestPattern struct {
	width  uint32
	height uint32
	tick   uint64
}

func NewTestPattern(width, height uint32) (*TestPattern, error) {
	if width == 0 || height == 0 || width%2 != 0 || height%2 != 0 {
		return nil, fmt.Errorf("test pattern needs even, non-zero dimensions, got %dx%d", width, height)
	}
	if size := uint64(width) * uint64(height) * 3 / 2; size > frame.MaxFrameSize {
		return nil, fmt.Errorf("%dx%d YUV420 frame (%d bytes) exceeds slot capacity %d",
			width, height, size, frame.MaxFrameSize)
	}
	return &TestPattern{
		width:  width,
		height: height,
	}, nil
}

func (s *TestPattern) Geometry() (width, height, stride uint32) {
	return s.width, s.height, s.width
}

func (s *TestPattern) Next(f *frame.Frame) error {
	w := int(s.width)
	h := int(s.height)
	ySize := w * h
	cSize := ySize / 4

	f.Width = s.width
	f.Height = s.height
	f.Stride = s.width
	f.Len = uint32(ySize + 2*cSize)

	shift := int(s.tick % 256)
	for y := 0; y < h; y++ {
		row := f.Data[y*w : (y+1)*w]
		for x := range row {
			row[x] = byte(x + y + shift*2)
		}
	}
	cb := byte(128 + shift/2)
	cr := byte(128 - shift/2)
	for i := 0; i < cSize; i++ {
		f.Data[ySize+i] = cb
		f.Data[ySize+cSize+i] = cr
	}

	s.tick++
	return nil
}
