// Package process implements frame processors for the receive loop: sinks
// that encode, record or forward frames borrowed from the transport. None of
// them retain the frame past the Process call.
package process

import (
	"fmt"
	"io"

	"github.com/edgevid/shmcast/frame"
)

// writePacked writes the frame's YUV420 planes with stride padding removed,
// producing the tightly packed layout expected by y4m files and ffmpeg's
// rawvideo input. Frames whose stride equals their width are written in one
// piece.
//
// Validate only bounds Len from above, so the payload must additionally cover
// the full plane geometry here; otherwise the row slices would reach past Len
// into stale buffer bytes.
func writePacked(w io.Writer, f *frame.Frame) error {
	ySize := int(f.Stride) * int(f.Height)
	if need := ySize + ySize/2; int(f.Len) < need {
		return fmt.Errorf("frame payload too short: len=%d, %dx%d at stride %d needs %d",
			f.Len, f.Width, f.Height, f.Stride, need)
	}
	if f.Stride == f.Width {
		_, err := w.Write(f.Payload())
		return err
	}

	data := f.Payload()
	width := int(f.Width)
	height := int(f.Height)
	stride := int(f.Stride)

	// Luma plane: height rows of width bytes.
	for y := 0; y < height; y++ {
		if _, err := w.Write(data[y*stride : y*stride+width]); err != nil {
			return err
		}
	}
	// Chroma planes: height/2 rows of width/2 bytes each, at half stride.
	cOff := stride * height
	cStride := stride / 2
	cWidth := width / 2
	cHeight := height / 2
	for p := 0; p < 2; p++ {
		for y := 0; y < cHeight; y++ {
			row := cOff + y*cStride
			if _, err := w.Write(data[row : row+cWidth]); err != nil {
				return err
			}
		}
		cOff += cStride * cHeight
	}
	return nil
}
