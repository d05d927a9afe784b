package process

import (
	"fmt"
	"os"

	"github.com/edgevid/shmcast/frame"
)

// Y4MSink records received frames to a YUV4MPEG2 file that tools like
// ffplay and mpv can play back directly. The stream header is derived from
// the first frame's geometry; later geometry changes are rejected because
// the y4m format cannot express them.
type Y4MSink struct {
	file   *os.File
	fpsNum int
	fpsDen int

	width  uint32
	height uint32
}

func NewY4MSink(filePath string, fpsNum, fpsDen int) (*Y4MSink, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return nil, err
	}
	return &Y4MSink{
		file:   file,
		fpsNum: fpsNum,
		fpsDen: fpsDen,
	}, nil
}

func (s *Y4MSink) Process(f *frame.Frame) error {
	if s.width == 0 {
		header := fmt.Sprintf("YUV4MPEG2 W%d H%d F%d:%d Ip A0:0 C420jpeg\n",
			f.Width, f.Height, s.fpsNum, s.fpsDen)
		if _, err := s.file.WriteString(header); err != nil {
			return err
		}
		s.width = f.Width
		s.height = f.Height
	}
	if f.Width != s.width || f.Height != s.height {
		return fmt.Errorf("frame geometry changed mid-stream: %dx%d, recording %dx%d",
			f.Width, f.Height, s.width, s.height)
	}

	if _, err := s.file.WriteString("FRAME\n"); err != nil {
		return err
	}
	return writePacked(s.file, f)
}

func (s *Y4MSink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
