package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mengelbart/y4m"

	"github.com/edgevid/shmcast/frame"
)

// Y4MFile replays frames from a YUV4MPEG2 file, optionally looping at end
// of stream. Only 4:2:0 subsampled files fit the transport's frame layout.
type Y4MFile struct {
	path string
	loop bool

	file   *os.File
	reader *y4m.Reader
	header *y4m.StreamHeader
}

func OpenY4MFile(path string, loop bool) (*Y4MFile, error) {
	s := &Y4MFile{
		path: path,
		loop: loop,
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Y4MFile) open() error {
	file, err := os.Open(s.path)
	if err != nil {
		return err
	}
	reader, header, err := y4m.NewReader(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("parsing %s: %w", s.path, err)
	}
	switch header.ChromaSubsampling {
	case y4m.CST420, y4m.CST420jpeg, y4m.CST420mpeg2, y4m.CST420paldv:
	default:
		file.Close()
		return fmt.Errorf("%s: unsupported chroma subsampling %v, need 4:2:0", s.path, header.ChromaSubsampling)
	}
	if size := header.Width * header.Height * 3 / 2; size > frame.MaxFrameSize {
		file.Close()
		return fmt.Errorf("%s: %dx%d frames (%d bytes) exceed slot capacity %d",
			s.path, header.Width, header.Height, size, frame.MaxFrameSize)
	}
	s.file = file
	s.reader = reader
	s.header = header
	return nil
}

func (s *Y4MFile) Geometry() (width, height, stride uint32) {
	return uint32(s.header.Width), uint32(s.header.Height), uint32(s.header.Width)
}

// FrameRate returns the file's frame rate fraction.
func (s *Y4MFile) FrameRate() (num, den int) {
	return s.header.FrameRate.Numerator, s.header.FrameRate.Denominator
}

func (s *Y4MFile) Next(f *frame.Frame) error {
	data, _, err := s.reader.ReadNextFrame()
	if errors.Is(err, io.EOF) && s.loop {
		s.file.Close()
		if err := s.open(); err != nil {
			return err
		}
		data, _, err = s.reader.ReadNextFrame()
		if err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	f.Width = uint32(s.header.Width)
	f.Height = uint32(s.header.Height)
	f.Stride = uint32(s.header.Width)
	f.Len = uint32(len(data))
	copy(f.Data[:], data)
	return nil
}

func (s *Y4MFile) Close() error {
	return s.file.Close()
}
