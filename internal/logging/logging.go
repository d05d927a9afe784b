package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/edgevid/shmcast/frame"
)

type Format string

const (
	TextFormat Format = "text"
	JSONFormat Format = "json"
)

func Configure(format Format, level slog.Level, writer io.Writer) {
	if writer == nil {
		writer = os.Stderr
	}
	ho := &slog.HandlerOptions{
		AddSource:   false,
		Level:       level,
		ReplaceAttr: nil,
	}
	switch format {
	case JSONFormat:
		slog.SetDefault(slog.New(slog.NewJSONHandler(writer, ho)))
	case TextFormat:
		slog.SetDefault(slog.New(slog.NewTextHandler(writer, ho)))
	default:
		panic(fmt.Sprintf("unexpected logging.format: %#v", format))
	}
}

// FrameLogger logs received frame metadata, sampled down to every nth frame
// so a 30 fps stream does not flood the log.
type FrameLogger struct {
	logger *slog.Logger
	every  uint64
	count  uint64
}

func NewFrameLogger(every uint64, logger *slog.Logger) *FrameLogger {
	if every == 0 {
		every = 1
	}
	if logger == nil {
		logger = slog.Default().WithGroup("frame")
	}
	return &FrameLogger{
		logger: logger,
		every:  every,
	}
}

func (l *FrameLogger) LogFrame(f *frame.Frame) {
	l.count++
	if l.count%l.every != 0 {
		return
	}
	l.logger.Info(
		"received frame",
		"sequence", f.Sequence,
		"timestamp-ns", f.TimestampNS,
		"width", f.Width,
		"height", f.Height,
		"stride", f.Stride,
		"payload-length", f.Len,
	)
}
