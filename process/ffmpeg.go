package process

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"

	"github.com/edgevid/shmcast/frame"
)

// FFmpeg pipes raw YUV420 frames into an ffmpeg child process that encodes
// H264 and pushes RTSP, typically to a mediamtx instance that fans the
// stream out to WebRTC viewers.
//
// ffmpeg needs the frame geometry up front, so the child process is started
// lazily on the first frame.
type FFmpeg struct {
	URL string
	FPS int

	logger *slog.Logger
	cmd    *exec.Cmd
	stdin  io.WriteCloser
}

func NewFFmpeg(url string, fps int) *FFmpeg {
	return &FFmpeg{
		URL:    url,
		FPS:    fps,
		logger: slog.Default(),
	}
}

func (p *FFmpeg) start(width, height uint32) error {
	cmd := exec.Command("ffmpeg",
		"-f", "rawvideo",
		"-pix_fmt", "yuv420p",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.Itoa(p.FPS),
		"-i", "-",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-g", strconv.Itoa(p.FPS),
		"-f", "rtsp",
		"-rtsp_transport", "tcp",
		p.URL,
	)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}
	p.cmd = cmd
	p.stdin = stdin
	p.logger.Info("ffmpeg started", "url", p.URL, "width", width, "height", height, "fps", p.FPS)
	return nil
}

func (p *FFmpeg) Process(f *frame.Frame) error {
	if p.cmd == nil {
		if err := p.start(f.Width, f.Height); err != nil {
			return err
		}
	}
	if err := writePacked(p.stdin, f); err != nil {
		return fmt.Errorf("ffmpeg pipe: %w", err)
	}
	return nil
}

func (p *FFmpeg) Close() error {
	if p.cmd == nil {
		return nil
	}
	p.stdin.Close()
	return p.cmd.Wait()
}
