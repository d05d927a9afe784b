package process

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/edgevid/shmcast/frame"
)

// Preview keeps the most recent frame encoded as JPEG for serving over
// HTTP. Encoding happens inside Process while the frame is still borrowed;
// the stored JPEG is owned by the preview and outlives the sample.
type Preview struct {
	Quality int

	mu    sync.RWMutex
	image []byte
	seq   uint64
	have  bool
}

func NewPreview() *Preview {
	return &Preview{
		Quality: 80,
	}
}

func (p *Preview) Process(f *frame.Frame) error {
	img, err := f.YCbCr()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.Quality}); err != nil {
		return fmt.Errorf("jpeg encode: %w", err)
	}
	p.mu.Lock()
	p.image = buf.Bytes()
	p.seq = f.Sequence
	p.have = true
	p.mu.Unlock()
	return nil
}

// Latest returns the newest JPEG and the sequence number of the frame it
// was encoded from, or nil before the first frame arrived.
func (p *Preview) Latest() ([]byte, uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.have {
		return nil, 0
	}
	return p.image, p.seq
}

// ServeHTTP serves the latest frame as a single JPEG snapshot.
func (p *Preview) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	img, _ := p.Latest()
	if img == nil {
		http.Error(w, "no frame received yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(img)
}

// ServeMJPEG streams frames as multipart/x-mixed-replace until the client
// disconnects. Frames are sampled at the given interval; unchanged frames
// are not resent.
func (p *Preview) ServeMJPEG(interval time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-store")

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var lastSeq uint64
		sent := false
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
			}
			img, seq := p.Latest()
			if img == nil || (sent && seq == lastSeq) {
				continue
			}
			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(img)); err != nil {
				return
			}
			if _, err := w.Write(img); err != nil {
				return
			}
			if _, err := fmt.Fprint(w, "\r\n"); err != nil {
				return
			}
			flusher.Flush()
			lastSeq = seq
			sent = true
		}
	}
}
