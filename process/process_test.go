package process

import (
	"bytes"
	"errors"
	"image/jpeg"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgevid/shmcast/frame"
)

func testFrame(seq uint64) *frame.Frame {
	f := &frame.Frame{
		Sequence: seq,
		Width:    64,
		Height:   48,
		Stride:   64,
		Len:      64 * 48 * 3 / 2,
	}
	for i := range f.Payload() {
		f.Data[i] = byte(i + int(seq))
	}
	return f
}

func TestWritePackedNoPadding(t *testing.T) {
	f := testFrame(1)
	var buf bytes.Buffer
	require.NoError(t, writePacked(&buf, f))
	assert.Equal(t, f.Payload(), buf.Bytes())
}

func TestWritePackedStripsStridePadding(t *testing.T) {
	// 4x4 frame padded to stride 8: 32 luma bytes plus 2*8 chroma bytes.
	f := &frame.Frame{Width: 4, Height: 4, Stride: 8, Len: 48}
	for i := range f.Payload() {
		f.Data[i] = byte(i)
	}

	var buf bytes.Buffer
	require.NoError(t, writePacked(&buf, f))

	want := []byte{
		0, 1, 2, 3, // luma rows, padding bytes 4..7 dropped
		8, 9, 10, 11,
		16, 17, 18, 19,
		24, 25, 26, 27,
		32, 33, // cb rows at half stride
		36, 37,
		40, 41, // cr rows
		44, 45,
	}
	assert.Equal(t, want, buf.Bytes())
}

func TestWritePackedRejectsShortPayload(t *testing.T) {
	// Passes Validate (len is below the stride*height*3/2 cap) but does not
	// cover the planes the geometry describes.
	f := &frame.Frame{Width: 4, Height: 4, Stride: 8, Len: 8}
	for i := f.Len; i < 48; i++ {
		f.Data[i] = 0xee
	}
	require.NoError(t, f.Validate())

	var buf bytes.Buffer
	err := writePacked(&buf, f)
	require.Error(t, err)
	// Nothing past Len may leak into the output.
	assert.NotContains(t, buf.Bytes(), byte(0xee))
}

type captureWriter struct {
	writes [][]byte
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.writes = append(c.writes, append([]byte{}, p...))
	return len(p), nil
}

func TestRawPayloader(t *testing.T) {
	payload := make([]byte, 2500)
	chunks := rawPayloader{}.Payload(1200, payload)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 1200)
	assert.Len(t, chunks[1], 1200)
	assert.Len(t, chunks[2], 100)

	assert.Empty(t, rawPayloader{}.Payload(1200, nil))
	assert.Empty(t, rawPayloader{}.Payload(0, payload))
}

func TestRTPStreamer(t *testing.T) {
	sink := &captureWriter{}
	s, err := NewRTPStreamer(sink, 30)
	require.NoError(t, err)

	f := testFrame(1)
	require.NoError(t, s.Process(f))

	// 4608 payload bytes in 1200 byte chunks.
	require.Len(t, sink.writes, 4)

	var reassembled []byte
	var pkts []rtp.Packet
	for _, buf := range sink.writes {
		var pkt rtp.Packet
		require.NoError(t, pkt.Unmarshal(buf))
		pkts = append(pkts, pkt)
		reassembled = append(reassembled, pkt.Payload...)
	}
	assert.Equal(t, f.Payload(), reassembled)

	for i, pkt := range pkts {
		assert.Equal(t, uint8(96), pkt.PayloadType)
		assert.Equal(t, uint32(1), pkt.SSRC)
		assert.Equal(t, pkt.Marker, i == len(pkts)-1)
		assert.Equal(t, pkts[0].Timestamp, pkt.Timestamp)
		if i > 0 {
			assert.Equal(t, pkts[i-1].SequenceNumber+1, pkt.SequenceNumber)
		}
	}

	// The next frame advances the RTP timestamp by one frame duration.
	require.NoError(t, s.Process(testFrame(2)))
	var pkt rtp.Packet
	require.NoError(t, pkt.Unmarshal(sink.writes[4]))
	assert.Equal(t, pkts[0].Timestamp+90_000/30, pkt.Timestamp)
}

func TestRTPStreamerRejectsZeroFPS(t *testing.T) {
	_, err := NewRTPStreamer(&captureWriter{}, 0)
	assert.Error(t, err)
}

func TestY4MSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.y4m")
	sink, err := NewY4MSink(path, 30, 1)
	require.NoError(t, err)

	require.NoError(t, sink.Process(testFrame(1)))
	require.NoError(t, sink.Process(testFrame(2)))

	// Geometry changes cannot be expressed mid-stream.
	other := &frame.Frame{Width: 32, Height: 32, Stride: 32, Len: 32 * 32 * 3 / 2}
	assert.Error(t, sink.Process(other))

	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	header := []byte("YUV4MPEG2 W64 H48 F30:1 Ip A0:0 C420jpeg\n")
	assert.True(t, bytes.HasPrefix(data, header))
	assert.Equal(t, 2, bytes.Count(data, []byte("FRAME\n")))

	frameSize := 64 * 48 * 3 / 2
	assert.Len(t, data, len(header)+2*(len("FRAME\n")+frameSize))

	first := data[len(header)+len("FRAME\n"):]
	assert.Equal(t, testFrame(1).Payload(), first[:frameSize])
}

func TestPreview(t *testing.T) {
	p := NewPreview()

	img, _ := p.Latest()
	assert.Nil(t, img)

	require.NoError(t, p.Process(testFrame(7)))

	img, seq := p.Latest()
	require.NotNil(t, img)
	assert.Equal(t, uint64(7), seq)

	decoded, err := jpeg.Decode(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, 64, decoded.Bounds().Dx())
	assert.Equal(t, 48, decoded.Bounds().Dy())

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest("GET", "/preview.jpg", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, img, rec.Body.Bytes())

	// Invalid frames are rejected, the previous snapshot stays.
	bad := &frame.Frame{Width: 0, Height: 48, Stride: 64, Len: 64}
	assert.Error(t, p.Process(bad))
	img2, _ := p.Latest()
	assert.Equal(t, img, img2)
}

func TestPreviewEmptySnapshot(t *testing.T) {
	p := NewPreview()
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest("GET", "/preview.jpg", nil))
	assert.Equal(t, 503, rec.Code)
}

func TestTee(t *testing.T) {
	var first, second []uint64
	failing := errors.New("sink failed")

	tee := Tee{
		processorFunc(func(f *frame.Frame) error {
			first = append(first, f.Sequence)
			return failing
		}),
		processorFunc(func(f *frame.Frame) error {
			second = append(second, f.Sequence)
			return nil
		}),
	}

	err := tee.Process(testFrame(1))
	assert.ErrorIs(t, err, failing)
	// The second sink still saw the frame.
	assert.Equal(t, []uint64{1}, first)
	assert.Equal(t, []uint64{1}, second)
}

type processorFunc func(*frame.Frame) error

func (fn processorFunc) Process(f *frame.Frame) error { return fn(f) }
