package source

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgevid/shmcast/frame"
	"github.com/edgevid/shmcast/process"
)

func TestTestPattern(t *testing.T) {
	src, err := NewTestPattern(64, 48)
	require.NoError(t, err)

	w, h, stride := src.Geometry()
	assert.Equal(t, uint32(64), w)
	assert.Equal(t, uint32(48), h)
	assert.Equal(t, uint32(64), stride)

	var a, b frame.Frame
	require.NoError(t, src.Next(&a))
	require.NoError(t, src.Next(&b))

	assert.NoError(t, a.Validate())
	assert.Equal(t, uint32(64*48*3/2), a.Len)
	// The pattern moves between frames.
	assert.NotEqual(t, a.Payload(), b.Payload())
}

func TestTestPatternRejectsBadGeometry(t *testing.T) {
	_, err := NewTestPattern(0, 48)
	assert.Error(t, err)

	_, err = NewTestPattern(65, 48)
	assert.Error(t, err)

	// 4K does not fit a 1080p-sized slot.
	_, err = NewTestPattern(3840, 2160)
	assert.Error(t, err)
}

// recordY4M writes a small test clip with the y4m sink so the file source
// can be exercised without fixtures.
func recordY4M(t *testing.T, path string, frames int) {
	t.Helper()
	sink, err := process.NewY4MSink(path, 30, 1)
	require.NoError(t, err)
	defer sink.Close()

	src, err := NewTestPattern(64, 48)
	require.NoError(t, err)
	var f frame.Frame
	for i := 0; i < frames; i++ {
		require.NoError(t, src.Next(&f))
		require.NoError(t, sink.Process(&f))
	}
}

func TestY4MFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.y4m")
	recordY4M(t, path, 3)

	src, err := OpenY4MFile(path, false)
	require.NoError(t, err)
	defer src.Close()

	w, h, stride := src.Geometry()
	assert.Equal(t, uint32(64), w)
	assert.Equal(t, uint32(48), h)
	assert.Equal(t, uint32(64), stride)

	num, den := src.FrameRate()
	assert.Equal(t, 30, num)
	assert.Equal(t, 1, den)

	pattern, err := NewTestPattern(64, 48)
	require.NoError(t, err)

	var want, got frame.Frame
	for i := 0; i < 3; i++ {
		require.NoError(t, pattern.Next(&want))
		require.NoError(t, src.Next(&got))
		assert.NoError(t, got.Validate())
		assert.Equal(t, want.Payload(), got.Payload())
	}

	// End of stream without looping.
	assert.Error(t, src.Next(&got))
}

func TestY4MFileLoops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.y4m")
	recordY4M(t, path, 2)

	src, err := OpenY4MFile(path, true)
	require.NoError(t, err)
	defer src.Close()

	var f frame.Frame
	for i := 0; i < 5; i++ {
		require.NoError(t, src.Next(&f))
		assert.NoError(t, f.Validate())
	}
}
