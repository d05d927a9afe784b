package subcmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceRate(t *testing.T) {
	// NTSC-style fractional rates keep their fraction.
	assert.InDelta(t, 29.97, sourceRate(30000, 1001, 30), 0.001)
	assert.Equal(t, 25.0, sourceRate(25, 1, 30))

	// Files without a usable rate fall back to the flag value.
	assert.Equal(t, 30.0, sourceRate(0, 1, 30))
	assert.Equal(t, 30.0, sourceRate(25, 0, 30))
	assert.Equal(t, 30.0, sourceRate(-1, 1, 30))
}
