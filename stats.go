package shmcast

import "sync/atomic"

// Stats counts per-frame events of a receive loop. All fields are updated
// atomically; Snapshot may be called from any goroutine while the loop runs.
type Stats struct {
	frames        atomic.Uint64
	invalidFrames atomic.Uint64
	processErrors atomic.Uint64
	gaps          atomic.Uint64
	droppedFrames atomic.Uint64
}

// Snapshot is a point-in-time copy of receive loop counters.
type Snapshot struct {
	// Frames is the number of valid frames handed to the processor.
	Frames uint64 `json:"frames"`
	// InvalidFrames counts frames that failed validation and were skipped.
	InvalidFrames uint64 `json:"invalid_frames"`
	// ProcessErrors counts frames the processor rejected.
	ProcessErrors uint64 `json:"process_errors"`
	// Gaps counts discontinuities in the observed sequence numbers.
	Gaps uint64 `json:"gaps"`
	// DroppedFrames is the total number of frames missing from those gaps.
	DroppedFrames uint64 `json:"dropped_frames"`
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Frames:        s.frames.Load(),
		InvalidFrames: s.invalidFrames.Load(),
		ProcessErrors: s.processErrors.Load(),
		Gaps:          s.gaps.Load(),
		DroppedFrames: s.droppedFrames.Load(),
	}
}

// SequenceTracker detects drops in a producer's strictly increasing frame
// sequence. Gaps are data loss under backpressure, not an error: the tracker
// only makes them observable.
type SequenceTracker struct {
	last   uint64
	primed bool
}

// Observe records a received sequence number and returns how many frames
// were skipped since the previous one. The first observation primes the
// tracker and never reports a gap.
func (t *SequenceTracker) Observe(seq uint64) uint64 {
	if !t.primed {
		t.primed = true
		t.last = seq
		return 0
	}
	if seq <= t.last {
		return 0
	}
	missed := seq - t.last - 1
	t.last = seq
	return missed
}
