package pubsub

import (
	"context"
	"time"

	"github.com/edgevid/shmcast/frame"
)

// receivePollInterval is the idle delay of the blocking receive variant.
// The transport's native acquire is non-blocking; blocking is layered on
// top by polling, so wakeup latency is bounded by this interval.
const receivePollInterval = time.Millisecond

// Subscriber borrows published frames from the service's slot pool. Each
// subscriber tracks its own read position; subscribers never share samples.
// A Subscriber is not safe for concurrent use.
type Subscriber struct {
	svc    *Service
	last   uint64
	closed bool
}

// Receive returns the oldest frame published since the previous call, or
// (nil, nil) when no new frame is available. The returned sample must be
// released exactly once. Frames overwritten by the producer before they
// could be borrowed are skipped; consumers detect this through gaps in the
// frame sequence numbers.
func (s *Subscriber) Receive() (*Sample, error) {
	if s.closed {
		return nil, ErrClosed
	}
	idx, pub, ok := s.svc.ring.take(s.last)
	if !ok {
		return nil, nil
	}
	s.last = pub
	return &Sample{
		ring: s.svc.ring,
		idx:  idx,
		pub:  pub,
	}, nil
}

// ReceiveContext blocks until a frame is available or the context is done.
func (s *Subscriber) ReceiveContext(ctx context.Context) (*Sample, error) {
	for {
		smp, err := s.Receive()
		if smp != nil || err != nil {
			return smp, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(receivePollInterval):
		}
	}
}

// Close detaches the subscriber. Outstanding samples remain valid and must
// still be released.
func (s *Subscriber) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return nil
}

// Sample is a borrowed, read-only lease on one published frame slot. The
// payload memory belongs to the transport; it stays valid exactly until
// Release.
type Sample struct {
	ring     *ring
	idx      int
	pub      uint64
	released bool
}

// Payload reinterprets the leased slot as a frame. The view is read-only by
// contract and must not be retained past Release. Payload performs no
// validation; call frame.Validate before trusting the pixel data.
func (s *Sample) Payload() *frame.Frame {
	if s.released {
		return nil
	}
	return s.ring.framePtr(s.idx)
}

// Release returns the slot to the pool. A second call fails with
// ErrDoubleRelease and leaves the pool state untouched.
func (s *Sample) Release() error {
	if s.released {
		return ErrDoubleRelease
	}
	s.released = true
	s.ring.release(s.idx)
	return nil
}
