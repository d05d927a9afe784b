package pubsub

import (
	"github.com/edgevid/shmcast/frame"
)

// Publisher writes frames into the service's slot pool. It is not safe for
// concurrent use; one goroutine drives the loan/send cycle.
type Publisher struct {
	svc    *Service
	closed bool
}

// Loan claims a free slot and returns a writable sample over it. The slot is
// invisible to subscribers until Send. Loan fails with ErrNoFreeSlot when
// subscribers hold references on every slot; the producer may retry after
// dropping the frame, which shows up at consumers as a sequence gap.
func (p *Publisher) Loan() (*SampleMut, error) {
	if p.closed {
		return nil, ErrClosed
	}
	idx, err := p.svc.ring.claim()
	if err != nil {
		return nil, err
	}
	f := p.svc.ring.framePtr(idx)
	// Reset metadata from the slot's previous life. Payload bytes are
	// overwritten by the caller up to Len and never read past it.
	f.TimestampNS = 0
	f.Sequence = 0
	f.Width = 0
	f.Height = 0
	f.Stride = 0
	f.Len = 0
	return &SampleMut{
		ring: p.svc.ring,
		idx:  idx,
	}, nil
}

// Close gives up the producer role so another publisher may attach.
// Loaned-but-unsent samples must be sent or released first.
func (p *Publisher) Close() error {
	if p.closed {
		return ErrClosed
	}
	p.closed = true
	p.svc.ring.publisher.Store(0)
	return nil
}

// SampleMut is an exclusively loaned, writable frame slot. Exactly one of
// Send or Release consumes it.
type SampleMut struct {
	ring *ring
	idx  int
	done bool
}

// Payload returns the slot's frame for in-place writing. It returns nil
// once the sample has been sent or released.
func (m *SampleMut) Payload() *frame.Frame {
	if m.done {
		return nil
	}
	return m.ring.framePtr(m.idx)
}

// Send publishes the frame to subscribers and consumes the sample.
func (m *SampleMut) Send() error {
	if m.done {
		return ErrDoubleRelease
	}
	m.done = true
	m.ring.publish(m.idx)
	return nil
}

// Release returns the slot to the pool without publishing.
func (m *SampleMut) Release() error {
	if m.done {
		return ErrDoubleRelease
	}
	m.done = true
	m.ring.abort(m.idx)
	return nil
}
