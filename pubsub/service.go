// Package pubsub implements a zero-copy publish/subscribe transport for
// video frames over POSIX shared memory.
//
// A named Service owns a shared segment holding a fixed pool of frame slots.
// One publisher process loans slots, writes frames in place and publishes
// them; any number of subscriber processes borrow published slots read-only
// and release them when done. Payloads are never copied or serialized: both
// sides interpret the same memory as a frame.Frame.
//
// The pool overwrites the oldest unreferenced slot under backpressure, so a
// slow subscriber observes sequence gaps rather than unbounded queueing.
package pubsub

import (
	"errors"
	"fmt"
	"os"

	"github.com/edgevid/shmcast/internal/shm"
)

// DefaultSlotCount is the frame pool size used when no option overrides it.
// It bounds how far subscribers may lag before the producer overwrites
// unread frames.
const DefaultSlotCount = 8

var (
	// ErrDoubleRelease reports a second release of the same sample. The
	// first release already returned the slot; a second one is a lifecycle
	// bug in the caller.
	ErrDoubleRelease = errors.New("sample already released")

	// ErrNoFreeSlot reports that every slot is either loaned to the
	// publisher or borrowed by subscribers.
	ErrNoFreeSlot = errors.New("no free frame slot")

	// ErrLayoutMismatch reports a segment whose recorded layout differs
	// from this build's frame layout.
	ErrLayoutMismatch = errors.New("segment layout mismatch")

	// ErrPublisherExists reports a second publisher on a single-producer
	// service.
	ErrPublisherExists = errors.New("service already has a publisher")

	// ErrClosed reports use of a closed publisher or subscriber.
	ErrClosed = errors.New("closed")
)

type serviceConfig struct {
	slotCount int
}

// Option configures service creation.
type Option func(*serviceConfig) error

// SlotCount sets the number of frame slots allocated when the service
// segment is created. It is ignored when attaching to an existing segment.
// The pool needs headroom for the slot being written plus one borrowed slot
// per subscriber.
func SlotCount(n int) Option {
	return func(c *serviceConfig) error {
		if n < 2 {
			return fmt.Errorf("slot count %d too small, need at least 2", n)
		}
		c.slotCount = n
		return nil
	}
}

// Service binds a service name to a shared frame pool.
type Service struct {
	name string
	seg  *shm.Segment
	ring *ring
}

// Create opens the service segment, creating it if it does not exist yet.
// Every process that shares frames under the same name gets the same pool.
func Create(name string, opts ...Option) (*Service, error) {
	cfg := serviceConfig{
		slotCount: DefaultSlotCount,
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	object := shm.Sanitize(name)
	seg, err := shm.Create(object, segmentSize(cfg.slotCount))
	if errors.Is(err, os.ErrExist) {
		return Open(name)
	}
	if err != nil {
		return nil, fmt.Errorf("create service %q: %w", name, err)
	}
	return &Service{
		name: name,
		seg:  seg,
		ring: initRing(seg.Bytes(), cfg.slotCount),
	}, nil
}

// Open attaches to an existing service segment. It fails if the segment does
// not exist or was created by a peer with an incompatible frame layout.
func Open(name string) (*Service, error) {
	seg, err := shm.Open(shm.Sanitize(name))
	if err != nil {
		return nil, fmt.Errorf("open service %q: %w", name, err)
	}
	r, err := attachRing(seg.Bytes())
	if err != nil {
		seg.Close()
		return nil, fmt.Errorf("service %q: %w", name, err)
	}
	return &Service{
		name: name,
		seg:  seg,
		ring: r,
	}, nil
}

func (s *Service) Name() string { return s.name }

// SlotCount returns the size of the service's frame pool.
func (s *Service) SlotCount() int { return s.ring.slotCount }

// FrameSize returns the per-slot payload layout size recorded in the
// segment. It always equals frame.Size for a successfully attached service.
func (s *Service) FrameSize() int { return s.ring.payloadSize }

// NewPublisher claims the producer role on the service. The transport is
// single-producer: a second concurrent publisher fails with
// ErrPublisherExists until the first one is closed.
func (s *Service) NewPublisher() (*Publisher, error) {
	if !s.ring.publisher.CompareAndSwap(0, 1) {
		return nil, ErrPublisherExists
	}
	return &Publisher{svc: s}, nil
}

// NewSubscriber creates an independent subscriber that observes every frame
// published after this call, in publication order, minus frames overwritten
// before it could borrow them.
func (s *Service) NewSubscriber() (*Subscriber, error) {
	return &Subscriber{
		svc:  s,
		last: s.ring.head.Load(),
	}, nil
}

// Close unmaps the segment. Outstanding samples keep the underlying memory
// mapped-in-use semantics of mmap and must be released before Close.
func (s *Service) Close() error {
	return s.seg.Close()
}

// Remove unlinks the segment name from the system. Call it on teardown of
// the last participant; attached processes keep their mappings.
func (s *Service) Remove() error {
	return s.seg.Unlink()
}
