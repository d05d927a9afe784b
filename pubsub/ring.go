package pubsub

import (
	"fmt"
	"math"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/edgevid/shmcast/frame"
)

// Shared segment layout:
//
//	header      64 bytes: magic, layout version, slot count, payload size,
//	            head publication counter, publisher flag
//	slot table  16 bytes per slot: state word, publication number
//	payload     slot count * frame.Size, 64-byte aligned
//
// All multi-process coordination happens through the atomic words in the
// header and the slot table. Payload bytes are only ever written by the
// producer while it holds the slot's writing bit, and only ever read by
// consumers while they hold a reader reference, so payload access needs no
// further synchronization.
const (
	magic         uint64 = 0x7368_6d63_6173_7431 // "shmcast1"
	layoutVersion uint32 = 1

	headerSize   = 64
	slotDescSize = 16
	payloadAlign = 64

	offMagic       = 0
	offVersion     = 8
	offSlotCount   = 12
	offPayloadSize = 16
	offHead        = 24
	offPublisher   = 32
)

// Slot state word: the top bit is set while the producer writes the slot,
// the remaining bits count attached readers. The producer only claims slots
// whose state word is zero, so a slot is never overwritten while borrowed.
const writingBit = uint64(1) << 63

// takeRetries bounds the retry loop in take. Losing a race re-runs the scan;
// a stuck writing bit (crashed producer) must not spin the consumer forever.
const takeRetries = 128

type ring struct {
	slotCount   int
	payloadSize int

	head      *atomic.Uint64
	publisher *atomic.Uint32
	slots     []slot
	payload   []byte
}

type slot struct {
	state *atomic.Uint64
	pub   *atomic.Uint64
}

func alignUp(n, a int) int {
	return (n + a - 1) / a * a
}

func payloadOffset(slotCount int) int {
	return alignUp(headerSize+slotCount*slotDescSize, payloadAlign)
}

// segmentSize returns the shared memory size needed for a ring with the
// given number of frame slots.
func segmentSize(slotCount int) int {
	return payloadOffset(slotCount) + slotCount*frame.Size
}

func u32at(data []byte, off int) *atomic.Uint32 {
	return (*atomic.Uint32)(unsafe.Pointer(&data[off]))
}

func u64at(data []byte, off int) *atomic.Uint64 {
	return (*atomic.Uint64)(unsafe.Pointer(&data[off]))
}

func wireRing(data []byte, slotCount int) *ring {
	r := &ring{
		slotCount:   slotCount,
		payloadSize: frame.Size,
		head:        u64at(data, offHead),
		publisher:   u32at(data, offPublisher),
		slots:       make([]slot, slotCount),
		payload:     data[payloadOffset(slotCount):],
	}
	for i := range r.slots {
		off := headerSize + i*slotDescSize
		r.slots[i] = slot{
			state: u64at(data, off),
			pub:   u64at(data, off+8),
		}
	}
	return r
}

// initRing formats a freshly created segment and returns the ring over it.
func initRing(data []byte, slotCount int) *ring {
	u32at(data, offVersion).Store(layoutVersion)
	u32at(data, offSlotCount).Store(uint32(slotCount))
	u64at(data, offPayloadSize).Store(frame.Size)
	u64at(data, offHead).Store(0)
	u32at(data, offPublisher).Store(0)
	// Publish the magic word last so attaching processes never see a
	// half-initialized header.
	u64at(data, offMagic).Store(magic)
	return wireRing(data, slotCount)
}

// attachRing validates the header of an existing segment against this
// build's frame layout. This is the startup layout assertion: a peer built
// with a different Frame definition is rejected here, before any payload is
// interpreted.
func attachRing(data []byte) (*ring, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: segment too small (%d bytes)", ErrLayoutMismatch, len(data))
	}
	if m := u64at(data, offMagic).Load(); m != magic {
		return nil, fmt.Errorf("%w: bad magic %#x", ErrLayoutMismatch, m)
	}
	if v := u32at(data, offVersion).Load(); v != layoutVersion {
		return nil, fmt.Errorf("%w: layout version %d, want %d", ErrLayoutMismatch, v, layoutVersion)
	}
	if ps := u64at(data, offPayloadSize).Load(); ps != frame.Size {
		return nil, fmt.Errorf("%w: payload size %d, this build uses %d", ErrLayoutMismatch, ps, frame.Size)
	}
	slotCount := int(u32at(data, offSlotCount).Load())
	if slotCount < 2 || len(data) != segmentSize(slotCount) {
		return nil, fmt.Errorf("%w: %d slots in %d byte segment", ErrLayoutMismatch, slotCount, len(data))
	}
	return wireRing(data, slotCount), nil
}

func (r *ring) framePtr(idx int) *frame.Frame {
	return (*frame.Frame)(unsafe.Pointer(&r.payload[idx*r.payloadSize]))
}

// claim finds a slot with no writer and no readers and marks it as being
// written. Scanning starts just past the newest publication so the oldest
// slots are recycled first. The claimed slot's publication number is cleared
// so in-flight takes fail their re-check instead of reading a slot under
// modification.
func (r *ring) claim() (int, error) {
	start := int(r.head.Load() % uint64(r.slotCount))
	for i := range r.slotCount {
		idx := (start + 1 + i) % r.slotCount
		if r.slots[idx].state.CompareAndSwap(0, writingBit) {
			r.slots[idx].pub.Store(0)
			return idx, nil
		}
	}
	return 0, ErrNoFreeSlot
}

// publish makes a claimed slot visible to subscribers and returns its
// publication number. Only the single producer calls this, so head needs no
// compare-and-swap.
func (r *ring) publish(idx int) uint64 {
	pub := r.head.Load() + 1
	r.slots[idx].pub.Store(pub)
	r.slots[idx].state.Store(0)
	r.head.Store(pub)
	return pub
}

// abort returns a claimed slot to the pool without publishing.
func (r *ring) abort(idx int) {
	r.slots[idx].state.Store(0)
}

// take acquires a reader reference on the oldest publication newer than
// after. It returns ok=false when no such publication is currently
// available. The caller must pair a successful take with exactly one
// release.
func (r *ring) take(after uint64) (idx int, pub uint64, ok bool) {
	for range takeRetries {
		if r.head.Load() <= after {
			return 0, 0, false
		}
		best := -1
		bestPub := uint64(math.MaxUint64)
		for i := range r.slots {
			if p := r.slots[i].pub.Load(); p > after && p < bestPub {
				best, bestPub = i, p
			}
		}
		if best < 0 {
			// The candidate was recycled between the head check and the
			// scan. A newer publication will land shortly.
			runtime.Gosched()
			continue
		}
		s := r.slots[best]
		st := s.state.Load()
		if st&writingBit != 0 {
			runtime.Gosched()
			continue
		}
		if !s.state.CompareAndSwap(st, st+1) {
			continue
		}
		if s.pub.Load() != bestPub {
			// The producer recycled the slot before our reference took
			// effect. Back out and rescan.
			r.release(best)
			continue
		}
		return best, bestPub, true
	}
	return 0, 0, false
}

// release drops one reader reference.
func (r *ring) release(idx int) {
	r.slots[idx].state.Add(^uint64(0))
}
