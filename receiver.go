// Package shmcast provides the consumer-side receive loop for the shared
// memory frame transport implemented in the pubsub package.
package shmcast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/edgevid/shmcast/frame"
	"github.com/edgevid/shmcast/pubsub"
)

// DefaultPollInterval is the idle delay between acquire attempts when no
// frame is available.
const DefaultPollInterval = time.Millisecond

// Sample is a borrowed, read-only lease on one received frame. See
// pubsub.Sample for the canonical implementation.
type Sample interface {
	Payload() *frame.Frame
	Release() error
}

// Source acquires samples for a receive loop. Receive returns (nil, nil)
// when no frame is available right now; any error is fatal to the loop.
type Source interface {
	Receive() (Sample, error)
}

// SubscriberSource adapts a transport subscriber to the Source interface.
func SubscriberSource(sub *pubsub.Subscriber) Source {
	return subscriberSource{sub: sub}
}

type subscriberSource struct {
	sub *pubsub.Subscriber
}

func (s subscriberSource) Receive() (Sample, error) {
	smp, err := s.sub.Receive()
	if err != nil {
		return nil, err
	}
	if smp == nil {
		return nil, nil
	}
	return smp, nil
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*Receiver) error

// PollInterval sets the idle delay between acquire attempts. Shutdown
// latency is bounded by the same interval.
func PollInterval(d time.Duration) ReceiverOption {
	return func(r *Receiver) error {
		if d <= 0 {
			return fmt.Errorf("poll interval must be positive, got %v", d)
		}
		r.pollInterval = d
		return nil
	}
}

// Logger sets the logger used for per-frame events.
func Logger(logger *slog.Logger) ReceiverOption {
	return func(r *Receiver) error {
		r.logger = logger
		return nil
	}
}

// Receiver runs the acquire/validate/process/release cycle over a frame
// source. Per-frame failures (invalid payloads, processor errors) are
// counted and skipped; only transport failures or cancellation end the loop.
type Receiver struct {
	src          Source
	proc         Processor
	pollInterval time.Duration
	logger       *slog.Logger

	stats   Stats
	tracker SequenceTracker
}

func NewReceiver(src Source, proc Processor, opts ...ReceiverOption) (*Receiver, error) {
	r := &Receiver{
		src:          src,
		proc:         proc,
		pollInterval: DefaultPollInterval,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Stats returns a snapshot of the loop's counters.
func (r *Receiver) Stats() Snapshot {
	return r.stats.Snapshot()
}

// Run drives the receive loop until ctx is cancelled or the transport
// fails. Cancellation is cooperative: it is checked once per acquire cycle,
// never mid-frame. A cancelled run returns nil; a transport failure returns
// the error.
func (r *Receiver) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		smp, err := r.src.Receive()
		if err != nil {
			return fmt.Errorf("acquire: %w", err)
		}
		if smp == nil {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.pollInterval):
			}
			continue
		}

		r.handle(smp)
	}
}

// handle owns the sample for one loop iteration. The release in the defer
// is the only release: it runs on the validation failure path, the
// processor failure path and the success path alike.
func (r *Receiver) handle(smp Sample) {
	defer func() {
		if err := smp.Release(); err != nil {
			r.logger.Error("sample release failed", "error", err)
		}
	}()

	f := smp.Payload()
	if err := f.Validate(); err != nil {
		r.stats.invalidFrames.Add(1)
		r.logger.Warn("skipping invalid frame", "error", err)
		return
	}

	if missed := r.tracker.Observe(f.Sequence); missed > 0 {
		r.stats.gaps.Add(1)
		r.stats.droppedFrames.Add(missed)
		r.logger.Debug("sequence gap", "sequence", f.Sequence, "missed", missed)
	}

	r.stats.frames.Add(1)
	if err := r.proc.Process(f); err != nil {
		r.stats.processErrors.Add(1)
		r.logger.Warn("processor rejected frame", "sequence", f.Sequence, "error", err)
	}
}
