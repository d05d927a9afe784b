package pubsub

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgevid/shmcast/frame"
	"github.com/edgevid/shmcast/internal/shm"
)

func testServiceName(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("shmcast-test/%d-%s", os.Getpid(), strings.ReplaceAll(t.Name(), "/", "-"))
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc, err := Create(testServiceName(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		svc.Remove()
		svc.Close()
	})
	return svc
}

func publishFrame(t *testing.T, pub *Publisher, seq uint64) {
	t.Helper()
	smp, err := pub.Loan()
	require.NoError(t, err)
	f := smp.Payload()
	f.TimestampNS = seq * 1000
	f.Sequence = seq
	f.Width = 64
	f.Height = 48
	f.Stride = 64
	f.Len = 64 * 48 * 3 / 2
	f.Data[0] = byte(seq)
	require.NoError(t, smp.Send())
}

func TestRoundTrip(t *testing.T) {
	svc := newTestService(t)

	pub, err := svc.NewPublisher()
	require.NoError(t, err)
	sub, err := svc.NewSubscriber()
	require.NoError(t, err)

	publishFrame(t, pub, 7)

	smp, err := sub.Receive()
	require.NoError(t, err)
	require.NotNil(t, smp)

	f := smp.Payload()
	assert.Equal(t, uint64(7000), f.TimestampNS)
	assert.Equal(t, uint64(7), f.Sequence)
	assert.Equal(t, uint32(64), f.Width)
	assert.Equal(t, uint32(48), f.Height)
	assert.Equal(t, uint32(64), f.Stride)
	assert.Equal(t, byte(7), f.Data[0])
	assert.NoError(t, f.Validate())

	assert.NoError(t, smp.Release())
}

func TestReceiveNoData(t *testing.T) {
	svc := newTestService(t)

	sub, err := svc.NewSubscriber()
	require.NoError(t, err)

	smp, err := sub.Receive()
	assert.NoError(t, err)
	assert.Nil(t, smp)
}

func TestDoubleRelease(t *testing.T) {
	svc := newTestService(t)

	pub, err := svc.NewPublisher()
	require.NoError(t, err)
	sub, err := svc.NewSubscriber()
	require.NoError(t, err)

	publishFrame(t, pub, 1)

	smp, err := sub.Receive()
	require.NoError(t, err)
	require.NotNil(t, smp)

	assert.NoError(t, smp.Release())
	assert.ErrorIs(t, smp.Release(), ErrDoubleRelease)
	assert.Nil(t, smp.Payload())
}

func TestSampleMutConsumedOnSend(t *testing.T) {
	svc := newTestService(t)

	pub, err := svc.NewPublisher()
	require.NoError(t, err)

	smp, err := pub.Loan()
	require.NoError(t, err)
	require.NotNil(t, smp.Payload())

	require.NoError(t, smp.Send())
	assert.ErrorIs(t, smp.Send(), ErrDoubleRelease)
	assert.ErrorIs(t, smp.Release(), ErrDoubleRelease)
	assert.Nil(t, smp.Payload())
}

func TestLoanAbort(t *testing.T) {
	svc := newTestService(t)

	pub, err := svc.NewPublisher()
	require.NoError(t, err)
	sub, err := svc.NewSubscriber()
	require.NoError(t, err)

	smp, err := pub.Loan()
	require.NoError(t, err)
	require.NoError(t, smp.Release())

	// An aborted loan is never delivered.
	got, err := sub.Receive()
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestSinglePublisher(t *testing.T) {
	svc := newTestService(t)

	pub, err := svc.NewPublisher()
	require.NoError(t, err)

	_, err = svc.NewPublisher()
	assert.ErrorIs(t, err, ErrPublisherExists)

	require.NoError(t, pub.Close())
	_, err = pub.Loan()
	assert.ErrorIs(t, err, ErrClosed)

	pub2, err := svc.NewPublisher()
	require.NoError(t, err)
	require.NoError(t, pub2.Close())
}

func TestBacklogInOrder(t *testing.T) {
	svc := newTestService(t)

	pub, err := svc.NewPublisher()
	require.NoError(t, err)
	sub, err := svc.NewSubscriber()
	require.NoError(t, err)

	for seq := uint64(1); seq <= 3; seq++ {
		publishFrame(t, pub, seq)
	}

	for want := uint64(1); want <= 3; want++ {
		smp, err := sub.Receive()
		require.NoError(t, err)
		require.NotNil(t, smp)
		assert.Equal(t, want, smp.Payload().Sequence)
		require.NoError(t, smp.Release())
	}

	smp, err := sub.Receive()
	assert.NoError(t, err)
	assert.Nil(t, smp)
}

func TestOverwriteShowsAsGap(t *testing.T) {
	svc := newTestService(t, SlotCount(4))

	pub, err := svc.NewPublisher()
	require.NoError(t, err)
	sub, err := svc.NewSubscriber()
	require.NoError(t, err)

	// Publish more frames than the pool holds while the subscriber sleeps.
	for seq := uint64(1); seq <= 10; seq++ {
		publishFrame(t, pub, seq)
	}

	var got []uint64
	for {
		smp, err := sub.Receive()
		require.NoError(t, err)
		if smp == nil {
			break
		}
		got = append(got, smp.Payload().Sequence)
		require.NoError(t, smp.Release())
	}

	require.NotEmpty(t, got)
	// The oldest frames were overwritten: the subscriber starts late...
	assert.Greater(t, got[0], uint64(1))
	// ...but never observes reordering, and always ends on the newest frame.
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i], got[i-1])
	}
	assert.Equal(t, uint64(10), got[len(got)-1])
}

func TestLoanExhaustion(t *testing.T) {
	svc := newTestService(t, SlotCount(2))

	pub, err := svc.NewPublisher()
	require.NoError(t, err)
	sub, err := svc.NewSubscriber()
	require.NoError(t, err)

	var held []*Sample
	for seq := uint64(1); seq <= 2; seq++ {
		publishFrame(t, pub, seq)
		smp, err := sub.Receive()
		require.NoError(t, err)
		require.NotNil(t, smp)
		held = append(held, smp)
	}

	// Both slots are borrowed, the producer cannot loan.
	_, err = pub.Loan()
	assert.ErrorIs(t, err, ErrNoFreeSlot)

	// Releasing a borrow frees a slot again.
	require.NoError(t, held[0].Release())
	smp, err := pub.Loan()
	require.NoError(t, err)
	require.NoError(t, smp.Release())

	require.NoError(t, held[1].Release())
}

func TestIndependentSubscribers(t *testing.T) {
	svc := newTestService(t)

	pub, err := svc.NewPublisher()
	require.NoError(t, err)
	sub1, err := svc.NewSubscriber()
	require.NoError(t, err)
	sub2, err := svc.NewSubscriber()
	require.NoError(t, err)

	publishFrame(t, pub, 1)

	for _, sub := range []*Subscriber{sub1, sub2} {
		smp, err := sub.Receive()
		require.NoError(t, err)
		require.NotNil(t, smp)
		assert.Equal(t, uint64(1), smp.Payload().Sequence)
		require.NoError(t, smp.Release())
	}
}

func TestOpenMissingService(t *testing.T) {
	_, err := Open(testServiceName(t))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAttachLayoutMismatch(t *testing.T) {
	name := testServiceName(t)
	seg, err := shm.Create(shm.Sanitize(name), 4096)
	require.NoError(t, err)
	t.Cleanup(func() {
		seg.Unlink()
		seg.Close()
	})

	_, err = Open(name)
	assert.ErrorIs(t, err, ErrLayoutMismatch)
}

func TestAttachExisting(t *testing.T) {
	name := testServiceName(t)
	svc, err := Create(name, SlotCount(4))
	require.NoError(t, err)
	t.Cleanup(func() {
		svc.Remove()
		svc.Close()
	})

	// Create on an existing name attaches instead of failing.
	peer, err := Create(name)
	require.NoError(t, err)
	defer peer.Close()

	assert.Equal(t, 4, peer.SlotCount())
	assert.Equal(t, frame.Size, peer.FrameSize())
}

func TestReceiveContextCancel(t *testing.T) {
	svc := newTestService(t)

	sub, err := svc.NewSubscriber()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = sub.ReceiveContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	const frames = 50

	svc := newTestService(t)

	pub, err := svc.NewPublisher()
	require.NoError(t, err)
	sub, err := svc.NewSubscriber()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		for seq := uint64(1); seq <= frames; seq++ {
			smp, err := pub.Loan()
			if err != nil {
				done <- err
				return
			}
			f := smp.Payload()
			f.Sequence = seq
			f.Width = 64
			f.Height = 48
			f.Stride = 64
			f.Len = 64 * 48 * 3 / 2
			if err := smp.Send(); err != nil {
				done <- err
				return
			}
			time.Sleep(100 * time.Microsecond)
		}
		done <- nil
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var last uint64
	for last < frames {
		smp, err := sub.ReceiveContext(ctx)
		require.NoError(t, err)
		seq := smp.Payload().Sequence
		assert.Greater(t, seq, last)
		last = seq
		require.NoError(t, smp.Release())
	}

	require.NoError(t, <-done)
}
