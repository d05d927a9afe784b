package subcmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/edgevid/shmcast/cmdmain"
	"github.com/edgevid/shmcast/flags"
	"github.com/edgevid/shmcast/pubsub"
	"github.com/edgevid/shmcast/source"
)

func init() {
	cmdmain.RegisterSubCmd("publish", func() cmdmain.SubCmd { return new(Publish) })
}

type publishFlags struct {
	file   string
	loop   bool
	width  uint
	height uint
	slots  uint
	count  uint64
}

type Publish struct{}

// Exec implements cmdmain.SubCmd.
func (p *Publish) Exec(cmd string, args []string) error {
	var pf publishFlags

	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	flags.RegisterInto(fs, flags.ServiceFlag, flags.FPSFlag)
	fs.StringVar(&pf.file, "file", "", "YUV4MPEG2 file to publish instead of the synthetic test pattern")
	fs.BoolVar(&pf.loop, "loop", false, "Loop the input file at end of stream")
	fs.UintVar(&pf.width, "width", 1280, "Test pattern width in pixels")
	fs.UintVar(&pf.height, "height", 720, "Test pattern height in pixels")
	fs.UintVar(&pf.slots, "slots", pubsub.DefaultSlotCount, "Number of frame slots to allocate")
	fs.Uint64Var(&pf.count, "count", 0, "Stop after publishing this many frames, 0 means run until interrupted")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Publish video frames to a shared memory service

Usage:
	%s publish [flags]

Flags:
`, cmd)
		fs.PrintDefaults()
		fmt.Fprintln(os.Stderr)
	}
	fs.Parse(args)

	if len(fs.Args()) > 0 {
		fmt.Printf("error: unknown extra arguments: %v\n", fs.Args())
		fs.Usage()
		os.Exit(1)
	}
	if flags.FPS == 0 {
		return errors.New("fps must be positive")
	}

	var src source.FrameSource
	fps := float64(flags.FPS)
	if pf.file != "" {
		f, err := source.OpenY4MFile(pf.file, pf.loop)
		if err != nil {
			return err
		}
		defer f.Close()
		num, den := f.FrameRate()
		fps = sourceRate(num, den, fps)
		src = f
	} else {
		tp, err := source.NewTestPattern(uint32(pf.width), uint32(pf.height))
		if err != nil {
			return err
		}
		src = tp
	}

	svc, err := pubsub.Create(flags.Service, pubsub.SlotCount(int(pf.slots)))
	if err != nil {
		return err
	}
	defer svc.Close()

	pub, err := svc.NewPublisher()
	if err != nil {
		return err
	}
	defer pub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, h, _ := src.Geometry()
	slog.Info("publishing", "service", flags.Service, "width", w, "height", h, "fps", fps, "slots", svc.SlotCount())

	return publishLoop(ctx, pub, src, fps, pf.count)
}

// sourceRate returns the pacing rate declared by a file source, keeping the
// fractional part of rates like 30000/1001. Files without a usable rate fall
// back to the flag value.
func sourceRate(num, den int, fallback float64) float64 {
	if num <= 0 || den <= 0 {
		return fallback
	}
	return float64(num) / float64(den)
}

// publishLoop paces frames from src into the service at fps until ctx is
// cancelled, the source ends, or count frames have been sent.
func publishLoop(ctx context.Context, pub *pubsub.Publisher, src source.FrameSource, fps float64, count uint64) error {
	limiter := rate.NewLimiter(rate.Limit(fps), 1)

	var seq uint64
	var dropped uint64
	for count == 0 || seq < count {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}

		sample, err := pub.Loan()
		if errors.Is(err, pubsub.ErrNoFreeSlot) {
			// All slots are borrowed by subscribers. Skip this tick and
			// retry on the next one.
			dropped++
			slog.Warn("no free slot, skipping tick", "dropped", dropped)
			continue
		}
		if err != nil {
			return err
		}

		f := sample.Payload()
		if err := src.Next(f); err != nil {
			sample.Release()
			if errors.Is(err, io.EOF) {
				slog.Info("end of input", "frames", seq)
				return nil
			}
			return err
		}
		seq++
		f.Sequence = seq
		f.TimestampNS = uint64(time.Now().UnixNano())

		if err := sample.Send(); err != nil {
			return err
		}
		if seq%100 == 0 {
			slog.Info("published", "frames", seq, "dropped", dropped)
		}
	}
	return nil
}

// Help implements cmdmain.SubCmd.
func (p *Publish) Help() string {
	return "Publish video frames to a shared memory service"
}
