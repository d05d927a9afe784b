package subcmd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/julienschmidt/httprouter"
	"golang.org/x/sync/errgroup"

	"github.com/edgevid/shmcast"
	"github.com/edgevid/shmcast/cmdmain"
	"github.com/edgevid/shmcast/flags"
	"github.com/edgevid/shmcast/frame"
	"github.com/edgevid/shmcast/internal/http"
	"github.com/edgevid/shmcast/internal/logging"
	"github.com/edgevid/shmcast/process"
	"github.com/edgevid/shmcast/pubsub"
)

func init() {
	cmdmain.RegisterSubCmd("subscribe", func() cmdmain.SubCmd { return new(Subscribe) })
}

type subscribeFlags struct {
	logEvery uint64
}

type Subscribe struct{}

// Exec implements cmdmain.SubCmd.
func (s *Subscribe) Exec(cmd string, args []string) error {
	var sf subscribeFlags

	fs := flag.NewFlagSet("subscribe", flag.ExitOnError)
	flags.RegisterInto(fs, flags.ServiceFlag, flags.HTTPAddrFlag)
	fs.Uint64Var(&sf.logEvery, "log-every", 100, "Log frame metadata every Nth frame")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Subscribe to a shared memory service and log received frames

Usage:
	%s subscribe [flags]

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

	svc, err := pubsub.Open(flags.Service)
	if err != nil {
		return err
	}
	defer svc.Close()

	sub, err := svc.NewSubscriber()
	if err != nil {
		return err
	}
	defer sub.Close()

	frameLog := logging.NewFrameLogger(sf.logEvery, slog.Default())
	var proc shmcast.Processor = shmcast.ProcessorFunc(func(f *frame.Frame) error {
		frameLog.LogFrame(f)
		return nil
	})

	var preview *process.Preview
	if flags.HTTPAddr != "" {
		preview = process.NewPreview()
		proc = process.Tee{proc, preview}
	}

	receiver, err := shmcast.NewReceiver(shmcast.SubscriberSource(sub), proc)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer stop()
		return receiver.Run(ctx)
	})
	if flags.HTTPAddr != "" {
		mux := httprouter.New()
		api := http.NewAPI(receiver.Stats, preview)
		api.RegisterRoutes(mux)
		server, err := http.NewServer(
			http.Address(flags.HTTPAddr),
			http.Handle(mux),
			http.RequestLogger(slog.Default()),
		)
		if err != nil {
			return err
		}
		eg.Go(func() error {
			return server.ListenAndServe(ctx)
		})
	}

	err = eg.Wait()
	snap := receiver.Stats()
	slog.Info("receive loop finished",
		"frames", snap.Frames,
		"invalid", snap.InvalidFrames,
		"process_errors", snap.ProcessErrors,
		"gaps", snap.Gaps,
		"dropped", snap.DroppedFrames,
	)
	return err
}

// Help implements cmdmain.SubCmd.
func (s *Subscribe) Help() string {
	return "Subscribe to a shared memory service and log received frames"
}
