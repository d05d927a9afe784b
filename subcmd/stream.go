package subcmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/edgevid/shmcast"
	"github.com/edgevid/shmcast/cmdmain"
	"github.com/edgevid/shmcast/flags"
	"github.com/edgevid/shmcast/process"
	"github.com/edgevid/shmcast/pubsub"
)

func init() {
	cmdmain.RegisterSubCmd("stream", func() cmdmain.SubCmd { return new(Stream) })
}

type streamFlags struct {
	url string
}

type Stream struct{}

// Exec implements cmdmain.SubCmd.
func (s *Stream) Exec(cmd string, args []string) error {
	var sf streamFlags

	fs := flag.NewFlagSet("stream", flag.ExitOnError)
	flags.RegisterInto(fs, flags.ServiceFlag, flags.FPSFlag)
	fs.StringVar(&sf.url, "url", "rtsp://127.0.0.1:8554/camera", "RTSP URL to push the encoded stream to")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Encode frames from a shared memory service and push them over RTSP

Requires an ffmpeg binary on PATH.

Usage:
	%s stream [flags]

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

	encoder := process.NewFFmpeg(sf.url, int(flags.FPS))
	defer encoder.Close()

	receiver, err := shmcast.NewReceiver(shmcast.SubscriberSource(sub), encoder)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return receiver.Run(ctx)
}

// Help implements cmdmain.SubCmd.
func (s *Stream) Help() string {
	return "Encode frames from a shared memory service and push them over RTSP"
}
