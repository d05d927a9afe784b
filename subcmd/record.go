package subcmd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
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
	cmdmain.RegisterSubCmd("record", func() cmdmain.SubCmd { return new(Record) })
}

type recordFlags struct {
	out    string
	fpsNum int
	fpsDen int
}

type Record struct{}

// Exec implements cmdmain.SubCmd.
func (r *Record) Exec(cmd string, args []string) error {
	var rf recordFlags

	fs := flag.NewFlagSet("record", flag.ExitOnError)
	flags.RegisterInto(fs, flags.ServiceFlag)
	fs.StringVar(&rf.out, "out", "out.y4m", "Output YUV4MPEG2 file")
	fs.IntVar(&rf.fpsNum, "fps-num", 30, "Frame rate numerator written to the file header")
	fs.IntVar(&rf.fpsDen, "fps-den", 1, "Frame rate denominator written to the file header")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Record frames from a shared memory service to a YUV4MPEG2 file

Usage:
	%s record [flags]

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

	sink, err := process.NewY4MSink(rf.out, rf.fpsNum, rf.fpsDen)
	if err != nil {
		return err
	}
	defer sink.Close()

	receiver, err := shmcast.NewReceiver(shmcast.SubscriberSource(sub), sink)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = receiver.Run(ctx)
	snap := receiver.Stats()
	slog.Info("recording finished", "file", rf.out, "frames", snap.Frames)
	return err
}

// Help implements cmdmain.SubCmd.
func (r *Record) Help() string {
	return "Record frames from a shared memory service to a YUV4MPEG2 file"
}
