package subcmd

import (
	"context"
	"flag"
	"fmt"
	"net"
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
	cmdmain.RegisterSubCmd("rtp", func() cmdmain.SubCmd { return new(RTP) })
}

type RTP struct{}

// Exec implements cmdmain.SubCmd.
func (r *RTP) Exec(cmd string, args []string) error {
	fs := flag.NewFlagSet("rtp", flag.ExitOnError)
	flags.RegisterInto(fs, flags.ServiceFlag, flags.RemoteAddrFlag, flags.FPSFlag)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Packetize frames from a shared memory service as RTP over UDP

The payload is uncompressed, so this is only useful for loopback or
lab-network experiments.

Usage:
	%s rtp [flags]

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

	conn, err := net.Dial("udp", flags.RemoteAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

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

	streamer, err := process.NewRTPStreamer(conn, uint32(flags.FPS))
	if err != nil {
		return err
	}

	receiver, err := shmcast.NewReceiver(shmcast.SubscriberSource(sub), streamer)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return receiver.Run(ctx)
}

// Help implements cmdmain.SubCmd.
func (r *RTP) Help() string {
	return "Packetize frames from a shared memory service as RTP over UDP"
}
