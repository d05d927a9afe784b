package subcmd

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/edgevid/shmcast/cmdmain"
	"github.com/edgevid/shmcast/flags"
	"github.com/edgevid/shmcast/pubsub"
)

func init() {
	cmdmain.RegisterSubCmd("cleanup", func() cmdmain.SubCmd { return new(Cleanup) })
}

// Cleanup unlinks a service segment left behind by a crashed publisher.
type Cleanup struct{}

// Exec implements cmdmain.SubCmd.
func (c *Cleanup) Exec(cmd string, args []string) error {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	flags.RegisterInto(fs, flags.ServiceFlag)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Remove a leftover shared memory service segment

Usage:
	%s cleanup [flags]

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

	if err := svc.Remove(); err != nil {
		return err
	}
	slog.Info("removed service segment", "service", flags.Service)
	return nil
}

// Help implements cmdmain.SubCmd.
func (c *Cleanup) Help() string {
	return "Remove a leftover shared memory service segment"
}
