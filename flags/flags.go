// Package flags implements command-line flags shared across shmcast
// subcommands.
//
// The design idea is taken from [upspin.io/flags], but most of the code is
// modified. This package uses a slightly modified version of [RegisterInto] and
// the internal [flags]-map. See [Upspin LICENSE] for upspins copyright and
// license information.
//
// [upspin.io/flags]: https://github.com/upspin/upspin/tree/334f107fe3d98225d7adfbb35b74e066fbca9875/flags
// [Upspin LICENSE]: https://github.com/upspin/upspin/blob/334f107fe3d98225d7adfbb35b74e066fbca9875/LICENSE
package flags

import (
	"flag"
	"fmt"
)

type FlagName string

// flag keys
const (
	ServiceFlag    FlagName = "service"
	RemoteAddrFlag FlagName = "remote"
	HTTPAddrFlag   FlagName = "http-address"
	FPSFlag        FlagName = "fps"
)

// Flag vars
var (
	// Service is the shared memory service name frames travel over.
	Service = "camera/video"

	// RemoteAddr
	RemoteAddr = "127.0.0.1:5000"

	// HTTP Server
	HTTPAddr = ""

	// FPS is the nominal frame rate
	FPS = uint(30)
)

type flagVar func(*flag.FlagSet)

func stringVar(p *string, name FlagName, defaultValue *string, usage string) func(*flag.FlagSet) {
	return func(fs *flag.FlagSet) {
		fs.StringVar(p, string(name), *defaultValue, usage)
	}
}

func uintVar(p *uint, name FlagName, defaultValue *uint, usage string) func(*flag.FlagSet) {
	return func(fs *flag.FlagSet) {
		fs.UintVar(p, string(name), *defaultValue, usage)
	}
}

var flags = map[FlagName]flagVar{
	ServiceFlag:    stringVar(&Service, ServiceFlag, &Service, "Shared memory service name"),
	RemoteAddrFlag: stringVar(&RemoteAddr, RemoteAddrFlag, &RemoteAddr, "Address for remote servers"),
	HTTPAddrFlag:   stringVar(&HTTPAddr, HTTPAddrFlag, &HTTPAddr, "HTTP Server address, empty disables the server"),
	FPSFlag:        uintVar(&FPS, FPSFlag, &FPS, "Frames per second"),
}

func RegisterInto(fs *flag.FlagSet, names ...FlagName) {
	if len(names) == 0 {
		for _, f := range flags {
			f(fs)
		}
	} else {
		for _, n := range names {
			f, ok := flags[n]
			if !ok {
				panic(fmt.Sprintf("unknown flag: %q", n))
			}
			f(fs)
		}
	}
}
