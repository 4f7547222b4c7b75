//go:build linux || darwin

// Usbhelper requests USB device handles from the privileged broker and
// watches device arrival and removal.
//
// Usage:
//
//	usbhelper [global options] <command> [arguments]
//
// Global options:
//
//	-c, --config      YAML or JSON configuration file
//	-e, --endpoint    broker endpoint (default: @android_libusb_helper)
//	    --log-level   debug, info, warn or error
//	    --log-format  text or json
//
// Commands:
//
//	open BUS DEV      fetch a device handle and print its device descriptor
//	list              print the devices the broker reports as attached
//	monitor           print device events until interrupted
//
// Exit codes:
//
//	0: success
//	1: the command failed
//	2: invalid arguments or configuration
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "0.1.0-dev"

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(stdout, stderr)
	if err := app.Run(ctx, args); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(stderr, "usage error: %v\n", usageErr)
			return 2
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// usageError marks errors caused by arguments or configuration rather than
// by the broker.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }
