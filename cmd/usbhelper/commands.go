//go:build linux || darwin

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/ardnew/usbhelper/host/broker"
	"github.com/ardnew/usbhelper/pkg"
	"github.com/ardnew/usbhelper/pkg/config"
	"github.com/ardnew/usbhelper/pkg/linux/usbid"
)

// shutdownTimeout bounds how long the metrics server may take to drain.
const shutdownTimeout = 5 * time.Second

// session carries the configuration resolved before a command runs.
type session struct {
	cfg       config.Config
	logCloser io.Closer
}

func newApp(stdout, stderr io.Writer) *cli.Command {
	s := &session{cfg: config.Default()}
	return &cli.Command{
		Name:      "usbhelper",
		Usage:     "request USB device handles from the privileged broker",
		Version:   Version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML or JSON configuration file",
			},
			&cli.StringFlag{
				Name:    "endpoint",
				Aliases: []string{"e"},
				Usage:   "broker endpoint; a leading @ names an abstract socket",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text, json)",
			},
		},
		Before:   s.before,
		After:    s.after,
		Commands: s.commands(),
		// Exit codes are mapped by run; never let the framework exit.
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
}

func (s *session) commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:      "open",
			Usage:     "fetch a device handle and print its device descriptor",
			ArgsUsage: "<bus> <device> | /dev/bus/usb/BBB/DDD",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "usb-ids",
					Usage: "usb.ids database used to name the device",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				bus, addr, err := parseDeviceArgs(cmd.Args().Slice())
				if err != nil {
					return &usageError{err}
				}
				return s.open(cmd.Root().Writer, bus, addr, cmd.String("usb-ids"))
			},
		},
		{
			Name:  "list",
			Usage: "print the devices the broker reports as attached",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return s.list(cmd.Root().Writer)
			},
		},
		{
			Name:  "monitor",
			Usage: "print device events until interrupted",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "metrics-addr",
					Usage: "serve Prometheus metrics on this address",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				addr := s.cfg.Metrics.Addr
				if cmd.IsSet("metrics-addr") {
					addr = cmd.String("metrics-addr")
				}
				return s.monitor(ctx, cmd.Root().Writer, addr)
			},
		},
	}
}

// before resolves the configuration: defaults, then the file, then flags.
func (s *session) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg := config.Default()
	if path := cmd.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return ctx, &usageError{err}
		}
		cfg = loaded
	}
	if cmd.IsSet("endpoint") {
		cfg.Broker.Endpoint = cmd.String("endpoint")
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		cfg.Log.Format = cmd.String("log-format")
	}
	if err := cfg.Validate(); err != nil {
		return ctx, &usageError{err}
	}

	closer, err := cfg.Log.Apply()
	if err != nil {
		return ctx, &usageError{err}
	}
	s.cfg, s.logCloser = cfg, closer

	pkg.LogDebug(pkg.ComponentCLI, "configuration resolved",
		"endpoint", cfg.Broker.Endpoint, "log_file", cfg.Log.File)
	return ctx, nil
}

func (s *session) after(context.Context, *cli.Command) error {
	if s.logCloser == nil {
		return nil
	}
	err := s.logCloser.Close()
	s.logCloser = nil
	return err
}

func (s *session) client(opts ...broker.Option) *broker.Client {
	return broker.NewClient(append(s.cfg.BrokerOptions(), opts...)...)
}

// parseDeviceArgs accepts either a bus and device number or a device path.
func parseDeviceArgs(args []string) (bus, addr uint8, err error) {
	switch len(args) {
	case 1:
		return broker.ParseDevicePath(args[0])
	case 2:
		b, err := strconv.ParseUint(args[0], 10, 8)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: bus number %q", pkg.ErrInvalidParameter, args[0])
		}
		a, err := strconv.ParseUint(args[1], 10, 8)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: device number %q", pkg.ErrInvalidParameter, args[1])
		}
		return uint8(b), uint8(a), nil
	default:
		return 0, 0, fmt.Errorf("%w: expected <bus> <device> or a device path", pkg.ErrInvalidParameter)
	}
}

// =============================================================================
// open
// =============================================================================

func (s *session) open(w io.Writer, bus, addr uint8, idsPath string) error {
	f, err := s.client().OpenDevice(bus, addr)
	if err != nil {
		return fmt.Errorf("open device (%s): %w", pkg.Code(err), err)
	}
	defer f.Close()

	buf := make([]byte, deviceDescriptorSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return fmt.Errorf("read device descriptor: %w", err)
	}
	desc, err := parseDeviceDescriptor(buf)
	if err != nil {
		return err
	}

	printDescriptor(w, f.Name(), desc, openIDs(idsPath))
	return nil
}

// openIDs loads the usb.ids database, or returns nil if none is available.
func openIDs(path string) *usbid.Database {
	var paths []string
	if path != "" {
		paths = []string{path}
	}
	db, err := usbid.Open(paths...)
	if err != nil {
		pkg.LogWarn(pkg.ComponentCLI, "device names unavailable", "error", err)
		return nil
	}
	return db
}

// =============================================================================
// list
// =============================================================================

func (s *session) list(w io.Writer) error {
	table := newDeviceTable(w)
	m, err := s.client().StartMonitor(broker.RegistryHandler(table, nil))
	if err != nil {
		return fmt.Errorf("subscribe to device events: %w", err)
	}
	if err := m.Stop(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d devices\n", len(table.Devices()))
	return nil
}

// =============================================================================
// monitor
// =============================================================================

func (s *session) monitor(ctx context.Context, w io.Writer, metricsAddr string) error {
	reg := prometheus.NewRegistry()
	var ln net.Listener
	if metricsAddr != "" {
		var err error
		if ln, err = net.Listen("tcp", metricsAddr); err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	client := s.client(broker.WithMetrics(broker.NewMetrics(reg)))
	m, err := client.StartMonitor(broker.RegistryHandler(newDeviceTable(w), nil))
	if err != nil {
		if ln != nil {
			ln.Close()
		}
		return fmt.Errorf("subscribe to device events: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if ln != nil {
		srv := &http.Server{
			Handler:           metricsHandler(reg),
			ReadHeaderTimeout: shutdownTimeout,
		}
		pkg.LogInfo(pkg.ComponentCLI, "serving metrics", "addr", ln.Addr().String())
		g.Go(func() error {
			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-m.Done():
			return fmt.Errorf("event monitor ended: %w", m.Err())
		}
	})

	err = g.Wait()
	if stopErr := m.Stop(); err == nil {
		err = stopErr
	}
	return err
}

// metricsHandler serves reg on /metrics and the runtime profiles under
// /debug/pprof/.
func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}
