//go:build linux || darwin

package broker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ardnew/usbhelper/pkg"
)

// Client requests device handles from the broker and runs at most one
// event monitor at a time. Handle requests may be issued concurrently; each
// uses its own connection.
type Client struct {
	endpoint      string
	maxNameLength int
	metrics       *Metrics

	mu      sync.Mutex
	monitor *Monitor
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint sets the broker endpoint. The default is DefaultEndpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithMaxNameLength sets the receive capacity for device names.
func WithMaxNameLength(n int) Option {
	return func(c *Client) {
		c.maxNameLength = n
	}
}

// WithMetrics records requests and events in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a broker client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		endpoint:      DefaultEndpoint,
		maxNameLength: MaxNameLength,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the broker endpoint.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Monitor returns the running monitor, or nil.
func (c *Client) Monitor() *Monitor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.monitor
}

// Close stops the running monitor, if any. A monitor that is still
// starting is left alone and reported as pkg.ErrInvalidState.
func (c *Client) Close() error {
	m := c.Monitor()
	if m == nil {
		return nil
	}
	if err := m.Stop(); err != nil && !errors.Is(err, pkg.ErrNotRunning) {
		return err
	}
	return nil
}

// =============================================================================
// Device Handle Request
// =============================================================================

// OpenDevice asks the broker for an open handle to the usbfs node of the
// given device. The returned file is positioned at offset 0. Every failure
// matches pkg.ErrIO; pkg.Code classifies it further.
func (c *Client) OpenDevice(bus, addr uint8) (*os.File, error) {
	path := FormatDevicePath(bus, addr)

	f, err := c.openDevice(path)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", pkg.ErrIO, path, err)
	}
	c.metrics.observeRequest(err)
	if err != nil {
		pkg.LogError(pkg.ComponentRPC, "device handle request failed",
			"path", path, "error", err)
		return nil, err
	}

	pkg.LogDebug(pkg.ComponentRPC, "device handle received", "path", path, "fd", f.Fd())
	return f, nil
}

func (c *Client) openDevice(path string) (*os.File, error) {
	conn, err := Dial(c.endpoint)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.WriteString(path); err != nil {
		return nil, fmt.Errorf("send device path: %w", err)
	}

	var status [handleStatusSize]byte
	n, fds, err := conn.RecvFDs(status[:], 1)
	if err != nil {
		c.metrics.observeReject(err)
		return nil, fmt.Errorf("receive handle: %w", err)
	}
	if len(fds) != 1 || n < handleStatusSize {
		l := fdList(fds)
		l.closeAll()
		return nil, fmt.Errorf("%w: reply carried %d bytes and %d descriptors",
			pkg.ErrProtocol, n, len(fds))
	}
	c.metrics.observeFDs(len(fds))

	// The broker's status byte is informational only.
	pkg.LogDebug(pkg.ComponentRPC, "handle reply", "path", path, "status", status[0])
	conn.Close()

	// The descriptor shares its file offset with the broker's copy.
	f := os.NewFile(uintptr(fds[0]), path)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("rewind handle: %w", err)
	}
	return f, nil
}
