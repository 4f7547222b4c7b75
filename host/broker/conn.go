//go:build linux || darwin

package broker

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/ardnew/usbhelper/pkg"
)

// Conn is a stream connection to the broker. All descriptors it creates or
// receives are close-on-exec.
type Conn struct {
	fd int
}

// NewConn wraps an already connected stream socket. The Conn takes
// ownership of fd.
func NewConn(fd int) *Conn {
	return &Conn{fd: fd}
}

// Dial connects to the broker listening on endpoint. An endpoint beginning
// with '@' names an abstract socket; anything else is a filesystem path.
func Dial(endpoint string) (*Conn, error) {
	sa, err := endpointAddr(endpoint)
	if err != nil {
		return nil, err
	}

	fd, err := socketCloexec()
	if err != nil {
		return nil, fmt.Errorf("%w: socket: %w", pkg.ErrTransport, err)
	}

	_, err = retryInterrupted(func() (struct{}, error) {
		return struct{}{}, unix.Connect(fd, sa)
	})
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: connect %s: %w", pkg.ErrTransport, endpoint, err)
	}

	pkg.LogDebug(pkg.ComponentBroker, "connected", "endpoint", endpoint, "fd", fd)
	return NewConn(fd), nil
}

// Fd returns the underlying socket descriptor, or -1 after Close.
func (c *Conn) Fd() int {
	return c.fd
}

// Close closes the connection. Closing twice is a no-op.
func (c *Conn) Close() error {
	if c.fd < 0 {
		return nil
	}
	err := unix.Close(c.fd)
	c.fd = -1
	return err
}

// endpointAddr validates endpoint and converts it to a socket address.
func endpointAddr(endpoint string) (*unix.SockaddrUnix, error) {
	switch {
	case endpoint == "":
		return nil, fmt.Errorf("%w: empty broker endpoint", pkg.ErrInvalidParameter)
	case endpoint[0] == '@':
		if !abstractSupported {
			return nil, fmt.Errorf("%w: abstract endpoint %s", pkg.ErrNotSupported, endpoint)
		}
		if len(endpoint) == 1 {
			return nil, fmt.Errorf("%w: empty abstract name", pkg.ErrInvalidParameter)
		}
	}
	return &unix.SockaddrUnix{Name: endpoint}, nil
}
