//go:build linux || darwin

package broker

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ardnew/usbhelper/pkg"
)

// =============================================================================
// String Frames
// =============================================================================
//
// A string travels as a 16-bit big-endian byte count followed by that many
// bytes. There is no terminator and no padding. The empty string is a bare
// header and doubles as the end-of-list marker.

// AppendString appends the frame encoding of s to dst.
func AppendString(dst []byte, s string) ([]byte, error) {
	if len(s) > MaxFrameLength {
		return dst, fmt.Errorf("%w: %d bytes", pkg.ErrStringTooLong, len(s))
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(s)))
	return append(dst, s...), nil
}

// DecodeString decodes one frame from the front of b and returns the string
// and the remaining bytes. A frame whose length is not strictly less than
// capacity is rejected.
func DecodeString(b []byte, capacity int) (string, []byte, error) {
	if len(b) < frameHeaderSize {
		return "", b, fmt.Errorf("%w: frame header", pkg.ErrShortRead)
	}
	length := int(binary.BigEndian.Uint16(b))
	if length >= capacity {
		return "", b, fmt.Errorf("%w: length %d, capacity %d", pkg.ErrNameTooLong, length, capacity)
	}
	b = b[frameHeaderSize:]
	if len(b) < length {
		return "", b, fmt.Errorf("%w: frame payload %d of %d bytes", pkg.ErrShortRead, len(b), length)
	}
	return string(b[:length]), b[length:], nil
}

// WriteString sends s as one frame. The header and payload are written
// separately; the empty string sends the header only.
func (c *Conn) WriteString(s string) error {
	if len(s) > MaxFrameLength {
		return fmt.Errorf("%w: %d bytes", pkg.ErrStringTooLong, len(s))
	}

	var hdr [frameHeaderSize]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(s)))
	if err := writeOnce(c.fd, hdr[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(s) == 0 {
		return nil
	}
	if err := writeOnce(c.fd, []byte(s)); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// ReadString receives one frame. The peer closing the stream before a
// header arrives yields an error matching both pkg.ErrShortRead and io.EOF.
func (c *Conn) ReadString(capacity int) (string, error) {
	var hdr [frameHeaderSize]byte
	n, err := readFull(c.fd, hdr[:])
	if err != nil {
		return "", fmt.Errorf("read frame header: %w", err)
	}
	switch n {
	case 0:
		return "", fmt.Errorf("%w: %w", pkg.ErrShortRead, io.EOF)
	case frameHeaderSize:
	default:
		return "", fmt.Errorf("%w: frame header %d of %d bytes", pkg.ErrShortRead, n, frameHeaderSize)
	}

	length := int(binary.BigEndian.Uint16(hdr[:]))
	if length >= capacity {
		return "", fmt.Errorf("%w: length %d, capacity %d", pkg.ErrNameTooLong, length, capacity)
	}
	if length == 0 {
		return "", nil
	}

	buf := make([]byte, length)
	n, err = readFull(c.fd, buf)
	if err != nil {
		return "", fmt.Errorf("read frame payload: %w", err)
	}
	if n != length {
		return "", fmt.Errorf("%w: frame payload %d of %d bytes", pkg.ErrShortRead, n, length)
	}
	return string(buf), nil
}

// =============================================================================
// Event Frames
// =============================================================================

// AppendEvent appends the live-event encoding of ev: one action byte
// followed by the name frame.
func AppendEvent(dst []byte, ev Event) ([]byte, error) {
	return AppendString(append(dst, byte(ev.Action)), ev.Name)
}

// ReadEvent receives one live event. The returned event has Live set.
func (c *Conn) ReadEvent(capacity int) (Event, error) {
	var action [1]byte
	n, err := readFull(c.fd, action[:])
	if err != nil {
		return Event{}, fmt.Errorf("read event action: %w", err)
	}
	if n == 0 {
		return Event{}, fmt.Errorf("%w: event action: %w", pkg.ErrShortRead, io.EOF)
	}

	name, err := c.ReadString(capacity)
	if err != nil {
		return Event{}, fmt.Errorf("read event name: %w", err)
	}
	return Event{Action: decodeAction(action[0]), Name: name, Live: true}, nil
}
