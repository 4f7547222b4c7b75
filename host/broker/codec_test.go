//go:build linux

package broker

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ardnew/usbhelper/pkg"
)

func TestAppendString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []byte
	}{
		{"empty", "", []byte{0x00, 0x00}},
		{"short", "abc", []byte{0x00, 0x03, 'a', 'b', 'c'}},
		{"device path", "/dev/bus/usb/001/002", append([]byte{0x00, 0x14}, "/dev/bus/usb/001/002"...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AppendString(nil, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAppendString_LengthPrefix(t *testing.T) {
	got, err := AppendString([]byte{0xff}, strings.Repeat("x", 0x0102))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0x01, 0x02}, got[:3])
	assert.Len(t, got, 3+0x0102)
}

func TestAppendString_TooLong(t *testing.T) {
	dst := []byte{1}
	got, err := AppendString(dst, strings.Repeat("x", MaxFrameLength+1))
	assert.ErrorIs(t, err, pkg.ErrStringTooLong)
	assert.Equal(t, dst, got)
}

func TestDecodeString(t *testing.T) {
	tests := []struct {
		name     string
		in       []byte
		capacity int
		want     string
		wantRest []byte
		wantErr  error
	}{
		{"empty frame", []byte{0, 0}, 1, "", []byte{}, nil},
		{"with rest", []byte{0, 2, 'h', 'i', 9}, 3, "hi", []byte{9}, nil},
		{"length equals capacity", []byte{0, 2, 'h', 'i'}, 2, "", nil, pkg.ErrNameTooLong},
		{"zero capacity", []byte{0, 0}, 0, "", nil, pkg.ErrNameTooLong},
		{"short header", []byte{0}, 8, "", nil, pkg.ErrShortRead},
		{"short payload", []byte{0, 4, 'a'}, 8, "", nil, pkg.ErrShortRead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rest, err := DecodeString(tt.in, tt.capacity)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantRest, rest)
		})
	}
}

func TestStringRoundTrip(t *testing.T) {
	lengths := []int{0, 1, 255, 256, MaxNameLength - 1, MaxFrameLength}

	for _, n := range lengths {
		a, b := socketPair(t, unix.SOCK_STREAM)
		want := strings.Repeat("u", n)

		// Large frames exceed the socket buffer; write concurrently.
		werr := make(chan error, 1)
		go func() { werr <- b.WriteString(want) }()

		got, err := a.ReadString(n + 1)
		require.NoError(t, err, "length %d", n)
		require.NoError(t, <-werr, "length %d", n)
		assert.Equal(t, want, got, "length %d", n)
	}
}

func TestReadString_CapacityBound(t *testing.T) {
	a, b := socketPair(t, unix.SOCK_STREAM)

	require.NoError(t, b.WriteString("0123456789"))
	_, err := a.ReadString(10)
	assert.ErrorIs(t, err, pkg.ErrNameTooLong)

	a, b = socketPair(t, unix.SOCK_STREAM)
	require.NoError(t, b.WriteString("0123456789"))
	got, err := a.ReadString(11)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", got)
}

func TestReadString_Short(t *testing.T) {
	tests := []struct {
		name    string
		sent    []byte
		wantEOF bool
	}{
		{"nothing", nil, true},
		{"one header byte", []byte{0}, false},
		{"partial payload", []byte{0, 5, 'a', 'b'}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := socketPair(t, unix.SOCK_STREAM)
			if len(tt.sent) > 0 {
				require.NoError(t, writeOnce(b.Fd(), tt.sent))
			}
			require.NoError(t, b.Close())

			_, err := a.ReadString(MaxNameLength)
			require.ErrorIs(t, err, pkg.ErrShortRead)
			assert.Equal(t, tt.wantEOF, errors.Is(err, io.EOF))
		})
	}
}

func TestWriteString_TooLong(t *testing.T) {
	_, b := socketPair(t, unix.SOCK_STREAM)
	err := b.WriteString(strings.Repeat("x", MaxFrameLength+1))
	assert.ErrorIs(t, err, pkg.ErrStringTooLong)
}

func TestWriteString_EmptyIsHeaderOnly(t *testing.T) {
	a, b := socketPair(t, unix.SOCK_STREAM)
	require.NoError(t, b.WriteString(""))
	require.NoError(t, b.Close())

	buf := make([]byte, 4)
	n, err := readFull(a.Fd(), buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0}, buf[:n])
}

func TestReadEvent(t *testing.T) {
	tests := []struct {
		name       string
		action     byte
		wantAction Action
	}{
		{"attached", 0, ActionAttached},
		{"detached", 1, ActionDetached},
		{"unknown byte is attached", 7, ActionAttached},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := socketPair(t, unix.SOCK_STREAM)

			buf, err := AppendString([]byte{tt.action}, "/dev/bus/usb/001/004")
			require.NoError(t, err)
			require.NoError(t, writeOnce(b.Fd(), buf))

			ev, err := a.ReadEvent(MaxNameLength)
			require.NoError(t, err)
			assert.Equal(t, Event{Action: tt.wantAction, Name: "/dev/bus/usb/001/004", Live: true}, ev)
		})
	}
}

func TestReadEvent_Truncated(t *testing.T) {
	a, b := socketPair(t, unix.SOCK_STREAM)
	require.NoError(t, writeOnce(b.Fd(), []byte{1, 0}))
	require.NoError(t, b.Close())

	_, err := a.ReadEvent(MaxNameLength)
	assert.ErrorIs(t, err, pkg.ErrShortRead)
}

func TestAppendEvent(t *testing.T) {
	got, err := AppendEvent(nil, Event{Action: ActionDetached, Name: "ab"})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 2, 'a', 'b'}, got)
}
