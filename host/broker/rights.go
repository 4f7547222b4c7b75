//go:build linux || darwin

package broker

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/ardnew/usbhelper/pkg"
)

// =============================================================================
// Descriptor Reception
// =============================================================================

// fdList owns received descriptors until they are handed to the caller.
type fdList []int

// closeAll closes every descriptor in the list and empties it.
func (l *fdList) closeAll() {
	for _, fd := range *l {
		unix.Close(fd)
	}
	*l = (*l)[:0]
}

// closeRights closes every descriptor carried by the SCM_RIGHTS blocks in
// oob. The kernel installs them before recvmsg returns, so a rejected
// message must not leave any behind. Parsing stops at the first header that
// does not decode.
func closeRights(oob []byte) {
	for len(oob) > 0 {
		hdr, data, rest, err := unix.ParseOneSocketControlMessage(oob)
		if err != nil {
			return
		}
		if isRights(hdr) {
			fds, _ := unix.ParseUnixRights(&unix.SocketControlMessage{Header: hdr, Data: data})
			l := fdList(fds)
			l.closeAll()
		}
		oob = rest
	}
}

func isRights(hdr unix.Cmsghdr) bool {
	return hdr.Level == unix.SOL_SOCKET && hdr.Type == unix.SCM_RIGHTS
}

// controlSpace returns the ancillary buffer size needed for capacity
// descriptors, or an error if it would not fit in one page.
func controlSpace(capacity int) (int, error) {
	if capacity < 0 {
		return 0, fmt.Errorf("%w: descriptor capacity %d", pkg.ErrInvalidParameter, capacity)
	}
	space := unix.CmsgSpace(capacity * fdSize)
	if space >= os.Getpagesize() {
		return 0, fmt.Errorf("%w: %d descriptors need %d bytes of control space: %w",
			pkg.ErrNoResources, capacity, space, unix.ENOMEM)
	}
	return space, nil
}

// RecvFDs receives one message into payload together with at most capacity
// descriptors. It returns the number of payload bytes and the received
// descriptors, which the caller then owns.
//
// The message is rejected, with every descriptor it carried closed, if the
// kernel truncated either area, if an ancillary block is not SCM_RIGHTS, if
// a block length is not a positive multiple of the descriptor size, or if
// the total exceeds capacity.
func (c *Conn) RecvFDs(payload []byte, capacity int) (int, []int, error) {
	space, err := controlSpace(capacity)
	if err != nil {
		return 0, nil, err
	}

	oob := make([]byte, space)
	var n, oobn, flags int
	_, err = retryInterrupted(func() (struct{}, error) {
		var err error
		n, oobn, flags, _, err = unix.Recvmsg(c.fd, payload, oob, recvFlags)
		return struct{}{}, err
	})
	if err != nil {
		return 0, nil, fmt.Errorf("recvmsg: %w", err)
	}
	oob = oob[:oobn]

	if flags&unix.MSG_TRUNC != 0 {
		closeRights(oob)
		return 0, nil, fmt.Errorf("%w: payload exceeds %d bytes", pkg.ErrMessageTruncated, len(payload))
	}
	if flags&unix.MSG_CTRUNC != 0 {
		closeRights(oob)
		return 0, nil, fmt.Errorf("%w: control data exceeds %d bytes", pkg.ErrMessageTruncated, space)
	}

	fds, err := parseRights(oob, capacity)
	if err != nil {
		return 0, nil, err
	}

	pkg.LogDebug(pkg.ComponentBroker, "message received", "bytes", n, "fds", len(fds))
	return n, fds, nil
}

// parseRights walks the ancillary blocks in oob and collects at most
// capacity descriptors. On error every descriptor in oob has been closed:
// those already collected, those in the failing block and those after it.
func parseRights(oob []byte, capacity int) (fdList, error) {
	fds := make(fdList, 0, capacity)
	for rest := oob; len(rest) > 0; {
		hdr, data, next, err := unix.ParseOneSocketControlMessage(rest)
		if err != nil {
			fds.closeAll()
			return nil, fmt.Errorf("%w: %w", pkg.ErrMalformedControl, err)
		}
		if !isRights(hdr) {
			fds.closeAll()
			closeRights(next)
			return nil, fmt.Errorf("%w: level %d type %d", pkg.ErrUnexpectedControl, hdr.Level, hdr.Type)
		}
		if len(data) < fdSize || len(data)%fdSize != 0 {
			fds.closeAll()
			closeWhole(hdr, data)
			closeRights(next)
			return nil, fmt.Errorf("%w: rights length %d", pkg.ErrMalformedControl, len(data))
		}

		got, err := unix.ParseUnixRights(&unix.SocketControlMessage{Header: hdr, Data: data})
		if err != nil {
			fds.closeAll()
			closeRights(rest)
			return nil, fmt.Errorf("%w: %w", pkg.ErrMalformedControl, err)
		}
		if len(fds)+len(got) > capacity {
			fds.closeAll()
			closeRights(rest)
			return nil, fmt.Errorf("%w: %d received, capacity %d", pkg.ErrTooManyFDs, len(fds)+len(got), capacity)
		}
		for _, fd := range got {
			if !atomicCloexec {
				unix.CloseOnExec(fd)
			}
			fds = append(fds, fd)
		}
		rest = next
	}
	return fds, nil
}

// closeWhole closes the complete descriptors at the front of a rights block
// whose length is not a multiple of the descriptor size.
func closeWhole(hdr unix.Cmsghdr, data []byte) {
	data = data[:len(data)-len(data)%fdSize]
	if len(data) == 0 {
		return
	}
	fds, _ := unix.ParseUnixRights(&unix.SocketControlMessage{Header: hdr, Data: data})
	l := fdList(fds)
	l.closeAll()
}
