//go:build linux

package broker

import "golang.org/x/sys/unix"

// abstractSupported reports whether '@' endpoints map to the abstract namespace.
const abstractSupported = true

// recvFlags asks the kernel to install received descriptors close-on-exec
// and to suppress SIGPIPE.
const recvFlags = unix.MSG_CMSG_CLOEXEC | unix.MSG_NOSIGNAL

// atomicCloexec reports whether recvFlags already marks received
// descriptors close-on-exec.
const atomicCloexec = true

func socketCloexec() (int, error) {
	return unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
}

func pipeCloexec() (r, w int, err error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return -1, -1, err
	}
	return p[0], p[1], nil
}
