//go:build darwin

package broker

import (
	"syscall"

	"golang.org/x/sys/unix"
)

const abstractSupported = false

const recvFlags = 0

const atomicCloexec = false

// socketCloexec holds ForkLock so a concurrent fork cannot inherit the
// socket before it is marked close-on-exec.
func socketCloexec() (int, error) {
	syscall.ForkLock.RLock()
	defer syscall.ForkLock.RUnlock()

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	unix.CloseOnExec(fd)
	return fd, nil
}

func pipeCloexec() (r, w int, err error) {
	syscall.ForkLock.RLock()
	defer syscall.ForkLock.RUnlock()

	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return -1, -1, err
	}
	unix.CloseOnExec(p[0])
	unix.CloseOnExec(p[1])
	return p[0], p[1], nil
}
