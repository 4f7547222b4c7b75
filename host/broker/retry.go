//go:build linux || darwin

package broker

import (
	"errors"
	"fmt"
	"time"

	retry "github.com/avast/retry-go/v5"
	"golang.org/x/sys/unix"

	"github.com/ardnew/usbhelper/pkg"
)

// =============================================================================
// Interrupt Retry
// =============================================================================

// interruptRetry re-runs an operation for as long as it fails with EINTR.
// Attempts are unbounded and immediate.
var interruptRetry = []retry.Option{
	retry.UntilSucceeded(),
	retry.RetryIf(isInterrupted),
	retry.DelayType(func(uint, error, retry.DelayContext) time.Duration { return 0 }),
	retry.LastErrorOnly(true),
}

// isInterrupted reports whether err is the transient interrupted-call error.
func isInterrupted(err error) bool {
	return errors.Is(err, unix.EINTR)
}

// retryInterrupted runs op until it returns anything other than EINTR.
func retryInterrupted[T any](op func() (T, error)) (T, error) {
	return retry.NewWithData[T](interruptRetry...).Do(op)
}

// =============================================================================
// Reliable Byte I/O
// =============================================================================

// readFull reads len(buf) bytes from fd. It returns fewer bytes with a nil
// error only when the peer shut the stream down.
func readFull(fd int, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := retryInterrupted(func() (int, error) {
			return unix.Read(fd, buf[total:])
		})
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

// writeOnce issues a single write of p. A short write is an error.
func writeOnce(fd int, p []byte) error {
	n, err := retryInterrupted(func() (int, error) {
		return unix.Write(fd, p)
	})
	if err != nil {
		return err
	}
	if n < len(p) {
		return fmt.Errorf("%w: wrote %d of %d bytes", pkg.ErrShortWrite, n, len(p))
	}
	return nil
}
