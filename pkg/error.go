package pkg

import (
	"errors"
	"syscall"
)

// Broker transport and protocol errors.
var (
	// ErrTransport indicates the broker socket could not be created or connected.
	ErrTransport = errors.New("broker transport failure")

	// ErrShortRead indicates the peer closed the stream mid-message.
	ErrShortRead = errors.New("short read")

	// ErrShortWrite indicates a write transferred fewer bytes than requested.
	ErrShortWrite = errors.New("short write")

	// ErrProtocol indicates a protocol error.
	ErrProtocol = errors.New("protocol error")

	// ErrMessageTruncated indicates the in-band or ancillary area of a
	// received message was truncated by the kernel.
	ErrMessageTruncated = errors.New("message truncated")

	// ErrUnexpectedControl indicates an ancillary block that does not carry
	// file descriptors.
	ErrUnexpectedControl = errors.New("unexpected control message")

	// ErrMalformedControl indicates an ancillary block with an invalid length.
	ErrMalformedControl = errors.New("malformed control message")

	// ErrTooManyFDs indicates a message carried more descriptors than requested.
	ErrTooManyFDs = errors.New("too many file descriptors")

	// ErrNameTooLong indicates a received frame does not fit the caller's buffer.
	ErrNameTooLong = errors.New("frame exceeds buffer capacity")

	// ErrStringTooLong indicates a string cannot be encoded in a 16-bit frame.
	ErrStringTooLong = errors.New("string too long for frame")

	// ErrIO indicates a device handle request failed.
	ErrIO = errors.New("input/output error")
)

// General errors.
var (
	// ErrNoDevice indicates the device is not present.
	ErrNoDevice = errors.New("device not present")

	// ErrInvalidState indicates an invalid state for the operation.
	ErrInvalidState = errors.New("invalid state")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrNotSupported indicates an unsupported operation or feature.
	ErrNotSupported = errors.New("not supported")

	// ErrBusy indicates the resource is busy.
	ErrBusy = errors.New("resource busy")

	// ErrAlreadyRunning indicates the monitor is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning indicates the monitor is not running.
	ErrNotRunning = errors.New("not running")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNoResources indicates a request would exceed a resource bound.
	ErrNoResources = errors.New("no resources available")
)

// ResultCode is the fixed result set reported to callers that open devices
// through the broker.
type ResultCode int

// Result codes, numerically compatible with libusb's error codes.
const (
	ResultSuccess      ResultCode = 0   // Operation completed
	ResultIO           ResultCode = -1  // Input/output error
	ResultInvalidParam ResultCode = -2  // Invalid parameter
	ResultNoDevice     ResultCode = -4  // Device not present
	ResultBusy         ResultCode = -6  // Resource busy
	ResultNoMem        ResultCode = -11 // Insufficient memory
	ResultNotSupported ResultCode = -12 // Operation not supported
	ResultOther        ResultCode = -99 // Any other failure
)

// String returns a string representation of the result code.
func (c ResultCode) String() string {
	switch c {
	case ResultSuccess:
		return "success"
	case ResultIO:
		return "io"
	case ResultInvalidParam:
		return "invalid-param"
	case ResultNoDevice:
		return "no-device"
	case ResultBusy:
		return "busy"
	case ResultNoMem:
		return "no-mem"
	case ResultNotSupported:
		return "not-supported"
	default:
		return "other"
	}
}

// Error returns the sentinel error corresponding to the result code.
func (c ResultCode) Error() error {
	switch c {
	case ResultSuccess:
		return nil
	case ResultIO:
		return ErrIO
	case ResultInvalidParam:
		return ErrInvalidParameter
	case ResultNoDevice:
		return ErrNoDevice
	case ResultBusy:
		return ErrBusy
	case ResultNoMem:
		return ErrNoResources
	case ResultNotSupported:
		return ErrNotSupported
	default:
		return ErrProtocol
	}
}

// Code classifies err into a ResultCode. Resource exhaustion is checked
// before I/O so that an ENOMEM wrapped in ErrIO still reports ResultNoMem.
func Code(err error) ResultCode {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrNoResources), errors.Is(err, syscall.ENOMEM):
		return ResultNoMem
	case errors.Is(err, ErrInvalidParameter):
		return ResultInvalidParam
	case errors.Is(err, ErrNoDevice), errors.Is(err, syscall.ENODEV):
		return ResultNoDevice
	case errors.Is(err, ErrBusy), errors.Is(err, ErrAlreadyRunning):
		return ResultBusy
	case errors.Is(err, ErrNotSupported):
		return ResultNotSupported
	case errors.Is(err, ErrIO):
		return ResultIO
	default:
		return ResultOther
	}
}
