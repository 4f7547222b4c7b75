package broker

// =============================================================================
// Endpoint
// =============================================================================

// DefaultEndpoint is the abstract-namespace name the broker listens on.
// A leading '@' selects the Linux abstract namespace, which leaves no
// filesystem artifact and cannot collide with a stale socket file.
const DefaultEndpoint = "@android_libusb_helper"

// =============================================================================
// Frame Limits
// =============================================================================

// frameHeaderSize is the size of the big-endian length prefix of a frame.
const frameHeaderSize = 2

// MaxFrameLength is the largest payload a 16-bit length prefix can describe.
const MaxFrameLength = 1<<16 - 1

// MaxNameLength is the default receive capacity for device names, matching
// PATH_MAX. A received name must be strictly shorter than the capacity.
const MaxNameLength = 4096

// =============================================================================
// Descriptor Passing
// =============================================================================

// fdSize is the wire size of one descriptor in an SCM_RIGHTS block.
const fdSize = 4

// handleStatusSize is the size of the in-band status byte that accompanies
// a device handle.
const handleStatusSize = 1

// =============================================================================
// Device Paths
// =============================================================================

// DevfsUSBPath is the base path for USB device nodes.
const DevfsUSBPath = "/dev/bus/usb"

// procfsUSBPath is the legacy base path some brokers still report.
const procfsUSBPath = "/proc/bus/usb"

// devicePathLen is the length of a formatted /dev/bus/usb/BBB/DDD path.
const devicePathLen = len(DevfsUSBPath) + len("/BBB/DDD")
