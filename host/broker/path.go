package broker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ardnew/usbhelper/pkg"
)

// FormatDevicePath constructs a /dev/bus/usb path from bus and device numbers.
func FormatDevicePath(bus, addr uint8) string {
	// Path format: /dev/bus/usb/BBB/DDD where BBB and DDD are zero-padded
	buf := make([]byte, 0, devicePathLen)
	buf = append(buf, DevfsUSBPath...)
	buf = appendPadded(append(buf, '/'), bus)
	buf = appendPadded(append(buf, '/'), addr)
	return string(buf)
}

// appendPadded appends v as exactly three decimal digits.
func appendPadded(buf []byte, v uint8) []byte {
	return append(buf, '0'+v/100, '0'+v/10%10, '0'+v%10)
}

// ParseDevicePath extracts the bus and device numbers from a device node
// path. Both /dev/bus/usb/B/D and the legacy /proc/bus/usb/B/D forms are
// accepted; the numbers need not be zero-padded.
func ParseDevicePath(name string) (bus, addr uint8, err error) {
	rest, ok := strings.CutPrefix(name, DevfsUSBPath+"/")
	if !ok {
		rest, ok = strings.CutPrefix(name, procfsUSBPath+"/")
	}
	if !ok {
		return 0, 0, fmt.Errorf("%w: not a usb device path: %q", pkg.ErrInvalidParameter, name)
	}

	busStr, addrStr, ok := strings.Cut(rest, "/")
	if !ok {
		return 0, 0, fmt.Errorf("%w: missing device number: %q", pkg.ErrInvalidParameter, name)
	}
	if bus, err = parseNumber(busStr); err != nil {
		return 0, 0, fmt.Errorf("%w: bus number in %q", pkg.ErrInvalidParameter, name)
	}
	if addr, err = parseNumber(addrStr); err != nil {
		return 0, 0, fmt.Errorf("%w: device number in %q", pkg.ErrInvalidParameter, name)
	}
	return bus, addr, nil
}

func parseNumber(s string) (uint8, error) {
	if s == "" || s[0] == '+' || s[0] == '-' {
		return 0, strconv.ErrSyntax
	}
	v, err := strconv.ParseUint(s, 10, 8)
	return uint8(v), err
}
