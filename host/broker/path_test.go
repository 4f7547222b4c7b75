package broker

import (
	"errors"
	"testing"

	"github.com/ardnew/usbhelper/pkg"
)

// =============================================================================
// FormatDevicePath Tests
// =============================================================================

func TestFormatDevicePath(t *testing.T) {
	tests := []struct {
		bus      uint8
		addr     uint8
		expected string
	}{
		{0, 0, "/dev/bus/usb/000/000"},
		{1, 1, "/dev/bus/usb/001/001"},
		{1, 123, "/dev/bus/usb/001/123"},
		{12, 34, "/dev/bus/usb/012/034"},
		{255, 255, "/dev/bus/usb/255/255"},
	}

	for _, tt := range tests {
		got := FormatDevicePath(tt.bus, tt.addr)
		if got != tt.expected {
			t.Errorf("FormatDevicePath(%d, %d) = %q, want %q",
				tt.bus, tt.addr, got, tt.expected)
		}
		if len(got) != devicePathLen {
			t.Errorf("len(FormatDevicePath(%d, %d)) = %d, want %d",
				tt.bus, tt.addr, len(got), devicePathLen)
		}
	}
}

// =============================================================================
// ParseDevicePath Tests
// =============================================================================

func TestParseDevicePath(t *testing.T) {
	tests := []struct {
		name     string
		wantBus  uint8
		wantAddr uint8
		wantErr  bool
	}{
		{"/dev/bus/usb/001/002", 1, 2, false},
		{"/dev/bus/usb/255/255", 255, 255, false},
		{"/dev/bus/usb/3/17", 3, 17, false},
		{"/proc/bus/usb/002/009", 2, 9, false},
		{"/dev/bus/usb/256/001", 0, 0, true},
		{"/dev/bus/usb/001", 0, 0, true},
		{"/dev/bus/usb/001/", 0, 0, true},
		{"/dev/bus/usb/001/002/3", 0, 0, true},
		{"/dev/bus/usb/+1/002", 0, 0, true},
		{"/dev/bus/usb/-1/002", 0, 0, true},
		{"/dev/ttyUSB0", 0, 0, true},
		{"", 0, 0, true},
	}

	for _, tt := range tests {
		bus, addr, err := ParseDevicePath(tt.name)
		if tt.wantErr {
			if !errors.Is(err, pkg.ErrInvalidParameter) {
				t.Errorf("ParseDevicePath(%q) error = %v, want ErrInvalidParameter", tt.name, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDevicePath(%q) failed: %v", tt.name, err)
			continue
		}
		if bus != tt.wantBus || addr != tt.wantAddr {
			t.Errorf("ParseDevicePath(%q) = %d, %d; want %d, %d",
				tt.name, bus, addr, tt.wantBus, tt.wantAddr)
		}
	}
}

func TestDevicePathRoundTrip(t *testing.T) {
	for bus := 0; bus < 256; bus += 17 {
		for addr := 0; addr < 256; addr += 13 {
			b, a, err := ParseDevicePath(FormatDevicePath(uint8(bus), uint8(addr)))
			if err != nil || b != uint8(bus) || a != uint8(addr) {
				t.Fatalf("round trip of %d/%d = %d/%d, %v", bus, addr, b, a, err)
			}
		}
	}
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkFormatDevicePath(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = FormatDevicePath(uint8(i%256), uint8((i+1)%256))
	}
}
