//go:build linux || darwin

package main

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/ardnew/usbhelper/pkg"
)

// deviceKey identifies a device by bus and device number.
type deviceKey struct {
	bus  uint8
	addr uint8
}

// deviceTable tracks attached devices and reports every change to w. It
// implements broker.Registry.
type deviceTable struct {
	mu      sync.Mutex
	w       io.Writer
	devices map[deviceKey]bool // value is true if seen as a live arrival
}

func newDeviceTable(w io.Writer) *deviceTable {
	return &deviceTable{
		w:       w,
		devices: make(map[deviceKey]bool),
	}
}

// DeviceArrived records a device. Devices from the initial list print as
// "present", later arrivals as "attached".
func (t *deviceTable) DeviceArrived(bus, addr uint8, live bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := deviceKey{bus, addr}
	if _, ok := t.devices[key]; ok {
		return fmt.Errorf("%w: bus %03d device %03d already attached", pkg.ErrBusy, bus, addr)
	}
	t.devices[key] = live

	verb := "present"
	if live {
		verb = "attached"
	}
	fmt.Fprintf(t.w, "%-8s bus %03d device %03d\n", verb, bus, addr)
	return nil
}

// DeviceRemoved forgets a device. Removal of an unknown device is reported
// but otherwise ignored.
func (t *deviceTable) DeviceRemoved(bus, addr uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := deviceKey{bus, addr}
	if _, ok := t.devices[key]; !ok {
		pkg.LogDebug(pkg.ComponentCLI, "removal of unknown device", "bus", bus, "device", addr)
	}
	delete(t.devices, key)
	fmt.Fprintf(t.w, "%-8s bus %03d device %03d\n", "detached", bus, addr)
}

// Devices returns the attached devices ordered by bus and device number.
func (t *deviceTable) Devices() []deviceKey {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := make([]deviceKey, 0, len(t.devices))
	for k := range t.devices {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b deviceKey) int {
		if c := cmp.Compare(a.bus, b.bus); c != 0 {
			return c
		}
		return cmp.Compare(a.addr, b.addr)
	})
	return keys
}
