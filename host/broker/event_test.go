package broker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/usbhelper/pkg"
)

func TestAction_String(t *testing.T) {
	assert.Equal(t, "attached", ActionAttached.String())
	assert.Equal(t, "detached", ActionDetached.String())
	assert.Equal(t, "action(9)", Action(9).String())
}

func TestDecodeAction(t *testing.T) {
	for b := 0; b < 256; b++ {
		want := ActionAttached
		if b == 1 {
			want = ActionDetached
		}
		assert.Equal(t, want, decodeAction(byte(b)), "byte %d", b)
	}
}

// registryCall records one Registry invocation.
type registryCall struct {
	removed bool
	bus     uint8
	addr    uint8
	live    bool
}

type recordingRegistry struct {
	calls      []registryCall
	arrivalErr error
}

func (r *recordingRegistry) DeviceArrived(bus, addr uint8, live bool) error {
	r.calls = append(r.calls, registryCall{bus: bus, addr: addr, live: live})
	return r.arrivalErr
}

func (r *recordingRegistry) DeviceRemoved(bus, addr uint8) {
	r.calls = append(r.calls, registryCall{removed: true, bus: bus, addr: addr})
}

func TestRegistryHandler(t *testing.T) {
	reg := &recordingRegistry{}
	h := RegistryHandler(reg, nil)

	events := []Event{
		{Action: ActionAttached, Name: "/dev/bus/usb/001/002"},
		{Action: ActionAttached, Name: "/dev/bus/usb/001/003", Live: true},
		{Action: ActionDetached, Name: "/dev/bus/usb/001/002", Live: true},
	}
	for _, ev := range events {
		require.NoError(t, h.HandleEvent(ev))
	}

	assert.Equal(t, []registryCall{
		{bus: 1, addr: 2, live: false},
		{bus: 1, addr: 3, live: true},
		{removed: true, bus: 1, addr: 2},
	}, reg.calls)
}

func TestRegistryHandler_Errors(t *testing.T) {
	arrival := errors.New("enumeration failed")
	reg := &recordingRegistry{arrivalErr: arrival}
	h := RegistryHandler(reg, nil)

	err := h.HandleEvent(Event{Name: "usbdev1.2"})
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)
	assert.Empty(t, reg.calls)

	err = h.HandleEvent(Event{Name: "/dev/bus/usb/002/001", Live: true})
	assert.ErrorIs(t, err, arrival)
}

func TestRegistryHandler_CustomResolver(t *testing.T) {
	reg := &recordingRegistry{}
	resolve := func(name string) (uint8, uint8, error) {
		if name == "keyboard" {
			return 3, 4, nil
		}
		return 0, 0, pkg.ErrNoDevice
	}
	h := RegistryHandler(reg, resolve)

	require.NoError(t, h.HandleEvent(Event{Action: ActionDetached, Name: "keyboard"}))
	assert.Equal(t, []registryCall{{removed: true, bus: 3, addr: 4}}, reg.calls)
	assert.ErrorIs(t, h.HandleEvent(Event{Name: "mouse"}), pkg.ErrNoDevice)
}

func TestHandlerFunc(t *testing.T) {
	var got Event
	h := HandlerFunc(func(ev Event) error {
		got = ev
		return nil
	})
	want := Event{Action: ActionDetached, Name: "x", Live: true}
	require.NoError(t, h.HandleEvent(want))
	assert.Equal(t, want, got)
}
