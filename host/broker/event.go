package broker

import (
	"fmt"
	"strconv"
)

// Action is the kind of device event reported by the broker.
type Action uint8

// Device event actions. Only the value 1 means detached on the wire; every
// other byte is read as attached.
const (
	ActionAttached Action = 0
	ActionDetached Action = 1
)

// String returns a string representation of the action.
func (a Action) String() string {
	switch a {
	case ActionAttached:
		return "attached"
	case ActionDetached:
		return "detached"
	default:
		return "action(" + strconv.Itoa(int(a)) + ")"
	}
}

// decodeAction maps a wire byte to an Action.
func decodeAction(b byte) Action {
	if Action(b) == ActionDetached {
		return ActionDetached
	}
	return ActionAttached
}

// Event is one device notification. Live is false for entries of the
// initial device list and true for events received while monitoring.
type Event struct {
	Action Action
	Name   string
	Live   bool
}

// Handler receives device events. Backlog events are delivered on the
// goroutine that starts the monitor; live events on the monitor goroutine.
// A Handler may call any Client method, but must not call Stop on the
// monitor delivering to it.
type Handler interface {
	HandleEvent(ev Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ev Event) error

// HandleEvent calls f(ev).
func (f HandlerFunc) HandleEvent(ev Event) error {
	return f(ev)
}

// Registry tracks the devices known to the host. DeviceArrived is called
// with live false for devices already attached when monitoring begins.
type Registry interface {
	DeviceArrived(bus, addr uint8, live bool) error
	DeviceRemoved(bus, addr uint8)
}

// Resolver maps a device node name to its bus and device numbers.
type Resolver func(name string) (bus, addr uint8, err error)

// RegistryHandler returns a Handler that resolves each event's name and
// forwards it to reg. A nil resolve uses ParseDevicePath.
func RegistryHandler(reg Registry, resolve Resolver) Handler {
	if resolve == nil {
		resolve = ParseDevicePath
	}
	return HandlerFunc(func(ev Event) error {
		bus, addr, err := resolve(ev.Name)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", ev.Name, err)
		}
		if ev.Action == ActionDetached {
			reg.DeviceRemoved(bus, addr)
			return nil
		}
		return reg.DeviceArrived(bus, addr, ev.Live)
	})
}
