//go:build linux || darwin

package broker

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/ardnew/usbhelper/pkg"
)

// State is the lifecycle state of a Monitor.
type State int32

// Monitor states.
const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Monitor delivers device events from the broker to a Handler. It is
// created by Client.StartMonitor and ended by Stop.
type Monitor struct {
	client  *Client
	handler Handler
	maxName int
	metrics *Metrics

	conn    *Conn
	cancelR int // cancellation pipe read end
	cancelW int // cancellation pipe write end

	state atomic.Int32
	done  chan struct{}
	err   error // written by run before done closes
}

// StartMonitor subscribes to device events. The devices already attached
// are delivered to h as non-live arrivals before StartMonitor returns; later
// events are delivered from a background goroutine until Stop.
func (c *Client) StartMonitor(h Handler) (*Monitor, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: nil event handler", pkg.ErrInvalidParameter)
	}

	c.mu.Lock()
	if c.monitor != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: event monitor", pkg.ErrAlreadyRunning)
	}

	m := &Monitor{
		client:  c,
		handler: h,
		maxName: c.maxNameLength,
		metrics: c.metrics,
		cancelR: -1,
		cancelW: -1,
		done:    make(chan struct{}),
	}
	m.state.Store(int32(StateStarting))

	// The slot is reserved while starting; the backlog is drained unlocked
	// so handlers may call back into the client.
	c.monitor = m
	c.mu.Unlock()

	if err := m.start(); err != nil {
		m.teardown()
		m.state.Store(int32(StateStopped))
		c.release(m)
		pkg.LogError(pkg.ComponentMonitor, "failed to start event monitor",
			"endpoint", c.endpoint, "error", err)
		return nil, err
	}
	return m, nil
}

// release frees the client's monitor slot if m still holds it.
func (c *Client) release(m *Monitor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.monitor == m {
		c.monitor = nil
	}
}

func (m *Monitor) start() error {
	conn, err := Dial(m.client.endpoint)
	if err != nil {
		return err
	}
	m.conn = conn

	// An empty frame subscribes to events.
	if err := conn.WriteString(""); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	r, w, err := pipeCloexec()
	if err != nil {
		return fmt.Errorf("create cancellation pipe: %w", err)
	}
	m.cancelR, m.cancelW = r, w

	count, err := m.drainBacklog()
	if err != nil {
		return fmt.Errorf("read device list after %d entries: %w", count, err)
	}
	pkg.LogDebug(pkg.ComponentMonitor, "device list received", "devices", count)

	m.state.Store(int32(StateRunning))
	m.metrics.setMonitorRunning(true)
	go m.run(m.cancelR)

	pkg.LogInfo(pkg.ComponentMonitor, "event monitor started", "endpoint", m.client.endpoint)
	return nil
}

// drainBacklog dispatches the attached-device list up to its empty
// terminator frame.
func (m *Monitor) drainBacklog() (int, error) {
	count := 0
	for {
		name, err := m.conn.ReadString(m.maxName)
		if err != nil {
			return count, err
		}
		if name == "" {
			return count, nil
		}
		count++
		m.dispatch(Event{Action: ActionAttached, Name: name})
	}
}

// teardown releases everything start acquired: write end, read end, then
// the connection.
func (m *Monitor) teardown() {
	if m.cancelW >= 0 {
		unix.Close(m.cancelW)
		m.cancelW = -1
	}
	if m.cancelR >= 0 {
		unix.Close(m.cancelR)
		m.cancelR = -1
	}
	if m.conn != nil {
		m.conn.Close()
	}
}

// run waits for events until the cancellation pipe is closed or the
// connection fails.
func (m *Monitor) run(cancelFd int) {
	defer close(m.done)

	pollFds := []unix.PollFd{
		{Fd: int32(cancelFd), Events: unix.POLLIN},
		{Fd: int32(m.conn.Fd()), Events: unix.POLLIN},
	}

	for {
		_, err := retryInterrupted(func() (int, error) {
			return unix.Poll(pollFds, -1)
		})
		if err != nil {
			m.err = fmt.Errorf("poll: %w", err)
			pkg.LogError(pkg.ComponentMonitor, "event monitor poll failed", "error", err)
			return
		}

		// Cancellation wins even when an event is already readable; that
		// event is dropped.
		if pollFds[0].Revents != 0 {
			pkg.LogDebug(pkg.ComponentMonitor, "event monitor cancelled")
			return
		}
		if pollFds[1].Revents == 0 {
			continue
		}

		ev, err := m.conn.ReadEvent(m.maxName)
		if err != nil {
			// The stream cannot be resynchronised after a bad frame.
			m.err = fmt.Errorf("%w: %w", pkg.ErrProtocol, err)
			pkg.LogError(pkg.ComponentMonitor, "event monitor stopped on protocol error", "error", err)
			return
		}
		m.dispatch(ev)
	}
}

func (m *Monitor) dispatch(ev Event) {
	m.metrics.observeEvent(ev)
	pkg.LogDebug(pkg.ComponentMonitor, "device event",
		"action", ev.Action, "name", ev.Name, "live", ev.Live)

	if err := m.handler.HandleEvent(ev); err != nil {
		pkg.LogWarn(pkg.ComponentMonitor, "event handler failed",
			"action", ev.Action, "name", ev.Name, "live", ev.Live, "error", err)
	}
}

// State returns the monitor's lifecycle state.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// Done returns a channel that is closed when the monitor goroutine ends,
// either by Stop or by a connection failure.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Err returns the reason the monitor goroutine ended. It is nil while the
// goroutine runs and after a clean Stop.
func (m *Monitor) Err() error {
	select {
	case <-m.done:
		return m.err
	default:
		return nil
	}
}

// Stop ends the monitor goroutine and releases its resources. After Stop
// returns the client may start a new monitor. Stop on a monitor that is
// still starting or already stopping fails with pkg.ErrInvalidState.
func (m *Monitor) Stop() error {
	if !m.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		state := m.State()
		if state == StateStopped {
			return fmt.Errorf("%w: event monitor is %s", pkg.ErrNotRunning, state)
		}
		return fmt.Errorf("%w: event monitor is %s", pkg.ErrInvalidState, state)
	}

	// Closing the write end raises POLLHUP on the read end.
	unix.Close(m.cancelW)
	m.cancelW = -1
	<-m.done

	unix.Close(m.cancelR)
	m.cancelR = -1
	m.conn.Close()

	m.state.Store(int32(StateStopped))
	m.metrics.setMonitorRunning(false)
	m.client.release(m)

	pkg.LogInfo(pkg.ComponentMonitor, "event monitor stopped")
	return nil
}
