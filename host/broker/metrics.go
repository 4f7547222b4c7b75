package broker

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ardnew/usbhelper/pkg"
)

// Metrics holds the broker client's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	// Handle requests by pkg.ResultCode name
	HandleRequests *prometheus.CounterVec
	ReceivedFDs    prometheus.Counter

	// Messages rejected by the descriptor receiver, by reason
	RejectedMessages *prometheus.CounterVec

	// Monitor metrics
	Events         *prometheus.CounterVec
	MonitorRunning prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HandleRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usbhelper_handle_requests_total",
				Help: "Total number of device handle requests by result",
			},
			[]string{"result"},
		),
		ReceivedFDs: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "usbhelper_received_fds_total",
				Help: "Total number of device handles received from the broker",
			},
		),
		RejectedMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usbhelper_rejected_messages_total",
				Help: "Total number of broker messages rejected by the descriptor receiver",
			},
			[]string{"reason"},
		),
		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usbhelper_events_total",
				Help: "Total number of device events dispatched",
			},
			[]string{"action", "live"},
		),
		MonitorRunning: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "usbhelper_monitor_running",
				Help: "Whether the event monitor is running",
			},
		),
	}
}

func (m *Metrics) observeRequest(err error) {
	if m == nil {
		return
	}
	m.HandleRequests.WithLabelValues(pkg.Code(err).String()).Inc()
}

func (m *Metrics) observeFDs(n int) {
	if m == nil {
		return
	}
	m.ReceivedFDs.Add(float64(n))
}

func (m *Metrics) observeReject(err error) {
	if m == nil {
		return
	}
	if reason := rejectReason(err); reason != "" {
		m.RejectedMessages.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) observeEvent(ev Event) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(ev.Action.String(), strconv.FormatBool(ev.Live)).Inc()
}

func (m *Metrics) setMonitorRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.MonitorRunning.Set(1)
	} else {
		m.MonitorRunning.Set(0)
	}
}

// rejectReason labels a descriptor receiver error, or returns "" if err is
// not a message rejection.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, pkg.ErrMessageTruncated):
		return "truncated"
	case errors.Is(err, pkg.ErrUnexpectedControl):
		return "unexpected_control"
	case errors.Is(err, pkg.ErrMalformedControl):
		return "malformed_control"
	case errors.Is(err, pkg.ErrTooManyFDs):
		return "too_many_fds"
	default:
		return ""
	}
}
