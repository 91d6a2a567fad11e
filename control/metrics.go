// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime counters of the fleet server, exported through Prometheus and
// periodically written to the snapshot files.

package control

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "fleetlink"

// ErrorKind names one error counter.
type ErrorKind int

const (
	UnknownError ErrorKind = iota
	TCPTimeout
	TCPInvalidRequest
	TCPForbidden
	FileSystemError
	TCPTransferError
	TCPUnexpectedClose
	TCPConnectionBroken
	UDPUnknownCode
	UDPInvalidRequest
	UDPUnknownError

	errorKinds
)

var errorKindNames = [errorKinds]string{
	"UnknownError",
	"TcpTimeout",
	"TcpInvalidRequests",
	"TcpForbidden",
	"FileSystemError",
	"TcpSegFileTransferError",
	"TcpUnexpectedConnectionClosed",
	"TcpConnectionBroken",
	"UdpUnknownCode",
	"UdpInvalidRequest",
	"UdpUnknownError",
}

func (k ErrorKind) String() string {
	if k < 0 || k >= errorKinds {
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
	return errorKindNames[k]
}

// ErrorKinds lists every kind in snapshot column order.
func ErrorKinds() []ErrorKind {
	out := make([]ErrorKind, errorKinds)
	for i := range out {
		out[i] = ErrorKind(i)
	}
	return out
}

// Metrics holds the server counters. A nil *Metrics discards every update.
type Metrics struct {
	registry *prometheus.Registry

	errors      *prometheus.CounterVec
	active      prometheus.Gauge
	total       prometheus.Counter
	datagrams   *prometheus.CounterVec
	transferred *prometheus.CounterVec
	transfers   *prometheus.CounterVec
}

// NewMetrics creates the counters on a fresh registry that also carries the
// Go runtime and process collectors.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by kind",
		}, []string{"kind"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "active_connections",
			Help:      "Open TCP connections",
		}),
		total: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "connections_total",
			Help:      "Accepted TCP connections",
		}),
		datagrams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "udp",
			Name:      "datagrams_total",
			Help:      "Handled UDP datagrams by request code",
		}, []string{"code"}),
		transferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "bytes_total",
			Help:      "Payload bytes moved by segmented transfers",
		}, []string{"direction"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "completed_total",
			Help:      "Finished segmented transfers by direction and result",
		}, []string{"direction", "result"}),
	}
	for _, c := range []prometheus.Collector{
		m.errors, m.active, m.total, m.datagrams, m.transferred, m.transfers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	// every kind is exported from the start so snapshots have stable columns
	for _, k := range ErrorKinds() {
		m.errors.WithLabelValues(k.String())
	}
	return m, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Error(kind ErrorKind) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.active.Inc()
	m.total.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.active.Dec()
}

func (m *Metrics) Datagram(code string) {
	if m == nil {
		return
	}
	m.datagrams.WithLabelValues(code).Inc()
}

// Transfer records a finished transfer. direction is "send" or "receive".
func (m *Metrics) Transfer(direction string, bytes uint64, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.transferred.WithLabelValues(direction).Add(float64(bytes))
	m.transfers.WithLabelValues(direction, result).Inc()
}

// Snapshot is a point-in-time read of the counters written to the snapshot files.
type Snapshot struct {
	Errors            [errorKinds]uint64
	ActiveConnections uint64
	TotalConnections  uint64
}

// Snapshot gathers the current values from the registry.
func (m *Metrics) Snapshot() (Snapshot, error) {
	var s Snapshot
	if m == nil {
		return s, nil
	}
	families, err := m.registry.Gather()
	if err != nil {
		return s, fmt.Errorf("gather metrics: %w", err)
	}
	index := make(map[string]ErrorKind, errorKinds)
	for _, k := range ErrorKinds() {
		index[k.String()] = k
	}
	for _, mf := range families {
		switch mf.GetName() {
		case namespace + "_errors_total":
			for _, metric := range mf.GetMetric() {
				for _, lp := range metric.GetLabel() {
					if k, ok := index[lp.GetValue()]; ok && lp.GetName() == "kind" {
						s.Errors[k] = uint64(metric.GetCounter().GetValue())
					}
				}
			}
		case namespace + "_tcp_active_connections":
			if ms := mf.GetMetric(); len(ms) > 0 {
				s.ActiveConnections = uint64(ms[0].GetGauge().GetValue())
			}
		case namespace + "_tcp_connections_total":
			if ms := mf.GetMetric(); len(ms) > 0 {
				s.TotalConnections = uint64(ms[0].GetCounter().GetValue())
			}
		}
	}
	return s, nil
}
