package fec

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by encoder and decoder
// sessions. A nil *Metrics disables collection.
type Metrics struct {
	SourceSymbols  prometheus.Counter
	RepairSymbols  prometheus.Counter
	Evictions      prometheus.Counter
	ReceivedSource prometheus.Counter
	ReceivedRepair prometheus.Counter
	Redundant      prometheus.Counter
	Decoded        prometheus.Counter
	Rejected       prometheus.Counter
	PivotRows      prometheus.Gauge
}

// NewMetrics creates unregistered collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	counter := func(subsystem, name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}
	return &Metrics{
		SourceSymbols:  counter("encoder", "source_symbols_total", "Source symbols added to the encoding window."),
		RepairSymbols:  counter("encoder", "repair_symbols_total", "Repair symbols built."),
		Evictions:      counter("encoder", "evictions_total", "Source symbols evicted from the encoding window."),
		ReceivedSource: counter("decoder", "source_symbols_total", "Source symbols submitted to the decoder."),
		ReceivedRepair: counter("decoder", "repair_symbols_total", "Repair symbols submitted to the decoder."),
		Redundant:      counter("decoder", "redundant_equations_total", "Submitted equations already implied by the linear system."),
		Decoded:        counter("decoder", "decoded_symbols_total", "Missing source symbols recovered by decoding."),
		Rejected:       counter("decoder", "rejected_symbols_total", "Symbols rejected by the decoder."),
		PivotRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      "pivot_rows",
			Help:      "Pivot rows currently held by the linear system.",
		}),
	}
}

// Register registers every collector with reg. Collectors already registered
// are tolerated so that several sessions can share one Metrics value.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SourceSymbols, m.RepairSymbols, m.Evictions,
		m.ReceivedSource, m.ReceivedRepair, m.Redundant, m.Decoded, m.Rejected,
		m.PivotRows,
	}
}

func (m *Metrics) setPivots(n int) {
	if m != nil {
		m.PivotRows.Set(float64(n))
	}
}
