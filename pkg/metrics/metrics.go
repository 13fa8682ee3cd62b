// Package metrics exposes Prometheus counters for a clockbank run.
//
// Each run owns its own registry so that several simulations in one binary
// (or one test binary) never collide on metric registration.
package metrics

import (
	"sort"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/daviddao/clockbank/pkg/model"
)

const namespace = "clockbank"

// Metrics holds the counters recorded by every process of a run.
type Metrics struct {
	Registry *prometheus.Registry

	// MessagesSent counts outbound messages by type and sending process.
	MessagesSent *prometheus.CounterVec

	// MessagesReceived counts dispatched inbound messages by type and
	// receiving process.
	MessagesReceived *prometheus.CounterVec

	// TransfersApplied counts ledger mutations by side (debit/credit).
	TransfersApplied *prometheus.CounterVec

	// HistoriesRecorded counts balance history reports folded in by the
	// coordinator.
	HistoriesRecorded prometheus.Counter

	// LogicalTime tracks each process's Lamport clock.
	LogicalTime *prometheus.GaugeVec
}

// New creates and registers a fresh set of counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		MessagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_sent_total",
				Help:      "Total number of messages sent",
			},
			[]string{"type", "process"},
		),
		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_received_total",
				Help:      "Total number of messages received and dispatched",
			},
			[]string{"type", "process"},
		),
		TransfersApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfers_applied_total",
				Help:      "Total number of transfer debits and credits applied",
			},
			[]string{"side"}, // debit/credit
		),
		HistoriesRecorded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "histories_recorded_total",
				Help:      "Total number of balance history reports recorded",
			},
		),
		LogicalTime: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "logical_time",
				Help:      "Current Lamport time per process",
			},
			[]string{"process"},
		),
	}
	reg.MustRegister(m.MessagesSent, m.MessagesReceived, m.TransfersApplied, m.HistoriesRecorded, m.LogicalTime)
	return m
}

func processLabel(id model.ProcessID) string { return strconv.Itoa(int(id)) }

// RecordSend counts an outbound message. A nil receiver is a no-op.
func (m *Metrics) RecordSend(id model.ProcessID, t model.MessageType, ts int64) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(t.String(), processLabel(id)).Inc()
	m.LogicalTime.WithLabelValues(processLabel(id)).Set(float64(ts))
}

// RecordReceive counts a dispatched inbound message.
func (m *Metrics) RecordReceive(id model.ProcessID, t model.MessageType, ts int64) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(t.String(), processLabel(id)).Inc()
	m.LogicalTime.WithLabelValues(processLabel(id)).Set(float64(ts))
}

// RecordDebit counts a source-side transfer.
func (m *Metrics) RecordDebit() {
	if m == nil {
		return
	}
	m.TransfersApplied.WithLabelValues("debit").Inc()
}

// RecordCredit counts a destination-side transfer.
func (m *Metrics) RecordCredit() {
	if m == nil {
		return
	}
	m.TransfersApplied.WithLabelValues("credit").Inc()
}

// RecordHistory counts a history report.
func (m *Metrics) RecordHistory() {
	if m == nil {
		return
	}
	m.HistoriesRecorded.Inc()
}

// Sample is one gathered counter or gauge value.
type Sample struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

// Snapshot gathers every metric of the run into a flat, sorted list.
func (m *Metrics) Snapshot() ([]Sample, error) {
	families, err := m.Registry.Gather()
	if err != nil {
		return nil, err
	}
	var out []Sample
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			s := Sample{Name: mf.GetName()}
			if len(metric.GetLabel()) > 0 {
				s.Labels = make(map[string]string, len(metric.GetLabel()))
				for _, lp := range metric.GetLabel() {
					s.Labels[lp.GetName()] = lp.GetValue()
				}
			}
			switch {
			case metric.GetCounter() != nil:
				s.Value = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				s.Value = metric.GetGauge().GetValue()
			}
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
