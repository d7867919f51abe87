package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics counts admissions and rejections by reason.
type BookingMetrics struct {
	createTotal     *prometheus.CounterVec
	transitionTotal *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		createTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "create_total",
			Help:      "Booking admission attempts by outcome",
		}, []string{"outcome"}),
		transitionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "transition_total",
			Help:      "Appointment state transitions",
		}, []string{"to"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.createTotal, m.transitionTotal)
	return m
}

func (m *BookingMetrics) ObserveCreate(outcome string) {
	if m == nil {
		return
	}
	m.createTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveTransition(to string) {
	if m == nil {
		return
	}
	m.transitionTotal.WithLabelValues(to).Inc()
}

// LedgerMetrics counts ledger entries and allocation runs.
type LedgerMetrics struct {
	entriesTotal     *prometheus.CounterVec
	allocationsTotal *prometheus.CounterVec
}

func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	m := &LedgerMetrics{
		entriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "ledger",
			Name:      "entries_total",
			Help:      "Ledger entries written by kind",
		}, []string{"kind"}),
		allocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "ledger",
			Name:      "allocations_total",
			Help:      "Allocation operations by type and outcome",
		}, []string{"op", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.entriesTotal, m.allocationsTotal)
	return m
}

func (m *LedgerMetrics) ObserveEntry(kind string) {
	if m == nil {
		return
	}
	m.entriesTotal.WithLabelValues(kind).Inc()
}

func (m *LedgerMetrics) ObserveAllocation(op, outcome string) {
	if m == nil {
		return
	}
	m.allocationsTotal.WithLabelValues(op, outcome).Inc()
}

// ReminderMetrics counts reminder dispatch results.
type ReminderMetrics struct {
	dispatchedTotal *prometheus.CounterVec
}

func NewReminderMetrics(reg prometheus.Registerer) *ReminderMetrics {
	m := &ReminderMetrics{
		dispatchedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "reminder",
			Name:      "dispatched_total",
			Help:      "Reminders marked sent or failed by the worker",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.dispatchedTotal)
	return m
}

func (m *ReminderMetrics) ObserveDispatched(status string) {
	if m == nil {
		return
	}
	m.dispatchedTotal.WithLabelValues(status).Inc()
}
