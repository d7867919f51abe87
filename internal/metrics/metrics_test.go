package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()

	b := NewBookingMetrics(reg)
	b.ObserveCreate("admitted")
	b.ObserveTransition("confirmed")

	l := NewLedgerMetrics(reg)
	l.ObserveEntry("payment")
	l.ObserveAllocation("payment", "ok")

	r := NewReminderMetrics(reg)
	r.ObserveDispatched("sent")
}

func TestMetricsNilSafe(t *testing.T) {
	var b *BookingMetrics
	b.ObserveCreate("admitted")
	b.ObserveTransition("cancelled")

	var l *LedgerMetrics
	l.ObserveEntry("charge")
	l.ObserveAllocation("waiver", "error")

	var r *ReminderMetrics
	r.ObserveDispatched("failed")
}
