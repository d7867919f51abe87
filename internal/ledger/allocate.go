package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// allocationStep applies part of a movement to one obligation.
type allocationStep struct {
	ObligationID uuid.UUID
	Amount       decimal.Decimal
	NewStatus    ObligationStatus
}

// planAllocation decides how a movement of amount is split across the
// patient's obligations. The target, when given, is paid first; the rest
// cascades oldest-first over open (already ordered FIFO, target excluded).
// Whatever cannot be absorbed is returned as overflow to become patient
// credit. Pure: no I/O, exact decimal arithmetic throughout.
func planAllocation(amount decimal.Decimal, target *ObligationBalance, open []ObligationBalance) ([]allocationStep, decimal.Decimal) {
	remaining := amount
	var steps []allocationStep

	apply := func(b ObligationBalance) {
		due := b.AmountDue()
		if due.IsZero() || !remaining.IsPositive() {
			return
		}
		applied := decimal.Min(remaining, due)
		steps = append(steps, allocationStep{
			ObligationID: b.ID,
			Amount:       applied,
			NewStatus:    DeriveStatus(b.Total, b.Settled.Add(applied)),
		})
		remaining = remaining.Sub(applied)
	}

	if target != nil {
		apply(*target)
	}
	for _, b := range open {
		if !remaining.IsPositive() {
			break
		}
		apply(b)
	}

	return steps, remaining
}
