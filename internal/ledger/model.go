package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Entry kinds. Sign conventions follow the movement they record:
//   - charge: positive, the obligation's principal
//   - payment: positive, money collected
//   - waive: negative, forgiven debt
//   - credit: positive when granted (overflow), negative when consumed
//   - refund: negative, money returned to the patient
//
// A patient's cached credit balance must always equal the signed sum of
// their credit-kind entries.
type Kind string

const (
	KindCharge  Kind = "charge"
	KindPayment Kind = "payment"
	KindCredit  Kind = "credit"
	KindWaive   Kind = "waive"
	KindRefund  Kind = "refund"
)

type Method string

const (
	MethodCash          Method = "cash"
	MethodCard          Method = "card"
	MethodTransfer      Method = "bank_transfer"
	MethodServiceCredit Method = "service_credit"
)

type ObligationStatus string

const (
	ObligationPending       ObligationStatus = "pending"
	ObligationPartiallyPaid ObligationStatus = "partially_paid"
	ObligationPaid          ObligationStatus = "paid"
	ObligationCancelled     ObligationStatus = "cancelled"
)

// Obligation is a billable amount owed by a patient, created at appointment
// confirmation or bundle purchase. Its status is derived from the ledger,
// never set directly outside allocation recomputation.
type Obligation struct {
	ID            uuid.UUID
	PatientID     uuid.UUID
	AppointmentID *uuid.UUID
	Subtotal      decimal.Decimal
	Discount      decimal.Decimal
	Total         decimal.Decimal
	Status        ObligationStatus
	CreatedBy     uuid.UUID
	CreatedAt     time.Time
}

// Entry is one immutable monetary event. Entries are append-only.
type Entry struct {
	ID           uuid.UUID
	PatientID    uuid.UUID
	ObligationID *uuid.UUID
	Kind         Kind
	Amount       decimal.Decimal
	Method       Method
	Notes        *string
	CreatedBy    uuid.UUID
	OccurredAt   time.Time
}

// PatientAccount is the ledger's view of a patient: identity plus the cached
// credit balance that is maintained transactionally with every credit entry.
type PatientAccount struct {
	ID            uuid.UUID
	CreditBalance decimal.Decimal
}

// ServiceCredit is one prepaid session of a service type, consumed in lieu
// of cash at confirmation.
type ServiceCredit struct {
	ID            uuid.UUID
	PatientID     uuid.UUID
	ServiceTypeID uuid.UUID
	ObligationID  uuid.UUID
	ConsumedAt    *time.Time
	CreatedAt     time.Time
}

// ObligationBalance is the allocation view of an obligation: its total due
// and the amount already settled against it (payments + |waives| + consumed
// credits referencing it).
type ObligationBalance struct {
	ID      uuid.UUID
	Total   decimal.Decimal
	Settled decimal.Decimal
}

func (b ObligationBalance) AmountDue() decimal.Decimal {
	due := b.Total.Sub(b.Settled)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

// DeriveStatus recomputes an obligation's status from its total and settled
// amounts. Recomputing from the full entry history always yields the status
// stored after the last allocation.
func DeriveStatus(total, settled decimal.Decimal) ObligationStatus {
	switch {
	case settled.GreaterThanOrEqual(total):
		return ObligationPaid
	case settled.IsPositive():
		return ObligationPartiallyPaid
	default:
		return ObligationPending
	}
}
