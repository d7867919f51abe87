package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrObligationNotFound  = errors.New("obligation not found")
	ErrServiceTypeNotFound = errors.New("service type not found")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientCredit  = errors.New("insufficient credit")
)

// Repository contains all DB interactions needed by the allocator and by
// the booking engine's confirmation path. Implementations are built over a
// db.Querier so every method runs inside the caller's transaction.
type Repository interface {
	GetAccountForUpdate(ctx context.Context, patientID uuid.UUID) (*PatientAccount, error)
	SetCreditBalance(ctx context.Context, patientID uuid.UUID, balance decimal.Decimal) error

	InsertObligation(ctx context.Context, ob Obligation) error
	GetObligationForUpdate(ctx context.Context, id uuid.UUID) (*Obligation, error)
	UpdateObligationStatus(ctx context.Context, id uuid.UUID, status ObligationStatus) error
	SettledAmount(ctx context.Context, obligationID uuid.UUID) (decimal.Decimal, error)

	// FIFO allocation: open obligations ordered by creation time ascending,
	// rows locked for the duration of the transaction.
	ListOpenObligationBalances(ctx context.Context, patientID uuid.UUID, exclude *uuid.UUID) ([]ObligationBalance, error)

	ObligationsByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Obligation, error)

	InsertEntry(ctx context.Context, e Entry) error
	ListEntriesByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Entry, error)
	ListEntriesByObligation(ctx context.Context, obligationID uuid.UUID) ([]Entry, error)

	ServiceTypeExists(ctx context.Context, id uuid.UUID) (bool, error)
	FindUnconsumedServiceCredit(ctx context.Context, patientID, serviceTypeID uuid.UUID) (*ServiceCredit, error)
	ConsumeServiceCredit(ctx context.Context, id uuid.UUID, at time.Time) error
	InsertServiceCredits(ctx context.Context, credits []ServiceCredit) error
}
