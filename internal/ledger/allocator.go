package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hackgods/clinic-booking-ledger/internal/audit"
	"github.com/hackgods/clinic-booking-ledger/internal/db"
	"github.com/hackgods/clinic-booking-ledger/internal/metrics"
	redisclient "github.com/hackgods/clinic-booking-ledger/internal/redis"
)

const overflowNote = "unallocated remainder converted to patient credit"

// Allocator applies monetary movements to a patient's outstanding
// obligations and keeps the cached credit balance consistent with the
// entry log. Every operation is one serializable transaction, serialized
// per patient by a Redis lock so concurrent movements cannot read the
// same amount due.
type Allocator struct {
	pool    db.Pool
	locker  redisclient.Locker
	log     zerolog.Logger
	metrics *metrics.LedgerMetrics
}

func NewAllocator(pool db.Pool, locker redisclient.Locker, log zerolog.Logger, m *metrics.LedgerMetrics) *Allocator {
	return &Allocator{
		pool:    pool,
		locker:  locker,
		log:     log,
		metrics: m,
	}
}

// PatientLockKey serializes ledger mutations per patient.
func PatientLockKey(patientID uuid.UUID) string {
	return fmt.Sprintf("lock:patient:%s", patientID)
}

type MovementParams struct {
	PatientID    uuid.UUID
	ObligationID *uuid.UUID // optional explicit target
	Amount       decimal.Decimal
	Method       Method
	Notes        *string
	ActorID      uuid.UUID
}

type AppliedObligation struct {
	ObligationID uuid.UUID
	Amount       decimal.Decimal
	Status       ObligationStatus
}

type AllocationResult struct {
	Applied  []AppliedObligation
	Overflow decimal.Decimal
	Entries  []Entry
}

// RecordPayment allocates a payment across the patient's obligations:
// target first, then oldest debt first, remainder to patient credit.
func (a *Allocator) RecordPayment(ctx context.Context, p MovementParams) (*AllocationResult, error) {
	res, err := a.allocate(ctx, p, KindPayment)
	a.observe("payment", err)
	return res, err
}

// RecordWaiver forgives debt with the same allocation policy as payments;
// waive entries are stored with a negative amount.
func (a *Allocator) RecordWaiver(ctx context.Context, p MovementParams) (*AllocationResult, error) {
	res, err := a.allocate(ctx, p, KindWaive)
	a.observe("waiver", err)
	return res, err
}

func (a *Allocator) allocate(ctx context.Context, p MovementParams, kind Kind) (*AllocationResult, error) {
	if !p.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var result *AllocationResult

	err := a.locker.WithLock(ctx, []string{PatientLockKey(p.PatientID)}, func(lockCtx context.Context) error {
		return db.Serializable(lockCtx, a.pool, func(tx pgx.Tx) error {
			repo := NewPgRepository(tx)
			recorder := audit.NewPgRecorder(tx, a.log)
			occurredAt := time.Now().UTC()

			account, err := repo.GetAccountForUpdate(lockCtx, p.PatientID)
			if err != nil {
				return err
			}

			var target *ObligationBalance
			if p.ObligationID != nil {
				ob, err := repo.GetObligationForUpdate(lockCtx, *p.ObligationID)
				if err != nil {
					return err
				}
				if ob.PatientID != p.PatientID {
					return ErrObligationNotFound
				}
				settled, err := repo.SettledAmount(lockCtx, ob.ID)
				if err != nil {
					return fmt.Errorf("settled amount: %w", err)
				}
				target = &ObligationBalance{ID: ob.ID, Total: ob.Total, Settled: settled}
			}

			open, err := repo.ListOpenObligationBalances(lockCtx, p.PatientID, p.ObligationID)
			if err != nil {
				return fmt.Errorf("list open obligations: %w", err)
			}

			steps, overflow := planAllocation(p.Amount, target, open)

			res := &AllocationResult{Overflow: overflow}
			for _, step := range steps {
				entryAmount := step.Amount
				if kind == KindWaive {
					entryAmount = step.Amount.Neg()
				}

				obligationID := step.ObligationID
				entry := Entry{
					ID:           uuid.New(),
					PatientID:    p.PatientID,
					ObligationID: &obligationID,
					Kind:         kind,
					Amount:       entryAmount,
					Method:       p.Method,
					Notes:        p.Notes,
					CreatedBy:    p.ActorID,
					OccurredAt:   occurredAt,
				}
				if err := repo.InsertEntry(lockCtx, entry); err != nil {
					return fmt.Errorf("insert %s entry: %w", kind, err)
				}
				if err := repo.UpdateObligationStatus(lockCtx, step.ObligationID, step.NewStatus); err != nil {
					return fmt.Errorf("update obligation status: %w", err)
				}

				a.metrics.ObserveEntry(string(kind))
				res.Applied = append(res.Applied, AppliedObligation{
					ObligationID: step.ObligationID,
					Amount:       step.Amount,
					Status:       step.NewStatus,
				})
				res.Entries = append(res.Entries, entry)
			}

			if overflow.IsPositive() {
				note := overflowNote
				entry := Entry{
					ID:         uuid.New(),
					PatientID:  p.PatientID,
					Kind:       KindCredit,
					Amount:     overflow,
					Method:     p.Method,
					Notes:      &note,
					CreatedBy:  p.ActorID,
					OccurredAt: occurredAt,
				}
				if err := repo.InsertEntry(lockCtx, entry); err != nil {
					return fmt.Errorf("insert overflow credit entry: %w", err)
				}
				if err := repo.SetCreditBalance(lockCtx, p.PatientID, account.CreditBalance.Add(overflow)); err != nil {
					return fmt.Errorf("update credit balance: %w", err)
				}

				a.metrics.ObserveEntry(string(KindCredit))
				res.Entries = append(res.Entries, entry)
			}

			recorder.Record(lockCtx, audit.Record{
				Actor:      p.ActorID,
				Action:     "ledger." + string(kind) + "_recorded",
				TargetType: "patient",
				TargetID:   p.PatientID,
				Metadata: map[string]any{
					"amount":              p.Amount.String(),
					"method":              string(p.Method),
					"obligations_touched": len(steps),
					"overflow":            overflow.String(),
				},
				OccurredAt: occurredAt,
			})

			result = res
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	a.log.Info().
		Stringer("patient_id", p.PatientID).
		Str("kind", string(kind)).
		Str("amount", p.Amount.String()).
		Int("obligations_touched", len(result.Applied)).
		Str("overflow", result.Overflow.String()).
		Msg("movement allocated")

	return result, nil
}

type RefundCreditParams struct {
	PatientID uuid.UUID
	Amount    decimal.Decimal
	Method    Method
	Notes     *string
	ActorID   uuid.UUID
}

// RefundCredit pays stored credit back out to the patient. The consumption
// is recorded as a negative credit entry (keeping the cached balance equal
// to the signed sum of credit entries) alongside the refund itself.
func (a *Allocator) RefundCredit(ctx context.Context, p RefundCreditParams) ([]Entry, error) {
	if !p.Amount.IsPositive() {
		a.observe("credit_refund", ErrInvalidAmount)
		return nil, ErrInvalidAmount
	}

	var entries []Entry

	err := a.locker.WithLock(ctx, []string{PatientLockKey(p.PatientID)}, func(lockCtx context.Context) error {
		return db.Serializable(lockCtx, a.pool, func(tx pgx.Tx) error {
			repo := NewPgRepository(tx)
			recorder := audit.NewPgRecorder(tx, a.log)
			occurredAt := time.Now().UTC()

			account, err := repo.GetAccountForUpdate(lockCtx, p.PatientID)
			if err != nil {
				return err
			}
			if account.CreditBalance.LessThan(p.Amount) {
				return ErrInsufficientCredit
			}

			note := "credit balance refund"
			consumption := Entry{
				ID:         uuid.New(),
				PatientID:  p.PatientID,
				Kind:       KindCredit,
				Amount:     p.Amount.Neg(),
				Method:     p.Method,
				Notes:      &note,
				CreatedBy:  p.ActorID,
				OccurredAt: occurredAt,
			}
			payout := Entry{
				ID:         uuid.New(),
				PatientID:  p.PatientID,
				Kind:       KindRefund,
				Amount:     p.Amount.Neg(),
				Method:     p.Method,
				Notes:      p.Notes,
				CreatedBy:  p.ActorID,
				OccurredAt: occurredAt,
			}
			for _, e := range []Entry{consumption, payout} {
				if err := repo.InsertEntry(lockCtx, e); err != nil {
					return fmt.Errorf("insert %s entry: %w", e.Kind, err)
				}
				a.metrics.ObserveEntry(string(e.Kind))
			}

			if err := repo.SetCreditBalance(lockCtx, p.PatientID, account.CreditBalance.Sub(p.Amount)); err != nil {
				return fmt.Errorf("update credit balance: %w", err)
			}

			recorder.Record(lockCtx, audit.Record{
				Actor:      p.ActorID,
				Action:     "ledger.credit_refunded",
				TargetType: "patient",
				TargetID:   p.PatientID,
				Metadata:   map[string]any{"amount": p.Amount.String()},
				OccurredAt: occurredAt,
			})

			entries = []Entry{consumption, payout}
			return nil
		})
	})
	a.observe("credit_refund", err)
	if err != nil {
		return nil, err
	}

	return entries, nil
}

type BundleParams struct {
	PatientID     uuid.UUID
	ServiceTypeID uuid.UUID
	Quantity      int
	Total         decimal.Decimal
	Method        Method
	ActorID       uuid.UUID
}

// PurchaseBundle sells a prepaid block of sessions: one obligation paid in
// full up front plus one service-credit unit per session.
func (a *Allocator) PurchaseBundle(ctx context.Context, p BundleParams) (*Obligation, error) {
	if p.Quantity < 1 || !p.Total.IsPositive() {
		a.observe("bundle", ErrInvalidAmount)
		return nil, ErrInvalidAmount
	}

	var created *Obligation

	err := a.locker.WithLock(ctx, []string{PatientLockKey(p.PatientID)}, func(lockCtx context.Context) error {
		return db.Serializable(lockCtx, a.pool, func(tx pgx.Tx) error {
			repo := NewPgRepository(tx)
			recorder := audit.NewPgRecorder(tx, a.log)
			occurredAt := time.Now().UTC()

			if _, err := repo.GetAccountForUpdate(lockCtx, p.PatientID); err != nil {
				return err
			}
			exists, err := repo.ServiceTypeExists(lockCtx, p.ServiceTypeID)
			if err != nil {
				return fmt.Errorf("check service type: %w", err)
			}
			if !exists {
				return ErrServiceTypeNotFound
			}

			ob := Obligation{
				ID:        uuid.New(),
				PatientID: p.PatientID,
				Subtotal:  p.Total,
				Discount:  decimal.Zero,
				Total:     p.Total,
				Status:    ObligationPaid,
				CreatedBy: p.ActorID,
				CreatedAt: occurredAt,
			}
			if err := repo.InsertObligation(lockCtx, ob); err != nil {
				return fmt.Errorf("insert obligation: %w", err)
			}

			obligationID := ob.ID
			note := fmt.Sprintf("bundle of %d sessions", p.Quantity)
			charge := Entry{
				ID:           uuid.New(),
				PatientID:    p.PatientID,
				ObligationID: &obligationID,
				Kind:         KindCharge,
				Amount:       p.Total,
				Method:       p.Method,
				Notes:        &note,
				CreatedBy:    p.ActorID,
				OccurredAt:   occurredAt,
			}
			payment := Entry{
				ID:           uuid.New(),
				PatientID:    p.PatientID,
				ObligationID: &obligationID,
				Kind:         KindPayment,
				Amount:       p.Total,
				Method:       p.Method,
				CreatedBy:    p.ActorID,
				OccurredAt:   occurredAt,
			}
			for _, e := range []Entry{charge, payment} {
				if err := repo.InsertEntry(lockCtx, e); err != nil {
					return fmt.Errorf("insert %s entry: %w", e.Kind, err)
				}
				a.metrics.ObserveEntry(string(e.Kind))
			}

			credits := make([]ServiceCredit, 0, p.Quantity)
			for i := 0; i < p.Quantity; i++ {
				credits = append(credits, ServiceCredit{
					ID:            uuid.New(),
					PatientID:     p.PatientID,
					ServiceTypeID: p.ServiceTypeID,
					ObligationID:  ob.ID,
					CreatedAt:     occurredAt,
				})
			}
			if err := repo.InsertServiceCredits(lockCtx, credits); err != nil {
				return fmt.Errorf("insert service credits: %w", err)
			}

			recorder.Record(lockCtx, audit.Record{
				Actor:      p.ActorID,
				Action:     "ledger.bundle_purchased",
				TargetType: "obligation",
				TargetID:   ob.ID,
				Metadata: map[string]any{
					"patient_id":      p.PatientID.String(),
					"service_type_id": p.ServiceTypeID.String(),
					"quantity":        p.Quantity,
					"total":           p.Total.String(),
				},
				OccurredAt: occurredAt,
			})

			created = &ob
			return nil
		})
	})
	a.observe("bundle", err)
	if err != nil {
		return nil, err
	}

	return created, nil
}

// Balance returns the patient's cached credit balance and recent entries,
// for the reporting layer.
func (a *Allocator) Balance(ctx context.Context, patientID uuid.UUID, limit, offset int) (*PatientAccount, []Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	repo := NewPgRepository(a.pool)

	var account PatientAccount
	err := a.pool.QueryRow(ctx, `
		SELECT id, credit_balance
		FROM patients
		WHERE id = $1
	`, patientID).Scan(&account.ID, &account.CreditBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrPatientNotFound
		}
		return nil, nil, fmt.Errorf("load patient account: %w", err)
	}

	entries, err := repo.ListEntriesByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, nil, fmt.Errorf("list ledger entries: %w", err)
	}

	return &account, entries, nil
}

func (a *Allocator) observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	a.metrics.ObserveAllocation(op, outcome)
}
