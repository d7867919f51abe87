package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/hackgods/clinic-booking-ledger/internal/db"
)

// settledExpr computes how much of an obligation is settled: payments count
// positive, waives are stored negative, consumed credits referencing the
// obligation are stored negative.
const settledExpr = `
	COALESCE(SUM(
		CASE
			WHEN e.kind = 'payment' THEN e.amount
			WHEN e.kind = 'waive' THEN ABS(e.amount)
			WHEN e.kind = 'credit' AND e.amount < 0 THEN -e.amount
			ELSE 0
		END
	), 0)`

type PgRepository struct {
	q db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{q: q}
}

func (r *PgRepository) GetAccountForUpdate(ctx context.Context, patientID uuid.UUID) (*PatientAccount, error) {
	var a PatientAccount
	err := r.q.QueryRow(ctx, `
		SELECT id, credit_balance
		FROM patients
		WHERE id = $1
		FOR UPDATE
	`, patientID).Scan(&a.ID, &a.CreditBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *PgRepository) SetCreditBalance(ctx context.Context, patientID uuid.UUID, balance decimal.Decimal) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE patients
		SET credit_balance = $2,
		    updated_at = now()
		WHERE id = $1
	`, patientID, balance)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func scanObligation(row pgx.Row) (*Obligation, error) {
	var ob Obligation
	var appointmentID *uuid.UUID

	err := row.Scan(
		&ob.ID,
		&ob.PatientID,
		&appointmentID,
		&ob.Subtotal,
		&ob.Discount,
		&ob.Total,
		&ob.Status,
		&ob.CreatedBy,
		&ob.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrObligationNotFound
		}
		return nil, err
	}

	ob.AppointmentID = appointmentID
	return &ob, nil
}

func (r *PgRepository) InsertObligation(ctx context.Context, ob Obligation) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO obligations (id, patient_id, appointment_id, subtotal, discount, total, status, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ob.ID, ob.PatientID, ob.AppointmentID, ob.Subtotal, ob.Discount, ob.Total, ob.Status, ob.CreatedBy, ob.CreatedAt)
	return err
}

func (r *PgRepository) GetObligationForUpdate(ctx context.Context, id uuid.UUID) (*Obligation, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, patient_id, appointment_id, subtotal, discount, total, status, created_by, created_at
		FROM obligations
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanObligation(row)
}

func (r *PgRepository) UpdateObligationStatus(ctx context.Context, id uuid.UUID, status ObligationStatus) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE obligations
		SET status = $2
		WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrObligationNotFound
	}
	return nil
}

func (r *PgRepository) SettledAmount(ctx context.Context, obligationID uuid.UUID) (decimal.Decimal, error) {
	var settled decimal.Decimal
	err := r.q.QueryRow(ctx, `
		SELECT `+settledExpr+`
		FROM ledger_entries e
		WHERE e.obligation_id = $1
	`, obligationID).Scan(&settled)
	if err != nil {
		return decimal.Zero, err
	}
	return settled, nil
}

func (r *PgRepository) ListOpenObligationBalances(ctx context.Context, patientID uuid.UUID, exclude *uuid.UUID) ([]ObligationBalance, error) {
	rows, err := r.q.Query(ctx, `
		SELECT o.id, o.total,
		       (SELECT `+settledExpr+` FROM ledger_entries e WHERE e.obligation_id = o.id)
		FROM obligations o
		WHERE o.patient_id = $1
		  AND o.status IN ('pending', 'partially_paid')
		  AND ($2::uuid IS NULL OR o.id <> $2)
		ORDER BY o.created_at ASC
		FOR UPDATE OF o
	`, patientID, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ObligationBalance
	for rows.Next() {
		var b ObligationBalance
		if err := rows.Scan(&b.ID, &b.Total, &b.Settled); err != nil {
			return nil, err
		}
		result = append(result, b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ObligationsByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Obligation, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, patient_id, appointment_id, subtotal, discount, total, status, created_by, created_at
		FROM obligations
		WHERE appointment_id = $1
		ORDER BY created_at ASC
		FOR UPDATE
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Obligation
	for rows.Next() {
		ob, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ob)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) InsertEntry(ctx context.Context, e Entry) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO ledger_entries (id, patient_id, obligation_id, kind, amount, method, notes, created_by, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.PatientID, e.ObligationID, e.Kind, e.Amount, e.Method, e.Notes, e.CreatedBy, e.OccurredAt)
	return err
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var obligationID *uuid.UUID
	var notes *string

	err := row.Scan(
		&e.ID,
		&e.PatientID,
		&obligationID,
		&e.Kind,
		&e.Amount,
		&e.Method,
		&notes,
		&e.CreatedBy,
		&e.OccurredAt,
	)
	if err != nil {
		return nil, err
	}

	e.ObligationID = obligationID
	e.Notes = notes
	return &e, nil
}

func (r *PgRepository) ListEntriesByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Entry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, patient_id, obligation_id, kind, amount, method, notes, created_by, occurred_at
		FROM ledger_entries
		WHERE patient_id = $1
		ORDER BY occurred_at DESC, id
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ListEntriesByObligation(ctx context.Context, obligationID uuid.UUID) ([]Entry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, patient_id, obligation_id, kind, amount, method, notes, created_by, occurred_at
		FROM ledger_entries
		WHERE obligation_id = $1
		ORDER BY occurred_at ASC, id
	`, obligationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ServiceTypeExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM service_types WHERE id = $1 AND active)
	`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) FindUnconsumedServiceCredit(ctx context.Context, patientID, serviceTypeID uuid.UUID) (*ServiceCredit, error) {
	var sc ServiceCredit
	err := r.q.QueryRow(ctx, `
		SELECT id, patient_id, service_type_id, obligation_id, consumed_at, created_at
		FROM service_credits
		WHERE patient_id = $1
		  AND service_type_id = $2
		  AND consumed_at IS NULL
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, patientID, serviceTypeID).Scan(&sc.ID, &sc.PatientID, &sc.ServiceTypeID, &sc.ObligationID, &sc.ConsumedAt, &sc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInsufficientCredit
		}
		return nil, err
	}
	return &sc, nil
}

func (r *PgRepository) ConsumeServiceCredit(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE service_credits
		SET consumed_at = $2
		WHERE id = $1
		  AND consumed_at IS NULL
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientCredit
	}
	return nil
}

func (r *PgRepository) InsertServiceCredits(ctx context.Context, credits []ServiceCredit) error {
	for _, sc := range credits {
		_, err := r.q.Exec(ctx, `
			INSERT INTO service_credits (id, patient_id, service_type_id, obligation_id, consumed_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, sc.ID, sc.PatientID, sc.ServiceTypeID, sc.ObligationID, sc.ConsumedAt, sc.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}
