package reminder

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking-ledger/internal/db"
)

var ErrReminderNotFound = errors.New("reminder not found")

// Repository persists reminder rows. Delivery is the dispatcher's job.
type Repository interface {
	Insert(ctx context.Context, reminders []Reminder) error
	FailPendingForAppointment(ctx context.Context, appointmentID uuid.UUID) (int64, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]Reminder, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
}

type PgRepository struct {
	q db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{q: q}
}

func (r *PgRepository) Insert(ctx context.Context, reminders []Reminder) error {
	for _, rem := range reminders {
		_, err := r.q.Exec(ctx, `
			INSERT INTO reminders (id, appointment_id, kind, due_at, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, rem.ID, rem.AppointmentID, rem.Kind, rem.DueAt, rem.Status, rem.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *PgRepository) FailPendingForAppointment(ctx context.Context, appointmentID uuid.UUID) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE reminders
		SET status = 'failed'
		WHERE appointment_id = $1
		  AND status = 'pending'
	`, appointmentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]Reminder, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, appointment_id, kind, due_at, status, created_at
		FROM reminders
		WHERE status = 'pending'
		  AND due_at <= $1
		ORDER BY due_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Reminder
	for rows.Next() {
		var rem Reminder
		if err := rows.Scan(&rem.ID, &rem.AppointmentID, &rem.Kind, &rem.DueAt, &rem.Status, &rem.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, rem)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE reminders
		SET status = $2
		WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReminderNotFound
	}
	return nil
}

var _ Repository = (*PgRepository)(nil)
