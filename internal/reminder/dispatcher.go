package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking-ledger/internal/db"
	"github.com/hackgods/clinic-booking-ledger/internal/metrics"
)

// Notifier delivers one reminder over whatever channel the deployment uses.
type Notifier interface {
	Notify(ctx context.Context, rem Reminder) error
}

// LogNotifier is the default channel: it only logs. Real deployments plug
// in SMS/email behind the same interface.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, rem Reminder) error {
	n.Log.Info().
		Stringer("reminder_id", rem.ID).
		Stringer("appointment_id", rem.AppointmentID).
		Str("kind", string(rem.Kind)).
		Time("due_at", rem.DueAt).
		Msg("reminder delivered")
	return nil
}

const dispatchBatchSize = 100

// Dispatcher sweeps due pending reminders and marks them sent or failed.
// Rows are claimed with FOR UPDATE SKIP LOCKED so multiple workers can run.
type Dispatcher struct {
	pool     db.Pool
	notifier Notifier
	log      zerolog.Logger
	metrics  *metrics.ReminderMetrics
}

func NewDispatcher(pool db.Pool, notifier Notifier, log zerolog.Logger, m *metrics.ReminderMetrics) *Dispatcher {
	return &Dispatcher{
		pool:     pool,
		notifier: notifier,
		log:      log,
		metrics:  m,
	}
}

// RunOnce processes one batch of due reminders.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	now := time.Now().UTC()

	return db.Serializable(ctx, d.pool, func(tx pgx.Tx) error {
		repo := NewPgRepository(tx)

		due, err := repo.ListDue(ctx, now, dispatchBatchSize)
		if err != nil {
			return fmt.Errorf("list due reminders: %w", err)
		}

		for _, rem := range due {
			status := StatusSent
			if err := d.notifier.Notify(ctx, rem); err != nil {
				d.log.Error().Err(err).Stringer("reminder_id", rem.ID).Msg("reminder delivery failed")
				status = StatusFailed
			}
			if err := repo.UpdateStatus(ctx, rem.ID, status); err != nil {
				return fmt.Errorf("mark reminder %s: %w", rem.ID, err)
			}
			d.metrics.ObserveDispatched(string(status))
		}

		if len(due) > 0 {
			d.log.Info().Int("count", len(due)).Msg("reminder batch dispatched")
		}
		return nil
	})
}
