// Package audit writes the append-only trail of state-changing operations.
// Records are a side channel: a failed insert is logged and swallowed, it
// never fails the business operation that produced it.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking-ledger/internal/db"
)

type Record struct {
	Actor      uuid.UUID
	Action     string
	TargetType string
	TargetID   uuid.UUID
	Metadata   map[string]any
	OccurredAt time.Time
}

type Recorder interface {
	Record(ctx context.Context, rec Record)
}

type PgRecorder struct {
	q   db.Querier
	log zerolog.Logger
}

// NewPgRecorder builds a recorder over a pool or an open transaction, so
// audit rows commit atomically with the operation they describe.
func NewPgRecorder(q db.Querier, log zerolog.Logger) *PgRecorder {
	return &PgRecorder{q: q, log: log}
}

func (r *PgRecorder) Record(ctx context.Context, rec Record) {
	data, err := json.Marshal(rec.Metadata)
	if err != nil {
		r.log.Error().Err(err).Str("action", rec.Action).Msg("marshal audit metadata")
		data = nil
	}

	occurredAt := rec.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	_, err = r.q.Exec(ctx, `
		INSERT INTO audit_log (id, actor_id, action, target_type, target_id, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.New(), rec.Actor, rec.Action, rec.TargetType, rec.TargetID, data, occurredAt)
	if err != nil {
		r.log.Error().Err(err).
			Str("action", rec.Action).
			Str("target_type", rec.TargetType).
			Stringer("target_id", rec.TargetID).
			Msg("insert audit record")
	}
}
