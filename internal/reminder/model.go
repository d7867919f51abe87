package reminder

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindDayBefore      Kind = "day_before"
	KindTwoHoursBefore Kind = "two_hours_before"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

type Reminder struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Kind          Kind
	DueAt         time.Time
	Status        Status
	CreatedAt     time.Time
}
