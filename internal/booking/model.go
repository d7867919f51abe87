package booking

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

type Patient struct {
	ID            uuid.UUID
	Name          string
	Email         *string
	CreditBalance decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Provider struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ServiceType is immutable catalog data: what a session costs and how long
// it runs.
type ServiceType struct {
	ID              uuid.UUID
	Name            string
	BasePrice       decimal.Decimal
	DurationMinutes int
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (s ServiceType) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

type Appointment struct {
	ID                uuid.UUID
	PatientID         uuid.UUID
	ProviderID        uuid.UUID
	ServiceTypeID     uuid.UUID
	StartAt           time.Time
	EndAt             time.Time
	Status            Status
	FinalPrice        *decimal.Decimal
	RecurrenceGroupID *uuid.UUID
	Notes             *string
	CreatedBy         uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type AppointmentDetail struct {
	Appointment
	Patient     *Patient
	Provider    *Provider
	ServiceType *ServiceType
}
