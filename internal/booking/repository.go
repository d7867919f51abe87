package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/clinic-booking-ledger/internal/timeslot"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrProviderNotFound    = errors.New("provider not found")
	ErrServiceTypeNotFound = errors.New("service type not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all DB interactions needed by the booking engine.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetServiceTypeByID(ctx context.Context, id uuid.UUID) (*ServiceType, error)

	// Capacity checks: overlapping non-cancelled appointments inside the
	// admission transaction.
	CountOverlapping(ctx context.Context, iv timeslot.Interval) (int, error)
	CountOverlappingForProvider(ctx context.Context, iv timeslot.Interval, providerID uuid.UUID) (int, error)

	InsertAppointment(ctx context.Context, appt Appointment) error
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Compare-and-set transition guard: only moves from -> to.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
	SetFinalPrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) error

	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
}
