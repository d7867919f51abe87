package booking

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
	"github.com/hackgods/clinic-booking-ledger/internal/config"
	"github.com/hackgods/clinic-booking-ledger/internal/db"
	"github.com/hackgods/clinic-booking-ledger/internal/ledger"
	"github.com/hackgods/clinic-booking-ledger/internal/metrics"
	redisclient "github.com/hackgods/clinic-booking-ledger/internal/redis"
	"github.com/hackgods/clinic-booking-ledger/internal/reminder"
	"github.com/hackgods/clinic-booking-ledger/internal/timeslot"
)

var (
	ErrCapacityExceeded  = errors.New("clinic capacity exceeded for requested time")
	ErrProviderConflict  = errors.New("provider already booked for requested time")
	ErrInvalidState      = errors.New("operation not allowed in current appointment state")
	ErrInvalidRecurrence = errors.New("recurrence must cover at least one week")
)

// Service is the transactional booking engine: admission against capacity,
// the appointment state machine, and the financial event at confirmation.
type Service struct {
	pool    db.Pool
	locker  redisclient.Locker
	cfg     config.Config
	loc     *time.Location
	log     zerolog.Logger
	metrics *metrics.BookingMetrics
}

func NewService(pool db.Pool, locker redisclient.Locker, cfg config.Config, log zerolog.Logger, m *metrics.BookingMetrics) *Service {
	return &Service{
		pool:    pool,
		locker:  locker,
		cfg:     cfg,
		loc:     cfg.Location(),
		log:     log,
		metrics: m,
	}
}

// checkCapacity enforces admission: the provider rule is evaluated before
// the global rule, so a request violating both reports the provider
// conflict.
func checkCapacity(providerCount, globalCount, providerLimit, globalLimit int) error {
	if providerCount >= providerLimit {
		return ErrProviderConflict
	}
	if globalCount >= globalLimit {
		return ErrCapacityExceeded
	}
	return nil
}

type CreateParams struct {
	PatientID         uuid.UUID
	ProviderID        uuid.UUID
	ServiceTypeID     uuid.UUID
	StartAt           time.Time
	Notes             *string
	RecurrenceGroupID *uuid.UUID
	ActorID           uuid.UUID
}

// Create admits a new appointment or rejects it. Redis locks on every hour
// bucket the interval touches serialize concurrent admissions; the counts
// and insert still share one serializable transaction so correctness does
// not depend on the locks alone.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Appointment, error) {
	appt, err := s.create(ctx, p)
	s.metrics.ObserveCreate(createOutcome(err))
	return appt, err
}

func (s *Service) create(ctx context.Context, p CreateParams) (*Appointment, error) {
	repo := NewPgRepository(s.pool)

	serviceType, err := repo.GetServiceTypeByID(ctx, p.ServiceTypeID)
	if err != nil {
		if errors.Is(err, ErrServiceTypeNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load service type: %w", err)
	}
	if !serviceType.Active {
		return nil, ErrServiceTypeNotFound
	}

	if _, err := repo.GetProviderByID(ctx, p.ProviderID); err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load provider: %w", err)
	}
	if _, err := repo.GetPatientByID(ctx, p.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	iv, err := timeslot.Normalize(p.StartAt, serviceType.Duration())
	if err != nil {
		return nil, err
	}

	var created *Appointment

	lockKeys := timeslot.LockKeys(iv, p.ProviderID.String())
	err = s.locker.WithLock(ctx, lockKeys, func(lockCtx context.Context) error {
		return db.Serializable(lockCtx, s.pool, func(tx pgx.Tx) error {
			txRepo := NewPgRepository(tx)

			providerCount, err := txRepo.CountOverlappingForProvider(lockCtx, iv, p.ProviderID)
			if err != nil {
				return fmt.Errorf("count provider overlap: %w", err)
			}
			globalCount, err := txRepo.CountOverlapping(lockCtx, iv)
			if err != nil {
				return fmt.Errorf("count global overlap: %w", err)
			}
			if err := checkCapacity(providerCount, globalCount, s.cfg.ProviderCapacity, s.cfg.GlobalCapacity); err != nil {
				return err
			}

			now := time.Now().UTC()
			appt := Appointment{
				ID:                uuid.New(),
				PatientID:         p.PatientID,
				ProviderID:        p.ProviderID,
				ServiceTypeID:     p.ServiceTypeID,
				StartAt:           iv.Start,
				EndAt:             iv.End,
				Status:            StatusScheduled,
				RecurrenceGroupID: p.RecurrenceGroupID,
				Notes:             p.Notes,
				CreatedBy:         p.ActorID,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if err := txRepo.InsertAppointment(lockCtx, appt); err != nil {
				return fmt.Errorf("insert appointment: %w", err)
			}

			audit.NewPgRecorder(tx, s.log).Record(lockCtx, audit.Record{
				Actor:      p.ActorID,
				Action:     "booking.created",
				TargetType: "appointment",
				TargetID:   appt.ID,
				Metadata: map[string]any{
					"patient_id":  p.PatientID.String(),
					"provider_id": p.ProviderID.String(),
					"start_at":    iv.Start,
					"end_at":      iv.End,
				},
				OccurredAt: now,
			})

			created = &appt
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Stringer("appointment_id", created.ID).
		Stringer("provider_id", p.ProviderID).
		Time("start_at", created.StartAt).
		Msg("appointment scheduled")

	return created, nil
}

func createOutcome(err error) string {
	switch {
	case err == nil:
		return "admitted"
	case errors.Is(err, ErrProviderConflict):
		return "provider_conflict"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, redisclient.ErrLockNotAcquired), errors.Is(err, db.ErrTxConflict):
		return "contention"
	default:
		return "error"
	}
}

type ConfirmParams struct {
	FinalPrice *decimal.Decimal
	Method     ledger.Method
	ActorID    uuid.UUID
}

type ConfirmResult struct {
	Appointment *Appointment
	Charge      *ledger.ConfirmChargeResult
	Reminders   []reminder.Reminder
}

// Confirm moves a scheduled appointment to confirmed and fires its
// financial event: obligation, ledger entries, credit consumption, and
// reminder rows, all in one transaction serialized on the patient's ledger.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, p ConfirmParams) (*ConfirmResult, error) {
	appt, err := NewPgRepository(s.pool).GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	var result *ConfirmResult

	lockKey := ledger.PatientLockKey(appt.PatientID)
	err = s.locker.WithLock(ctx, []string{lockKey}, func(lockCtx context.Context) error {
		return db.Serializable(lockCtx, s.pool, func(tx pgx.Tx) error {
			txRepo := NewPgRepository(tx)

			current, err := txRepo.GetAppointmentForUpdate(lockCtx, id)
			if err != nil {
				return err
			}
			if current.Status != StatusScheduled {
				return fmt.Errorf("%w: cannot confirm %s appointment", ErrInvalidState, current.Status)
			}

			serviceType, err := txRepo.GetServiceTypeByID(lockCtx, current.ServiceTypeID)
			if err != nil {
				return fmt.Errorf("load service type: %w", err)
			}

			updated, err := txRepo.UpdateAppointmentStatus(lockCtx, id, StatusScheduled, StatusConfirmed)
			if err != nil {
				return fmt.Errorf("confirm appointment: %w", err)
			}
			if p.FinalPrice != nil {
				if err := txRepo.SetFinalPrice(lockCtx, id, *p.FinalPrice); err != nil {
					return fmt.Errorf("set final price: %w", err)
				}
				updated.FinalPrice = p.FinalPrice
			}

			now := time.Now().UTC()
			charge, err := ledger.ConfirmCharge(lockCtx, ledger.NewPgRepository(tx), ledger.ConfirmChargeParams{
				PatientID:     current.PatientID,
				AppointmentID: current.ID,
				ServiceTypeID: current.ServiceTypeID,
				CatalogPrice:  serviceType.BasePrice,
				FinalPrice:    p.FinalPrice,
				Method:        p.Method,
				ActorID:       p.ActorID,
				OccurredAt:    now,
			})
			if err != nil {
				return err
			}

			reminders := reminder.Generate(current.ID, current.StartAt, now, s.loc)
			if len(reminders) > 0 {
				if err := reminder.NewPgRepository(tx).Insert(lockCtx, reminders); err != nil {
					return fmt.Errorf("insert reminders: %w", err)
				}
			}

			audit.NewPgRecorder(tx, s.log).Record(lockCtx, audit.Record{
				Actor:      p.ActorID,
				Action:     "booking.confirmed",
				TargetType: "appointment",
				TargetID:   current.ID,
				Metadata: map[string]any{
					"obligation_id":  charge.Obligation.ID.String(),
					"method":         string(p.Method),
					"paid":           charge.Paid.String(),
					"credit_applied": charge.CreditApplied.String(),
					"reminders":      len(reminders),
				},
				OccurredAt: now,
			})

			result = &ConfirmResult{
				Appointment: updated,
				Charge:      charge,
				Reminders:   reminders,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(StatusConfirmed))
	s.log.Info().
		Stringer("appointment_id", id).
		Stringer("obligation_id", result.Charge.Obligation.ID).
		Str("status", string(result.Charge.Obligation.Status)).
		Msg("appointment confirmed")

	return result, nil
}

// Cancel terminates a scheduled or confirmed appointment: pending reminders
// fail, and every settled or partially settled obligation on it gets a
// refund entry of its full total due.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string, actorID uuid.UUID) (*Appointment, error) {
	appt, err := NewPgRepository(s.pool).GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	var cancelled *Appointment

	lockKey := ledger.PatientLockKey(appt.PatientID)
	err = s.locker.WithLock(ctx, []string{lockKey}, func(lockCtx context.Context) error {
		return db.Serializable(lockCtx, s.pool, func(tx pgx.Tx) error {
			txRepo := NewPgRepository(tx)

			current, err := txRepo.GetAppointmentForUpdate(lockCtx, id)
			if err != nil {
				return err
			}
			if current.Status != StatusScheduled && current.Status != StatusConfirmed {
				return fmt.Errorf("%w: cannot cancel %s appointment", ErrInvalidState, current.Status)
			}

			updated, err := txRepo.UpdateAppointmentStatus(lockCtx, id, current.Status, StatusCancelled)
			if err != nil {
				return fmt.Errorf("cancel appointment: %w", err)
			}

			failed, err := reminder.NewPgRepository(tx).FailPendingForAppointment(lockCtx, id)
			if err != nil {
				return fmt.Errorf("fail pending reminders: %w", err)
			}

			now := time.Now().UTC()
			refunds, err := ledger.RefundCancelledAppointment(lockCtx, ledger.NewPgRepository(tx), id, actorID, now)
			if err != nil {
				return err
			}

			audit.NewPgRecorder(tx, s.log).Record(lockCtx, audit.Record{
				Actor:      actorID,
				Action:     "booking.cancelled",
				TargetType: "appointment",
				TargetID:   id,
				Metadata: map[string]any{
					"reason":           reason,
					"reminders_failed": failed,
					"refund_entries":   len(refunds),
					"cancelled_from":   string(current.Status),
				},
				OccurredAt: now,
			})

			cancelled = updated
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(StatusCancelled))
	s.log.Info().Stringer("appointment_id", id).Str("reason", reason).Msg("appointment cancelled")

	return cancelled, nil
}

// Complete marks a confirmed appointment as completed.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*Appointment, error) {
	return s.staffTransition(ctx, id, StatusCompleted, actorID)
}

// MarkNoShow marks a confirmed appointment the patient missed.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*Appointment, error) {
	return s.staffTransition(ctx, id, StatusNoShow, actorID)
}

func (s *Service) staffTransition(ctx context.Context, id uuid.UUID, to Status, actorID uuid.UUID) (*Appointment, error) {
	var updated *Appointment

	err := db.Serializable(ctx, s.pool, func(tx pgx.Tx) error {
		txRepo := NewPgRepository(tx)

		current, err := txRepo.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusConfirmed {
			return fmt.Errorf("%w: cannot mark %s appointment %s", ErrInvalidState, current.Status, to)
		}

		updated, err = txRepo.UpdateAppointmentStatus(ctx, id, StatusConfirmed, to)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}

		audit.NewPgRecorder(tx, s.log).Record(ctx, audit.Record{
			Actor:      actorID,
			Action:     "booking." + string(to),
			TargetType: "appointment",
			TargetID:   id,
			OccurredAt: time.Now().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(to))
	return updated, nil
}

type RecurrenceConflict struct {
	StartAt time.Time
	Reason  string
}

type RecurrenceResult struct {
	GroupID   uuid.UUID
	Created   []Appointment
	Conflicts []RecurrenceConflict
}

// CreateRecurring books one appointment per week for the given number of
// weeks. Business-rule rejections are collected per occurrence instead of
// aborting the series; store faults still abort.
func (s *Service) CreateRecurring(ctx context.Context, p CreateParams, weeks int) (*RecurrenceResult, error) {
	if weeks < 1 {
		return nil, ErrInvalidRecurrence
	}

	groupID := uuid.New()
	result := &RecurrenceResult{GroupID: groupID}

	for week := 0; week < weeks; week++ {
		occurrence := p
		occurrence.StartAt = p.StartAt.AddDate(0, 0, 7*week)
		occurrence.RecurrenceGroupID = &groupID

		appt, err := s.Create(ctx, occurrence)
		if err != nil {
			if isAdmissionRejection(err) {
				result.Conflicts = append(result.Conflicts, RecurrenceConflict{
					StartAt: occurrence.StartAt,
					Reason:  err.Error(),
				})
				continue
			}
			return nil, fmt.Errorf("week %d: %w", week, err)
		}
		result.Created = append(result.Created, *appt)
	}

	return result, nil
}

func isAdmissionRejection(err error) bool {
	return errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrProviderConflict) ||
		errors.Is(err, redisclient.ErrLockNotAcquired) ||
		errors.Is(err, db.ErrTxConflict)
}

// GetAppointment retrieves a fully hydrated appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := NewPgRepository(s.pool).GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// ListAppointmentsByPatient retrieves appointments for a specific patient.
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := NewPgRepository(s.pool).ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}
