package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/clinic-booking-ledger/internal/booking"
	"github.com/hackgods/clinic-booking-ledger/internal/ledger"
	"github.com/hackgods/clinic-booking-ledger/internal/reminder"
)

type CreateAppointmentRequest struct {
	PatientID     string  `json:"patient_id"`
	ProviderID    string  `json:"provider_id"`
	ServiceTypeID string  `json:"service_type_id"`
	StartAt       string  `json:"start_at"` // RFC 3339
	Notes         *string `json:"notes,omitempty"`
	Weeks         int     `json:"weeks,omitempty"` // >1 books a weekly series
}

type ConfirmAppointmentRequest struct {
	FinalPrice *string `json:"final_price,omitempty"`
	Method     string  `json:"method"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type AppointmentResponse struct {
	ID                uuid.UUID        `json:"id"`
	PatientID         uuid.UUID        `json:"patient_id"`
	ProviderID        uuid.UUID        `json:"provider_id"`
	ServiceTypeID     uuid.UUID        `json:"service_type_id"`
	StartAt           time.Time        `json:"start_at"`
	EndAt             time.Time        `json:"end_at"`
	Status            string           `json:"status"`
	FinalPrice        *decimal.Decimal `json:"final_price,omitempty"`
	RecurrenceGroupID *uuid.UUID       `json:"recurrence_group_id,omitempty"`
	Notes             *string          `json:"notes,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func toAppointmentResponse(a booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                a.ID,
		PatientID:         a.PatientID,
		ProviderID:        a.ProviderID,
		ServiceTypeID:     a.ServiceTypeID,
		StartAt:           a.StartAt,
		EndAt:             a.EndAt,
		Status:            string(a.Status),
		FinalPrice:        a.FinalPrice,
		RecurrenceGroupID: a.RecurrenceGroupID,
		Notes:             a.Notes,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	PatientName     string `json:"patient_name"`
	ProviderName    string `json:"provider_name"`
	ServiceTypeName string `json:"service_type_name"`
}

type RecurrenceConflictResponse struct {
	StartAt time.Time `json:"start_at"`
	Reason  string    `json:"reason"`
}

type RecurrenceResponse struct {
	GroupID   uuid.UUID                    `json:"recurrence_group_id"`
	Created   []AppointmentResponse        `json:"created"`
	Conflicts []RecurrenceConflictResponse `json:"conflicts,omitempty"`
}

type ObligationResponse struct {
	ID            uuid.UUID       `json:"id"`
	PatientID     uuid.UUID       `json:"patient_id"`
	AppointmentID *uuid.UUID      `json:"appointment_id,omitempty"`
	Total         decimal.Decimal `json:"total"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toObligationResponse(ob ledger.Obligation) ObligationResponse {
	return ObligationResponse{
		ID:            ob.ID,
		PatientID:     ob.PatientID,
		AppointmentID: ob.AppointmentID,
		Total:         ob.Total,
		Status:        string(ob.Status),
		CreatedAt:     ob.CreatedAt,
	}
}

type EntryResponse struct {
	ID           uuid.UUID       `json:"id"`
	ObligationID *uuid.UUID      `json:"obligation_id,omitempty"`
	Kind         string          `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	Method       string          `json:"method"`
	Notes        *string         `json:"notes,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

func toEntryResponses(entries []ledger.Entry) []EntryResponse {
	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryResponse{
			ID:           e.ID,
			ObligationID: e.ObligationID,
			Kind:         string(e.Kind),
			Amount:       e.Amount,
			Method:       string(e.Method),
			Notes:        e.Notes,
			OccurredAt:   e.OccurredAt,
		})
	}
	return out
}

type ConfirmResponse struct {
	Appointment   AppointmentResponse `json:"appointment"`
	Obligation    ObligationResponse  `json:"obligation"`
	CreditApplied decimal.Decimal     `json:"credit_applied"`
	Paid          decimal.Decimal     `json:"paid"`
	Entries       []EntryResponse     `json:"entries"`
	Reminders     []ReminderResponse  `json:"reminders"`
}

type ReminderResponse struct {
	ID    uuid.UUID `json:"id"`
	Kind  string    `json:"kind"`
	DueAt time.Time `json:"due_at"`
}

func toReminderResponses(reminders []reminder.Reminder) []ReminderResponse {
	out := make([]ReminderResponse, 0, len(reminders))
	for _, rem := range reminders {
		out = append(out, ReminderResponse{
			ID:    rem.ID,
			Kind:  string(rem.Kind),
			DueAt: rem.DueAt,
		})
	}
	return out
}

type MovementRequest struct {
	ObligationID *string `json:"obligation_id,omitempty"`
	Amount       string  `json:"amount"`
	Method       string  `json:"method"`
	Notes        *string `json:"notes,omitempty"`
}

type AppliedObligationResponse struct {
	ObligationID uuid.UUID       `json:"obligation_id"`
	Amount       decimal.Decimal `json:"amount"`
	Status       string          `json:"status"`
}

type AllocationResponse struct {
	Applied  []AppliedObligationResponse `json:"applied"`
	Overflow decimal.Decimal             `json:"overflow"`
	Entries  []EntryResponse             `json:"entries"`
}

func toAllocationResponse(res *ledger.AllocationResult) AllocationResponse {
	applied := make([]AppliedObligationResponse, 0, len(res.Applied))
	for _, a := range res.Applied {
		applied = append(applied, AppliedObligationResponse{
			ObligationID: a.ObligationID,
			Amount:       a.Amount,
			Status:       string(a.Status),
		})
	}
	return AllocationResponse{
		Applied:  applied,
		Overflow: res.Overflow,
		Entries:  toEntryResponses(res.Entries),
	}
}

type CreditRefundRequest struct {
	Amount string  `json:"amount"`
	Method string  `json:"method"`
	Notes  *string `json:"notes,omitempty"`
}

type BundleRequest struct {
	ServiceTypeID string `json:"service_type_id"`
	Quantity      int    `json:"quantity"`
	Total         string `json:"total"`
	Method        string `json:"method"`
}

type BalanceResponse struct {
	PatientID     uuid.UUID       `json:"patient_id"`
	CreditBalance decimal.Decimal `json:"credit_balance"`
	Entries       []EntryResponse `json:"entries"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
