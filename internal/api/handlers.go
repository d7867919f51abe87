package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/clinic-booking-ledger/internal/booking"
	"github.com/hackgods/clinic-booking-ledger/internal/db"
	"github.com/hackgods/clinic-booking-ledger/internal/ledger"
	redisclient "github.com/hackgods/clinic-booking-ledger/internal/redis"
	"github.com/hackgods/clinic-booking-ledger/internal/timeslot"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

// actorID identifies the staff member performing the operation. It comes
// from the X-Actor-ID header until an auth layer lands in front of the API.
func actorID(r *http.Request) (uuid.UUID, bool) {
	raw := r.Header.Get("X-Actor-ID")
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	return id, err == nil
}

func parseMethod(raw string) (ledger.Method, bool) {
	switch ledger.Method(raw) {
	case ledger.MethodCash, ledger.MethodCard, ledger.MethodTransfer, ledger.MethodServiceCredit:
		return ledger.Method(raw), true
	case "":
		return ledger.MethodCash, true
	default:
		return "", false
	}
}

func parseAmount(raw string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(raw)
	return amount, err == nil
}

func createAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		serviceTypeID, err := uuid.Parse(req.ServiceTypeID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_type_id", "service_type_id must be a valid UUID")
			return
		}
		startAt, err := time.Parse(time.RFC3339, req.StartAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_at", "start_at must be RFC 3339")
			return
		}
		actor, ok := actorID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "missing_actor", "X-Actor-ID header must be a valid UUID")
			return
		}

		params := booking.CreateParams{
			PatientID:     patientID,
			ProviderID:    providerID,
			ServiceTypeID: serviceTypeID,
			StartAt:       startAt,
			Notes:         req.Notes,
			ActorID:       actor,
		}

		if req.Weeks > 1 {
			result, err := svc.CreateRecurring(r.Context(), params, req.Weeks)
			if err != nil {
				handleBookingError(w, err)
				return
			}

			resp := RecurrenceResponse{GroupID: result.GroupID}
			for _, appt := range result.Created {
				resp.Created = append(resp.Created, toAppointmentResponse(appt))
			}
			for _, c := range result.Conflicts {
				resp.Conflicts = append(resp.Conflicts, RecurrenceConflictResponse(c))
			}
			writeJSON(w, http.StatusCreated, resp)
			return
		}

		appt, err := svc.Create(r.Context(), params)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func getAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		detail, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := AppointmentDetailResponse{
			AppointmentResponse: toAppointmentResponse(detail.Appointment),
			PatientName:         detail.Patient.Name,
			ProviderName:        detail.Provider.Name,
			ServiceTypeName:     detail.ServiceType.Name,
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listPatientAppointmentsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := parseUUIDParam(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		appointments, err := svc.ListAppointmentsByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appointments))
		for _, appt := range appointments {
			resp = append(resp, toAppointmentResponse(appt))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func confirmAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req ConfirmAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		method, ok := parseMethod(req.Method)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_method", "unknown payment method")
			return
		}

		var finalPrice *decimal.Decimal
		if req.FinalPrice != nil {
			price, ok := parseAmount(*req.FinalPrice)
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid_final_price", "final_price must be a decimal string")
				return
			}
			finalPrice = &price
		}

		actor, ok := actorID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "missing_actor", "X-Actor-ID header must be a valid UUID")
			return
		}

		result, err := svc.Confirm(r.Context(), id, booking.ConfirmParams{
			FinalPrice: finalPrice,
			Method:     method,
			ActorID:    actor,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := ConfirmResponse{
			Appointment:   toAppointmentResponse(*result.Appointment),
			Obligation:    toObligationResponse(*result.Charge.Obligation),
			CreditApplied: result.Charge.CreditApplied,
			Paid:          result.Charge.Paid,
			Entries:       toEntryResponses(result.Charge.Entries),
			Reminders:     toReminderResponses(result.Reminders),
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func cancelAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req CancelAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		actor, ok := actorID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "missing_actor", "X-Actor-ID header must be a valid UUID")
			return
		}

		appt, err := svc.Cancel(r.Context(), id, req.Reason, actor)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func staffTransitionHandler(apply func(ctx context.Context, id, actor uuid.UUID) (*booking.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}
		actor, ok := actorID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "missing_actor", "X-Actor-ID header must be a valid UUID")
			return
		}

		appt, err := apply(r.Context(), id, actor)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func completeAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return staffTransitionHandler(svc.Complete)
}

func noShowAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return staffTransitionHandler(svc.MarkNoShow)
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, booking.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, booking.ErrServiceTypeNotFound):
		writeError(w, http.StatusNotFound, "service_type_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrProviderConflict):
		writeError(w, http.StatusUnprocessableEntity, "provider_conflict", err.Error())
	case errors.Is(err, booking.ErrCapacityExceeded):
		writeError(w, http.StatusUnprocessableEntity, "capacity_exceeded", err.Error())
	case errors.Is(err, booking.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, booking.ErrInvalidRecurrence):
		writeError(w, http.StatusBadRequest, "invalid_recurrence", err.Error())
	case errors.Is(err, timeslot.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, "invalid_interval", err.Error())
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
	case errors.Is(err, ledger.ErrInsufficientCredit):
		writeError(w, http.StatusUnprocessableEntity, "insufficient_credit", err.Error())
	case errors.Is(err, redisclient.ErrLockNotAcquired), errors.Is(err, db.ErrTxConflict):
		writeError(w, http.StatusConflict, "resource_busy", "operation is contended, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
