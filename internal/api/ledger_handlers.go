package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking-ledger/internal/db"
	"github.com/hackgods/clinic-booking-ledger/internal/ledger"
	redisclient "github.com/hackgods/clinic-booking-ledger/internal/redis"
)

func recordPaymentHandler(alloc *ledger.Allocator) http.HandlerFunc {
	return movementHandler(alloc.RecordPayment)
}

func recordWaiverHandler(alloc *ledger.Allocator) http.HandlerFunc {
	return movementHandler(alloc.RecordWaiver)
}

func movementHandler(record func(ctx context.Context, p ledger.MovementParams) (*ledger.AllocationResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := parseUUIDParam(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
			return
		}

		var req MovementRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		amount, ok := parseAmount(req.Amount)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_amount", "amount must be a decimal string")
			return
		}
		method, ok := parseMethod(req.Method)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_method", "unknown payment method")
			return
		}

		var obligationID *uuid.UUID
		if req.ObligationID != nil {
			id, err := uuid.Parse(*req.ObligationID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_obligation_id", "obligation_id must be a valid UUID")
				return
			}
			obligationID = &id
		}

		actor, ok := actorID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "missing_actor", "X-Actor-ID header must be a valid UUID")
			return
		}

		result, err := record(r.Context(), ledger.MovementParams{
			PatientID:    patientID,
			ObligationID: obligationID,
			Amount:       amount,
			Method:       method,
			Notes:        req.Notes,
			ActorID:      actor,
		})
		if err != nil {
			handleLedgerError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAllocationResponse(result))
	}
}

func refundCreditHandler(alloc *ledger.Allocator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := parseUUIDParam(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
			return
		}

		var req CreditRefundRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		amount, ok := parseAmount(req.Amount)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_amount", "amount must be a decimal string")
			return
		}
		method, ok := parseMethod(req.Method)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_method", "unknown payment method")
			return
		}
		actor, ok := actorID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "missing_actor", "X-Actor-ID header must be a valid UUID")
			return
		}

		entries, err := alloc.RefundCredit(r.Context(), ledger.RefundCreditParams{
			PatientID: patientID,
			Amount:    amount,
			Method:    method,
			Notes:     req.Notes,
			ActorID:   actor,
		})
		if err != nil {
			handleLedgerError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toEntryResponses(entries))
	}
}

func purchaseBundleHandler(alloc *ledger.Allocator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := parseUUIDParam(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
			return
		}

		var req BundleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		serviceTypeID, err := uuid.Parse(req.ServiceTypeID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_type_id", "service_type_id must be a valid UUID")
			return
		}
		total, ok := parseAmount(req.Total)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_total", "total must be a decimal string")
			return
		}
		method, ok := parseMethod(req.Method)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_method", "unknown payment method")
			return
		}
		actor, ok := actorID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "missing_actor", "X-Actor-ID header must be a valid UUID")
			return
		}

		ob, err := alloc.PurchaseBundle(r.Context(), ledger.BundleParams{
			PatientID:     patientID,
			ServiceTypeID: serviceTypeID,
			Quantity:      req.Quantity,
			Total:         total,
			Method:        method,
			ActorID:       actor,
		})
		if err != nil {
			handleLedgerError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toObligationResponse(*ob))
	}
}

func patientBalanceHandler(alloc *ledger.Allocator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := parseUUIDParam(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		account, entries, err := alloc.Balance(r.Context(), patientID, limit, offset)
		if err != nil {
			handleLedgerError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, BalanceResponse{
			PatientID:     account.ID,
			CreditBalance: account.CreditBalance,
			Entries:       toEntryResponses(entries),
		})
	}
}

func handleLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, ledger.ErrObligationNotFound):
		writeError(w, http.StatusNotFound, "obligation_not_found", err.Error())
	case errors.Is(err, ledger.ErrServiceTypeNotFound):
		writeError(w, http.StatusNotFound, "service_type_not_found", err.Error())
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
	case errors.Is(err, ledger.ErrInsufficientCredit):
		writeError(w, http.StatusUnprocessableEntity, "insufficient_credit", err.Error())
	case errors.Is(err, redisclient.ErrLockNotAcquired), errors.Is(err, db.ErrTxConflict):
		writeError(w, http.StatusConflict, "resource_busy", "patient ledger is contended, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
