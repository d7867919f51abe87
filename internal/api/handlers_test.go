package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking-ledger/internal/booking"
	"github.com/hackgods/clinic-booking-ledger/internal/db"
	"github.com/hackgods/clinic-booking-ledger/internal/ledger"
	redisclient "github.com/hackgods/clinic-booking-ledger/internal/redis"
	"github.com/hackgods/clinic-booking-ledger/internal/timeslot"
)

func newBody(s string) io.Reader {
	return strings.NewReader(s)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHandleBookingErrorMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{booking.ErrPatientNotFound, http.StatusNotFound, "patient_not_found"},
		{booking.ErrProviderNotFound, http.StatusNotFound, "provider_not_found"},
		{booking.ErrServiceTypeNotFound, http.StatusNotFound, "service_type_not_found"},
		{booking.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
		{booking.ErrProviderConflict, http.StatusUnprocessableEntity, "provider_conflict"},
		{booking.ErrCapacityExceeded, http.StatusUnprocessableEntity, "capacity_exceeded"},
		{booking.ErrInvalidState, http.StatusConflict, "invalid_state"},
		{booking.ErrInvalidRecurrence, http.StatusBadRequest, "invalid_recurrence"},
		{timeslot.ErrInvalidInterval, http.StatusBadRequest, "invalid_interval"},
		{ledger.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
		{ledger.ErrInsufficientCredit, http.StatusUnprocessableEntity, "insufficient_credit"},
		{redisclient.ErrLockNotAcquired, http.StatusConflict, "resource_busy"},
		{db.ErrTxConflict, http.StatusConflict, "resource_busy"},
		{fmt.Errorf("wrapped: %w", booking.ErrCapacityExceeded), http.StatusUnprocessableEntity, "capacity_exceeded"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range tests {
		t.Run(tc.wantCode, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleBookingError(rec, tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantCode, decodeError(t, rec).Error)
		})
	}
}

func TestHandleLedgerErrorMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{ledger.ErrPatientNotFound, http.StatusNotFound, "patient_not_found"},
		{ledger.ErrObligationNotFound, http.StatusNotFound, "obligation_not_found"},
		{ledger.ErrServiceTypeNotFound, http.StatusNotFound, "service_type_not_found"},
		{ledger.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
		{ledger.ErrInsufficientCredit, http.StatusUnprocessableEntity, "insufficient_credit"},
		{redisclient.ErrLockNotAcquired, http.StatusConflict, "resource_busy"},
		{db.ErrTxConflict, http.StatusConflict, "resource_busy"},
	}

	for _, tc := range tests {
		t.Run(tc.wantCode, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleLedgerError(rec, tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantCode, decodeError(t, rec).Error)
		})
	}
}

func TestParseMethod(t *testing.T) {
	for _, raw := range []string{"cash", "card", "bank_transfer", "service_credit"} {
		method, ok := parseMethod(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, ledger.Method(raw), method)
	}

	// Empty defaults to cash.
	method, ok := parseMethod("")
	assert.True(t, ok)
	assert.Equal(t, ledger.MethodCash, method)

	_, ok = parseMethod("barter")
	assert.False(t, ok)
}

func TestCreateAppointmentValidation(t *testing.T) {
	handler := createAppointmentHandler(nil)

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"garbage body", `{`, "invalid_request_body"},
		{"bad patient id", `{"patient_id":"nope"}`, "invalid_patient_id"},
		{
			"bad start_at",
			fmt.Sprintf(`{"patient_id":%q,"provider_id":%q,"service_type_id":%q,"start_at":"tomorrow"}`,
				"7f9c24e5-25a7-45a2-a11c-12c4e5b7a111", "7f9c24e5-25a7-45a2-a11c-12c4e5b7a222", "7f9c24e5-25a7-45a2-a11c-12c4e5b7a333"),
			"invalid_start_at",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/appointments", newBody(tc.body))
			rec := httptest.NewRecorder()

			handler(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.wantCode, decodeError(t, rec).Error)
		})
	}
}

func TestCreateAppointmentRequiresActor(t *testing.T) {
	handler := createAppointmentHandler(nil)

	body := fmt.Sprintf(`{"patient_id":%q,"provider_id":%q,"service_type_id":%q,"start_at":"2026-03-10T09:00:00Z"}`,
		"7f9c24e5-25a7-45a2-a11c-12c4e5b7a111", "7f9c24e5-25a7-45a2-a11c-12c4e5b7a222", "7f9c24e5-25a7-45a2-a11c-12c4e5b7a333")
	req := httptest.NewRequest(http.MethodPost, "/appointments", newBody(body))
	rec := httptest.NewRecorder()

	handler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_actor", decodeError(t, rec).Error)
}
