package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmChargeCashFullPayment(t *testing.T) {
	repo := newFakeRepo()
	patientID := repo.addPatient(decimal.Zero)
	appointmentID := uuid.New()
	now := time.Now().UTC()

	res, err := ConfirmCharge(context.Background(), repo, ConfirmChargeParams{
		PatientID:     patientID,
		AppointmentID: appointmentID,
		ServiceTypeID: uuid.New(),
		CatalogPrice:  dec("175"),
		Method:        MethodCash,
		ActorID:       uuid.New(),
		OccurredAt:    now,
	})
	require.NoError(t, err)

	assert.Equal(t, ObligationPaid, res.Obligation.Status)
	assert.True(t, res.Obligation.Total.Equal(dec("175")))
	assert.True(t, res.Paid.Equal(dec("175")))
	assert.True(t, res.CreditApplied.IsZero())

	require.Len(t, res.Entries, 2)
	assert.Equal(t, KindCharge, res.Entries[0].Kind)
	assert.True(t, res.Entries[0].Amount.Equal(dec("175")))
	assert.Equal(t, KindPayment, res.Entries[1].Kind)
	assert.True(t, res.Entries[1].Amount.Equal(dec("175")))
}

func TestConfirmChargeFinalPriceOnlyAffectsPayment(t *testing.T) {
	repo := newFakeRepo()
	patientID := repo.addPatient(decimal.Zero)
	final := dec("100")

	res, err := ConfirmCharge(context.Background(), repo, ConfirmChargeParams{
		PatientID:     patientID,
		AppointmentID: uuid.New(),
		ServiceTypeID: uuid.New(),
		CatalogPrice:  dec("175"),
		FinalPrice:    &final,
		Method:        MethodCard,
		ActorID:       uuid.New(),
		OccurredAt:    time.Now().UTC(),
	})
	require.NoError(t, err)

	// The obligation's principal stays at catalog price; only the recorded
	// payment follows the final price.
	assert.True(t, res.Obligation.Total.Equal(dec("175")))
	assert.True(t, res.Paid.Equal(dec("100")))
	assert.Equal(t, ObligationPartiallyPaid, res.Obligation.Status)
}

func TestConfirmChargeAppliesStoredCreditFirst(t *testing.T) {
	repo := newFakeRepo()
	patientID := repo.addPatient(dec("50"))

	res, err := ConfirmCharge(context.Background(), repo, ConfirmChargeParams{
		PatientID:     patientID,
		AppointmentID: uuid.New(),
		ServiceTypeID: uuid.New(),
		CatalogPrice:  dec("120"),
		Method:        MethodCash,
		ActorID:       uuid.New(),
		OccurredAt:    time.Now().UTC(),
	})
	require.NoError(t, err)

	assert.True(t, res.CreditApplied.Equal(dec("50")))
	assert.True(t, res.Paid.Equal(dec("70")))
	assert.Equal(t, ObligationPaid, res.Obligation.Status)

	account := repo.accounts[patientID]
	assert.True(t, account.CreditBalance.IsZero())

	// The consumption entry keeps the balance equal to the signed sum of
	// credit entries: 0 granted, -50 consumed, cached balance went 50 -> 0.
	assert.True(t, repo.creditEntrySum(patientID).Equal(dec("-50")))

	settled, err := repo.SettledAmount(context.Background(), res.Obligation.ID)
	require.NoError(t, err)
	assert.True(t, settled.Equal(dec("120")))
}

func TestConfirmChargeCreditLargerThanCharge(t *testing.T) {
	repo := newFakeRepo()
	patientID := repo.addPatient(dec("300"))

	res, err := ConfirmCharge(context.Background(), repo, ConfirmChargeParams{
		PatientID:     patientID,
		AppointmentID: uuid.New(),
		ServiceTypeID: uuid.New(),
		CatalogPrice:  dec("120"),
		Method:        MethodCash,
		ActorID:       uuid.New(),
		OccurredAt:    time.Now().UTC(),
	})
	require.NoError(t, err)

	assert.True(t, res.CreditApplied.Equal(dec("120")), "only the charge amount is consumed")
	assert.True(t, res.Paid.IsZero())
	assert.Equal(t, ObligationPaid, res.Obligation.Status)
	assert.True(t, repo.accounts[patientID].CreditBalance.Equal(dec("180")))

	// No zero-amount payment entry is written.
	for _, e := range res.Entries {
		assert.NotEqual(t, KindPayment, e.Kind)
	}
}

func TestConfirmChargeServiceCredit(t *testing.T) {
	repo := newFakeRepo()
	patientID := repo.addPatient(decimal.Zero)
	serviceTypeID := uuid.New()

	require.NoError(t, repo.InsertServiceCredits(context.Background(), []ServiceCredit{{
		ID:            uuid.New(),
		PatientID:     patientID,
		ServiceTypeID: serviceTypeID,
		ObligationID:  uuid.New(),
		CreatedAt:     time.Now().UTC(),
	}}))

	res, err := ConfirmCharge(context.Background(), repo, ConfirmChargeParams{
		PatientID:     patientID,
		AppointmentID: uuid.New(),
		ServiceTypeID: serviceTypeID,
		CatalogPrice:  dec("90"),
		Method:        MethodServiceCredit,
		ActorID:       uuid.New(),
		OccurredAt:    time.Now().UTC(),
	})
	require.NoError(t, err)

	assert.Equal(t, ObligationPaid, res.Obligation.Status)
	require.Len(t, res.Entries, 2)
	for _, e := range res.Entries {
		assert.Equal(t, MethodServiceCredit, e.Method)
	}

	// The unit is consumed: a second service-credit confirmation fails.
	_, err = ConfirmCharge(context.Background(), repo, ConfirmChargeParams{
		PatientID:     patientID,
		AppointmentID: uuid.New(),
		ServiceTypeID: serviceTypeID,
		CatalogPrice:  dec("90"),
		Method:        MethodServiceCredit,
		ActorID:       uuid.New(),
		OccurredAt:    time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrInsufficientCredit)
}

func TestConfirmChargeServiceCreditWrongServiceType(t *testing.T) {
	repo := newFakeRepo()
	patientID := repo.addPatient(decimal.Zero)

	require.NoError(t, repo.InsertServiceCredits(context.Background(), []ServiceCredit{{
		ID:            uuid.New(),
		PatientID:     patientID,
		ServiceTypeID: uuid.New(),
		ObligationID:  uuid.New(),
		CreatedAt:     time.Now().UTC(),
	}}))

	_, err := ConfirmCharge(context.Background(), repo, ConfirmChargeParams{
		PatientID:     patientID,
		AppointmentID: uuid.New(),
		ServiceTypeID: uuid.New(), // different service type
		CatalogPrice:  dec("90"),
		Method:        MethodServiceCredit,
		ActorID:       uuid.New(),
		OccurredAt:    time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrInsufficientCredit)
}

func TestConfirmChargeRejectsBadAmounts(t *testing.T) {
	repo := newFakeRepo()
	patientID := repo.addPatient(decimal.Zero)

	_, err := ConfirmCharge(context.Background(), repo, ConfirmChargeParams{
		PatientID:     patientID,
		AppointmentID: uuid.New(),
		ServiceTypeID: uuid.New(),
		CatalogPrice:  decimal.Zero,
		Method:        MethodCash,
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	negative := dec("-10")
	_, err = ConfirmCharge(context.Background(), repo, ConfirmChargeParams{
		PatientID:     patientID,
		AppointmentID: uuid.New(),
		ServiceTypeID: uuid.New(),
		CatalogPrice:  dec("100"),
		FinalPrice:    &negative,
		Method:        MethodCash,
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestRefundCancelledAppointmentRefundsFullTotal(t *testing.T) {
	repo := newFakeRepo()
	patientID := repo.addPatient(decimal.Zero)
	appointmentID := uuid.New()
	now := time.Now().UTC()

	// Confirm with a partial payment: due 175, paid 100.
	final := dec("100")
	res, err := ConfirmCharge(context.Background(), repo, ConfirmChargeParams{
		PatientID:     patientID,
		AppointmentID: appointmentID,
		ServiceTypeID: uuid.New(),
		CatalogPrice:  dec("175"),
		FinalPrice:    &final,
		Method:        MethodCash,
		ActorID:       uuid.New(),
		OccurredAt:    now,
	})
	require.NoError(t, err)
	require.Equal(t, ObligationPartiallyPaid, res.Obligation.Status)

	entries, err := RefundCancelledAppointment(context.Background(), repo, appointmentID, uuid.New(), now)
	require.NoError(t, err)

	// Policy: the refund is the full total due, not the amount paid.
	require.Len(t, entries, 1)
	assert.Equal(t, KindRefund, entries[0].Kind)
	assert.True(t, entries[0].Amount.Equal(dec("-175")))
}

func TestRefundCancelledAppointmentSkipsPendingObligations(t *testing.T) {
	repo := newFakeRepo()
	patientID := repo.addPatient(decimal.Zero)
	appointmentID := uuid.New()

	apptRef := appointmentID
	require.NoError(t, repo.InsertObligation(context.Background(), Obligation{
		ID:            uuid.New(),
		PatientID:     patientID,
		AppointmentID: &apptRef,
		Subtotal:      dec("80"),
		Total:         dec("80"),
		Status:        ObligationPending,
		CreatedAt:     time.Now().UTC(),
	}))

	entries, err := RefundCancelledAppointment(context.Background(), repo, appointmentID, uuid.New(), time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing was paid, nothing to refund")
}
