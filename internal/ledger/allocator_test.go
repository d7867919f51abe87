package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLocker runs the critical section immediately and records the keys it
// was asked to guard.
type fakeLocker struct {
	keys [][]string
}

func (l *fakeLocker) WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	l.keys = append(l.keys, keys)
	return fn(ctx)
}

func newTestAllocator(pool pgxmock.PgxPoolIface) (*Allocator, *fakeLocker) {
	locker := &fakeLocker{}
	return NewAllocator(pool, locker, zerolog.Nop(), nil), locker
}

func accountRow(mock pgxmock.PgxPoolIface, patientID uuid.UUID, credit decimal.Decimal) {
	mock.ExpectQuery(`FROM patients`).
		WithArgs(patientID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "credit_balance"}).AddRow(patientID, credit))
}

func openBalanceRows(mock pgxmock.PgxPoolIface, balances ...ObligationBalance) {
	rows := pgxmock.NewRows([]string{"id", "total", "settled"})
	for _, b := range balances {
		rows.AddRow(b.ID, b.Total, b.Settled)
	}
	mock.ExpectQuery(`FROM obligations o`).WillReturnRows(rows)
}

func TestRecordPaymentOverflowBecomesCredit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	patientID := uuid.New()
	obID := uuid.New()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	accountRow(mock, patientID, dec("20"))
	openBalanceRows(mock, ObligationBalance{ID: obID, Total: dec("100"), Settled: decimal.Zero})
	mock.ExpectExec(`INSERT INTO ledger_entries`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE obligations`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	// Overflow: credit entry plus cached balance 20 + 50 = 70.
	mock.ExpectExec(`INSERT INTO ledger_entries`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE patients`).
		WithArgs(patientID, dec("70")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	alloc, locker := newTestAllocator(mock)

	res, err := alloc.RecordPayment(context.Background(), MovementParams{
		PatientID: patientID,
		Amount:    dec("150"),
		Method:    MethodCash,
		ActorID:   uuid.New(),
	})
	require.NoError(t, err)

	require.Len(t, res.Applied, 1)
	assert.Equal(t, obID, res.Applied[0].ObligationID)
	assert.True(t, res.Applied[0].Amount.Equal(dec("100")))
	assert.Equal(t, ObligationPaid, res.Applied[0].Status)
	assert.True(t, res.Overflow.Equal(dec("50")))

	require.Len(t, res.Entries, 2)
	assert.Equal(t, KindPayment, res.Entries[0].Kind)
	assert.True(t, res.Entries[0].Amount.Equal(dec("100")))
	assert.Equal(t, KindCredit, res.Entries[1].Kind)
	assert.True(t, res.Entries[1].Amount.Equal(dec("50")))

	require.Len(t, locker.keys, 1)
	assert.Equal(t, []string{PatientLockKey(patientID)}, locker.keys[0])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordWaiverStoresNegativeEntry(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	patientID := uuid.New()
	obID := uuid.New()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	accountRow(mock, patientID, decimal.Zero)
	openBalanceRows(mock, ObligationBalance{ID: obID, Total: dec("80"), Settled: decimal.Zero})
	mock.ExpectExec(`INSERT INTO ledger_entries`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE obligations`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	alloc, _ := newTestAllocator(mock)

	res, err := alloc.RecordWaiver(context.Background(), MovementParams{
		PatientID: patientID,
		Amount:    dec("30"),
		Method:    MethodCash,
		ActorID:   uuid.New(),
	})
	require.NoError(t, err)

	// The applied amount stays positive; the stored entry carries the sign.
	require.Len(t, res.Applied, 1)
	assert.True(t, res.Applied[0].Amount.Equal(dec("30")))
	assert.Equal(t, ObligationPartiallyPaid, res.Applied[0].Status)

	require.Len(t, res.Entries, 1)
	assert.Equal(t, KindWaive, res.Entries[0].Kind)
	assert.True(t, res.Entries[0].Amount.Equal(dec("-30")))
	assert.True(t, res.Overflow.IsZero())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocateRejectsNonPositiveAmount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	alloc, locker := newTestAllocator(mock)

	_, err = alloc.RecordPayment(context.Background(), MovementParams{
		PatientID: uuid.New(),
		Amount:    decimal.Zero,
		Method:    MethodCash,
		ActorID:   uuid.New(),
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	// Rejected before any lock or transaction.
	assert.Empty(t, locker.keys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundCreditWritesConsumptionAndPayout(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	patientID := uuid.New()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	accountRow(mock, patientID, dec("50"))
	mock.ExpectExec(`INSERT INTO ledger_entries`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO ledger_entries`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE patients`).
		WithArgs(patientID, dec("30")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	alloc, _ := newTestAllocator(mock)

	entries, err := alloc.RefundCredit(context.Background(), RefundCreditParams{
		PatientID: patientID,
		Amount:    dec("20"),
		Method:    MethodCash,
		ActorID:   uuid.New(),
	})
	require.NoError(t, err)

	// Consumption keeps credit_balance equal to the signed sum of credit
	// entries; the payout is the refund itself.
	require.Len(t, entries, 2)
	assert.Equal(t, KindCredit, entries[0].Kind)
	assert.True(t, entries[0].Amount.Equal(dec("-20")))
	assert.Equal(t, KindRefund, entries[1].Kind)
	assert.True(t, entries[1].Amount.Equal(dec("-20")))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundCreditRejectsInsufficientBalance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	patientID := uuid.New()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	accountRow(mock, patientID, dec("10"))
	mock.ExpectRollback()

	alloc, _ := newTestAllocator(mock)

	_, err = alloc.RefundCredit(context.Background(), RefundCreditParams{
		PatientID: patientID,
		Amount:    dec("25"),
		Method:    MethodCash,
		ActorID:   uuid.New(),
	})
	assert.ErrorIs(t, err, ErrInsufficientCredit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPaymentTargetedObligation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	patientID := uuid.New()
	targetID := uuid.New()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	accountRow(mock, patientID, decimal.Zero)
	mock.ExpectQuery(`FROM obligations`).
		WithArgs(targetID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "patient_id", "appointment_id", "subtotal", "discount", "total", "status", "created_by", "created_at"}).
			AddRow(targetID, patientID, nil, dec("60"), decimal.Zero, dec("60"), ObligationPending, uuid.New(), time.Now().UTC()))
	mock.ExpectQuery(`ledger_entries e`).
		WithArgs(targetID).
		WillReturnRows(pgxmock.NewRows([]string{"settled"}).AddRow(decimal.Zero))
	openBalanceRows(mock)
	mock.ExpectExec(`INSERT INTO ledger_entries`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE obligations`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	alloc, _ := newTestAllocator(mock)

	res, err := alloc.RecordPayment(context.Background(), MovementParams{
		PatientID:    patientID,
		ObligationID: &targetID,
		Amount:       dec("60"),
		Method:       MethodCard,
		ActorID:      uuid.New(),
	})
	require.NoError(t, err)

	require.Len(t, res.Applied, 1)
	assert.Equal(t, targetID, res.Applied[0].ObligationID)
	assert.Equal(t, ObligationPaid, res.Applied[0].Status)
	assert.True(t, res.Overflow.IsZero())

	assert.NoError(t, mock.ExpectationsWereMet())
}
