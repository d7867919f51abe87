package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConfirmChargeParams describes the financial event fired when an
// appointment is confirmed. CatalogPrice is always the obligation's
// principal; FinalPrice only changes the payment amount recorded.
type ConfirmChargeParams struct {
	PatientID     uuid.UUID
	AppointmentID uuid.UUID
	ServiceTypeID uuid.UUID
	CatalogPrice  decimal.Decimal
	FinalPrice    *decimal.Decimal
	Method        Method
	ActorID       uuid.UUID
	OccurredAt    time.Time
}

type ConfirmChargeResult struct {
	Obligation    *Obligation
	CreditApplied decimal.Decimal
	Paid          decimal.Decimal
	Entries       []Entry
}

// ConfirmCharge creates the obligation and ledger entries for a confirmed
// appointment. It must run inside the booking engine's transaction: repo is
// already tx-scoped.
func ConfirmCharge(ctx context.Context, repo Repository, p ConfirmChargeParams) (*ConfirmChargeResult, error) {
	if !p.CatalogPrice.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if p.FinalPrice != nil && p.FinalPrice.IsNegative() {
		return nil, ErrInvalidAmount
	}

	if p.Method == MethodServiceCredit {
		return confirmWithServiceCredit(ctx, repo, p)
	}
	return confirmWithCash(ctx, repo, p)
}

func confirmWithCash(ctx context.Context, repo Repository, p ConfirmChargeParams) (*ConfirmChargeResult, error) {
	account, err := repo.GetAccountForUpdate(ctx, p.PatientID)
	if err != nil {
		return nil, err
	}

	// Stored credit is applied against the charge before anything is paid.
	creditApplied := decimal.Min(account.CreditBalance, p.CatalogPrice)

	paid := p.CatalogPrice.Sub(creditApplied)
	if p.FinalPrice != nil {
		paid = *p.FinalPrice
	}

	settled := paid.Add(creditApplied)
	appointmentID := p.AppointmentID

	ob := Obligation{
		ID:            uuid.New(),
		PatientID:     p.PatientID,
		AppointmentID: &appointmentID,
		Subtotal:      p.CatalogPrice,
		Discount:      decimal.Zero,
		Total:         p.CatalogPrice,
		Status:        DeriveStatus(p.CatalogPrice, settled),
		CreatedBy:     p.ActorID,
		CreatedAt:     p.OccurredAt,
	}
	if err := repo.InsertObligation(ctx, ob); err != nil {
		return nil, fmt.Errorf("insert obligation: %w", err)
	}

	obligationID := ob.ID
	entries := []Entry{{
		ID:           uuid.New(),
		PatientID:    p.PatientID,
		ObligationID: &obligationID,
		Kind:         KindCharge,
		Amount:       p.CatalogPrice,
		Method:       p.Method,
		CreatedBy:    p.ActorID,
		OccurredAt:   p.OccurredAt,
	}}

	if creditApplied.IsPositive() {
		note := "credit applied at confirmation"
		entries = append(entries, Entry{
			ID:           uuid.New(),
			PatientID:    p.PatientID,
			ObligationID: &obligationID,
			Kind:         KindCredit,
			Amount:       creditApplied.Neg(),
			Method:       p.Method,
			Notes:        &note,
			CreatedBy:    p.ActorID,
			OccurredAt:   p.OccurredAt,
		})
	}

	if paid.IsPositive() {
		entries = append(entries, Entry{
			ID:           uuid.New(),
			PatientID:    p.PatientID,
			ObligationID: &obligationID,
			Kind:         KindPayment,
			Amount:       paid,
			Method:       p.Method,
			CreatedBy:    p.ActorID,
			OccurredAt:   p.OccurredAt,
		})
	}

	for _, e := range entries {
		if err := repo.InsertEntry(ctx, e); err != nil {
			return nil, fmt.Errorf("insert %s entry: %w", e.Kind, err)
		}
	}

	if creditApplied.IsPositive() {
		newBalance := account.CreditBalance.Sub(creditApplied)
		if err := repo.SetCreditBalance(ctx, p.PatientID, newBalance); err != nil {
			return nil, fmt.Errorf("update credit balance: %w", err)
		}
	}

	return &ConfirmChargeResult{
		Obligation:    &ob,
		CreditApplied: creditApplied,
		Paid:          paid,
		Entries:       entries,
	}, nil
}

func confirmWithServiceCredit(ctx context.Context, repo Repository, p ConfirmChargeParams) (*ConfirmChargeResult, error) {
	sc, err := repo.FindUnconsumedServiceCredit(ctx, p.PatientID, p.ServiceTypeID)
	if err != nil {
		return nil, err
	}
	if err := repo.ConsumeServiceCredit(ctx, sc.ID, p.OccurredAt); err != nil {
		return nil, err
	}

	paid := p.CatalogPrice
	if p.FinalPrice != nil {
		paid = *p.FinalPrice
	}

	appointmentID := p.AppointmentID
	ob := Obligation{
		ID:            uuid.New(),
		PatientID:     p.PatientID,
		AppointmentID: &appointmentID,
		Subtotal:      p.CatalogPrice,
		Discount:      decimal.Zero,
		Total:         p.CatalogPrice,
		Status:        ObligationPaid,
		CreatedBy:     p.ActorID,
		CreatedAt:     p.OccurredAt,
	}
	if err := repo.InsertObligation(ctx, ob); err != nil {
		return nil, fmt.Errorf("insert obligation: %w", err)
	}

	obligationID := ob.ID
	note := fmt.Sprintf("service credit %s consumed", sc.ID)
	entries := []Entry{
		{
			ID:           uuid.New(),
			PatientID:    p.PatientID,
			ObligationID: &obligationID,
			Kind:         KindCharge,
			Amount:       p.CatalogPrice,
			Method:       MethodServiceCredit,
			CreatedBy:    p.ActorID,
			OccurredAt:   p.OccurredAt,
		},
		{
			ID:           uuid.New(),
			PatientID:    p.PatientID,
			ObligationID: &obligationID,
			Kind:         KindPayment,
			Amount:       paid,
			Method:       MethodServiceCredit,
			Notes:        &note,
			CreatedBy:    p.ActorID,
			OccurredAt:   p.OccurredAt,
		},
	}
	for _, e := range entries {
		if err := repo.InsertEntry(ctx, e); err != nil {
			return nil, fmt.Errorf("insert %s entry: %w", e.Kind, err)
		}
	}

	return &ConfirmChargeResult{
		Obligation: &ob,
		Paid:       paid,
		Entries:    entries,
	}, nil
}

// RefundCancelledAppointment emits one refund entry per settled or
// partially settled obligation on a cancelled appointment. The refund
// amount is the obligation's full total due, not the amount actually paid.
func RefundCancelledAppointment(ctx context.Context, repo Repository, appointmentID, actorID uuid.UUID, occurredAt time.Time) ([]Entry, error) {
	obligations, err := repo.ObligationsByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load obligations: %w", err)
	}

	var entries []Entry
	for _, ob := range obligations {
		if ob.Status != ObligationPaid && ob.Status != ObligationPartiallyPaid {
			continue
		}

		obligationID := ob.ID
		note := "appointment cancelled"
		entry := Entry{
			ID:           uuid.New(),
			PatientID:    ob.PatientID,
			ObligationID: &obligationID,
			Kind:         KindRefund,
			Amount:       ob.Total.Neg(),
			Method:       MethodCash,
			Notes:        &note,
			CreatedBy:    actorID,
			OccurredAt:   occurredAt,
		}
		if err := repo.InsertEntry(ctx, entry); err != nil {
			return nil, fmt.Errorf("insert refund entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
