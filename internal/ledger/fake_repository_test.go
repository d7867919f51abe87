package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// fakeRepo is an in-memory Repository for exercising the confirmation and
// refund flows without a database.
type fakeRepo struct {
	accounts       map[uuid.UUID]*PatientAccount
	obligations    map[uuid.UUID]*Obligation
	entries        []Entry
	serviceCredits map[uuid.UUID]*ServiceCredit
	serviceTypes   map[uuid.UUID]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		accounts:       make(map[uuid.UUID]*PatientAccount),
		obligations:    make(map[uuid.UUID]*Obligation),
		serviceCredits: make(map[uuid.UUID]*ServiceCredit),
		serviceTypes:   make(map[uuid.UUID]bool),
	}
}

func (f *fakeRepo) addPatient(balance decimal.Decimal) uuid.UUID {
	id := uuid.New()
	f.accounts[id] = &PatientAccount{ID: id, CreditBalance: balance}
	return id
}

func (f *fakeRepo) GetAccountForUpdate(_ context.Context, patientID uuid.UUID) (*PatientAccount, error) {
	a, ok := f.accounts[patientID]
	if !ok {
		return nil, ErrPatientNotFound
	}
	copied := *a
	return &copied, nil
}

func (f *fakeRepo) SetCreditBalance(_ context.Context, patientID uuid.UUID, balance decimal.Decimal) error {
	a, ok := f.accounts[patientID]
	if !ok {
		return ErrPatientNotFound
	}
	a.CreditBalance = balance
	return nil
}

func (f *fakeRepo) InsertObligation(_ context.Context, ob Obligation) error {
	copied := ob
	f.obligations[ob.ID] = &copied
	return nil
}

func (f *fakeRepo) GetObligationForUpdate(_ context.Context, id uuid.UUID) (*Obligation, error) {
	ob, ok := f.obligations[id]
	if !ok {
		return nil, ErrObligationNotFound
	}
	copied := *ob
	return &copied, nil
}

func (f *fakeRepo) UpdateObligationStatus(_ context.Context, id uuid.UUID, status ObligationStatus) error {
	ob, ok := f.obligations[id]
	if !ok {
		return ErrObligationNotFound
	}
	ob.Status = status
	return nil
}

func (f *fakeRepo) SettledAmount(_ context.Context, obligationID uuid.UUID) (decimal.Decimal, error) {
	settled := decimal.Zero
	for _, e := range f.entries {
		if e.ObligationID == nil || *e.ObligationID != obligationID {
			continue
		}
		switch {
		case e.Kind == KindPayment:
			settled = settled.Add(e.Amount)
		case e.Kind == KindWaive:
			settled = settled.Add(e.Amount.Abs())
		case e.Kind == KindCredit && e.Amount.IsNegative():
			settled = settled.Sub(e.Amount)
		}
	}
	return settled, nil
}

func (f *fakeRepo) ListOpenObligationBalances(ctx context.Context, patientID uuid.UUID, exclude *uuid.UUID) ([]ObligationBalance, error) {
	var open []*Obligation
	for _, ob := range f.obligations {
		if ob.PatientID != patientID {
			continue
		}
		if exclude != nil && ob.ID == *exclude {
			continue
		}
		if ob.Status != ObligationPending && ob.Status != ObligationPartiallyPaid {
			continue
		}
		open = append(open, ob)
	}
	sort.Slice(open, func(i, j int) bool { return open[i].CreatedAt.Before(open[j].CreatedAt) })

	result := make([]ObligationBalance, 0, len(open))
	for _, ob := range open {
		settled, _ := f.SettledAmount(ctx, ob.ID)
		result = append(result, ObligationBalance{ID: ob.ID, Total: ob.Total, Settled: settled})
	}
	return result, nil
}

func (f *fakeRepo) ObligationsByAppointment(_ context.Context, appointmentID uuid.UUID) ([]Obligation, error) {
	var result []Obligation
	for _, ob := range f.obligations {
		if ob.AppointmentID != nil && *ob.AppointmentID == appointmentID {
			result = append(result, *ob)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (f *fakeRepo) InsertEntry(_ context.Context, e Entry) error {
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeRepo) ListEntriesByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Entry, error) {
	var result []Entry
	for _, e := range f.entries {
		if e.PatientID == patientID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (f *fakeRepo) ListEntriesByObligation(_ context.Context, obligationID uuid.UUID) ([]Entry, error) {
	var result []Entry
	for _, e := range f.entries {
		if e.ObligationID != nil && *e.ObligationID == obligationID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (f *fakeRepo) ServiceTypeExists(_ context.Context, id uuid.UUID) (bool, error) {
	return f.serviceTypes[id], nil
}

func (f *fakeRepo) FindUnconsumedServiceCredit(_ context.Context, patientID, serviceTypeID uuid.UUID) (*ServiceCredit, error) {
	var candidates []*ServiceCredit
	for _, sc := range f.serviceCredits {
		if sc.PatientID == patientID && sc.ServiceTypeID == serviceTypeID && sc.ConsumedAt == nil {
			candidates = append(candidates, sc)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrInsufficientCredit
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.Before(candidates[j].CreatedAt) })
	copied := *candidates[0]
	return &copied, nil
}

func (f *fakeRepo) ConsumeServiceCredit(_ context.Context, id uuid.UUID, at time.Time) error {
	sc, ok := f.serviceCredits[id]
	if !ok || sc.ConsumedAt != nil {
		return ErrInsufficientCredit
	}
	sc.ConsumedAt = &at
	return nil
}

func (f *fakeRepo) InsertServiceCredits(_ context.Context, credits []ServiceCredit) error {
	for _, sc := range credits {
		copied := sc
		f.serviceCredits[sc.ID] = &copied
	}
	return nil
}

// creditEntrySum is the signed sum of credit-kind entries for a patient,
// used to assert the cached balance never drifts from the log.
func (f *fakeRepo) creditEntrySum(patientID uuid.UUID) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range f.entries {
		if e.PatientID == patientID && e.Kind == KindCredit {
			sum = sum.Add(e.Amount)
		}
	}
	return sum
}
