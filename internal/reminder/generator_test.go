package reminder

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateBothReminders(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// Appointment on March 12 at 11:00 Berlin time, confirmed two days out.
	start := time.Date(2026, 3, 12, 11, 0, 0, 0, loc)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, loc)
	apptID := uuid.New()

	reminders := Generate(apptID, start, now, loc)
	require.Len(t, reminders, 2)

	byKind := map[Kind]Reminder{}
	for _, r := range reminders {
		assert.Equal(t, apptID, r.AppointmentID)
		assert.Equal(t, StatusPending, r.Status)
		byKind[r.Kind] = r
	}

	dayBefore := byKind[KindDayBefore]
	wantDayBefore := time.Date(2026, 3, 11, 15, 0, 0, 0, loc)
	assert.True(t, dayBefore.DueAt.Equal(wantDayBefore), "got %s want %s", dayBefore.DueAt, wantDayBefore)

	twoHours := byKind[KindTwoHoursBefore]
	assert.True(t, twoHours.DueAt.Equal(start.Add(-2*time.Hour)))
}

func TestGenerateDropsPastDayBefore(t *testing.T) {
	loc := time.UTC
	// Confirmed the evening before, after the 15:00 cutoff.
	start := time.Date(2026, 3, 12, 11, 0, 0, 0, loc)
	now := time.Date(2026, 3, 11, 18, 0, 0, 0, loc)

	reminders := Generate(uuid.New(), start, now, loc)
	require.Len(t, reminders, 1)
	assert.Equal(t, KindTwoHoursBefore, reminders[0].Kind)
}

func TestGenerateDropsEverythingForImminentStart(t *testing.T) {
	loc := time.UTC
	start := time.Date(2026, 3, 12, 11, 0, 0, 0, loc)
	now := start.Add(-30 * time.Minute)

	reminders := Generate(uuid.New(), start, now, loc)
	assert.Empty(t, reminders)
}

func TestGenerateNilLocationFallsBackToUTC(t *testing.T) {
	start := time.Date(2026, 3, 12, 11, 0, 0, 0, time.UTC)
	now := start.AddDate(0, 0, -5)

	reminders := Generate(uuid.New(), start, now, nil)
	require.Len(t, reminders, 2)
}

func TestGenerateDueTimesAreUTC(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	start := time.Date(2026, 7, 1, 10, 0, 0, 0, loc)
	now := start.AddDate(0, 0, -3)

	for _, r := range Generate(uuid.New(), start, now, loc) {
		assert.Equal(t, time.UTC, r.DueAt.Location())
	}
}
