package reminder

import (
	"time"

	"github.com/google/uuid"
)

// dayBeforeHour is the local hour at which day-before reminders fire.
const dayBeforeHour = 15

// Generate derives the candidate reminders for a confirmed appointment: a
// day-before reminder at 15:00 local time on the prior calendar day and one
// exactly two hours before start. A candidate is dropped when its due time
// has already passed at confirmation time. Pure: persistence and delivery
// are the caller's problem.
func Generate(appointmentID uuid.UUID, startAt, now time.Time, loc *time.Location) []Reminder {
	if loc == nil {
		loc = time.UTC
	}

	localStart := startAt.In(loc)
	prior := localStart.AddDate(0, 0, -1)
	dayBefore := time.Date(prior.Year(), prior.Month(), prior.Day(), dayBeforeHour, 0, 0, 0, loc)

	candidates := []Reminder{
		{Kind: KindDayBefore, DueAt: dayBefore.UTC()},
		{Kind: KindTwoHoursBefore, DueAt: startAt.Add(-2 * time.Hour).UTC()},
	}

	var out []Reminder
	for _, c := range candidates {
		if !c.DueAt.After(now) {
			continue
		}
		c.ID = uuid.New()
		c.AppointmentID = appointmentID
		c.Status = StatusPending
		c.CreatedAt = now.UTC()
		out = append(out, c)
	}
	return out
}
