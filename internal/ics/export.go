package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"crmcal/internal/layout"
	appLog "crmcal/internal/log"
	"crmcal/internal/model"
)

const productID = "-//crmcal//calendar export//EN"

// propertyRRule keeps the series rule on exported occurrences. Occurrences
// are already expanded, so a real RRULE would duplicate them in clients.
const propertyRRule = "X-CRMCAL-RRULE"

// Export renders appointments as a VCALENDAR with one VEVENT per occurrence.
// Appointments with unparseable timestamps are left out and logged.
func Export(appts []model.Appointment, name string, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	stamp := time.Now().UTC()
	for _, a := range appts {
		start, err := layout.ParseTimestamp(a.StartDatetime, loc)
		if err != nil {
			appLog.Warn("ics export skipped", "key", layout.Key(a), "reason", err)
			continue
		}
		end, err := layout.ParseTimestamp(a.EndDatetime, loc)
		if err != nil {
			appLog.Warn("ics export skipped", "key", layout.Key(a), "reason", err)
			continue
		}

		ev := cal.AddEvent(layout.Key(a))
		ev.SetDtStampTime(stamp)
		if a.AllDay {
			ev.SetAllDayStartAt(start)
			// Appointment ends are inclusive dates, DTEND is exclusive.
			ev.SetAllDayEndAt(end.AddDate(0, 0, 1))
		} else {
			ev.SetStartAt(start)
			ev.SetEndAt(end)
		}
		ev.SetSummary(a.Title)
		if a.Description != "" {
			ev.SetDescription(a.Description)
		}
		if a.Location != "" {
			ev.SetLocation(a.Location)
		}
		if s := icsStatus(a.Status); s != "" {
			ev.SetProperty(ical.ComponentPropertyStatus, s)
		}
		if a.RecurrenceRule != "" {
			ev.SetProperty(propertyRRule, strings.TrimPrefix(a.RecurrenceRule, "RRULE:"))
		}
	}
	return cal.Serialize()
}

// icsStatus maps CRM statuses onto the VEVENT STATUS values.
func icsStatus(status string) string {
	switch strings.ToLower(status) {
	case "confirmed", "completed":
		return "CONFIRMED"
	case "cancelled", "canceled":
		return "CANCELLED"
	case "pending", "tentative", "scheduled":
		return "TENTATIVE"
	default:
		return ""
	}
}
