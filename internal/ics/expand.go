package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "crmcal/internal/log"
	"crmcal/internal/model"
)

const defaultMaxOccurrences = 5000

// ExpandConfig controls recurrence expansion of feed events.
type ExpandConfig struct {
	// DisplayLocation is the zone timed occurrences are rendered in.
	// If nil, time.UTC is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd bound the occurrences (inclusive).
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrences caps the instances produced per series.
	MaxOccurrences int
}

// ExpandResult holds the materialized appointments of a feed.
type ExpandResult struct {
	Appointments []model.Appointment
	// Truncated lists UIDs that hit MaxOccurrences.
	Truncated []string
}

// Expand materializes the events of a feed into read-only appointments for
// the configured range. Recurring series (RRULE + EXDATE) produce one
// appointment per occurrence sharing the series UID as ID, with
// RECURRENCE-ID overrides replacing the matching instance. Cancelled
// instances are dropped.
func Expand(events []VEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("ics: range end before range start")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.UTC
	}
	if cfg.MaxOccurrences <= 0 {
		cfg.MaxOccurrences = defaultMaxOccurrences
	}

	bases := make(map[string][]VEvent)
	overrides := make(map[string][]VEvent)
	var uids []string
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		if _, seen := bases[ev.UID]; !seen {
			uids = append(uids, ev.UID)
		}
		bases[ev.UID] = append(bases[ev.UID], ev)
	}

	out := make([]model.Appointment, 0, len(events))
	for _, uid := range uids {
		truncated := false
		for _, ev := range bases[uid] {
			var appts []model.Appointment
			if ev.RRule == "" {
				appts = expandSingle(ev, overrides[uid], cfg)
			} else {
				var hitCap bool
				appts, hitCap = expandSeries(ev, overrides[uid], cfg)
				truncated = truncated || hitCap
			}
			out = append(out, appts...)
		}
		if truncated {
			result.Truncated = append(result.Truncated, uid)
			appLog.Warn("ics occurrences truncated", "uid", uid, "cap", cfg.MaxOccurrences)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartDatetime < out[j].StartDatetime
	})
	result.Appointments = out
	return result, nil
}

func expandSingle(ev VEvent, overrides []VEvent, cfg ExpandConfig) []model.Appointment {
	if !overlapsRange(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	inst := ev
	if o, ok := findOverride(overrides, ev.Start); ok {
		inst = o
	}
	if inst.Status == "cancelled" {
		return nil
	}
	return []model.Appointment{toAppointment(ev, inst, inst.Start, inst.End, cfg.DisplayLocation)}
}

func expandSeries(ev VEvent, overrides []VEvent, cfg ExpandConfig) ([]model.Appointment, bool) {
	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		appLog.Error("ics rrule parse failed", err, "uid", ev.UID, "rrule", ev.RRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the window by the event length so instances that started before
	// RangeStart but are still running are included.
	length := ev.End.Sub(ev.Start)
	from := cfg.RangeStart.Add(-length).In(ev.Start.Location())
	to := cfg.RangeEnd.In(ev.Start.Location())
	starts := set.Between(from, to, true)

	hitCap := false
	if len(starts) > cfg.MaxOccurrences {
		starts = starts[:cfg.MaxOccurrences]
		hitCap = true
	}

	days := 0
	if ev.AllDay {
		days = max(daysBetween(ev.Start, ev.End), 1)
	}

	out := make([]model.Appointment, 0, len(starts))
	for _, s := range starts {
		var e time.Time
		if ev.AllDay {
			s = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, s.Location())
			e = s.AddDate(0, 0, days)
		} else {
			e = s.Add(length)
		}

		inst := ev
		if o, ok := findOverride(overrides, s); ok {
			inst = o
			s, e = o.Start, o.End
		}
		if inst.Status == "cancelled" {
			continue
		}
		out = append(out, toAppointment(ev, inst, s, e, cfg.DisplayLocation))
	}
	return out, hitCap
}

// findOverride returns the override whose RECURRENCE-ID equals start.
func findOverride(overrides []VEvent, start time.Time) (VEvent, bool) {
	for _, o := range overrides {
		if o.Recurrence != nil && o.Recurrence.Equal(start) {
			return o, true
		}
	}
	return VEvent{}, false
}

// toAppointment renders one instance. series provides identity and the
// recurrence rule; inst provides the (possibly overridden) content.
func toAppointment(series, inst VEvent, start, end time.Time, loc *time.Location) model.Appointment {
	a := model.Appointment{
		ID:             series.UID,
		AllDay:         series.AllDay,
		Title:          inst.Summary,
		Description:    inst.Description,
		Location:       inst.Location,
		Status:         inst.Status,
		ReadOnly:       true,
		IsRecurring:    series.RRule != "",
		RecurrenceRule: series.RRule,
		Source:         series.Source.ID,
	}
	if series.AllDay {
		// ICS date ranges are end-exclusive; appointments use an inclusive end.
		last := end.AddDate(0, 0, -1)
		if !last.After(start) {
			last = start
		}
		a.StartDatetime = start.Format("2006-01-02")
		a.EndDatetime = last.Format("2006-01-02")
		return a
	}
	a.StartDatetime = start.In(loc).Format(time.RFC3339)
	a.EndDatetime = end.In(loc).Format(time.RFC3339)
	return a
}

func daysBetween(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours() / 24)
}

func overlapsRange(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
