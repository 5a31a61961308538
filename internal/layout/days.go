package layout

import (
	"fmt"
	"strings"
	"time"

	"crmcal/internal/model"
)

// View is a calendar view granularity.
type View string

const (
	ViewDay   View = "day"
	ViewWeek  View = "week"
	ViewMonth View = "month"
)

// ParseView validates a view name.
func ParseView(s string) (View, error) {
	switch v := View(strings.ToLower(strings.TrimSpace(s))); v {
	case ViewDay, ViewWeek, ViewMonth:
		return v, nil
	default:
		return "", fmt.Errorf("unknown view %q", s)
	}
}

// ParseWeekStart maps "monday"/"sunday" to a weekday; anything else is Monday.
func ParseWeekStart(s string) time.Weekday {
	if strings.EqualFold(strings.TrimSpace(s), "sunday") {
		return time.Sunday
	}
	return time.Monday
}

// VisibleDays returns the ascending, contiguous list of days shown by view
// around anchor, each at midnight in anchor's location. Month views are padded
// to whole weeks.
func VisibleDays(view View, anchor time.Time, weekStart time.Weekday) []time.Time {
	loc := anchor.Location()
	day := DayOf(anchor, loc)

	var first, last time.Time
	switch view {
	case ViewWeek:
		first = startOfWeek(day, weekStart)
		last = first.AddDate(0, 0, 6)
	case ViewMonth:
		monthStart := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, loc)
		monthEnd := monthStart.AddDate(0, 1, -1)
		first = startOfWeek(monthStart, weekStart)
		last = startOfWeek(monthEnd, weekStart).AddDate(0, 0, 6)
	default:
		first, last = day, day
	}

	var days []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func startOfWeek(day time.Time, weekStart time.Weekday) time.Time {
	offset := (int(day.Weekday()) - int(weekStart) + 7) % 7
	return day.AddDate(0, 0, -offset)
}

// TimedForDay returns timed appointments that start and (effectively) end on
// day. Unparseable records are dropped.
func TimedForDay(appts []model.Appointment, day time.Time) []model.Appointment {
	loc := day.Location()
	day = DayOf(day, loc)
	var out []model.Appointment
	for _, a := range appts {
		if a.AllDay {
			continue
		}
		s, err := newSpan(a, loc)
		if err != nil {
			continue
		}
		if sameDay(s.startDay, day) && sameDay(s.endDay, day) {
			out = append(out, a)
		}
	}
	return out
}

// SingleDayAllDayForDay returns all-day appointments that begin and end on day.
func SingleDayAllDayForDay(appts []model.Appointment, day time.Time) []model.Appointment {
	loc := day.Location()
	day = DayOf(day, loc)
	var out []model.Appointment
	for _, a := range appts {
		if !a.AllDay {
			continue
		}
		s, err := newSpan(a, loc)
		if err != nil {
			continue
		}
		if sameDay(s.startDay, day) && sameDay(s.endDay, day) {
			out = append(out, a)
		}
	}
	return out
}
