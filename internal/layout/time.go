package layout

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"crmcal/internal/model"
)

// ErrInvalidTimestamp is returned when a start/end value cannot be parsed.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

const dateLayout = "2006-01-02"

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.000Z0700",
}

// ParseTimestamp parses an ISO-8601 timestamp. Offset-aware values keep their
// own offset; offset-less date-times and plain dates are interpreted in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidTimestamp)
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// EffectiveEnd maps an end instant that falls exactly on midnight to one
// millisecond earlier, so the appointment is bucketed onto the previous day.
// It must not be applied to all-day end dates.
func EffectiveEnd(end time.Time) time.Time {
	if end.Hour() == 0 && end.Minute() == 0 && end.Second() == 0 {
		return end.Add(-time.Millisecond)
	}
	return end
}

// DayOf truncates t to midnight of its calendar date in loc.
func DayOf(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// calendarDate keeps the date as written (in the value's own offset) and
// anchors it at midnight in loc. Used for all-day values.
func calendarDate(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// span is an appointment with parsed bounds in the display location.
type span struct {
	appt     model.Appointment
	start    time.Time
	end      time.Time
	startDay time.Time
	endDay   time.Time // inclusive display day
}

func newSpan(a model.Appointment, loc *time.Location) (span, error) {
	start, err := ParseTimestamp(a.StartDatetime, loc)
	if err != nil {
		return span{}, fmt.Errorf("start_datetime: %w", err)
	}
	end, err := ParseTimestamp(a.EndDatetime, loc)
	if err != nil {
		return span{}, fmt.Errorf("end_datetime: %w", err)
	}

	s := span{appt: a}
	if a.AllDay {
		s.start = calendarDate(start, loc)
		s.end = calendarDate(end, loc)
		s.startDay = s.start
		s.endDay = s.end
	} else {
		s.start = start.In(loc)
		s.end = end.In(loc)
		s.startDay = DayOf(s.start, loc)
		s.endDay = DayOf(EffectiveEnd(s.end), loc)
	}
	if s.endDay.Before(s.startDay) {
		s.endDay = s.startDay
	}
	return s, nil
}

// parseSpans parses all appointments, returning the keys of records whose
// timestamps could not be parsed.
func parseSpans(appts []model.Appointment, loc *time.Location) ([]span, []string) {
	spans := make([]span, 0, len(appts))
	var skipped []string
	for _, a := range appts {
		s, err := newSpan(a, loc)
		if err != nil {
			skipped = append(skipped, Key(a))
			continue
		}
		spans = append(spans, s)
	}
	return spans, skipped
}
