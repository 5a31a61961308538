package layout

import (
	"sort"
	"time"

	"crmcal/internal/model"
)

const minutesPerDay = 24 * 60

// LayoutDay assigns a column and a total column count to every timed
// appointment of a single day so overlapping appointments can be rendered
// side by side. day is any instant on the target day; its location is the
// display location.
//
// Intervals are half-open: an appointment ending at 10:00 does not overlap one
// starting at 10:00 and both may share a column. Parts of an appointment that
// fall outside day are clipped to [0, 1440].
//
// The second return value lists the keys of appointments whose timestamps
// could not be parsed; they are left out of the layout.
func LayoutDay(appts []model.Appointment, day time.Time) ([]model.LaidOutAppointment, []string) {
	if len(appts) == 0 {
		return []model.LaidOutAppointment{}, nil
	}

	loc := day.Location()
	day = DayOf(day, loc)
	spans, skipped := parseSpans(appts, loc)

	items := make([]model.LaidOutAppointment, 0, len(spans))
	for _, s := range spans {
		items = append(items, model.LaidOutAppointment{
			Appointment: s.appt,
			Key:         Key(s.appt),
			StartTime:   startMinutes(s, day),
			EndTime:     endMinutes(s, day),
		})
	}

	// Earliest first; on equal start the longer appointment takes the left column.
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].StartTime != items[j].StartTime {
			return items[i].StartTime < items[j].StartTime
		}
		return duration(items[i]) > duration(items[j])
	})

	var columns [][]int
	for i := range items {
		placed := false
		for c, members := range columns {
			if fitsColumn(items, members, i) {
				columns[c] = append(columns[c], i)
				items[i].Column = c
				placed = true
				break
			}
		}
		if !placed {
			items[i].Column = len(columns)
			columns = append(columns, []int{i})
		}
	}

	for i := range items {
		maxCol := items[i].Column
		for j := range items {
			if i != j && overlaps(items[i], items[j]) && items[j].Column > maxCol {
				maxCol = items[j].Column
			}
		}
		items[i].TotalColumns = maxCol + 1
	}

	return items, skipped
}

func startMinutes(s span, day time.Time) int {
	if s.start.Before(day) {
		return 0
	}
	return s.start.Hour()*60 + s.start.Minute()
}

func endMinutes(s span, day time.Time) int {
	if !s.end.Before(day.AddDate(0, 0, 1)) {
		return minutesPerDay
	}
	if s.end.Before(day) {
		return 0
	}
	m := s.end.Hour()*60 + s.end.Minute()
	if m == 0 {
		return minutesPerDay
	}
	return m
}

func duration(a model.LaidOutAppointment) int {
	return a.EndTime - a.StartTime
}

func overlaps(a, b model.LaidOutAppointment) bool {
	return a.StartTime < b.EndTime && a.EndTime > b.StartTime
}

func fitsColumn(items []model.LaidOutAppointment, members []int, i int) bool {
	for _, m := range members {
		if overlaps(items[m], items[i]) {
			return false
		}
	}
	return true
}
