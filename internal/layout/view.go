package layout

import (
	"time"

	"crmcal/internal/model"
)

// DayCell is one day of a view row.
type DayCell struct {
	Date string `json:"date"`
	// Timed holds the day's single-day timed appointments with column layout.
	Timed []model.LaidOutAppointment `json:"timed"`
	// AllDay holds single-day all-day appointments rendered inline (month view).
	AllDay []model.Appointment `json:"allDay,omitempty"`
}

// Row is a run of consecutive days that share one spanning-lane area: the
// whole range for day/week views, one week per row for month views.
type Row struct {
	Days      []DayCell                   `json:"days"`
	Spanning  []model.SpanningAppointment `json:"spanning"`
	LaneCount int                         `json:"laneCount"`
}

// CalendarView is the complete layout for a rendered calendar view.
type CalendarView struct {
	View      View   `json:"view"`
	Anchor    string `json:"anchor"`
	Start     string `json:"start"`
	End       string `json:"end"`
	TimeZone  string `json:"timezone"`
	WeekStart string `json:"weekStart"`
	Rows      []Row  `json:"rows"`
	// Skipped lists keys of appointments dropped for unparseable timestamps.
	Skipped []string `json:"skipped,omitempty"`
}

// BuildView lays out appts for view around anchor. The anchor's location is
// the display location.
func BuildView(view View, anchor time.Time, weekStart time.Weekday, appts []model.Appointment) (CalendarView, error) {
	loc := anchor.Location()
	days := VisibleDays(view, anchor, weekStart)

	cv := CalendarView{
		View:      view,
		Anchor:    DayOf(anchor, loc).Format(dateLayout),
		Start:     days[0].Format(dateLayout),
		End:       days[len(days)-1].Format(dateLayout),
		TimeZone:  loc.String(),
		WeekStart: weekStart.String(),
	}

	valid := make([]model.Appointment, 0, len(appts))
	for _, a := range appts {
		if _, err := newSpan(a, loc); err != nil {
			cv.Skipped = append(cv.Skipped, Key(a))
			continue
		}
		valid = append(valid, a)
	}

	rowSize := len(days)
	opts := SpanOptions{}
	if view == ViewMonth {
		rowSize = 7
		opts.MultiDayOnly = true
	}

	for i := 0; i < len(days); i += rowSize {
		end := min(i+rowSize, len(days))
		rowDays := days[i:end]

		packed, err := PackSpanning(valid, rowDays, opts)
		if err != nil {
			return CalendarView{}, err
		}
		row := Row{
			Spanning:  packed.Events,
			LaneCount: packed.LaneCount,
			Days:      make([]DayCell, 0, len(rowDays)),
		}
		for _, d := range rowDays {
			timed, _ := LayoutDay(TimedForDay(valid, d), d)
			cell := DayCell{
				Date:  d.Format(dateLayout),
				Timed: timed,
			}
			if view == ViewMonth {
				cell.AllDay = SingleDayAllDayForDay(valid, d)
			}
			row.Days = append(row.Days, cell)
		}
		cv.Rows = append(cv.Rows, row)
	}

	return cv, nil
}

// Range returns the first visible day and the instant right after the last
// visible day, suitable as a fetch window.
func Range(view View, anchor time.Time, weekStart time.Weekday) (time.Time, time.Time) {
	days := VisibleDays(view, anchor, weekStart)
	return days[0], days[len(days)-1].AddDate(0, 0, 1)
}
