package layout

import (
	"fmt"
	"sort"
	"time"

	"github.com/rdleal/intervalst/interval"

	"crmcal/internal/model"
)

// SpanOptions controls which appointments are packed into lanes.
type SpanOptions struct {
	// MultiDayOnly drops single-day all-day appointments. The month view
	// renders those inline in the day cell instead of as bars.
	MultiDayOnly bool
}

// SpanningResult is the lane assignment for one contiguous row of days.
type SpanningResult struct {
	Events    []model.SpanningAppointment `json:"events"`
	LaneCount int                         `json:"laneCount"`
	Skipped   []string                    `json:"skipped,omitempty"`
}

// PackSpanning assigns all-day and multi-day appointments that intersect the
// visible days to horizontal lanes. days must be ascending and contiguous;
// the location of days[0] is the display location.
//
// Column ranges are closed: two bars sharing a day column collide, while a
// bar ending on column 2 and one starting on column 3 may share a lane.
// Wider bars are packed first.
func PackSpanning(appts []model.Appointment, days []time.Time, opts SpanOptions) (SpanningResult, error) {
	result := SpanningResult{Events: []model.SpanningAppointment{}}
	if len(days) == 0 || len(appts) == 0 {
		return result, nil
	}

	loc := days[0].Location()
	first := DayOf(days[0], loc)
	last := DayOf(days[len(days)-1], loc)
	lastIndex := len(days) - 1

	index := make(map[string]int, len(days))
	for i, d := range days {
		index[DayOf(d, loc).Format(dateLayout)] = i
	}

	spans, skipped := parseSpans(appts, loc)
	result.Skipped = skipped

	events := make([]model.SpanningAppointment, 0, len(spans))
	for _, s := range spans {
		multiDay := !sameDay(s.startDay, s.endDay)
		if s.appt.AllDay {
			if opts.MultiDayOnly && !multiDay {
				continue
			}
		} else if !multiDay {
			continue
		}
		if s.startDay.After(last) || s.endDay.Before(first) {
			continue
		}

		ev := model.SpanningAppointment{
			Appointment: s.appt,
			Key:         Key(s.appt),
			StartCol:    0,
			EndCol:      lastIndex,
		}
		if s.startDay.Before(first) {
			ev.ContinuesBefore = true
		} else if i, ok := index[s.startDay.Format(dateLayout)]; ok {
			ev.StartCol = i
		}
		if s.endDay.After(last) {
			ev.ContinuesAfter = true
		} else if i, ok := index[s.endDay.Format(dateLayout)]; ok {
			ev.EndCol = i
		}
		events = append(events, ev)
	}

	sort.SliceStable(events, func(i, j int) bool {
		wi := events[i].EndCol - events[i].StartCol
		wj := events[j].EndCol - events[j].StartCol
		if wi != wj {
			return wi > wj
		}
		return events[i].StartCol < events[j].StartCol
	})

	var lanes []*interval.SearchTree[int, int]
	for i := range events {
		ev := &events[i]
		placed := false
		for l, lane := range lanes {
			if _, hit := lane.AnyIntersection(ev.StartCol, ev.EndCol); hit {
				continue
			}
			if err := lane.Insert(ev.StartCol, ev.EndCol, i); err != nil {
				return SpanningResult{}, fmt.Errorf("pack %s into lane %d: %w", ev.Key, l, err)
			}
			ev.Lane = l
			placed = true
			break
		}
		if placed {
			continue
		}
		// A one-day bar is a point interval (start == end).
		lane := interval.NewSearchTreeWithOptions[int](func(x, y int) int { return x - y }, interval.TreeWithIntervalPoint())
		if err := lane.Insert(ev.StartCol, ev.EndCol, i); err != nil {
			return SpanningResult{}, fmt.Errorf("pack %s into lane %d: %w", ev.Key, len(lanes), err)
		}
		ev.Lane = len(lanes)
		lanes = append(lanes, lane)
	}

	result.Events = events
	result.LaneCount = len(lanes)
	return result, nil
}
