package layout

import (
	"reflect"
	"testing"
	"time"

	"crmcal/internal/model"
)

func allDay(id, start, end string) model.Appointment {
	return model.Appointment{ID: id, StartDatetime: start, EndDatetime: end, AllDay: true}
}

func week(start time.Time) []time.Time {
	days := make([]time.Time, 7)
	for i := range days {
		days[i] = start.AddDate(0, 0, i)
	}
	return days
}

func spanByID(items []model.SpanningAppointment) map[string]model.SpanningAppointment {
	out := make(map[string]model.SpanningAppointment, len(items))
	for _, it := range items {
		out[it.ID] = it
	}
	return out
}

func TestPackSpanningEmpty(t *testing.T) {
	res, err := PackSpanning(nil, week(utcDay(2024, 1, 1)), SpanOptions{})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if len(res.Events) != 0 || res.LaneCount != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
	if res.Events == nil {
		t.Fatalf("events should be an empty slice, not nil")
	}
}

func TestPackSpanningTwoOverlappingBars(t *testing.T) {
	res, err := PackSpanning([]model.Appointment{
		allDay("late", "2024-01-02", "2024-01-04"),
		allDay("early", "2024-01-01", "2024-01-03"),
	}, week(utcDay(2024, 1, 1)), SpanOptions{})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if res.LaneCount != 2 {
		t.Fatalf("laneCount = %d, want 2", res.LaneCount)
	}
	m := spanByID(res.Events)
	if m["early"].Lane != 0 || m["late"].Lane != 1 {
		t.Fatalf("early lane %d, late lane %d", m["early"].Lane, m["late"].Lane)
	}
	if m["early"].StartCol != 0 || m["early"].EndCol != 2 {
		t.Fatalf("early cols %d..%d", m["early"].StartCol, m["early"].EndCol)
	}
	if m["late"].StartCol != 1 || m["late"].EndCol != 3 {
		t.Fatalf("late cols %d..%d", m["late"].StartCol, m["late"].EndCol)
	}
}

func TestPackSpanningAdjacentColumnsShareLane(t *testing.T) {
	res, err := PackSpanning([]model.Appointment{
		allDay("a", "2024-01-01", "2024-01-03"),
		allDay("b", "2024-01-04", "2024-01-06"),
	}, week(utcDay(2024, 1, 1)), SpanOptions{})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if res.LaneCount != 1 {
		t.Fatalf("laneCount = %d, want 1", res.LaneCount)
	}
}

func TestPackSpanningSharedColumnCollides(t *testing.T) {
	res, err := PackSpanning([]model.Appointment{
		allDay("a", "2024-01-01", "2024-01-03"),
		allDay("b", "2024-01-03", "2024-01-05"),
	}, week(utcDay(2024, 1, 1)), SpanOptions{})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if res.LaneCount != 2 {
		t.Fatalf("laneCount = %d, want 2 (closed ranges share column 2)", res.LaneCount)
	}
}

func TestPackSpanningWiderFirst(t *testing.T) {
	res, err := PackSpanning([]model.Appointment{
		allDay("short", "2024-01-02", "2024-01-03"),
		allDay("wide", "2024-01-01", "2024-01-06"),
	}, week(utcDay(2024, 1, 1)), SpanOptions{})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if res.Events[0].ID != "wide" || res.Events[0].Lane != 0 {
		t.Fatalf("expected wide bar first in lane 0, got %+v", res.Events[0])
	}
}

func TestPackSpanningClampsToWindow(t *testing.T) {
	res, err := PackSpanning([]model.Appointment{
		allDay("long", "2023-12-28", "2024-01-10"),
	}, week(utcDay(2024, 1, 1)), SpanOptions{})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	ev := res.Events[0]
	if ev.StartCol != 0 || ev.EndCol != 6 || !ev.ContinuesBefore || !ev.ContinuesAfter || ev.Lane != 0 {
		t.Fatalf("unexpected clamp result %+v", ev)
	}
}

func TestPackSpanningFiltersCandidates(t *testing.T) {
	appts := []model.Appointment{
		allDay("single-allday", "2024-01-02", "2024-01-02"),
		timed("single-timed", "2024-01-02T09:00:00Z", "2024-01-02T10:00:00Z"),
		timed("multi-timed", "2024-01-02T22:00:00Z", "2024-01-03T02:00:00Z"),
		timed("midnight-end", "2024-01-02T22:00:00Z", "2024-01-03T00:00:00Z"),
		allDay("outside", "2024-01-10", "2024-01-12"),
	}

	res, err := PackSpanning(appts, week(utcDay(2024, 1, 1)), SpanOptions{})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	m := spanByID(res.Events)
	if _, ok := m["single-allday"]; !ok {
		t.Errorf("single-day all-day should be packed without MultiDayOnly")
	}
	if ev, ok := m["multi-timed"]; !ok || ev.StartCol != 1 || ev.EndCol != 2 {
		t.Errorf("multi-timed missing or wrong cols: %+v", ev)
	}
	for _, id := range []string{"single-timed", "midnight-end", "outside"} {
		if _, ok := m[id]; ok {
			t.Errorf("%s should not be packed", id)
		}
	}

	res, err = PackSpanning(appts, week(utcDay(2024, 1, 1)), SpanOptions{MultiDayOnly: true})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if _, ok := spanByID(res.Events)["single-allday"]; ok {
		t.Errorf("MultiDayOnly should drop single-day all-day events")
	}
}

func TestPackSpanningNoOverlapWithinLane(t *testing.T) {
	appts := []model.Appointment{
		allDay("1", "2024-01-01", "2024-01-07"),
		allDay("2", "2024-01-01", "2024-01-02"),
		allDay("3", "2024-01-02", "2024-01-04"),
		allDay("4", "2024-01-05", "2024-01-05"),
		allDay("5", "2024-01-03", "2024-01-06"),
		allDay("6", "2024-01-06", "2024-01-07"),
	}
	days := week(utcDay(2024, 1, 1))
	res, err := PackSpanning(appts, days, SpanOptions{})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	for i := range res.Events {
		for j := i + 1; j < len(res.Events); j++ {
			a, b := res.Events[i], res.Events[j]
			disjoint := a.StartCol > b.EndCol || a.EndCol < b.StartCol
			if a.Lane == b.Lane && !disjoint {
				t.Fatalf("%s and %s share lane %d but overlap", a.ID, b.ID, a.Lane)
			}
		}
	}

	again, err := PackSpanning(appts, days, SpanOptions{})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if !reflect.DeepEqual(res, again) {
		t.Fatalf("packing is not deterministic")
	}
}

func TestPackSpanningSingleColumnBars(t *testing.T) {
	res, err := PackSpanning([]model.Appointment{
		allDay("holiday", "2024-01-02", "2024-01-02"),
		allDay("dentist", "2024-01-02", "2024-01-02"),
		allDay("birthday", "2024-01-03", "2024-01-03"),
	}, week(utcDay(2024, 1, 1)), SpanOptions{})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if res.LaneCount != 2 {
		t.Fatalf("laneCount = %d, want 2", res.LaneCount)
	}
	m := spanByID(res.Events)
	if m["holiday"].StartCol != 1 || m["holiday"].EndCol != 1 {
		t.Fatalf("holiday cols %d..%d", m["holiday"].StartCol, m["holiday"].EndCol)
	}
	if m["holiday"].Lane == m["dentist"].Lane {
		t.Fatalf("bars on the same day must not share a lane")
	}
	if m["birthday"].Lane != 0 {
		t.Fatalf("birthday lane = %d, want 0", m["birthday"].Lane)
	}
}

func TestPackSpanningClippedToOneColumn(t *testing.T) {
	days := week(utcDay(2024, 1, 1))
	res, err := PackSpanning([]model.Appointment{
		allDay("spill-in", "2023-12-30", "2024-01-01"),
		allDay("spill-out", "2024-01-07", "2024-01-09"),
	}, days, SpanOptions{MultiDayOnly: true})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	m := spanByID(res.Events)
	in, out := m["spill-in"], m["spill-out"]
	if in.StartCol != 0 || in.EndCol != 0 || !in.ContinuesBefore || in.ContinuesAfter {
		t.Fatalf("spill-in = %+v", in)
	}
	if out.StartCol != 6 || out.EndCol != 6 || out.ContinuesBefore || !out.ContinuesAfter {
		t.Fatalf("spill-out = %+v", out)
	}
	if res.LaneCount != 1 {
		t.Fatalf("laneCount = %d, want 1", res.LaneCount)
	}
}
