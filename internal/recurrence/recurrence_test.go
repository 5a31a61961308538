package recurrence

import (
	"errors"
	"net/url"
	"reflect"
	"testing"
	"time"

	"crmcal/internal/model"
)

func TestOptions(t *testing.T) {
	series := []model.Appointment{
		{ID: "abc", StartDatetime: "2024-01-01T09:00:00Z"},
		{ID: "abc", StartDatetime: "2024-01-08T09:00:00Z"},
		{ID: "one", StartDatetime: "2024-01-02T09:00:00Z"},
	}
	want := []Scope{ScopeThis, ScopeThisAndFuture, ScopeAll}
	if got := Options(series, series[1]); !reflect.DeepEqual(got, want) {
		t.Fatalf("Options(recurring) = %v", got)
	}
	if got := Options(series, series[2]); got != nil {
		t.Fatalf("Options(single) = %v, want nil", got)
	}
	flagged := model.Appointment{ID: "solo", StartDatetime: "2024-01-03T09:00:00Z", IsRecurring: true}
	if got := Options(nil, flagged); !reflect.DeepEqual(got, want) {
		t.Fatalf("Options(flagged) = %v", got)
	}
}

func TestResolveOccurrenceDate(t *testing.T) {
	clicked := model.Appointment{ID: "abc", StartDatetime: "2024-01-08T09:00:00Z"}

	for _, scope := range []Scope{ScopeThis, ScopeThisAndFuture} {
		m, err := Resolve(clicked, scope)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", scope, err)
		}
		if m.OccurrenceDate != clicked.StartDatetime {
			t.Fatalf("Resolve(%s).OccurrenceDate = %q", scope, m.OccurrenceDate)
		}
		q := url.Values{}
		m.Apply(q)
		if q.Get("scope") != string(scope) || q.Get("occurrence_date") != clicked.StartDatetime {
			t.Fatalf("query = %v", q)
		}
	}

	m, err := Resolve(clicked, ScopeAll)
	if err != nil {
		t.Fatalf("Resolve(all): %v", err)
	}
	if m.OccurrenceDate != "" {
		t.Fatalf("scope all must not carry occurrence_date, got %q", m.OccurrenceDate)
	}
	q := url.Values{}
	m.Apply(q)
	if _, ok := q["occurrence_date"]; ok {
		t.Fatalf("occurrence_date must be absent for scope all: %v", q)
	}
}

func TestResolveErrors(t *testing.T) {
	if _, err := Resolve(model.Appointment{ID: "x"}, ScopeThis); !errors.Is(err, ErrMissingOccurrence) {
		t.Fatalf("expected ErrMissingOccurrence, got %v", err)
	}
	if _, err := Resolve(model.Appointment{ID: "x", StartDatetime: "2024-01-01T00:00:00Z"}, "some"); !errors.Is(err, ErrInvalidScope) {
		t.Fatalf("expected ErrInvalidScope, got %v", err)
	}
	if err := (Mutation{Scope: ScopeThisAndFuture}).Validate(); !errors.Is(err, ErrMissingOccurrence) {
		t.Fatalf("Validate: %v", err)
	}
	if err := (Mutation{Scope: ScopeAll, OccurrenceDate: "2024-01-01"}).Validate(); !errors.Is(err, ErrInvalidScope) {
		t.Fatalf("Validate: %v", err)
	}
}

func TestParseScope(t *testing.T) {
	if s, err := ParseScope(""); err != nil || s != ScopeAll {
		t.Fatalf("ParseScope(\"\") = %v, %v", s, err)
	}
	if _, err := ParseScope("everything"); !errors.Is(err, ErrInvalidScope) {
		t.Fatalf("expected ErrInvalidScope, got %v", err)
	}
}

func TestRuleRRuleAndPreview(t *testing.T) {
	dtstart := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) // Monday
	r := Rule{Frequency: Weekly, Weekdays: []string{"MO", "WE"}, Count: 4}

	s, err := r.RRule(dtstart)
	if err != nil {
		t.Fatalf("RRule: %v", err)
	}
	back, err := ParseRule("RRULE:" + s)
	if err != nil {
		t.Fatalf("ParseRule(%q): %v", s, err)
	}
	if back.Frequency != Weekly || back.Count != 4 || !reflect.DeepEqual(back.Weekdays, []string{"MO", "WE"}) {
		t.Fatalf("ParseRule(%q) = %+v", s, back)
	}

	occ, err := r.Preview(dtstart, 10)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	want := []time.Time{
		dtstart,
		dtstart.AddDate(0, 0, 2),
		dtstart.AddDate(0, 0, 7),
		dtstart.AddDate(0, 0, 9),
	}
	if len(occ) != len(want) {
		t.Fatalf("Preview returned %d occurrences: %v", len(occ), occ)
	}
	for i := range want {
		if !occ[i].Equal(want[i]) {
			t.Fatalf("occurrence %d = %v, want %v", i, occ[i], want[i])
		}
	}
}

func TestRuleUntilIsInclusive(t *testing.T) {
	dtstart := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	occ, err := Rule{Frequency: Daily, Until: "2024-01-03"}.Preview(dtstart, 10)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(occ) != 3 {
		t.Fatalf("expected 3 daily occurrences through Jan 3, got %v", occ)
	}
}

func TestRuleValidate(t *testing.T) {
	cases := []Rule{
		{Frequency: "hourly"},
		{Frequency: Daily, Count: 3, Until: "2024-01-10"},
		{Frequency: Weekly, Weekdays: []string{"XX"}},
		{Frequency: Monthly, MonthDay: 40},
		{Frequency: Daily, Until: "10/01/2024"},
	}
	for _, r := range cases {
		if err := r.Validate(); !errors.Is(err, ErrInvalidRule) {
			t.Errorf("Validate(%+v) = %v, want ErrInvalidRule", r, err)
		}
	}
}

func TestRuleDescribe(t *testing.T) {
	cases := map[string]Rule{
		"Every day":                          {Frequency: Daily},
		"Every 2 weeks on Mon, Wed, 5 times": {Frequency: Weekly, Interval: 2, Weekdays: []string{"MO", "WE"}, Count: 5},
		"Every month on day 15, until 2024-12-31": {Frequency: Monthly, MonthDay: 15, Until: "2024-12-31"},
	}
	for want, r := range cases {
		if got := r.Describe(); got != want {
			t.Errorf("Describe(%+v) = %q, want %q", r, got, want)
		}
	}
}
