package gcal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"crmcal/internal/config"
)

func TestToAppointment(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	tests := []struct {
		name      string
		ev        *calendar.Event
		ok        bool
		id        string
		start     string
		end       string
		allDay    bool
		recurring bool
	}{
		{
			name: "timed rendered in display zone",
			ev: &calendar.Event{Id: "e1", Status: "confirmed",
				Start: &calendar.EventDateTime{DateTime: "2024-01-01T09:00:00Z"},
				End:   &calendar.EventDateTime{DateTime: "2024-01-01T10:00:00Z"}},
			ok: true, id: "e1", start: "2024-01-01T10:00:00+01:00", end: "2024-01-01T11:00:00+01:00",
		},
		{
			name: "all-day end made inclusive",
			ev: &calendar.Event{Id: "e2",
				Start: &calendar.EventDateTime{Date: "2024-01-03"},
				End:   &calendar.EventDateTime{Date: "2024-01-05"}},
			ok: true, id: "e2", start: "2024-01-03", end: "2024-01-04", allDay: true,
		},
		{
			name: "single all-day",
			ev: &calendar.Event{Id: "e3",
				Start: &calendar.EventDateTime{Date: "2024-01-03"},
				End:   &calendar.EventDateTime{Date: "2024-01-04"}},
			ok: true, id: "e3", start: "2024-01-03", end: "2024-01-03", allDay: true,
		},
		{
			name: "instance keeps series id",
			ev: &calendar.Event{Id: "s_20240108", RecurringEventId: "s",
				Start: &calendar.EventDateTime{DateTime: "2024-01-08T09:00:00Z"},
				End:   &calendar.EventDateTime{DateTime: "2024-01-08T09:30:00Z"}},
			ok: true, id: "s", start: "2024-01-08T10:00:00+01:00", end: "2024-01-08T10:30:00+01:00", recurring: true,
		},
		{
			name: "cancelled dropped",
			ev: &calendar.Event{Id: "x", Status: "cancelled",
				Start: &calendar.EventDateTime{DateTime: "2024-01-08T09:00:00Z"},
				End:   &calendar.EventDateTime{DateTime: "2024-01-08T09:30:00Z"}},
		},
		{
			name: "bad start dropped",
			ev: &calendar.Event{Id: "y",
				Start: &calendar.EventDateTime{DateTime: "tomorrow"},
				End:   &calendar.EventDateTime{DateTime: "tomorrow"}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, ok := toAppointment(tc.ev, "acc", berlin)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if !ok {
				return
			}
			if a.ID != tc.id || a.StartDatetime != tc.start || a.EndDatetime != tc.end {
				t.Fatalf("got %s %s..%s, want %s %s..%s", a.ID, a.StartDatetime, a.EndDatetime, tc.id, tc.start, tc.end)
			}
			if a.AllDay != tc.allDay || a.IsRecurring != tc.recurring {
				t.Fatalf("flags allDay=%v recurring=%v", a.AllDay, a.IsRecurring)
			}
			if !a.ReadOnly || a.Source != "acc" {
				t.Fatalf("linked appointments are read-only and tagged with the account")
			}
		})
	}
}

func TestEventsFollowsPages(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/calendars/team@example.com/events") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("singleEvents") != "true" || q.Get("orderBy") != "startTime" {
			t.Errorf("expected expanded, ordered events: %s", r.URL.RawQuery)
		}
		pages = append(pages, q.Get("pageToken"))

		resp := calendar.Events{}
		if q.Get("pageToken") == "" {
			resp.NextPageToken = "p2"
			resp.Items = []*calendar.Event{{Id: "a",
				Start: &calendar.EventDateTime{DateTime: "2024-01-01T09:00:00Z"},
				End:   &calendar.EventDateTime{DateTime: "2024-01-01T10:00:00Z"}}}
		} else {
			resp.Items = []*calendar.Event{{Id: "b",
				Start: &calendar.EventDateTime{Date: "2024-01-02"},
				End:   &calendar.EventDateTime{Date: "2024-01-03"}}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(&resp)
	}))
	defer srv.Close()

	acc := config.AccountConfig{ID: "acc", Provider: config.ProviderGoogle, CalendarID: "team@example.com"}
	p, err := New(context.Background(), acc, time.UTC,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	appts, err := p.Events(context.Background(), start, start.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(appts) != 2 || appts[0].ID != "a" || appts[1].ID != "b" {
		t.Fatalf("unexpected appointments %+v", appts)
	}
	if len(pages) != 2 || pages[1] != "p2" {
		t.Fatalf("pages requested = %v", pages)
	}
}

func TestNewRejectsNonGoogleAccount(t *testing.T) {
	_, err := New(context.Background(), config.AccountConfig{ID: "x", Provider: config.ProviderICS}, nil)
	if err == nil {
		t.Fatalf("expected an error for an ics account")
	}
}
