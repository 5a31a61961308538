// Package gcal reads linked Google Calendar accounts as read-only
// appointments.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"crmcal/internal/config"
	appLog "crmcal/internal/log"
	"crmcal/internal/model"
)

const pageSize = 250

// Provider lists the events of one Google calendar.
type Provider struct {
	svc        *calendar.Service
	accountID  string
	calendarID string
	loc        *time.Location
	log        appLog.Logger
}

// New creates a Provider for acc. The account's access token is used as a
// static bearer token; extra options (endpoint, HTTP client) are appended.
func New(ctx context.Context, acc config.AccountConfig, loc *time.Location, opts ...option.ClientOption) (*Provider, error) {
	if acc.Provider != config.ProviderGoogle {
		return nil, fmt.Errorf("gcal: account %q is not a google account", acc.ID)
	}
	if acc.AccessToken == "" && len(opts) == 0 {
		return nil, errors.New("gcal: access token is empty")
	}
	if loc == nil {
		loc = time.UTC
	}

	all := make([]option.ClientOption, 0, len(opts)+1)
	if acc.AccessToken != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: acc.AccessToken, TokenType: "Bearer"})
		all = append(all, option.WithTokenSource(ts))
	}
	all = append(all, opts...)

	svc, err := calendar.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("gcal: new service: %w", err)
	}

	calendarID := acc.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Provider{
		svc:        svc,
		accountID:  acc.ID,
		calendarID: calendarID,
		loc:        loc,
		log:        appLog.With("module", "gcal", "account", acc.ID),
	}, nil
}

// Events lists expanded single events overlapping [start, end].
func (p *Provider) Events(ctx context.Context, start, end time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	pageToken := ""
	for {
		call := p.svc.Events.List(p.calendarID).
			TimeMin(start.Format(time.RFC3339)).
			TimeMax(end.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			MaxResults(pageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("gcal: list %s: %w", p.calendarID, err)
		}
		for _, ev := range resp.Items {
			a, ok := toAppointment(ev, p.accountID, p.loc)
			if !ok {
				continue
			}
			out = append(out, a)
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	p.log.Debug("gcal events listed", "count", len(out))
	return out, nil
}

// toAppointment maps an expanded Google event. Instances of a recurring
// event keep the series id so they group like CRM occurrences do.
func toAppointment(ev *calendar.Event, accountID string, loc *time.Location) (model.Appointment, bool) {
	if ev == nil || ev.Status == "cancelled" || ev.Start == nil || ev.End == nil {
		return model.Appointment{}, false
	}

	a := model.Appointment{
		ID:          ev.Id,
		Title:       ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Status:      ev.Status,
		ReadOnly:    true,
		Source:      accountID,
	}
	if ev.RecurringEventId != "" {
		a.ID = ev.RecurringEventId
		a.IsRecurring = true
	}

	if ev.Start.Date != "" {
		a.AllDay = true
		a.StartDatetime = ev.Start.Date
		a.EndDatetime = ev.Start.Date
		// Google all-day ends are exclusive dates.
		if end, err := time.Parse("2006-01-02", ev.End.Date); err == nil {
			last := end.AddDate(0, 0, -1).Format("2006-01-02")
			if last > a.StartDatetime {
				a.EndDatetime = last
			}
		}
		return a, true
	}

	start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
	if err != nil {
		appLog.Warn("gcal event skipped", "id", ev.Id, "reason", err)
		return model.Appointment{}, false
	}
	end, err := time.Parse(time.RFC3339, ev.End.DateTime)
	if err != nil {
		end = start
	}
	a.StartDatetime = start.In(loc).Format(time.RFC3339)
	a.EndDatetime = end.In(loc).Format(time.RFC3339)
	return a, true
}
