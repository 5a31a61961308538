package ics

import (
	"context"
	"time"

	"crmcal/internal/model"
)

// Provider serves one linked ICS account as read-only appointments.
type Provider struct {
	fetcher *Fetcher
	src     Source
	loc     *time.Location
}

// NewProvider creates a Provider for src; timed appointments are rendered in loc.
func NewProvider(f *Fetcher, src Source, loc *time.Location) *Provider {
	return &Provider{fetcher: f, src: src, loc: loc}
}

// Events fetches, parses and expands the feed for [start, end].
func (p *Provider) Events(ctx context.Context, start, end time.Time) ([]model.Appointment, error) {
	feed, err := p.fetcher.Fetch(ctx, p.src)
	if err != nil {
		return nil, err
	}
	events, err := ParseICS(p.src, feed.Body)
	if err != nil {
		return nil, err
	}
	res, err := Expand(events, ExpandConfig{
		DisplayLocation: p.loc,
		RangeStart:      start,
		RangeEnd:        end,
	})
	if err != nil {
		return nil, err
	}
	return res.Appointments, nil
}
