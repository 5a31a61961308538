package crm

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crmcal/internal/model"
)

const defaultContactLimit = 20

// SearchContacts backs the contact selector. Results are not cached since
// they depend on free-text input.
func (c *Client) SearchContacts(ctx context.Context, search string, limit int) ([]model.Contact, error) {
	if limit <= 0 {
		limit = defaultContactLimit
	}
	q := url.Values{}
	if s := strings.TrimSpace(search); s != "" {
		q.Set("search", s)
	}
	q.Set("limit", strconv.Itoa(limit))
	return getList[model.Contact](ctx, c, "/contacts", q)
}

// ListServices returns bookable services, optionally only active ones.
func (c *Client) ListServices(ctx context.Context, activeOnly bool) ([]model.Service, error) {
	key := "active=" + strconv.FormatBool(activeOnly)
	if cached, ok := c.services.Get(key); ok {
		return cached, nil
	}
	q := url.Values{}
	if activeOnly {
		q.Set("active", "true")
	}
	services, err := getList[model.Service](ctx, c, "/services", q)
	if err != nil {
		return nil, err
	}
	c.services.Set(key, services)
	return services, nil
}

// ListCurrencies returns the configured currencies. They rarely change and
// are cached for the currencies TTL.
func (c *Client) ListCurrencies(ctx context.Context) ([]model.Currency, error) {
	if cached, ok := c.currencies.Get("all"); ok {
		return cached, nil
	}
	currencies, err := getList[model.Currency](ctx, c, "/currencies", nil)
	if err != nil {
		return nil, err
	}
	c.currencies.Set("all", currencies)
	return currencies, nil
}

// ListStatuses returns the appointment status vocabulary.
func (c *Client) ListStatuses(ctx context.Context) ([]model.AppointmentStatus, error) {
	if cached, ok := c.statuses.Get("all"); ok {
		return cached, nil
	}
	statuses, err := getList[model.AppointmentStatus](ctx, c, "/appointment-statuses", nil)
	if err != nil {
		return nil, err
	}
	c.statuses.Set("all", statuses)
	return statuses, nil
}

// ListProjects returns projects, optionally restricted to a contact.
func (c *Client) ListProjects(ctx context.Context, contactID string) ([]model.Project, error) {
	key := "contact=" + contactID
	if cached, ok := c.projects.Get(key); ok {
		return cached, nil
	}
	q := url.Values{}
	if contactID != "" {
		q.Set("contact_id", contactID)
	}
	projects, err := getList[model.Project](ctx, c, "/projects", q)
	if err != nil {
		return nil, err
	}
	c.projects.Set(key, projects)
	return projects, nil
}

// BillableQuery filters billable hours.
type BillableQuery struct {
	ProjectID string
	From      time.Time
	To        time.Time
	Invoiced  *bool
}

func (c *Client) ListBillableHours(ctx context.Context, bq BillableQuery) ([]model.BillableHour, error) {
	q := url.Values{}
	if bq.ProjectID != "" {
		q.Set("project_id", bq.ProjectID)
	}
	if !bq.From.IsZero() {
		q.Set("from", bq.From.Format("2006-01-02"))
	}
	if !bq.To.IsZero() {
		q.Set("to", bq.To.Format("2006-01-02"))
	}
	if bq.Invoiced != nil {
		q.Set("invoiced", strconv.FormatBool(*bq.Invoiced))
	}
	return getList[model.BillableHour](ctx, c, "/billable-hours", q)
}
