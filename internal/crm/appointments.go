package crm

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"time"

	"crmcal/internal/model"
	"crmcal/internal/recurrence"
)

// AppointmentQuery selects the appointments of a visible range.
type AppointmentQuery struct {
	Start time.Time
	End   time.Time

	// Optional overrides of the client-wide API flags.
	IncludeFinancialDetails *bool
	PreserveCurrencies      *bool
	ContactID               string
}

// AppointmentInput is the payload for creating an appointment.
type AppointmentInput struct {
	Title           string  `json:"title"`
	StartDatetime   string  `json:"start_datetime"`
	EndDatetime     string  `json:"end_datetime"`
	AllDay          bool    `json:"all_day"`
	Location        string  `json:"location,omitempty"`
	Description     string  `json:"description,omitempty"`
	Status          string  `json:"status,omitempty"`
	AppointmentType string  `json:"appointment_type,omitempty"`
	ContactID       string  `json:"contact_id,omitempty"`
	ServiceID       string  `json:"service_id,omitempty"`
	ProjectID       string  `json:"project_id,omitempty"`
	RecurrenceRule  string  `json:"recurrence_rule,omitempty"`
	Price           float64 `json:"price,omitempty"`
	Currency        string  `json:"currency,omitempty"`
}

// AppointmentChanges is a partial update; nil fields are left untouched.
type AppointmentChanges struct {
	Title           *string `json:"title,omitempty"`
	StartDatetime   *string `json:"start_datetime,omitempty"`
	EndDatetime     *string `json:"end_datetime,omitempty"`
	AllDay          *bool   `json:"all_day,omitempty"`
	Location        *string `json:"location,omitempty"`
	Description     *string `json:"description,omitempty"`
	Status          *string `json:"status,omitempty"`
	AppointmentType *string `json:"appointment_type,omitempty"`
	ContactID       *string `json:"contact_id,omitempty"`
	RecurrenceRule  *string `json:"recurrence_rule,omitempty"`
}

func (q AppointmentQuery) values(c *Client) url.Values {
	v := url.Values{}
	v.Set("start", q.Start.Format(time.RFC3339))
	v.Set("end", q.End.Format(time.RFC3339))

	financial := c.includeFinancial
	if q.IncludeFinancialDetails != nil {
		financial = *q.IncludeFinancialDetails
	}
	preserve := c.preserveCurrencies
	if q.PreserveCurrencies != nil {
		preserve = *q.PreserveCurrencies
	}
	if financial {
		v.Set("include_financial_details", "true")
	}
	if preserve {
		v.Set("preserve_currencies", "true")
	}
	if q.ContactID != "" {
		v.Set("contact_id", q.ContactID)
	}
	return v
}

// ListAppointments returns all appointment instances of the range. Recurring
// series come back materialized, one record per occurrence.
func (c *Client) ListAppointments(ctx context.Context, q AppointmentQuery) ([]model.Appointment, error) {
	values := q.values(c)
	key := values.Encode()
	// Callers append to the result, so the cache never shares its backing array.
	if cached, ok := c.appointments.Get(key); ok {
		return slices.Clone(cached), nil
	}

	appts, err := getList[model.Appointment](ctx, c, "/appointments", values)
	if err != nil {
		return nil, err
	}
	for i := range appts {
		if appts[i].Source == "" {
			appts[i].Source = model.SourceCRM
		}
	}
	c.appointments.Set(key, slices.Clone(appts))
	c.log.Debug("appointments fetched", "start", q.Start.Format(time.RFC3339), "end", q.End.Format(time.RFC3339), "count", len(appts))
	return appts, nil
}

func (c *Client) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	var a model.Appointment
	if err := c.do(ctx, http.MethodGet, "/appointments/"+url.PathEscape(id), nil, nil, &a); err != nil {
		return model.Appointment{}, err
	}
	if a.Source == "" {
		a.Source = model.SourceCRM
	}
	return a, nil
}

func (c *Client) CreateAppointment(ctx context.Context, in AppointmentInput) (model.Appointment, error) {
	var a model.Appointment
	if err := c.do(ctx, http.MethodPost, "/appointments", nil, in, &a); err != nil {
		return model.Appointment{}, err
	}
	c.InvalidateAppointments()
	c.log.Info("appointment created", "id", a.ID)
	return a, nil
}

// UpdateAppointment patches appointment id. m carries the recurrence scope;
// for this/this_and_future it must name the occurrence.
func (c *Client) UpdateAppointment(ctx context.Context, id string, changes AppointmentChanges, m recurrence.Mutation) (model.Appointment, error) {
	if err := m.Validate(); err != nil {
		return model.Appointment{}, err
	}
	q := url.Values{}
	m.Apply(q)

	var a model.Appointment
	if err := c.do(ctx, http.MethodPatch, "/appointments/"+url.PathEscape(id), q, changes, &a); err != nil {
		return model.Appointment{}, err
	}
	c.InvalidateAppointments()
	c.log.Info("appointment updated", "id", id, "scope", m.Scope, "occurrence_date", m.OccurrenceDate)
	return a, nil
}

// DeleteAppointment deletes appointment id with the recurrence scope of m.
func (c *Client) DeleteAppointment(ctx context.Context, id string, m recurrence.Mutation) error {
	if err := m.Validate(); err != nil {
		return err
	}
	q := url.Values{}
	m.Apply(q)

	if err := c.do(ctx, http.MethodDelete, "/appointments/"+url.PathEscape(id), q, nil, nil); err != nil {
		return err
	}
	c.InvalidateAppointments()
	c.log.Info("appointment deleted", "id", id, "scope", m.Scope, "occurrence_date", m.OccurrenceDate)
	return nil
}
