package model

// SourceCRM marks appointments that come from the CRM REST API. Appointments
// from linked calendar accounts carry the account ID as their Source.
const SourceCRM = "crm"

// ContactRef is the compact contact embedded in appointment payloads.
type ContactRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// FinancialDetails is only present when the API was asked for
// include_financial_details. OriginalCurrency/OriginalPrice are only filled
// when preserve_currencies was requested as well.
type FinancialDetails struct {
	Price            float64 `json:"price"`
	Currency         string  `json:"currency"`
	OriginalPrice    float64 `json:"original_price,omitempty"`
	OriginalCurrency string  `json:"original_currency,omitempty"`
	Billable         bool    `json:"billable"`
	ServiceID        string  `json:"service_id,omitempty"`
	ProjectID        string  `json:"project_id,omitempty"`
}

// Appointment is a single materialized appointment instance. Instances of a
// recurring series share ID and differ by StartDatetime.
//
// StartDatetime/EndDatetime are kept as the ISO-8601 strings received from
// the API so that they can be echoed back verbatim (e.g. as occurrence_date).
// For AllDay appointments EndDatetime is an inclusive calendar date; for timed
// appointments it is an exclusive instant.
type Appointment struct {
	ID            string `json:"id"`
	StartDatetime string `json:"start_datetime"`
	EndDatetime   string `json:"end_datetime"`
	AllDay        bool   `json:"all_day"`

	Title           string            `json:"title,omitempty"`
	Description     string            `json:"description,omitempty"`
	Location        string            `json:"location,omitempty"`
	Status          string            `json:"status,omitempty"`
	AppointmentType string            `json:"appointment_type,omitempty"`
	Contact         *ContactRef       `json:"contact,omitempty"`
	ReadOnly        bool              `json:"read_only,omitempty"`
	IsRecurring     bool              `json:"is_recurring,omitempty"`
	RecurrenceRule  string            `json:"recurrence_rule,omitempty"`
	Source          string            `json:"source,omitempty"`
	Financial       *FinancialDetails `json:"financial,omitempty"`
}

// LaidOutAppointment is a timed single-day appointment placed in a day grid.
// StartTime/EndTime are minutes since midnight; an end at midnight is 1440.
type LaidOutAppointment struct {
	Appointment
	Key          string `json:"key"`
	StartTime    int    `json:"startTime"`
	EndTime      int    `json:"endTime"`
	Column       int    `json:"column"`
	TotalColumns int    `json:"totalColumns"`
}

// SpanningAppointment is an all-day or multi-day appointment placed in a lane
// across the visible day columns.
type SpanningAppointment struct {
	Appointment
	Key             string `json:"key"`
	StartCol        int    `json:"startCol"`
	EndCol          int    `json:"endCol"`
	ContinuesBefore bool   `json:"continuesBefore"`
	ContinuesAfter  bool   `json:"continuesAfter"`
	Lane            int    `json:"lane"`
}
