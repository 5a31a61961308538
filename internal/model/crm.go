package model

type Contact struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// DisplayName returns "First Last", falling back to company or email.
func (c Contact) DisplayName() string {
	name := c.FirstName
	if c.LastName != "" {
		if name != "" {
			name += " "
		}
		name += c.LastName
	}
	if name != "" {
		return name
	}
	if c.Company != "" {
		return c.Company
	}
	return c.Email
}

type Service struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	DurationMinutes int     `json:"duration_minutes"`
	Price           float64 `json:"price"`
	Currency        string  `json:"currency"`
	Active          bool    `json:"active"`
}

type Currency struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	IsDefault bool   `json:"is_default,omitempty"`
}

type AppointmentStatus struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
}

type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ContactID string `json:"contact_id,omitempty"`
	Status    string `json:"status,omitempty"`
}

// BillableHour is a logged block of work; Date is a calendar date (YYYY-MM-DD).
type BillableHour struct {
	ID            string  `json:"id"`
	ProjectID     string  `json:"project_id"`
	AppointmentID string  `json:"appointment_id,omitempty"`
	Date          string  `json:"date"`
	Hours         float64 `json:"hours"`
	Rate          float64 `json:"rate"`
	Currency      string  `json:"currency"`
	Description   string  `json:"description,omitempty"`
	Invoiced      bool    `json:"invoiced"`
}
