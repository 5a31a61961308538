package recurrence

import (
	"errors"
	"fmt"
	"net/url"

	"crmcal/internal/layout"
	"crmcal/internal/model"
)

// Scope is how far an edit or delete of a recurring appointment reaches.
type Scope string

const (
	ScopeThis          Scope = "this"
	ScopeThisAndFuture Scope = "this_and_future"
	ScopeAll           Scope = "all"
)

var (
	ErrInvalidScope      = errors.New("invalid recurrence scope")
	ErrMissingOccurrence = errors.New("occurrence start is required for this scope")
)

// ParseScope validates a scope name. An empty string is ScopeAll, which is
// what a mutation of a non-recurring appointment means.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "":
		return ScopeAll, nil
	case ScopeThis, ScopeThisAndFuture, ScopeAll:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScope, s)
	}
}

// NeedsOccurrence reports whether the scope targets a specific occurrence.
func (s Scope) NeedsOccurrence() bool {
	return s == ScopeThis || s == ScopeThisAndFuture
}

// Options returns the scopes the user must choose from before mutating appt.
// Non-recurring appointments need no choice and get nil.
func Options(appts []model.Appointment, appt model.Appointment) []Scope {
	if !appt.IsRecurring && !layout.IsRecurring(appts, appt.ID) {
		return nil
	}
	return []Scope{ScopeThis, ScopeThisAndFuture, ScopeAll}
}

// Mutation carries the recurrence parameters of an update or delete call.
type Mutation struct {
	Scope Scope `json:"scope"`
	// OccurrenceDate is the original start_datetime of the clicked instance.
	// Always set for this/this_and_future, always empty for all.
	OccurrenceDate string `json:"occurrence_date,omitempty"`
}

// Resolve builds the mutation parameters for applying scope to the clicked
// occurrence appt.
func Resolve(appt model.Appointment, scope Scope) (Mutation, error) {
	switch scope {
	case ScopeThis, ScopeThisAndFuture:
		if appt.StartDatetime == "" {
			return Mutation{}, fmt.Errorf("%w: appointment %s", ErrMissingOccurrence, appt.ID)
		}
		return Mutation{Scope: scope, OccurrenceDate: appt.StartDatetime}, nil
	case ScopeAll:
		return Mutation{Scope: ScopeAll}, nil
	default:
		return Mutation{}, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
}

// Validate checks the scope/occurrence_date contract.
func (m Mutation) Validate() error {
	switch m.Scope {
	case ScopeThis, ScopeThisAndFuture:
		if m.OccurrenceDate == "" {
			return ErrMissingOccurrence
		}
	case ScopeAll:
		if m.OccurrenceDate != "" {
			return fmt.Errorf("%w: occurrence_date must be empty for scope all", ErrInvalidScope)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidScope, m.Scope)
	}
	return nil
}

// Apply adds scope and, when needed, occurrence_date to q.
func (m Mutation) Apply(q url.Values) {
	if m.Scope == "" {
		return
	}
	q.Set("scope", string(m.Scope))
	if m.Scope.NeedsOccurrence() && m.OccurrenceDate != "" {
		q.Set("occurrence_date", m.OccurrenceDate)
	}
}
