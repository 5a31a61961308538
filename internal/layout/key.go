package layout

import "crmcal/internal/model"

// Key returns the render identity of an appointment instance. Recurring
// instances share an ID, so the start is part of the key.
func Key(a model.Appointment) string {
	return a.ID + "_" + a.StartDatetime
}

// IsRecurring reports whether more than one instance with the given id is
// present in appts.
func IsRecurring(appts []model.Appointment, id string) bool {
	n := 0
	for _, a := range appts {
		if a.ID != id {
			continue
		}
		n++
		if n > 1 {
			return true
		}
	}
	return false
}
