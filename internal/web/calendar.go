package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"crmcal/internal/crm"
	"crmcal/internal/ics"
	"crmcal/internal/layout"
	"crmcal/internal/model"
	"crmcal/internal/recurrence"
)

// handleCalendar returns the laid-out view for the requested range.
//
// GET /api/calendar/{view}?date=2024-01-10&linked=1&week_start=sunday
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	view, err := layout.ParseView(chi.URLParam(r, "view"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	anchor, err := parseDate(q.Get("date"), s.loc, time.Now().In(s.loc))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	weekStart := layout.ParseWeekStart(s.cfg.WeekStart)
	if ws := q.Get("week_start"); ws != "" {
		weekStart = layout.ParseWeekStart(ws)
	}

	start, end := layout.Range(view, anchor, weekStart)
	appts, err := s.appointments(r, start, end)
	if err != nil {
		writeErr(w, err)
		return
	}

	cv, err := layout.BuildView(view, anchor, weekStart, appts)
	if err != nil {
		writeErr(w, err)
		return
	}
	if len(cv.Skipped) > 0 {
		s.log.Warn("appointments with invalid timestamps skipped", "count", len(cv.Skipped), "keys", strings.Join(cv.Skipped, ","))
	}
	writeJSON(w, http.StatusOK, cv)
}

// appointments merges CRM appointments with the linked overlay unless the
// request opts out with linked=0.
func (s *Server) appointments(r *http.Request, start, end time.Time) ([]model.Appointment, error) {
	appts, err := s.crm.ListAppointments(r.Context(), crm.AppointmentQuery{Start: start, End: end})
	if err != nil {
		return nil, err
	}
	withLinked := true
	if v := r.URL.Query().Get("linked"); v != "" {
		withLinked = parseBool(v)
	}
	if withLinked && s.sync != nil {
		appts = append(appts, s.sync.Snapshot(start, end)...)
	}
	return appts, nil
}

// handleExport serves the range as an iCalendar file.
//
// GET /api/calendar.ics?start=2024-01-01&end=2024-02-01
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := time.Now().In(s.loc)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)

	start, err := parseDate(q.Get("start"), s.loc, monthStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be YYYY-MM-DD")
		return
	}
	end, err := parseDate(q.Get("end"), s.loc, start.AddDate(0, 1, 0))
	if err != nil {
		writeError(w, http.StatusBadRequest, "end must be YYYY-MM-DD")
		return
	}
	if !end.After(start) {
		writeError(w, http.StatusBadRequest, "end must be after start")
		return
	}

	appts, err := s.appointments(r, start, end)
	if err != nil {
		writeErr(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ics.Export(appts, "CRM calendar", s.loc)))
}

type scopesResponse struct {
	Recurring      bool               `json:"recurring"`
	Scopes         []recurrence.Scope `json:"scopes"`
	OccurrenceDate string             `json:"occurrence_date,omitempty"`
}

// handleScopes tells the UI whether a scope dialog is needed before editing
// or deleting the clicked occurrence. When the CRM does not flag the series,
// the appointments of the view around the occurrence decide.
//
// GET /api/appointments/{id}/scopes?start=2024-01-08T09:00:00Z&view=week
func (s *Server) handleScopes(w http.ResponseWriter, r *http.Request) {
	appt, err := s.crm.GetAppointment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	q := r.URL.Query()
	if start := q.Get("start"); start != "" {
		appt.StartDatetime = start
	}

	var visible []model.Appointment
	if !appt.IsRecurring && appt.StartDatetime != "" {
		view := layout.ViewMonth
		if v := q.Get("view"); v != "" {
			if view, err = layout.ParseView(v); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		if visible, err = s.visibleAround(r, appt.StartDatetime, view); err != nil {
			writeErr(w, err)
			return
		}
	}

	scopes := recurrence.Options(visible, appt)
	resp := scopesResponse{Recurring: len(scopes) > 0, Scopes: scopes}
	if resp.Scopes == nil {
		resp.Scopes = []recurrence.Scope{}
	} else {
		resp.OccurrenceDate = appt.StartDatetime
	}
	writeJSON(w, http.StatusOK, resp)
}

// visibleAround fetches the CRM appointments of the view containing the
// occurrence that starts at start.
func (s *Server) visibleAround(r *http.Request, start string, view layout.View) ([]model.Appointment, error) {
	at, err := layout.ParseTimestamp(start, s.loc)
	if err != nil {
		return nil, err
	}
	from, to := layout.Range(view, at.In(s.loc), layout.ParseWeekStart(s.cfg.WeekStart))
	return s.crm.ListAppointments(r.Context(), crm.AppointmentQuery{Start: from, End: to})
}

func (s *Server) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	var in crm.AppointmentInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(in.Title) == "" || in.StartDatetime == "" || in.EndDatetime == "" {
		writeError(w, http.StatusBadRequest, "title, start_datetime and end_datetime are required")
		return
	}
	if err := s.checkRange(in.StartDatetime, in.EndDatetime); err != nil {
		writeErr(w, err)
		return
	}
	if in.RecurrenceRule != "" {
		rule, err := recurrence.ParseRule(in.RecurrenceRule)
		if err == nil {
			err = rule.Validate()
		}
		if err != nil {
			writeErr(w, err)
			return
		}
	}

	appt, err := s.crm.CreateAppointment(r.Context(), in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// checkRange rejects unparseable timestamps and ranges that end before they
// start.
func (s *Server) checkRange(startRaw, endRaw string) error {
	start, err := layout.ParseTimestamp(startRaw, s.loc)
	if err != nil {
		return err
	}
	end, err := layout.ParseTimestamp(endRaw, s.loc)
	if err != nil {
		return err
	}
	if end.Before(start) {
		return layout.ErrInvalidTimestamp
	}
	return nil
}

type updateRequest struct {
	Scope recurrence.Scope `json:"scope"`
	// StartDatetime is the start of the clicked occurrence.
	StartDatetime string                 `json:"start_datetime"`
	Changes       crm.AppointmentChanges `json:"changes"`
}

// PATCH /api/appointments/{id}
func (s *Server) handleUpdateAppointment(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	m, err := s.mutation(chi.URLParam(r, "id"), string(req.Scope), req.StartDatetime)
	if err != nil {
		writeErr(w, err)
		return
	}

	c := req.Changes
	if c.StartDatetime != nil && c.EndDatetime != nil {
		if err := s.checkRange(*c.StartDatetime, *c.EndDatetime); err != nil {
			writeErr(w, err)
			return
		}
	}
	if c.RecurrenceRule != nil && *c.RecurrenceRule != "" {
		if _, err := recurrence.ParseRule(*c.RecurrenceRule); err != nil {
			writeErr(w, err)
			return
		}
	}

	appt, err := s.crm.UpdateAppointment(r.Context(), chi.URLParam(r, "id"), c, m)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// DELETE /api/appointments/{id}?scope=this&start=2024-01-08T09:00:00Z
func (s *Server) handleDeleteAppointment(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	m, err := s.mutation(chi.URLParam(r, "id"), q.Get("scope"), q.Get("start"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.crm.DeleteAppointment(r.Context(), chi.URLParam(r, "id"), m); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// mutation resolves the scope chosen for the occurrence starting at start.
func (s *Server) mutation(id, scope, start string) (recurrence.Mutation, error) {
	sc, err := recurrence.ParseScope(scope)
	if err != nil {
		return recurrence.Mutation{}, err
	}
	return recurrence.Resolve(model.Appointment{ID: id, StartDatetime: start}, sc)
}

type previewRequest struct {
	Rule    recurrence.Rule `json:"rule"`
	DTStart string          `json:"dtstart"`
	Count   int             `json:"count,omitempty"`
}

type previewResponse struct {
	RRule       string   `json:"rrule"`
	Description string   `json:"description"`
	Occurrences []string `json:"occurrences"`
}

// handleRecurrencePreview validates an editor rule and lists its next
// occurrences.
//
// POST /api/recurrence/preview
func (s *Server) handleRecurrencePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	dtstart, err := layout.ParseTimestamp(req.DTStart, s.loc)
	if err != nil {
		writeErr(w, err)
		return
	}
	n := req.Count
	if n <= 0 {
		n = 5
	}
	n = min(n, 50)

	rrule, err := req.Rule.RRule(dtstart)
	if err != nil {
		writeErr(w, err)
		return
	}
	occ, err := req.Rule.Preview(dtstart, n)
	if err != nil {
		writeErr(w, err)
		return
	}

	resp := previewResponse{
		RRule:       rrule,
		Description: req.Rule.Describe(),
		Occurrences: make([]string, 0, len(occ)),
	}
	for _, t := range occ {
		resp.Occurrences = append(resp.Occurrences, t.In(s.loc).Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, resp)
}
