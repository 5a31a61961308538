package web

import (
	"net/http"
	"time"

	"crmcal/internal/crm"
)

// GET /api/contacts?search=ann&limit=10
func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	contacts, err := s.crm.SearchContacts(r.Context(), q.Get("search"), parseIntDefault(q.Get("limit"), 20))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

// GET /api/services?active=1
func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.crm.ListServices(r.Context(), parseBool(r.URL.Query().Get("active")))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, services)
}

func (s *Server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	currencies, err := s.crm.ListCurrencies(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, currencies)
}

func (s *Server) handleStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.crm.ListStatuses(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

// GET /api/projects?contact_id=c1
func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.crm.ListProjects(r.Context(), r.URL.Query().Get("contact_id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

// GET /api/billable-hours?project_id=p1&from=2024-01-01&to=2024-01-31&invoiced=false
func (s *Server) handleBillableHours(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bq := crm.BillableQuery{ProjectID: q.Get("project_id")}

	var err error
	if bq.From, err = parseDate(q.Get("from"), s.loc, time.Time{}); err != nil {
		writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	if bq.To, err = parseDate(q.Get("to"), s.loc, time.Time{}); err != nil {
		writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return
	}
	if v := q.Get("invoiced"); v != "" {
		invoiced := parseBool(v)
		bq.Invoiced = &invoiced
	}

	hours, err := s.crm.ListBillableHours(r.Context(), bq)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hours)
}
