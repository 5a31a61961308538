package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"crmcal/internal/config"
	"crmcal/internal/ics"
	"crmcal/internal/linked"
)

// accountDTO never carries secrets: feed URLs are redacted and access
// tokens dropped.
type accountDTO struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Provider   string             `json:"provider"`
	URL        string             `json:"url,omitempty"`
	CalendarID string             `json:"calendar_id,omitempty"`
	Sync       *linked.SyncStatus `json:"sync,omitempty"`
}

type linkRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Provider    string `json:"provider"`
	URL         string `json:"url"`
	CalendarID  string `json:"calendar_id"`
	AccessToken string `json:"access_token"`
}

func toAccountDTO(a config.AccountConfig, st *linked.SyncStatus) accountDTO {
	dto := accountDTO{
		ID:         a.ID,
		Name:       a.Name,
		Provider:   a.Provider,
		CalendarID: a.CalendarID,
		Sync:       st,
	}
	if a.URL != "" {
		dto.URL = ics.RedactURL(a.URL)
	}
	return dto
}

func (s *Server) linkedEnabled(w http.ResponseWriter) bool {
	if s.accounts == nil || s.sync == nil {
		writeError(w, http.StatusNotFound, "linked accounts are not enabled")
		return false
	}
	return true
}

// GET /api/accounts
func (s *Server) handleListAccounts(w http.ResponseWriter, _ *http.Request) {
	if !s.linkedEnabled(w) {
		return
	}
	status := make(map[string]linked.SyncStatus)
	for _, st := range s.sync.Status() {
		status[st.AccountID] = st
	}

	out := make([]accountDTO, 0)
	for _, a := range s.accounts.List() {
		var st *linked.SyncStatus
		if v, ok := status[a.ID]; ok {
			st = &v
		}
		out = append(out, toAccountDTO(a, st))
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /api/accounts
func (s *Server) handleLinkAccount(w http.ResponseWriter, r *http.Request) {
	if !s.linkedEnabled(w) {
		return
	}
	var req linkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	acc, err := s.accounts.Link(config.AccountConfig{
		ID:          req.ID,
		Name:        req.Name,
		Provider:    req.Provider,
		URL:         req.URL,
		CalendarID:  req.CalendarID,
		AccessToken: req.AccessToken,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.log.Info("account linked", "account", acc.ID, "provider", acc.Provider)
	writeJSON(w, http.StatusCreated, toAccountDTO(acc, nil))
}

// DELETE /api/accounts/{id}
func (s *Server) handleUnlinkAccount(w http.ResponseWriter, r *http.Request) {
	if !s.linkedEnabled(w) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.accounts.Unlink(id); err != nil {
		writeErr(w, err)
		return
	}
	s.sync.Forget(id)
	s.log.Info("account unlinked", "account", id)
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/accounts/sync
func (s *Server) handleSyncAccounts(w http.ResponseWriter, r *http.Request) {
	if !s.linkedEnabled(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.sync.SyncAll(r.Context()))
}
