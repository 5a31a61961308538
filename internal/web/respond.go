package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"crmcal/internal/crm"
	"crmcal/internal/layout"
	"crmcal/internal/linked"
	appLog "crmcal/internal/log"
	"crmcal/internal/recurrence"
)

// maxBodySize caps JSON request bodies.
const maxBodySize = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// writeErr maps err to a status code. Upstream 5xx and transport failures
// become 502, anything unclassified is a local 500.
func writeErr(w http.ResponseWriter, err error) {
	var status int
	var apiErr *crm.APIError
	switch {
	case errors.Is(err, crm.ErrNotFound), errors.Is(err, linked.ErrUnknownAccount):
		status = http.StatusNotFound
	case errors.Is(err, recurrence.ErrInvalidScope),
		errors.Is(err, recurrence.ErrMissingOccurrence),
		errors.Is(err, recurrence.ErrInvalidRule),
		errors.Is(err, layout.ErrInvalidTimestamp):
		status = http.StatusBadRequest
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			status = apiErr.StatusCode
		}
	case errors.Is(err, crm.ErrUpstream):
		status = http.StatusBadGateway
	default:
		appLog.Error("request failed", err)
		status = http.StatusInternalServerError
	}
	writeError(w, status, err.Error())
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

// parseDate reads a YYYY-MM-DD parameter in loc; empty yields def.
func parseDate(s string, loc *time.Location, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseInLocation("2006-01-02", s, loc)
}
