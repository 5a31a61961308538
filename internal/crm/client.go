package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crmcal/internal/cache"
	"crmcal/internal/config"
	appLog "crmcal/internal/log"
	"crmcal/internal/model"
)

// ErrNotFound is wrapped by APIError for 404 responses.
var ErrNotFound = errors.New("not found")

// ErrUpstream wraps transport failures and undecodable CRM responses.
var ErrUpstream = errors.New("crm upstream")

// APIError is returned for any non-2xx response of the CRM API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crm %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// maxErrorBody bounds how much of an error response is kept in APIError.
const maxErrorBody = 2048

// Client talks to the external CRM REST API. Reference data (currencies,
// statuses, services, projects) and appointment ranges are cached in memory
// with per-kind TTLs; appointment mutations invalidate the appointment cache.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     appLog.Logger

	includeFinancial   bool
	preserveCurrencies bool

	appointments *cache.TTL[string, []model.Appointment]
	currencies   *cache.TTL[string, []model.Currency]
	statuses     *cache.TTL[string, []model.AppointmentStatus]
	services     *cache.TTL[string, []model.Service]
	projects     *cache.TTL[string, []model.Project]
}

// New builds a Client from config.
func New(crmCfg config.CRMConfig, cacheCfg config.CacheConfig) (*Client, error) {
	if crmCfg.BaseURL == "" {
		return nil, errors.New("crm: base url is empty")
	}
	timeout := crmCfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:            strings.TrimRight(crmCfg.BaseURL, "/"),
		token:              crmCfg.Token,
		http:               &http.Client{Timeout: timeout},
		log:                appLog.With("module", "crm"),
		includeFinancial:   crmCfg.IncludeFinancialDetails,
		preserveCurrencies: crmCfg.PreserveCurrencies,
	}

	var err error
	if c.appointments, err = cache.NewTTL[string, []model.Appointment](cacheCfg.Size, cacheCfg.AppointmentsTTL); err != nil {
		return nil, fmt.Errorf("crm: appointments cache: %w", err)
	}
	if c.currencies, err = cache.NewTTL[string, []model.Currency](1, cacheCfg.CurrenciesTTL); err != nil {
		return nil, fmt.Errorf("crm: currencies cache: %w", err)
	}
	if c.statuses, err = cache.NewTTL[string, []model.AppointmentStatus](1, cacheCfg.StatusesTTL); err != nil {
		return nil, fmt.Errorf("crm: statuses cache: %w", err)
	}
	if c.services, err = cache.NewTTL[string, []model.Service](cacheCfg.Size, cacheCfg.EntitiesTTL); err != nil {
		return nil, fmt.Errorf("crm: services cache: %w", err)
	}
	if c.projects, err = cache.NewTTL[string, []model.Project](cacheCfg.Size, cacheCfg.EntitiesTTL); err != nil {
		return nil, fmt.Errorf("crm: projects cache: %w", err)
	}
	return c, nil
}

// SetClock replaces the clock of every cache. Used by tests.
func (c *Client) SetClock(now func() time.Time) {
	c.appointments.Now = now
	c.currencies.Now = now
	c.statuses.Now = now
	c.services.Now = now
	c.projects.Now = now
}

// InvalidateAppointments drops all cached appointment ranges.
func (c *Client) InvalidateAppointments() {
	c.appointments.Purge()
	c.log.Debug("appointments cache purged")
}

// InvalidateAll drops every cached response.
func (c *Client) InvalidateAll() {
	c.appointments.Purge()
	c.currencies.Purge()
	c.statuses.Purge()
	c.services.Purge()
	c.projects.Purge()
	c.log.Debug("all caches purged")
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("crm: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("request failed", err, "method", method, "path", path)
		return fmt.Errorf("%w: %s %s: %w", ErrUpstream, method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug("request done", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %w", ErrUpstream, method, path, err)
	}
	return nil
}

// listEnvelope covers the paginated shapes the API uses for list endpoints.
type listEnvelope[T any] struct {
	Results []T `json:"results"`
	Data    []T `json:"data"`
}

// getList fetches a list endpoint that answers either with a bare JSON array
// or with a {"results": [...]} / {"data": [...]} envelope.
func getList[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, query, nil, &raw); err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %w", ErrUpstream, path, err)
		}
		return items, nil
	}
	var env listEnvelope[T]
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrUpstream, path, err)
	}
	if env.Results != nil {
		return env.Results, nil
	}
	if env.Data != nil {
		return env.Data, nil
	}
	return []T{}, nil
}
