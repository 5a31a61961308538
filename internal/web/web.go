package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"crmcal/internal/config"
	"crmcal/internal/crm"
	"crmcal/internal/linked"
	appLog "crmcal/internal/log"
	"crmcal/internal/model"
	"crmcal/internal/recurrence"
)

// CRM is the part of the CRM client the HTTP API needs.
type CRM interface {
	ListAppointments(ctx context.Context, q crm.AppointmentQuery) ([]model.Appointment, error)
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	CreateAppointment(ctx context.Context, in crm.AppointmentInput) (model.Appointment, error)
	UpdateAppointment(ctx context.Context, id string, changes crm.AppointmentChanges, m recurrence.Mutation) (model.Appointment, error)
	DeleteAppointment(ctx context.Context, id string, m recurrence.Mutation) error

	SearchContacts(ctx context.Context, search string, limit int) ([]model.Contact, error)
	ListServices(ctx context.Context, activeOnly bool) ([]model.Service, error)
	ListCurrencies(ctx context.Context) ([]model.Currency, error)
	ListStatuses(ctx context.Context) ([]model.AppointmentStatus, error)
	ListProjects(ctx context.Context, contactID string) ([]model.Project, error)
	ListBillableHours(ctx context.Context, bq crm.BillableQuery) ([]model.BillableHour, error)
}

// Server provides the calendar HTTP API.
type Server struct {
	cfg      *config.Config
	crm      CRM
	accounts *linked.Registry
	sync     *linked.Scheduler
	loc      *time.Location
	router   chi.Router
	log      appLog.Logger
}

// NewServer constructs a new Server. accounts and sync may be nil, which
// disables the linked calendar overlay and the account endpoints.
func NewServer(cfg *config.Config, client CRM, accounts *linked.Registry, sync *linked.Scheduler) *Server {
	s := &Server{
		cfg:      cfg,
		crm:      client,
		accounts: accounts,
		sync:     sync,
		loc:      cfg.Location(),
		router:   chi.NewRouter(),
		log:      appLog.With("module", "web"),
	}
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	if s.basicAuthEnabled() {
		s.log.Info("HTTP basic auth enabled")
		r.Use(s.basicAuthMiddleware)
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/calendar.ics", s.handleExport)
		r.Get("/calendar/{view}", s.handleCalendar)

		r.Post("/appointments", s.handleCreateAppointment)
		r.Get("/appointments/{id}/scopes", s.handleScopes)
		r.Patch("/appointments/{id}", s.handleUpdateAppointment)
		r.Delete("/appointments/{id}", s.handleDeleteAppointment)

		r.Post("/recurrence/preview", s.handleRecurrencePreview)

		r.Get("/contacts", s.handleContacts)
		r.Get("/services", s.handleServices)
		r.Get("/currencies", s.handleCurrencies)
		r.Get("/statuses", s.handleStatuses)
		r.Get("/projects", s.handleProjects)
		r.Get("/billable-hours", s.handleBillableHours)

		r.Get("/accounts", s.handleListAccounts)
		r.Post("/accounts", s.handleLinkAccount)
		r.Post("/accounts/sync", s.handleSyncAccounts)
		r.Delete("/accounts/{id}", s.handleUnlinkAccount)
	})
}

// Run serves on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// requestLogger tags each request with an X-Request-ID and logs its outcome.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="crmcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
