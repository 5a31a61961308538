package linked

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"crmcal/internal/config"
	"crmcal/internal/layout"
	appLog "crmcal/internal/log"
	"crmcal/internal/model"
)

// SyncStatus is the outcome of the last sync of one account.
type SyncStatus struct {
	AccountID string    `json:"account_id"`
	LastSync  time.Time `json:"last_sync"`
	Count     int       `json:"count"`
	Error     string    `json:"error,omitempty"`
}

// Scheduler periodically pulls every linked account into an in-memory
// snapshot. A failed sync keeps the previous events of that account.
type Scheduler struct {
	reg     *Registry
	factory Factory
	spec    string
	horizon time.Duration
	loc     *time.Location

	// Now is the clock used for the sync window.
	Now func() time.Time

	mu       sync.RWMutex
	snapshot map[string][]model.Appointment
	status   map[string]SyncStatus

	cron *cron.Cron
	log  appLog.Logger
}

func NewScheduler(reg *Registry, factory Factory, cfg config.SyncConfig, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	horizon := cfg.HorizonDays
	if horizon <= 0 {
		horizon = 62
	}
	return &Scheduler{
		reg:      reg,
		factory:  factory,
		spec:     cfg.Cron,
		horizon:  time.Duration(horizon) * 24 * time.Hour,
		loc:      loc,
		Now:      time.Now,
		snapshot: make(map[string][]model.Appointment),
		status:   make(map[string]SyncStatus),
		log:      appLog.With("module", "linked"),
	}
}

// Start runs an initial sync in the background and schedules the rest with
// the configured cron spec. Runs never overlap.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.log})),
	)
	if _, err := c.AddFunc(s.spec, func() { s.SyncAll(ctx) }); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	s.log.Info("linked sync scheduled", "cron", s.spec, "accounts", len(s.reg.List()))

	go s.SyncAll(ctx)
	return nil
}

// Stop stops the cron and waits for a running sync to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// SyncAll syncs every linked account concurrently and returns their status
// ordered by account id.
func (s *Scheduler) SyncAll(ctx context.Context) []SyncStatus {
	accounts := s.reg.List()
	now := s.Now()
	start := now.Add(-s.horizon)
	end := now.Add(s.horizon)

	var wg sync.WaitGroup
	for _, acc := range accounts {
		wg.Add(1)
		go func(acc config.AccountConfig) {
			defer wg.Done()
			s.syncOne(ctx, acc, start, end)
		}(acc)
	}
	wg.Wait()

	s.prune(accounts)
	return s.Status()
}

func (s *Scheduler) syncOne(ctx context.Context, acc config.AccountConfig, start, end time.Time) {
	st := SyncStatus{AccountID: acc.ID, LastSync: s.Now()}

	p, err := s.factory(ctx, acc)
	var events []model.Appointment
	if err == nil {
		events, err = p.Events(ctx, start, end)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		st.Error = err.Error()
		st.Count = len(s.snapshot[acc.ID])
		s.status[acc.ID] = st
		s.log.Error("linked sync failed", err, "account", acc.ID)
		return
	}
	for i := range events {
		events[i].Source = acc.ID
		events[i].ReadOnly = true
	}
	s.snapshot[acc.ID] = events
	st.Count = len(events)
	s.status[acc.ID] = st
	s.log.Info("linked sync done", "account", acc.ID, "events", len(events))
}

// prune drops accounts that are no longer linked.
func (s *Scheduler) prune(accounts []config.AccountConfig) {
	keep := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		keep[a.ID] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.snapshot {
		if !keep[id] {
			delete(s.snapshot, id)
			delete(s.status, id)
		}
	}
}

// Forget removes an account from the snapshot right away.
func (s *Scheduler) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshot, id)
	delete(s.status, id)
}

// Status returns the last sync outcome per account.
func (s *Scheduler) Status() []SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SyncStatus, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

// Snapshot returns synced appointments overlapping [start, end). Records
// with unparseable timestamps are left out.
func (s *Scheduler) Snapshot(start, end time.Time) []model.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.snapshot))
	for id := range s.snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []model.Appointment
	for _, id := range ids {
		for _, a := range s.snapshot[id] {
			if inRange(a, start, end, s.loc) {
				out = append(out, a)
			}
		}
	}
	return out
}

func inRange(a model.Appointment, start, end time.Time, loc *time.Location) bool {
	aStart, err := layout.ParseTimestamp(a.StartDatetime, loc)
	if err != nil {
		return false
	}
	aEnd, err := layout.ParseTimestamp(a.EndDatetime, loc)
	if err != nil {
		return false
	}
	if a.AllDay {
		aEnd = aEnd.AddDate(0, 0, 1)
	}
	return aStart.Before(end) && aEnd.After(start)
}

// cronLogger routes cron's own messages through the app logger.
type cronLogger struct {
	l appLog.Logger
}

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Debug("cron "+msg, kv...)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Error("cron "+msg, err, kv...)
}
