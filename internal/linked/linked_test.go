package linked

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"crmcal/internal/config"
	"crmcal/internal/model"
)

type fakeProvider struct {
	mu     sync.Mutex
	events []model.Appointment
	err    error
	calls  int
}

func (f *fakeProvider) Events(ctx context.Context, start, end time.Time) ([]model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]model.Appointment(nil), f.events...), nil
}

func fakeFactory(providers map[string]*fakeProvider) Factory {
	return func(ctx context.Context, acc config.AccountConfig) (Provider, error) {
		p, ok := providers[acc.ID]
		if !ok {
			return nil, errors.New("no provider")
		}
		return p, nil
	}
}

func icsAccount(id string) config.AccountConfig {
	return config.AccountConfig{ID: id, Name: id, Provider: config.ProviderICS, URL: "https://example.com/" + id + ".ics"}
}

func TestRegistryLinkPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	reg := NewRegistry(path, nil)

	acc, err := reg.Link(config.AccountConfig{Provider: " ICS ", URL: "https://example.com/a.ics"})
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if acc.ID == "" || acc.Provider != config.ProviderICS || acc.Name != acc.ID {
		t.Fatalf("unexpected account %+v", acc)
	}
	if _, err := reg.Link(acc); err == nil || !strings.Contains(err.Error(), "already linked") {
		t.Fatalf("duplicate link should fail, got %v", err)
	}
	if _, err := reg.Link(config.AccountConfig{Provider: "caldav"}); err == nil {
		t.Fatalf("unknown provider should fail")
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Accounts) != 1 || cfg.Accounts[0].ID != acc.ID {
		t.Fatalf("persisted accounts = %+v", cfg.Accounts)
	}

	if err := reg.Unlink("missing"); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("expected ErrUnknownAccount, got %v", err)
	}
	if err := reg.Unlink(acc.ID); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	cfg, err = config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Accounts) != 0 || len(reg.List()) != 0 {
		t.Fatalf("unlink should remove the account everywhere")
	}
}

func TestSchedulerSyncAndSnapshot(t *testing.T) {
	good := &fakeProvider{events: []model.Appointment{
		{ID: "g1", StartDatetime: "2024-01-02T09:00:00Z", EndDatetime: "2024-01-02T10:00:00Z"},
		{ID: "g2", AllDay: true, StartDatetime: "2024-01-05", EndDatetime: "2024-01-05"},
		{ID: "far", StartDatetime: "2024-03-01T09:00:00Z", EndDatetime: "2024-03-01T10:00:00Z"},
		{ID: "bad", StartDatetime: "later", EndDatetime: "later"},
	}}
	flaky := &fakeProvider{events: []model.Appointment{
		{ID: "f1", StartDatetime: "2024-01-03T09:00:00Z", EndDatetime: "2024-01-03T10:00:00Z"},
	}}
	reg := NewRegistry("", []config.AccountConfig{icsAccount("good"), icsAccount("flaky")})
	s := NewScheduler(reg, fakeFactory(map[string]*fakeProvider{"good": good, "flaky": flaky}),
		config.SyncConfig{Cron: "@every 1h", HorizonDays: 30}, time.UTC)
	s.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	status := s.SyncAll(context.Background())
	if len(status) != 2 || status[0].AccountID != "flaky" || status[1].Count != 4 {
		t.Fatalf("unexpected status %+v", status)
	}

	weekStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := s.Snapshot(weekStart, weekStart.AddDate(0, 0, 7))
	ids := map[string]model.Appointment{}
	for _, a := range snap {
		ids[a.ID] = a
	}
	if len(ids) != 3 || ids["g1"].Source != "good" || !ids["f1"].ReadOnly {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, ok := ids["far"]; ok {
		t.Fatalf("out-of-range event in snapshot")
	}

	// A failing provider keeps its previous events.
	flaky.err = errors.New("feed down")
	status = s.SyncAll(context.Background())
	if status[0].Error == "" || status[0].Count != 1 {
		t.Fatalf("failed sync status = %+v", status[0])
	}
	if len(s.Snapshot(weekStart, weekStart.AddDate(0, 0, 7))) != 3 {
		t.Fatalf("failed sync should keep the last good events")
	}

	// Unlinked accounts are pruned on the next sync.
	if err := reg.Unlink("good"); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	s.SyncAll(context.Background())
	if snap := s.Snapshot(weekStart, weekStart.AddDate(0, 0, 7)); len(snap) != 1 || snap[0].ID != "f1" {
		t.Fatalf("snapshot after unlink = %+v", snap)
	}
}

func TestSchedulerRejectsBadCron(t *testing.T) {
	s := NewScheduler(NewRegistry("", nil), fakeFactory(nil), config.SyncConfig{Cron: "not a spec"}, nil)
	if err := s.Start(context.Background()); err == nil {
		s.Stop()
		t.Fatalf("expected a cron parse error")
	}
}
