// Package linked manages external calendar accounts whose events are shown
// as a read-only overlay next to CRM appointments.
package linked

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"crmcal/internal/config"
	"crmcal/internal/gcal"
	"crmcal/internal/ics"
	"crmcal/internal/model"
)

var ErrUnknownAccount = errors.New("unknown linked account")

// Provider lists the events of one linked account for a time range.
type Provider interface {
	Events(ctx context.Context, start, end time.Time) ([]model.Appointment, error)
}

// Factory builds the Provider of an account.
type Factory func(ctx context.Context, acc config.AccountConfig) (Provider, error)

// NewFactory returns the default Factory: ICS feeds go through f, Google
// accounts through the Calendar API. Timed events are rendered in loc.
func NewFactory(f *ics.Fetcher, loc *time.Location) Factory {
	return func(ctx context.Context, acc config.AccountConfig) (Provider, error) {
		switch acc.Provider {
		case config.ProviderICS:
			return ics.NewProvider(f, ics.Source{ID: acc.ID, URL: acc.URL}, loc), nil
		case config.ProviderGoogle:
			return gcal.New(ctx, acc, loc)
		default:
			return nil, fmt.Errorf("account %q: unknown provider %q", acc.ID, acc.Provider)
		}
	}
}

// Registry is the set of linked accounts. When path is set, changes are
// written back to the config file.
type Registry struct {
	mu       sync.RWMutex
	path     string
	accounts []config.AccountConfig
}

func NewRegistry(path string, accounts []config.AccountConfig) *Registry {
	return &Registry{
		path:     path,
		accounts: append([]config.AccountConfig(nil), accounts...),
	}
}

// List returns a copy of the linked accounts.
func (r *Registry) List() []config.AccountConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]config.AccountConfig(nil), r.accounts...)
}

// Get returns the account with the given id.
func (r *Registry) Get(id string) (config.AccountConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.ID == id {
			return a, true
		}
	}
	return config.AccountConfig{}, false
}

// Link adds acc, assigning a new id when it has none.
func (r *Registry) Link(acc config.AccountConfig) (config.AccountConfig, error) {
	acc.ID = strings.TrimSpace(acc.ID)
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	acc.Provider = strings.ToLower(strings.TrimSpace(acc.Provider))
	if acc.Name == "" {
		acc.Name = acc.ID
	}
	if err := acc.Validate(); err != nil {
		return config.AccountConfig{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.ID == acc.ID {
			return config.AccountConfig{}, fmt.Errorf("account %q already linked", acc.ID)
		}
	}

	if r.path != "" {
		err := config.UpdateAccounts(r.path, func(list []config.AccountConfig) ([]config.AccountConfig, error) {
			return append(list, acc), nil
		})
		if err != nil {
			return config.AccountConfig{}, fmt.Errorf("persist account %q: %w", acc.ID, err)
		}
	}
	r.accounts = append(r.accounts, acc)
	return acc, nil
}

// Unlink removes the account with the given id.
func (r *Registry) Unlink(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, a := range r.accounts {
		if a.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownAccount, id)
	}

	if r.path != "" {
		err := config.UpdateAccounts(r.path, func(list []config.AccountConfig) ([]config.AccountConfig, error) {
			out := list[:0]
			for _, a := range list {
				if a.ID != id {
					out = append(out, a)
				}
			}
			return out, nil
		})
		if err != nil {
			return fmt.Errorf("persist unlink %q: %w", id, err)
		}
	}
	r.accounts = append(r.accounts[:idx], r.accounts[idx+1:]...)
	return nil
}
