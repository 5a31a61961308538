package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

// Provider names for linked calendar accounts.
const (
	ProviderICS    = "ics"
	ProviderGoogle = "google"
)

// CRMConfig points at the external CRM REST API.
type CRMConfig struct {
	// BaseURL is the API root, e.g. "https://crm.example.com/api/v1".
	BaseURL string `yaml:"base_url" json:"base_url" env:"CRMCAL_CRM_BASE_URL"`
	// Token is sent as a bearer token on every request.
	Token   string        `yaml:"token" json:"-" env:"CRMCAL_CRM_TOKEN"`
	Timeout time.Duration `yaml:"timeout" json:"timeout" env:"CRMCAL_CRM_TIMEOUT"`

	// IncludeFinancialDetails / PreserveCurrencies are forwarded as the API
	// flags of the same name when listing appointments.
	IncludeFinancialDetails bool `yaml:"include_financial_details" json:"include_financial_details" env:"CRMCAL_CRM_INCLUDE_FINANCIAL_DETAILS"`
	PreserveCurrencies      bool `yaml:"preserve_currencies" json:"preserve_currencies" env:"CRMCAL_CRM_PRESERVE_CURRENCIES"`
}

// CacheConfig sizes the in-memory lookup caches of the CRM client.
type CacheConfig struct {
	Size            int           `yaml:"size" json:"size" env:"CRMCAL_CACHE_SIZE"`
	AppointmentsTTL time.Duration `yaml:"appointments_ttl" json:"appointments_ttl" env:"CRMCAL_CACHE_APPOINTMENTS_TTL"`
	CurrenciesTTL   time.Duration `yaml:"currencies_ttl" json:"currencies_ttl" env:"CRMCAL_CACHE_CURRENCIES_TTL"`
	StatusesTTL     time.Duration `yaml:"statuses_ttl" json:"statuses_ttl" env:"CRMCAL_CACHE_STATUSES_TTL"`
	EntitiesTTL     time.Duration `yaml:"entities_ttl" json:"entities_ttl" env:"CRMCAL_CACHE_ENTITIES_TTL"`
}

// SyncConfig controls linked-account refresh.
type SyncConfig struct {
	// Cron is a standard 5-field cron spec, e.g. "*/15 * * * *".
	Cron string `yaml:"cron" json:"cron" env:"CRMCAL_SYNC_CRON"`
	// CacheDir holds the ETag/Last-Modified cache of ICS feeds.
	CacheDir string `yaml:"cache_dir" json:"cache_dir" env:"CRMCAL_SYNC_CACHE_DIR"`
	// HorizonDays is how far ahead (and behind) linked events are synced.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days" env:"CRMCAL_SYNC_HORIZON_DAYS"`
}

// AccountConfig is one linked calendar account.
type AccountConfig struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Provider string `yaml:"provider" json:"provider"`
	// URL is the (secret) ICS feed address for ProviderICS.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
	// CalendarID / AccessToken are used by ProviderGoogle. The access token is
	// obtained out of band; token exchange is not handled here.
	CalendarID  string `yaml:"calendar_id,omitempty" json:"calendar_id,omitempty"`
	AccessToken string `yaml:"access_token,omitempty" json:"-"`
}

// BrokerConfig enables the RabbitMQ listener that invalidates caches when the
// CRM publishes appointment changes.
type BrokerConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled" env:"CRMCAL_BROKER_ENABLED"`
	URL      string `yaml:"url" json:"-" env:"CRMCAL_BROKER_URL"`
	Queue    string `yaml:"queue" json:"queue" env:"CRMCAL_BROKER_QUEUE"`
	Exchange string `yaml:"exchange" json:"exchange" env:"CRMCAL_BROKER_EXCHANGE"`
	Binding  string `yaml:"binding" json:"binding" env:"CRMCAL_BROKER_BINDING"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API. Auth is off
// unless both fields are set.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username" env:"CRMCAL_BASIC_AUTH_USERNAME"`
	Password string `yaml:"password" json:"-" env:"CRMCAL_BASIC_AUTH_PASSWORD"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen" env:"CRMCAL_LISTEN"`

	// Timezone is the IANA zone calendar days are computed in.
	Timezone string `yaml:"timezone" json:"timezone" env:"CRMCAL_TIMEZONE"`

	// WeekStart is "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start" env:"CRMCAL_WEEK_START"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level" json:"log_level" env:"CRMCAL_LOG_LEVEL"`

	CRM       CRMConfig       `yaml:"crm" json:"crm"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Sync      SyncConfig      `yaml:"sync" json:"sync"`
	Accounts  []AccountConfig `yaml:"accounts" json:"accounts"`
	Broker    BrokerConfig    `yaml:"broker" json:"broker"`
	BasicAuth BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:    "127.0.0.1:8080",
		Timezone:  "UTC",
		WeekStart: "monday",
		LogLevel:  "info",
		CRM: CRMConfig{
			BaseURL: "http://127.0.0.1:8000/api",
			Timeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Size:            256,
			AppointmentsTTL: 30 * time.Second,
			CurrenciesTTL:   time.Hour,
			StatusesTTL:     30 * time.Minute,
			EntitiesTTL:     5 * time.Minute,
		},
		Sync: SyncConfig{
			Cron:        "*/15 * * * *",
			CacheDir:    "./var/ics-cache",
			HorizonDays: 62,
		},
		Accounts: []AccountConfig{},
		Broker: BrokerConfig{
			Queue:    "crmcal.cache",
			Exchange: "crm.events",
			Binding:  "crm.crmcal.#",
		},
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = d.WeekStart
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.CRM.Timeout <= 0 {
		c.CRM.Timeout = d.CRM.Timeout
	}
	if c.Cache.Size <= 0 {
		c.Cache.Size = d.Cache.Size
	}
	if c.Cache.AppointmentsTTL <= 0 {
		c.Cache.AppointmentsTTL = d.Cache.AppointmentsTTL
	}
	if c.Cache.CurrenciesTTL <= 0 {
		c.Cache.CurrenciesTTL = d.Cache.CurrenciesTTL
	}
	if c.Cache.StatusesTTL <= 0 {
		c.Cache.StatusesTTL = d.Cache.StatusesTTL
	}
	if c.Cache.EntitiesTTL <= 0 {
		c.Cache.EntitiesTTL = d.Cache.EntitiesTTL
	}
	if c.Sync.Cron == "" {
		c.Sync.Cron = d.Sync.Cron
	}
	if c.Sync.CacheDir == "" {
		c.Sync.CacheDir = d.Sync.CacheDir
	}
	if c.Sync.HorizonDays <= 0 {
		c.Sync.HorizonDays = d.Sync.HorizonDays
	}
	if c.Accounts == nil {
		c.Accounts = []AccountConfig{}
	}
	if c.Broker.Queue == "" {
		c.Broker.Queue = d.Broker.Queue
	}
	if c.Broker.Exchange == "" {
		c.Broker.Exchange = d.Broker.Exchange
	}
	if c.Broker.Binding == "" {
		c.Broker.Binding = d.Broker.Binding
	}
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Account returns the linked account with the given id.
func (c *Config) Account(id string) (AccountConfig, bool) {
	for _, a := range c.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return AccountConfig{}, false
}

// Validate reports settings that cannot work at all.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	if c.CRM.BaseURL == "" {
		return errors.New("crm.base_url is required")
	}
	if c.Broker.Enabled && c.Broker.URL == "" {
		return errors.New("broker.url is required when the broker is enabled")
	}
	seen := make(map[string]bool, len(c.Accounts))
	for _, a := range c.Accounts {
		if a.ID == "" {
			return errors.New("account id is empty")
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate account id %q", a.ID)
		}
		seen[a.ID] = true
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the provider-specific fields of a linked account.
func (a AccountConfig) Validate() error {
	switch a.Provider {
	case ProviderICS:
		if a.URL == "" {
			return fmt.Errorf("account %q: url is required for ics", a.ID)
		}
	case ProviderGoogle:
		if a.AccessToken == "" {
			return fmt.Errorf("account %q: access_token is required for google", a.ID)
		}
	default:
		return fmt.Errorf("account %q: unknown provider %q", a.ID, a.Provider)
	}
	return nil
}

// Load loads configuration from the given YAML path and applies CRMCAL_*
// environment overrides.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600 perms
//     and returned.
//   - Otherwise the YAML is read, environment overrides applied and defaults
//     normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	var cfg *Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run: create default config file.
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			// Even if save fails, return cfg with error so caller can decide.
			return cfg, err
		}
	case err != nil:
		return nil, err
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes cfg to path atomically (temp file + rename, 0600 perms).
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".crmcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// UpdateAccounts rewrites only the accounts list of the file at path. The
// file is re-read without environment overrides so secrets supplied through
// the environment are never persisted.
func UpdateAccounts(path string, update func([]AccountConfig) ([]AccountConfig, error)) error {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err == nil {
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	accounts, err := update(append([]AccountConfig(nil), cfg.Accounts...))
	if err != nil {
		return err
	}
	cfg.Accounts = accounts
	return Save(path, cfg)
}

// Save is a convenience method on Config that delegates to Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
