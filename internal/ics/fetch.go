package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	appLog "crmcal/internal/log"
)

// maxFeedSize caps a single ICS download.
const maxFeedSize = 32 << 20

// Source is one ICS feed of a linked calendar account.
type Source struct {
	// ID is the linked account ID; it becomes the Source of every appointment.
	ID string
	// URL is the (usually secret) feed address.
	URL string
}

// Feed is the body of a fetched source.
type Feed struct {
	Source    Source
	Body      []byte
	FromCache bool // body reused after a 304 or a failed request
}

// validators is the on-disk HTTP cache metadata of one feed.
type validators struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads ICS feeds with conditional requests and keeps the last
// good body on disk, so a flaky calendar provider never blanks the overlay.
type Fetcher struct {
	client   *http.Client
	cacheDir string
	log      appLog.Logger
}

// NewFetcher creates a Fetcher caching under cacheDir (one subdirectory per
// feed URL hash).
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	return &Fetcher{
		client:   &http.Client{Timeout: 15 * time.Second},
		cacheDir: cacheDir,
		log:      appLog.With("module", "ics"),
	}
}

// Fetch returns the current body of src, honoring ETag/Last-Modified and
// falling back to the cached body on network errors or non-OK statuses.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (Feed, error) {
	if src.URL == "" {
		return Feed{}, errors.New("ics: source URL is empty")
	}

	dir := f.dirFor(src.URL)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Feed{}, err
	}
	meta, _ := readValidators(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, "body.ics"))

	fallback := func(reason error) (Feed, error) {
		if len(cached) == 0 {
			return Feed{}, reason
		}
		f.log.Warn("ics fetch failed, using cached body", "id", src.ID, "url", RedactURL(src.URL), "reason", reason)
		return Feed{Source: src, Body: cached, FromCache: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return Feed{}, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fallback(fmt.Errorf("ics: fetch %s: %w", src.ID, err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
		if err != nil {
			return fallback(fmt.Errorf("ics: read %s: %w", src.ID, err))
		}
		next := validators{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := writeCache(dir, next, body); err != nil {
			f.log.Error("ics cache save failed", err, "id", src.ID)
		}
		f.log.Debug("ics fetched", "id", src.ID, "bytes", len(body))
		return Feed{Source: src, Body: body}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return Feed{}, errors.New("ics: 304 Not Modified without a cached body")
		}
		f.log.Debug("ics not modified", "id", src.ID)
		return Feed{Source: src, Body: cached, FromCache: true}, nil

	default:
		return fallback(fmt.Errorf("ics: fetch %s: %s", src.ID, resp.Status))
	}
}

func (f *Fetcher) dirFor(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func readValidators(dir string) (validators, error) {
	var v validators
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return v, err
	}
	err = json.Unmarshal(data, &v)
	return v, err
}

func writeCache(dir string, v validators, body []byte) error {
	// Body first so the metadata never points at a missing body.
	if err := os.WriteFile(filepath.Join(dir, "body.ics"), body, 0o600); err != nil {
		return err
	}
	v.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600)
}

// RedactURL keeps only scheme and host of a feed URL for logging; feed paths
// and query strings usually embed secrets.
func RedactURL(u string) string {
	i := strings.Index(u, "://")
	if i < 0 {
		return "ics://...(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	return u[:i+3] + rest + "/...(redacted)"
}
