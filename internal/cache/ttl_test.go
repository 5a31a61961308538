package cache

import (
	"testing"
	"time"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func TestTTLExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	c, err := NewTTL[string, int](10, time.Minute)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.Now = clock.Now

	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %v, %v", v, ok)
	}

	clock.now = clock.now.Add(59 * time.Second)
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("entry expired too early")
	}

	clock.now = clock.now.Add(time.Second)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("entry should expire after ttl")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be evicted on read, len=%d", c.Len())
	}
}

func TestTTLSizeBound(t *testing.T) {
	c, err := NewTTL[int, string](2, time.Hour)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.Set(1, "one")
	c.Set(2, "two")
	c.Set(3, "three")
	if _, ok := c.Get(1); ok {
		t.Fatalf("least recently used entry should be evicted")
	}
	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	c.Purge()
	if c.Len() != 0 {
		t.Fatalf("purge left %d entries", c.Len())
	}
}

func TestTTLNilIsDisabled(t *testing.T) {
	var c *TTL[string, int]
	c.Set("a", 1)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("nil cache must always miss")
	}
}
