package pipeline

import (
	"fmt"
	"testing"
	"time"

	"spai-hq/gatekeeper/pkg/policy"
)

func neutral(confidence float64) *policy.ClassifierResult {
	return &policy.ClassifierResult{
		SchemaVersion: policy.ClassifierSchemaVersion,
		Label:         policy.LabelNeutral,
		Confidence:    confidence,
	}
}

func TestCacheKey_BucketsByHour(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.Local)
	if got := cacheKey("example.com", "/a", at); got != "example.com|/a|9" {
		t.Errorf("key = %q", got)
	}
	later := at.Add(time.Hour)
	if cacheKey("example.com", "/a", at) == cacheKey("example.com", "/a", later) {
		t.Error("keys in different hours should differ")
	}
}

func TestResultCache_TTL(t *testing.T) {
	clock := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	c := newResultCache(10, 10*time.Minute, func() time.Time { return clock })

	c.put("k", neutral(0.5))
	if _, ok := c.get("k"); !ok {
		t.Fatal("fresh entry should hit")
	}

	clock = clock.Add(9 * time.Minute)
	if _, ok := c.get("k"); !ok {
		t.Error("entry inside TTL should hit")
	}

	clock = clock.Add(time.Minute)
	if _, ok := c.get("k"); ok {
		t.Error("entry at TTL boundary should miss")
	}
}

func TestResultCache_FIFOEviction(t *testing.T) {
	evictions := 0
	c := newResultCache(3, time.Hour, nil)
	c.onEvict = func() { evictions++ }

	for i := 0; i < 3; i++ {
		c.put(fmt.Sprintf("k%d", i), neutral(0.5))
	}

	// Reading k0 must not protect it: eviction is FIFO, not LRU.
	if _, ok := c.get("k0"); !ok {
		t.Fatal("k0 should be cached")
	}

	c.put("k3", neutral(0.5))

	if _, ok := c.get("k0"); ok {
		t.Error("k0 should have been evicted first-in-first-out")
	}
	if _, ok := c.get("k1"); !ok {
		t.Error("k1 should survive")
	}
	if _, ok := c.get("k3"); !ok {
		t.Error("k3 should be cached")
	}
	if evictions != 1 {
		t.Errorf("evictions = %d, want 1", evictions)
	}
	if c.len() != 3 {
		t.Errorf("len = %d, want 3", c.len())
	}
}

func TestResultCache_OverwriteKeepsPosition(t *testing.T) {
	c := newResultCache(2, time.Hour, nil)

	c.put("a", neutral(0.1))
	c.put("b", neutral(0.2))
	c.put("a", neutral(0.9)) // refresh, no size change

	if c.len() != 2 {
		t.Fatalf("len = %d, want 2", c.len())
	}

	// "a" kept its original insertion position, so it is still oldest.
	c.put("c", neutral(0.3))
	if _, ok := c.get("a"); ok {
		t.Error("a should have been evicted as oldest-inserted")
	}
	if _, ok := c.get("b"); !ok {
		t.Error("b should survive")
	}
}
