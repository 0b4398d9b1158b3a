package cache

import (
	"testing"
	"time"

	"github.com/ppiankov/certgrade/internal/model"
)

func TestKey_PartBoundaries(t *testing.T) {
	if Key("ab", "c") == Key("a", "bc") {
		t.Error("Expected different keys for different part boundaries")
	}
	if Key("openai", "prompt") != Key("openai", "prompt") {
		t.Error("Expected stable keys")
	}
}

func TestDiskCache_RoundTripAndExpiry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	key := Key("x")

	if err := c.Set(key, []byte(`[{"property_name":"C"}]`), 0); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	got, ok := c.Get(key)
	if !ok || string(got) != `[{"property_name":"C"}]` {
		t.Errorf("Expected cached payload, got %q (ok=%v)", got, ok)
	}

	if err := c.Set(key, []byte("stale"), time.Nanosecond); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, ok := c.Get(key); ok {
		t.Error("Expected expired entry to miss")
	}

	if err := c.Delete(key); err != nil {
		t.Errorf("Expected deleting a missing entry to succeed, got %v", err)
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	memory := NewMemoryCache(time.Hour, time.Minute)
	disk := NewDiskCache(t.TempDir(), time.Hour)
	layered := NewLayeredCache(memory, disk)

	_ = disk.Set("k", []byte("v"), 0)
	if _, ok := memory.Get("k"); ok {
		t.Fatal("Expected memory miss before promotion")
	}

	if got, ok := layered.Get("k"); !ok || string(got) != "v" {
		t.Fatalf("Expected disk hit, got %q (ok=%v)", got, ok)
	}
	if _, ok := memory.Get("k"); !ok {
		t.Error("Expected disk hit to be promoted to memory")
	}
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	c := NewMemoryCache(time.Hour, time.Minute)
	value := []byte("abc")
	_ = c.Set("k", value, 0)
	value[0] = 'z'

	got, _ := c.Get("k")
	if string(got) != "abc" {
		t.Errorf("Expected stored copy abc, got %s", got)
	}
}

func TestNew(t *testing.T) {
	if New(model.CacheConfig{Enabled: false}) != nil {
		t.Error("Expected nil cache when disabled")
	}
	if _, ok := New(model.CacheConfig{Enabled: true}).(*MemoryCache); !ok {
		t.Error("Expected memory-only cache without a directory")
	}
	if _, ok := New(model.CacheConfig{Enabled: true, Dir: t.TempDir()}).(*LayeredCache); !ok {
		t.Error("Expected layered cache with a directory")
	}
}
