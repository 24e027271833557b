package store

import (
	"bytes"
	"strings"
	"testing"

	"github.com/plyght/clay-plyght/internal/digest"
)

func TestProjectCachePutAndGet(t *testing.T) {
	c := NewProjectCache(t.TempDir())
	const body = "tarball-bytes"
	sum, _, err := digest.SHA1Hex(strings.NewReader(body))
	if err != nil {
		t.Fatalf("SHA1Hex: %v", err)
	}
	if err := c.Put("left-pad", "1.3.0", []byte(body)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	data, ok, err := c.Get("left-pad", "1.3.0", sum)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false; want true")
	}
	if !bytes.Equal(data, []byte(body)) {
		t.Fatalf("Get() data = %q; want %q", data, body)
	}
}

func TestProjectCacheMissOnDigestMismatchEvicts(t *testing.T) {
	c := NewProjectCache(t.TempDir())
	if err := c.Put("left-pad", "1.3.0", []byte("tampered")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	_, ok, err := c.Get("left-pad", "1.3.0", "0000000000000000000000000000000000000000")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Fatal("Get() ok = true for mismatched digest; want false")
	}
	if _, ok, _ := c.Get("left-pad", "1.3.0", "0000000000000000000000000000000000000000"); ok {
		t.Fatal("evicted entry still present on second Get()")
	}
}

func TestProjectCacheInfoAndClear(t *testing.T) {
	c := NewProjectCache(t.TempDir())
	if err := c.Put("left-pad", "1.3.0", []byte("abc")); err != nil {
		t.Fatalf("Put(left-pad): %v", err)
	}
	if err := c.Put("left-pad", "1.2.0", []byte("abcd")); err != nil {
		t.Fatalf("Put(left-pad old): %v", err)
	}
	entries, err := c.CacheInfo()
	if err != nil {
		t.Fatalf("CacheInfo() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("CacheInfo() returned %d entries; want 2", len(entries))
	}
	if err := c.CacheClear(); err != nil {
		t.Fatalf("CacheClear() error = %v", err)
	}
	entries, err = c.CacheInfo()
	if err != nil {
		t.Fatalf("CacheInfo() after clear error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("CacheInfo() after clear returned %d entries; want 0", len(entries))
	}
}
