package cache

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"
)

func TestCoverCachePutGet(t *testing.T) {
	c, err := OpenCoverCache(filepath.Join(t.TempDir(), "covers.db"), time.Hour)
	if err != nil {
		t.Fatalf("OpenCoverCache() error = %v", err)
	}
	defer c.Close()

	img := []byte{0xFF, 0xD8, 0xFF, 1, 2, 3}
	c.Put("https://example.com/a.jpg", img)

	got, ok := c.Get("https://example.com/a.jpg")
	if !ok {
		t.Fatal("Get() missed a freshly stored entry")
	}
	if !bytes.Equal(got, img) {
		t.Error("Get() returned different bytes than stored")
	}

	if _, ok := c.Get("https://example.com/missing.jpg"); ok {
		t.Error("Get() hit on a url never stored")
	}
}

func TestCoverCacheExpiry(t *testing.T) {
	c, err := OpenCoverCache(filepath.Join(t.TempDir(), "covers.db"), time.Nanosecond)
	if err != nil {
		t.Fatalf("OpenCoverCache() error = %v", err)
	}
	defer c.Close()

	c.Put("https://example.com/a.jpg", []byte{1})
	time.Sleep(10 * time.Millisecond)

	if _, ok := c.Get("https://example.com/a.jpg"); ok {
		t.Error("Get() returned an expired entry")
	}
}

func TestCoverCacheIgnoresEmpty(t *testing.T) {
	c, err := OpenCoverCache(filepath.Join(t.TempDir(), "covers.db"), time.Hour)
	if err != nil {
		t.Fatalf("OpenCoverCache() error = %v", err)
	}
	defer c.Close()

	c.Put("https://example.com/empty.jpg", nil)
	if _, ok := c.Get("https://example.com/empty.jpg"); ok {
		t.Error("Get() hit on an empty payload that should not be stored")
	}
}
