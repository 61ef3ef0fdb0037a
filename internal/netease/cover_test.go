package netease

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestFetchCoverFallbackURL(t *testing.T) {
	img := []byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2, 3}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(img)
	}))
	defer srv.Close()

	f := NewFetcher(nil, zap.NewNop())
	got, err := f.FetchCover(context.Background(), 0, srv.URL+"/cover.jpg")
	if err != nil {
		t.Fatalf("FetchCover() error = %v", err)
	}
	if !bytes.Equal(got, img) {
		t.Error("fetched cover differs from served image")
	}
}

func TestFetchCoverHiResRetry(t *testing.T) {
	img := []byte{0xFF, 0xD8, 0xFF}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the bare URL is rejected, the sized variant works
		if r.URL.RawQuery == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write(img)
	}))
	defer srv.Close()

	f := NewFetcher(nil, zap.NewNop())
	got, err := f.FetchCover(context.Background(), 0, srv.URL+"/cover.jpg")
	if err != nil {
		t.Fatalf("FetchCover() error = %v", err)
	}
	if !bytes.Equal(got, img) {
		t.Error("fetched cover differs from served image")
	}
}

func TestFetchCoverNoSource(t *testing.T) {
	f := NewFetcher(nil, zap.NewNop())
	got, err := f.FetchCover(context.Background(), 0, "")
	if got != nil || err != nil {
		t.Errorf("FetchCover() = %v, %v; want nil, nil", got, err)
	}
}

func TestResolveCoverURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"songs":[{"album":{"picUrl":"https://cdn.example.com/album.jpg"}}]}`)
	}))
	defer srv.Close()

	f := NewFetcher(nil, zap.NewNop())
	body, err := f.download(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("download() error = %v", err)
	}
	if !bytes.Contains(body, []byte("picUrl")) {
		t.Error("song detail response not passed through")
	}
}

// After Close the refill goroutine must stop handing out tokens.
func TestRateLimiterClose(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Millisecond)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	rl.Close()
	rl.Close() // idempotent

	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("Wait() after Close error = %v, want DeadlineExceeded", err)
	}
}

func TestFetcherClose(t *testing.T) {
	f := NewFetcher(nil, zap.NewNop())
	f.Close()
	f.Close() // idempotent
}

func TestRateLimiterBlocksWhenExhausted(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("exhausted Wait() error = %v, want DeadlineExceeded", err)
	}
}
