package netease

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"ncmdump.dev/cli/internal/cache"
	"ncmdump.dev/cli/internal/metrics"
)

const songDetailAPI = "https://music.163.com/api/song/detail/?ids=[%d]"

// hiResParam asks the image CDN for a 3000x3000 rendition.
const hiResParam = "?param=3000y3000"

// Fetcher retrieves higher-resolution album art than the container embeds.
// Requests are rate limited and results are cached; the fetcher is safe for
// concurrent use by the batch workers.
type Fetcher struct {
	client  *http.Client
	limiter *RateLimiter
	cache   *cache.CoverCache // may be nil
	logger  *zap.Logger
}

func NewFetcher(coverCache *cache.CoverCache, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 5,
			},
		},
		limiter: NewRateLimiter(10, time.Second),
		cache:   coverCache,
		logger:  logger,
	}
}

// Close releases the fetcher's rate limiter goroutine. The fetcher must
// not be used afterwards.
func (f *Fetcher) Close() {
	f.limiter.Close()
}

// FetchCover resolves and downloads album art. musicID drives a song-detail
// API lookup for the canonical URL; fallbackURL is the one embedded in the
// container metadata. Returns nil bytes when nothing could be fetched.
func (f *Fetcher) FetchCover(ctx context.Context, musicID int, fallbackURL string) ([]byte, error) {
	url := fallbackURL
	if musicID > 0 {
		if apiURL, err := f.resolveCoverURL(ctx, musicID); err == nil && apiURL != "" {
			url = apiURL
		} else if err != nil {
			f.logger.Debug("song detail lookup failed, using embedded cover url",
				zap.Int("musicId", musicID), zap.Error(err))
		}
	}
	if url == "" {
		return nil, nil
	}

	if f.cache != nil {
		if data, ok := f.cache.Get(url); ok {
			metrics.Global.RecordCoverCacheHit()
			return data, nil
		}
		metrics.Global.RecordCoverCacheMiss()
	}

	data, err := f.download(ctx, url)
	if err != nil {
		// the CDN sometimes rejects the bare URL but serves a sized one
		data, err = f.download(ctx, url+hiResParam)
	}
	if err != nil {
		return nil, err
	}

	metrics.Global.RecordCoverFetch()
	if f.cache != nil {
		f.cache.Put(url, data)
	}
	return data, nil
}

func (f *Fetcher) resolveCoverURL(ctx context.Context, musicID int) (string, error) {
	body, err := f.download(ctx, fmt.Sprintf(songDetailAPI, musicID))
	if err != nil {
		return "", err
	}

	var detail struct {
		Songs []struct {
			Album struct {
				PicURL string `json:"picUrl"`
			} `json:"album"`
		} `json:"songs"`
	}
	if err := json.Unmarshal(body, &detail); err != nil {
		return "", fmt.Errorf("parse song detail: %w", err)
	}
	if len(detail.Songs) == 0 {
		return "", fmt.Errorf("song %d not found", musicID)
	}
	return detail.Songs[0].Album.PicURL, nil
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote returned %d for %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}

// RateLimiter is a token bucket refilled every interval. Close stops the
// refill goroutine; a closed limiter hands out no further tokens.
type RateLimiter struct {
	tokens    chan struct{}
	interval  time.Duration
	done      chan struct{}
	closeOnce sync.Once
}

func NewRateLimiter(rate int, interval time.Duration) *RateLimiter {
	rl := &RateLimiter{
		tokens:   make(chan struct{}, rate),
		interval: interval,
		done:     make(chan struct{}),
	}
	for i := 0; i < rate; i++ {
		rl.tokens <- struct{}{}
	}
	go rl.refill(rate)
	return rl
}

func (rl *RateLimiter) Wait(ctx context.Context) error {
	select {
	case <-rl.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) refill(rate int) {
	ticker := time.NewTicker(rl.interval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			for i := 0; i < rate; i++ {
				select {
				case rl.tokens <- struct{}{}:
				default:
				}
			}
		}
	}
}
