package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics 解密性能指标收集器
type Metrics struct {
	FilesProcessed int64
	FilesSucceeded int64
	FilesFailed    int64

	BytesDecrypted  int64
	DecryptDuration int64 // 纳秒

	CoverCacheHits   int64
	CoverCacheMisses int64
	CoverFetches     int64
}

var Global = &Metrics{}

func (m *Metrics) RecordFile(err error) {
	atomic.AddInt64(&m.FilesProcessed, 1)
	if err != nil {
		atomic.AddInt64(&m.FilesFailed, 1)
	} else {
		atomic.AddInt64(&m.FilesSucceeded, 1)
	}
}

func (m *Metrics) RecordDecryption(d time.Duration, n int64) {
	atomic.AddInt64(&m.DecryptDuration, int64(d))
	atomic.AddInt64(&m.BytesDecrypted, n)
}

func (m *Metrics) RecordCoverCacheHit()  { atomic.AddInt64(&m.CoverCacheHits, 1) }
func (m *Metrics) RecordCoverCacheMiss() { atomic.AddInt64(&m.CoverCacheMisses, 1) }
func (m *Metrics) RecordCoverFetch()     { atomic.AddInt64(&m.CoverFetches, 1) }

// Snapshot 指标快照，供 --stats 输出
type Snapshot struct {
	FilesProcessed   int64         `json:"files_processed"`
	FilesSucceeded   int64         `json:"files_succeeded"`
	FilesFailed      int64         `json:"files_failed"`
	BytesDecrypted   int64         `json:"bytes_decrypted"`
	DecryptDuration  time.Duration `json:"decrypt_duration"`
	ThroughputMBps   float64       `json:"throughput_mbps"`
	CoverCacheHits   int64         `json:"cover_cache_hits"`
	CoverCacheMisses int64         `json:"cover_cache_misses"`
	CoverFetches     int64         `json:"cover_fetches"`
}

func (m *Metrics) GetSnapshot() Snapshot {
	s := Snapshot{
		FilesProcessed:   atomic.LoadInt64(&m.FilesProcessed),
		FilesSucceeded:   atomic.LoadInt64(&m.FilesSucceeded),
		FilesFailed:      atomic.LoadInt64(&m.FilesFailed),
		BytesDecrypted:   atomic.LoadInt64(&m.BytesDecrypted),
		DecryptDuration:  time.Duration(atomic.LoadInt64(&m.DecryptDuration)),
		CoverCacheHits:   atomic.LoadInt64(&m.CoverCacheHits),
		CoverCacheMisses: atomic.LoadInt64(&m.CoverCacheMisses),
		CoverFetches:     atomic.LoadInt64(&m.CoverFetches),
	}
	if secs := s.DecryptDuration.Seconds(); secs > 0 {
		s.ThroughputMBps = float64(s.BytesDecrypted) / (1024 * 1024) / secs
	}
	return s
}
