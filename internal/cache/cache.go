// Package cache keeps encoded thumbnails and known-bad URLs in memory for the duration of a run.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Config contains cache configuration.
type Config struct {
	// ThumbCacheSizeMB caps the encoded thumbnail cache; 0 disables it.
	ThumbCacheSizeMB int
	ThumbTTL         time.Duration
	// FailedURLs is the capacity of the failed URL cache; 0 disables it.
	FailedURLs int
}

// Manager manages the thumbnail and failed URL caches. A nil *Manager is valid and caches nothing.
type Manager struct {
	thumbs *bigcache.BigCache
	failed *lru.Cache[string, string]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{}

	if cfg.ThumbCacheSizeMB > 0 {
		ttl := cfg.ThumbTTL
		if ttl <= 0 {
			ttl = time.Hour
		}
		thumbCfg := bigcache.Config{
			Shards:             64,
			LifeWindow:         ttl,
			CleanWindow:        ttl / 2,
			MaxEntriesInWindow: 50000,
			MaxEntrySize:       64 * 1024, // typical 512px webp
			HardMaxCacheSize:   cfg.ThumbCacheSizeMB,
			Verbose:            false,
		}
		thumbs, err := bigcache.New(context.Background(), thumbCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create thumbnail cache: %w", err)
		}
		m.thumbs = thumbs
	}

	if cfg.FailedURLs > 0 {
		failed, err := lru.New[string, string](cfg.FailedURLs)
		if err != nil {
			return nil, fmt.Errorf("failed to create failed url cache: %w", err)
		}
		m.failed = failed
	}

	return m, nil
}

// GetThumb returns the encoded thumbnail previously produced for url.
func (m *Manager) GetThumb(url string) ([]byte, bool) {
	if m == nil || m.thumbs == nil {
		return nil, false
	}
	data, err := m.thumbs.Get(thumbKey(url))
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetThumb stores an encoded thumbnail.
func (m *Manager) SetThumb(url string, data []byte) error {
	if m == nil || m.thumbs == nil {
		return nil
	}
	return m.thumbs.Set(thumbKey(url), data)
}

// MarkFailed remembers that url could not be turned into a thumbnail.
func (m *Manager) MarkFailed(url, reason string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.Add(url, reason)
}

// IsFailed reports whether url failed earlier in this run, and why.
func (m *Manager) IsFailed(url string) (string, bool) {
	if m == nil || m.failed == nil {
		return "", false
	}
	return m.failed.Get(url)
}

func thumbKey(url string) string {
	return "thumb:" + url
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]int {
	stats := map[string]int{}
	if m == nil {
		return stats
	}
	if m.thumbs != nil {
		stats["thumb_cache_len"] = m.thumbs.Len()
		stats["thumb_cache_cap"] = m.thumbs.Capacity()
		s := m.thumbs.Stats()
		stats["thumb_cache_hits"] = int(s.Hits)
		stats["thumb_cache_misses"] = int(s.Misses)
	}
	if m.failed != nil {
		stats["failed_urls"] = m.failed.Len()
	}
	return stats
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	if m == nil || m.thumbs == nil {
		return nil
	}
	return m.thumbs.Close()
}
