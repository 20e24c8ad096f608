// Package cache holds short-lived lookups of remote data.
package cache

import (
	"sync"
	"time"

	"spotisync/pkg/models"
)

type entry[V any] struct {
	value   V
	expires time.Time
}

func (e entry[V]) expiredAt(now time.Time) bool {
	return now.After(e.expires)
}

// TTL maps keys to values that expire ttl after they were stored. Expired
// values are never returned; a background sweep evicts them until Close.
type TTL[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	ttl     time.Duration
	now     func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a cache and starts its sweep
func New[K comparable, V any](ttl time.Duration) *TTL[K, V] {
	c := &TTL[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     ttl,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweep(sweepInterval(ttl))
	return c
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > 5*time.Minute {
		return 5 * time.Minute
	}
	return ttl
}

func (c *TTL[K, V]) Put(key K, value V) {
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Lookup returns the live value for key
func (c *TTL[K, V]) Lookup(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	now := c.now()
	c.mu.RUnlock()

	if !ok || e.expiredAt(now) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *TTL[K, V]) Forget(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Reset drops every entry
func (c *TTL[K, V]) Reset() {
	c.mu.Lock()
	c.entries = make(map[K]entry[V])
	c.mu.Unlock()
}

// Len counts stored entries, including expired ones not yet swept
func (c *TTL[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the sweep. It is safe to call more than once.
func (c *TTL[K, V]) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *TTL[K, V]) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			c.evict()
		}
	}
}

func (c *TTL[K, V]) evict() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if e.expiredAt(now) {
			delete(c.entries, k)
		}
	}
}

// PlaylistCache keeps playlist metadata by playlist ID. Track lists are
// never cached: every pass must see the current remote state.
type PlaylistCache struct {
	*TTL[string, models.PlaylistInfo]
}

func NewPlaylistCache(ttl time.Duration) *PlaylistCache {
	return &PlaylistCache{TTL: New[string, models.PlaylistInfo](ttl)}
}

// SetInfo stores a copy of info
func (pc *PlaylistCache) SetInfo(playlistID string, info *models.PlaylistInfo) {
	if info == nil {
		return
	}
	pc.Put(playlistID, *info)
}

// GetInfo returns a copy of the cached metadata
func (pc *PlaylistCache) GetInfo(playlistID string) (*models.PlaylistInfo, bool) {
	info, ok := pc.Lookup(playlistID)
	if !ok {
		return nil, false
	}
	return &info, true
}
