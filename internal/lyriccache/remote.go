package lyriccache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lyricsync/internal/lyrics"
)

// Backend is an optional shared tier behind the in-process map.
type Backend interface {
	Get(ctx context.Context, key string) ([]lyrics.Line, bool, error)
	Put(ctx context.Context, key string, lines []lyrics.Line) error
}

// RemoteCache remembers lyrics fetched from remote APIs, keyed by the exact
// title and artist. Entries live for the life of the process.
type RemoteCache struct {
	mu      sync.RWMutex
	entries map[string][]lyrics.Line

	backend        Backend
	backendTimeout time.Duration
	logger         zerolog.Logger
}

// NewRemoteCache returns a cache. backend may be nil.
func NewRemoteCache(backend Backend) *RemoteCache {
	return &RemoteCache{
		entries:        make(map[string][]lyrics.Line),
		backend:        backend,
		backendTimeout: 2 * time.Second,
		logger:         log.With().Str("component", "remote-cache").Logger(),
	}
}

// Key joins title and artist into the cache key.
func Key(title, artist string) string {
	return title + "|" + artist
}

func (c *RemoteCache) Get(title, artist string) ([]lyrics.Line, bool) {
	key := Key(title, artist)

	c.mu.RLock()
	lines, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return lines, true
	}

	if c.backend == nil {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.backendTimeout)
	defer cancel()

	lines, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Shared cache lookup failed")
		return nil, false
	}
	if !ok || len(lines) == 0 {
		return nil, false
	}

	c.mu.Lock()
	c.entries[key] = lines
	c.mu.Unlock()
	return lines, true
}

// Put stores non-empty lines. Empty results are never cached so a later
// attempt can still find lyrics.
func (c *RemoteCache) Put(title, artist string, lines []lyrics.Line) {
	if len(lines) == 0 {
		return
	}
	key := Key(title, artist)

	c.mu.Lock()
	c.entries[key] = lines
	c.mu.Unlock()

	if c.backend == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.backendTimeout)
	defer cancel()

	if err := c.backend.Put(ctx, key, lines); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Shared cache write failed")
	}
}

func (c *RemoteCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
