package lyriccache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"lyricsync/internal/lyrics"
)

// KV is the subset of pkg/redis.Client used by RedisBackend.
type KV interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisBackend stores lines as JSON so several daemons can share lookups.
type RedisBackend struct {
	kv  KV
	ttl time.Duration
}

type storedLine struct {
	MS   int64  `json:"ms"`
	Text string `json:"text"`
}

func NewRedisBackend(kv KV, ttl time.Duration) *RedisBackend {
	return &RedisBackend{kv: kv, ttl: ttl}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]lyrics.Line, bool, error) {
	data, ok, err := b.kv.GetBytes(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}

	var stored []storedLine
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached lyrics: %w", err)
	}

	// entries may come from another writer; lookups need time order
	lines := make([]lyrics.Line, 0, len(stored))
	for _, s := range stored {
		if s.MS < 0 {
			continue
		}
		lines = append(lines, lyrics.Line{Time: time.Duration(s.MS) * time.Millisecond, Text: s.Text})
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Time < lines[j].Time })
	return lines, len(lines) > 0, nil
}

func (b *RedisBackend) Put(ctx context.Context, key string, lines []lyrics.Line) error {
	stored := make([]storedLine, len(lines))
	for i, l := range lines {
		stored[i] = storedLine{MS: l.Time.Milliseconds(), Text: l.Text}
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode lyrics: %w", err)
	}
	return b.kv.Set(ctx, key, data, b.ttl)
}
