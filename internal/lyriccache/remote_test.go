package lyriccache

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"lyricsync/internal/lyrics"
)

type fakeBackend struct {
	mu      sync.Mutex
	data    map[string][]lyrics.Line
	gets    int
	puts    int
	failGet bool
	failPut bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{data: make(map[string][]lyrics.Line)}
}

func (f *fakeBackend) Get(ctx context.Context, key string) ([]lyrics.Line, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.failGet {
		return nil, false, errors.New("connection refused")
	}
	lines, ok := f.data[key]
	return lines, ok, nil
}

func (f *fakeBackend) Put(ctx context.Context, key string, lines []lyrics.Line) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.failPut {
		return errors.New("connection refused")
	}
	f.data[key] = lines
	return nil
}

var sample = []lyrics.Line{{Time: time.Second, Text: "Hello"}}

func TestRemoteCacheInProcess(t *testing.T) {
	c := NewRemoteCache(nil)

	if _, ok := c.Get("Song", "Artist"); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Put("Song", "Artist", sample)
	got, ok := c.Get("Song", "Artist")
	if !ok || !reflect.DeepEqual(got, sample) {
		t.Errorf("expected hit, got %v %v", got, ok)
	}

	t.Run("ExactKey", func(t *testing.T) {
		if _, ok := c.Get("song", "Artist"); ok {
			t.Error("keys are exact, expected miss")
		}
		if _, ok := c.Get("Song", ""); ok {
			t.Error("keys include the artist, expected miss")
		}
	})

	t.Run("EmptyNotStored", func(t *testing.T) {
		c.Put("Other", "Artist", nil)
		if c.Len() != 1 {
			t.Errorf("expected 1 entry, got %d", c.Len())
		}
	})
}

func TestRemoteCacheBackend(t *testing.T) {
	t.Run("WriteThrough", func(t *testing.T) {
		b := newFakeBackend()
		c := NewRemoteCache(b)
		c.Put("Song", "Artist", sample)
		if b.puts != 1 || !reflect.DeepEqual(b.data[Key("Song", "Artist")], sample) {
			t.Errorf("expected backend write, got %+v", b.data)
		}
	})

	t.Run("FallThroughAndBackfill", func(t *testing.T) {
		b := newFakeBackend()
		b.data[Key("Song", "Artist")] = sample
		c := NewRemoteCache(b)

		for i := 0; i < 3; i++ {
			if _, ok := c.Get("Song", "Artist"); !ok {
				t.Fatal("expected hit from backend")
			}
		}
		if b.gets != 1 {
			t.Errorf("expected one backend read, got %d", b.gets)
		}
	})

	t.Run("BackendErrorsAreMisses", func(t *testing.T) {
		b := newFakeBackend()
		b.failGet, b.failPut = true, true
		c := NewRemoteCache(b)

		if _, ok := c.Get("Song", "Artist"); ok {
			t.Error("expected miss when backend fails")
		}
		c.Put("Song", "Artist", sample)
		if _, ok := c.Get("Song", "Artist"); !ok {
			t.Error("in-process entry should survive a failed write-through")
		}
	})
}

type memKV struct {
	data map[string][]byte
	ttl  time.Duration
}

func (m *memKV) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok := m.data[key]
	return b, ok, nil
}

func (m *memKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	m.ttl = ttl
	return nil
}

func TestRedisBackend(t *testing.T) {
	kv := &memKV{data: make(map[string][]byte)}
	b := NewRedisBackend(kv, time.Hour)
	ctx := context.Background()

	lines := []lyrics.Line{{Time: 1500 * time.Millisecond, Text: "A"}, {Time: 3 * time.Second, Text: "B"}}
	if err := b.Put(ctx, "k", lines); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if kv.ttl != time.Hour {
		t.Errorf("expected ttl to be passed through, got %v", kv.ttl)
	}

	got, ok, err := b.Get(ctx, "k")
	if err != nil || !ok || !reflect.DeepEqual(got, lines) {
		t.Errorf("Get = %v %v %v", got, ok, err)
	}

	if _, ok, err := b.Get(ctx, "absent"); ok || err != nil {
		t.Errorf("expected clean miss, got %v %v", ok, err)
	}

	kv.data["unsorted"] = []byte(`[{"ms":3000,"text":"B"},{"ms":-5,"text":"neg"},{"ms":1000,"text":"A"},{"ms":3000,"text":"C"}]`)
	got, ok, err = b.Get(ctx, "unsorted")
	want := []lyrics.Line{{Time: time.Second, Text: "A"}, {Time: 3 * time.Second, Text: "B"}, {Time: 3 * time.Second, Text: "C"}}
	if err != nil || !ok || !reflect.DeepEqual(got, want) {
		t.Errorf("expected sorted lines, got %v %v %v", got, ok, err)
	}

	kv.data["bad"] = []byte("not json")
	if _, _, err := b.Get(ctx, "bad"); err == nil {
		t.Error("expected decode error")
	}
}
