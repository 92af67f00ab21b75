package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LOCALAPPDATA", "")
	t.Setenv("XDG_DATA_HOME", "/data")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	s := cfg.Settings()
	if !s.ShowMediaPlayer || s.PollInterval != DefaultPollInterval || s.TimelineOffset != DefaultTimelineOffset || s.RetryInterval != DefaultRetryInterval {
		t.Errorf("unexpected default settings %+v", s)
	}
	if cfg.App.TickInterval != DefaultTickInterval || cfg.Remote.Timeout != DefaultRemoteTimeout {
		t.Errorf("unexpected defaults %+v %+v", cfg.App, cfg.Remote)
	}
	if len(cfg.Remote.Providers) != 2 || cfg.Remote.Providers[0] != "netease" {
		t.Errorf("unexpected providers %v", cfg.Remote.Providers)
	}
	if cfg.Lyrics.IndexPath != filepath.Join("/data", "NetEase", "CloudMusic", "Library", "webdb.dat") {
		t.Errorf("unexpected index path %q", cfg.Lyrics.IndexPath)
	}
	if cfg.Lyrics.CacheDir != filepath.Join("/data", "NetEase", "CloudMusic", "Temp") {
		t.Errorf("unexpected cache dir %q", cfg.Lyrics.CacheDir)
	}
}

func TestLoadOverlay(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[app]
tick_interval = "250ms"
http_addr = "127.0.0.1:7070"

[lyrics]
timeline_offset = "-500ms"
poll_interval = "not a duration"
cloudmusic_dir = "/cm"
fold_chinese = true

[remote]
providers = ["lrclib"]
max_retries = 2

[redis]
addr = "localhost:6379"
ttl = "24h"

[display]
show_media_player = false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.App.TickInterval != 250*time.Millisecond || cfg.App.HTTPAddr != "127.0.0.1:7070" {
		t.Errorf("app not applied: %+v", cfg.App)
	}
	if cfg.Lyrics.TimelineOffset != -500*time.Millisecond {
		t.Errorf("expected negative offset, got %v", cfg.Lyrics.TimelineOffset)
	}
	if cfg.Lyrics.PollInterval != DefaultPollInterval {
		t.Errorf("invalid duration should keep default, got %v", cfg.Lyrics.PollInterval)
	}
	if !cfg.Lyrics.FoldChinese || cfg.Lyrics.IndexPath != filepath.Join("/cm", "Library", "webdb.dat") {
		t.Errorf("lyrics not applied: %+v", cfg.Lyrics)
	}
	if len(cfg.Remote.Providers) != 1 || cfg.Remote.MaxRetries != 2 {
		t.Errorf("remote not applied: %+v", cfg.Remote)
	}
	if cfg.Redis.TTL != 24*time.Hour || cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("redis not applied: %+v", cfg.Redis)
	}
	if cfg.Settings().ShowMediaPlayer {
		t.Error("show_media_player=false not applied")
	}
}

func TestLoadMalformed(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "[app\nsocket_path = ")
	if _, err := Load(path); err == nil {
		t.Error("expected a parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LYRICSYNC_PROVIDERS", " lrclib , netease ,")
	t.Setenv("LYRICSYNC_SHOW_MEDIA_PLAYER", "false")
	t.Setenv("NETEASE_COOKIE", "MUSIC_U=abc")
	t.Setenv("LYRICSYNC_PLAYER_BACKEND", "playerctl")

	path := writeConfig(t, t.TempDir(), "[remote]\ncookie = \"from-file\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Remote.Providers) != 2 || cfg.Remote.Providers[0] != "lrclib" || cfg.Remote.Providers[1] != "netease" {
		t.Errorf("providers = %v", cfg.Remote.Providers)
	}
	if cfg.Display.ShowMediaPlayer {
		t.Error("env should disable the media player")
	}
	if cfg.Remote.Cookie != "MUSIC_U=abc" {
		t.Errorf("cookie = %q", cfg.Remote.Cookie)
	}
	if cfg.Player.Backend != "playerctl" {
		t.Errorf("backend = %q", cfg.Player.Backend)
	}
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("LYRICSYNC_TEST_DOTENV=loaded\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LYRICSYNC_TEST_DOTENV", "")
	os.Unsetenv("LYRICSYNC_TEST_DOTENV")

	LoadDotenv(envFile, filepath.Join(dir, "absent.env"))
	if got := os.Getenv("LYRICSYNC_TEST_DOTENV"); got != "loaded" {
		t.Errorf("expected value from .env, got %q", got)
	}
}

func TestStoreWatch(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "[lyrics]\npoll_interval = \"1s\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	store := NewStore(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	go store.Watch(ctx, func(c *Config) { reloaded <- c })

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	writeConfig(t, dir, "[lyrics]\npoll_interval = \"2s\"\n")

	select {
	case c := <-reloaded:
		if c.Lyrics.PollInterval != 2*time.Second {
			t.Errorf("reloaded poll interval = %v", c.Lyrics.PollInterval)
		}
		if store.Settings().PollInterval != 2*time.Second {
			t.Error("store not updated")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("config was not reloaded")
	}
}
