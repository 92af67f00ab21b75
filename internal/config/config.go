package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSocketPath     = "/tmp/lyricsync.sock"
	DefaultStatusFile     = "/tmp/lyrics"
	DefaultTickInterval   = 500 * time.Millisecond
	DefaultPollInterval   = 300 * time.Millisecond
	DefaultRetryInterval  = 15 * time.Second
	DefaultTimelineOffset = 1700 * time.Millisecond
	DefaultRemoteTimeout  = 5 * time.Second
	DefaultI3blocksSignal = 55

	envPrefix = "LYRICSYNC_"
)

// TomlConfig TOML配置文件结构
type TomlConfig struct {
	App struct {
		SocketPath     string `toml:"socket_path"`
		StatusFile     string `toml:"status_file"`
		TickInterval   string `toml:"tick_interval"`
		HTTPAddr       string `toml:"http_addr"`
		I3blocksSignal int    `toml:"i3blocks_signal"`
	} `toml:"app"`

	Player struct {
		Backend string `toml:"backend"`
	} `toml:"player"`

	Lyrics struct {
		PollInterval   string `toml:"poll_interval"`
		RetryInterval  string `toml:"retry_interval"`
		TimelineOffset string `toml:"timeline_offset"`
		CloudMusicDir  string `toml:"cloudmusic_dir"`
		IndexPath      string `toml:"index_path"`
		CacheDir       string `toml:"cache_dir"`
		FoldChinese    *bool  `toml:"fold_chinese"`
	} `toml:"lyrics"`

	Remote struct {
		Providers  []string `toml:"providers"`
		SearchURL  string   `toml:"search_url"`
		LyricURL   string   `toml:"lyric_url"`
		LRCLibURL  string   `toml:"lrclib_url"`
		Timeout    string   `toml:"timeout"`
		MaxRetries int      `toml:"max_retries"`
		Cookie     string   `toml:"cookie"`
	} `toml:"remote"`

	AI struct {
		ModuleName string `toml:"module_name"`
		Model      string `toml:"model"`
		APIKey     string `toml:"api_key"`
		BaseURL    string `toml:"base_url"` // for OpenAI
	} `toml:"ai"`

	Redis struct {
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
		TTL      string `toml:"ttl"`
		Prefix   string `toml:"prefix"`
	} `toml:"redis"`

	Log struct {
		Level      string `toml:"level"`
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
		MaxAgeDays int    `toml:"max_age_days"`
	} `toml:"log"`

	Display struct {
		ShowMediaPlayer *bool `toml:"show_media_player"`
	} `toml:"display"`
}

// AppConfig 应用配置
type AppConfig struct {
	SocketPath     string
	StatusFile     string
	TickInterval   time.Duration
	HTTPAddr       string
	I3blocksSignal int
}

// PlayerConfig 播放器后端, "mpris" 或 "playerctl"
type PlayerConfig struct {
	Backend string
}

// LyricsConfig 本地歌词与同步参数
type LyricsConfig struct {
	PollInterval   time.Duration
	RetryInterval  time.Duration
	TimelineOffset time.Duration
	CloudMusicDir  string
	IndexPath      string
	CacheDir       string
	FoldChinese    bool
}

// RemoteConfig 远程歌词接口
type RemoteConfig struct {
	Providers  []string
	SearchURL  string
	LyricURL   string
	LRCLibURL  string
	Timeout    time.Duration
	MaxRetries int
	Cookie     string
}

// AIConfig AI配置
type AIConfig struct {
	ModuleName string
	Model      string
	APIKey     string
	BaseURL    string
}

// RedisConfig Redis配置, Addr 为空时不启用
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// LogConfig 日志配置, File 为空时只输出到终端
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type DisplayConfig struct {
	ShowMediaPlayer bool
}

// Config 主配置结构
type Config struct {
	Path    string
	App     AppConfig
	Player  PlayerConfig
	Lyrics  LyricsConfig
	Remote  RemoteConfig
	AI      AIConfig
	Redis   RedisConfig
	Log     LogConfig
	Display DisplayConfig
}

// Settings is the per-tick snapshot read by the scheduler.
type Settings struct {
	ShowMediaPlayer bool
	PollInterval    time.Duration
	RetryInterval   time.Duration
	TimelineOffset  time.Duration
}

func (c *Config) Settings() Settings {
	return Settings{
		ShowMediaPlayer: c.Display.ShowMediaPlayer,
		PollInterval:    c.Lyrics.PollInterval,
		RetryInterval:   c.Lyrics.RetryInterval,
		TimelineOffset:  c.Lyrics.TimelineOffset,
	}
}

// DefaultPath 获取配置文件路径
func DefaultPath() string {
	// 优先使用 XDG_CONFIG_HOME 环境变量
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "lyricsync", "config.toml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Warn().Err(err).Msg("Cannot get user home directory")
		return "config.toml" // 回退到当前目录
	}

	return filepath.Join(homeDir, ".config", "lyricsync", "config.toml")
}

// CloudMusicDir guesses where the CloudMusic client keeps its data. The
// first existing candidate wins; otherwise the first candidate is returned.
func CloudMusicDir() string {
	var bases []string
	if local := os.Getenv("LOCALAPPDATA"); local != "" {
		bases = append(bases, local)
	}
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		bases = append(bases, dataHome)
	} else if homeDir, err := os.UserHomeDir(); err == nil {
		bases = append(bases, filepath.Join(homeDir, ".local", "share"))
	}

	var candidates []string
	for _, base := range bases {
		candidates = append(candidates,
			filepath.Join(base, "NetEase", "CloudMusic"),
			filepath.Join(base, "Netease", "CloudMusic"))
	}
	if len(candidates) == 0 {
		return filepath.Join("NetEase", "CloudMusic")
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return candidates[0]
}

func defaults() *Config {
	return &Config{
		App: AppConfig{
			SocketPath:     DefaultSocketPath,
			StatusFile:     DefaultStatusFile,
			TickInterval:   DefaultTickInterval,
			I3blocksSignal: DefaultI3blocksSignal,
		},
		Player: PlayerConfig{Backend: "mpris"},
		Lyrics: LyricsConfig{
			PollInterval:   DefaultPollInterval,
			RetryInterval:  DefaultRetryInterval,
			TimelineOffset: DefaultTimelineOffset,
		},
		Remote: RemoteConfig{
			Providers: []string{"netease", "lrclib"},
			Timeout:   DefaultRemoteTimeout,
		},
		AI: AIConfig{ModuleName: "gemini"},
		Redis: RedisConfig{
			Prefix: "lyricsync:",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Display: DisplayConfig{ShowMediaPlayer: true},
	}
}

// LoadDotenv loads .env files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotenv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", p).Msg("Failed to load env file")
		}
	}
}

// Load reads path (DefaultPath when empty) over the defaults and applies
// environment overrides. A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	var tc TomlConfig
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Info().Str("path", path).Msg("Config file not found, using defaults")
	} else if _, err := toml.DecodeFile(path, &tc); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	} else {
		log.Info().Str("path", path).Msg("Loaded config")
	}

	cfg := defaults()
	cfg.Path = path
	cfg.apply(&tc)
	cfg.applyEnv()
	cfg.fillPaths()
	return cfg, nil
}

func parseDuration(name, value string, target *time.Duration) {
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		log.Warn().Str("key", name).Str("value", value).Msg("Invalid duration, using default")
		return
	}
	*target = d
}

func setString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func (c *Config) apply(tc *TomlConfig) {
	setString(&c.App.SocketPath, tc.App.SocketPath)
	setString(&c.App.StatusFile, tc.App.StatusFile)
	setString(&c.App.HTTPAddr, tc.App.HTTPAddr)
	parseDuration("app.tick_interval", tc.App.TickInterval, &c.App.TickInterval)
	if tc.App.I3blocksSignal != 0 {
		c.App.I3blocksSignal = tc.App.I3blocksSignal
	}

	setString(&c.Player.Backend, tc.Player.Backend)

	parseDuration("lyrics.poll_interval", tc.Lyrics.PollInterval, &c.Lyrics.PollInterval)
	parseDuration("lyrics.retry_interval", tc.Lyrics.RetryInterval, &c.Lyrics.RetryInterval)
	if tc.Lyrics.TimelineOffset != "" {
		// offset may be negative
		if d, err := time.ParseDuration(tc.Lyrics.TimelineOffset); err == nil {
			c.Lyrics.TimelineOffset = d
		} else {
			log.Warn().Str("value", tc.Lyrics.TimelineOffset).Msg("Invalid lyrics.timeline_offset, using default")
		}
	}
	setString(&c.Lyrics.CloudMusicDir, tc.Lyrics.CloudMusicDir)
	setString(&c.Lyrics.IndexPath, tc.Lyrics.IndexPath)
	setString(&c.Lyrics.CacheDir, tc.Lyrics.CacheDir)
	if tc.Lyrics.FoldChinese != nil {
		c.Lyrics.FoldChinese = *tc.Lyrics.FoldChinese
	}

	if len(tc.Remote.Providers) > 0 {
		c.Remote.Providers = tc.Remote.Providers
	}
	setString(&c.Remote.SearchURL, tc.Remote.SearchURL)
	setString(&c.Remote.LyricURL, tc.Remote.LyricURL)
	setString(&c.Remote.LRCLibURL, tc.Remote.LRCLibURL)
	setString(&c.Remote.Cookie, tc.Remote.Cookie)
	parseDuration("remote.timeout", tc.Remote.Timeout, &c.Remote.Timeout)
	if tc.Remote.MaxRetries > 0 {
		c.Remote.MaxRetries = tc.Remote.MaxRetries
	}

	setString(&c.AI.ModuleName, tc.AI.ModuleName)
	setString(&c.AI.Model, tc.AI.Model)
	setString(&c.AI.APIKey, tc.AI.APIKey)
	setString(&c.AI.BaseURL, tc.AI.BaseURL)

	setString(&c.Redis.Addr, tc.Redis.Addr)
	setString(&c.Redis.Password, tc.Redis.Password)
	setString(&c.Redis.Prefix, tc.Redis.Prefix)
	if tc.Redis.DB != 0 {
		c.Redis.DB = tc.Redis.DB
	}
	parseDuration("redis.ttl", tc.Redis.TTL, &c.Redis.TTL)

	setString(&c.Log.Level, tc.Log.Level)
	setString(&c.Log.File, tc.Log.File)
	if tc.Log.MaxSizeMB > 0 {
		c.Log.MaxSizeMB = tc.Log.MaxSizeMB
	}
	if tc.Log.MaxBackups > 0 {
		c.Log.MaxBackups = tc.Log.MaxBackups
	}
	if tc.Log.MaxAgeDays > 0 {
		c.Log.MaxAgeDays = tc.Log.MaxAgeDays
	}

	if tc.Display.ShowMediaPlayer != nil {
		c.Display.ShowMediaPlayer = *tc.Display.ShowMediaPlayer
	}
}

func (c *Config) applyEnv() {
	env := func(key string) string { return os.Getenv(envPrefix + key) }

	setString(&c.App.SocketPath, env("SOCKET_PATH"))
	setString(&c.App.HTTPAddr, env("HTTP_ADDR"))
	setString(&c.Player.Backend, env("PLAYER_BACKEND"))
	setString(&c.Lyrics.CloudMusicDir, env("CLOUDMUSIC_DIR"))
	setString(&c.AI.APIKey, env("AI_API_KEY"))
	setString(&c.Redis.Addr, env("REDIS_ADDR"))
	setString(&c.Redis.Password, env("REDIS_PASSWORD"))
	setString(&c.Log.Level, env("LOG_LEVEL"))
	setString(&c.Log.File, env("LOG_FILE"))
	setString(&c.Remote.Cookie, os.Getenv("NETEASE_COOKIE"))

	if v := env("PROVIDERS"); v != "" {
		var providers []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				providers = append(providers, p)
			}
		}
		if len(providers) > 0 {
			c.Remote.Providers = providers
		}
	}
	if v := env("SHOW_MEDIA_PLAYER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Display.ShowMediaPlayer = b
		} else {
			log.Warn().Str("value", v).Msg("Invalid " + envPrefix + "SHOW_MEDIA_PLAYER")
		}
	}
}

// fillPaths derives the index and cache locations from the CloudMusic
// directory unless they were set explicitly.
func (c *Config) fillPaths() {
	if c.Lyrics.CloudMusicDir == "" {
		c.Lyrics.CloudMusicDir = CloudMusicDir()
	}
	if c.Lyrics.IndexPath == "" {
		c.Lyrics.IndexPath = filepath.Join(c.Lyrics.CloudMusicDir, "Library", "webdb.dat")
	}
	if c.Lyrics.CacheDir == "" {
		c.Lyrics.CacheDir = filepath.Join(c.Lyrics.CloudMusicDir, "Temp")
	}
}
