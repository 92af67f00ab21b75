package app

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"lyricsync/internal/config"
	"lyricsync/internal/lyriccache"
	"lyricsync/internal/lyrics"
	"lyricsync/internal/player"
	"lyricsync/internal/trackindex"
	"lyricsync/pkg/ai"
	"lyricsync/pkg/ai/gemini"
	"lyricsync/pkg/ai/openai"
	"lyricsync/pkg/music"
	"lyricsync/pkg/redis"
)

// closers collects resources to release in reverse order.
type closers []io.Closer

func (c *closers) add(cl io.Closer) {
	*c = append(*c, cl)
}

func (c closers) Close() error {
	for i := len(c) - 1; i >= 0; i-- {
		c[i].Close()
	}
	return nil
}

type closeFunc func()

func (f closeFunc) Close() error {
	f()
	return nil
}

// NewProvider returns the configured session provider. When the session bus
// is not reachable the mpris backend falls back to playerctl.
func NewProvider(backend string) (player.Provider, io.Closer) {
	if backend == "playerctl" {
		return player.NewPlayerctlProvider(), closers{}
	}

	p, err := player.NewMPRISProvider()
	if err != nil {
		log.Warn().Err(err).Msg("MPRIS unavailable, falling back to playerctl")
		return player.NewPlayerctlProvider(), closers{}
	}
	return p, p
}

// NewTrackIndex builds the index over the CloudMusic track database.
func NewTrackIndex(cfg *config.Config) *trackindex.Index {
	return trackindex.New(
		trackindex.NewSQLiteSource(cfg.Lyrics.IndexPath),
		trackindex.NewNormalizer(cfg.Lyrics.FoldChinese),
	)
}

// NewResolver wires the resolution chain: track index, local lyric files and
// the remote providers with their cache and optional refiner. Missing pieces
// are logged and skipped.
func NewResolver(ctx context.Context, cfg *config.Config) (*lyrics.Resolver, io.Closer) {
	var res closers

	index := NewTrackIndex(cfg)

	var local lyrics.LocalStore
	if cfg.Lyrics.CacheDir != "" {
		if _, err := os.Stat(cfg.Lyrics.CacheDir); err != nil {
			log.Warn().Err(err).Str("cache_dir", cfg.Lyrics.CacheDir).Msg("Lyric cache directory not available")
		}
		local = lyriccache.NewLocalStore(cfg.Lyrics.CacheDir)
	}

	var backend lyriccache.Backend
	if cfg.Redis.Addr != "" {
		rc, err := redis.NewClient(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, using in-process cache only")
		} else {
			res.add(rc)
			backend = lyriccache.NewRedisBackend(rc, cfg.Redis.TTL)
			log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis lyric cache enabled")
		}
	}

	var remote lyrics.RemoteFetcher
	manager, err := music.CreateManager(cfg.Remote.Providers, music.FactoryConfig{
		SearchURL:  cfg.Remote.SearchURL,
		LyricURL:   cfg.Remote.LyricURL,
		LRCLibURL:  cfg.Remote.LRCLibURL,
		Cookie:     cfg.Remote.Cookie,
		Timeout:    cfg.Remote.Timeout,
		MaxRetries: cfg.Remote.MaxRetries,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Remote lyrics disabled")
	} else {
		log.Info().Strs("providers", manager.GetProviderNames()).Msg("Remote lyric providers")
		var refiner *lyrics.Refiner
		if model := newModel(ctx, cfg.AI, &res); model != nil {
			refiner = lyrics.NewRefiner(model)
		}
		remote = lyrics.NewRemote(manager, lyriccache.NewRemoteCache(backend), refiner)
	}

	return lyrics.NewResolver(index, local, remote), res
}

func newModel(ctx context.Context, cfg config.AIConfig, res *closers) ai.AiInterface {
	if cfg.APIKey == "" {
		return nil
	}
	switch cfg.ModuleName {
	case "gemini":
		g, err := gemini.NewGemini(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create Gemini client, query refinement disabled")
			return nil
		}
		res.add(closeFunc(func() { g.Close() }))
		return g
	case "openai":
		return openai.NewOpenAi(cfg.APIKey, cfg.Model, cfg.BaseURL)
	default:
		log.Warn().Str("module", cfg.ModuleName).Msg("Unknown AI module, query refinement disabled")
		return nil
	}
}
