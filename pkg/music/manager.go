package music

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lyricsync/pkg/lrclib"
	"lyricsync/pkg/netease"
)

// Provider 音乐提供商类型
type Provider string

const (
	// ProviderNetEase 网易云音乐
	ProviderNetEase Provider = "netease"
	// ProviderLRCLib LRCLib歌词库
	ProviderLRCLib Provider = "lrclib"
)

// ErrNoProviders 没有配置任何提供商
var ErrNoProviders = errors.New("no music providers available")

// logger 在调用时从全局 log.Logger 派生，以便使用启动时配置的输出
func logger() *zerolog.Logger {
	l := log.With().Str("component", "music-manager").Logger()
	return &l
}

// Manager 音乐API管理器，按顺序回退
type Manager struct {
	providers []MusicAPI
	primary   MusicAPI
}

// NewManager 创建新的音乐API管理器
func NewManager(providers []MusicAPI) *Manager {
	if len(providers) == 0 {
		logger().Warn().Msg("No music providers configured")
		return &Manager{}
	}

	primary := providers[0]
	logger().Info().
		Int("provider_count", len(providers)).
		Str("primary_provider", primary.GetProviderName()).
		Msg("Music API Manager initialized")

	return &Manager{
		providers: providers,
		primary:   primary,
	}
}

// SearchSong 搜索歌曲，支持多提供商回退
func (m *Manager) SearchSong(ctx context.Context, title, artist string) (string, error) {
	if len(m.providers) == 0 {
		return "", ErrNoProviders
	}

	var errs []error
	for _, provider := range m.providers {
		songID, err := provider.SearchSong(ctx, title, artist)
		if err == nil && songID != "" {
			return songID, nil
		}
		errs = append(errs, providerErr(provider, err))
	}
	return "", fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}

// GetLyrics 获取歌词，支持多提供商回退
func (m *Manager) GetLyrics(ctx context.Context, songID string) (string, error) {
	if len(m.providers) == 0 {
		return "", ErrNoProviders
	}

	var errs []error
	for _, provider := range m.providers {
		lyrics, err := provider.GetLyrics(ctx, songID)
		if err == nil && strings.TrimSpace(lyrics) != "" {
			return lyrics, nil
		}
		errs = append(errs, providerErr(provider, err))
	}
	return "", fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}

// GetLyricsByInfo 根据歌曲信息获取歌词：先搜索ID再取歌词，取不到时按标题和歌手直接获取
func (m *Manager) GetLyricsByInfo(ctx context.Context, title, artist string, duration float64) (string, error) {
	if len(m.providers) == 0 {
		return "", ErrNoProviders
	}

	var errs []error
	for i, provider := range m.providers {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		name := provider.GetProviderName()
		logger().Debug().
			Str("title", title).
			Str("artist", artist).
			Str("provider", name).
			Int("attempt", i+1).
			Int("total_providers", len(m.providers)).
			Msg("Trying to get lyrics")

		lyrics, err := m.fromProvider(ctx, provider, title, artist, duration)
		if err == nil {
			logger().Info().
				Str("title", title).
				Str("artist", artist).
				Str("provider", name).
				Msg("Successfully got lyrics")
			return lyrics, nil
		}

		logger().Debug().Str("provider", name).Err(err).Msg("Provider failed")
		errs = append(errs, providerErr(provider, err))
	}

	return "", fmt.Errorf("all providers failed to get lyrics for '%s - %s': %w", title, artist, errors.Join(errs...))
}

func (m *Manager) fromProvider(ctx context.Context, provider MusicAPI, title, artist string, duration float64) (string, error) {
	var byIDErr error
	songID, err := provider.SearchSong(ctx, title, artist)
	if err == nil && songID != "" {
		lyrics, err := provider.GetLyrics(ctx, songID)
		if err == nil && strings.TrimSpace(lyrics) != "" {
			return lyrics, nil
		}
		byIDErr = fmt.Errorf("lyrics for song %s: %w", songID, orEmpty(err))
	} else {
		byIDErr = fmt.Errorf("search: %w", orEmpty(err))
	}

	fetcher, ok := provider.(InfoLyricsFetcher)
	if !ok {
		return "", byIDErr
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	lyrics, err := fetcher.GetLyricsByInfo(ctx, title, artist, duration)
	if err == nil && strings.TrimSpace(lyrics) != "" {
		return lyrics, nil
	}
	return "", errors.Join(byIDErr, fmt.Errorf("by info: %w", orEmpty(err)))
}

// GetProviderName 获取管理器名称（实现MusicAPI接口）
func (m *Manager) GetProviderName() string {
	if m.primary != nil {
		return fmt.Sprintf("Manager[Primary: %s]", m.primary.GetProviderName())
	}
	return "Manager[No Providers]"
}

// GetProviderNames 获取所有提供商名称
func (m *Manager) GetProviderNames() []string {
	names := make([]string, len(m.providers))
	for i, provider := range m.providers {
		names[i] = provider.GetProviderName()
	}
	return names
}

var errEmptyResult = errors.New("empty result")

// IsNotFound 判断错误是否表示所有提供商都确认没有歌词，而不是网络等临时故障。
// 组合错误（errors.Join）要求每个分支都是"没有结果"。
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs := joined.Unwrap()
		if len(errs) == 0 {
			return false
		}
		for _, e := range errs {
			if !IsNotFound(e) {
				return false
			}
		}
		return true
	}
	switch err {
	case errEmptyResult, netease.ErrNotFound, lrclib.ErrNotFound:
		return true
	}
	return IsNotFound(errors.Unwrap(err))
}

func orEmpty(err error) error {
	if err == nil {
		return errEmptyResult
	}
	return err
}

func providerErr(provider MusicAPI, err error) error {
	return fmt.Errorf("%s: %w", provider.GetProviderName(), orEmpty(err))
}
