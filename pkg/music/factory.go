package music

import (
	"fmt"
	"strings"
	"time"

	"lyricsync/pkg/lrclib"
	"lyricsync/pkg/netease"
)

// FactoryConfig 创建提供商所需的配置
type FactoryConfig struct {
	SearchURL  string
	LyricURL   string
	LRCLibURL  string
	Cookie     string
	Timeout    time.Duration
	MaxRetries int
}

// CreateProvider 创建音乐提供商客户端
func CreateProvider(provider Provider, cfg FactoryConfig) (MusicAPI, error) {
	switch provider {
	case ProviderNetEase:
		return netease.NewClient(netease.Options{
			SearchURL:  cfg.SearchURL,
			LyricURL:   cfg.LyricURL,
			Cookie:     cfg.Cookie,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		}), nil
	case ProviderLRCLib:
		return lrclib.NewClient(cfg.LRCLibURL, cfg.Timeout, cfg.MaxRetries), nil
	default:
		return nil, fmt.Errorf("unknown music provider: %s", provider)
	}
}

// CreateManager 按配置的顺序创建管理器，未知的名称会被跳过
func CreateManager(names []string, cfg FactoryConfig) (*Manager, error) {
	var providers []MusicAPI
	for _, name := range names {
		p, err := GetProviderByName(name)
		if err != nil {
			logger().Warn().Err(err).Msg("Skipping provider")
			continue
		}
		provider, err := CreateProvider(p, cfg)
		if err != nil {
			logger().Warn().Err(err).Str("provider", string(p)).Msg("Failed to create provider")
			continue
		}
		providers = append(providers, provider)
	}

	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	return NewManager(providers), nil
}

// GetProviderByName 根据名称获取提供商
func GetProviderByName(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "netease", "网易云", "163":
		return ProviderNetEase, nil
	case "lrclib":
		return ProviderLRCLib, nil
	default:
		return "", fmt.Errorf("unknown provider name: %s", name)
	}
}
