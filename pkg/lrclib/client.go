package lrclib

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL = "https://lrclib.net/api"
	DefaultTimeout = 5 * time.Second
)

// ErrNotFound 没有找到同步歌词
var ErrNotFound = errors.New("lrclib: not found")

// logger 在调用时从全局 log.Logger 派生，以便使用启动时配置的输出
func logger() *zerolog.Logger {
	l := log.With().Str("component", "lrclib").Logger()
	return &l
}

// Client LRCLib客户端
type Client struct {
	httpClient     *http.Client
	baseURL        string
	requestTimeout time.Duration
	maxRetries     int
}

// LRCLibResponse LRCLib API响应结构
type LRCLibResponse struct {
	ID           int     `json:"id"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental"`
	PlainLyrics  string  `json:"plainLyrics"`
	SyncedLyrics string  `json:"syncedLyrics"`
}

// LRCLibSearchResponse LRCLib API搜索响应（列表）
type LRCLibSearchResponse []LRCLibResponse

// NewClient 创建新的LRCLib客户端
func NewClient(baseURL string, timeout time.Duration, maxRetries int) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        strings.TrimRight(baseURL, "/"),
		requestTimeout: timeout,
		maxRetries:     maxRetries,
	}
}

// GetProviderName 返回提供商名称
func (c *Client) GetProviderName() string {
	return "lrclib"
}

// SearchSong LRCLib直接通过参数搜索，不需要单独的搜索步骤，返回查询参数作为"ID"
func (c *Client) SearchSong(ctx context.Context, title, artist string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", fmt.Errorf("empty title: %w", ErrNotFound)
	}
	return fmt.Sprintf("%s|%s", title, artist), nil
}

// GetLyrics 获取歌词，songID 格式为 title|artist
func (c *Client) GetLyrics(ctx context.Context, songID string) (string, error) {
	title, artist, ok := strings.Cut(songID, "|")
	if !ok {
		return "", fmt.Errorf("invalid song ID format: %s", songID)
	}
	return c.GetLyricsByInfo(ctx, title, artist, 0)
}

// GetLyricsByInfo 直接通过歌曲信息获取同步歌词
func (c *Client) GetLyricsByInfo(ctx context.Context, title, artist string, duration float64) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("track_name", title)
	if artist != "" {
		params.Set("artist_name", artist)
	}
	// 不直接传递 duration 参数，改为在结果中筛选
	searchURL := fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())

	var resp *http.Response
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			logger().Debug().Int("attempt", attempt+1).Msg("Retrying request")
			select {
			case <-timeoutCtx.Done():
				return "", timeoutCtx.Err()
			case <-time.After(time.Duration(attempt*300) * time.Millisecond):
			}
		}

		req, reqErr := http.NewRequestWithContext(timeoutCtx, http.MethodGet, searchURL, nil)
		if reqErr != nil {
			return "", fmt.Errorf("failed to create request: %w", reqErr)
		}
		req.Header.Set("User-Agent", "lyricsync/1.0")

		resp, err = c.httpClient.Do(req)
		if err == nil && resp.StatusCode == http.StatusOK {
			break
		}
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusNotFound {
				return "", fmt.Errorf("status %d: %w", resp.StatusCode, ErrNotFound)
			}
			err = fmt.Errorf("status %d", resp.StatusCode)
		}
		if attempt == c.maxRetries {
			return "", fmt.Errorf("request failed after %d attempts: %w", attempt+1, err)
		}
	}
	defer resp.Body.Close()

	var results LRCLibSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	logger().Debug().Int("results", len(results)).Str("title", title).Str("artist", artist).Msg("Search finished")

	best := findBestMatch(results, title, artist, duration)
	if best == nil || strings.TrimSpace(best.SyncedLyrics) == "" {
		return "", fmt.Errorf("no synced lyrics for '%s - %s': %w", title, artist, ErrNotFound)
	}
	return best.SyncedLyrics, nil
}

// findBestMatch 从有同步歌词的结果中找到最佳匹配
func findBestMatch(responses LRCLibSearchResponse, targetTitle, targetArtist string, targetDuration float64) *LRCLibResponse {
	var exactMatches, titleMatches, synced []*LRCLibResponse
	for i := range responses {
		r := &responses[i]
		if strings.TrimSpace(r.SyncedLyrics) == "" {
			continue
		}
		synced = append(synced, r)

		titleOK := containsIgnoreCase(r.TrackName, targetTitle)
		if titleOK && (targetArtist == "" || containsIgnoreCase(r.ArtistName, targetArtist)) {
			exactMatches = append(exactMatches, r)
		} else if titleOK {
			titleMatches = append(titleMatches, r)
		}
	}

	matchPool := exactMatches
	if len(matchPool) == 0 {
		matchPool = titleMatches
	}
	if len(matchPool) == 0 {
		matchPool = synced
	}
	if len(matchPool) == 0 {
		return nil
	}

	if targetDuration <= 0 {
		return matchPool[0]
	}

	// 在匹配结果中筛选时长最接近的，误差3秒内直接返回
	const maxDurationDiff = 3.0
	best := matchPool[0]
	minDiff := abs(best.Duration - targetDuration)
	for _, m := range matchPool {
		diff := abs(m.Duration - targetDuration)
		if diff <= maxDurationDiff {
			return m
		}
		if diff < minDiff {
			minDiff = diff
			best = m
		}
	}
	return best
}

func abs(n float64) float64 {
	if n < 0 {
		return -n
	}
	return n
}

// containsIgnoreCase 忽略大小写检查包含关系
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
