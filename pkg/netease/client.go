package netease

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSearchURL = "http://music.163.com/api/search/get/web"
	DefaultLyricURL  = "https://api.paugram.com/netease/"
	DefaultTimeout   = 5 * time.Second
)

// ErrNotFound 搜索或歌词接口没有结果
var ErrNotFound = errors.New("netease: not found")

// logger 在调用时从全局 log.Logger 派生，以便使用启动时配置的输出
func logger() *zerolog.Logger {
	l := log.With().Str("component", "netease").Logger()
	return &l
}

// SearchResponse 网易云搜索API响应
type SearchResponse struct {
	Result struct {
		Songs []struct {
			ID      int64  `json:"id"`
			Name    string `json:"name"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
		} `json:"songs"`
	} `json:"result"`
}

// LyricResponse 歌词接口响应，兼容 {"lyric": ...} 和 {"lrc": {"lyric": ...}} 两种格式
type LyricResponse struct {
	Lyric string `json:"lyric"`
	Lrc   struct {
		Lyric string `json:"lyric"`
	} `json:"lrc"`
}

// Text 返回原文歌词
func (r *LyricResponse) Text() string {
	if strings.TrimSpace(r.Lyric) != "" {
		return r.Lyric
	}
	return r.Lrc.Lyric
}

// Options 客户端配置
type Options struct {
	SearchURL  string
	LyricURL   string
	Cookie     string
	Timeout    time.Duration
	MaxRetries int
}

// Client 网易云音乐客户端
type Client struct {
	httpClient     *http.Client
	searchURL      string
	lyricURL       string
	cookie         string
	maxRetries     int
	requestTimeout time.Duration
}

// NewClient 创建新的网易云音乐客户端
func NewClient(opts Options) *Client {
	if opts.SearchURL == "" {
		opts.SearchURL = DefaultSearchURL
	}
	if opts.LyricURL == "" {
		opts.LyricURL = DefaultLyricURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	return &Client{
		httpClient:     &http.Client{Timeout: opts.Timeout},
		searchURL:      opts.SearchURL,
		lyricURL:       opts.LyricURL,
		cookie:         opts.Cookie,
		maxRetries:     opts.MaxRetries,
		requestTimeout: opts.Timeout,
	}
}

// GetProviderName 获取提供商名称
func (c *Client) GetProviderName() string {
	return "netease"
}

// SearchSong 按 "标题 歌手" 搜索，返回歌手匹配的歌曲ID，没有匹配时返回第一首
func (c *Client) SearchSong(ctx context.Context, title, artist string) (string, error) {
	query := strings.TrimSpace(title)
	if query == "" {
		return "", fmt.Errorf("empty title: %w", ErrNotFound)
	}
	if a := strings.TrimSpace(artist); a != "" {
		query += " " + a
	}

	params := url.Values{}
	params.Set("csrf_token", "")
	params.Set("hlpretag", "")
	params.Set("hlposttag", "")
	params.Set("s", query)
	params.Set("type", "1")
	params.Set("offset", "0")
	params.Set("total", "true")
	params.Set("limit", "3")

	var searchResp SearchResponse
	if err := c.getJSON(ctx, c.searchURL+"?"+params.Encode(), &searchResp); err != nil {
		return "", fmt.Errorf("search %q: %w", query, err)
	}

	songID := findBestMatch(searchResp, artist)
	if songID == 0 {
		return "", fmt.Errorf("no songs for %q: %w", query, ErrNotFound)
	}

	logger().Debug().Str("query", query).Int64("song_id", songID).Msg("Search matched")
	return strconv.FormatInt(songID, 10), nil
}

// GetLyrics 根据歌曲ID获取歌词
func (c *Client) GetLyrics(ctx context.Context, songID string) (string, error) {
	params := url.Values{}
	params.Set("id", songID)
	return c.fetchLyric(ctx, params)
}

// GetLyricsByInfo 没有ID时直接按标题和歌手获取歌词
func (c *Client) GetLyricsByInfo(ctx context.Context, title, artist string, _ float64) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", fmt.Errorf("empty title: %w", ErrNotFound)
	}
	params := url.Values{}
	params.Set("title", title)
	if strings.TrimSpace(artist) != "" {
		params.Set("artist", artist)
	}
	return c.fetchLyric(ctx, params)
}

func (c *Client) fetchLyric(ctx context.Context, params url.Values) (string, error) {
	var lyricResp LyricResponse
	if err := c.getJSON(ctx, c.lyricURL+"?"+params.Encode(), &lyricResp); err != nil {
		return "", fmt.Errorf("fetch lyric: %w", err)
	}

	text := lyricResp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty lyric field: %w", ErrNotFound)
	}
	return text, nil
}

func (c *Client) getJSON(ctx context.Context, requestURL string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "lyricsync/1.0")
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.doRequestWithRetry(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRequestWithRetry 对传输错误和5xx重试，4xx直接返回
func (c *Client) doRequestWithRetry(req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*200) * time.Millisecond
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(backoff):
			}
			logger().Debug().Int("attempt", attempt+1).Str("url", req.URL.Redacted()).Msg("Retrying request")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		resp.Body.Close()
		lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("status %d: %w", resp.StatusCode, ErrNotFound)
		}
		if resp.StatusCode < http.StatusInternalServerError {
			return nil, lastErr
		}
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// findBestMatch 找到歌手匹配的歌曲，没有匹配时返回第一首
func findBestMatch(resp SearchResponse, targetArtist string) int64 {
	songs := resp.Result.Songs
	if len(songs) == 0 {
		return 0
	}

	target := strings.ToLower(strings.TrimSpace(targetArtist))
	if target != "" {
		for _, song := range songs {
			for _, artist := range song.Artists {
				name := strings.ToLower(strings.TrimSpace(artist.Name))
				if name == "" {
					continue
				}
				if strings.Contains(name, target) || strings.Contains(target, name) {
					return song.ID
				}
			}
		}
	}

	return songs[0].ID
}
