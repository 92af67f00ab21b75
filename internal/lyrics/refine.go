package lyrics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lyricsync/pkg/ai"
)

// SongInfo is what the model extracts from a raw media title.
type SongInfo struct {
	IsSong bool   `json:"is_song"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

func formatQuerySong(title, artist string) string {
	media := title
	if artist != "" {
		media = fmt.Sprintf("%s (发布者: %s)", title, artist)
	}
	return fmt.Sprintf(`请精确地按照以下JSON格式提取歌曲信息: {"is_song": true, "title": "歌曲标题", "artist": "演唱者"}。  输入是一个媒体标题，如果标题中包含歌曲信息，请返回符合格式的JSON；否则，返回{"is_song": false}。 请注意，"title" 和 "artist" 必须准确，否则将被视为错误，切记不要任何markdown格式。 媒体标题是：%s`, media)
}

// Refiner turns noisy media titles such as "Artist - Song (Official Video)"
// into a clean title and artist using a text model. Answers are memoized per
// raw query; failures are not.
type Refiner struct {
	model   ai.AiInterface
	timeout time.Duration
	retries int

	mu   sync.Mutex
	memo map[string]SongInfo

	logger zerolog.Logger
}

func NewRefiner(model ai.AiInterface) *Refiner {
	return &Refiner{
		model:   model,
		timeout: 10 * time.Second,
		retries: 1,
		memo:    make(map[string]SongInfo),
		logger:  log.With().Str("component", "refiner").Str("model", model.Name()).Logger(),
	}
}

// Refine returns the extracted song info, or false when the model says the
// media is not a song or could not be reached.
func (r *Refiner) Refine(ctx context.Context, title, artist string) (SongInfo, bool) {
	key := title + "|" + artist

	r.mu.Lock()
	info, ok := r.memo[key]
	r.mu.Unlock()
	if ok {
		return info, info.IsSong
	}

	info, err := r.ask(ctx, title, artist)
	if err != nil {
		r.logger.Warn().Err(err).Str("title", title).Msg("Failed to refine query")
		return SongInfo{}, false
	}

	r.mu.Lock()
	r.memo[key] = info
	r.mu.Unlock()

	return info, info.IsSong
}

func (r *Refiner) ask(ctx context.Context, title, artist string) (SongInfo, error) {
	prompt := formatQuerySong(title, artist)

	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return SongInfo{}, err
		}

		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		raw, err := r.model.HandleText(callCtx, prompt)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}

		info, err := parseSongInfo(raw)
		if err != nil {
			lastErr = err
			continue
		}
		return info, nil
	}
	return SongInfo{}, fmt.Errorf("model %s failed after %d attempts: %w", r.model.Name(), r.retries+1, lastErr)
}

func parseSongInfo(raw string) (SongInfo, error) {
	var info SongInfo
	if err := json.Unmarshal([]byte(ai.StripCodeFence(raw)), &info); err != nil {
		return SongInfo{}, fmt.Errorf("failed to parse model response: %w", err)
	}
	info.Title = strings.TrimSpace(info.Title)
	info.Artist = strings.TrimSpace(info.Artist)
	if info.Title == "" {
		info.IsSong = false
	}
	return info, nil
}
