package lyrics

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lyricsync/pkg/music"
)

// ErrNoLyrics reports a definitive miss: the lookup completed and found no
// timed lyrics.
var ErrNoLyrics = errors.New("no timed lyrics")

// Cache stores remote results by exact title and artist.
type Cache interface {
	Get(title, artist string) ([]Line, bool)
	Put(title, artist string, lines []Line)
}

// Remote fetches lyrics from the configured music APIs, consulting the cache
// first.
type Remote struct {
	api     music.InfoLyricsFetcher
	cache   Cache
	refiner *Refiner
	logger  zerolog.Logger
}

// NewRemote returns a Remote. cache and refiner may be nil.
func NewRemote(api music.InfoLyricsFetcher, cache Cache, refiner *Refiner) *Remote {
	return &Remote{
		api:     api,
		cache:   cache,
		refiner: refiner,
		logger:  log.With().Str("component", "remote-lyrics").Logger(),
	}
}

// Fetch returns timed lines for q. ErrNoLyrics means the providers answered
// and had nothing usable; any other error is transient and worth retrying.
func (r *Remote) Fetch(ctx context.Context, q Query) ([]Line, error) {
	if q.Title == "" {
		return nil, ErrNoLyrics
	}
	if r.cache != nil {
		if lines, ok := r.cache.Get(q.Title, q.Artist); ok && len(lines) > 0 {
			return lines, nil
		}
	}

	lines, err := r.fetch(ctx, q.Title, q.Artist, q.Duration.Seconds())

	if errors.Is(err, ErrNoLyrics) && r.refiner != nil && ctx.Err() == nil {
		if info, ok := r.refiner.Refine(ctx, q.Title, q.Artist); ok && (info.Title != q.Title || info.Artist != q.Artist) {
			r.logger.Debug().
				Str("title", info.Title).
				Str("artist", info.Artist).
				Msg("Retrying with refined query")
			lines, err = r.fetch(ctx, info.Title, info.Artist, q.Duration.Seconds())
		}
	}
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Put(q.Title, q.Artist, lines)
	}
	return lines, nil
}

func (r *Remote) fetch(ctx context.Context, title, artist string, duration float64) ([]Line, error) {
	blob, err := r.api.GetLyricsByInfo(ctx, title, artist, duration)
	if err != nil {
		if music.IsNotFound(err) {
			r.logger.Debug().Err(err).Str("title", title).Str("artist", artist).Msg("No remote lyrics")
			return nil, ErrNoLyrics
		}
		if !errors.Is(err, context.Canceled) {
			r.logger.Debug().Err(err).Str("title", title).Str("artist", artist).Msg("Remote lyric lookup failed")
		}
		return nil, err
	}

	lines := Parse(blob)
	if len(lines) == 0 {
		r.logger.Debug().Str("title", title).Msg("Remote returned lyrics without timed lines")
		return nil, ErrNoLyrics
	}
	return lines, nil
}
