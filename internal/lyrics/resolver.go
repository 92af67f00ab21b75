package lyrics

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Query identifies the track to resolve.
type Query struct {
	Title    string
	Artist   string
	Duration time.Duration
}

type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
	SourceNone   Source = "none"
)

// Result of a resolution. Lines may be empty.
type Result struct {
	TrackID string
	Lines   []Line
	Source  Source
	// Transient is set when the remote lookup failed rather than came back
	// empty, so the track should be retried soon.
	Transient bool
}

type TrackIndex interface {
	EnsureLoaded(ctx context.Context)
	Resolve(title, artist string) (string, bool)
}

type LocalStore interface {
	Load(trackID string) ([]Line, bool)
}

// RemoteFetcher returns ErrNoLyrics for a definitive miss; other errors are
// transient.
type RemoteFetcher interface {
	Fetch(ctx context.Context, q Query) ([]Line, error)
}

// Resolver runs the resolution chain: track index, then the local lyric
// file for the resolved id, then the remote fetcher.
type Resolver struct {
	index  TrackIndex
	local  LocalStore
	remote RemoteFetcher
	logger zerolog.Logger
}

// NewResolver builds a chain; any stage may be nil to skip it.
func NewResolver(index TrackIndex, local LocalStore, remote RemoteFetcher) *Resolver {
	return &Resolver{
		index:  index,
		local:  local,
		remote: remote,
		logger: log.With().Str("component", "resolver").Logger(),
	}
}

// RemoteTrackID is the identity given to tracks known only to the remote API,
// stable per title and artist.
func RemoteTrackID(title, artist string) string {
	return "API_" + base64.StdEncoding.EncodeToString([]byte(title+"|"+artist))
}

func (r *Resolver) Resolve(ctx context.Context, q Query) Result {
	var trackID string
	if r.index != nil {
		r.index.EnsureLoaded(ctx)
		if id, ok := r.index.Resolve(q.Title, q.Artist); ok {
			trackID = id
		}
	}

	if trackID != "" && r.local != nil {
		if lines, ok := r.local.Load(trackID); ok && len(lines) > 0 {
			return Result{TrackID: trackID, Lines: lines, Source: SourceLocal}
		}
		r.logger.Debug().Str("track_id", trackID).Msg("No local lyrics for track")
	}

	if ctx.Err() != nil {
		return Result{TrackID: trackID, Source: SourceNone, Transient: true}
	}

	if r.remote != nil {
		lines, err := r.remote.Fetch(ctx, q)
		if err == nil && len(lines) > 0 {
			if trackID == "" {
				trackID = RemoteTrackID(q.Title, q.Artist)
			}
			return Result{TrackID: trackID, Lines: lines, Source: SourceRemote}
		}
		if err != nil && !errors.Is(err, ErrNoLyrics) {
			return Result{TrackID: trackID, Source: SourceNone, Transient: true}
		}
	}

	return Result{TrackID: trackID, Source: SourceNone}
}
