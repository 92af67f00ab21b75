// Package trackindex maps now-playing titles to stable track ids using the
// local CloudMusic track database.
package trackindex

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Record is one track loaded from the source.
type Record struct {
	ID      string
	Title   string
	Artists []string
}

// Row is a raw (id, json) pair as stored in the source table.
type Row struct {
	ID   string
	JSON string
}

// Source provides the raw track table and a modification time used to decide
// when the index is stale.
type Source interface {
	Name() string
	ModTime() (time.Time, error)
	Rows(ctx context.Context) ([]Row, error)
}

// Stats summarizes the loaded index.
type Stats struct {
	Titles  int
	Records int
	ModTime time.Time
	Loaded  bool
}

type snapshot struct {
	byTitle map[string][]Record
	records int
	modTime time.Time
}

type dbTrack struct {
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
}

// Index is safe for concurrent use. Loads are serialized; lookups read an
// immutable snapshot that a rebuild swaps in whole.
type Index struct {
	source Source
	norm   *Normalizer
	logger zerolog.Logger

	loadMu sync.Mutex
	snap   atomic.Pointer[snapshot]
}

func New(source Source, norm *Normalizer) *Index {
	if norm == nil {
		norm = &Normalizer{}
	}
	return &Index{
		source: source,
		norm:   norm,
		logger: log.With().Str("component", "track-index").Logger(),
	}
}

// EnsureLoaded rebuilds the index when nothing is loaded yet or the source's
// modification time moved. Failures keep whatever was loaded before.
func (x *Index) EnsureLoaded(ctx context.Context) {
	x.loadMu.Lock()
	defer x.loadMu.Unlock()

	modTime, err := x.source.ModTime()
	if err != nil {
		x.logger.Debug().Err(err).Str("source", x.source.Name()).Msg("Track source unavailable")
		return
	}

	cur := x.snap.Load()
	if cur != nil && cur.modTime.Equal(modTime) {
		return
	}

	rows, err := x.source.Rows(ctx)
	if err != nil {
		x.logger.Warn().Err(err).Str("source", x.source.Name()).Msg("Failed to load track index, keeping previous")
		return
	}

	next := x.build(rows)
	next.modTime = modTime
	x.snap.Store(next)

	x.logger.Info().
		Int("titles", len(next.byTitle)).
		Int("tracks", next.records).
		Str("source", x.source.Name()).
		Msg("Track index loaded")
}

func (x *Index) build(rows []Row) *snapshot {
	byTitle := make(map[string][]Record)
	count := 0
	for _, row := range rows {
		if strings.TrimSpace(row.ID) == "" || strings.TrimSpace(row.JSON) == "" {
			continue
		}

		var track dbTrack
		if err := json.Unmarshal([]byte(row.JSON), &track); err != nil {
			continue
		}
		title := strings.TrimSpace(track.Name)
		if title == "" {
			continue
		}

		artists := make([]string, 0, len(track.Artists))
		for _, a := range track.Artists {
			if name := strings.TrimSpace(a.Name); name != "" {
				artists = append(artists, name)
			}
		}

		key := x.norm.Key(title)
		byTitle[key] = append(byTitle[key], Record{ID: row.ID, Title: title, Artists: artists})
		count++
	}
	return &snapshot{byTitle: byTitle, records: count}
}

// Resolve maps a title and optional artist string to a track id.
//
// With several candidates for the title, each one is scored by how many of
// its artists appear in the query's artist parts. A candidate whose artists
// are all present wins outright. Otherwise the best score wins, which may be
// a partial match. Candidates without artists are only used when nothing
// else is available.
func (x *Index) Resolve(title, artist string) (string, bool) {
	snap := x.snap.Load()
	if snap == nil {
		return "", false
	}

	candidates := snap.byTitle[x.norm.Key(title)]
	if len(candidates) == 0 {
		return "", false
	}
	if len(candidates) == 1 || strings.TrimSpace(artist) == "" {
		return candidates[0].ID, true
	}

	wanted := make(map[string]struct{})
	for _, part := range SplitArtists(artist) {
		wanted[x.norm.Key(part)] = struct{}{}
	}

	var best *Record
	bestScore := -1
	for i := range candidates {
		c := &candidates[i]
		if len(c.Artists) == 0 {
			if best == nil {
				best = c
			}
			continue
		}

		score := 0
		for _, a := range c.Artists {
			if _, ok := wanted[x.norm.Key(a)]; ok {
				score++
			}
		}
		if score == len(c.Artists) {
			return c.ID, true
		}
		if score > bestScore {
			bestScore = score
			best = c
		}
	}

	if best == nil {
		return "", false
	}
	return best.ID, true
}

func (x *Index) Stats() Stats {
	snap := x.snap.Load()
	if snap == nil {
		return Stats{}
	}
	return Stats{
		Titles:  len(snap.byTitle),
		Records: snap.records,
		ModTime: snap.modTime,
		Loaded:  true,
	}
}
