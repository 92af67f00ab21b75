// Package lyriccache holds the lyric stores consulted by the resolution
// chain: the CloudMusic client's on-disk lyric cache and the in-process cache
// of remote results.
package lyriccache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lyricsync/internal/lyrics"
)

// LocalStore reads lyric files written by the CloudMusic client. Each file is
// named by the md5 hex digest of the track id and holds a JSON document with
// the LRC text under lrc.lyric.
type LocalStore struct {
	Dir    string
	logger zerolog.Logger
}

type lyricFile struct {
	Lrc struct {
		Lyric string `json:"lyric"`
	} `json:"lrc"`
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{
		Dir:    dir,
		logger: log.With().Str("component", "local-lyrics").Logger(),
	}
}

// FileName returns the cache file name used for trackID.
func FileName(trackID string) string {
	sum := md5.Sum([]byte(trackID))
	return hex.EncodeToString(sum[:])
}

// Load returns the parsed lines for trackID. Any missing or malformed piece
// yields (nil, false).
func (s *LocalStore) Load(trackID string) ([]lyrics.Line, bool) {
	if s.Dir == "" || trackID == "" {
		return nil, false
	}

	path := filepath.Join(s.Dir, FileName(trackID))
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Debug().Err(err).Str("track_id", trackID).Msg("Failed to read lyric file")
		}
		return nil, false
	}

	var doc lyricFile
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Debug().Err(err).Str("path", path).Msg("Malformed lyric file")
		return nil, false
	}
	if strings.TrimSpace(doc.Lrc.Lyric) == "" {
		return nil, false
	}

	lines := lyrics.Parse(doc.Lrc.Lyric)
	if len(lines) == 0 {
		return nil, false
	}
	return lines, true
}
