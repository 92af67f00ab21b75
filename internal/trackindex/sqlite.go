package trackindex

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const defaultTrackQuery = "SELECT id, jsonStr FROM dbTrack"

// SQLiteSource reads the track table of the CloudMusic client's webdb.dat.
// The database is opened read-only per load; the client may hold a write
// lock, which the busy timeout waits out briefly before giving up.
type SQLiteSource struct {
	Path        string
	Query       string
	BusyTimeout time.Duration
}

func NewSQLiteSource(path string) *SQLiteSource {
	return &SQLiteSource{
		Path:        path,
		Query:       defaultTrackQuery,
		BusyTimeout: 2 * time.Second,
	}
}

func (s *SQLiteSource) Name() string { return s.Path }

func (s *SQLiteSource) ModTime() (time.Time, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (s *SQLiteSource) dsn() string {
	q := url.Values{}
	q.Set("mode", "ro")
	q.Set("cache", "shared")
	q.Set("_busy_timeout", fmt.Sprint(s.BusyTimeout.Milliseconds()))
	return "file:" + s.Path + "?" + q.Encode()
}

func (s *SQLiteSource) Rows(ctx context.Context) ([]Row, error) {
	db, err := sql.Open("sqlite3", s.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open track database: %w", err)
	}
	defer db.Close()

	query := s.Query
	if query == "" {
		query = defaultTrackQuery
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		var id, blob sql.NullString
		if err := rows.Scan(&id, &blob); err != nil {
			// odd column types in a single row should not sink the whole load
			continue
		}
		if !id.Valid || !blob.Valid {
			continue
		}
		result = append(result, Row{ID: id.String, JSON: blob.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tracks: %w", err)
	}
	return result, nil
}
