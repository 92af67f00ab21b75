package lrclib

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetLyricsByInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.URL.Query().Get("track_name") {
		case "Song":
			w.Write([]byte(`[
				{"trackName":"Song","artistName":"Other","duration":100,"syncedLyrics":"[00:01.00]other"},
				{"trackName":"Song","artistName":"Artist","duration":240,"plainLyrics":"plain only"},
				{"trackName":"Song (Live)","artistName":"Artist","duration":250,"syncedLyrics":"[00:01.00]live"},
				{"trackName":"Song","artistName":"Artist","duration":201,"syncedLyrics":"[00:01.00]studio"}
			]`))
		case "Plain":
			w.Write([]byte(`[{"trackName":"Plain","artistName":"Artist","plainLyrics":"no timing"}]`))
		default:
			w.Write([]byte(`[]`))
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, 0)
	ctx := context.Background()

	t.Run("DurationPicksStudio", func(t *testing.T) {
		got, err := client.GetLyricsByInfo(ctx, "Song", "Artist", 200)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "[00:01.00]studio" {
			t.Errorf("expected studio lyrics, got %q", got)
		}
	})

	t.Run("NoDurationFirstExact", func(t *testing.T) {
		got, err := client.GetLyricsByInfo(ctx, "Song", "Artist", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "[00:01.00]live" {
			t.Errorf("expected first exact synced match, got %q", got)
		}
	})

	t.Run("PlainOnlyIsNotFound", func(t *testing.T) {
		_, err := client.GetLyricsByInfo(ctx, "Plain", "Artist", 0)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("GetLyricsByCompositeID", func(t *testing.T) {
		id, err := client.SearchSong(ctx, "Song", "Artist")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, err := client.GetLyrics(ctx, id)
		if err != nil || got == "" {
			t.Errorf("expected lyrics via composite id, got %q, %v", got, err)
		}
	})
}
