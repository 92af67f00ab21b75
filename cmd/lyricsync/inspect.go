package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"lyricsync/internal/app"
	"lyricsync/internal/lyrics"
	"lyricsync/internal/player"
)

var (
	// flags for resolve
	resolveTitle    string
	resolveArtist   string
	resolveDuration time.Duration
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "list media sessions and the one that would be shown",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, closer := app.NewProvider(cfg.Player.Backend)
		defer closer.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		sessions, err := provider.Sessions(ctx)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		if len(sessions) == 0 {
			fmt.Printf("no media sessions found (%s)\n", provider.Name())
			return nil
		}

		chosen, _ := player.Select(sessions, "")
		fmt.Printf("found %d session(s) via %s:\n\n", len(sessions), provider.Name())
		for _, s := range sessions {
			mark := " "
			if s.AppID == chosen.AppID {
				mark = "*"
			}
			fmt.Printf("%s %-20s %-8s %s - %s  [%s / %s]\n",
				mark, s.AppID, s.Status, s.Title, s.Artist,
				s.Position.Truncate(time.Second), s.End.Truncate(time.Second))
		}
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "run the lyric resolution chain once",
	RunE: func(cmd *cobra.Command, args []string) error {
		if resolveTitle == "" {
			return fmt.Errorf("--title is required")
		}

		resolver, closer := app.NewResolver(cmd.Context(), cfg)
		defer closer.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		res := resolver.Resolve(ctx, lyrics.Query{
			Title:    resolveTitle,
			Artist:   resolveArtist,
			Duration: resolveDuration,
		})
		fmt.Printf("track: %s\nsource: %s\ntransient: %t\nlines: %d\n\n", res.TrackID, res.Source, res.Transient, len(res.Lines))
		printLines(res.Lines)
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "load the local track index and print stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		index := app.NewTrackIndex(cfg)
		index.EnsureLoaded(cmd.Context())

		stats := index.Stats()
		if !stats.Loaded {
			return fmt.Errorf("track index not available at %s", cfg.Lyrics.IndexPath)
		}
		fmt.Printf("source:   %s\nmodified: %s\ntitles:   %d\ntracks:   %d\n",
			cfg.Lyrics.IndexPath, stats.ModTime.Format(time.RFC3339), stats.Titles, stats.Records)
		return nil
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "parse an LRC file and print its timed lines",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		lines := lyrics.Parse(string(data))
		if len(lines) == 0 {
			return fmt.Errorf("no timed lines in %s", args[0])
		}
		printLines(lines)
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveTitle, "title", "t", "", "track title")
	resolveCmd.Flags().StringVarP(&resolveArtist, "artist", "a", "", "track artist")
	resolveCmd.Flags().DurationVarP(&resolveDuration, "duration", "d", 0, "track duration, e.g. 3m25s")
}

func printLines(lines []lyrics.Line) {
	for _, l := range lines {
		fmt.Printf("[%02d:%05.2f] %s\n", int(l.Time.Minutes()), (l.Time % time.Minute).Seconds(), l.Text)
	}
}
