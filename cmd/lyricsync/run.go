package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"lyricsync/internal/app"
	"lyricsync/internal/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run the lyric daemon",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.New(ctx, config.NewStore(cfg))
	return a.Run(ctx)
}
