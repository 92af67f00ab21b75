package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lyricsync/internal/app"
	"lyricsync/internal/config"
)

var (
	// global flags
	configPath string
	logLevel   string

	// loaded in PersistentPreRunE
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "lyricsync",
	Short: "synchronized lyrics for the desktop's now-playing track",
	Long: `lyricsync watches the desktop's media players, resolves synchronized
lyrics for the current track and pushes the active line to display clients.

when run without a subcommand, it starts the daemon.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.LoadDotenv()
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		app.SetupLogger(cfg.Log, logLevel)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd, args)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/lyricsync/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd, sessionsCmd, resolveCmd, indexCmd, parseCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
