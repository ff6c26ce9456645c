package cmd

import (
	"fmt"
	"os"

	"github.com/leeineian/jill/sys"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   sys.ProjectName,
	Short: "Discord music bot for a local library",
	Long: `jill plays playlists from a local music folder into Discord voice channels.

Each subdirectory of MUSIC_FOLDER is a playlist of .opus/.ogg files.
Configuration is read from .env and the environment; thresholds can be
tuned in timings.toml.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. It is called by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[FATAL] %v\n", err)
		os.Exit(1)
	}
}
