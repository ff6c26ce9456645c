package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/leeineian/jill/catalog"
	"github.com/leeineian/jill/home"
	"github.com/leeineian/jill/player"
	"github.com/leeineian/jill/proc"
	"github.com/leeineian/jill/store"
	"github.com/leeineian/jill/sys"
	"github.com/spf13/cobra"
)

const (
	pidFile         = ".bot.pid"
	shutdownTimeout = 15 * time.Second

	MsgBotStarting = "Starting %s %s..."
	MsgBotShutdown = "Shutting down %s..."
)

var (
	runSilent  bool
	runSkipReg bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to Discord and serve /music",
	Long: `Connect to Discord and serve the /music command tree.

A previous instance holding the PID file is terminated first. The process
runs in the foreground until SIGINT or SIGTERM, then leaves every voice
channel and flushes state to disk.`,
	RunE: runBot,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runSilent, "silent", false, "Disable all log output")
	runCmd.Flags().BoolVar(&runSkipReg, "skip-reg", false, "Skip command registration")
}

func runBot(cmd *cobra.Command, _ []string) error {
	cfg, err := sys.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	sys.InitLogger(runSilent || cfg.Silent, cfg.LogFile)
	defer sys.CloseLogger()
	sys.LogInfo(MsgBotStarting, sys.ProjectName, version)

	t, err := sys.LoadTimings(cfg.TimingsFile)
	if err != nil {
		return fmt.Errorf("failed to load timings: %w", err)
	}
	t.Presence.AutoPause = t.Presence.AutoPause && cfg.AutoPauseEnabled
	t.Presence.AutoDisconnect = t.Presence.AutoDisconnect && cfg.AutoDisconnectEnabled

	release, err := acquirePIDFile(pidFile)
	if err != nil {
		return err
	}
	defer release()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	lib := catalog.NewLibrary(catalog.NewScanner(cfg.MusicFolder, t.Library, catalog.NewIDAllocator()))
	if playlists, err := lib.Rescan(); err != nil {
		sys.LogWarn("Initial library scan failed: %v", err)
	} else if len(playlists) == 0 {
		sys.LogWarn("No playlists found in %s", cfg.MusicFolder)
	}

	client, err := sys.CreateClient(ctx, cfg)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("failed to create Discord client: %w", err)
	}

	gateway := proc.NewVoiceGateway(client)
	players := player.NewRegistry(player.Deps{
		Voice:   gateway,
		Library: lib,
		Store:   st,
		Timings: t,
		Protect: cfg.SpamProtection,
	})
	home.UseMusic(players, lib)
	proc.RegisterDaemons(players, lib, st, t)
	proc.RegisterStatusRotator(client, players, lib)

	if !runSkipReg {
		if err := sys.RegisterCommands(client, cfg.GuildID, st); err != nil {
			sys.LogError("%v", err)
		}
	} else {
		sys.LogInfo("Skipping command registration as requested.")
	}

	if err := client.OpenGateway(ctx); err != nil {
		_ = st.Close()
		return fmt.Errorf("failed to open gateway: %w", err)
	}

	<-ctx.Done()
	if !runSilent {
		fmt.Println()
	}
	sys.LogInfo(MsgBotShutdown, sys.ProjectName)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	players.Shutdown(shutdownCtx)
	gateway.Shutdown(shutdownCtx)
	sys.ShutdownDaemons()
	if err := st.Close(); err != nil {
		sys.LogError(store.MsgStoreFlushFailed, err)
	}
	client.Close(shutdownCtx)
	return nil
}
