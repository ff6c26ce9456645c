package home

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
	"github.com/dustin/go-humanize"
	"github.com/leeineian/jill/player"
	"github.com/leeineian/jill/sys"
)

const (
	StatsAnsiReset    = "\u001b[0m"
	StatsAnsiPink     = "\u001b[35m"
	StatsAnsiPinkBold = "\u001b[35;1m"

	statsRefresh = "stats_refresh"
)

var statsStartTime = time.Now().UTC()

type statsMetrics struct {
	Ping        int64
	GatewayPing int64
}

// musicStats is the aggregate across every guild's player.
type musicStats struct {
	Players   int
	Connected int
	Playing   int
	Paused    int
	Pending   int
	Drinks    int
	Playlists int
	Tracks    int
}

func statsTitle(text string) string {
	return fmt.Sprintf("%s%s%s", StatsAnsiPink, text, StatsAnsiReset)
}

func statsKey(text string) string {
	return fmt.Sprintf("%s> %s:%s", StatsAnsiPink, text, StatsAnsiReset)
}

func statsVal(text string) string {
	return fmt.Sprintf("%s%s%s", StatsAnsiPinkBold, text, StatsAnsiReset)
}

func statsLine(key, val string) string {
	return statsKey(key) + " " + statsVal(val)
}

func init() {
	adminPerm := discord.PermissionAdministrator

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "stats",
		Description:              "Display bot and player statistics (Admin Only)",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionBool{
				Name:        "ephemeral",
				Description: "Whether the message should be ephemeral (default: true)",
				Required:    false,
			},
		},
	}, handleStats)

	sys.RegisterComponentHandler(statsRefresh, handleStatsRefresh)
}

func handleStats(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	ephemeral := true
	if eph, ok := data.OptBool("ephemeral"); ok {
		ephemeral = eph
	}

	metrics := statsMetrics{
		Ping:        time.Since(snowflake.ID(event.ID()).Time()).Milliseconds(),
		GatewayPing: event.Client().Gateway.Latency().Milliseconds(),
	}

	err := event.CreateMessage(discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		SetEphemeral(ephemeral).
		AddComponents(statsContainer(metrics)).
		Build())
	if err != nil {
		sys.LogDebug("Failed to send stats: %v", err)
	}
}

func handleStatsRefresh(event *events.ComponentInteractionCreate) {
	metrics := statsMetrics{
		Ping:        time.Since(snowflake.ID(event.ID()).Time()).Milliseconds(),
		GatewayPing: event.Client().Gateway.Latency().Milliseconds(),
	}

	_ = event.UpdateMessage(discord.NewMessageUpdateBuilder().
		SetIsComponentsV2(true).
		SetComponents(statsContainer(metrics)).
		Build())
}

func statsContainer(metrics statsMetrics) discord.ContainerComponent {
	content := strings.Join([]string{
		systemStats(),
		appStats(metrics),
		renderMusicStats(collectMusicStats()),
	}, "\n\n")

	return discord.NewContainer(
		discord.NewTextDisplay(fmt.Sprintf("```ansi\n%s\n```", content)),
		discord.NewActionRow(
			discord.NewSuccessButton("🔄 Refresh", statsRefresh),
		),
	)
}

func systemStats() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return strings.Join([]string{
		statsTitle("System"),
		statsLine("Platform", fmt.Sprintf("%s %s", runtime.GOOS, runtime.GOARCH)),
		statsLine("Go Version", runtime.Version()),
		statsLine("Memory", fmt.Sprintf("%s / %s (Sys)", humanize.Bytes(m.HeapAlloc), humanize.Bytes(m.Sys))),
		statsLine("Goroutines", humanize.Comma(int64(runtime.NumGoroutine()))),
	}, "\n")
}

func appStats(metrics statsMetrics) string {
	uptime := time.Since(statsStartTime)
	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60

	lines := []string{
		statsTitle("App"),
		statsLine("Library", "Disgo"),
		statsLine("Uptime", fmt.Sprintf("%dd %dh %dm", days, hours, minutes)),
	}
	if metrics.GatewayPing > 0 {
		lines = append(lines, statsLine("Gateway", fmt.Sprintf("%dms", metrics.GatewayPing)))
	}
	if metrics.Ping > 0 {
		lines = append(lines, statsLine("API Latency", fmt.Sprintf("%dms", metrics.Ping)))
	}
	return strings.Join(lines, "\n")
}

func collectMusicStats() musicStats {
	var st musicStats
	if musicPlayers != nil {
		for _, p := range musicPlayers.Players() {
			s := p.Snapshot(0, 0)
			st.Players++
			st.Drinks += s.Drink
			st.Pending += s.Pending
			if s.Connected {
				st.Connected++
			}
			switch s.State {
			case player.Playing:
				st.Playing++
			case player.Paused:
				st.Paused++
			}
		}
	}
	if musicLibrary != nil {
		if playlists, err := musicLibrary.Playlists(); err == nil {
			st.Playlists = len(playlists)
			for _, pl := range playlists {
				st.Tracks += pl.TrackCount
			}
		}
	}
	return st
}

func renderMusicStats(st musicStats) string {
	return strings.Join([]string{
		statsTitle("Music"),
		statsLine("Players", fmt.Sprintf("%d (%d in voice)", st.Players, st.Connected)),
		statsLine("Playing", fmt.Sprintf("%d playing, %d paused", st.Playing, st.Paused)),
		statsLine("Queued Commands", humanize.Comma(int64(st.Pending))),
		statsLine("Tracks Played", humanize.Comma(int64(st.Drinks))),
		statsLine("Library", fmt.Sprintf("%s playlists, %s tracks", humanize.Comma(int64(st.Playlists)), humanize.Comma(int64(st.Tracks)))),
	}, "\n")
}
