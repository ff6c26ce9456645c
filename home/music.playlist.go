package home

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/dustin/go-humanize"
	"github.com/leeineian/jill/arbiter"
	"github.com/leeineian/jill/catalog"
	"github.com/leeineian/jill/player"
	"github.com/leeineian/jill/sys"
)

func handleMusicPlaylist(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	name, _ := data.OptString("name")
	runMusicCommand(event, player.Command{Name: arbiter.CmdPlaylist, Playlist: name})
}

func handleLibraryRescan(event *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	if musicLibrary == nil {
		replyEphemeral(event, MsgMusicNotReady)
		return
	}
	_ = event.DeferCreateMessage(true)

	playlists, err := musicLibrary.Rescan()
	content := "🔄 **Library rescanned**\n\n" + playlistSummary(playlists)
	if err != nil {
		sys.LogError("Library rescan failed: %v", err)
		content = "❌ Could not read the music folder."
	}

	_, _ = event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), discord.NewMessageUpdateBuilder().
		SetIsComponentsV2(true).
		AddComponents(discord.NewContainer(discord.NewTextDisplay(content))).
		Build())
}

func handleLibraryList(event *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	if musicLibrary == nil {
		replyEphemeral(event, MsgMusicNotReady)
		return
	}
	playlists, err := musicLibrary.Playlists()
	if err != nil {
		replyEphemeral(event, "❌ Could not read the music folder.")
		return
	}

	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		SetEphemeral(true).
		AddComponents(discord.NewContainer(discord.NewTextDisplay("📚 **Playlists**\n\n" + playlistSummary(playlists)))).
		Build())
}

func playlistSummary(playlists []catalog.Playlist) string {
	if len(playlists) == 0 {
		return "📭 No playlists found."
	}
	var sb strings.Builder
	total := 0
	for _, pl := range playlists {
		fmt.Fprintf(&sb, "> **%s** - %s tracks\n", playlistName(pl), humanize.Comma(int64(pl.TrackCount)))
		total += pl.TrackCount
	}
	fmt.Fprintf(&sb, "\n%s playlists, %s tracks", humanize.Comma(int64(len(playlists))), humanize.Comma(int64(total)))
	return sb.String()
}
