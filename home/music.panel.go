package home

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/dustin/go-humanize"
	"github.com/leeineian/jill/arbiter"
	"github.com/leeineian/jill/player"
	"github.com/leeineian/jill/sys"
)

const panelPrefix = "music:"

const panelRefresh = "refresh"

func handleMusicQueue(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	p := musicPlayerFor(event.GuildID())
	if p == nil {
		replyEphemeral(event, MsgMusicNotReady)
		return
	}
	ephemeral := false
	if eph, ok := data.OptBool("ephemeral"); ok {
		ephemeral = eph
	}

	s := p.Snapshot(panelPreview, panelHistory)
	builder := discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		SetEphemeral(ephemeral).
		AddComponents(discord.NewContainer(panelComponents(s, "🎵 **Music**")...))

	if err := event.CreateMessage(builder.Build()); err != nil {
		sys.LogDebug("Failed to send music panel: %v", err)
	}
}

// handleMusicButton runs panel presses through the same pipeline as slash
// commands, flagged as buttons so they get per-button cooldowns.
func handleMusicButton(event *events.ComponentInteractionCreate) {
	name := strings.TrimPrefix(event.Data.CustomID(), panelPrefix)
	p := musicPlayerFor(event.GuildID())
	if p == nil {
		_ = event.CreateMessage(discord.NewMessageCreateBuilder().
			SetContent(MsgMusicNotReady).
			SetEphemeral(true).
			Build())
		return
	}

	if name == panelRefresh {
		_ = event.UpdateMessage(panelUpdate(p.Snapshot(panelPreview, panelHistory), "🎵 **Music**"))
		return
	}

	v := p.Dispatch(sys.AppContext(), player.Command{
		User:   event.User().ID,
		Name:   name,
		Button: true,
	})
	if !v.Accepted {
		if v.Notify {
			_ = event.CreateMessage(discord.NewMessageCreateBuilder().
				SetContent(verdictMessage(v)).
				SetEphemeral(true).
				Build())
			return
		}
		_ = event.DeferUpdateMessage()
		return
	}

	if err := event.DeferUpdateMessage(); err != nil {
		sys.LogDebug("Failed to defer %s button: %v", name, err)
		return
	}

	rest := event.Client().Rest
	if err := waitDone(v.Done); err != nil {
		_, _ = rest.CreateFollowupMessage(event.ApplicationID(), event.Token(), discord.NewMessageCreateBuilder().
			SetContent(errorMessage(err)).
			SetEphemeral(true).
			Build())
	}

	header := successMessage(player.Command{Name: name}, p.Snapshot(0, 0))
	update := panelUpdate(p.Snapshot(panelPreview, panelHistory), header)
	if _, err := rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), update); err != nil {
		sys.LogDebug("Failed to refresh music panel: %v", err)
	}
}

func panelUpdate(s player.Snapshot, header string) discord.MessageUpdate {
	return discord.NewMessageUpdateBuilder().
		SetIsComponentsV2(true).
		SetComponents(discord.NewContainer(panelComponents(s, header)...)).
		Build()
}

func panelComponents(s player.Snapshot, header string) []discord.ContainerSubComponent {
	return []discord.ContainerSubComponent{
		discord.NewTextDisplay(panelText(s, header)),
		discord.NewSeparator(discord.SeparatorSpacingSizeSmall).WithDivider(true),
		discord.NewActionRow(panelButtons(s)...),
		discord.NewActionRow(
			discord.NewButton(discord.ButtonStyleSecondary, "🔄 Refresh", panelPrefix+panelRefresh, "", 0),
		),
	}
}

func panelText(s player.Snapshot, header string) string {
	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n\n")

	if s.NowPlaying != nil {
		fmt.Fprintf(&sb, "%s **%s**\n", stateIcon(s.State), s.NowPlaying.DisplayName)
	} else {
		sb.WriteString("💤 Nothing playing\n")
	}

	fmt.Fprintf(&sb, "> **Playlist:** %s (%s tracks)\n", playlistName(s.Playlist), humanize.Comma(int64(s.Total)))
	if s.Connected {
		fmt.Fprintf(&sb, "> **Channel:** <#%s>\n", s.ChannelID)
	}
	var modes []string
	if s.Shuffle {
		modes = append(modes, "🔀 shuffle")
	}
	if s.Loop {
		modes = append(modes, "🔁 loop")
	}
	if len(modes) > 0 {
		fmt.Fprintf(&sb, "> **Mode:** %s\n", strings.Join(modes, ", "))
	}
	if s.Drink > 0 {
		fmt.Fprintf(&sb, "> 🥤 **%s** tracks played this session\n", humanize.Comma(int64(s.Drink)))
	}

	if len(s.Upcoming) > 0 {
		sb.WriteString("\n**Up next**\n")
		for i, t := range s.Upcoming {
			fmt.Fprintf(&sb, "`%d.` %s\n", i+1, t.DisplayName)
		}
		if more := s.Remaining - len(s.Upcoming); more > 0 {
			fmt.Fprintf(&sb, "*...and %s more*\n", humanize.Comma(int64(more)))
		}
	}
	if n := len(s.History); n > 0 {
		fmt.Fprintf(&sb, "\n**Previously:** %s\n", s.History[n-1].DisplayName)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func stateIcon(state player.PlaybackState) string {
	switch state {
	case player.Playing:
		return "▶️"
	case player.Paused:
		return "⏸️"
	default:
		return "⏹️"
	}
}

func panelButtons(s player.Snapshot) []discord.InteractiveComponent {
	offline := !s.Connected

	playLabel := "▶️"
	if s.State == player.Playing {
		playLabel = "⏸️"
	}
	shuffleStyle := discord.ButtonStyleSecondary
	if s.Shuffle {
		shuffleStyle = discord.ButtonStyleSuccess
	}

	return []discord.InteractiveComponent{
		discord.NewButton(discord.ButtonStyleSecondary, "⏮️", panelPrefix+arbiter.CmdPrevious, "", 0).WithDisabled(offline),
		discord.NewButton(discord.ButtonStylePrimary, playLabel, panelPrefix+arbiter.CmdPlayPause, "", 0).WithDisabled(offline),
		discord.NewButton(discord.ButtonStyleSecondary, "⏭️", panelPrefix+arbiter.CmdSkip, "", 0).WithDisabled(offline),
		discord.NewButton(shuffleStyle, "🔀", panelPrefix+arbiter.CmdShuffle, "", 0),
		discord.NewButton(discord.ButtonStyleDanger, "⏹️", panelPrefix+arbiter.CmdStop, "", 0).WithDisabled(offline),
	}
}
