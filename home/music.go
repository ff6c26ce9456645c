package home

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jill/arbiter"
	"github.com/leeineian/jill/catalog"
	"github.com/leeineian/jill/player"
	"github.com/leeineian/jill/sys"
)

const (
	MsgMusicNotReady  = "🎵 The music player is still starting up. Try again in a moment."
	MsgMusicTimeout   = "⌛ That took too long. Check `/music queue` in a moment."
	MsgMusicFailed    = "❌ Something went wrong. Try again."
	MsgMusicSlowDown  = "🐢 Slow down! Try again in %s."
	MsgMusicBusy      = "🚧 Too many commands right now. Try again in a moment."
	MsgMusicDebounced = "⏳ Merged with your last %s command."

	musicWaitTimeout = 30 * time.Second
	panelPreview     = 5
	panelHistory     = 1
)

var (
	musicPlayers *player.Registry
	musicLibrary *catalog.Library

	errMusicTimeout = errors.New("timed out waiting for the player")
)

// UseMusic hands the registry and library to the command handlers. Call it
// before the gateway opens.
func UseMusic(reg *player.Registry, lib *catalog.Library) {
	musicPlayers = reg
	musicLibrary = lib
}

func musicPlayerFor(guildID *snowflake.ID) *player.Player {
	if musicPlayers == nil || guildID == nil {
		return nil
	}
	return musicPlayers.Get(*guildID)
}

func handleMusicControl(event *events.ApplicationCommandInteractionCreate, name string) {
	runMusicCommand(event, player.Command{Name: name})
}

// runMusicCommand defers the reply, dispatches cmd and edits the reply with
// the outcome. Silently dropped commands have their reply deleted.
func runMusicCommand(event *events.ApplicationCommandInteractionCreate, cmd player.Command) {
	p := musicPlayerFor(event.GuildID())
	if p == nil {
		replyEphemeral(event, MsgMusicNotReady)
		return
	}
	cmd.User = event.User().ID

	if err := event.DeferCreateMessage(false); err != nil {
		sys.LogDebug("Failed to defer %s: %v", cmd.Name, err)
		return
	}

	rest := event.Client().Rest
	v := p.Dispatch(sys.AppContext(), cmd)
	if !v.Accepted {
		_ = rest.DeleteInteractionResponse(event.ApplicationID(), event.Token())
		if v.Notify {
			_, _ = rest.CreateFollowupMessage(event.ApplicationID(), event.Token(), discord.NewMessageCreateBuilder().
				SetContent(verdictMessage(v)).
				SetEphemeral(true).
				Build())
		}
		return
	}

	var update discord.MessageUpdate
	if err := waitDone(v.Done); err != nil {
		update = discord.NewMessageUpdateBuilder().
			SetIsComponentsV2(true).
			AddComponents(discord.NewContainer(discord.NewTextDisplay(errorMessage(err)))).
			Build()
	} else {
		header := successMessage(cmd, p.Snapshot(0, 0))
		if v.Notify {
			header = verdictMessage(v) + "\n" + header
		}
		update = panelUpdate(p.Snapshot(panelPreview, panelHistory), header)
	}

	if _, err := rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), update); err != nil {
		sys.LogDebug("Failed to update %s response: %v", cmd.Name, err)
	}
}

func waitDone(done <-chan error) error {
	if done == nil {
		return nil
	}
	select {
	case err := <-done:
		return err
	case <-time.After(musicWaitTimeout):
		return errMusicTimeout
	}
}

func replyEphemeral(event *events.ApplicationCommandInteractionCreate, content string) {
	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(content).
		SetEphemeral(true).
		Build())
}

// errorMessage maps player errors to something a listener can act on.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, player.ErrNotConnected):
		return "🔇 I'm not in a voice channel. Use `/music play` first."
	case errors.Is(err, player.ErrNothingPlaying):
		return "🤷 Nothing is playing."
	case errors.Is(err, player.ErrNoHistory):
		return "⏮️ There is no previous track."
	case errors.Is(err, player.ErrOutOfRange):
		return "🔢 That track number is out of range."
	case errors.Is(err, player.ErrEmptyCatalog):
		return "📭 No playable tracks found in the music folder."
	case errors.Is(err, player.ErrPermission):
		return "🔒 I can't join or speak in that channel."
	case errors.Is(err, player.ErrConnectionLost):
		return "📡 Lost the voice connection. Try `/music play` again."
	case errors.Is(err, catalog.ErrPlaylistNotFound):
		return "📂 No playlist by that name."
	case errors.Is(err, errNoVoiceChannel):
		return "🎧 Join a voice channel first, or pick one with the `channel` option."
	case errors.Is(err, errMusicTimeout):
		return MsgMusicTimeout
	default:
		sys.LogDebug("Unmapped music error: %v", err)
		return MsgMusicFailed
	}
}

// verdictMessage explains a dropped or merged command.
func verdictMessage(v arbiter.Verdict) string {
	if v.Notice != "" {
		return v.Notice
	}
	switch v.Reason {
	case arbiter.ReasonCooldown, arbiter.ReasonDebounceCooldown, arbiter.ReasonSpam:
		return fmt.Sprintf(MsgMusicSlowDown, retryIn(v.Retry))
	case arbiter.ReasonCircuitOpen, arbiter.ReasonQueueFull:
		return MsgMusicBusy
	case arbiter.ReasonClosed:
		return MsgMusicNotReady
	}
	if v.Accepted {
		return "⏳ Merged with your previous command."
	}
	return MsgMusicFailed
}

func retryIn(d time.Duration) string {
	if d <= 0 {
		return "a moment"
	}
	return d.Round(100 * time.Millisecond).String()
}

func successMessage(cmd player.Command, s player.Snapshot) string {
	switch cmd.Name {
	case arbiter.CmdPlay:
		if ch := s.ChannelID; ch != 0 {
			return fmt.Sprintf("▶️ Playing in <#%s>", ch)
		}
		return "▶️ Playing"
	case arbiter.CmdPause:
		return "⏸️ Paused"
	case arbiter.CmdResume:
		return "▶️ Resumed"
	case arbiter.CmdPlayPause:
		if s.State == player.Paused {
			return "⏸️ Paused"
		}
		return "▶️ Playing"
	case arbiter.CmdSkip:
		return "⏭️ Skipped"
	case arbiter.CmdPrevious:
		return "⏮️ Back one track"
	case arbiter.CmdStop:
		return "⏹️ Stopped. I'll pick up from here next time."
	case arbiter.CmdShuffle:
		return "🔀 Shuffle " + onOff(s.Shuffle)
	case arbiter.CmdLoop:
		return "🔁 Loop " + onOff(s.Loop)
	case arbiter.CmdJump:
		return fmt.Sprintf("🎯 Jumped to track %d", cmd.Index+1)
	case arbiter.CmdPlaylist:
		return "📂 Switched to " + playlistName(s.Playlist)
	}
	return "🎵 Music"
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func playlistName(p catalog.Playlist) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Name == "" {
		return "nothing"
	}
	return p.Name
}

// truncate keeps choice names under Discord's 100 character limit.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-3])) + "..."
}
