package home

import (
	"errors"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jill/arbiter"
	"github.com/leeineian/jill/player"
	"github.com/leeineian/jill/sys"
)

var errNoVoiceChannel = errors.New("no voice channel to join")

func handleMusicPlay(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	p := musicPlayerFor(event.GuildID())
	if p == nil {
		replyEphemeral(event, MsgMusicNotReady)
		return
	}

	explicit, _ := data.OptSnowflake("channel")
	var userChannel snowflake.ID
	if vs, ok := event.Client().Caches.VoiceState(*event.GuildID(), event.User().ID); ok && vs.ChannelID != nil {
		userChannel = *vs.ChannelID
	}
	last, _ := p.LastChannel()

	channelID := resolvePlayChannel(explicit, userChannel, p.ChannelID(), last)
	if channelID == 0 {
		replyEphemeral(event, errorMessage(errNoVoiceChannel))
		return
	}

	runMusicCommand(event, player.Command{Name: arbiter.CmdPlay, Channel: channelID})
}

// resolvePlayChannel picks the first non-zero of: the channel option, the
// caller's voice channel, the channel we are already in, the last one used.
func resolvePlayChannel(candidates ...snowflake.ID) snowflake.ID {
	for _, id := range candidates {
		if id != 0 {
			return id
		}
	}
	return 0
}

// handleMusicVoiceState feeds voice changes to the guild's player. Changes to
// the bot itself go through HandleBotVoiceUpdate; changes to anyone joining or
// leaving our channel trigger a presence check.
func handleMusicVoiceState(event *events.GuildVoiceStateUpdate) {
	if musicPlayers == nil {
		return
	}
	p, ok := musicPlayers.Lookup(event.VoiceState.GuildID)
	if !ok {
		return
	}
	ctx := sys.AppContext()

	if event.VoiceState.UserID == event.Client().ID() {
		p.HandleBotVoiceUpdate(ctx, event.VoiceState.ChannelID)
		return
	}

	channelID := p.ChannelID()
	if channelID == 0 {
		return
	}
	if inChannel(event.VoiceState, channelID) || inChannel(event.OldVoiceState, channelID) {
		p.CheckPresence(ctx)
	}
}

func inChannel(vs discord.VoiceState, channelID snowflake.ID) bool {
	return vs.ChannelID != nil && *vs.ChannelID == channelID
}
