package home

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/leeineian/jill/arbiter"
	"github.com/leeineian/jill/sys"
)

func init() {
	guildOnly := []discord.InteractionContextType{
		discord.InteractionContextTypeGuild,
	}

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "music",
		Description: "Music player",
		Contexts:    guildOnly,
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        arbiter.CmdPlay,
				Description: "Join voice and start or resume playback",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionChannel{
						Name:        "channel",
						Description: "Voice channel to join (default: yours, then the last one used)",
						Required:    false,
						ChannelTypes: []discord.ChannelType{
							discord.ChannelTypeGuildVoice,
							discord.ChannelTypeGuildStageVoice,
						},
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        arbiter.CmdPause,
				Description: "Pause playback",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        arbiter.CmdResume,
				Description: "Resume playback",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        arbiter.CmdSkip,
				Description: "Skip to the next track",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        arbiter.CmdPrevious,
				Description: "Go back to the previous track",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        arbiter.CmdStop,
				Description: "Stop playback and leave voice",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        arbiter.CmdShuffle,
				Description: "Toggle shuffle",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        arbiter.CmdLoop,
				Description: "Toggle repeating the current track",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        arbiter.CmdJump,
				Description: "Jump to a track in the playlist",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "track",
						Description:  "Track number or name",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        arbiter.CmdPlaylist,
				Description: "Switch playlist",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "name",
						Description:  "Playlist to play",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        arbiter.CmdQueue,
				Description: "Show what is playing and what is next",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionBool{
						Name:        "ephemeral",
						Description: "Whether the message should be ephemeral (default: false)",
						Required:    false,
					},
				},
			},
		},
	}, func(event *events.ApplicationCommandInteractionCreate) {
		data := event.SlashCommandInteractionData()
		if data.SubCommandName == nil {
			return
		}

		switch name := *data.SubCommandName; name {
		case arbiter.CmdPlay:
			handleMusicPlay(event, data)
		case arbiter.CmdJump:
			handleMusicJump(event, data)
		case arbiter.CmdPlaylist:
			handleMusicPlaylist(event, data)
		case arbiter.CmdQueue:
			handleMusicQueue(event, data)
		default:
			handleMusicControl(event, name)
		}
	})

	sys.RegisterAutocompleteHandler("music", handleMusicAutocomplete)

	adminPerm := discord.PermissionManageGuild

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "library",
		Description:              "Music library (Admin Only)",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Contexts:                 guildOnly,
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        arbiter.CmdRescan,
				Description: "Rescan the music folder",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "list",
				Description: "List playlists",
			},
		},
	}, func(event *events.ApplicationCommandInteractionCreate) {
		data := event.SlashCommandInteractionData()
		if data.SubCommandName == nil {
			return
		}

		switch *data.SubCommandName {
		case arbiter.CmdRescan:
			handleLibraryRescan(event, data)
		case "list":
			handleLibraryList(event, data)
		}
	})

	sys.RegisterComponentHandler(panelPrefix, handleMusicButton)
	sys.RegisterVoiceStateUpdateHandler(handleMusicVoiceState)
}
