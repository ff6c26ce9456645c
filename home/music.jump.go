package home

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jill/arbiter"
	"github.com/leeineian/jill/catalog"
	"github.com/leeineian/jill/player"
)

const maxChoices = 25

func handleMusicJump(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	p := musicPlayerFor(event.GuildID())
	if p == nil {
		replyEphemeral(event, MsgMusicNotReady)
		return
	}

	input, _ := data.OptString("track")
	index, ok := parseTrackNumber(input, currentTrackNames(p))
	if !ok {
		replyEphemeral(event, errorMessage(player.ErrOutOfRange))
		return
	}

	runMusicCommand(event, player.Command{Name: arbiter.CmdJump, Index: index})
}

// currentTrackNames lists the tracks of the loaded playlist, or of the one
// the first play would load.
func currentTrackNames(p *player.Player) []string {
	if musicLibrary == nil {
		return nil
	}
	pl := p.Snapshot(0, 0).Playlist
	if pl.Path == "" {
		d, err := musicLibrary.Default()
		if err != nil {
			return nil
		}
		pl = d
	}
	names, err := musicLibrary.TrackNames(pl)
	if err != nil {
		return nil
	}
	return names
}

// parseTrackNumber turns a 1-based number or a track name into a 0-based
// catalog index.
func parseTrackNumber(input string, names []string) (int, bool) {
	input = strings.TrimSpace(input)
	if n, err := strconv.Atoi(input); err == nil {
		return n - 1, n >= 1
	}
	for i, name := range names {
		if strings.EqualFold(name, input) {
			return i, true
		}
	}
	lower := strings.ToLower(input)
	for i, name := range names {
		if strings.Contains(strings.ToLower(name), lower) {
			return i, true
		}
	}
	return 0, false
}

func trackChoices(names []string, query string) []discord.AutocompleteChoice {
	query = strings.ToLower(strings.TrimSpace(query))
	var choices []discord.AutocompleteChoice
	for i, name := range names {
		num := strconv.Itoa(i + 1)
		if query != "" && !strings.HasPrefix(num, query) && !strings.Contains(strings.ToLower(name), query) {
			continue
		}
		choices = append(choices, discord.AutocompleteChoiceString{
			Name:  truncate(fmt.Sprintf("%s. %s", num, name), 100),
			Value: num,
		})
		if len(choices) >= maxChoices {
			break
		}
	}
	return choices
}

func playlistChoices(playlists []catalog.Playlist, query string) []discord.AutocompleteChoice {
	query = strings.ToLower(strings.TrimSpace(query))
	var choices []discord.AutocompleteChoice
	for _, pl := range playlists {
		label := playlistName(pl)
		if query != "" && !strings.Contains(strings.ToLower(label), query) && !strings.Contains(strings.ToLower(pl.Name), query) {
			continue
		}
		choices = append(choices, discord.AutocompleteChoiceString{
			Name:  truncate(fmt.Sprintf("%s (%d tracks)", label, pl.TrackCount), 100),
			Value: truncate(pl.Name, 100),
		})
		if len(choices) >= maxChoices {
			break
		}
	}
	return choices
}

func handleMusicAutocomplete(event *events.AutocompleteInteractionCreate) {
	focused := event.Data.Focused()

	var choices []discord.AutocompleteChoice
	switch focused.Name {
	case "track":
		if p := musicPlayerFor(event.GuildID()); p != nil {
			choices = trackChoices(currentTrackNames(p), focused.String())
		}
	case "name":
		if musicLibrary != nil {
			if playlists, err := musicLibrary.Playlists(); err == nil {
				choices = playlistChoices(playlists, focused.String())
			}
		}
	}
	_ = event.AutocompleteResult(choices)
}
