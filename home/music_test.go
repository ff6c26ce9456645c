package home

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jill/arbiter"
	"github.com/leeineian/jill/catalog"
	"github.com/leeineian/jill/engine"
	"github.com/leeineian/jill/player"
	"github.com/leeineian/jill/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	sys.InitLogger(true, "")
}

func TestResolvePlayChannel(t *testing.T) {
	assert.Equal(t, snowflake.ID(1), resolvePlayChannel(1, 2, 3, 4))
	assert.Equal(t, snowflake.ID(2), resolvePlayChannel(0, 2, 3, 4))
	assert.Equal(t, snowflake.ID(3), resolvePlayChannel(0, 0, 3, 4))
	assert.Equal(t, snowflake.ID(4), resolvePlayChannel(0, 0, 0, 4))
	assert.Zero(t, resolvePlayChannel(0, 0, 0, 0))
}

func TestErrorMessage(t *testing.T) {
	wrapped := fmt.Errorf("%w: lofi", catalog.ErrPlaylistNotFound)
	assert.Contains(t, errorMessage(wrapped), "No playlist")
	assert.Contains(t, errorMessage(player.ErrNoHistory), "no previous track")
	assert.Contains(t, errorMessage(player.ErrNotConnected), "/music play")
	assert.Equal(t, MsgMusicTimeout, errorMessage(errMusicTimeout))
	assert.Equal(t, MsgMusicFailed, errorMessage(errors.New("disk on fire")))
}

func TestVerdictMessage(t *testing.T) {
	msg := verdictMessage(arbiter.Verdict{Reason: arbiter.ReasonCooldown, Notify: true, Retry: 1500 * time.Millisecond})
	assert.Equal(t, "🐢 Slow down! Try again in 1.5s.", msg)

	assert.Equal(t, MsgMusicBusy, verdictMessage(arbiter.Verdict{Reason: arbiter.ReasonCircuitOpen}))
	assert.Equal(t, "custom", verdictMessage(arbiter.Verdict{Reason: arbiter.ReasonSpam, Notice: "custom"}))
	assert.Contains(t, verdictMessage(arbiter.Verdict{Reason: arbiter.ReasonSpam}), "a moment")
}

func TestParseTrackNumber(t *testing.T) {
	names := []string{"So What", "Blue in Green", "All Blues"}

	idx, ok := parseTrackNumber("2", names)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	idx, ok = parseTrackNumber("all blues", names)
	assert.True(t, ok)
	assert.Equal(t, 2, idx)

	idx, ok = parseTrackNumber("green", names)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	// Out of range numbers are left to the player to reject.
	idx, ok = parseTrackNumber("40", names)
	assert.True(t, ok)
	assert.Equal(t, 39, idx)

	_, ok = parseTrackNumber("0", names)
	assert.False(t, ok)
	_, ok = parseTrackNumber("freddie", names)
	assert.False(t, ok)
}

func TestTrackChoices(t *testing.T) {
	var names []string
	for i := range 40 {
		names = append(names, fmt.Sprintf("Track %02d", i+1))
	}

	all := trackChoices(names, "")
	assert.Len(t, all, maxChoices)

	filtered := trackChoices(names, "03")
	require.Len(t, filtered, 1)
	first := filtered[0].(discord.AutocompleteChoiceString)
	assert.Equal(t, "3", first.Value)
	assert.Equal(t, "3. Track 03", first.Name)

	byNumber := trackChoices(names, "12")
	require.Len(t, byNumber, 1)
	assert.Equal(t, "12", byNumber[0].(discord.AutocompleteChoiceString).Value)
}

func TestPlaylistChoices(t *testing.T) {
	playlists := []catalog.Playlist{
		{Name: "01 - Jazz", DisplayName: "Jazz", TrackCount: 12},
		{Name: "02 - Rock", DisplayName: "Rock", TrackCount: 3},
	}
	choices := playlistChoices(playlists, "ja")
	require.Len(t, choices, 1)
	c := choices[0].(discord.AutocompleteChoiceString)
	assert.Equal(t, "Jazz (12 tracks)", c.Name)
	assert.Equal(t, "01 - Jazz", c.Value)
}

func TestPanelText(t *testing.T) {
	tracks := []*catalog.Track{
		{ID: 1, DisplayName: "Intro"},
		{ID: 2, DisplayName: "Second"},
		{ID: 3, DisplayName: "Third"},
	}
	s := player.Snapshot{
		Snapshot: engine.Snapshot{
			NowPlaying: tracks[1],
			Upcoming:   tracks[2:],
			History:    tracks[:1],
			Remaining:  4,
			Total:      1200,
			Shuffle:    true,
		},
		State:     player.Playing,
		Playlist:  catalog.Playlist{Name: "01 - Lofi", DisplayName: "Lofi"},
		Drink:     7,
		Connected: true,
		ChannelID: 42,
	}

	text := panelText(s, "🎵 **Music**")
	assert.Contains(t, text, "▶️ **Second**")
	assert.Contains(t, text, "Lofi (1,200 tracks)")
	assert.Contains(t, text, "<#42>")
	assert.Contains(t, text, "🔀 shuffle")
	assert.Contains(t, text, "**7** tracks played")
	assert.Contains(t, text, "`1.` Third")
	assert.Contains(t, text, "...and 3 more")
	assert.Contains(t, text, "**Previously:** Intro")
	assert.NotContains(t, text, "🔁 loop")
}

func TestPanelText_Idle(t *testing.T) {
	text := panelText(player.Snapshot{}, "header")
	assert.Contains(t, text, "Nothing playing")
	assert.Contains(t, text, "nothing (0 tracks)")
	assert.NotContains(t, text, "Channel")
	assert.NotContains(t, text, "Up next")
}

func TestPanelButtons(t *testing.T) {
	buttons := panelButtons(player.Snapshot{})
	require.Len(t, buttons, 5)
	for _, b := range buttons {
		btn := b.(discord.ButtonComponent)
		if btn.CustomID == panelPrefix+arbiter.CmdShuffle {
			assert.False(t, btn.Disabled)
			continue
		}
		assert.True(t, btn.Disabled, btn.CustomID)
	}

	playing := panelButtons(player.Snapshot{Connected: true, State: player.Playing})
	play := playing[1].(discord.ButtonComponent)
	assert.Equal(t, "⏸️", play.Label)
	assert.False(t, play.Disabled)
}

func TestSuccessMessage(t *testing.T) {
	assert.Equal(t, "🔀 Shuffle on", successMessage(player.Command{Name: arbiter.CmdShuffle}, player.Snapshot{Snapshot: engine.Snapshot{Shuffle: true}}))
	assert.Equal(t, "🎯 Jumped to track 3", successMessage(player.Command{Name: arbiter.CmdJump, Index: 2}, player.Snapshot{}))
	assert.Equal(t, "▶️ Playing in <#9>", successMessage(player.Command{Name: arbiter.CmdPlay}, player.Snapshot{ChannelID: 9}))
}

func TestPlaylistSummary(t *testing.T) {
	out := playlistSummary([]catalog.Playlist{
		{Name: "a", TrackCount: 1000},
		{Name: "b", DisplayName: "Bee", TrackCount: 5},
	})
	assert.Contains(t, out, "**a** - 1,000 tracks")
	assert.Contains(t, out, "**Bee** - 5 tracks")
	assert.Contains(t, out, "2 playlists, 1,005 tracks")
	assert.Equal(t, "📭 No playlists found.", playlistSummary(nil))
}

func TestRenderMusicStats(t *testing.T) {
	out := renderMusicStats(musicStats{Players: 3, Connected: 2, Playing: 1, Paused: 1, Drinks: 4321, Playlists: 2, Tracks: 1500})
	assert.Contains(t, out, statsVal("3 (2 in voice)"))
	assert.Contains(t, out, statsVal("1 playing, 1 paused"))
	assert.Contains(t, out, statsVal("4,321"))
	assert.Contains(t, out, statsVal("2 playlists, 1,500 tracks"))
}

func TestCollectMusicStats_Unwired(t *testing.T) {
	assert.Equal(t, musicStats{}, collectMusicStats())
}
