package proc

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/gateway"
	"github.com/dustin/go-humanize"
	"github.com/leeineian/jill/catalog"
	"github.com/leeineian/jill/player"
	"github.com/leeineian/jill/sys"
)

const (
	MsgStatusRotated    = "Status rotated to: %s (next in %v)"
	MsgStatusUpdateFail = "Failed to update status: %v"
)

// StatusRotator cycles the bot's listening activity through what the
// players are doing.
type StatusRotator struct {
	client  *bot.Client
	players *player.Registry
	library *catalog.Library
	started time.Time
	last    string
}

// RegisterStatusRotator adds the rotator to the daemons started on ready.
func RegisterStatusRotator(client *bot.Client, players *player.Registry, lib *catalog.Library) {
	sys.RegisterDaemon("Status", func(ctx context.Context) (bool, func(), func()) {
		r := &StatusRotator{client: client, players: players, library: lib, started: time.Now()}
		return true, func() { r.Run(ctx) }, nil
	})
}

func rotationInterval() time.Duration {
	return time.Duration(15+rand.IntN(46)) * time.Second
}

func (r *StatusRotator) Run(ctx context.Context) {
	for {
		next := rotationInterval()
		r.update(ctx, next)
		select {
		case <-time.After(next):
		case <-ctx.Done():
			return
		}
	}
}

func (r *StatusRotator) update(ctx context.Context, next time.Duration) {
	var snaps []player.Snapshot
	for _, p := range r.players.Players() {
		snaps = append(snaps, p.Snapshot(0, 0))
	}
	playlists, _ := r.library.Playlists()

	status := pickStatus(musicStatuses(snaps, playlists, time.Since(r.started)), r.last)
	r.last = status

	err := r.client.SetPresence(ctx,
		gateway.WithOnlineStatus(discord.OnlineStatusOnline),
		gateway.WithListeningActivity(status),
	)
	if err != nil {
		sys.LogWarn(MsgStatusUpdateFail, err)
		return
	}
	sys.LogDebug(MsgStatusRotated, status, next)
}

// musicStatuses lists every status worth showing right now. It is never
// empty: uptime is always available.
func musicStatuses(snaps []player.Snapshot, playlists []catalog.Playlist, uptime time.Duration) []string {
	var out []string

	playing, drinks := 0, 0
	var track string
	for _, s := range snaps {
		drinks += s.Drink
		if s.State == player.Playing {
			playing++
			if s.NowPlaying != nil {
				track = s.NowPlaying.DisplayName
			}
		}
	}
	switch {
	case playing == 1 && track != "":
		out = append(out, track)
	case playing > 1:
		out = append(out, fmt.Sprintf("music in %d servers", playing))
	}
	if drinks > 0 {
		out = append(out, fmt.Sprintf("%s tracks so far", humanize.Comma(int64(drinks))))
	}

	if len(playlists) > 0 {
		tracks := 0
		for _, p := range playlists {
			tracks += p.TrackCount
		}
		out = append(out, fmt.Sprintf("%d playlists, %s tracks", len(playlists), humanize.Comma(int64(tracks))))
	}

	out = append(out, fmt.Sprintf("for %dh %dm", int(uptime.Hours()), int(uptime.Minutes())%60))
	return out
}

// pickStatus chooses at random, avoiding an immediate repeat of last.
func pickStatus(choices []string, last string) string {
	var fresh []string
	for _, c := range choices {
		if c != last {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		return choices[0]
	}
	return fresh[rand.IntN(len(fresh))]
}
