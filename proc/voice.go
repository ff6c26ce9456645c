package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jill/player"
	"github.com/leeineian/jill/sys"
	"golang.org/x/time/rate"
)

var (
	ErrStopped        = player.ErrStopped
	ErrConnectionLost = player.ErrConnectionLost

	ErrNoChannel = errors.New("voice channel not found")
)

var (
	_ player.VoiceProvider = (*VoiceGateway)(nil)
	_ player.Transport     = (*Transport)(nil)
)

const (
	connectAttempts = 5

	MsgVoiceRetry       = "[%s] Retrying voice connection in %v (attempt %d/%d)"
	MsgVoiceGaveUp      = "[%s] Failed to connect to voice after %d attempts: %v"
	MsgVoiceProviderSet = "[%s] Recovered from panic in SetOpusFrameProvider: %v"
)

// VoiceGateway owns the disgo voice connections, one per guild.
type VoiceGateway struct {
	client *bot.Client
	// Voice state updates are rate limited by the gateway, shared by all guilds.
	limiter *rate.Limiter
	backoff time.Duration

	mu    sync.Mutex
	conns map[snowflake.ID]*Transport
}

func NewVoiceGateway(client *bot.Client) *VoiceGateway {
	return &VoiceGateway{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
		backoff: time.Second,
		conns:   make(map[snowflake.ID]*Transport),
	}
}

// Connect opens a voice connection, retrying with exponential backoff. An
// existing connection for the guild is closed first.
func (g *VoiceGateway) Connect(ctx context.Context, guildID, channelID snowflake.ID) (player.Transport, error) {
	g.mu.Lock()
	old := g.conns[guildID]
	delete(g.conns, guildID)
	g.mu.Unlock()
	if old != nil {
		old.close(ctx)
	}

	conn := g.client.VoiceManager.CreateConn(guildID)

	var lastErr error
	for i := range connectAttempts {
		if i > 0 {
			wait := g.backoff << (i - 1)
			sys.LogVoice(MsgVoiceRetry, guildID, wait, i+1, connectAttempts)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				conn.Close(context.Background())
				return nil, ctx.Err()
			}
		}
		if err := g.limiter.Wait(ctx); err != nil {
			conn.Close(context.Background())
			return nil, err
		}
		if lastErr = conn.Open(ctx, channelID, false, true); lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		sys.LogVoice(MsgVoiceGaveUp, guildID, connectAttempts, lastErr)
		conn.Close(context.Background())
		return nil, lastErr
	}

	t := newTransport(guildID, conn)
	g.mu.Lock()
	g.conns[guildID] = t
	g.mu.Unlock()
	return t, nil
}

// Disconnect closes the guild's connection. force means the server already
// dropped us, so only local state is torn down.
func (g *VoiceGateway) Disconnect(ctx context.Context, guildID snowflake.ID, force bool) error {
	g.mu.Lock()
	t := g.conns[guildID]
	delete(g.conns, guildID)
	g.mu.Unlock()
	if t == nil {
		return nil
	}
	if force {
		sys.LogVoice("[%s] Tearing down dropped voice connection", guildID)
	}
	t.close(ctx)
	return nil
}

// Shutdown closes every connection.
func (g *VoiceGateway) Shutdown(ctx context.Context) {
	g.mu.Lock()
	conns := g.conns
	g.conns = make(map[snowflake.ID]*Transport)
	g.mu.Unlock()
	for _, t := range conns {
		t.close(ctx)
	}
}

// Listeners counts members in the channel who can hear the bot: not the bot
// itself, not other bots, not deafened.
func (g *VoiceGateway) Listeners(guildID, channelID snowflake.ID) int {
	count := 0
	for state := range g.client.Caches.VoiceStates(guildID) {
		if state.ChannelID == nil || *state.ChannelID != channelID || state.UserID == g.client.ID() {
			continue
		}
		if state.SelfDeaf || state.GuildDeaf {
			continue
		}
		if m, ok := g.client.Caches.Member(guildID, state.UserID); ok && m.User.Bot {
			continue
		}
		count++
	}
	return count
}

// CheckPermissions verifies the bot can see, join and speak in the channel.
func (g *VoiceGateway) CheckPermissions(guildID, channelID snowflake.ID) error {
	channel, ok := g.client.Caches.Channel(channelID)
	if !ok || channel.GuildID() != guildID {
		return ErrNoChannel
	}
	self, ok := g.client.Caches.Member(guildID, g.client.ID())
	if !ok {
		return fmt.Errorf("bot member not found in cache for guild %s", guildID)
	}

	required := discord.PermissionViewChannel | discord.PermissionConnect | discord.PermissionSpeak
	perms := memberPermissionsInChannel(g.client, channel, self)
	if !perms.Has(required) {
		return fmt.Errorf("bot lacks required permissions in %s: %v", channel.Name(), required&^perms)
	}
	return nil
}

// memberPermissionsInChannel resolves a member's effective permissions from
// cached roles and channel overwrites.
func memberPermissionsInChannel(client *bot.Client, channel discord.GuildChannel, member discord.Member) discord.Permissions {
	guild, ok := client.Caches.Guild(channel.GuildID())
	if !ok {
		return 0
	}
	if guild.OwnerID == member.User.ID {
		return discord.PermissionsAll
	}

	var perms discord.Permissions
	if everyone, ok := client.Caches.Role(guild.ID, snowflake.ID(guild.ID)); ok {
		perms |= everyone.Permissions
	}
	for _, roleID := range member.RoleIDs {
		if role, ok := client.Caches.Role(guild.ID, roleID); ok {
			perms |= role.Permissions
		}
	}
	if perms.Has(discord.PermissionAdministrator) {
		return discord.PermissionsAll
	}

	overwrites := channel.PermissionOverwrites()
	for _, o := range overwrites {
		if o.ID() == snowflake.ID(guild.ID) {
			if ro, ok := o.(discord.RolePermissionOverwrite); ok {
				perms &^= ro.Deny
				perms |= ro.Allow
			}
			break
		}
	}

	var roleAllow, roleDeny discord.Permissions
	for _, o := range overwrites {
		for _, roleID := range member.RoleIDs {
			if o.ID() == roleID {
				if ro, ok := o.(discord.RolePermissionOverwrite); ok {
					roleDeny |= ro.Deny
					roleAllow |= ro.Allow
				}
				break
			}
		}
	}
	perms &^= roleDeny
	perms |= roleAllow

	for _, o := range overwrites {
		if o.ID() == member.User.ID {
			if mo, ok := o.(discord.MemberPermissionOverwrite); ok {
				perms &^= mo.Deny
				perms |= mo.Allow
			}
			break
		}
	}
	return perms
}

// Transport plays tracks on one voice connection.
type Transport struct {
	guildID snowflake.ID
	conn    voice.Conn

	mu      sync.Mutex
	current *TrackProvider
	closed  bool
}

func newTransport(guildID snowflake.ID, conn voice.Conn) *Transport {
	return &Transport{guildID: guildID, conn: conn}
}

func (t *Transport) Start(src io.ReadCloser, onFinished func(error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrConnectionLost
	}
	if t.current != nil {
		t.current.Stop()
	}

	var p *TrackProvider
	p = NewTrackProvider(src, func(err error) {
		t.release(p)
		onFinished(err)
	})
	t.current = p
	if !t.setProvider(p) {
		t.current = nil
		return ErrConnectionLost
	}
	t.conn.SetSpeaking(context.TODO(), voice.SpeakingFlagMicrophone)
	return nil
}

func (t *Transport) Stop() {
	t.mu.Lock()
	p := t.current
	t.mu.Unlock()
	if p != nil {
		p.Stop()
	}
}

func (t *Transport) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil {
		t.current.Pause()
	}
}

func (t *Transport) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil {
		t.current.Resume()
	}
}

// IsPlaying is true while a track is being sent, not while paused.
func (t *Transport) IsPlaying() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current != nil && !t.current.Finished() && !t.current.Paused()
}

func (t *Transport) IsPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current != nil && !t.current.Finished() && t.current.Paused()
}

// release detaches p from the connection if it is still the current track.
func (t *Transport) release(p *TrackProvider) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != p {
		return
	}
	t.current = nil
	if !t.closed {
		t.setProvider(nil)
		t.conn.SetSpeaking(context.TODO(), 0)
	}
}

func (t *Transport) close(ctx context.Context) {
	t.mu.Lock()
	p := t.current
	t.closed = true
	t.mu.Unlock()
	if p != nil {
		p.Stop()
	}
	t.conn.Close(ctx)
}

func (t *Transport) setProvider(p voice.OpusFrameProvider) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			sys.LogVoice(MsgVoiceProviderSet, t.guildID, r)
			ok = false
		}
	}()
	t.conn.SetOpusFrameProvider(p)
	return true
}
