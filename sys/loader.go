package sys

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/godave/golibdave"
	"github.com/disgoorg/snowflake/v2"
)

const (
	MsgLoaderSyncCommands   = "Syncing %s commands..."
	MsgLoaderRegistered     = "Registered: %s"
	MsgLoaderRegisterFail   = "command registration failed: %w"
	MsgLoaderUpToDate       = "Commands are up to date. (Hash: %s)"
	MsgLoaderInvalidGuildID = "invalid GUILD_ID: %w"
	MsgLoaderPanicRecovered = "Panic recovered in handler: %v"
	MsgDaemonStarting       = "Starting..."
	MsgBotReady             = "%s is ready! (ID: %s) (Took: %dms)"

	metaCommandHash = "last_cmd_hash"
	metaCommandMode = "last_reg_mode"
)

// MetaStore persists loader bookkeeping such as the last registered command hash.
type MetaStore interface {
	Meta(key string) (string, bool)
	SetMeta(key, value string)
}

var StartupTime = time.Now()

var (
	commands                 = []discord.ApplicationCommandCreate{}
	commandHandlers          = map[string]func(event *events.ApplicationCommandInteractionCreate){}
	autocompleteHandlers     = map[string]func(event *events.AutocompleteInteractionCreate){}
	componentHandlers        = map[string]func(event *events.ComponentInteractionCreate){}
	voiceStateUpdateHandlers []func(event *events.GuildVoiceStateUpdate)
	onClientReadyCallbacks   []func(ctx context.Context, client *bot.Client)
	appContext               = context.Background()
)

// CreateClient builds the disgo client with the intents and caches the voice
// presence logic relies on (voice states and members).
func CreateClient(ctx context.Context, cfg *Config) (*bot.Client, error) {
	appContext = ctx
	return disgo.New(cfg.Token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMembers,
				gateway.IntentGuildVoiceStates,
			),
			gateway.WithPresenceOpts(
				gateway.WithListeningActivity("the queue"),
				gateway.WithOnlineStatus(discord.OnlineStatusOnline),
			),
		),
		bot.WithCacheConfigOpts(
			cache.WithCaches(cache.FlagGuilds, cache.FlagMembers, cache.FlagRoles, cache.FlagChannels, cache.FlagVoiceStates),
		),
		bot.WithVoiceManagerConfigOpts(
			voice.WithDaveSessionCreateFunc(golibdave.NewSession),
		),
		bot.WithEventListenerFunc(onApplicationCommandInteraction),
		bot.WithEventListenerFunc(onAutocompleteInteraction),
		bot.WithEventListenerFunc(onComponentInteraction),
		bot.WithEventListenerFunc(onVoiceStateUpdate),
		bot.WithEventListenerFunc(onReady),
		bot.WithRestClientConfigOpts(
			rest.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
		),
	)
}

func RegisterCommand(cmd discord.ApplicationCommandCreate, handler func(event *events.ApplicationCommandInteractionCreate)) {
	commands = append(commands, cmd)
	switch c := cmd.(type) {
	case discord.SlashCommandCreate:
		commandHandlers[c.CommandName()] = handler
	case discord.UserCommandCreate:
		commandHandlers[c.CommandName()] = handler
	case discord.MessageCommandCreate:
		commandHandlers[c.CommandName()] = handler
	}
}

func RegisterAutocompleteHandler(cmdName string, handler func(event *events.AutocompleteInteractionCreate)) {
	autocompleteHandlers[cmdName] = handler
}

// RegisterComponentHandler matches custom IDs exactly, or by prefix when
// customID ends with ":".
func RegisterComponentHandler(customID string, handler func(event *events.ComponentInteractionCreate)) {
	componentHandlers[customID] = handler
}

func RegisterVoiceStateUpdateHandler(handler func(event *events.GuildVoiceStateUpdate)) {
	voiceStateUpdateHandlers = append(voiceStateUpdateHandlers, handler)
}

func OnClientReady(cb func(ctx context.Context, client *bot.Client)) {
	onClientReadyCallbacks = append(onClientReadyCallbacks, cb)
}

// AppContext is the context passed to CreateClient. It is cancelled on shutdown.
func AppContext() context.Context {
	return appContext
}

func calculateCommandHash(cmds []discord.ApplicationCommandCreate) string {
	data, err := json.Marshal(cmds)
	if err != nil {
		return ""
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// RegisterCommands syncs the command set to one guild (dev) or globally, and
// skips the round trip when the hash and mode match the last sync.
func RegisterCommands(client *bot.Client, guildIDStr string, meta MetaStore) error {
	mode := "global"
	if guildIDStr != "" {
		mode = "guild:" + guildIDStr
	}
	LogInfo(MsgLoaderSyncCommands, strings.ToUpper(strings.SplitN(mode, ":", 2)[0]))

	hash := calculateCommandHash(commands)
	if meta != nil && hash != "" {
		lastHash, _ := meta.Meta(metaCommandHash)
		lastMode, _ := meta.Meta(metaCommandMode)
		if lastHash == hash && lastMode == mode {
			LogInfo(MsgLoaderUpToDate, hash[:8])
			return nil
		}
	}

	var (
		created []discord.ApplicationCommand
		err     error
	)
	if guildIDStr == "" {
		created, err = client.Rest.SetGlobalCommands(client.ApplicationID, commands)
	} else {
		guildID, perr := snowflake.Parse(guildIDStr)
		if perr != nil {
			return fmt.Errorf(MsgLoaderInvalidGuildID, perr)
		}
		created, err = client.Rest.SetGuildCommands(client.ApplicationID, guildID, commands)
	}
	if err != nil {
		return fmt.Errorf(MsgLoaderRegisterFail, err)
	}
	for _, cmd := range created {
		LogInfo(MsgLoaderRegistered, cmd.Name())
	}

	if meta != nil && hash != "" {
		meta.SetMeta(metaCommandHash, hash)
		meta.SetMeta(metaCommandMode, mode)
	}
	return nil
}

func onReady(event *events.Ready) {
	LogInfo(MsgBotReady, ProjectName, event.User.ID.String(), time.Since(StartupTime).Milliseconds())

	client := event.Client()
	for _, cb := range onClientReadyCallbacks {
		cb(appContext, client)
	}
	StartDaemons(appContext)
}

func onApplicationCommandInteraction(event *events.ApplicationCommandInteractionCreate) {
	if h, ok := commandHandlers[event.Data.CommandName()]; ok {
		SafeGo(func() { h(event) })
	}
}

func onAutocompleteInteraction(event *events.AutocompleteInteractionCreate) {
	if h, ok := autocompleteHandlers[event.Data.CommandName]; ok {
		SafeGo(func() { h(event) })
	}
}

func onComponentInteraction(event *events.ComponentInteractionCreate) {
	customID := event.Data.CustomID()
	if h, ok := componentHandlers[customID]; ok {
		SafeGo(func() { h(event) })
		return
	}
	for prefix, h := range componentHandlers {
		if strings.HasSuffix(prefix, ":") && strings.HasPrefix(customID, prefix) {
			SafeGo(func() { h(event) })
			return
		}
	}
}

func onVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	for _, h := range voiceStateUpdateHandlers {
		SafeGo(func() { h(event) })
	}
}

// Daemons

type daemonEntry struct {
	name    string
	starter func(ctx context.Context) (bool, func(), func())
}

var (
	daemonsOnce         sync.Once
	registeredDaemons   []daemonEntry
	activeShutdownHooks []func()
	activeShutdownMu    sync.Mutex
)

// RegisterDaemon adds a background loop. starter reports whether the daemon
// is enabled and returns its run loop and an optional shutdown hook.
func RegisterDaemon(name string, starter func(ctx context.Context) (bool, func(), func())) {
	registeredDaemons = append(registeredDaemons, daemonEntry{name: name, starter: starter})
}

func StartDaemons(ctx context.Context) {
	daemonsOnce.Do(func() {
		for _, daemon := range registeredDaemons {
			ok, run, shutdown := daemon.starter(ctx)
			if !ok || run == nil {
				continue
			}
			if shutdown != nil {
				activeShutdownMu.Lock()
				activeShutdownHooks = append(activeShutdownHooks, shutdown)
				activeShutdownMu.Unlock()
			}
			slog.Info(MsgDaemonStarting, slog.String("component", daemon.name))
			SafeGo(run)
		}
	})
}

func ShutdownDaemons() {
	activeShutdownMu.Lock()
	defer activeShutdownMu.Unlock()

	var wg sync.WaitGroup
	for _, shutdown := range activeShutdownHooks {
		wg.Add(1)
		SafeGo(func() {
			defer wg.Done()
			shutdown()
		})
	}
	wg.Wait()
	activeShutdownHooks = nil
}

// SafeGo runs f on a new goroutine and logs instead of crashing on panic.
func SafeGo(f func()) {
	go func() {
		defer Recover("goroutine")
		f()
	}()
}

// Recover is deferred by long-lived loops so one bad iteration is logged and
// the loop keeps going.
func Recover(where string) {
	if r := recover(); r != nil {
		LogError(MsgLoaderPanicRecovered+" (%s)\n%s", r, where, debug.Stack())
	}
}
