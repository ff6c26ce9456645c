package sys

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

const (
	ProjectName = "jill"

	MsgConfigMissingToken   = "DISCORD_TOKEN is not set in .env file"
	MsgConfigInvalidGuildID = "invalid GUILD_ID: must be a valid Snowflake"
	MsgConfigInvalidBackend = "invalid STORE_BACKEND %q: expected json or sqlite"
	MsgConfigMusicMissing   = "MUSIC_FOLDER %q does not exist"

	EnvDiscordToken          = "DISCORD_TOKEN"
	EnvGuildID               = "GUILD_ID"
	EnvMusicFolder           = "MUSIC_FOLDER"
	EnvDataDir               = "DATA_DIR"
	EnvStoreBackend          = "STORE_BACKEND"
	EnvTimingsFile           = "TIMINGS_FILE"
	EnvLogFile               = "LOG_FILE"
	EnvSilent                = "SILENT"
	EnvDebug                 = "DEBUG"
	EnvAutoPauseEnabled      = "AUTO_PAUSE_ENABLED"
	EnvAutoDisconnectEnabled = "AUTO_DISCONNECT_ENABLED"
	EnvSpamProtection        = "SPAM_PROTECTION_ENABLED"

	StoreBackendJSON   = "json"
	StoreBackendSQLite = "sqlite"
)

type Config struct {
	Token                 string
	GuildID               string
	MusicFolder           string
	DataDir               string
	StoreBackend          string
	TimingsFile           string
	LogFile               string
	Silent                bool
	AutoPauseEnabled      bool
	AutoDisconnectEnabled bool
	SpamProtection        bool
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Token:                 os.Getenv(EnvDiscordToken),
		GuildID:               os.Getenv(EnvGuildID),
		MusicFolder:           envOr(EnvMusicFolder, "music"),
		DataDir:               envOr(EnvDataDir, filepath.Join(xdg.DataHome, ProjectName)),
		StoreBackend:          strings.ToLower(envOr(EnvStoreBackend, StoreBackendJSON)),
		TimingsFile:           os.Getenv(EnvTimingsFile),
		LogFile:               os.Getenv(EnvLogFile),
		Silent:                envBool(EnvSilent, false),
		AutoPauseEnabled:      envBool(EnvAutoPauseEnabled, true),
		AutoDisconnectEnabled: envBool(EnvAutoDisconnectEnabled, true),
		SpamProtection:        envBool(EnvSpamProtection, true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadCatalogConfig is the token-free subset used by offline commands.
func LoadCatalogConfig() *Config {
	_ = godotenv.Load()
	return &Config{
		MusicFolder: envOr(EnvMusicFolder, "music"),
		DataDir:     envOr(EnvDataDir, filepath.Join(xdg.DataHome, ProjectName)),
		TimingsFile: os.Getenv(EnvTimingsFile),
	}
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf(MsgConfigInvalidGuildID)
	}
	if c.StoreBackend != StoreBackendJSON && c.StoreBackend != StoreBackendSQLite {
		return fmt.Errorf(MsgConfigInvalidBackend, c.StoreBackend)
	}
	if _, err := os.Stat(c.MusicFolder); err != nil {
		return fmt.Errorf(MsgConfigMusicMissing, c.MusicFolder)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}
