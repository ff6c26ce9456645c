package sys

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Timings holds every threshold the playback core consumes. Durations are
// written as Go duration strings in timings.toml ("1.5s", "10m").
type Timings struct {
	Spam     SpamTimings                `koanf:"spam"`
	Circuit  CircuitTimings             `koanf:"circuit"`
	Queue    QueueTimings               `koanf:"queue"`
	Buttons  ButtonTimings              `koanf:"buttons"`
	Debounce map[string]DebounceTimings `koanf:"debounce"`
	Presence PresenceTimings            `koanf:"presence"`
	Hang     HangTimings                `koanf:"hang"`
	Playback PlaybackTimings            `koanf:"playback"`
	Library  LibraryTimings             `koanf:"library"`
	Store    StoreTimings               `koanf:"store"`
}

type SpamTimings struct {
	Enabled         bool          `koanf:"enabled"`
	TriggerCount    int           `koanf:"trigger_count"`
	TriggerWindow   time.Duration `koanf:"trigger_window"`
	SessionDuration time.Duration `koanf:"session_duration"`
	CleanupAfter    time.Duration `koanf:"cleanup_after"`
	Warnings        []string      `koanf:"warnings"`
}

type CircuitTimings struct {
	Enabled       bool          `koanf:"enabled"`
	Ceiling       int           `koanf:"ceiling"`
	Window        time.Duration `koanf:"window"`
	BreakDuration time.Duration `koanf:"break_duration"`
	Penalties     []int         `koanf:"penalties"`
	PenaltyReset  time.Duration `koanf:"penalty_reset"`
}

type QueueTimings struct {
	Size                  int           `koanf:"size"`
	WarnRatio             float64       `koanf:"warn_ratio"`
	EnqueueTimeout        time.Duration `koanf:"enqueue_timeout"`
	PriorityTimeoutFactor float64       `koanf:"priority_timeout_factor"`
}

type ButtonTimings struct {
	Cooldowns           map[string]time.Duration `koanf:"cooldowns"`
	ShowCooldownMessage bool                     `koanf:"show_cooldown_message"`
}

type DebounceTimings struct {
	Window        time.Duration `koanf:"window"`
	Cooldown      time.Duration `koanf:"cooldown"`
	SpamThreshold int           `koanf:"spam_threshold"`
}

type PresenceTimings struct {
	PauseDelay      time.Duration `koanf:"pause_delay"`
	DisconnectDelay time.Duration `koanf:"disconnect_delay"`
	Interval        time.Duration `koanf:"interval"`
	AutoPause       bool          `koanf:"auto_pause"`
	AutoDisconnect  bool          `koanf:"auto_disconnect"`
}

type HangTimings struct {
	Interval   time.Duration `koanf:"interval"`
	Timeout    time.Duration `koanf:"timeout"`
	IdleFactor int           `koanf:"idle_factor"`
}

type PlaybackTimings struct {
	SettleDelay         time.Duration `koanf:"settle_delay"`
	SettleMaxWait       time.Duration `koanf:"settle_max_wait"`
	SettlePoll          time.Duration `koanf:"settle_poll"`
	CallbackMinInterval time.Duration `koanf:"callback_min_interval"`
	HistorySize         int           `koanf:"history_size"`
}

type LibraryTimings struct {
	MaxPlaylistSize int           `koanf:"max_playlist_size"`
	Extensions      []string      `koanf:"extensions"`
	WatchDebounce   time.Duration `koanf:"watch_debounce"`
}

type StoreTimings struct {
	FlushInterval time.Duration `koanf:"flush_interval"`
}

// DefaultTimings returns the shipped thresholds.
func DefaultTimings() *Timings {
	return &Timings{
		Spam: SpamTimings{
			Enabled:         true,
			TriggerCount:    3,
			TriggerWindow:   2500 * time.Millisecond,
			SessionDuration: 8 * time.Second,
			CleanupAfter:    30 * time.Minute,
			Warnings: []string{
				"Easy there. I'll do it when you stop button mashing.",
				"Whoa! One thing at a time, please.",
				"Take it easy... spamming won't make me work faster.",
				"Calm down, I heard you the first time.",
			},
		},
		Circuit: CircuitTimings{
			Enabled:       true,
			Ceiling:       5,
			Window:        2 * time.Second,
			BreakDuration: 20 * time.Second,
			Penalties:     []int{1, 2, 4, 8},
			PenaltyReset:  3 * time.Minute,
		},
		Queue: QueueTimings{
			Size:                  30,
			WarnRatio:             0.9,
			EnqueueTimeout:        time.Second,
			PriorityTimeoutFactor: 2,
		},
		Buttons: ButtonTimings{
			Cooldowns: map[string]time.Duration{
				"playpause": 500 * time.Millisecond,
				"skip":      1500 * time.Millisecond,
				"previous":  1500 * time.Millisecond,
				"shuffle":   2 * time.Second,
				"stop":      time.Second,
			},
		},
		Debounce: map[string]DebounceTimings{
			"skip":     {Window: time.Second, Cooldown: time.Second, SpamThreshold: 10},
			"pause":    {Window: 2 * time.Second, Cooldown: 2 * time.Second, SpamThreshold: 5},
			"resume":   {Window: 2 * time.Second, Cooldown: 2 * time.Second, SpamThreshold: 5},
			"stop":     {Window: 2 * time.Second, Cooldown: 2 * time.Second, SpamThreshold: 5},
			"previous": {Window: 2500 * time.Millisecond, Cooldown: 2 * time.Second, SpamThreshold: 5},
			"shuffle":  {Window: 2500 * time.Millisecond, Cooldown: 2 * time.Second, SpamThreshold: 5},
			"loop":     {Window: 2500 * time.Millisecond, Cooldown: 2 * time.Second, SpamThreshold: 5},
			"queue":    {Window: 2 * time.Second, Cooldown: time.Second, SpamThreshold: 5},
			"jump":     {Window: time.Second, Cooldown: time.Second, SpamThreshold: 5},
			"playlist": {Window: 1500 * time.Millisecond, Cooldown: 500 * time.Millisecond, SpamThreshold: 5},
		},
		Presence: PresenceTimings{
			PauseDelay:      10 * time.Second,
			DisconnectDelay: 10 * time.Minute,
			Interval:        10 * time.Second,
			AutoPause:       true,
			AutoDisconnect:  true,
		},
		Hang: HangTimings{
			Interval:   10 * time.Minute,
			Timeout:    11 * time.Minute,
			IdleFactor: 5,
		},
		Playback: PlaybackTimings{
			SettleDelay:         50 * time.Millisecond,
			SettleMaxWait:       500 * time.Millisecond,
			SettlePoll:          50 * time.Millisecond,
			CallbackMinInterval: time.Second,
			HistorySize:         100,
		},
		Library: LibraryTimings{
			MaxPlaylistSize: 1000,
			Extensions:      []string{".opus", ".ogg"},
			WatchDebounce:   2 * time.Second,
		},
		Store: StoreTimings{
			FlushInterval: 10 * time.Second,
		},
	}
}

// LoadTimings layers timings.toml files over DefaultTimings. Later paths win;
// explicit, when set, must exist.
func LoadTimings(explicit string) (*Timings, error) {
	k := koanf.New(".")

	paths := []string{
		filepath.Join(xdg.ConfigHome, ProjectName, "timings.toml"),
		"timings.toml",
	}
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return nil, fmt.Errorf("timings file: %w", err)
		}
		paths = append(paths, explicit)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	t := DefaultTimings()
	defaults := DefaultTimings()
	if err := k.Unmarshal("", t); err != nil {
		return nil, fmt.Errorf("decode timings: %w", err)
	}

	// Lists are replaced wholesale rather than merged index by index.
	if k.Exists("spam.warnings") {
		t.Spam.Warnings = k.Strings("spam.warnings")
	}
	if k.Exists("circuit.penalties") {
		t.Circuit.Penalties = k.Ints("circuit.penalties")
	}
	if k.Exists("library.extensions") {
		t.Library.Extensions = k.Strings("library.extensions")
	}

	for name, d := range t.Debounce {
		def, ok := defaults.Debounce[name]
		if !ok {
			continue
		}
		if d.Window == 0 {
			d.Window = def.Window
		}
		if d.Cooldown == 0 {
			d.Cooldown = def.Cooldown
		}
		if d.SpamThreshold == 0 {
			d.SpamThreshold = def.SpamThreshold
		}
		t.Debounce[name] = d
	}

	return t, t.Validate()
}

func (t *Timings) Validate() error {
	switch {
	case t.Queue.Size <= 0:
		return fmt.Errorf("queue.size must be positive")
	case t.Playback.HistorySize <= 0:
		return fmt.Errorf("playback.history_size must be positive")
	case t.Circuit.Enabled && (t.Circuit.Ceiling <= 0 || t.Circuit.Window <= 0):
		return fmt.Errorf("circuit.ceiling and circuit.window must be positive")
	case len(t.Circuit.Penalties) == 0:
		return fmt.Errorf("circuit.penalties must not be empty")
	case t.Presence.PauseDelay >= t.Presence.DisconnectDelay:
		return fmt.Errorf("presence.pause_delay must be shorter than presence.disconnect_delay")
	case t.Hang.IdleFactor < 1:
		return fmt.Errorf("hang.idle_factor must be at least 1")
	}
	return nil
}
