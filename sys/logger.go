package sys

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelFatal sits above slog.LevelError; LogFatal uses it before panicking.
const LevelFatal = slog.LevelError + 4

var (
	infoColor  = color.New()
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
	fatalColor = color.New(color.FgRed, color.Bold)
	debugColor = color.New(color.FgHiBlack)

	componentColors = map[string]*color.Color{
		"VOICE":    color.New(color.FgMagenta),
		"PLAYER":   color.New(color.FgCyan),
		"ARBITER":  color.New(color.FgYellow),
		"WATCHDOG": color.New(color.FgBlue),
		"CATALOG":  color.New(color.FgGreen),
		"STORE":    color.New(),
	}

	DefaultTimeFormat = "15:04:05"
	IsSilent          = false
	Logger            *slog.Logger

	logSink *lumberjack.Logger
	logMu   sync.Mutex
)

func init() {
	InitLogger(false, "")
}

// InitLogger installs the colored handler as the slog default. A non-empty
// logPath adds a rotating, ANSI-stripped file sink.
func InitLogger(silent bool, logPath string) {
	logMu.Lock()
	defer logMu.Unlock()

	IsSilent = silent
	level := slog.LevelInfo
	if strings.ToLower(os.Getenv(EnvDebug)) == "true" {
		level = slog.LevelDebug
	}

	if logSink != nil {
		_ = logSink.Close()
		logSink = nil
	}

	var writer io.Writer = os.Stdout
	if logPath != "" {
		logSink = &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		writer = io.MultiWriter(os.Stdout, NewStripANSIWriter(logSink))
	}

	color.NoColor = false

	Logger = slog.New(NewBotLogHandler(writer, &BotLogHandlerOptions{
		Silent: IsSilent,
		Level:  level,
	}))
	slog.SetDefault(Logger)
}

// CloseLogger flushes and closes the file sink, if any.
func CloseLogger() {
	logMu.Lock()
	defer logMu.Unlock()
	if logSink != nil {
		_ = logSink.Close()
		logSink = nil
	}
}

func LogInfo(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...))
}

func LogWarn(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...))
}

func LogError(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...))
}

func LogDebug(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...))
}

func LogFatal(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	slog.Log(context.Background(), LevelFatal, msg)
	panic(msg)
}

func LogVoice(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "voice"))
}

func LogPlayer(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "player"))
}

func LogArbiter(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "arbiter"))
}

func LogWatchdog(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "watchdog"))
}

func LogCatalog(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "catalog"))
}

func LogStore(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "store"))
}

type BotLogHandlerOptions struct {
	Silent bool
	Level  slog.Leveler
}

type BotLogHandler struct {
	w    io.Writer
	opts *BotLogHandlerOptions
	mu   *sync.Mutex
}

func NewBotLogHandler(w io.Writer, opts *BotLogHandlerOptions) *BotLogHandler {
	if opts == nil {
		opts = &BotLogHandlerOptions{Level: slog.LevelInfo}
	}
	return &BotLogHandler{
		w:    w,
		opts: opts,
		mu:   &sync.Mutex{},
	}
}

func (h *BotLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.opts.Silent {
		return false
	}
	return level >= h.opts.Level.Level()
}

func (h *BotLogHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.opts.Silent {
		return nil
	}

	timeStr := time.Now().Format(DefaultTimeFormat)
	levelStr, levelColor := levelLabel(r.Level)

	component := ""
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			component = strings.ToUpper(a.Value.String())
			return false
		}
		return true
	})

	fmt.Fprintf(h.w, "%s", timeStr)

	if component != "" {
		if levelStr != "INFO" {
			fmt.Fprintf(h.w, " %s", levelColor.Sprintf("[%s]", levelStr))
		}
		fmt.Fprintf(h.w, " %s\n", colorizeWithResets(getComponentColor(component), fmt.Sprintf("[%s] %s", component, r.Message)))
		return nil
	}

	fmt.Fprintf(h.w, " %s\n", colorizeWithResets(levelColor, fmt.Sprintf("[%s] %s", levelStr, r.Message)))
	return nil
}

func (h *BotLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *BotLogHandler) WithGroup(name string) slog.Handler       { return h }

func levelLabel(level slog.Level) (string, *color.Color) {
	switch {
	case level >= LevelFatal:
		return "FATAL", fatalColor
	case level >= slog.LevelError:
		return "ERROR", errorColor
	case level >= slog.LevelWarn:
		return "WARN", warnColor
	case level >= slog.LevelInfo:
		return "INFO", infoColor
	default:
		return "DEBUG", debugColor
	}
}

func getComponentColor(name string) *color.Color {
	if c, ok := componentColors[name]; ok {
		return c
	}
	return color.New(color.FgMagenta)
}

func colorizeWithResets(c *color.Color, text string) string {
	if !strings.Contains(text, "\x1b[0m") {
		return c.Sprint(text)
	}

	marker := "@@@MSG@@@"
	wrapped := c.Sprint(marker)
	idx := strings.Index(wrapped, marker)
	if idx <= 0 {
		return text
	}
	startSeq := wrapped[:idx]

	return c.Sprint(strings.ReplaceAll(text, "\x1b[0m", "\x1b[0m"+startSeq))
}

// StripANSIWriter removes color escapes before writing to files.
type StripANSIWriter struct {
	w  io.Writer
	re *regexp.Regexp
}

func NewStripANSIWriter(w io.Writer) *StripANSIWriter {
	return &StripANSIWriter{
		w:  w,
		re: regexp.MustCompile(`\x1b\[[0-9;]*m`),
	}
}

func (s *StripANSIWriter) Write(p []byte) (n int, err error) {
	_, err = s.w.Write(s.re.ReplaceAll(p, nil))
	return len(p), err
}
