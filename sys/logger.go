package sys

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// --- Globals & Styles ---

var (
	// Level colors
	infoColor  = color.New()
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
	fatalColor = color.New(color.FgRed, color.Bold)

	// Component colors
	databaseColor = color.New()
	playbackColor = color.New(color.FgMagenta)
	mirrorColor   = color.New(color.FgMagenta)
	voiceColor    = color.New(color.FgMagenta)
	watcherColor  = color.New(color.FgMagenta)
	boardColor    = color.New(color.FgMagenta)

	// Global state
	DefaultTimeFormat = "15:04:05"
	IsSilent          = false
	LogToFile         = false
	Logger            *slog.Logger

	// Internal state
	logFile *os.File
	logMu   sync.Mutex
)

// --- Initialization ---

func init() {
	InitLogger(false, false)
}

// InitLogger initializes the global structured logger
func InitLogger(silent bool, saveToFile bool) {
	logMu.Lock()
	defer logMu.Unlock()

	IsSilent = silent
	LogToFile = saveToFile
	level := slog.LevelInfo
	if strings.ToLower(os.Getenv("DEBUG")) == "true" {
		level = slog.LevelDebug
	}

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writer io.Writer = os.Stdout
	var err error

	if LogToFile {
		exePath, exeErr := os.Executable()
		logName := GetProjectName() + ".log"
		if exeErr == nil {
			logName = filepath.Base(exePath) + ".log"
		}

		logFile, err = os.OpenFile(logName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", logName, err)
		} else {
			writer = io.MultiWriter(os.Stdout, NewStripANSIWriter(logFile))
		}
	}

	color.NoColor = false

	handler := NewBotLogHandler(writer, &BotLogHandlerOptions{
		Silent: IsSilent,
		Level:  level,
	})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func SetSilentMode(silent bool) {
	InitLogger(silent, LogToFile)
}

// --- Public Logging API ---

func LogInfo(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...))
}

func LogWarn(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...))
}

func LogError(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...))
}

func LogFatal(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	slog.Log(context.Background(), slog.LevelError+4, msg)
	panic(msg)
}

func LogDebug(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...))
}

// Component Loggers

func LogDatabase(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "database"))
}

func LogPlayback(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "playback"))
}

func LogMirror(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "mirror"))
}

func LogVoice(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "voice"))
}

func LogWatcher(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "watcher"))
}

func LogBoard(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "board"))
}

func LogCustom(tag string, tagColor *color.Color, format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", tag))
}

// --- Log Handler Implementation ---

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
	var levelStr string
	var levelColor *color.Color

	switch {
	case r.Level >= slog.LevelError+4:
		levelStr = "FATAL"
		levelColor = fatalColor
	case r.Level >= slog.LevelError:
		levelStr = "ERROR"
		levelColor = errorColor
	case r.Level >= slog.LevelWarn:
		levelStr = "WARN"
		levelColor = warnColor
	case r.Level >= slog.LevelInfo:
		levelStr = "INFO"
		levelColor = infoColor
	}

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
		compColor := getComponentColor(component)
		fmt.Fprintf(h.w, " %s\n", colorizeWithResets(compColor, fmt.Sprintf("[%s] %s", component, r.Message)))
	} else {
		displayMsg := fmt.Sprintf("[%s] %s", levelStr, r.Message)
		if levelStr == "INFO" && strings.HasPrefix(r.Message, "[") {
			if idx := strings.Index(r.Message, "]"); idx > 0 && idx < 20 {
				displayMsg = r.Message
			}
		}
		fmt.Fprintf(h.w, " %s\n", colorizeWithResets(levelColor, displayMsg))
	}

	return nil
}

func (h *BotLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *BotLogHandler) WithGroup(name string) slog.Handler       { return h }

// --- Formatting Helpers ---

func getComponentColor(name string) *color.Color {
	switch name {
	case "DATABASE":
		return databaseColor
	case "PLAYBACK":
		return playbackColor
	case "MIRROR":
		return mirrorColor
	case "VOICE":
		return voiceColor
	case "WATCHER":
		return watcherColor
	case "BOARD":
		return boardColor
	default:
		return color.New(color.FgCyan)
	}
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

	modifiedText := strings.ReplaceAll(text, "\x1b[0m", "\x1b[0m"+startSeq)
	return c.Sprint(modifiedText)
}

// --- Utilities & State ---

func GetLogPath() string {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile == nil {
		return ""
	}
	return logFile.Name()
}

// --- ANSI Stripper ---

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
	clean := s.re.ReplaceAll(p, []byte(""))
	_, err = s.w.Write(clean)
	return len(p), err
}

// --- Message Constants ---

const (
	// --- Infrastructure & Lifecycle ---
	MsgConfigFailedToLoad  = "Failed to load config: %v"
	MsgConfigMissingToken  = "DISCORD_TOKEN is not set in .env file"
	MsgDatabaseInitSuccess = "Database initialized successfully"
	MsgDatabaseTableError  = "Failed to create table: %w"
	MsgDatabasePragmaError = "Failed to set pragma %s: %w"
	MsgDaemonStarting      = "Starting..."
	MsgBotStarting         = "Starting %s..."
	MsgBotReady            = "%s is ready! (ID: %s) (PID: %d) (Took: %dms)"
	MsgBotShutdown         = "Shutting down %s..."
	MsgBotKillingOld       = "Killing running instance... (PID: %d)"
	MsgBotKillFail         = "Failed to kill old instance: %v"
	MsgBotOldTerminated    = "Old instance terminated."
	MsgBotPIDWriteFail     = "Failed to write PID file: %v"
	MsgBotRegisterFail     = "Command registration failed: %v"
	MsgBotAPIStatusError   = "discord API returned status %d"
	MsgGenericError        = "%v"

	// --- Command Loader & Registry ---
	MsgLoaderSyncCommands       = "Syncing %s commands..."
	MsgLoaderCleanup            = "[CLEANUP] Removing commands from previous dev guild: %s"
	MsgLoaderDevStarting        = "[DEV] Registering commands to guild: %s"
	MsgLoaderDevRegistered      = "[DEV] Registered: %s"
	MsgLoaderDevFail            = "[DEV] Registration failed: %v"
	MsgLoaderDevGlobalClear     = "[DEV] Verifying global commands are cleared..."
	MsgLoaderDevGlobalClearFail = "[DEV] Global clear skipped (likely rate limited): %v"
	MsgLoaderProdStarting       = "[PROD] Registering commands globally..."
	MsgLoaderProdRegistered     = "[PROD] Registered: %s"
	MsgLoaderProdFail           = "[PROD] Global registration failed: %w"
	MsgLoaderScanStarting       = "[SCAN] Checking all guilds for ghost commands..."
	MsgLoaderScanCleared        = "[SCAN] Cleared ghost commands from: %s (%s)"
	MsgLoaderPanicRecovered     = "Panic recovered in handler: %v"

	// --- Playback Coordinator ---
	MsgPlaybackAccepted       = "Accepted play request: %s (by %s) [%s]"
	MsgPlaybackResolvedLocal  = "Resolved %s to local file: %s"
	MsgPlaybackResolvedMirror = "Resolved %s to mirrored file: %s"
	MsgPlaybackMirrorFallback = "Mirror unavailable for %s, streaming origin URL: %v"
	MsgPlaybackRetry          = "Attempt %d/%d failed for %s: %v"
	MsgPlaybackStopCollision  = "Voice client reports audio in progress, forcing stop before retry"
	MsgPlaybackSucceeded      = "Finished playing %s (requested by %s)"
	MsgPlaybackFailed         = "Playback failed for %s: %v"
	MsgPlaybackWorkerCrash    = "Playback worker crashed: %v"
	MsgPlaybackStopped        = "Playback stopped on request"
	MsgPlaybackSuperseded     = "Playback of %s superseded by stop, winding down"
	MsgPlaybackInvalidated    = "Cache entry invalidated: %s"

	// --- Remote Mirror ---
	MsgMirrorRevalidated  = "Validator unchanged for %s, keeping mirrored copy"
	MsgMirrorProbeFailed  = "Origin probe failed for %s, keeping mirrored copy: %v"
	MsgMirrorStale        = "Validator changed for %s, refetching"
	MsgMirrorFetched      = "Mirrored %s -> %s"
	MsgMirrorFetchFailed  = "Failed to mirror %s: %v"
	MsgMirrorEvictedStale = "Evicted stale mirror copy: %s"

	// --- Voice Session ---
	MsgVoiceBound        = "Bound to guild %s channel %s"
	MsgVoiceUnbound      = "Voice binding cleared"
	MsgVoiceJoining      = "Joining voice channel %s (attempt %d/%d)"
	MsgVoiceReady        = "Voice connection confirmed ready"
	MsgVoiceNotReady     = "Voice connection not ready after %d attempts"
	MsgVoiceHealthRejoin = "Health check found connection unready, rejoining..."
	MsgVoiceHealthFail   = "Rejoin failed, clearing binding: %v"

	// --- Library Watcher ---
	MsgWatcherStarted    = "Watching sounds directory: %s"
	MsgWatcherInvalidate = "Sound file changed on disk, invalidating: %s"
	MsgWatcherError      = "Watcher error: %v"

	// --- Board Commands ---
	MsgBoardErrGuildOnly   = "This command can only be used in a server."
	MsgBoardErrNotInVoice  = "You need to be in a voice channel first."
	MsgBoardErrNotBound    = "Not bound to a voice channel. Use `/board join` first."
	MsgBoardErrBusy        = "Another sound is playing. Try again in a moment."
	MsgBoardErrNotFound    = "No sound named **%s** exists."
	MsgBoardErrFileMissing = "The file for **%s** is missing on disk."
	MsgBoardErrOwnerOnly   = "Only bot owners can manage the catalog."
	MsgBoardErrPlayFail    = "Failed to start playback: %v"
	MsgBoardPlaying        = "Playing **%s**"
	MsgBoardPlayDone       = "Played **%s**"
	MsgBoardPlayFailed     = "Playback failed: %s"
	MsgBoardStopped        = "Stopped."
	MsgBoardJoined         = "Joined <#%s>."
	MsgBoardLeft           = "Left the voice channel."
	MsgBoardNoSounds       = "The catalog is empty. Add sounds with `/board upsert`."
	MsgBoardUpserted       = "Saved sound **%s**."
	MsgBoardRemoved        = "Removed sound **%s**."
)
