package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Category int

const (
	Application Category = iota
	DiscordEvents
	Database
	Errors
)

var categoryFiles = map[Category]string{
	Application:   "application.log",
	DiscordEvents: "discord_events.log",
	Database:      "database.log",
	Errors:        "error.log",
}

func (c Category) String() string {
	switch c {
	case Application:
		return "application"
	case DiscordEvents:
		return "discord"
	case Database:
		return "database"
	case Errors:
		return "error"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Options controls where SetupLogger writes. An empty Dir keeps output on
// stdout/stderr only.
type Options struct {
	Dir        string
	Level      slog.Level
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Stdout     io.Writer
	Stderr     io.Writer
}

// Logger holds one slog.Logger per category plus the rotating files behind them.
type Logger struct {
	mu      sync.RWMutex
	loggers map[Category]*slog.Logger
	files   []*lumberjack.Logger
}

// GlobalLogger starts as a console-only logger so packages can log before
// SetupLogger runs (tests, early bootstrap failures).
var GlobalLogger = newConsoleLogger(os.Stdout, os.Stderr, slog.LevelInfo)

var setupOnce sync.Once

func newConsoleLogger(stdout, stderr io.Writer, level slog.Level) *Logger {
	l := &Logger{loggers: make(map[Category]*slog.Logger, len(categoryFiles))}
	for cat := range categoryFiles {
		out := stdout
		if cat == Errors {
			out = stderr
		}
		l.loggers[cat] = newCategoryLogger(out, level, cat)
	}
	return l
}

func newCategoryLogger(w io.Writer, level slog.Level, cat Category) *slog.Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("category", cat.String())
}

// SetupLogger points every category at stdout (stderr for errors) and a
// lumberjack-rotated file under opts.Dir. Only the first call has any effect.
func SetupLogger(opts Options) error {
	var setupErr error
	setupOnce.Do(func() {
		stdout, stderr := opts.Stdout, opts.Stderr
		if stdout == nil {
			stdout = os.Stdout
		}
		if stderr == nil {
			stderr = os.Stderr
		}
		if opts.Dir == "" {
			GlobalLogger.replace(newConsoleLogger(stdout, stderr, opts.Level))
			return
		}
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			setupErr = fmt.Errorf("create log dir: %w", err)
			return
		}

		next := &Logger{loggers: make(map[Category]*slog.Logger, len(categoryFiles))}
		for cat, name := range categoryFiles {
			file := &lumberjack.Logger{
				Filename:   filepath.Join(opts.Dir, name),
				MaxSize:    orDefault(opts.MaxSizeMB, 20),
				MaxBackups: orDefault(opts.MaxBackups, 5),
				MaxAge:     orDefault(opts.MaxAgeDays, 14),
				LocalTime:  true,
				Compress:   true,
			}
			next.files = append(next.files, file)

			console := stdout
			if cat == Errors {
				console = stderr
			}
			next.loggers[cat] = newCategoryLogger(io.MultiWriter(console, file), opts.Level, cat)
		}
		GlobalLogger.replace(next)
	})
	return setupErr
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (l *Logger) replace(next *Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loggers = next.loggers
	l.files = next.files
}

// For returns the logger of a category.
func (l *Logger) For(cat Category) *slog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if lg, ok := l.loggers[cat]; ok {
		return lg
	}
	return slog.Default()
}

// Sync closes the rotating files. Loggers keep working on the console afterwards.
func (l *Logger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func ApplicationLogger() *slog.Logger { return GlobalLogger.For(Application) }
func DiscordLogger() *slog.Logger     { return GlobalLogger.For(DiscordEvents) }
func DatabaseLogger() *slog.Logger    { return GlobalLogger.For(Database) }

// ErrorLoggerRaw is the error category logger; it mirrors to error.log.
func ErrorLoggerRaw() *slog.Logger { return GlobalLogger.For(Errors) }
