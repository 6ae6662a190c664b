// Package logger is the shared logging layer of the services: a thin wrapper
// over log/slog with a colored text handler for terminals and a JSON handler
// for collectors. Level, format and destination come from configuration and
// can be changed at runtime.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Config selects level (DEBUG, INFO, WARN, ERROR), format (text, json) and
// output (stdout, stderr, or a file path).
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

var (
	mu       sync.RWMutex
	level    = new(slog.LevelVar)
	format   = "text"
	output   io.Writer = os.Stdout
	useColor bool
	slogger  *slog.Logger
)

func init() {
	useColor = term.IsTerminal(int(os.Stdout.Fd()))
	rebuild()
}

// rebuild swaps the handler; callers hold mu.
func rebuild() {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		slogger = slog.New(slog.NewJSONHandler(output, opts))
	} else {
		slogger = slog.New(newTextHandler(output, opts, useColor))
	}
}

// Init applies cfg. Empty fields keep their current value, so a partial
// configuration only overrides what it names.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToLower(cfg.Output) {
	case "":
	case "stdout":
		output = os.Stdout
		useColor = term.IsTerminal(int(os.Stdout.Fd()))
	case "stderr":
		output = os.Stderr
		useColor = term.IsTerminal(int(os.Stderr.Fd()))
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file %q: %w", cfg.Output, err)
		}
		output = f
		useColor = false
	}

	if cfg.Level != "" {
		if err := setLevel(cfg.Level); err != nil {
			return err
		}
	}
	if cfg.Format != "" {
		if err := setFormat(cfg.Format); err != nil {
			return err
		}
	}

	rebuild()
	return nil
}

// InitWithWriter points the logger at w. Test helper.
func InitWithWriter(w io.Writer, levelName, formatName string) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	useColor = false
	_ = setLevel(levelName)
	_ = setFormat(formatName)
	rebuild()
}

func setLevel(name string) error {
	switch strings.ToUpper(name) {
	case "DEBUG":
		level.Set(slog.LevelDebug)
	case "INFO":
		level.Set(slog.LevelInfo)
	case "WARN":
		level.Set(slog.LevelWarn)
	case "ERROR":
		level.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level %q", name)
	}
	return nil
}

func setFormat(name string) error {
	name = strings.ToLower(name)
	if name != "text" && name != "json" {
		return fmt.Errorf("unknown log format %q", name)
	}
	format = name
	return nil
}

// SetLevel changes the minimum level at runtime. Unknown names are ignored.
func SetLevel(name string) {
	mu.Lock()
	defer mu.Unlock()
	_ = setLevel(name)
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// Debug logs key-value pairs: Debug("msg", "key", value, ...).
func Debug(msg string, args ...any) {
	current().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	current().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	current().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	current().Error(msg, args...)
}

// With returns a child logger carrying args on every record.
func With(args ...any) *slog.Logger {
	return current().With(args...)
}
