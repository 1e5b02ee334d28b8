// Package logx provides component-scoped structured loggers.
package logx

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// Component identifies a subsystem for log filtering.
type Component string

const (
	ComponentMux       Component = "usbmux"
	ComponentANX       Component = "anx7483"
	ComponentXbar      Component = "xbarmux"
	ComponentService   Component = "mux-service"
	ComponentConfig    Component = "config"
	ComponentIRQ       Component = "gpioirq"
	ComponentChipset   Component = "chipset"
	ComponentPlatform  Component = "platform"
	ComponentHeartbeat Component = "heartbeat"
)

// Format selects the handler used by SetFormat.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

var (
	mu     sync.RWMutex
	level  = new(slog.LevelVar)
	logger *slog.Logger
)

func init() {
	level.Set(slog.LevelInfo)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// SetLevel sets the minimum level for every component logger, including
// ones handed out earlier.
func SetLevel(l slog.Level) { level.Set(l) }

func Level() slog.Level { return level.Level() }

// SetLogger replaces the root logger. Loggers already returned by For keep
// their previous handler.
func SetLogger(l *slog.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

// SetOutput points the root logger at w using the given format.
func SetOutput(w io.Writer, f Format) {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch f {
	case FormatJSON:
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	SetLogger(slog.New(h))
}

// ParseFormat maps "json" to FormatJSON; anything else is text.
func ParseFormat(s string) Format {
	if s == "json" {
		return FormatJSON
	}
	return FormatText
}

// For returns a logger tagged with component.
func For(c Component) *slog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	return l.With("component", string(c))
}

// Discard is a logger that drops everything (tests).
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel accepts debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(s))
	return l, err
}
