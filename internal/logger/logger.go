// Package logger is the structured logger shared by every dbbrowse component.
//
// It wraps zerolog. Components derive child loggers with Component or
// Connection; nothing here touches zerolog's package-level settings, so two
// loggers with different configs can coexist in one process (tests do).
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog. Every component gets its own child logger;
// there is no package-level instance.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level      string // debug, info, warn, error, disabled
	Format     string // json, console
	TimeFormat string // rfc3339, unix, unixms, unixmicro
	Output     io.Writer
}

// DefaultConfig logs JSON at info level to stderr, leaving stdout to the CLI.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: "rfc3339",
		Output:     os.Stderr,
	}
}

// New creates a logger from cfg. A nil cfg uses DefaultConfig.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zlog := zerolog.New(out).Hook(timestampHook(cfg.TimeFormat))
	return &Logger{zlog: zlog.Level(parseLevel(cfg.Level))}
}

// Nop returns a logger that discards everything. Used by tests and as the
// fallback when a component is constructed without one.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// OrNop returns l, or a Nop logger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// With starts a child logger with additional fields.
func (l *Logger) With() *Context {
	return &Context{ctx: l.zlog.With()}
}

// Component is shorthand for With().Str("component", name).Logger().
func (l *Logger) Component(name string) *Logger {
	return l.With().Str("component", name).Logger()
}

// Connection tags every entry with a saved connection and its dialect.
func (l *Logger) Connection(id, dialect string) *Logger {
	return l.With().Str("conn", id).Str("dialect", dialect).Logger()
}

// Context wraps zerolog.Context for field chaining.
type Context struct {
	ctx zerolog.Context
}

func (c *Context) Str(key, val string) *Context {
	c.ctx = c.ctx.Str(key, val)
	return c
}

func (c *Context) Int(key string, val int) *Context {
	c.ctx = c.ctx.Int(key, val)
	return c
}

func (c *Context) Bool(key string, val bool) *Context {
	c.ctx = c.ctx.Bool(key, val)
	return c
}

// Dur adds d in milliseconds.
func (c *Context) Dur(key string, d time.Duration) *Context {
	c.ctx = c.ctx.Int64(key+"_ms", d.Milliseconds())
	return c
}

func (c *Context) Err(err error) *Context {
	c.ctx = c.ctx.Err(err)
	return c
}

func (c *Context) Any(key string, val interface{}) *Context {
	c.ctx = c.ctx.Interface(key, val)
	return c
}

func (c *Context) Logger() *Logger {
	return &Logger{zlog: c.ctx.Logger()}
}

func (l *Logger) Debug(msg string) { l.zlog.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zlog.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zlog.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zlog.Error().Msg(msg) }

// InfoWith logs msg with extra fields.
func (l *Logger) InfoWith(msg string, fields map[string]interface{}) {
	withFields(l.zlog.Info(), fields).Msg(msg)
}

// WarnWith logs msg with an optional error and extra fields.
func (l *Logger) WarnWith(msg string, err error, fields map[string]interface{}) {
	event := l.zlog.Warn()
	if err != nil {
		event = event.Err(err)
	}
	withFields(event, fields).Msg(msg)
}

// ErrorWith logs msg with err and extra fields.
func (l *Logger) ErrorWith(msg string, err error, fields map[string]interface{}) {
	withFields(l.zlog.Error().Err(err), fields).Msg(msg)
}

func withFields(event *zerolog.Event, fields map[string]interface{}) *zerolog.Event {
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	return event
}

// parseLevel accepts zerolog's level names plus "off"; anything unknown
// falls back to info.
func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "off" {
		return zerolog.Disabled
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// timestampHook writes the "time" field in the configured format.
type timestampHook string

func (h timestampHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	now := time.Now()
	switch h {
	case "unix":
		e.Int64(zerolog.TimestampFieldName, now.Unix())
	case "unixms":
		e.Int64(zerolog.TimestampFieldName, now.UnixMilli())
	case "unixmicro":
		e.Int64(zerolog.TimestampFieldName, now.UnixMicro())
	default:
		e.Str(zerolog.TimestampFieldName, now.Format(time.RFC3339))
	}
}
