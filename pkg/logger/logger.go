package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"weibocrawler/pkg/config"
)

// Logger defines the interface for logging operations
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)

	// Derived loggers carry their fields on every later message
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	// WithContext attaches the session and account carried by ctx
	WithContext(ctx context.Context) Logger

	DebugWithFields(msg string, fields map[string]interface{})
	InfoWithFields(msg string, fields map[string]interface{})
	WarnWithFields(msg string, fields map[string]interface{})
	ErrorWithFields(msg string, fields map[string]interface{})
	FatalWithFields(msg string, fields map[string]interface{})

	GetZerolog() *zerolog.Logger
}

type sessionKey struct{}
type userKey struct{}

// ContextWithSession tags ctx with the id of the crawl session it serves
func ContextWithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionFromContext returns the session id carried by ctx, if any
func SessionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// ContextWithUser tags ctx with the account being crawled
func ContextWithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFromContext returns the account id carried by ctx, if any
func UserFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

// contextFields collects the crawl identifiers carried by ctx
func contextFields(ctx context.Context) map[string]interface{} {
	fields := map[string]interface{}{}
	if id := SessionFromContext(ctx); id != "" {
		fields["session_id"] = id
	}
	if id := UserFromContext(ctx); id != "" {
		fields["user_id"] = id
	}
	return fields
}

// zerologLogger carries its fields in the zerolog context
type zerologLogger struct {
	zl zerolog.Logger
}

var levelTags = map[string]string{
	"debug": "DEBG",
	"info":  "INFO",
	"warn":  "WARN",
	"error": "ERRO",
	"fatal": "FATL",
	"panic": "PNIC",
}

var levelColors = map[string]string{
	"debug": "\033[37m",
	"info":  "\033[32m",
	"warn":  "\033[33m",
	"error": "\033[31m",
	"fatal": "\033[35m",
	"panic": "\033[35m",
}

// New creates a Logger that writes human readable lines to stderr and, when
// cfg.File is set, JSON lines to that file.
func New(cfg *config.LoggingConfig) (Logger, error) {
	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = consoleWriter(os.Stderr, cfg.NoColor)
	if cfg.File != "" {
		file, err := openLogFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to setup file output: %w", err)
		}
		output = zerolog.MultiLevelWriter(output, file)
	}

	zl := zerolog.New(output).Level(level).With().
		Timestamp().
		Str("app", "weibocrawler").
		Logger()
	return &zerologLogger{zl: zl}, nil
}

func consoleWriter(out io.Writer, noColor bool) zerolog.ConsoleWriter {
	paint := func(code, s string) string {
		if noColor {
			return s
		}
		return code + s + "\033[0m"
	}
	return zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    noColor,
		TimeFormat: "15:04:05",
		// The app field is the same on every line
		FieldsExclude: []string{"app"},
		FormatLevel: func(i interface{}) string {
			name, _ := i.(string)
			tag, ok := levelTags[name]
			if !ok {
				return strings.ToUpper(name)
			}
			return paint(levelColors[name], tag)
		},
		FormatMessage: func(i interface{}) string {
			if i == nil {
				return ""
			}
			return fmt.Sprintf("| %s", i)
		},
		FormatFieldName: func(i interface{}) string {
			return paint("\033[36m", fmt.Sprintf("%s", i)) + ":"
		},
	}
}

// openLogFile appends to path, creating its directory
func openLogFile(path string) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

// parseLogLevel converts string log level to zerolog.Level
func parseLogLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "warning":
		return zerolog.WarnLevel, nil
	case "disabled":
		return zerolog.Disabled, nil
	case "debug", "info", "warn", "error", "fatal", "panic":
		return zerolog.ParseLevel(strings.ToLower(level))
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}

func (l *zerologLogger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *zerologLogger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *zerologLogger) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *zerologLogger) Error(msg string) { l.zl.Error().Msg(msg) }
func (l *zerologLogger) Fatal(msg string) { l.zl.Fatal().Msg(msg) }

func (l *zerologLogger) WithField(key string, value interface{}) Logger {
	return &zerologLogger{zl: withField(l.zl.With(), key, value).Logger()}
}

func (l *zerologLogger) WithFields(fields map[string]interface{}) Logger {
	c := l.zl.With()
	for key, value := range fields {
		c = withField(c, key, value)
	}
	return &zerologLogger{zl: c.Logger()}
}

func (l *zerologLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return &zerologLogger{zl: l.zl.With().Str("error", err.Error()).Logger()}
}

func (l *zerologLogger) WithContext(ctx context.Context) Logger {
	c := l.zl.With().Ctx(ctx)
	for key, value := range contextFields(ctx) {
		c = withField(c, key, value)
	}
	return &zerologLogger{zl: c.Logger()}
}

func (l *zerologLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	withFields(l.zl.Debug(), fields).Msg(msg)
}

func (l *zerologLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	withFields(l.zl.Info(), fields).Msg(msg)
}

func (l *zerologLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	withFields(l.zl.Warn(), fields).Msg(msg)
}

func (l *zerologLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	withFields(l.zl.Error(), fields).Msg(msg)
}

func (l *zerologLogger) FatalWithFields(msg string, fields map[string]interface{}) {
	withFields(l.zl.Fatal(), fields).Msg(msg)
}

func (l *zerologLogger) GetZerolog() *zerolog.Logger {
	return &l.zl
}

// withField adds one typed field to a logger context
func withField(c zerolog.Context, key string, value interface{}) zerolog.Context {
	switch v := value.(type) {
	case string:
		return c.Str(key, v)
	case int:
		return c.Int(key, v)
	case int64:
		return c.Int64(key, v)
	case bool:
		return c.Bool(key, v)
	case time.Duration:
		return c.Dur(key, v)
	case error:
		return c.AnErr(key, v)
	case []string:
		return c.Strs(key, v)
	default:
		return c.Interface(key, v)
	}
}

// withFields adds per-message fields to an event. zerolog returns a nil
// event for disabled levels and every Event method accepts that.
func withFields(e *zerolog.Event, fields map[string]interface{}) *zerolog.Event {
	if len(fields) == 0 {
		return e
	}
	return e.Fields(fields)
}

var globalLogger Logger

// Initialize sets up the global logger and points zerolog's package logger
// at the same output.
func Initialize(cfg *config.LoggingConfig) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	globalLogger = l
	log.Logger = *l.GetZerolog()
	return nil
}

// GetLogger returns the global logger, creating an info-level one on first
// use when Initialize was never called.
func GetLogger() Logger {
	if globalLogger == nil {
		globalLogger, _ = New(&config.LoggingConfig{Level: "info"})
	}
	return globalLogger
}
