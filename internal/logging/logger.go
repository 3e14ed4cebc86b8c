package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with the field conventions duperscooper
// uses across its packages: batch/group/path identifiers attached via
// With* helpers rather than formatted into the message string.
type Logger struct {
	logger zerolog.Logger
}

// Config controls how a Logger renders output.
type Config struct {
	Level      string // debug|info|warn|error
	JSON       bool   // force JSON lines even on a terminal
	Output     io.Writer
	TimeFormat string
}

// NewLogger builds a Logger from Config. A nil Output defaults to stderr;
// when JSON is false and Output is a terminal, a human-readable console
// writer is used instead of raw JSON lines.
func NewLogger(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writer io.Writer = out
	if !cfg.JSON {
		if f, ok := out.(*os.File); ok && isTerminal(f) {
			writer = zerolog.ConsoleWriter{Out: f, TimeFormat: time.RFC3339}
		}
	}

	zl := zerolog.New(writer).With().Timestamp().Logger().Level(level)
	return &Logger{logger: zl}
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// WithField returns a derived Logger carrying one extra structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithFields returns a derived Logger carrying several extra structured fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{logger: ctx.Logger()}
}

// WithBatch tags log lines with a staging batch UUID.
func (l *Logger) WithBatch(batchID string) *Logger {
	return l.WithField("batch_id", batchID)
}

// WithGroup tags log lines with a duplicate group identifier.
func (l *Logger) WithGroup(groupID string) *Logger {
	return l.WithField("group_id", groupID)
}

// WithPath tags log lines with the file or album path under discussion.
func (l *Logger) WithPath(path string) *Logger {
	return l.WithField("path", path)
}

// WithContext extracts a request-scoped Logger stashed on ctx, falling back
// to this Logger if none was stashed.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if v := ctx.Value(loggerKey{}); v != nil {
		if lg, ok := v.(*Logger); ok {
			return lg
		}
	}
	return l
}

type loggerKey struct{}

// ContextWithLogger stashes l on ctx for later retrieval via WithContext.
func ContextWithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.logger.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.logger.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.logger.Error().Msg(msg) }
func (l *Logger) Fatal(msg string) { l.logger.Fatal().Msg(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.logger.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.logger.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.logger.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.logger.Error().Msgf(format, args...) }
func (l *Logger) Fatalf(format string, args ...interface{}) { l.logger.Fatal().Msgf(format, args...) }

// LogScanError records a per-file failure at Warn level with the taxonomy
// category attached, matching the non-fatal per-file error policy.
func (l *Logger) LogScanError(path string, category string, err error) {
	l.logger.Warn().
		Str("path", path).
		Str("category", category).
		Err(err).
		Msg("scan error")
}

// LogStagingEvent records a staging/restoration outcome for one item.
func (l *Logger) LogStagingEvent(batchID, path, outcome string) {
	l.logger.Info().
		Str("batch_id", batchID).
		Str("path", path).
		Str("outcome", outcome).
		Msg("staging event")
}
