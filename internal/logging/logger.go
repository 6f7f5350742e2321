package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Log levels supported by the logger
const (
	LevelTrace = "TRACE"
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// slogTrace is the slog level used for TRACE records.
const slogTrace = slog.Level(-8)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options configures a process logger.
type Options struct {
	Level  string
	Format string
	// File, when set, receives log lines instead of Writer.
	File     string
	Rotation RotationConfig
	// Writer defaults to os.Stdout.
	Writer io.Writer
}

// Logger provides structured logging with persistent attributes.
// It is safe for concurrent use.
type Logger struct {
	logger *slog.Logger
	level  slog.Level
	closer io.Closer
	mu     *sync.Mutex
	attrs  []slog.Attr
}

var (
	setupOnce   sync.Once
	setupLogger *Logger
	setupErr    error
)

// Setup creates the process logger. Only the first call has an effect; every
// later call returns the logger (or error) produced by the first one.
func Setup(opts Options) (*Logger, error) {
	setupOnce.Do(func() {
		setupLogger, setupErr = Open(opts)
	})
	return setupLogger, setupErr
}

// Open creates a Logger from opts. Callers own the returned logger and should
// Close it when a file is in use.
func Open(opts Options) (*Logger, error) {
	if opts.File != "" {
		rw, err := NewRotatingWriter(opts.File, opts.Rotation)
		if err != nil {
			return nil, err
		}
		l := New(rw, opts.Level, opts.Format)
		l.closer = rw
		return l, nil
	}
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	return New(w, opts.Level, opts.Format), nil
}

// New creates a Logger writing to w at the given level and format.
// Unknown levels fall back to INFO and unknown formats to text.
func New(w io.Writer, level, format string) *Logger {
	slogLevel := parseLevel(level)
	opts := &slog.HandlerOptions{
		Level:       slogLevel,
		ReplaceAttr: replaceLevel,
	}

	var handler slog.Handler
	if strings.EqualFold(format, FormatJSON) {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		logger: slog.New(handler),
		level:  slogLevel,
		mu:     &sync.Mutex{},
		attrs:  make([]slog.Attr, 0),
	}
}

// replaceLevel names the custom TRACE level and renders time in UTC.
func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.LevelKey:
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= slogTrace {
			return slog.String(slog.LevelKey, LevelTrace)
		}
	case slog.TimeKey:
		return slog.Time(slog.TimeKey, a.Value.Time().UTC())
	}
	return a
}

// parseLevel converts a string log level to slog.Level.
// Defaults to INFO if the level string is not recognized.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelTrace:
		return slogTrace
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithAgent returns a child Logger tagged with the agent name.
func (l *Logger) WithAgent(name string) *Logger {
	return l.withAttr(slog.String("agent", name))
}

// WithChannel returns a child Logger tagged with the channel name.
func (l *Logger) WithChannel(name string) *Logger {
	return l.withAttr(slog.String("channel", name))
}

// With returns a new Logger with arbitrary key-value attributes.
// Keys and values are provided as alternating arguments.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}

	newAttrs := make([]slog.Attr, 0, len(l.attrs)+len(args)/2)
	newAttrs = append(newAttrs, l.attrs...)
	for i := 0; i < len(args)-1; i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		newAttrs = append(newAttrs, slog.Any(key, args[i+1]))
	}

	child := *l
	child.attrs = newAttrs
	return &child
}

func (l *Logger) withAttr(attr slog.Attr) *Logger {
	newAttrs := make([]slog.Attr, len(l.attrs)+1)
	copy(newAttrs, l.attrs)
	newAttrs[len(l.attrs)] = attr

	child := *l
	child.attrs = newAttrs
	return &child
}

// TraceEnabled reports whether TRACE records are emitted. Hot paths check it
// before building expensive arguments.
func (l *Logger) TraceEnabled() bool {
	return l.level <= slogTrace
}

// Trace logs a message at TRACE level.
func (l *Logger) Trace(msg string, args ...any) {
	l.log(slogTrace, msg, args...)
}

// Debug logs a message at DEBUG level with optional key-value pairs.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, msg, args...)
}

// Info logs a message at INFO level with optional key-value pairs.
func (l *Logger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, msg, args...)
}

// Warn logs a message at WARN level with optional key-value pairs.
func (l *Logger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, msg, args...)
}

// Error logs a message at ERROR level with optional key-value pairs.
func (l *Logger) Error(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
}

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	if level < l.level {
		return
	}
	allArgs := make([]any, 0, len(l.attrs)*2+len(args))
	for _, attr := range l.attrs {
		allArgs = append(allArgs, attr.Key, attr.Value.Any())
	}
	allArgs = append(allArgs, args...)

	l.logger.Log(context.Background(), level, msg, allArgs...)
}

// Close flushes and closes the log file, if any. Loggers writing to a plain
// writer treat Close as a no-op.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closer != nil {
		err := l.closer.Close()
		l.closer = nil
		return err
	}
	return nil
}

// NopLogger returns a Logger that discards all log output.
func NopLogger() *Logger {
	return New(io.Discard, LevelError, FormatText)
}

// ParseLevel converts a string level to the corresponding constant.
// Returns LevelInfo if the level string is not recognized.
func ParseLevel(level string) string {
	switch strings.ToUpper(level) {
	case LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError:
		return strings.ToUpper(level)
	default:
		return LevelInfo
	}
}

// ValidLevels returns the list of valid log level strings.
func ValidLevels() []string {
	return []string{LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError}
}
