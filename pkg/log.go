package pkg

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Component identifies a subsystem for log filtering.
type Component string

// Register stack component identifiers.
const (
	ComponentTransport Component = "transport"
	ComponentField     Component = "field"
	ComponentCodec     Component = "codec"
	ComponentHandshake Component = "handshake"
	ComponentTable     Component = "table"
	ComponentGenerator Component = "generator"
	ComponentSim       Component = "sim"
	ComponentProf      Component = "prof"
)

// LogFormat specifies the output format for logging.
type LogFormat int

// Log format options.
const (
	LogFormatText LogFormat = iota // Text format (default)
	LogFormatJSON                  // JSON format
)

var (
	// DefaultLogger is the default logger used by every softreg package.
	DefaultLogger *slog.Logger

	// logLevel controls the minimum log level.
	logLevel = new(slog.LevelVar)

	// logMutex protects logger configuration.
	logMutex sync.RWMutex

	// componentLevels holds per-component thresholds (Component -> slog.Level)
	// applied on top of the global level.
	componentLevels sync.Map
)

func init() {
	logLevel.Set(slog.LevelWarn)
	DefaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// SetLogLevel sets the minimum log level for all softreg logging.
func SetLogLevel(level slog.Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logLevel.Set(level)
}

// GetLogLevel returns the current minimum log level.
func GetLogLevel() slog.Level {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return logLevel.Level()
}

// SetLogger replaces the default logger with a custom logger.
func SetLogger(logger *slog.Logger) {
	logMutex.Lock()
	defer logMutex.Unlock()
	DefaultLogger = logger
}

// SetLogFormat configures the default logger to use the specified format.
// The logger writes to os.Stderr and uses the current log level.
func SetLogFormat(format LogFormat) {
	logMutex.Lock()
	defer logMutex.Unlock()
	DefaultLogger = slog.New(newHandler(os.Stderr, format, &slog.HandlerOptions{Level: logLevel}))
}

// NewLogger creates a new text logger writing to the given writer.
func NewLogger(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	return slog.New(newHandler(w, LogFormatText, opts))
}

// NewJSONLogger creates a new JSON logger writing to the given writer.
func NewJSONLogger(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	return slog.New(newHandler(w, LogFormatJSON, opts))
}

func newHandler(w io.Writer, format LogFormat, opts *slog.HandlerOptions) slog.Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{Level: logLevel}
	}
	if format == LogFormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Logger returns the default logger tagged with the given component.
// Device drivers that log many records for one instance attach their
// own attributes to it once (e.g. the table name and base offset).
//
// The returned logger is bound to the current default logger and honours
// the component threshold set by [SetComponentLevel].
func Logger(component Component) *slog.Logger {
	logMutex.RLock()
	logger := DefaultLogger
	logMutex.RUnlock()
	h := componentHandler{Handler: logger.Handler(), component: component}
	return slog.New(h).With("component", string(component))
}

// componentHandler filters records below the component threshold.
type componentHandler struct {
	slog.Handler
	component Component
}

func (h componentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return componentEnabled(h.component, level) && h.Handler.Enabled(ctx, level)
}

func (h componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return componentHandler{Handler: h.Handler.WithAttrs(attrs), component: h.component}
}

func (h componentHandler) WithGroup(name string) slog.Handler {
	return componentHandler{Handler: h.Handler.WithGroup(name), component: h.component}
}

// LogEnabled reports whether a record at level would be emitted.
// Hot poll loops check it before collecting attributes.
func LogEnabled(level slog.Level) bool {
	logMutex.RLock()
	logger := DefaultLogger
	logMutex.RUnlock()
	return logger.Enabled(context.Background(), level)
}

// SetComponentLevel raises the threshold of one component above the global
// level, e.g. to keep per-poll handshake records out of a debug session.
// A component threshold below the global level has no effect.
func SetComponentLevel(component Component, level slog.Level) {
	componentLevels.Store(component, level)
}

// ResetComponentLevels removes every per-component threshold.
func ResetComponentLevels() {
	componentLevels.Clear()
}

func componentEnabled(component Component, level slog.Level) bool {
	if v, ok := componentLevels.Load(component); ok {
		return level >= v.(slog.Level)
	}
	return true
}

func emit(level slog.Level, component Component, msg string, args []any) {
	if !componentEnabled(component, level) {
		return
	}
	logMutex.RLock()
	logger := DefaultLogger
	logMutex.RUnlock()
	logger.Log(context.Background(), level, msg, append([]any{"component", string(component)}, args...)...)
}

// LogDebug logs a debug message with the given component.
func LogDebug(component Component, msg string, args ...any) {
	emit(slog.LevelDebug, component, msg, args)
}

// LogInfo logs an info message with the given component.
func LogInfo(component Component, msg string, args ...any) {
	emit(slog.LevelInfo, component, msg, args)
}

// LogWarn logs a warning message with the given component.
func LogWarn(component Component, msg string, args ...any) {
	emit(slog.LevelWarn, component, msg, args)
}

// LogError logs an error message with the given component.
func LogError(component Component, msg string, args ...any) {
	emit(slog.LevelError, component, msg, args)
}
