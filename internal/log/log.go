package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	logger     *stdlog.Logger
	loggerOnce sync.Once

	levelMu  sync.RWMutex
	minLevel = LevelInfo
)

// initLogger initializes the global logger to write to stderr with timestamps
// added by logWithLevel.
func initLogger() {
	loggerOnce.Do(func() {
		logger = stdlog.New(os.Stderr, "", 0)
	})
}

// ParseLevel maps a config string ("debug", "info", ...) to a Level.
// Unknown values fall back to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(LevelDebug):
		return LevelDebug
	case string(LevelWarn), "WARNING":
		return LevelWarn
	case string(LevelError):
		return LevelError
	default:
		return LevelInfo
	}
}

// SetOutput redirects log lines, e.g. to a buffer in tests.
func SetOutput(w io.Writer) {
	initLogger()
	logger.SetOutput(w)
}

func SetLevel(l Level) {
	initLogger()
	levelMu.Lock()
	minLevel = l
	levelMu.Unlock()
}

func Debug(msg string, kv ...any) {
	logWithLevel(LevelDebug, msg, kv...)
}

func Info(msg string, kv ...any) {
	logWithLevel(LevelInfo, msg, kv...)
}

func Warn(msg string, kv ...any) {
	logWithLevel(LevelWarn, msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	logWithLevel(LevelError, msg, extended...)
}

// Logger carries a fixed set of key-value pairs (typically "module") that are
// prepended to every line it writes.
type Logger struct {
	fields []any
}

// With returns a Logger that always logs the given key-value pairs.
func With(kv ...any) Logger {
	return Logger{fields: append([]any(nil), kv...)}
}

// With returns a child Logger with additional key-value pairs.
func (l Logger) With(kv ...any) Logger {
	fields := make([]any, 0, len(l.fields)+len(kv))
	fields = append(fields, l.fields...)
	fields = append(fields, kv...)
	return Logger{fields: fields}
}

func (l Logger) Debug(msg string, kv ...any) {
	logWithLevel(LevelDebug, msg, l.merge(kv)...)
}

func (l Logger) Info(msg string, kv ...any) {
	logWithLevel(LevelInfo, msg, l.merge(kv)...)
}

func (l Logger) Warn(msg string, kv ...any) {
	logWithLevel(LevelWarn, msg, l.merge(kv)...)
}

func (l Logger) Error(msg string, err error, kv ...any) {
	logWithLevel(LevelError, msg, l.merge(append([]any{"err", err}, kv...))...)
}

func (l Logger) merge(kv []any) []any {
	if len(l.fields) == 0 {
		return kv
	}
	out := make([]any, 0, len(l.fields)+len(kv))
	out = append(out, l.fields...)
	return append(out, kv...)
}

func logWithLevel(level Level, msg string, kv ...any) {
	initLogger()
	if !enabled(level) {
		return
	}

	ts := time.Now().Format(time.RFC3339Nano)

	// 2025-01-01T00:00:00Z [LEVEL] msg key=value ...
	line := ts + " [" + string(level) + "] " + msg
	if len(kv) > 0 {
		line += formatKVs(kv...)
	}

	logger.Println(line)
}

func rank(l Level) int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

func enabled(level Level) bool {
	levelMu.RLock()
	defer levelMu.RUnlock()
	return rank(level) >= rank(minLevel)
}

func formatKVs(kv ...any) string {
	var b strings.Builder
	// Expect kv as pairs: key, value, key, value, ...
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		b.WriteString(" ")
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(fmt.Sprint(kv[i+1]))
	}
	// If odd number of args, last one is ignored.
	return b.String()
}
