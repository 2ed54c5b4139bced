// Package log writes the debug log of elastixctl: one line per entry with a
// timestamp, level, category and key=value fields. Nothing is written until
// a logger is installed, which the CLI does for --debug or ELASTIXCTL_DEBUG.
//
// Status lines shown to the user go through Sink instead.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zjrosen/elastixctl/internal/pubsub"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel accepts a level name in any case, with "warning" for WARN.
func ParseLevel(s string) (Level, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "WARNING" {
		return LevelWarn, nil
	}
	for i, n := range levelNames {
		if n == name {
			return Level(i), nil
		}
	}
	return LevelDebug, fmt.Errorf("unknown log level %q", s)
}

// Category names the subsystem an entry comes from.
type Category string

const (
	CatConfig  Category = "config"
	CatPreset  Category = "preset"
	CatScene   Category = "scene" // text nodes backing in-session presets
	CatRunner  Category = "runner"
	CatProcess Category = "process" // elastix and transformix processes
	CatImport  Category = "import"
	CatToolbox Category = "toolbox"
	CatCache   Category = "cache"
	CatWatcher Category = "watcher"
	CatDB      Category = "db"
	CatUI      Category = "ui"
)

// Logger serializes entries to a writer and republishes them on a broker.
type Logger struct {
	mu       sync.Mutex
	closer   io.Closer
	out      io.Writer
	enabled  bool
	minLevel Level
	lines    *pubsub.Broker[string]
}

var (
	defaultLogger *Logger
	initOnce      sync.Once
)

// Init appends the debug log to the file at path. The returned function
// closes it. Only the first call opens a file.
func Init(path string) (func(), error) {
	var err error
	initOnce.Do(func() {
		var f *os.File
		f, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: user-chosen debug log path
		if err == nil {
			install(f, f)
		}
	})
	if err != nil {
		return nil, err
	}
	if defaultLogger == nil {
		return nil, fmt.Errorf("debug log was already initialized")
	}
	return closeFunc(defaultLogger), nil
}

// InitWithTeaLog opens the log through tea.LogToFile so a running bubbletea
// program keeps the terminal.
func InitWithTeaLog(path, prefix string) (func(), error) {
	f, err := tea.LogToFile(path, prefix)
	if err != nil {
		return nil, err
	}
	return closeFunc(install(f, f)), nil
}

// InitWriter logs to w. Tests use it.
func InitWriter(w io.Writer) {
	install(nil, w)
}

func install(c io.Closer, w io.Writer) *Logger {
	defaultLogger = &Logger{
		closer:   c,
		out:      w,
		enabled:  true,
		minLevel: LevelDebug,
		lines:    pubsub.NewBroker[string](),
	}
	return defaultLogger
}

func closeFunc(l *Logger) func() {
	return func() {
		l.lines.Close()
		if l.closer != nil {
			_ = l.closer.Close()
		}
	}
}

func SetEnabled(enabled bool) {
	if l := defaultLogger; l != nil {
		l.mu.Lock()
		l.enabled = enabled
		l.mu.Unlock()
	}
}

// SetMinLevel drops entries below level.
func SetMinLevel(level Level) {
	if l := defaultLogger; l != nil {
		l.mu.Lock()
		l.minLevel = level
		l.mu.Unlock()
	}
}

func Debug(cat Category, msg string, fields ...any) { write(LevelDebug, cat, msg, fields) }
func Info(cat Category, msg string, fields ...any)  { write(LevelInfo, cat, msg, fields) }
func Warn(cat Category, msg string, fields ...any)  { write(LevelWarn, cat, msg, fields) }
func Error(cat Category, msg string, fields ...any) { write(LevelError, cat, msg, fields) }

// ErrorErr logs at error level with err appended as the "error" field.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	text := "<nil>"
	if err != nil {
		text = err.Error()
	}
	write(LevelError, cat, msg, append(fields, "error", text))
}

func write(level Level, cat Category, msg string, fields []any) {
	l := defaultLogger
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled || level < l.minLevel {
		return
	}

	entry := format(time.Now(), level, cat, msg, fields)
	if l.out != nil {
		_, _ = io.WriteString(l.out, entry)
	}
	l.lines.Publish(pubsub.LogLineEvent, entry)
}

// format renders
//
//	2026-10-19T10:45:00 [WARN] [preset] message id=default0 dir="/a b"
func format(ts time.Time, level Level, cat Category, msg string, fields []any) string {
	var b strings.Builder
	b.WriteString(ts.Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&b, " [%s] [%s] %s", level, cat, msg)
	for i := 0; i < len(fields); i += 2 {
		b.WriteByte(' ')
		fmt.Fprint(&b, fields[i])
		b.WriteByte('=')
		if i+1 == len(fields) {
			b.WriteString("<missing>")
			continue
		}
		b.WriteString(fieldValue(fields[i+1]))
	}
	b.WriteByte('\n')
	return b.String()
}

func fieldValue(v any) string {
	s := fmt.Sprint(v)
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

// LogEvent is one published log entry.
type LogEvent = pubsub.Event[string]

// LogListener receives log entries in a bubbletea program.
type LogListener = pubsub.ContinuousListener[string]

// NewListener streams log entries until ctx is done. It returns nil when no
// logger is installed.
func NewListener(ctx context.Context) *LogListener {
	l := defaultLogger
	if l == nil {
		return nil
	}
	return pubsub.NewContinuousListener[string](ctx, l.lines)
}
