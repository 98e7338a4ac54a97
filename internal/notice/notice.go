// Package notice delivers short user-facing messages about sync runs.
// Notices are informational; they never carry control flow.
package notice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Level is the severity of a notice.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Notice is one message shown to the user.
type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Path    string    `json:"path,omitempty"`
	Time    time.Time `json:"time"`
}

// Notifier receives notices.
type Notifier interface {
	Notify(n Notice)
}

// Func adapts a function to Notifier.
type Func func(Notice)

// Notify calls f(n).
func (f Func) Notify(n Notice) { f(n) }

// Discard drops every notice.
var Discard Notifier = Func(func(Notice) {})

// Info builds an informational notice.
func Info(path, format string, args ...any) Notice {
	return build(LevelInfo, path, format, args...)
}

// Warn builds a warning notice.
func Warn(path, format string, args ...any) Notice {
	return build(LevelWarn, path, format, args...)
}

// Error builds an error notice.
func Error(path, format string, args ...any) Notice {
	return build(LevelError, path, format, args...)
}

func build(level Level, path, format string, args ...any) Notice {
	return Notice{
		Level:   level,
		Message: fmt.Sprintf(format, args...),
		Path:    path,
		Time:    time.Now(),
	}
}

// Multi fans a notice out to every notifier.
type Multi []Notifier

// Notify delivers n to each notifier in order.
func (m Multi) Notify(n Notice) {
	for _, x := range m {
		if x != nil {
			x.Notify(n)
		}
	}
}

// Log writes notices to a slog.Logger.
type Log struct {
	Logger *slog.Logger
}

// Notify logs n at the matching level.
func (l Log) Notify(n Notice) {
	level := slog.LevelInfo
	switch n.Level {
	case LevelWarn:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}
	attrs := []slog.Attr{slog.String("message", n.Message)}
	if n.Path != "" {
		attrs = append(attrs, slog.String("path", n.Path))
	}
	l.Logger.LogAttrs(context.Background(), level, "notice", attrs...)
}

var (
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	pathStyle  = lipgloss.NewStyle().Faint(true)
)

// Console prints styled notices to a terminal.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole returns a Console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Notify prints n on one line.
func (c *Console) Notify(n Notice) {
	style := infoStyle
	switch n.Level {
	case LevelWarn:
		style = warnStyle
	case LevelError:
		style = errorStyle
	}
	line := style.Render(n.Message)
	if n.Path != "" {
		line += " " + pathStyle.Render(n.Path)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.w, line)
}

// Recorder keeps notices in memory.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify records n.
func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

// Notices returns a copy of the recorded notices.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Messages returns the recorded messages.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.notices))
	for i, n := range r.notices {
		out[i] = n.Message
	}
	return out
}
