// Package notify carries user-facing notices (the toasts of a web UI) from
// the auth core to whatever front end is rendering them.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notifier shows a short message to the user. Implementations must be safe
// for concurrent use and must not block for long.
type Notifier interface {
	Notify(ctx context.Context, level Level, message string)
}

// Func adapts a plain function to a Notifier.
type Func func(ctx context.Context, level Level, message string)

func (f Func) Notify(ctx context.Context, level Level, message string) { f(ctx, level, message) }

// Nop drops every notice.
var Nop Notifier = Func(func(context.Context, Level, string) {})

func Info(ctx context.Context, n Notifier, msg string)    { send(ctx, n, LevelInfo, msg) }
func Success(ctx context.Context, n Notifier, msg string) { send(ctx, n, LevelSuccess, msg) }
func Error(ctx context.Context, n Notifier, msg string)   { send(ctx, n, LevelError, msg) }

func send(ctx context.Context, n Notifier, level Level, msg string) {
	if n == nil || msg == "" {
		return
	}
	n.Notify(ctx, level, msg)
}

// Writer prints notices one per line, prefixed by level. The CLI uses it on
// stdout.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewWriter(out io.Writer) *Writer { return &Writer{out: out} }

func (w *Writer) Notify(_ context.Context, level Level, message string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	prefix := "  "
	switch level {
	case LevelSuccess:
		prefix = "✓ "
	case LevelError:
		prefix = "✗ "
	}
	fmt.Fprintf(w.out, "%s%s\n", prefix, message)
}

// Logger records notices as structured log lines: errors at info, the rest
// at debug.
type Logger struct{ L *slog.Logger }

func (l Logger) Notify(ctx context.Context, level Level, message string) {
	lvl := slog.LevelDebug
	if level == LevelError {
		lvl = slog.LevelInfo
	}
	l.L.Log(ctx, lvl, "notice", "level", string(level), "message", message)
}

// Multi fans a notice out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, level Level, message string) {
	for _, n := range m {
		n.Notify(ctx, level, message)
	}
}
