// Package logging provides the small Logger/LogHandler indirection used
// throughout this core, adapted from the host client's own logger: a
// pluggable handler behind a thin Logger wrapper so callers can swap in
// their own sink (files, a test spy, structured logging) without touching
// call sites.
package logging

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
)

// LogHandler receives already-formatted log lines at each level.
type LogHandler interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(err error, msg string)
}

// Logger formats call-site arguments and forwards the result to a
// LogHandler. With a nil Handler (the zero value) every method is a no-op.
type Logger struct {
	Handler LogHandler
}

func New(h LogHandler) Logger { return Logger{Handler: h} }

func (l Logger) Debugf(format string, args ...any) {
	if l.Handler == nil {
		return
	}
	l.Handler.Debug(fmt.Sprintf(format, args...))
}

func (l Logger) Infof(format string, args ...any) {
	if l.Handler == nil {
		return
	}
	l.Handler.Info(fmt.Sprintf(format, args...))
}

func (l Logger) Warnf(format string, args ...any) {
	if l.Handler == nil {
		return
	}
	l.Handler.Warn(fmt.Sprintf(format, args...))
}

func (l Logger) Errorf(format string, args ...any) {
	if l.Handler == nil {
		return
	}
	l.Handler.Error(nil, fmt.Sprintf(format, args...))
}

func (l Logger) Error(err error, msg string) {
	if l.Handler == nil {
		return
	}
	l.Handler.Error(err, msg)
}

// SimpleLogHandler writes colorized lines to stderr, the same shape as the
// host client's default handler: level-tagged, timestamped, errors in red.
type SimpleLogHandler struct {
	ShowDebug bool
}

func (h *SimpleLogHandler) Debug(msg string) {
	if !h.ShowDebug {
		return
	}
	h.write(color.New(color.FgCyan), "DEBUG", msg)
}

func (h *SimpleLogHandler) Info(msg string) {
	h.write(color.New(color.FgGreen), "INFO ", msg)
}

func (h *SimpleLogHandler) Warn(msg string) {
	h.write(color.New(color.FgYellow), "WARN ", msg)
}

func (h *SimpleLogHandler) Error(err error, msg string) {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	h.write(color.New(color.FgRed), "ERROR", msg)
}

func (h *SimpleLogHandler) write(c *color.Color, level, msg string) {
	ts := time.Now().Format("15:04:05.000")
	fmt.Fprintln(os.Stderr, ts, c.Sprint(level), msg)
}

// NoopLogHandler discards everything; useful as a default for callers who
// don't configure a handler.
type NoopLogHandler struct{}

func (NoopLogHandler) Debug(string)       {}
func (NoopLogHandler) Info(string)        {}
func (NoopLogHandler) Warn(string)        {}
func (NoopLogHandler) Error(error, string) {}
