package vmi

import (
	"fmt"
	"log/slog"
	"os"
)

// Logger is the diagnostic-output collaborator (spec §6.1, §7): the
// registry never fails an operation because logging failed. Most of what
// it logs a caller also gets back as an error; two failures are only
// logged — a driver rejection of the single-step shutdown that follows
// clearing the last vCPU, and a failed re-registration inside the Step
// Coordinator. It exists so operators can see *why* a Failure happened
// without parsing strings.
type Logger interface {
	Debugf(format string, args ...any)
	Errorf(format string, args ...any)
}

// slogLogger adapts log/slog to the Logger collaborator, following the
// same wrap-the-stdlib-logger shape as the rest of the retrieval pack's
// slog usage.
type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger wraps l as a Logger. A nil l defaults to slog.Default().
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{l: l}
}

func (s *slogLogger) Debugf(format string, args ...any) {
	s.l.Debug(fmt.Sprintf(format, args...))
}

func (s *slogLogger) Errorf(format string, args ...any) {
	s.l.Error(fmt.Sprintf(format, args...))
}

// discardLogger is the default when Config.Logger is nil, so the registry
// never has to nil-check a Logger at the call site.
type discardLogger struct{}

func (discardLogger) Debugf(string, ...any) {}
func (discardLogger) Errorf(string, ...any) {}

// defaultSessionLogger returns the Logger a Session falls back to: slog
// writing to stderr if VMI_DEBUG is set, otherwise a silent discard — the
// registry's own errors already carry detail (errors.go), so logging is
// opt-in noise for operators who want a live trace.
func defaultSessionLogger() Logger {
	if os.Getenv("VMI_DEBUG") == "" {
		return discardLogger{}
	}
	return NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))
}
