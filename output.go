package gpudebug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// OutputType tells a sink how to present a message.
type OutputType uint8

const (
	// OutputLogOnly is written to the log and nothing else.
	OutputLogOnly OutputType = iota

	// OutputPerformanceWarning is a warning the application may surface
	// beyond the log.
	OutputPerformanceWarning

	// OutputFatal is reserved for unrecoverable conditions. Classification
	// never produces it.
	OutputFatal
)

// String returns the output type name.
func (t OutputType) String() string {
	switch t {
	case OutputLogOnly:
		return "LogOnly"
	case OutputPerformanceWarning:
		return "PerformanceWarning"
	case OutputFatal:
		return "Fatal"
	default:
		return fmt.Sprintf("OutputType(%d)", uint8(t))
	}
}

// Sink receives forwarded diagnostic text.
//
// Print may be called from whatever goroutine the host runs its debug
// callback on, which need not be the goroutine that issued the rendering
// call. Errors inside the sink are the sink's own concern.
type Sink interface {
	Print(t OutputType, message string)
}

// SinkFunc adapts an ordinary function to a Sink.
type SinkFunc func(t OutputType, message string)

// Print calls f(t, message).
func (f SinkFunc) Print(t OutputType, message string) { f(t, message) }

// logSink forwards to a slog.Logger.
type logSink struct {
	l *slog.Logger
}

// NewLogSink returns a Sink that writes to l. Log-only messages are logged
// at Info, performance warnings at Warn and fatal messages at Error.
// A nil logger uses the package logger.
func NewLogSink(l *slog.Logger) Sink {
	return &logSink{l: l}
}

func (s *logSink) Print(t OutputType, message string) {
	l := s.l
	if l == nil {
		l = Logger()
	}
	level := slog.LevelInfo
	switch t {
	case OutputPerformanceWarning:
		level = slog.LevelWarn
	case OutputFatal:
		level = slog.LevelError
	}
	l.Log(context.Background(), level, message, "output", t.String())
}

// ConsoleSink writes one message per line to a writer, highlighting
// warnings. Colors follow color.NoColor, so output to a pipe or with
// NO_COLOR set stays plain.
type ConsoleSink struct {
	mu   sync.Mutex
	w    io.Writer
	warn func(a ...any) string
	bad  func(a ...any) string
}

// NewConsoleSink returns a ConsoleSink writing to w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{
		w:    w,
		warn: color.New(color.FgYellow, color.Bold).SprintFunc(),
		bad:  color.New(color.FgRed, color.Bold).SprintFunc(),
	}
}

// Print writes message, prefixed by its output type unless log-only.
func (s *ConsoleSink) Print(t OutputType, message string) {
	var prefix string
	switch t {
	case OutputPerformanceWarning:
		prefix = s.warn("warning:") + " "
	case OutputFatal:
		prefix = s.bad("fatal:") + " "
	}
	line := prefix + strings.TrimRight(message, "\n") + "\n"

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.w, line)
}

// MultiSink returns a Sink that forwards every message to each of sinks in
// order. Nil entries are skipped.
func MultiSink(sinks ...Sink) Sink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return SinkFunc(func(t OutputType, message string) {
		for _, s := range out {
			s.Print(t, message)
		}
	})
}
