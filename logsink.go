// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package mqttgo

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// LogLevel is a process-wide leveled logging threshold.
type LogLevel int32

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelOff
)

// LogSink is the logging interface the session core emits against. The
// core never assumes a specific backend; NewSlogSink wraps log/slog,
// matching the teacher's own current logging choice.
type LogSink interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// slogSink adapts a *slog.Logger to LogSink with an atomic level gate so
// the level can be raised or lowered at runtime without synchronization.
type slogSink struct {
	logger *slog.Logger
	level  atomic.Int32
}

// NewSlogSink returns the default LogSink, backed by log/slog. A nil
// logger falls back to slog.Default().
func NewSlogSink(logger *slog.Logger) LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &slogSink{logger: logger}
	s.level.Store(int32(LogLevelInfo))
	return s
}

// SetLevel adjusts the sink's active level; messages below it are dropped.
func (s *slogSink) SetLevel(l LogLevel) {
	s.level.Store(int32(l))
}

func (s *slogSink) enabled(l LogLevel) bool {
	return int32(l) >= s.level.Load()
}

func (s *slogSink) Debugf(format string, args ...any) {
	if s.enabled(LogLevelDebug) {
		s.logger.Debug(fmt.Sprintf(format, args...))
	}
}

func (s *slogSink) Infof(format string, args ...any) {
	if s.enabled(LogLevelInfo) {
		s.logger.Info(fmt.Sprintf(format, args...))
	}
}

func (s *slogSink) Warnf(format string, args ...any) {
	if s.enabled(LogLevelWarn) {
		s.logger.Warn(fmt.Sprintf(format, args...))
	}
}

func (s *slogSink) Errorf(format string, args ...any) {
	if s.enabled(LogLevelError) {
		s.logger.Error(fmt.Sprintf(format, args...))
	}
}

// noopSink discards everything; used when a caller passes no LogSink and
// wants to opt entirely out of logging rather than getting slog defaults.
type noopSink struct{}

func (noopSink) Debugf(string, ...any) {}
func (noopSink) Infof(string, ...any)  {}
func (noopSink) Warnf(string, ...any)  {}
func (noopSink) Errorf(string, ...any) {}
