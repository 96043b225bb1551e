/*
Copyright The EsRoll Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package log contains the logging subsystem of esroll: a thin
// logr façade over zap with context-scoped loggers and a trace level.
package log

import (
	"context"
	"io"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the verbosity of a logger, higher means chattier
type Level int

// The log levels, used both as logr verbosities and as the
// value of the --log-level flag
const (
	ErrorLevel Level = iota + 1
	WarningLevel
	InfoLevel
	DebugLevel
	TraceLevel

	DefaultLevel = InfoLevel
)

// String representations of the log levels
const (
	ErrorLevelString   = "error"
	WarningLevelString = "warning"
	InfoLevelString    = "info"
	DebugLevelString   = "debug"
	TraceLevelString   = "trace"
	DefaultLevelString = InfoLevelString
)

// Logger is the logger used through the codebase. It decorates
// logr.Logger with the warning and trace levels.
type Logger struct {
	logger logr.Logger
}

// processLogger is the logger used when no context-scoped
// logger is available
var processLogger = Logger{logger: logr.Discard()}

// SetLogger replaces the process logger
func SetLogger(logger Logger) {
	processLogger = logger
}

// GetLogger returns the process logger
func GetLogger() Logger {
	return processLogger
}

// NewLogger builds a Logger writing to the passed destination,
// emitting every record whose level is not above maxLevel
func NewLogger(maxLevel Level, dest io.Writer) Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(levelString(l))
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(dest),
		zap.NewAtomicLevelAt(zapcore.Level(-int(maxLevel))),
	)

	return Logger{logger: zapr.NewLogger(zap.New(core))}
}

// levelString maps the zap level of a record back to the esroll
// level names. zapr logs a record of verbosity `v` at zap level `-v`.
func levelString(l zapcore.Level) string {
	switch {
	case l >= zapcore.ErrorLevel:
		return ErrorLevelString
	case l == zapcore.Level(-int(WarningLevel)):
		return WarningLevelString
	case l == zapcore.Level(-int(DebugLevel)):
		return DebugLevelString
	case l <= zapcore.Level(-int(TraceLevel)):
		return TraceLevelString
	default:
		return InfoLevelString
	}
}

// ParseLevel maps a --log-level flag value to a Level, falling
// back to the default level when the value is unknown
func ParseLevel(l string) (Level, bool) {
	switch l {
	case ErrorLevelString:
		return ErrorLevel, true
	case WarningLevelString:
		return WarningLevel, true
	case InfoLevelString:
		return InfoLevel, true
	case DebugLevelString:
		return DebugLevel, true
	case TraceLevelString:
		return TraceLevel, true
	default:
		return DefaultLevel, false
	}
}

// WithName returns a logger with the passed name segment appended
func (l Logger) WithName(name string) Logger {
	return Logger{logger: l.logger.WithName(name)}
}

// WithValues returns a logger with additional key/value pairs
func (l Logger) WithValues(keysAndValues ...interface{}) Logger {
	return Logger{logger: l.logger.WithValues(keysAndValues...)}
}

// Error logs an error record
func (l Logger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(err, msg, keysAndValues...)
}

// Warning logs a warning record
func (l Logger) Warning(msg string, keysAndValues ...interface{}) {
	l.logger.V(int(WarningLevel)).Info(msg, keysAndValues...)
}

// Info logs an informational record
func (l Logger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.V(int(InfoLevel)).Info(msg, keysAndValues...)
}

// Debug logs a debug record
func (l Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.V(int(DebugLevel)).Info(msg, keysAndValues...)
}

// Trace logs a trace record
func (l Logger) Trace(msg string, keysAndValues ...interface{}) {
	l.logger.V(int(TraceLevel)).Info(msg, keysAndValues...)
}

type contextKey struct{}

// IntoContext injects a logger into a context
func IntoContext(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext retrieves the logger injected into a context,
// or the process logger if there is none
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextKey{}).(Logger); ok {
		return logger
	}
	return processLogger
}

// Error logs an error record on the process logger
func Error(err error, msg string, keysAndValues ...interface{}) {
	processLogger.Error(err, msg, keysAndValues...)
}

// Warning logs a warning record on the process logger
func Warning(msg string, keysAndValues ...interface{}) {
	processLogger.Warning(msg, keysAndValues...)
}

// Info logs an informational record on the process logger
func Info(msg string, keysAndValues ...interface{}) {
	processLogger.Info(msg, keysAndValues...)
}

// Debug logs a debug record on the process logger
func Debug(msg string, keysAndValues ...interface{}) {
	processLogger.Debug(msg, keysAndValues...)
}

// Trace logs a trace record on the process logger
func Trace(msg string, keysAndValues ...interface{}) {
	processLogger.Trace(msg, keysAndValues...)
}
