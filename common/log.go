// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package common

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogLevel is a type indicating the level of logging.
type LogLevel int

// Constants for different log levels.
const (
	LogOffLvl LogLevel = iota
	LogErrorsLvl
	LogWarningsLvl
	LogInfoLvl
	LogDebugLvl
)

var std = newLogrus(os.Stderr, LogInfoLvl)

func newLogrus(out io.Writer, ll LogLevel) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	l.SetLevel(toLogrusLevel(ll))
	return l
}

func toLogrusLevel(ll LogLevel) logrus.Level {
	switch {
	case ll <= LogOffLvl:
		return logrus.PanicLevel
	case ll == LogErrorsLvl:
		return logrus.ErrorLevel
	case ll == LogWarningsLvl:
		return logrus.WarnLevel
	case ll == LogInfoLvl:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

// sprint joins values with spaces the way fmt.Sprintln does,
// without the trailing newline.
func sprint(v ...interface{}) string {
	return strings.TrimSpace(fmt.Sprintln(v...))
}

// SetLogLevel sets a log level to given value.
func SetLogLevel(ll LogLevel) {
	std.SetLevel(toLogrusLevel(ll))
}

// SetLogOutput redirects package level logging.
func SetLogOutput(out io.Writer) {
	std.SetOutput(out)
}

// LogOutput returns the writer of package level logging.
func LogOutput() io.Writer {
	return std.Out
}

// LogPanic prints error and calls panic.
func LogPanic(v ...interface{}) {
	std.Panic(sprint(v...))
}

// LogErrorsIfNotNil logs v and err on error level if err is not nil.
func LogErrorsIfNotNil(err error, v ...interface{}) {
	if err != nil {
		std.WithError(err).Error(sprint(v...))
	}
}

// LogError logs on error level.
func LogError(v ...interface{}) {
	std.Error(sprint(v...))
}

// LogWarning logs on warning level.
func LogWarning(v ...interface{}) {
	std.Warn(sprint(v...))
}

// LogInfo logs on info level.
func LogInfo(v ...interface{}) {
	std.Info(sprint(v...))
}

// LogDebug logs on debug level.
func LogDebug(v ...interface{}) {
	std.Debug(sprint(v...))
}

// Logger writes the lines of one benchmark run both to standard
// logging and to a run log file. Every line carries the run id.
type Logger struct {
	entry *logrus.Entry
	file  *os.File
}

// NewLogger creates and returns a new Logger object
// initialized with file for output. file may be nil, then only
// standard error is used.
func NewLogger(file *os.File, runID string) *Logger {
	var out io.Writer = os.Stderr
	if file != nil {
		out = io.MultiWriter(os.Stderr, file)
	}
	l := newLogrus(out, LogDebugLvl)
	l.SetLevel(std.GetLevel())
	return &Logger{
		entry: l.WithField("run", runID),
		file:  file,
	}
}

// LogErrorsIfNotNil logs if err is not nil.
func (l *Logger) LogErrorsIfNotNil(err error, v ...interface{}) {
	if err != nil {
		l.entry.WithError(err).Error(sprint(v...))
	}
}

// LogError logs on error level.
func (l *Logger) LogError(v ...interface{}) {
	l.entry.Error(sprint(v...))
}

// LogWarning logs on warning level.
func (l *Logger) LogWarning(v ...interface{}) {
	l.entry.Warn(sprint(v...))
}

// LogInfo logs on info level.
func (l *Logger) LogInfo(v ...interface{}) {
	l.entry.Info(sprint(v...))
}

// LogDebug logs on debug level.
func (l *Logger) LogDebug(v ...interface{}) {
	l.entry.Debug(sprint(v...))
}

// Returns the name of the file set for logging or empty string if it
// does not exist.
func (l *Logger) String() string {
	if l.file == nil {
		return ""
	}
	fi, err := os.Lstat(l.file.Name())
	if err != nil {
		return ""
	}
	return fi.Name()
}
