// Package logger provides structured logging for the social layer services.
package logger

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus entry carrying the originating service name.
type Logger struct {
	*logrus.Entry
	base *logrus.Logger
}

// New creates a logger for the named component at the given level.
func New(name string, level logrus.Level) *Logger {
	base := logrus.New()
	base.SetLevel(level)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Logger{Entry: base.WithField("service", name), base: base}
}

// NewDefault creates a logger for the named component at info level.
func NewDefault(name string) *Logger {
	return New(name, logrus.InfoLevel)
}

// SetOutput redirects log output, primarily for tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.base.SetOutput(w)
}

// WithError attaches an error to subsequent log lines.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Entry: l.Entry.WithError(err), base: l.base}
}

// WithField attaches a single structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value), base: l.base}
}

// WithFields attaches a set of structured fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithFields(logrus.Fields(fields)), base: l.base}
}
