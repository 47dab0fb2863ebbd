// Package logging centralizes logrus configuration for the gateway and
// exposes thin package-level helpers so callers can write log.Infof(...)
// without carrying a logger instance around.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var std = logrus.StandardLogger()

// SetupBaseLogger applies the default formatter and level before the
// configuration file has been loaded.
func SetupBaseLogger() {
	std.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	std.SetOutput(os.Stdout)
	std.SetLevel(logrus.InfoLevel)
}

// SetLevel adjusts the log level from its configuration string.
// Unknown values keep the current level.
func SetLevel(level string) {
	parsed, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return
	}
	std.SetLevel(parsed)
}

// ConfigureLogOutput routes log output to a rotated file when path is
// non-empty. Console output is kept alongside the file so systemd/docker
// logs stay useful.
func ConfigureLogOutput(path string) error {
	if strings.TrimSpace(path) == "" {
		std.SetOutput(os.Stdout)
		return nil
	}
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
	std.SetOutput(io.MultiWriter(os.Stdout, rotator))
	return nil
}

// IsDebugEnabled reports whether debug logging is active, for callers
// that would otherwise build expensive log payloads.
func IsDebugEnabled() bool { return std.IsLevelEnabled(logrus.DebugLevel) }

// Debugf logs at debug level.
func Debugf(format string, args ...any) { std.Debugf(format, args...) }

// Infof logs at info level.
func Infof(format string, args ...any) { std.Infof(format, args...) }

// Warnf logs at warn level.
func Warnf(format string, args ...any) { std.Warnf(format, args...) }

// Errorf logs at error level.
func Errorf(format string, args ...any) { std.Errorf(format, args...) }

// Fatalf logs at fatal level and exits.
func Fatalf(format string, args ...any) { std.Fatalf(format, args...) }

// WithError returns an entry with the error attached.
func WithError(err error) *logrus.Entry { return std.WithError(err) }

// WithField returns an entry with a single structured field attached.
func WithField(key string, value any) *logrus.Entry { return std.WithField(key, value) }

// WithFields returns an entry with structured fields attached.
func WithFields(fields logrus.Fields) *logrus.Entry { return std.WithFields(fields) }
