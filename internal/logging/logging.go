// Package logging provides the process-wide logging facade.
// All packages import this instead of logrus directly so the sink
// and formatting can be swapped in one place.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger = newDefaultLogger()

func newDefaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Options configures the global logger.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// FilePath, when set, routes output to a rotated log file instead of stderr.
	FilePath string
	// MaxSizeMB and MaxBackups bound the rotated file set.
	MaxSizeMB  int
	MaxBackups int
}

// Configure applies options to the global logger.
func Configure(opts Options) {
	if lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level))); err == nil && opts.Level != "" {
		logger.SetLevel(lvl)
	}
	if opts.FilePath != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		maxBackups := opts.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 3
		}
		logger.SetOutput(&lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			Compress:   true,
		})
	}
}

// SetOutput redirects log output. Used by tests.
func SetOutput(w io.Writer) { logger.SetOutput(w) }

// DebugEnabled reports whether debug logging is active, so hot paths
// can skip building expensive messages.
func DebugEnabled() bool { return logger.IsLevelEnabled(logrus.DebugLevel) }

func Debugf(format string, args ...any) { logger.Debugf(format, args...) }
func Infof(format string, args ...any)  { logger.Infof(format, args...) }
func Warnf(format string, args ...any)  { logger.Warnf(format, args...) }
func Errorf(format string, args ...any) { logger.Errorf(format, args...) }
func Fatalf(format string, args ...any) { logger.Fatalf(format, args...) }
