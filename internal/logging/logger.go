// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bryan01993/QuantConnectProjectGit/internal/config"
)

// Config selects level, format and destination of the logger.
type Config struct {
	Level      string
	Format     string
	Output     string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// FromConfig maps the application config onto a logging Config.
func FromConfig(cfg *config.Config) Config {
	return Config{
		Level:      cfg.Environment.LogLevel,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}
}

// New creates a logrus logger. Any output other than "" or "stdout" is a file
// path rotated by lumberjack.
func New(cfg Config) *logrus.Logger {
	log := logrus.New()

	switch strings.ToLower(cfg.Format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05Z07:00",
		})
	}

	log.SetLevel(ParseLevel(cfg.Level))
	log.SetOutput(writer(cfg))
	return log
}

// ParseLevel maps a level name onto a logrus level, defaulting to info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func writer(cfg Config) io.Writer {
	if cfg.Output == "" || cfg.Output == "stdout" {
		return os.Stdout
	}
	return &lumberjack.Logger{
		Filename:   cfg.Output,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}
}

// WithComponent returns an entry tagged with a component and, when set, a strategy.
func WithComponent(logger logrus.FieldLogger, component, strategy string) *logrus.Entry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	fields := logrus.Fields{"component": component}
	if strategy != "" {
		fields["strategy"] = strategy
	}
	return logger.WithFields(fields)
}
