package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls logger construction. The zero value logs text at info
// level to stderr.
type Config struct {
	Level      string `json:"level" yaml:"level"`
	JSONFormat bool   `json:"json_format" yaml:"json_format"`

	// File enables output to a rotating log file in addition to stderr.
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty" yaml:"max_age_days,omitempty"`
}

// New builds a logrus logger from config.
func New(cfg Config) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.JSONFormat {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.File != "" {
		if dir := filepath.Dir(cfg.File); dir != "." && dir != "" {
			_ = os.MkdirAll(dir, 0o755)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 50),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 14),
			Compress:   true,
		}
		log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	}

	return log
}

// Default returns a plain stderr logger at info level.
func Default() *logrus.Logger {
	return New(Config{})
}

// Component returns an entry tagged with the owning component, the form the
// rest of the codebase logs through.
func Component(log *logrus.Logger, name string) *logrus.Entry {
	if log == nil {
		log = Default()
	}
	return log.WithField("component", name)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
