// Package logging builds the logrus logger shared by the CLI and the
// crawling packages.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Format selects the log line encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config holds the logger settings.
type Config struct {
	Level  string    `json:"level" yaml:"level" mapstructure:"level"`
	Format Format    `json:"format" yaml:"format" mapstructure:"format"`
	Output io.Writer `json:"-" yaml:"-" mapstructure:"-"`
}

// Validate checks Level and Format.
func (c Config) Validate() error {
	if _, err := logrus.ParseLevel(c.level()); err != nil {
		return fmt.Errorf("logging: unsupported level %q", c.Level)
	}
	switch c.format() {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("logging: unsupported format %q", c.Format)
	}
	return nil
}

func (c Config) level() string {
	if c.Level == "" {
		return "warn"
	}
	return strings.ToLower(c.Level)
}

func (c Config) format() Format {
	if c.Format == "" {
		return FormatText
	}
	return Format(strings.ToLower(string(c.Format)))
}

// New creates a logger writing to cfg.Output, or stderr when unset.
// The default level is warn: crawling packages log navigation at debug and
// propagation problems at warn.
func New(cfg Config) (*logrus.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := logrus.New()
	level, _ := logrus.ParseLevel(cfg.level())
	l.SetLevel(level)

	switch cfg.format() {
	case FormatJSON:
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	default:
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
			DisableColors:   true,
		})
	}

	if cfg.Output != nil {
		l.SetOutput(cfg.Output)
	} else {
		l.SetOutput(os.Stderr)
	}
	return l, nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
