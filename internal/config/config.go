// Package config loads crawler settings from defaults, an optional config
// file, FLATCRAWL_* environment variables and command-line flags, in
// increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"flatcrawl/internal/fbfmt"
	"flatcrawl/internal/logging"
	"flatcrawl/internal/output"
	"flatcrawl/internal/region"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "FLATCRAWL"

// Keys understood by Load.
const (
	KeyMode             = "mode"
	KeyInconsistency    = "inconsistency"
	KeyPaddingHeuristic = "padding_heuristic"
	KeyMaxDepth         = "max_depth"
	KeyLogLevel         = "log.level"
	KeyLogFormat        = "log.format"
	KeyOutputFormat     = "output.format"
)

var (
	ErrMode          = errors.New("config: unknown mode")
	ErrInconsistency = errors.New("config: unknown inconsistency policy")
	ErrMaxDepth      = errors.New("config: max_depth must not be negative")
)

// Config is the resolved crawler configuration.
type Config struct {
	Mode             fbfmt.Mode
	Inconsistency    fbfmt.InconsistencyPolicy
	PaddingHeuristic bool
	MaxDepth         int
	Log              logging.Config
	Output           output.Format
}

// Options returns the crawling options for node.Open.
func (c Config) Options() fbfmt.Options {
	return fbfmt.Options{Mode: c.Mode, Inconsistency: c.Inconsistency, MaxDepth: c.MaxDepth}
}

// ReportOptions returns the region report options.
func (c Config) ReportOptions() region.ReportOptions {
	return region.ReportOptions{PaddingHeuristic: c.PaddingHeuristic}
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyMode, "strict")
	v.SetDefault(KeyInconsistency, "warn")
	v.SetDefault(KeyPaddingHeuristic, true)
	v.SetDefault(KeyMaxDepth, fbfmt.DefaultMaxDepth)
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyOutputFormat, "text")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"mode":              KeyMode,
	"inconsistency":     KeyInconsistency,
	"padding-heuristic": KeyPaddingHeuristic,
	"max-depth":         KeyMaxDepth,
	"log-level":         KeyLogLevel,
	"log-format":        KeyLogFormat,
	"output":            KeyOutputFormat,
}

// RegisterFlags adds the flags BindFlags knows about to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("mode", "strict", "sibling failure handling: strict or best-effort")
	fs.String("inconsistency", "warn", "contradicted certain sizes: warn or error")
	fs.Bool("padding-heuristic", true, "report 2-byte unaligned gaps as padding")
	fs.Int("max-depth", fbfmt.DefaultMaxDepth, "recursion cap for analysis dumps")
	fs.String("log-level", "warn", "log level: debug, info, warn, error")
	fs.String("log-format", "text", "log format: text or json")
	fs.StringP("output", "o", "text", "output format: text, json, jsonl, yaml")
}

// BindFlags binds every known flag present in fs. Only flags the user set
// override the file and environment.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("config: bind %s: %w", name, err)
		}
	}
	return nil
}

// Load reads path when it is not empty and resolves v into a Config.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var c Config
	var err error
	if c.Mode, err = ParseMode(v.GetString(KeyMode)); err != nil {
		return Config{}, err
	}
	if c.Inconsistency, err = ParseInconsistency(v.GetString(KeyInconsistency)); err != nil {
		return Config{}, err
	}
	c.PaddingHeuristic = v.GetBool(KeyPaddingHeuristic)
	c.MaxDepth = v.GetInt(KeyMaxDepth)
	if c.MaxDepth < 0 {
		return Config{}, fmt.Errorf("%w: %d", ErrMaxDepth, c.MaxDepth)
	}
	c.Log = logging.Config{
		Level:  v.GetString(KeyLogLevel),
		Format: logging.Format(v.GetString(KeyLogFormat)),
	}
	if err := c.Log.Validate(); err != nil {
		return Config{}, err
	}
	if c.Output, err = output.ParseFormat(v.GetString(KeyOutputFormat)); err != nil {
		return Config{}, err
	}
	return c, nil
}

// ParseMode accepts "strict" and "best-effort" (or "best_effort").
func ParseMode(s string) (fbfmt.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return fbfmt.ModeStrict, nil
	case "best-effort", "best_effort", "besteffort":
		return fbfmt.ModeBestEffort, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrMode, s)
}

// ParseInconsistency accepts "warn" and "error".
func ParseInconsistency(s string) (fbfmt.InconsistencyPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "warn":
		return fbfmt.InconsistencyWarn, nil
	case "error":
		return fbfmt.InconsistencyError, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInconsistency, s)
}
