// Package config loads settings from a config file and MWM_* environment
// variables, and sets up logging.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/dyuri/mwmcodec/internal/feature"
)

// Config keys.
const (
	KeyLogLevel        = "log.level"
	KeyLogFile         = "log.file"
	KeyScales          = "scales"
	KeyDatasetBase     = "dataset.base"
	KeyDatasetDir      = "dataset.dir"
	KeyInlineMaxPoints = "generator.inline_max_points"
	KeyInlineMaxStrip  = "generator.inline_max_strip"
	KeySimplifyEps     = "generator.simplify_epsilon"
	KeyCodePage        = "source.codepage"
)

// EnvPrefix prefixes environment overrides, e.g. MWM_LOG_LEVEL.
const EnvPrefix = "MWM"

// Config is the resolved configuration.
type Config struct {
	LogLevel string
	LogFile  string

	Scales     feature.ScaleTable
	Base       uint64
	DatasetDir string

	InlineMaxPoints int
	InlineMaxStrip  int
	SimplifyEps     []float64

	CodePage int
}

// Header returns the dataset header described by the configuration.
func (c *Config) Header() *feature.DatasetHeader {
	return &feature.DatasetHeader{Base: c.Base, Scales: c.Scales}
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyScales, []int{5, 10, 14, 17})
	v.SetDefault(KeyDatasetBase, uint64(0))
	v.SetDefault(KeyDatasetDir, "dataset")
	v.SetDefault(KeyInlineMaxPoints, feature.MaxInlinePoints)
	v.SetDefault(KeyInlineMaxStrip, feature.MaxInlineStrip)
	v.SetDefault(KeySimplifyEps, []float64{})
	v.SetDefault(KeyCodePage, 0)
	return v
}

// Load reads path into v, when given, and resolves the configuration.
// The file type follows the extension; files without one are read as TOML.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("toml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file(%s): %w", path, err)
		}
	}

	c := &Config{
		LogLevel:        v.GetString(KeyLogLevel),
		LogFile:         v.GetString(KeyLogFile),
		Scales:          feature.ScaleTable(v.GetIntSlice(KeyScales)),
		Base:            v.GetUint64(KeyDatasetBase),
		DatasetDir:      v.GetString(KeyDatasetDir),
		InlineMaxPoints: v.GetInt(KeyInlineMaxPoints),
		InlineMaxStrip:  v.GetInt(KeyInlineMaxStrip),
		CodePage:        v.GetInt(KeyCodePage),
	}
	if err := v.UnmarshalKey(KeySimplifyEps, &c.SimplifyEps); err != nil {
		return nil, fmt.Errorf("decode %s: %w", KeySimplifyEps, err)
	}
	if len(c.SimplifyEps) == 0 {
		c.SimplifyEps = nil
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks values the codec would reject later.
func (c *Config) Validate() error {
	if err := c.Header().Validate(); err != nil {
		return fmt.Errorf("invalid dataset: %w", err)
	}
	if c.InlineMaxPoints < 0 || c.InlineMaxPoints > feature.MaxInlinePoints {
		return fmt.Errorf("%s must be in 0..%d", KeyInlineMaxPoints, feature.MaxInlinePoints)
	}
	if c.InlineMaxStrip < 0 || c.InlineMaxStrip > feature.MaxInlineStrip {
		return fmt.Errorf("%s must be in 0..%d", KeyInlineMaxStrip, feature.MaxInlineStrip)
	}
	if c.SimplifyEps != nil && len(c.SimplifyEps) != len(c.Scales) {
		return fmt.Errorf("%s needs one tolerance per scale", KeySimplifyEps)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid %s: %w", KeyLogLevel, err)
	}
	return nil
}

// SetupLogging configures logger with the nested formatter at level. When
// file is set, output also goes to it; the returned closer releases it.
func SetupLogging(logger *logrus.Logger, level, file string) (io.Closer, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	logger.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	logger.SetLevel(lvl)

	if file == "" {
		logger.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}

	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	// write to the file and the screen at once
	logger.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ErrNoConfig is returned by Find when no default config file exists.
var ErrNoConfig = errors.New("no config file")

// DefaultFiles are tried in order by Find.
var DefaultFiles = []string{"mwmcodec.toml", "mwmcodec.yaml"}

// Find returns the first existing file of DefaultFiles in dir.
func Find(dir string) (string, error) {
	for _, name := range DefaultFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", ErrNoConfig
}
