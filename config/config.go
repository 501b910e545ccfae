// Package config loads runtime limits and logging settings from TOML.
//
//	[codec]
//	max_message_size = "4MiB"
//	max_depth = 100
//
//	[pipes]
//	default_data_pipe_capacity = "64KiB"
//	max_queued_messages = 1024
//
//	[log]
//	level = "debug"
//	development = true
//
// Missing values take their defaults; the result is validated before it is
// returned.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/mojo-wire/codec"
	"github.com/wippyai/mojo-wire/errors"
)

// Defaults.
const (
	DefaultMaxMessageSize          = 4 * units.MiB
	DefaultMaxDepth                = codec.DefaultMaxDepth
	DefaultMaxHandles              = 64
	DefaultDataPipeCapacity        = 64 * units.KiB
	DefaultMaxQueuedMessages       = 1024
	DefaultLogLevel                = "info"
	maxDataPipeCapacity      int64 = 1 << 30
)

// Size is a byte count written in TOML as a human-readable string such as
// "64KiB" or "4MiB".
type Size int64

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Size) UnmarshalText(text []byte) error {
	n, err := units.RAMInBytes(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*s = Size(n)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (s Size) MarshalText() ([]byte, error) {
	return []byte(units.BytesSize(float64(s))), nil
}

func (s Size) String() string {
	return units.BytesSize(float64(s))
}

// Config is the root configuration.
type Config struct {
	Codec CodecConfig `toml:"codec"`
	Pipes PipesConfig `toml:"pipes"`
	Log   LogConfig   `toml:"log"`
}

// CodecConfig bounds what a Decoder accepts.
type CodecConfig struct {
	MaxMessageSize Size `toml:"max_message_size"`
	MaxDepth       int  `toml:"max_depth"`
	MaxHandles     int  `toml:"max_handles"`
}

// Limits converts c to decoder limits.
func (c CodecConfig) Limits() codec.Limits {
	return codec.Limits{
		MaxDepth:       c.MaxDepth,
		MaxMessageSize: uint64(c.MaxMessageSize),
	}
}

// PipesConfig sizes the in-process pipes.
type PipesConfig struct {
	DefaultDataPipeCapacity Size `toml:"default_data_pipe_capacity"`
	MaxQueuedMessages       int  `toml:"max_queued_messages"`
}

// LogConfig selects the logger built by NewLogger.
type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates a TOML configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Load(fmt.Sprintf("read %s", path), err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes, defaults and validates TOML configuration. Unknown keys
// are rejected.
func Parse(data []byte) (Config, error) {
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, errors.Load("parse config", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Detail("unknown keys: %s", strings.Join(keys, ", ")).
			Build()
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Codec.MaxMessageSize == 0 {
		c.Codec.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.Codec.MaxDepth == 0 {
		c.Codec.MaxDepth = DefaultMaxDepth
	}
	if c.Codec.MaxHandles == 0 {
		c.Codec.MaxHandles = DefaultMaxHandles
	}
	if c.Pipes.DefaultDataPipeCapacity == 0 {
		c.Pipes.DefaultDataPipeCapacity = DefaultDataPipeCapacity
	}
	if c.Pipes.MaxQueuedMessages == 0 {
		c.Pipes.MaxQueuedMessages = DefaultMaxQueuedMessages
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// Validate checks ranges after defaults have been applied.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.New(errors.PhaseLoad, errors.KindInvalidInput).Detail(format, args...).Build()
	}
	if c.Codec.MaxMessageSize < 0 {
		return invalid("codec.max_message_size must not be negative, got %d", c.Codec.MaxMessageSize)
	}
	if c.Codec.MaxDepth < 0 {
		return invalid("codec.max_depth must not be negative, got %d", c.Codec.MaxDepth)
	}
	if c.Codec.MaxHandles < 0 {
		return invalid("codec.max_handles must not be negative, got %d", c.Codec.MaxHandles)
	}
	if c.Pipes.DefaultDataPipeCapacity < 1 || int64(c.Pipes.DefaultDataPipeCapacity) > maxDataPipeCapacity {
		return invalid("pipes.default_data_pipe_capacity must be between 1B and %s, got %s",
			Size(maxDataPipeCapacity), c.Pipes.DefaultDataPipeCapacity)
	}
	if c.Pipes.MaxQueuedMessages < 0 {
		return invalid("pipes.max_queued_messages must not be negative, got %d", c.Pipes.MaxQueuedMessages)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level: %v", err)
	}
	return nil
}
