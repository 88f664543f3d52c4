// Package config describes the interpreter target the bridge is built
// against: ABI tier, minimum interpreter version and lock mode, plus the
// language dialect, thread pool and logging settings.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/hostbridge/engine"
	"github.com/wippyai/hostbridge/gil"
)

// ABI selects how much of the interpreter's value model the bridge relies on.
type ABI string

const (
	// ABIFull allows concrete-type fast paths and raw value access.
	ABIFull ABI = "full"
	// ABILimited restricts the bridge to the generic value protocols.
	ABILimited ABI = "limited"
)

// Target is the resolved description of the interpreter.
type Target struct {
	ABI        ABI            `koanf:"abi" validate:"required,oneof=full limited"`
	MinVersion engine.Version `koanf:"min_version"`
	GILMode    gil.Mode       `koanf:"gil_mode" validate:"required,oneof=standard disabled"`
	Dialect    engine.Dialect `koanf:"dialect"`
	Threads    Threads        `koanf:"threads"`
	Logging    Logging        `koanf:"logging"`
}

// Threads configures the per-interpreter thread pool.
type Threads struct {
	PoolSize int `koanf:"pool_size" validate:"gte=1,lte=1024"`
}

// Logging configures the zap logger built by the CLI.
type Logging struct {
	Level       string `koanf:"level" validate:"oneof=debug info warn error"`
	Development bool   `koanf:"development"`
}

const (
	DefaultABI      = ABIFull
	DefaultGILMode  = gil.ModeStandard
	DefaultPoolSize = 10
	DefaultLevel    = "warn"
)

// Default returns the target used when nothing is configured.
func Default() *Target {
	return &Target{
		ABI:     DefaultABI,
		GILMode: DefaultGILMode,
		Dialect: engine.Dialect{Set: true, While: true, Recursion: true},
		Threads: Threads{PoolSize: DefaultPoolSize},
		Logging: Logging{Level: DefaultLevel},
	}
}

// validate is shared; building a validator is expensive.
var validate = validator.New()

// Validate checks the target against its field constraints.
func (t *Target) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Limited reports whether the limited ABI tier is selected.
func (t *Target) Limited() bool {
	return t.ABI == ABILimited
}

// Build creates a zap logger for the settings.
func (l Logging) Build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(l.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}

	cfg := zap.NewProductionConfig()
	if l.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
