package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nesting levels: HOSTBRIDGE_MIN_VERSION__MAJOR sets min_version.major.
const EnvPrefix = "HOSTBRIDGE_"

// flagKeys maps CLI flag names to config keys where they differ.
var flagKeys = map[string]string{
	"log-level": "logging.level",
	"pool-size": "threads.pool_size",
}

// Load resolves the target from defaults, the YAML file at path (if any),
// HOSTBRIDGE_ environment variables and explicitly set flags, in increasing
// order of precedence, then validates it.
func Load(path string, flags *pflag.FlagSet) (*Target, error) {
	k := koanf.New(".")

	def := Default()
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"abi":                       string(def.ABI),
		"gil_mode":                  string(def.GILMode),
		"min_version.major":         def.MinVersion.Major,
		"min_version.minor":         def.MinVersion.Minor,
		"dialect.set":               def.Dialect.Set,
		"dialect.while":             def.Dialect.While,
		"dialect.recursion":         def.Dialect.Recursion,
		"dialect.global_reassign":   def.Dialect.GlobalReassign,
		"dialect.top_level_control": def.Dialect.TopLevelControl,
		"threads.pool_size":         def.Threads.PoolSize,
		"logging.level":             def.Logging.Level,
		"logging.development":       def.Logging.Development,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var t Target
	if err := k.Unmarshal("", &t); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// envKey transforms HOSTBRIDGE_MIN_VERSION__MAJOR into min_version.major.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}
