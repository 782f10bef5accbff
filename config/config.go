// Package config loads the engine's own defaults: the number of retry
// attempts, the delay between them, and the log level. It is a much
// smaller version of the teacher's chain/job-distributor config
// loader, reduced to optree's three knobs, adapted from
// engine/cld/config/env/config.go's spf13/viper + BindEnv pattern.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EngineDefaults holds the engine's retry policy and log level as loaded
// by Load. Nothing in optree reads it: a caller copies NumTries and
// RetryInterval into an optree.Bundle itself, and Bundle.withDefaults
// fills unset fields with its own fixed defaults, not with these.
type EngineDefaults struct {
	NumTries      uint          `mapstructure:"numTries" yaml:"numTries"`
	RetryInterval time.Duration `mapstructure:"retryInterval" yaml:"retryInterval"`
	LogLevel      zapcore.Level `mapstructure:"logLevel" yaml:"logLevel"`
}

// envBindings maps each config key to the environment variable that can
// override it, mirroring the teacher's envBindings map in
// engine/cld/config/env/config.go.
var envBindings = map[string]string{
	"numTries":      "OPTREE_NUM_TRIES",
	"retryInterval": "OPTREE_RETRY_INTERVAL",
	"logLevel":      "OPTREE_LOG_LEVEL",
}

func defaults() EngineDefaults {
	return EngineDefaults{
		NumTries:      1,
		RetryInterval: time.Second,
		LogLevel:      zapcore.InfoLevel,
	}
}

// Load reads EngineDefaults from an optional YAML file at path (skipped
// if path is empty or missing) and environment-variable overrides, then
// falls back to the package defaults for anything unset.
func Load(path string) (EngineDefaults, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	d := defaults()
	v.SetDefault("numTries", d.NumTries)
	v.SetDefault("retryInterval", d.RetryInterval)
	v.SetDefault("logLevel", d.LogLevel.String())

	if err := bindEnvs(v); err != nil {
		return EngineDefaults{}, fmt.Errorf("config: bind env vars: %w", err)
	}

	// If the config file exists, read it; otherwise fall back to the
	// defaults and env bindings set above, mirroring Load in
	// engine/cld/config/env/config.go.
	if path != "" {
		v.SetConfigFile(path)
		if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
			if err := v.ReadInConfig(); err != nil {
				return EngineDefaults{}, fmt.Errorf("config: read %q: %w", path, err)
			}
		}
	}

	var out EngineDefaults
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&out, decodeHook); err != nil {
		return EngineDefaults{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return out, nil
}

func bindEnvs(v *viper.Viper) error {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}
