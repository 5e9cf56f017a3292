package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. AUTOTEST_BROWSER_HEADLESS.
const EnvPrefix = "AUTOTEST"

// LoadOptions control where the layered configuration is read from.
type LoadOptions struct {
	// File is an explicit main config file. When empty, config.yaml is
	// searched in ./config and the working directory.
	File string
	// Environment overrides the "environment" key used to pick the
	// environments/<name>.yaml overlay.
	Environment string
	// Overrides are applied last and win over every other layer.
	Overrides map[string]any
}

// Load builds a viper instance with the layered precedence
// override > environment variable > environment file > main file > defaults.
func Load(opts LoadOptions) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	mainDir := "config"
	if opts.File != "" {
		path, err := homedir.Expand(opts.File)
		if err != nil {
			return nil, fmt.Errorf("expanding config path %q: %w", opts.File, err)
		}
		v.SetConfigFile(path)
		mainDir = filepath.Dir(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No main file; defaults and env vars still apply.
	} else {
		mainDir = filepath.Dir(v.ConfigFileUsed())
	}

	env := opts.Environment
	if env == "" {
		env = v.GetString("environment")
	}
	if env != "" {
		v.Set("environment", env)
		if err := mergeEnvironmentFile(v, mainDir, env); err != nil {
			return nil, err
		}
	}

	for key, val := range opts.Overrides {
		v.Set(key, val)
	}
	return v, nil
}

// mergeEnvironmentFile overlays environments/<env>.yaml next to the main file, if it exists.
func mergeEnvironmentFile(v *viper.Viper, dir, env string) error {
	overlay := viper.New()
	overlay.SetConfigName(env)
	overlay.SetConfigType("yaml")
	overlay.AddConfigPath(filepath.Join(dir, "environments"))
	if err := overlay.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading environment file for %q: %w", env, err)
	}
	if err := v.MergeConfigMap(overlay.AllSettings()); err != nil {
		return fmt.Errorf("merging environment %q: %w", env, err)
	}
	return nil
}

// Properties is a typed, fallback-aware view over a loaded viper instance.
// It serves keys by name, including ones Config has no field for.
type Properties struct {
	v *viper.Viper
}

func NewProperties(v *viper.Viper) *Properties {
	return &Properties{v: v}
}

func (p *Properties) String(key, fallback string) string {
	if !p.v.IsSet(key) {
		return fallback
	}
	if s := strings.TrimSpace(p.v.GetString(key)); s != "" {
		return s
	}
	return fallback
}

func (p *Properties) Int(key string, fallback int) int {
	if !p.v.IsSet(key) {
		return fallback
	}
	return p.v.GetInt(key)
}

func (p *Properties) Bool(key string, fallback bool) bool {
	if !p.v.IsSet(key) {
		return fallback
	}
	return p.v.GetBool(key)
}

func (p *Properties) Duration(key string, fallback time.Duration) time.Duration {
	if !p.v.IsSet(key) {
		return fallback
	}
	if d := p.v.GetDuration(key); d > 0 {
		return d
	}
	return fallback
}

// Set records an explicit override, the highest precedence layer.
func (p *Properties) Set(key string, value any) {
	p.v.Set(key, value)
}
