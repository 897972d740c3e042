// Package config loads the two configuration layers of barebox-bringup:
// the tool settings (defaults, state directory, coordinator fallback) and
// the per-board environment file describing targets, capabilities and
// images.
package config

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Settings is the tool-level configuration, read from
// ~/.barebox-bringup/config.yaml when present. Every field has a usable
// default so the file is optional.
type Settings struct {
	StateDir    string `mapstructure:"state_dir"`
	DefaultRole string `mapstructure:"default_role"`
	Coordinator string `mapstructure:"coordinator"`
	TimeoutSec  int    `mapstructure:"timeout"`
	BuildDir    string `mapstructure:"build_dir"`
}

// LoadSettings reads the tool configuration, merging file, environment
// variables (BB_* plus the conventional LG_COORDINATOR / LG_BUILDDIR /
// KBUILD_OUTPUT names) and defaults.
func LoadSettings() (*Settings, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(home, ".barebox-bringup"))

	v.SetDefault("state_dir", filepath.Join(home, ".barebox-bringup"))
	v.SetDefault("default_role", "main")
	v.SetDefault("timeout", 60)

	v.SetEnvPrefix("BB")
	v.AutomaticEnv()
	_ = v.BindEnv("coordinator", "BB_COORDINATOR", "LG_COORDINATOR")
	_ = v.BindEnv("build_dir", "BB_BUILDDIR", "LG_BUILDDIR", "KBUILD_OUTPUT")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ResolveBuildDir picks the build output directory used to resolve
// relative image paths: an explicit value wins, then the environment-bound
// setting, then a ./build directory when one exists, then the current
// directory. The result is always absolute; no process environment is
// mutated.
func ResolveBuildDir(explicit string, settings *Settings) (string, error) {
	candidate := explicit
	if candidate == "" && settings != nil {
		candidate = settings.BuildDir
	}
	if candidate == "" {
		if info, err := os.Stat("build"); err == nil && info.IsDir() {
			candidate = "build"
		} else {
			cwd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			candidate = cwd
		}
	}
	abs, err := filepath.Abs(candidate)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}
