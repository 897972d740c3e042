package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrRoleNotFound is returned when the requested target role is not
// present in the environment file.
var ErrRoleNotFound = errors.New("target role not found")

// ErrNoImages is returned when an operation needs an image and the
// selected image set is empty.
var ErrNoImages = errors.New("no images configured")

// Environment is the parsed per-board environment file: which targets
// exist, which capabilities they carry, which images to use and the
// options shared by all of them.
type Environment struct {
	Targets   map[string]*TargetConfig `yaml:"targets"`
	Images    ImageSet                 `yaml:"images"`
	ImageSets map[string]*ImageSet     `yaml:"image-sets"`
	Options   map[string]any           `yaml:"options"`

	// BuildDir anchors relative image paths. Set by LoadEnvironment, not
	// read from the file.
	BuildDir string `yaml:"-"`
}

// TargetConfig describes one target role.
type TargetConfig struct {
	Strategy     string                       `yaml:"strategy"`
	ImageSet     string                       `yaml:"image-set"`
	Capabilities map[string]CapabilityConfig  `yaml:"capabilities"`
}

// CapabilityConfig describes how one capability of a target is driven.
// Driver selects the implementation; the remaining fields are the common
// driver settings, anything else lands in Settings.
type CapabilityConfig struct {
	Driver   string         `yaml:"driver"`
	Command  string         `yaml:"command,omitempty"`
	Args     []string       `yaml:"args,omitempty"`
	Port     string         `yaml:"port,omitempty"`
	Settings map[string]any `yaml:",inline"`
}

// LoadEnvironment parses the environment file at path. buildDir anchors
// relative image paths and must already be absolute (see ResolveBuildDir).
func LoadEnvironment(path, buildDir string) (*Environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read environment file: %w", err)
	}

	var env Environment
	if err := yaml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse environment file %s: %w", path, err)
	}
	env.BuildDir = buildDir
	return &env, nil
}

// Target returns the configuration for the given role.
func (e *Environment) Target(role string) (*TargetConfig, error) {
	t, ok := e.Targets[role]
	if !ok || t == nil {
		return nil, fmt.Errorf("%w: %q", ErrRoleNotFound, role)
	}
	return t, nil
}

// SelectImages returns the image set a target boots from. A target naming
// an image-set gets exactly that set, all or nothing; otherwise the flat
// top-level images mapping applies.
func (e *Environment) SelectImages(target *TargetConfig) (*ImageSet, error) {
	if target != nil && target.ImageSet != "" {
		set, ok := e.ImageSets[target.ImageSet]
		if !ok || set == nil {
			return nil, fmt.Errorf("image set %q not defined", target.ImageSet)
		}
		return set, nil
	}
	return &e.Images, nil
}

// ImagePath resolves an image path against the build directory.
func (e *Environment) ImagePath(img Image) string {
	if filepath.IsAbs(img.Path) {
		return img.Path
	}
	return filepath.Join(e.BuildDir, img.Path)
}

// StringOption returns a string option from the options section, or "".
func (e *Environment) StringOption(name string) string {
	if v, ok := e.Options[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// BoolOption returns a boolean option from the options section.
func (e *Environment) BoolOption(name string) bool {
	if v, ok := e.Options[name]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// CoordinatorAddress resolves the coordinator address by priority:
// command-line override, environment-file option, tool settings (which
// carry the BB_COORDINATOR / LG_COORDINATOR variables), then the
// conventional default.
func (e *Environment) CoordinatorAddress(override string, settings *Settings) string {
	if override != "" {
		return override
	}
	if addr := e.StringOption("coordinator_address"); addr != "" {
		return addr
	}
	if settings != nil && settings.Coordinator != "" {
		return settings.Coordinator
	}
	return "127.0.0.1:20408"
}
