// Package config provides configuration loading and management for rtexport.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Export parameters
	Export struct {
		// StrictRoles turns a second exportable for the same role into an error
		// instead of letting the last one win
		StrictRoles bool `yaml:"strictRoles"`

		// WeldTolerance merges surface points closer than this distance (mm) before slicing.
		// Zero disables welding.
		WeldTolerance float64 `yaml:"weldTolerance"`

		// GenerateStudyUID creates a study instance UID when the inputs have none
		GenerateStudyUID bool `yaml:"generateStudyUID"`
	} `yaml:"export"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// SavePreviews writes PNG previews of the exported slices with structures overlaid
		SavePreviews bool `yaml:"savePreviews"`

		// PreviewDir is the preview directory, relative to the output directory
		PreviewDir string `yaml:"previewDir"`

		// PreviewSize is the width in pixels of preview images
		PreviewSize int `yaml:"previewSize"`

		// SaveWorldMeshes writes every structure surface in world space as binary STL
		SaveWorldMeshes bool `yaml:"saveWorldMeshes"`

		// MeshDir is the mesh directory, relative to the output directory
		MeshDir string `yaml:"meshDir"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default export parameters
	cfg.Export.StrictRoles = false
	cfg.Export.WeldTolerance = 1e-4
	cfg.Export.GenerateStudyUID = true

	// Set default output parameters
	cfg.Output.Verbose = false
	cfg.Output.SavePreviews = false
	cfg.Output.PreviewDir = "previews"
	cfg.Output.PreviewSize = 512
	cfg.Output.SaveWorldMeshes = false
	cfg.Output.MeshDir = "meshes"

	return cfg
}

// Validate checks values that would make an export fail later
func (c *Config) Validate() error {
	if c.Export.WeldTolerance < 0 {
		return fmt.Errorf("export.weldTolerance must not be negative, got %g", c.Export.WeldTolerance)
	}
	if c.Output.SavePreviews && c.Output.PreviewSize <= 0 {
		return fmt.Errorf("output.previewSize must be positive, got %d", c.Output.PreviewSize)
	}
	return nil
}

// LoadConfig reads the YAML file at configPath over the defaults. A missing file
// yields the defaults unchanged.
func LoadConfig(configPath string) (*Config, error) {
	f, err := os.Open(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	defer f.Close()

	cfg, err := ParseConfig(f)
	if err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// ParseConfig decodes a YAML configuration over the defaults and validates it.
// Unknown keys are rejected so misspelled options do not go unnoticed.
func ParseConfig(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes cfg to configPath, creating missing directories
func SaveConfig(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// CreateDefaultConfigFile writes the default configuration to configPath
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
