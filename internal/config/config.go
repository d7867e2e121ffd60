// Package config loads experiment files.
//
// An experiment file is YAML with one section per component:
//
//	model_params:   vae.Config
//	data_params:    data.Config
//	exp_params:     experiment.Params
//	trainer_params: Trainer
//	logging_params: Logging
//
// Values from the process environment (optionally seeded from a .env file)
// override the file for the settings that usually differ between machines.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/born-ml/vae/internal/data"
	"github.com/born-ml/vae/internal/experiment"
	"github.com/born-ml/vae/internal/vae"
)

// Environment variables that override file values.
const (
	EnvDataPath  = "VAE_DATA_PATH"
	EnvSaveDir   = "VAE_SAVE_DIR"
	EnvMaxEpochs = "VAE_MAX_EPOCHS"
	EnvDevice    = "VAE_DEVICE"
)

// Trainer is the trainer_params section.
type Trainer struct {
	MaxEpochs int    `yaml:"max_epochs"` // Epochs to train (default: 10)
	Device    string `yaml:"device"`     // "cpu", "gpu" or "auto" (default: "auto")
	Replicas  int    `yaml:"replicas"`   // Data-parallel replicas (default: 1)
}

// Logging is the logging_params section.
type Logging struct {
	SaveDir string `yaml:"save_dir"` // Root of all runs (default: "logs/")
	Name    string `yaml:"name"`     // Experiment name (default: model name)
}

// Config is a complete experiment file.
type Config struct {
	Model   vae.Config        `yaml:"model_params"`
	Data    data.Config       `yaml:"data_params"`
	Exp     experiment.Params `yaml:"exp_params"`
	Trainer Trainer           `yaml:"trainer_params"`
	Logging Logging           `yaml:"logging_params"`
}

// Parse decodes an experiment file. Unknown keys are rejected.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse experiment file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Load reads path, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read experiment file: %w", err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads .env files into the process environment without
// overwriting variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				klog.V(2).InfoS("No env file", "path", f)
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
		klog.V(1).InfoS("Loaded env file", "path", f)
	}
	return nil
}

// ApplyEnv overrides file values with the variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDataPath); ok && v != "" {
		c.Data.DataPath = v
	}
	if v, ok := lookup(EnvSaveDir); ok && v != "" {
		c.Logging.SaveDir = v
	}
	if v, ok := lookup(EnvDevice); ok && v != "" {
		c.Trainer.Device = v
	}
	if v, ok := lookup(EnvMaxEpochs); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxEpochs, err)
		}
		c.Trainer.MaxEpochs = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Model.Name == "" {
		c.Model.Name = vae.DefaultConfig().Name
	}
	if c.Data.PatchSize == 0 {
		c.Data.PatchSize = c.Model.PatchSize
	}
	if c.Model.PatchSize == 0 {
		c.Model.PatchSize = c.Data.PatchSize
	}
	if c.Trainer.MaxEpochs == 0 {
		c.Trainer.MaxEpochs = 10
	}
	if c.Trainer.Device == "" {
		c.Trainer.Device = "auto"
	}
	if c.Trainer.Replicas == 0 {
		c.Trainer.Replicas = 1
	}
	if c.Logging.SaveDir == "" {
		c.Logging.SaveDir = "logs/"
	}
	if c.Logging.Name == "" {
		c.Logging.Name = c.Model.Name
	}
}

// Validate checks cross-section consistency and each section.
func (c *Config) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return err
	}
	if err := c.Exp.Validate(); err != nil {
		return fmt.Errorf("exp_params: %w", err)
	}
	if c.Model.PatchSize != 0 && c.Data.PatchSize != 0 && c.Model.PatchSize != c.Data.PatchSize {
		return fmt.Errorf("model_params.patch_size %d differs from data_params.patch_size %d",
			c.Model.PatchSize, c.Data.PatchSize)
	}
	if c.Trainer.MaxEpochs < 0 {
		return fmt.Errorf("trainer_params.max_epochs must be non-negative, got %d", c.Trainer.MaxEpochs)
	}
	if c.Trainer.Replicas < 1 {
		return fmt.Errorf("trainer_params.replicas must be at least 1, got %d", c.Trainer.Replicas)
	}
	if !c.Data.Synthetic && c.Data.DataPath == "" {
		return fmt.Errorf("data_params.data_path is required unless synthetic is set")
	}
	return nil
}

// WriteHparams writes the resolved configuration to path as YAML.
func WriteHparams(path string, c *Config) error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode hparams: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write hparams: %w", err)
	}
	return nil
}
