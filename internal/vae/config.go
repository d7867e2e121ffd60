package vae

import (
	"fmt"
)

// Config holds the hyperparameters of a VanillaVAE.
//
// The yaml tags match the model_params section of an experiment file.
type Config struct {
	Name            string `yaml:"name"`             // Model name used in logs and file names
	InChannels      int    `yaml:"in_channels"`      // Image channels (default: 1)
	PatchSize       int    `yaml:"patch_size"`       // Image side length (default: 64)
	HiddenDim       int    `yaml:"hidden_dim"`       // Width of the hidden layers (default: 512)
	LatentDim       int    `yaml:"latent_dim"`       // Latent space dimensionality (default: 128)
	Seed            uint64 `yaml:"seed"`             // Seed for weights and reparameterization noise
	DisableSampling bool   `yaml:"disable_sampling"` // Make Sample return ErrSamplingUnsupported
}

// DefaultConfig returns the configuration used for 64x64 MNIST.
func DefaultConfig() Config {
	return Config{
		Name:       "VanillaVAE",
		InChannels: 1,
		PatchSize:  64,
		HiddenDim:  512,
		LatentDim:  128,
		Seed:       1265,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Name == "" {
		c.Name = d.Name
	}
	if c.InChannels == 0 {
		c.InChannels = d.InChannels
	}
	if c.PatchSize == 0 {
		c.PatchSize = d.PatchSize
	}
	if c.HiddenDim == 0 {
		c.HiddenDim = d.HiddenDim
	}
	if c.LatentDim == 0 {
		c.LatentDim = d.LatentDim
	}
	return c
}

// Validate checks the dimensions are usable.
func (c Config) Validate() error {
	if c.InChannels < 0 || c.PatchSize < 0 || c.HiddenDim < 0 || c.LatentDim < 0 {
		return fmt.Errorf("vae: negative dimension in %+v", c)
	}
	return nil
}

// pixels returns the flattened image width.
func (c Config) pixels() int {
	return c.InChannels * c.PatchSize * c.PatchSize
}
