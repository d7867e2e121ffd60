// Package nn implements the neural network building blocks used by the
// reference models.
//
// This package provides:
//   - Module interface: parameters and state dictionaries
//   - Parameter: trainable tensor with an accumulated gradient
//   - Linear: fully connected layer backed by gonum BLAS
//   - ReLU and Sigmoid with explicit backward functions
package nn

import (
	"fmt"
	"slices"

	"github.com/born-ml/vae/internal/tensor"
)

// Module is the base interface for every component that owns parameters.
type Module interface {
	// Parameters returns all trainable parameters of this module,
	// including those of nested modules, in a stable order.
	Parameters() []*Parameter

	// StateDict returns a map of parameter names to tensors.
	StateDict() map[string]*tensor.Tensor[float32]

	// LoadStateDict copies values from a state dictionary into the module.
	//
	// Returns an error if a required parameter is missing or has wrong shape.
	LoadStateDict(stateDict map[string]*tensor.Tensor[float32]) error
}

// Named pairs a child module with its name inside a container.
type Named struct {
	Name   string
	Module Module
}

// Container is a Module assembled from named children.
type Container []Named

// Parameters returns the parameters of all children in declaration order.
func (c Container) Parameters() []*Parameter {
	var params []*Parameter
	for _, child := range c {
		params = append(params, child.Module.Parameters()...)
	}
	return params
}

// StateDict returns the children's state dictionaries with "<name>." prefixes.
func (c Container) StateDict() map[string]*tensor.Tensor[float32] {
	out := make(map[string]*tensor.Tensor[float32])
	for _, child := range c {
		for k, v := range child.Module.StateDict() {
			out[child.Name+"."+k] = v
		}
	}
	return out
}

// LoadStateDict routes prefixed entries to the matching children.
func (c Container) LoadStateDict(stateDict map[string]*tensor.Tensor[float32]) error {
	for _, child := range c {
		sub := make(map[string]*tensor.Tensor[float32])
		prefix := child.Name + "."
		for k, v := range stateDict {
			if len(k) > len(prefix) && k[:len(prefix)] == prefix {
				sub[k[len(prefix):]] = v
			}
		}
		if err := child.Module.LoadStateDict(sub); err != nil {
			return fmt.Errorf("%s: %w", child.Name, err)
		}
	}
	return nil
}

// Child returns the child module registered under name.
func (c Container) Child(name string) (Module, bool) {
	i := slices.IndexFunc(c, func(n Named) bool { return n.Name == name })
	if i < 0 {
		return nil, false
	}
	return c[i].Module, true
}

// loadParameter copies a state dictionary entry into p.
func loadParameter(stateDict map[string]*tensor.Tensor[float32], p *Parameter) error {
	src, ok := stateDict[p.Name()]
	if !ok {
		return fmt.Errorf("missing parameter %q", p.Name())
	}
	if !src.Shape().Equal(p.Tensor().Shape()) {
		return fmt.Errorf("parameter %q: shape %v, want %v", p.Name(), src.Shape(), p.Tensor().Shape())
	}
	copy(p.Tensor().Data(), src.Data())
	return nil
}
