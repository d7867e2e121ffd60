package tensor

import (
	"fmt"
	"strings"
)

// Device represents the compute device a tensor belongs to.
type Device int

// Supported compute devices. NoDevice is the zero value and means that no
// tensor has been observed yet.
const (
	NoDevice Device = iota
	CPU
	CUDA
	Metal
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case NoDevice:
		return "none"
	case CPU:
		return "cpu"
	case CUDA:
		return "cuda"
	case Metal:
		return "metal"
	case WebGPU:
		return "webgpu"
	default:
		return "unknown"
	}
}

// ParseDevice converts a device name ("cpu", "cuda", ...) to a Device.
func ParseDevice(s string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpu":
		return CPU, nil
	case "cuda":
		return CUDA, nil
	case "metal", "mps":
		return Metal, nil
	case "webgpu", "wgpu":
		return WebGPU, nil
	default:
		return NoDevice, fmt.Errorf("unknown device %q", s)
	}
}
