// Package device chooses the compute device of a run and describes the host.
//
// Accelerators are discovered by detectors compiled in with build tags
// (-tags webgpu). Without any detector every request resolves to the CPU.
package device

import (
	"fmt"
	"strings"

	"k8s.io/klog/v2"

	"github.com/born-ml/vae/internal/tensor"
)

// Info describes one compute device.
type Info struct {
	Device tensor.Device
	Name   string
}

// Selector resolves device preferences against a detector.
type Selector struct {
	detect func() []Info
}

// NewSelector returns a Selector using detect to list accelerators.
func NewSelector(detect func() []Info) *Selector {
	return &Selector{detect: detect}
}

var defaultSelector = NewSelector(detectAccelerators)

// Select resolves pref with the accelerators compiled into this binary.
func Select(pref string) (tensor.Device, error) { return defaultSelector.Select(pref) }

// List returns the CPU followed by the accelerators compiled into this binary.
func List() []Info { return defaultSelector.List() }

// List returns the CPU followed by every detected accelerator.
func (s *Selector) List() []Info {
	return append([]Info{{Device: tensor.CPU, Name: cpuName()}}, s.detect()...)
}

// Select resolves a preference to a device.
//
//   - "cpu" always selects the CPU.
//   - "auto" and "gpu" select the first accelerator, or the CPU if none.
//   - A device name ("webgpu", "cuda", "metal") selects that device when it
//     was detected and falls back to the CPU otherwise.
func (s *Selector) Select(pref string) (tensor.Device, error) {
	pref = strings.ToLower(strings.TrimSpace(pref))
	switch pref {
	case "cpu":
		return tensor.CPU, nil
	case "", "auto", "gpu":
		accel := s.detect()
		if len(accel) == 0 {
			if pref == "gpu" {
				klog.InfoS("No accelerator found, falling back to CPU")
			}
			return tensor.CPU, nil
		}
		klog.V(1).InfoS("Selected accelerator", "device", accel[0].Device, "name", accel[0].Name)
		return accel[0].Device, nil
	}

	want, err := tensor.ParseDevice(pref)
	if err != nil {
		return tensor.NoDevice, fmt.Errorf("select device: %w", err)
	}
	for _, info := range s.detect() {
		if info.Device == want {
			return want, nil
		}
	}
	klog.InfoS("Requested device not available, falling back to CPU", "device", want)
	return tensor.CPU, nil
}
