//go:build webgpu

package device

import (
	"github.com/go-webgpu/webgpu/wgpu"
	"k8s.io/klog/v2"

	"github.com/born-ml/vae/internal/tensor"
)

// detectAccelerators reports the default WebGPU adapter, if any.
func detectAccelerators() (found []Info) {
	// The native library may be missing at runtime.
	defer func() {
		if r := recover(); r != nil {
			klog.V(1).InfoS("WebGPU native library not available", "reason", r)
			found = nil
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		klog.V(1).InfoS("No WebGPU adapter", "err", err)
		return nil
	}
	adapter.Release()

	return []Info{{Device: tensor.WebGPU, Name: "webgpu"}}
}
