//go:build !webgpu

package device

func detectAccelerators() []Info { return nil }
