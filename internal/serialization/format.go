package serialization

import (
	"time"
)

// Format constants.
const (
	MagicBytes       = "BORN"
	FormatVersionV2  = 2    // v2: With SHA-256 checksum
	HeaderAlignment  = 64   // Align tensor data to 64 bytes
	FixedHeaderSize  = 64   // v2 fixed header size (0x40 bytes)
	ChecksumSize     = 32   // SHA-256 checksum size (32 bytes)
	ChecksumOffsetV2 = 0x20 // Checksum offset in v2 fixed header
)

// Flags for the .born format.
const (
	FlagHasCheckpoint uint32 = 1 << 1 // bit 1: training state included
	FlagHasMetadata   uint32 = 1 << 2 // bit 2: custom metadata included
)

// Header represents the JSON header in a .born file.
type Header struct {
	FormatVersion  int               `json:"format_version"`       // Version of the .born format
	ModelName      string            `json:"model_name"`           // Name of the model (e.g., "VanillaVAE")
	CreatedAt      time.Time         `json:"created_at"`           // When the file was created
	Tensors        []TensorMeta      `json:"tensors"`              // Tensor metadata, in data order
	Metadata       map[string]string `json:"metadata"`             // Custom metadata
	CheckpointMeta *CheckpointMeta   `json:"checkpoint,omitempty"` // Training state (optional)
}

// CheckpointMeta contains training state information for checkpoints.
type CheckpointMeta struct {
	RunName string         `json:"run_name"` // Experiment name
	Epoch   int            `json:"epoch"`    // Training epoch number
	Hparams map[string]any `json:"hparams"`  // Experiment parameters
	Host    map[string]any `json:"host"`     // Host that produced the checkpoint
}

// TensorMeta describes a tensor in the .born file.
type TensorMeta struct {
	Name   string `json:"name"`   // Tensor name (e.g., "encoder.fc.weight")
	DType  string `json:"dtype"`  // Data type ("float32")
	Shape  []int  `json:"shape"`  // Tensor shape
	Offset int64  `json:"offset"` // Offset in the data section
	Size   int64  `json:"size"`   // Size in bytes
}

// alignedDataOffset returns the first data byte given the JSON header size.
func alignedDataOffset(headerSize int64) int64 {
	pos := int64(FixedHeaderSize) + headerSize
	padding := (HeaderAlignment - (pos % HeaderAlignment)) % HeaderAlignment
	return pos + padding
}
