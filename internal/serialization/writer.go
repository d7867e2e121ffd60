package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/born-ml/vae/internal/tensor"
)

// Encode writes stateDict to w in .born v2 format.
//
// The tensor table, offsets and version of header are filled in here; the
// caller sets ModelName, Metadata and CheckpointMeta. CreatedAt defaults to
// the current time when zero.
func Encode(w io.Writer, stateDict map[string]*tensor.Tensor[float32], header Header) error {
	if len(stateDict) == 0 {
		return ErrEmptyStateDict
	}

	names := make([]string, 0, len(stateDict))
	for name := range stateDict {
		if !keyPattern.MatchString(name) {
			return &ValidationError{Kind: "invalid_name", Tensor: name, Detail: "not a dotted parameter path"}
		}
		names = append(names, name)
	}
	slices.Sort(names)

	// Calculate tensor offsets and collect tensor data
	header.FormatVersion = FormatVersionV2
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}
	header.Tensors = make([]TensorMeta, 0, len(names))

	var data []byte
	for _, name := range names {
		t := stateDict[name]
		b := t.Bytes()
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  t.DType().String(),
			Shape:  []int(t.Shape().Clone()),
			Offset: int64(len(data)),
			Size:   int64(len(b)),
		})
		data = append(data, b...)
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	sum := checksum(data)

	// Write v2 fixed header (64 bytes)
	fixedHeader := make([]byte, FixedHeaderSize)

	// 0x00-0x03: Magic bytes "BORN"
	copy(fixedHeader[0:4], MagicBytes)

	// 0x04-0x07: Version (2)
	binary.LittleEndian.PutUint32(fixedHeader[4:8], uint32(FormatVersionV2))

	// 0x08-0x0B: Flags
	flags := uint32(0)
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if header.CheckpointMeta != nil {
		flags |= FlagHasCheckpoint
	}
	binary.LittleEndian.PutUint32(fixedHeader[8:12], flags)

	// 0x10-0x17: Header size
	binary.LittleEndian.PutUint64(fixedHeader[16:24], uint64(len(headerJSON)))

	// 0x18-0x1F: Data size
	binary.LittleEndian.PutUint64(fixedHeader[24:32], uint64(len(data)))

	// 0x20-0x3F: SHA-256 checksum
	copy(fixedHeader[ChecksumOffsetV2:ChecksumOffsetV2+ChecksumSize], sum[:])

	if _, err := w.Write(fixedHeader); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header JSON: %w", err)
	}

	pos := int64(FixedHeaderSize) + int64(len(headerJSON))
	if padding := alignedDataOffset(int64(len(headerJSON))) - pos; padding > 0 {
		if _, err := w.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

// WriteFile writes stateDict to path, replacing any existing file.
//
// The checkpoint is written to a temporary file in the same directory and
// renamed into place, so a reader never observes a partial checkpoint.
func WriteFile(path string, stateDict map[string]*tensor.Tensor[float32], header Header) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }() // No-op after a successful rename

	if err := Encode(tmp, stateDict, header); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
