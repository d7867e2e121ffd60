package serialization

import (
	"cmp"
	"crypto/sha256"
	"errors"
	"fmt"
	"regexp"
	"slices"

	"github.com/born-ml/vae/internal/tensor"
)

// Common errors.
var (
	ErrChecksumMismatch   = errors.New("checksum mismatch: file may be corrupted")
	ErrHeaderTooLarge     = errors.New("header exceeds maximum size")
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrUnsupportedDType   = errors.New("unsupported tensor dtype")
	ErrEmptyStateDict     = errors.New("state dict is empty")
)

// Limits applied to untrusted headers.
const (
	MaxHeaderSize  = 64 << 20
	MaxTensorCount = 100_000
)

// ValidationLevel selects how much of a header is checked before its data is read.
type ValidationLevel int

const (
	// ValidationStrict checks names, shapes, sizes and the layout of the data section.
	ValidationStrict ValidationLevel = iota
	// ValidationNone trusts the header.
	ValidationNone
)

// ValidationError describes a header entry that was rejected.
type ValidationError struct {
	Kind   string // "invalid_name", "size_mismatch", "out_of_bounds", ...
	Tensor string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Tensor == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s: tensor %q: %s", e.Kind, e.Tensor, e.Detail)
}

// State dict keys are dotted module paths such as "encoder.fc.weight".
var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_]+(\.[A-Za-z0-9_]+)*$`)

// checksum is the SHA-256 of the data section.
func checksum(data []byte) [ChecksumSize]byte {
	return sha256.Sum256(data)
}

func verifyChecksum(data []byte, stored [ChecksumSize]byte) error {
	if checksum(data) != stored {
		return ErrChecksumMismatch
	}
	return nil
}

// ValidateHeader checks h against a data section of dataSize bytes.
func ValidateHeader(h *Header, dataSize int64, level ValidationLevel) error {
	if level == ValidationNone {
		return nil
	}
	if n := len(h.Tensors); n > MaxTensorCount {
		return &ValidationError{Kind: "too_many_tensors", Detail: fmt.Sprintf("%d > %d", n, MaxTensorCount)}
	}

	seen := make(map[string]bool, len(h.Tensors))
	for _, m := range h.Tensors {
		if !keyPattern.MatchString(m.Name) {
			return &ValidationError{Kind: "invalid_name", Tensor: m.Name, Detail: "not a dotted parameter path"}
		}
		if seen[m.Name] {
			return &ValidationError{Kind: "duplicate_name", Tensor: m.Name, Detail: "listed twice"}
		}
		seen[m.Name] = true

		shape := tensor.Shape(m.Shape)
		if err := shape.Validate(); err != nil {
			return &ValidationError{Kind: "invalid_shape", Tensor: m.Name, Detail: err.Error()}
		}
		if want := int64(shape.NumElements() * tensor.Float32.Size()); m.Size != want {
			return &ValidationError{
				Kind:   "size_mismatch",
				Tensor: m.Name,
				Detail: fmt.Sprintf("shape %v needs %d bytes, header declares %d", m.Shape, want, m.Size),
			}
		}
	}
	return validateLayout(h.Tensors, dataSize)
}

// validateLayout requires every tensor to lie inside the data section
// without sharing bytes with another tensor.
func validateLayout(tensors []TensorMeta, dataSize int64) error {
	byOffset := slices.SortedFunc(slices.Values(tensors), func(a, b TensorMeta) int {
		return cmp.Compare(a.Offset, b.Offset)
	})

	var end int64
	for i, m := range byOffset {
		if m.Offset < 0 || m.Size < 0 {
			return &ValidationError{Kind: "negative_offset", Tensor: m.Name, Detail: fmt.Sprintf("offset %d size %d", m.Offset, m.Size)}
		}
		if m.Offset+m.Size > dataSize {
			return &ValidationError{Kind: "out_of_bounds", Tensor: m.Name, Detail: fmt.Sprintf("ends at %d, data has %d bytes", m.Offset+m.Size, dataSize)}
		}
		if i > 0 && m.Offset < end {
			return &ValidationError{Kind: "offset_overlap", Tensor: m.Name, Detail: fmt.Sprintf("starts at %d inside %q", m.Offset, byOffset[i-1].Name)}
		}
		end = m.Offset + m.Size
	}
	return nil
}
