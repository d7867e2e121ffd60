package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/vae/internal/tensor"
)

// ReaderOptions configures Decode and ReadFile.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Skip checksum validation (faster but less safe)
	ValidationLevel        ValidationLevel // Validation strictness level
}

// ReadFile reads a state dictionary from path with strict validation.
func ReadFile(path string) (map[string]*tensor.Tensor[float32], Header, error) {
	return ReadFileWithOptions(path, ReaderOptions{ValidationLevel: ValidationStrict})
}

// ReadFileWithOptions reads a state dictionary from path.
func ReadFileWithOptions(path string, opts ReaderOptions) (map[string]*tensor.Tensor[float32], Header, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, Header{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return Decode(file, opts)
}

// Decode reads a .born v2 stream into a state dictionary. Tensors are placed
// on the CPU device.
func Decode(r io.Reader, opts ReaderOptions) (map[string]*tensor.Tensor[float32], Header, error) {
	fixedHeader := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r, fixedHeader); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read fixed header: %w", err)
	}
	if string(fixedHeader[0:4]) != MagicBytes {
		return nil, Header{}, ErrInvalidMagic
	}
	if version := binary.LittleEndian.Uint32(fixedHeader[4:8]); version != FormatVersionV2 {
		return nil, Header{}, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersionV2)
	}

	headerSize := binary.LittleEndian.Uint64(fixedHeader[16:24])
	dataSize := binary.LittleEndian.Uint64(fixedHeader[24:32])
	var stored [32]byte
	copy(stored[:], fixedHeader[ChecksumOffsetV2:ChecksumOffsetV2+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return nil, Header{}, ErrHeaderTooLarge
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read header JSON: %w", err)
	}
	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, Header{}, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	//nolint:gosec // G115: headerSize is bounded by MaxHeaderSize
	pos := int64(FixedHeaderSize) + int64(headerSize)
	if padding := alignedDataOffset(int64(headerSize)) - pos; padding > 0 {
		if _, err := io.CopyN(io.Discard, r, padding); err != nil {
			return nil, Header{}, fmt.Errorf("failed to read padding: %w", err)
		}
	}

	//nolint:gosec // G115: a data section larger than int64 fails the read below
	if err := ValidateHeader(&header, int64(dataSize), opts.ValidationLevel); err != nil {
		return nil, Header{}, fmt.Errorf("validation failed: %w", err)
	}

	var data bytes.Buffer
	if _, err := io.CopyN(&data, r, int64(dataSize)); err != nil { //nolint:gosec // see above
		return nil, Header{}, fmt.Errorf("failed to read tensor data: %w", err)
	}
	if !opts.SkipChecksumValidation {
		if err := verifyChecksum(data.Bytes(), stored); err != nil {
			return nil, Header{}, err
		}
	}

	stateDict := make(map[string]*tensor.Tensor[float32], len(header.Tensors))
	raw := data.Bytes()
	for _, meta := range header.Tensors {
		if dt, ok := tensor.ParseDataType(meta.DType); !ok || dt != tensor.Float32 {
			return nil, Header{}, fmt.Errorf("%w: %s has %s", ErrUnsupportedDType, meta.Name, meta.DType)
		}
		if meta.Offset < 0 || meta.Offset+meta.Size > int64(len(raw)) {
			return nil, Header{}, &ValidationError{Kind: "out_of_bounds", Tensor: meta.Name, Detail: "beyond data section"}
		}
		t, err := tensor.FromBytes[float32](raw[meta.Offset:meta.Offset+meta.Size], tensor.Shape(meta.Shape), tensor.CPU)
		if err != nil {
			return nil, Header{}, fmt.Errorf("failed to load tensor %s: %w", meta.Name, err)
		}
		stateDict[meta.Name] = t
	}

	return stateDict, header, nil
}
