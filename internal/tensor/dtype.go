// Package tensor provides the dense tensors exchanged between the experiment,
// the model and the diagnostics.
//
// Tensors are row-major, host-resident and tagged with the Device they
// logically belong to. Only the two element types the harness needs are
// supported: float32 for images, latents and parameters, and int32 for labels.
package tensor

// DType is a constraint for supported tensor element types.
type DType interface {
	~float32 | ~int32
}

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
const (
	Float32 DataType = iota
	Int32
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	default:
		return "unknown"
	}
}

// ParseDataType converts the string form produced by String back to a DataType.
func ParseDataType(s string) (DataType, bool) {
	switch s {
	case "float32":
		return Float32, true
	case "int32":
		return Int32, true
	default:
		return 0, false
	}
}

// inferDataType infers DataType from a generic type T.
func inferDataType[T DType]() DataType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Float32
	case int32:
		return Int32
	default:
		panic("unsupported type")
	}
}
