// Package serialization reads and writes model state dictionaries in the
// native .born v2 checkpoint format.
//
//	Format Structure:
//	  [0x00-0x03: Magic "BORN"]
//	  [0x04-0x07: Version (uint32 LE, 2)]
//	  [0x08-0x0B: Flags (uint32 LE)]
//	  [0x0C-0x0F: Reserved]
//	  [0x10-0x17: Header size (uint64 LE)]
//	  [0x18-0x1F: Data size (uint64 LE)]
//	  [0x20-0x3F: SHA-256 of the tensor data]
//	  [Header: JSON metadata]
//	  [Tensor data: raw little-endian bytes, 64-byte aligned]
//
// Tensors are laid out in name order so that two checkpoints of the same
// state are byte-identical apart from the creation time.
//
// Example usage:
//
//	// Save a model
//	err := serialization.WriteFile(path, m.StateDict(), serialization.Header{
//	    ModelName: m.Name(),
//	})
//
//	// Load a model
//	stateDict, header, err := serialization.ReadFile(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = m.LoadStateDict(stateDict)
package serialization
