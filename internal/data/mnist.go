package data

import (
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"
)

// Split selects the MNIST training or test files.
type Split int

// MNIST splits.
const (
	TrainSplit Split = iota
	TestSplit
)

func (s Split) prefix() string {
	if s == TrainSplit {
		return "train"
	}
	return "t10k"
}

// findIDX returns dir/name or dir/name.gz, whichever exists.
func findIDX(dir, name string) (string, error) {
	for _, candidate := range []string{name, name + ".gz"} {
		path := filepath.Join(dir, candidate)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%s not found in %s", name, dir)
}

// LoadMNIST loads one MNIST split from dataDir, scales pixels to [0, 1] and
// resizes every image to patchSize x patchSize.
//
// Expected files in dataDir (optionally gzip compressed):
//   - train-images-idx3-ubyte, train-labels-idx1-ubyte
//   - t10k-images-idx3-ubyte, t10k-labels-idx1-ubyte
//
// maxSamples limits the number of examples (0 = load all).
func LoadMNIST(dataDir string, split Split, patchSize, maxSamples int) (*InMemory, error) {
	imagePath, err := findIDX(dataDir, split.prefix()+"-images-idx3-ubyte")
	if err != nil {
		return nil, err
	}
	labelPath, err := findIDX(dataDir, split.prefix()+"-labels-idx1-ubyte")
	if err != nil {
		return nil, err
	}

	imgFile, err := openIDX(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load images: %w", err)
	}
	defer func() { _ = imgFile.Close() }()
	pixels, count, rows, cols, err := readIDXImages(imgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load images: %w", err)
	}

	lblFile, err := openIDX(labelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load labels: %w", err)
	}
	defer func() { _ = lblFile.Close() }()
	labelsRaw, err := readIDXLabels(lblFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load labels: %w", err)
	}

	if count != len(labelsRaw) {
		return nil, fmt.Errorf("image count (%d) != label count (%d)", count, len(labelsRaw))
	}

	n := count
	if maxSamples > 0 && n > maxSamples {
		n = maxSamples
	}
	if patchSize <= 0 {
		patchSize = rows
	}

	return fromBytes(pixels[:n*rows*cols], labelsRaw[:n], rows, cols, patchSize)
}

// fromBytes converts raw 8-bit images to a resized InMemory dataset.
func fromBytes(raw, labelsRaw []byte, rows, cols, patchSize int) (*InMemory, error) {
	n := len(labelsRaw)
	in := make([]float32, rows*cols)
	out := make([]float32, n*patchSize*patchSize)
	labels := make([]int32, n)

	for i := range n {
		src := raw[i*rows*cols : (i+1)*rows*cols]
		dst := out[i*patchSize*patchSize : (i+1)*patchSize*patchSize]
		if rows == patchSize && cols == patchSize {
			for j, p := range src {
				dst[j] = float32(p) / 255.0
			}
		} else {
			for j, p := range src {
				in[j] = float32(p) / 255.0
			}
			resizeBilinear(in, rows, cols, dst, patchSize, patchSize)
		}
		labels[i] = int32(labelsRaw[i])
	}

	klog.V(1).InfoS("Loaded MNIST split", "examples", n, "size", fmt.Sprintf("%dx%d", patchSize, patchSize))
	return NewInMemory(out, labels, 1, patchSize, patchSize)
}
