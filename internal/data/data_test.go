package data

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vae/internal/tensor"
)

func idxImages(count, rows, cols int, pixels []byte) []byte {
	var buf bytes.Buffer
	//nolint:gosec // small fixture sizes
	_ = binary.Write(&buf, binary.BigEndian, [4]uint32{idxImagesMagic, uint32(count), uint32(rows), uint32(cols)})
	buf.Write(pixels)
	return buf.Bytes()
}

func idxLabels(labels []byte) []byte {
	var buf bytes.Buffer
	//nolint:gosec // small fixture sizes
	_ = binary.Write(&buf, binary.BigEndian, [2]uint32{idxLabelsMagic, uint32(len(labels))})
	buf.Write(labels)
	return buf.Bytes()
}

// writeMNIST writes a tiny MNIST directory with count 2x2 images per split.
func writeMNIST(t *testing.T, count int, gz bool) string {
	t.Helper()
	dir := t.TempDir()
	pixels := make([]byte, count*4)
	labels := make([]byte, count)
	for i := range count {
		for j := range 4 {
			pixels[i*4+j] = byte(255 * ((i + j) % 2))
		}
		labels[i] = byte(i % 10)
	}

	write := func(name string, b []byte) {
		if gz {
			var buf bytes.Buffer
			w := gzip.NewWriter(&buf)
			_, err := w.Write(b)
			require.NoError(t, err)
			require.NoError(t, w.Close())
			b, name = buf.Bytes(), name+".gz"
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), b, 0o600))
	}
	for _, split := range []string{"train", "t10k"} {
		write(split+"-images-idx3-ubyte", idxImages(count, 2, 2, pixels))
		write(split+"-labels-idx1-ubyte", idxLabels(labels))
	}
	return dir
}

func TestReadIDX(t *testing.T) {
	pixels, count, rows, cols, err := readIDXImages(bytes.NewReader(idxImages(1, 2, 3, []byte{1, 2, 3, 4, 5, 6})))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 2, rows)
	assert.Equal(t, 3, cols)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, pixels)

	_, _, _, _, err = readIDXImages(bytes.NewReader(idxLabels([]byte{1})))
	assert.Error(t, err)

	labels, err := readIDXLabels(bytes.NewReader(idxLabels([]byte{7, 3})))
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 3}, labels)

	_, _, _, _, err = readIDXImages(bytes.NewReader(idxImages(2, 2, 2, []byte{1, 2})))
	assert.Error(t, err, "truncated pixel data")
}

func TestLoadMNIST(t *testing.T) {
	for _, gz := range []bool{false, true} {
		dir := writeMNIST(t, 5, gz)

		ds, err := LoadMNIST(dir, TrainSplit, 0, 3)
		require.NoError(t, err)
		assert.Equal(t, 3, ds.Len())
		img, label := ds.At(1)
		assert.Equal(t, tensor.Shape{1, 1, 2, 2}, img.Shape())
		assert.Equal(t, int32(1), label)
		assert.Equal(t, []float32{1, 0, 1, 0}, img.Data())

		resized, err := LoadMNIST(dir, TestSplit, 4, 0)
		require.NoError(t, err)
		assert.Equal(t, 5, resized.Len())
		img, _ = resized.At(0)
		assert.Equal(t, tensor.Shape{1, 1, 4, 4}, img.Shape())
		for _, v := range img.Data() {
			assert.True(t, v >= 0 && v <= 1)
		}
	}

	_, err := LoadMNIST(t.TempDir(), TrainSplit, 64, 0)
	assert.Error(t, err)
}

func TestResizeBilinear(t *testing.T) {
	// A constant image stays constant.
	src := []float32{0.5, 0.5, 0.5, 0.5}
	dst := make([]float32, 16)
	resizeBilinear(src, 2, 2, dst, 4, 4)
	for _, v := range dst {
		assert.InDelta(t, 0.5, v, 1e-6)
	}

	// A horizontal ramp keeps its endpoints and is monotone.
	ramp := []float32{0, 1, 0, 1}
	out := make([]float32, 8)
	resizeBilinear(ramp, 2, 2, out, 2, 4)
	assert.InDelta(t, 0, out[0], 1e-6)
	assert.InDelta(t, 0.25, out[1], 1e-6)
	assert.InDelta(t, 0.75, out[2], 1e-6)
	assert.InDelta(t, 1, out[3], 1e-6)
}

func TestLoaderBatches(t *testing.T) {
	ds, err := Synthetic(10, 8, 10, 1)
	require.NoError(t, err)

	l, err := NewLoader(ds, LoaderConfig{BatchSize: 4})
	require.NoError(t, err)
	assert.Equal(t, 3, l.NumBatches())

	var sizes []int
	var seen []int32
	for b := range l.Batches() {
		sizes = append(sizes, b.Len())
		assert.Equal(t, tensor.CPU, b.Device())
		assert.Equal(t, tensor.Shape{b.Len(), 1, 8, 8}, b.Images.Shape())
		seen = append(seen, b.Labels.Data()...)
	}
	assert.Equal(t, []int{4, 4, 2}, sizes)
	for i, label := range seen {
		_, want := ds.At(i)
		assert.Equal(t, want, label)
	}

	first, ok := First(l)
	require.True(t, ok)
	assert.Equal(t, 4, first.Len())

	_, err = NewLoader(ds, LoaderConfig{})
	assert.Error(t, err)
}

type misshapenDataset struct {
	Dataset
	bad int
}

func (d misshapenDataset) At(i int) (*tensor.Tensor[float32], int32) {
	img, label := d.Dataset.At(i)
	if i == d.bad {
		img, _ = tensor.New[float32](tensor.Shape{1, 1, 2, 2}, tensor.CPU)
	}
	return img, label
}

func TestLoaderCollateError(t *testing.T) {
	ds, err := Synthetic(10, 8, 10, 1)
	require.NoError(t, err)
	l, err := NewLoader(misshapenDataset{Dataset: ds, bad: 5}, LoaderConfig{BatchSize: 4})
	require.NoError(t, err)

	count := 0
	for range l.Batches() {
		count++
	}
	assert.Equal(t, 1, count)
	require.Error(t, l.Err())
	assert.ErrorContains(t, l.Err(), "collate batch at 4")
	assert.Equal(t, l.Err(), Err(l))

	// A clean pass clears the error.
	good, err := NewLoader(ds, LoaderConfig{BatchSize: 4})
	require.NoError(t, err)
	for range good.Batches() {
	}
	assert.NoError(t, Err(good))
	l.ds = ds
	for range l.Batches() {
	}
	assert.NoError(t, l.Err())
}

func TestLoaderShuffle(t *testing.T) {
	ds, err := Synthetic(64, 4, 10, 2)
	require.NoError(t, err)
	l, err := NewLoader(ds, LoaderConfig{BatchSize: 64, Shuffle: true, Seed: 9, Device: tensor.Metal})
	require.NoError(t, err)

	a, ok := First(l)
	require.True(t, ok)
	b, ok := First(l)
	require.True(t, ok)
	assert.Equal(t, tensor.Metal, a.Device())
	assert.NotEqual(t, a.Labels.Data(), b.Labels.Data(), "each pass draws a new permutation")
	assert.ElementsMatch(t, a.Labels.Data(), b.Labels.Data())
}

func TestModule(t *testing.T) {
	dir := writeMNIST(t, 300, false)
	dm, err := NewModule(Config{DataPath: dir, TrainBatchSize: 32, PatchSize: 8}, 1, tensor.CPU)
	require.NoError(t, err)

	assert.Equal(t, 10, dm.Train.NumBatches())
	assert.Equal(t, 5, dm.Val.NumBatches())
	test, ok := First(dm.Test)
	require.True(t, ok)
	assert.Equal(t, TestBatchSize, test.Len())
	assert.Same(t, dm.Val.Dataset(), dm.Test.Dataset())

	synthetic, err := NewModule(Config{Synthetic: true, MaxSamples: 40, PatchSize: 16}, 1, tensor.CPU)
	require.NoError(t, err)
	assert.Equal(t, 40, synthetic.Train.Dataset().Len())
	assert.Equal(t, 10, synthetic.Val.Dataset().Len())
}

func TestInMemory(t *testing.T) {
	_, err := NewInMemory(make([]float32, 7), []int32{0, 1}, 1, 2, 2)
	assert.Error(t, err)

	ds, err := NewInMemory([]float32{1, 1, 1, 1, 2, 2, 2, 2}, []int32{3, 4}, 1, 2, 2)
	require.NoError(t, err)
	sub := ds.Subset(1, 2)
	assert.Equal(t, 1, sub.Len())
	img, label := sub.At(0)
	assert.Equal(t, int32(4), label)
	assert.Equal(t, []float32{2, 2, 2, 2}, img.Data())
	assert.Equal(t, tensor.Image{N: 1, C: 1, H: 2, W: 2}, sub.Geometry())
}
