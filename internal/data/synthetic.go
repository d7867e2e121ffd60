package data

import (
	"math"
	"math/rand/v2"
)

// Synthetic generates n single-channel size x size images of a Gaussian blob
// whose position depends on the label (one of classes). Useful for smoke
// runs without MNIST on disk.
func Synthetic(n, size, classes int, seed uint64) (*InMemory, error) {
	//nolint:gosec // Test data, not security-critical
	rng := rand.New(rand.NewPCG(seed, seed^0x5bd1e995))
	pixels := make([]float32, n*size*size)
	labels := make([]int32, n)

	sigma := float64(size) / 8
	for i := range n {
		label := rng.IntN(classes)
		labels[i] = int32(label)

		// Blob centers sit on a circle, one angle per class.
		angle := 2 * math.Pi * float64(label) / float64(classes)
		cx := float64(size)/2 + float64(size)/4*math.Cos(angle) + rng.NormFloat64()
		cy := float64(size)/2 + float64(size)/4*math.Sin(angle) + rng.NormFloat64()

		img := pixels[i*size*size : (i+1)*size*size]
		for y := range size {
			for x := range size {
				dx, dy := float64(x)-cx, float64(y)-cy
				img[y*size+x] = float32(math.Exp(-(dx*dx + dy*dy) / (2 * sigma * sigma)))
			}
		}
	}
	return NewInMemory(pixels, labels, 1, size, size)
}
