package nn_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vae/internal/nn"
	"github.com/born-ml/vae/internal/tensor"
)

func newRNG() *rand.Rand {
	return rand.New(rand.NewPCG(7, 11))
}

func TestLinearForward(t *testing.T) {
	l := nn.NewLinear(2, 3, newRNG(), tensor.CPU)
	copy(l.StateDict()["weight"].Data(), []float32{
		1, 0,
		0, 1,
		1, 1,
	})
	copy(l.StateDict()["bias"].Data(), []float32{0.5, -0.5, 0})

	x, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, tensor.CPU)
	require.NoError(t, err)

	y := l.Forward(x)
	assert.Equal(t, tensor.Shape{2, 3}, y.Shape())
	assert.InDeltaSlice(t, []float32{1.5, 1.5, 3, 3.5, 3.5, 7}, y.Data(), 1e-6)
}

func TestLinearForwardPanicsOnWidth(t *testing.T) {
	l := nn.NewLinear(4, 2, newRNG(), tensor.CPU)
	x := tensor.Zeros[float32](tensor.Shape{1, 3}, tensor.CPU)
	assert.Panics(t, func() { l.Forward(x) })
}

// sumOutput is the scalar objective used for the gradient checks: L = sum(y).
func sumOutput(l *nn.Linear, x *tensor.Tensor[float32]) float64 {
	var s float64
	for _, v := range l.Forward(x).Data() {
		s += float64(v)
	}
	return s
}

func TestLinearBackwardMatchesFiniteDifferences(t *testing.T) {
	rng := newRNG()
	l := nn.NewLinear(3, 2, rng, tensor.CPU)
	x := tensor.Randn(tensor.Shape{4, 3}, rng, tensor.CPU)

	ones := tensor.Full[float32](tensor.Shape{4, 2}, 1, tensor.CPU)
	dx := l.Backward(x, ones)

	const eps = 1e-2
	weight := l.StateDict()["weight"].Data()
	grad := l.Parameters()[0].Grad()
	require.Len(t, grad, len(weight))
	for i := range weight {
		orig := weight[i]
		weight[i] = orig + eps
		up := sumOutput(l, x)
		weight[i] = orig - eps
		down := sumOutput(l, x)
		weight[i] = orig
		assert.InDelta(t, (up-down)/(2*eps), grad[i], 1e-2, "weight %d", i)
	}

	assert.InDeltaSlice(t, []float32{4, 4}, l.Parameters()[1].Grad(), 1e-6)

	// dL/dx[i,k] = sum_j W[j,k]
	for i := 0; i < 4; i++ {
		for k := 0; k < 3; k++ {
			want := weight[k] + weight[3+k]
			assert.InDelta(t, want, dx.Data()[i*3+k], 1e-5)
		}
	}
}

func TestParameterGradAccumulates(t *testing.T) {
	p := nn.NewParameter("w", tensor.Zeros[float32](tensor.Shape{2}, tensor.CPU))
	assert.Nil(t, p.Grad())
	p.AccumulateGrad([]float32{1, 2})
	p.AccumulateGrad([]float32{1, 2})
	assert.Equal(t, []float32{2, 4}, p.Grad())
	p.ZeroGrad()
	assert.Nil(t, p.Grad())
	assert.Panics(t, func() { p.AccumulateGrad([]float32{1}) })
}

func TestContainerStateDict(t *testing.T) {
	rng := newRNG()
	c := nn.Container{
		{Name: "encoder", Module: nn.NewLinear(4, 2, rng, tensor.CPU)},
		{Name: "decoder", Module: nn.NewLinear(2, 4, rng, tensor.CPU)},
	}
	assert.Len(t, c.Parameters(), 4)

	sd := c.StateDict()
	assert.Contains(t, sd, "encoder.weight")
	assert.Contains(t, sd, "decoder.bias")

	other := nn.Container{
		{Name: "encoder", Module: nn.NewLinear(4, 2, rng, tensor.CPU)},
		{Name: "decoder", Module: nn.NewLinear(2, 4, rng, tensor.CPU)},
	}
	require.NoError(t, other.LoadStateDict(sd))
	assert.Equal(t, sd["encoder.weight"].Data(), other.StateDict()["encoder.weight"].Data())

	delete(sd, "decoder.bias")
	assert.Error(t, other.LoadStateDict(sd))

	enc, ok := c.Child("encoder")
	require.True(t, ok)
	assert.Len(t, enc.Parameters(), 2)
	_, ok = c.Child("discriminator")
	assert.False(t, ok)
}

func TestActivations(t *testing.T) {
	x, err := tensor.FromSlice([]float32{-1, 0, 2}, tensor.Shape{3}, tensor.CPU)
	require.NoError(t, err)

	assert.Equal(t, []float32{0, 0, 2}, nn.ReLU(x).Data())
	g := tensor.Full[float32](tensor.Shape{3}, 1, tensor.CPU)
	assert.Equal(t, []float32{0, 0, 1}, nn.ReLUBackward(x, g).Data())

	s := nn.Sigmoid(x)
	assert.InDelta(t, 0.5, s.Data()[1], 1e-6)
	assert.InDelta(t, 0.25, nn.SigmoidBackward(s, g).Data()[1], 1e-6)
}
