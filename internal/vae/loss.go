package vae

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/vae/internal/model"
	"github.com/born-ml/vae/internal/nn"
	"github.com/born-ml/vae/internal/tensor"
)

// Loss result keys.
const (
	KeyReconstruction = "Reconstruction_Loss"
	KeyKLD            = "KLD"
)

// ErrGraphReleased is returned by a second Backward after the graph was freed.
var ErrGraphReleased = errors.New("vae: backward through a released graph")

// Pass is the output of one Forward call. Recons, Input, Mu and LogVar are
// public; the remaining fields are the activations needed by Backward.
type Pass struct {
	Recons *tensor.Tensor[float32] // [N,C,S,S]
	Input  *tensor.Tensor[float32] // [N,C,S,S]
	Mu     *tensor.Tensor[float32] // [N,D]
	LogVar *tensor.Tensor[float32] // [N,D]

	x        *tensor.Tensor[float32] // flattened input
	h1       *tensor.Tensor[float32] // encoder pre-activation
	z        *tensor.Tensor[float32]
	eps      *tensor.Tensor[float32]
	h2       *tensor.Tensor[float32] // decoder pre-activation
	out      *tensor.Tensor[float32] // sigmoid output, flat
	released bool
}

// LossFunction computes
//
//	Reconstruction_Loss = mean((recons - input)²)
//	KLD                 = mean_n(-½ Σ_d (1 + logvar - mu² - exp(logvar)))
//	loss                = Reconstruction_Loss + KLDWeight * KLD
//
// Only "loss" is differentiable.
func (m *VanillaVAE) LossFunction(results model.Results, args model.LossArgs) (model.LossResult, error) {
	if len(results) != 1 {
		return nil, fmt.Errorf("vae: loss expects 1 result, got %d", len(results))
	}
	pass, ok := results[0].(*Pass)
	if !ok {
		return nil, fmt.Errorf("vae: loss expects *vae.Pass, got %T", results[0])
	}

	var recons float64
	r, in := pass.Recons.Data(), pass.Input.Data()
	for i := range r {
		d := float64(r[i] - in[i])
		recons += d * d
	}
	recons /= float64(len(r))

	var kld float64
	mu, lv := pass.Mu.Data(), pass.LogVar.Data()
	for i := range mu {
		l := float64(lv[i])
		kld += -0.5 * (1 + l - float64(mu[i])*float64(mu[i]) - math.Exp(l))
	}
	kld /= float64(pass.Mu.Shape()[0])

	node := &lossNode{
		model:     m,
		pass:      pass,
		kldWeight: args.KLDWeight,
		value:     recons + args.KLDWeight*kld,
	}
	return model.LossResult{
		model.LossKey:     node,
		KeyReconstruction: model.Value(recons),
		KeyKLD:            model.Value(kld),
	}, nil
}

// lossNode is the differentiable total loss of one Pass.
type lossNode struct {
	model     *VanillaVAE
	pass      *Pass
	kldWeight float64
	value     float64
}

func (l *lossNode) Item() float64 { return l.value }

// Backward accumulates d(loss)/d(param) into every parameter.
func (l *lossNode) Backward(retainGraph bool) error {
	p := l.pass
	if p.released {
		return ErrGraphReleased
	}
	m := l.model

	n := p.Mu.Shape()[0]
	numel := float32(len(p.out.Data()))

	// d/d out of the MSE term, through the sigmoid.
	dOut := tensor.Zeros[float32](p.out.Shape(), p.out.Device())
	g, y, x := dOut.Data(), p.out.Data(), p.x.Data()
	for i := range g {
		g[i] = 2 * (y[i] - x[i]) / numel
	}
	dOut = nn.SigmoidBackward(p.out, dOut)

	// Decoder.
	a2 := nn.ReLU(p.h2)
	dA2 := m.decOut.Backward(a2, dOut)
	dZ := m.decFC.Backward(p.z, nn.ReLUBackward(p.h2, dA2))

	// Reparameterization and KL term.
	w := float32(l.kldWeight) / float32(n)
	dMu := dZ.Clone()
	dLogVar := tensor.Zeros[float32](p.LogVar.Shape(), p.LogVar.Device())
	mu, lv, eps := p.Mu.Data(), p.LogVar.Data(), p.eps.Data()
	dm, dl, dz := dMu.Data(), dLogVar.Data(), dZ.Data()
	for i := range dm {
		std := float32(math.Exp(0.5 * float64(lv[i])))
		dm[i] += w * mu[i]
		dl[i] = dz[i]*eps[i]*0.5*std + w*0.5*(std*std-1)
	}

	// Encoder.
	a1 := nn.ReLU(p.h1)
	dA1 := m.encMu.Backward(a1, dMu)
	dA1v := m.encVar.Backward(a1, dLogVar)
	da, dv := dA1.Data(), dA1v.Data()
	for i := range da {
		da[i] += dv[i]
	}
	m.encFC.Backward(p.x, nn.ReLUBackward(p.h1, dA1))

	if !retainGraph {
		p.released = true
		p.x, p.h1, p.z, p.eps, p.h2, p.out = nil, nil, nil, nil, nil, nil
	}
	return nil
}
