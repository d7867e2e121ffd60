// Package vae implements VanillaVAE, a fully connected variational
// autoencoder with hand-written backpropagation.
//
// Architecture:
//
//	x [N,C,S,S] -> flatten -> fc -> ReLU -> {fc_mu, fc_var}
//	z = mu + eps * exp(logvar/2)
//	z -> fc -> ReLU -> out -> Sigmoid -> [N,C,S,S]
//
// The encoder and decoder are exposed as submodules so that each can be
// given its own optimizer.
package vae

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/born-ml/vae/internal/model"
	"github.com/born-ml/vae/internal/nn"
	"github.com/born-ml/vae/internal/tensor"
)

// Submodule names.
const (
	Encoder = "encoder"
	Decoder = "decoder"
)

// VanillaVAE is the reference generative model.
type VanillaVAE struct {
	cfg Config
	rng *rand.Rand

	encFC  *nn.Linear
	encMu  *nn.Linear
	encVar *nn.Linear
	decFC  *nn.Linear
	decOut *nn.Linear

	encoder nn.Container
	decoder nn.Container
	modules nn.Container
}

var (
	_ model.Model             = (*VanillaVAE)(nil)
	_ model.SubmoduleProvider = (*VanillaVAE)(nil)
)

// New creates a VanillaVAE with freshly initialized weights on device.
func New(cfg Config, device tensor.Device) (*VanillaVAE, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	//nolint:gosec // Weight init and reparameterization noise are not security-critical
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	m := &VanillaVAE{
		cfg:    cfg,
		rng:    rng,
		encFC:  nn.NewLinear(cfg.pixels(), cfg.HiddenDim, rng, device),
		encMu:  nn.NewLinear(cfg.HiddenDim, cfg.LatentDim, rng, device),
		encVar: nn.NewLinear(cfg.HiddenDim, cfg.LatentDim, rng, device),
		decFC:  nn.NewLinear(cfg.LatentDim, cfg.HiddenDim, rng, device),
		decOut: nn.NewLinear(cfg.HiddenDim, cfg.pixels(), rng, device),
	}
	m.encoder = nn.Container{
		{Name: "fc", Module: m.encFC},
		{Name: "fc_mu", Module: m.encMu},
		{Name: "fc_var", Module: m.encVar},
	}
	m.decoder = nn.Container{
		{Name: "fc", Module: m.decFC},
		{Name: "out", Module: m.decOut},
	}
	m.modules = nn.Container{
		{Name: Encoder, Module: m.encoder},
		{Name: Decoder, Module: m.decoder},
	}
	return m, nil
}

// Config returns the model configuration.
func (m *VanillaVAE) Config() Config { return m.cfg }

// Name returns the configured model name.
func (m *VanillaVAE) Name() string { return m.cfg.Name }

// LatentDim returns the latent space dimensionality.
func (m *VanillaVAE) LatentDim() int { return m.cfg.LatentDim }

// Parameters returns encoder then decoder parameters.
func (m *VanillaVAE) Parameters() []*nn.Parameter { return m.modules.Parameters() }

// StateDict returns parameters keyed as "encoder.fc.weight" and so on.
func (m *VanillaVAE) StateDict() map[string]*tensor.Tensor[float32] { return m.modules.StateDict() }

// LoadStateDict copies parameters from stateDict.
func (m *VanillaVAE) LoadStateDict(stateDict map[string]*tensor.Tensor[float32]) error {
	return m.modules.LoadStateDict(stateDict)
}

// Submodule returns the encoder or decoder.
func (m *VanillaVAE) Submodule(name string) (nn.Module, bool) {
	return m.modules.Child(name)
}

// flatten checks images against the configured geometry and views them as [N, C*S*S].
func (m *VanillaVAE) flatten(images *tensor.Tensor[float32]) (*tensor.Tensor[float32], error) {
	img, err := images.Shape().AsImage()
	if err != nil {
		return nil, err
	}
	if img.C != m.cfg.InChannels || img.H != m.cfg.PatchSize || img.W != m.cfg.PatchSize {
		return nil, fmt.Errorf("vae: input %v, want [N,%d,%d,%d]",
			images.Shape(), m.cfg.InChannels, m.cfg.PatchSize, m.cfg.PatchSize)
	}
	return images.Reshape(img.N, -1)
}

// encode runs the encoder and keeps the hidden activations.
func (m *VanillaVAE) encode(x *tensor.Tensor[float32]) (h, mu, logVar *tensor.Tensor[float32]) {
	h = m.encFC.Forward(x)
	a := nn.ReLU(h)
	return h, m.encMu.Forward(a), m.encVar.Forward(a)
}

// decode runs the decoder and keeps the hidden activations.
func (m *VanillaVAE) decode(z *tensor.Tensor[float32]) (h, out *tensor.Tensor[float32]) {
	h = m.decFC.Forward(z)
	out = nn.Sigmoid(m.decOut.Forward(nn.ReLU(h)))
	return h, out
}

// reparameterize returns z = mu + eps*std. A nil eps is drawn from N(0, I).
// The noise actually used is returned alongside z.
func (m *VanillaVAE) reparameterize(mu, logVar, eps *tensor.Tensor[float32]) (*tensor.Tensor[float32], *tensor.Tensor[float32]) {
	if eps == nil {
		eps = tensor.Randn(mu.Shape(), m.rng, mu.Device())
	}
	z := mu.Clone()
	zd, e, lv := z.Data(), eps.Data(), logVar.Data()
	for i := range zd {
		zd[i] += e[i] * float32(math.Exp(0.5*float64(lv[i])))
	}
	return z, eps
}

func (m *VanillaVAE) toImages(flat *tensor.Tensor[float32]) (*tensor.Tensor[float32], error) {
	return flat.Reshape(-1, m.cfg.InChannels, m.cfg.PatchSize, m.cfg.PatchSize)
}

// Forward encodes, samples and decodes images. The returned Results hold a
// single *Pass consumed by LossFunction. Labels are ignored.
func (m *VanillaVAE) Forward(images *tensor.Tensor[float32], _ *tensor.Tensor[int32]) (model.Results, error) {
	return m.forward(images, nil)
}

func (m *VanillaVAE) forward(images, noise *tensor.Tensor[float32]) (model.Results, error) {
	x, err := m.flatten(images)
	if err != nil {
		return nil, err
	}
	h1, mu, logVar := m.encode(x)
	z, eps := m.reparameterize(mu, logVar, noise)
	h2, out := m.decode(z)
	recons, err := m.toImages(out)
	if err != nil {
		return nil, err
	}

	return model.Results{&Pass{
		Recons: recons,
		Input:  images,
		Mu:     mu,
		LogVar: logVar,
		x:      x,
		h1:     h1,
		z:      z,
		eps:    eps,
		h2:     h2,
		out:    out,
	}}, nil
}

// Encode returns [mu, logvar], each [N, LatentDim].
func (m *VanillaVAE) Encode(images *tensor.Tensor[float32]) ([]*tensor.Tensor[float32], error) {
	x, err := m.flatten(images)
	if err != nil {
		return nil, err
	}
	_, mu, logVar := m.encode(x)
	return []*tensor.Tensor[float32]{mu, logVar}, nil
}

// Decode maps latent points [N, LatentDim] to images [N, C, S, S].
func (m *VanillaVAE) Decode(z *tensor.Tensor[float32]) (*tensor.Tensor[float32], error) {
	if s := z.Shape(); len(s) != 2 || s[1] != m.cfg.LatentDim {
		return nil, fmt.Errorf("vae: latent %v, want [N,%d]", s, m.cfg.LatentDim)
	}
	_, out := m.decode(z)
	return m.toImages(out)
}

// Sample decodes count points drawn from N(0, I). Labels are ignored.
func (m *VanillaVAE) Sample(count int, device tensor.Device, _ *tensor.Tensor[int32]) (*tensor.Tensor[float32], error) {
	if m.cfg.DisableSampling {
		return nil, model.ErrSamplingUnsupported
	}
	if count <= 0 {
		return nil, fmt.Errorf("vae: sample count must be positive, got %d", count)
	}
	z := tensor.Randn(tensor.Shape{count, m.cfg.LatentDim}, m.rng, device)
	return m.Decode(z)
}

// Generate returns the reconstruction of images.
func (m *VanillaVAE) Generate(images *tensor.Tensor[float32], labels *tensor.Tensor[int32]) (*tensor.Tensor[float32], error) {
	res, err := m.Forward(images, labels)
	if err != nil {
		return nil, err
	}
	return res[0].(*Pass).Recons, nil
}
