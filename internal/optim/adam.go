package optim

import (
	"math"

	"github.com/born-ml/vae/internal/nn"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	g_t   = grad + weight_decay * param                // L2 penalty
//	m_t   = beta1 * m_{t-1} + (1-beta1) * g_t          // First moment
//	v_t   = beta2 * v_{t-1} + (1-beta2) * g_t²         // Second moment
//	m_hat = m_t / (1 - beta1^t)                        // Bias correction
//	v_hat = v_t / (1 - beta2^t)                        // Bias correction
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam struct {
	params      []*nn.Parameter
	lr          float64
	beta1       float64
	beta2       float64
	eps         float64
	weightDecay float64
	t           int                         // Timestep for bias correction
	m           map[*nn.Parameter][]float32 // First moment estimates
	v           map[*nn.Parameter][]float32 // Second moment estimates
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR          float64    // Learning rate (default: 0.001)
	Betas       [2]float64 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps         float64    // Term for numerical stability (default: 1e-8)
	WeightDecay float64    // L2 penalty added to the gradient (default: 0)
}

// NewAdam creates a new Adam optimizer over params.
//
// Zero-valued hyperparameters take the defaults listed on AdamConfig.
func NewAdam(params []*nn.Parameter, config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	return &Adam{
		params:      params,
		lr:          config.LR,
		beta1:       config.Betas[0],
		beta2:       config.Betas[1],
		eps:         config.Eps,
		weightDecay: config.WeightDecay,
		m:           make(map[*nn.Parameter][]float32),
		v:           make(map[*nn.Parameter][]float32),
	}
}

// Step performs a single optimization step.
//
// Parameters with no gradient are skipped.
func (a *Adam) Step() {
	a.t++

	biasCorrection1 := 1.0 - math.Pow(a.beta1, float64(a.t))
	biasCorrection2 := 1.0 - math.Pow(a.beta2, float64(a.t))

	for _, param := range a.params {
		grad := param.Grad()
		if grad == nil {
			// Parameter didn't participate in the backward pass.
			continue
		}

		m, ok := a.m[param]
		if !ok {
			m = make([]float32, len(grad))
			a.m[param] = m
		}
		v, ok := a.v[param]
		if !ok {
			v = make([]float32, len(grad))
			a.v[param] = v
		}

		data := param.Tensor().Data()
		for i := range data {
			g := float64(grad[i]) + a.weightDecay*float64(data[i])

			mi := a.beta1*float64(m[i]) + (1-a.beta1)*g
			vi := a.beta2*float64(v[i]) + (1-a.beta2)*g*g
			m[i], v[i] = float32(mi), float32(vi)

			mHat := mi / biasCorrection1
			vHat := vi / biasCorrection2
			data[i] -= float32(a.lr * mHat / (math.Sqrt(vHat) + a.eps))
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam) ZeroGrad() {
	for _, param := range a.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (a *Adam) GetLR() float64 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *Adam) SetLR(lr float64) {
	a.lr = lr
}

// WeightDecay returns the L2 penalty coefficient.
func (a *Adam) WeightDecay() float64 {
	return a.weightDecay
}

// Params returns the parameters this optimizer updates.
func (a *Adam) Params() []*nn.Parameter {
	return a.params
}

// GetTimestep returns the current timestep.
func (a *Adam) GetTimestep() int {
	return a.t
}
