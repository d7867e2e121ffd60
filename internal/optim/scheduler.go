package optim

// ExponentialLR decays the learning rate of one optimizer by Gamma every epoch.
//
//	lr_epoch = lr_0 * gamma^epoch
type ExponentialLR struct {
	optimizer Optimizer
	gamma     float64
	epoch     int
}

// NewExponentialLR binds an exponential scheduler to optimizer.
func NewExponentialLR(optimizer Optimizer, gamma float64) *ExponentialLR {
	return &ExponentialLR{
		optimizer: optimizer,
		gamma:     gamma,
	}
}

// Step advances one epoch and multiplies the optimizer learning rate by gamma.
func (s *ExponentialLR) Step() {
	s.epoch++
	s.optimizer.SetLR(s.optimizer.GetLR() * s.gamma)
}

// Optimizer returns the optimizer this scheduler drives.
func (s *ExponentialLR) Optimizer() Optimizer {
	return s.optimizer
}

// Gamma returns the multiplicative decay factor.
func (s *ExponentialLR) Gamma() float64 {
	return s.gamma
}

// LastEpoch returns the number of completed Step calls.
func (s *ExponentialLR) LastEpoch() int {
	return s.epoch
}

// GetName returns the scheduler name for logging.
func (s *ExponentialLR) GetName() string {
	return "ExponentialLR"
}
