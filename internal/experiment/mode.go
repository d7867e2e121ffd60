package experiment

// TrainingMode selects the per-batch optimizer schedule.
type TrainingMode int

const (
	// SingleOptimizer runs one backward pass and one update per batch.
	SingleOptimizer TrainingMode = iota

	// Adversarial alternates two optimizers per batch: the whole model,
	// then the named submodel.
	Adversarial
)

// String returns the mode name.
func (m TrainingMode) String() string {
	switch m {
	case SingleOptimizer:
		return "single-optimizer"
	case Adversarial:
		return "adversarial"
	default:
		return "unknown"
	}
}
