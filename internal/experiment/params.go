package experiment

import (
	"fmt"
)

// DefaultManualSeed seeds runs whose configuration sets none.
const DefaultManualSeed = 1265

// Params is the exp_params section of an experiment file.
//
// Optional entries are pointers: nil means the key is absent or null, and
// the feature it controls is not requested.
type Params struct {
	KLDWeight   float64 `yaml:"kld_weight"`
	LR          float64 `yaml:"LR"`
	WeightDecay float64 `yaml:"weight_decay"`
	ManualSeed  uint64  `yaml:"manual_seed"`

	Submodel            *string  `yaml:"submodel"`
	LR2                 *float64 `yaml:"LR_2"`
	SchedulerGamma      *float64 `yaml:"scheduler_gamma"`
	SchedulerGamma2     *float64 `yaml:"scheduler_gamma_2"`
	RetainFirstBackpass *bool    `yaml:"retain_first_backpass"`
}

// Ptr returns a pointer to v, for filling optional Params fields.
func Ptr[T any](v T) *T {
	return &v
}

// Validate checks the required entries.
func (p Params) Validate() error {
	if p.LR <= 0 {
		return fmt.Errorf("LR must be positive, got %g", p.LR)
	}
	if p.WeightDecay < 0 {
		return fmt.Errorf("weight_decay must be non-negative, got %g", p.WeightDecay)
	}
	if p.KLDWeight < 0 {
		return fmt.Errorf("kld_weight must be non-negative, got %g", p.KLDWeight)
	}
	return nil
}

// Seed returns ManualSeed, or DefaultManualSeed when unset.
func (p Params) Seed() uint64 {
	if p.ManualSeed == 0 {
		return DefaultManualSeed
	}
	return p.ManualSeed
}

// Map returns the parameters keyed by their configuration names.
// Absent optional entries are omitted.
func (p Params) Map() map[string]any {
	m := map[string]any{
		"kld_weight":   p.KLDWeight,
		"LR":           p.LR,
		"weight_decay": p.WeightDecay,
		"manual_seed":  p.Seed(),
	}
	if p.Submodel != nil {
		m["submodel"] = *p.Submodel
	}
	if p.LR2 != nil {
		m["LR_2"] = *p.LR2
	}
	if p.SchedulerGamma != nil {
		m["scheduler_gamma"] = *p.SchedulerGamma
	}
	if p.SchedulerGamma2 != nil {
		m["scheduler_gamma_2"] = *p.SchedulerGamma2
	}
	if p.RetainFirstBackpass != nil {
		m["retain_first_backpass"] = *p.RetainFirstBackpass
	}
	return m
}
