package experiment

import (
	"k8s.io/klog/v2"

	"github.com/born-ml/vae/internal/model"
	"github.com/born-ml/vae/internal/optim"
)

// OptimizerConfig is the result of ConfigureOptimizers. Schedulers is nil
// when no scheduler was requested; Schedulers[i] drives Optimizers[i].
type OptimizerConfig struct {
	Optimizers []optim.Optimizer
	Schedulers []*optim.ExponentialLR
}

// ConfigureOptimizers builds the optimizer and scheduler sets.
//
//   - Optimizers[0] is Adam over every model parameter with LR and weight_decay.
//   - Optimizers[1] is Adam over the submodel's parameters with LR_2 and no
//     weight decay, when both LR_2 and submodel are set and the model has
//     that submodule.
//   - Schedulers[0] decays Optimizers[0] by scheduler_gamma. Schedulers[1]
//     decays Optimizers[1] by scheduler_gamma_2 when both exist.
//
// A missing optional entry disables its feature; it is never an error.
func (e *Experiment) ConfigureOptimizers() (OptimizerConfig, error) {
	p := e.params
	if err := p.Validate(); err != nil {
		return OptimizerConfig{}, err
	}

	var cfg OptimizerConfig
	cfg.Optimizers = append(cfg.Optimizers, optim.NewAdam(e.model.Parameters(), optim.AdamConfig{
		LR:          p.LR,
		WeightDecay: p.WeightDecay,
	}))

	if second := e.submodelOptimizer(); second != nil {
		cfg.Optimizers = append(cfg.Optimizers, second)
	}

	if p.SchedulerGamma != nil {
		cfg.Schedulers = append(cfg.Schedulers, optim.NewExponentialLR(cfg.Optimizers[0], *p.SchedulerGamma))

		switch {
		case p.SchedulerGamma2 == nil:
		case len(cfg.Optimizers) < 2:
			klog.V(1).InfoS("scheduler_gamma_2 set without a second optimizer, skipping")
		default:
			cfg.Schedulers = append(cfg.Schedulers, optim.NewExponentialLR(cfg.Optimizers[1], *p.SchedulerGamma2))
		}
	}

	e.mode = SingleOptimizer
	if len(cfg.Optimizers) == 2 {
		e.mode = Adversarial
	}
	klog.V(1).InfoS("Configured optimizers",
		"optimizers", len(cfg.Optimizers), "schedulers", len(cfg.Schedulers), "mode", e.mode)
	return cfg, nil
}

// submodelOptimizer returns the second optimizer, or nil if not requested
// or the submodel cannot be found.
func (e *Experiment) submodelOptimizer() optim.Optimizer {
	p := e.params
	if p.LR2 == nil || p.Submodel == nil {
		return nil
	}

	provider, ok := e.model.(model.SubmoduleProvider)
	if !ok {
		klog.InfoS("Model exposes no submodules, skipping second optimizer",
			"model", e.model.Name(), "submodel", *p.Submodel)
		return nil
	}
	sub, ok := provider.Submodule(*p.Submodel)
	if !ok {
		klog.InfoS("Unknown submodel, skipping second optimizer",
			"model", e.model.Name(), "submodel", *p.Submodel)
		return nil
	}
	return optim.NewAdam(sub.Parameters(), optim.AdamConfig{LR: *p.LR2})
}
