// Package client implements the on-device training step: the antithetic
// directional-derivative estimator with EMA baseline and magnitude clip
// (spec.md §4.2).
package client

// Batch is an opaque handle to a local training batch; its contents never
// leave the device.
type Batch struct {
	X interface{}
	Y interface{}
}

// Model is the opaque, pure loss function the client trains against. The
// underlying adapter (LoRA) parameters are never mutated by these calls:
// PerturbedLoss must compute L(θ+αv) statelessly and leave θ exactly as it
// was on return, whether that's implemented via a functional parameter
// substitution, a copy, or an apply-then-revert.
type Model interface {
	// ParamCount returns d, the sum of trainable-parameter element counts
	// in the model's fixed canonical order.
	ParamCount() int

	// Loss returns L(θ) for the given batch, unperturbed.
	Loss(batch Batch) (float32, error)

	// PerturbedLoss returns L(θ+αv) for the given batch. v has length
	// ParamCount(). The call MUST NOT have any observable effect on θ.
	PerturbedLoss(alpha float32, v []float32, batch Batch) (float32, error)
}
