package client

import (
	"math"

	"github.com/luxfi/ruth/pkg/errs"
	"github.com/luxfi/ruth/pkg/oracle"
	"github.com/luxfi/ruth/pkg/pool"
)

// EpsilonSchedule maps the current step count to the perturbation
// magnitude ε used by that step.
type EpsilonSchedule func(step uint64) float32

// ConstantEpsilon returns an EpsilonSchedule that never changes.
func ConstantEpsilon(eps float32) EpsilonSchedule {
	return func(uint64) float32 { return eps }
}

// State is the per-device runtime state that survives across rounds:
// step count, EMA baseline of raw ρ, and the clip configuration.
type State struct {
	StepCount uint64
	Baseline  float32
	Beta      float32 // EMA momentum, in (0, 1)
	MaxNorm   float32 // clip magnitude
}

// StepResult is what a training step emits for signing and upload.
type StepResult struct {
	SeedID  uint64
	Scalar  float32 // clipped, baseline-subtracted ρ
	Loss    float32 // unperturbed L(θ), for client-side logging
	RawRho  float32 // ρ before baseline subtraction and clipping
	Epsilon float32
}

// Runtime drives the antithetic-sampling training step against a Model.
type Runtime struct {
	model    Model
	cursor   *oracle.Cursor
	schedule EpsilonSchedule
	pool     *pool.Pool
	state    State
}

// NewRuntime builds a Runtime. beta and maxNorm seed the initial State;
// pl may be nil (no CPU offload for noise generation).
func NewRuntime(model Model, cursor *oracle.Cursor, schedule EpsilonSchedule, beta, maxNorm float32, pl *pool.Pool) (*Runtime, error) {
	if model.ParamCount() <= 0 {
		return nil, errs.New(errs.ConfigError, "client.NewRuntime", errMsg("model has zero trainable parameters"))
	}
	if beta <= 0 || beta >= 1 {
		return nil, errs.New(errs.ConfigError, "client.NewRuntime", errMsg("beta must be in (0, 1)"))
	}
	return &Runtime{
		model:    model,
		cursor:   cursor,
		schedule: schedule,
		pool:     pl,
		state:    State{Beta: beta, MaxNorm: maxNorm},
	}, nil
}

// State returns a copy of the current runtime state, for persistence
// between rounds.
func (r *Runtime) State() State { return r.state }

// Restore replaces the runtime state, e.g. after reloading a device's
// persisted ClientRuntimeState.
func (r *Runtime) Restore(s State) { r.state = s }

// Step performs one antithetic-sampling optimization step against batch.
// On any local failure the step is simply not emitted: the caller gets an
// error and nothing to upload. The seed cursor has already advanced by the
// time an error can be detected, and is not rolled back (spec OQ-5).
func (r *Runtime) Step(batch Batch) (*StepResult, error) {
	seedID := r.cursor.Next()

	v, err := oracle.NoiseWithPool(r.pool, seedID, r.model.ParamCount())
	if err != nil {
		return nil, err
	}

	epsilon := r.schedule(r.state.StepCount)
	if epsilon == 0 || !isFinite(epsilon) {
		return nil, errs.New(errs.NumericError, "client.Step", errMsg("epsilon must be finite and non-zero"))
	}

	loss0, err := r.model.Loss(batch)
	if err != nil {
		return nil, errs.New(errs.NumericError, "client.Step", err)
	}

	lossPlus, err := r.model.PerturbedLoss(epsilon, v, batch)
	if err != nil {
		return nil, errs.New(errs.NumericError, "client.Step", err)
	}
	lossMinus, err := r.model.PerturbedLoss(-epsilon, v, batch)
	if err != nil {
		return nil, errs.New(errs.NumericError, "client.Step", err)
	}
	if !isFinite(lossPlus) || !isFinite(lossMinus) {
		return nil, errs.New(errs.NumericError, "client.Step", errMsg("non-finite loss"))
	}

	rho := (lossPlus - lossMinus) / (2 * epsilon)

	r.state.Baseline = r.state.Beta*r.state.Baseline + (1-r.state.Beta)*rho
	scalar := rho - r.state.Baseline

	if abs32(scalar) > r.state.MaxNorm {
		scalar = float32(math.Copysign(float64(r.state.MaxNorm), float64(scalar)))
	}

	r.state.StepCount++

	return &StepResult{
		SeedID:  seedID,
		Scalar:  scalar,
		Loss:    loss0,
		RawRho:  rho,
		Epsilon: epsilon,
	}, nil
}

func isFinite(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

type errString string

func (e errString) Error() string { return string(e) }

func errMsg(msg string) error { return errString(msg) }
