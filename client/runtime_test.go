package client_test

import (
	"math"
	"testing"

	"github.com/luxfi/ruth/client"
	"github.com/luxfi/ruth/pkg/errs"
	"github.com/luxfi/ruth/pkg/oracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linearModel is a tiny stateless quadratic loss: L(theta) = sum((theta_i -
// target_i)^2). It never mutates any persistent state, satisfying the
// stateless-perturbation contract trivially since it has no state at all.
type linearModel struct {
	theta  []float32
	target []float32
}

func newLinearModel(d int) *linearModel {
	theta := make([]float32, d)
	target := make([]float32, d)
	for i := range target {
		target[i] = 1.0
	}
	return &linearModel{theta: theta, target: target}
}

func (m *linearModel) ParamCount() int { return len(m.theta) }

func (m *linearModel) Loss(_ client.Batch) (float32, error) {
	return m.lossAt(m.theta), nil
}

func (m *linearModel) PerturbedLoss(alpha float32, v []float32, _ client.Batch) (float32, error) {
	perturbed := make([]float32, len(m.theta))
	for i := range perturbed {
		perturbed[i] = m.theta[i] + alpha*v[i]
	}
	return m.lossAt(perturbed), nil
}

func (m *linearModel) lossAt(theta []float32) float32 {
	var sum float32
	for i, t := range theta {
		d := t - m.target[i]
		sum += d * d
	}
	return sum
}

type failingModel struct{ *linearModel }

func (m *failingModel) PerturbedLoss(alpha float32, v []float32, b client.Batch) (float32, error) {
	return float32(math.NaN()), nil
}

func TestStepEmitsClippedScalar(t *testing.T) {
	model := newLinearModel(50)
	cursor, err := oracle.NewCursor([]uint64{1, 2, 3})
	require.NoError(t, err)

	rt, err := client.NewRuntime(model, cursor, client.ConstantEpsilon(0.1), 0.9, 0.01, nil)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		res, err := rt.Step(client.Batch{})
		require.NoError(t, err)
		assert.LessOrEqual(t, float64(absF(res.Scalar)), float64(0.01)+1e-6)
	}
}

func TestStepAdvancesCursorEvenOnFailure(t *testing.T) {
	model := &failingModel{newLinearModel(10)}
	cursor, err := oracle.NewCursor([]uint64{1, 2, 3})
	require.NoError(t, err)
	rt, err := client.NewRuntime(model, cursor, client.ConstantEpsilon(0.1), 0.9, 1.0, nil)
	require.NoError(t, err)

	_, err = rt.Step(client.Batch{})
	require.Error(t, err)
	assert.EqualValues(t, 1, cursor.Epoch())
}

func TestNewRuntimeRejectsZeroParamModel(t *testing.T) {
	model := newLinearModel(0)
	cursor, err := oracle.NewCursor([]uint64{1})
	require.NoError(t, err)
	_, err = client.NewRuntime(model, cursor, client.ConstantEpsilon(0.1), 0.9, 1.0, nil)
	require.Error(t, err)
	asErr, ok := err.(*errs.Error)
	require.True(t, ok)
	assert.Equal(t, errs.ConfigError, asErr.Kind)
}

func absF(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
