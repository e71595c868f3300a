package cost

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"gradforge/internal/model"
	"gradforge/internal/space"
)

// stubModel is a test double with a fixed prediction matrix, an elementwise
// absolute-difference cost matrix, and a summing reduction. It counts
// forward invocations per variant.
type stubModel struct {
	inputDim  int
	outputDim int
	preds     *mat.Dense
	// fixedCost, when set, is returned (copied) instead of the computed
	// absolute-difference matrix.
	fixedCost *mat.Dense

	forwardCalls int
	dropoutCalls int
	lastDropout  model.DropoutConfig
}

func (s *stubModel) InputSpace() space.Space  { return space.NewVector(s.inputDim) }
func (s *stubModel) OutputSpace() space.Space { return space.NewVector(s.outputDim) }
func (s *stubModel) InputSource() string      { return "features" }
func (s *stubModel) TargetSource() string     { return "targets" }

func (s *stubModel) Forward(x *mat.Dense) (*mat.Dense, error) {
	s.forwardCalls++
	return s.preds, nil
}

func (s *stubModel) ForwardWithDropout(x *mat.Dense, cfg model.DropoutConfig) (*mat.Dense, error) {
	s.dropoutCalls++
	s.lastDropout = cfg
	return s.preds, nil
}

func (s *stubModel) CostMatrix(targets, preds *mat.Dense) (*mat.Dense, error) {
	if s.fixedCost != nil {
		return mat.DenseCopyOf(s.fixedCost), nil
	}
	var cm mat.Dense
	cm.Apply(func(i, j int, v float64) float64 {
		d := v - preds.At(i, j)
		if d < 0 {
			d = -d
		}
		return d
	}, targets)
	return &cm, nil
}

func (s *stubModel) ReduceCostMatrix(cm *mat.Dense) float64 {
	rows, cols := cm.Dims()
	total := 0.0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			total += cm.At(i, j)
		}
	}
	return total
}

func newStub(preds *mat.Dense) *stubModel {
	_, cols := preds.Dims()
	return &stubModel{inputDim: 2, outputDim: cols, preds: preds}
}

func inputsFor(targets *mat.Dense) *mat.Dense {
	rows, _ := targets.Dims()
	return mat.NewDense(rows, 2, nil)
}

func TestMissingTargetScenario(t *testing.T) {
	// Raw cost [[0.5,0.3],[0.7,0.2]] with targets [[1,-1],[-1,2]] masks to
	// [[0.5,0],[0,0.2]]; the summing reduction yields 0.7.
	targets := mat.NewDense(2, 2, []float64{1, -1, -1, 2})
	m := newStub(mat.NewDense(2, 2, nil))
	m.fixedCost = mat.NewDense(2, 2, []float64{0.5, 0.3, 0.7, 0.2})

	c := NewMissingTarget(nil)
	loss, err := c.Loss(m, model.Batch{Inputs: inputsFor(targets), Targets: targets})
	require.NoError(t, err)
	assert.InDelta(t, 0.7, loss, 1e-12)
	assert.Equal(t, 1, m.forwardCalls)
}

func TestMissingTargetNoMissingMatchesSupervised(t *testing.T) {
	targets := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	preds := mat.NewDense(2, 3, []float64{0.5, 2, 3.5, 4, 5.25, 6})
	batch := model.Batch{Inputs: inputsFor(targets), Targets: targets}

	masked, err := NewMissingTarget(nil).Loss(newStub(preds), batch)
	require.NoError(t, err)
	plain, err := NewSupervised().Loss(newStub(preds), batch)
	require.NoError(t, err)
	assert.Equal(t, plain, masked)
}

func TestMissingTargetAllMissing(t *testing.T) {
	targets := mat.NewDense(2, 2, []float64{-1, -1, -1, -1})
	m := newStub(mat.NewDense(2, 2, []float64{3, 1, 4, 1}))

	loss, err := NewMissingTarget(nil).Loss(m, model.Batch{Inputs: inputsFor(targets), Targets: targets})
	require.NoError(t, err)
	assert.Zero(t, loss)
}

func TestMissingTargetMaskIsElementwise(t *testing.T) {
	preds := mat.NewDense(1, 4, nil)
	// Same number of missing entries in different positions: each loss is
	// the sum of the surviving entries only.
	first := mat.NewDense(1, 4, []float64{-1, 2, -1, 4})
	second := mat.NewDense(1, 4, []float64{2, -1, 4, -1})

	lossFirst, err := NewMissingTarget(nil).Loss(newStub(preds), model.Batch{Inputs: inputsFor(first), Targets: first})
	require.NoError(t, err)
	lossSecond, err := NewMissingTarget(nil).Loss(newStub(preds), model.Batch{Inputs: inputsFor(second), Targets: second})
	require.NoError(t, err)

	assert.InDelta(t, 6.0, lossFirst, 1e-12)
	assert.Equal(t, lossFirst, lossSecond)
}

func TestMissingTargetDeterministic(t *testing.T) {
	targets := mat.NewDense(2, 2, []float64{1, -1, 3, 2})
	m := newStub(mat.NewDense(2, 2, []float64{0.5, 9, 2.5, 2}))
	batch := model.Batch{Inputs: inputsFor(targets), Targets: targets}
	c := NewMissingTarget(nil)

	loss1, err := c.Loss(m, batch)
	require.NoError(t, err)
	loss2, err := c.Loss(m, batch)
	require.NoError(t, err)
	assert.Equal(t, loss1, loss2)
}

func TestMissingTargetDropoutRouting(t *testing.T) {
	targets := mat.NewDense(1, 2, []float64{1, 2})
	batch := model.Batch{Inputs: inputsFor(targets), Targets: targets}

	t.Run("without config", func(t *testing.T) {
		m := newStub(mat.NewDense(1, 2, nil))
		_, err := NewMissingTarget(nil).Loss(m, batch)
		require.NoError(t, err)
		assert.Equal(t, 1, m.forwardCalls)
		assert.Equal(t, 0, m.dropoutCalls)
	})

	t.Run("with config", func(t *testing.T) {
		m := newStub(mat.NewDense(1, 2, nil))
		cfg := &model.DropoutConfig{DefaultIncludeProb: 0.5}
		_, err := NewMissingTarget(cfg).Loss(m, batch)
		require.NoError(t, err)
		assert.Equal(t, 0, m.forwardCalls)
		assert.Equal(t, 1, m.dropoutCalls)
		assert.Equal(t, 0.5, m.lastDropout.DefaultIncludeProb)
	})
}

func TestMissingTargetSpecMismatchBeforeForward(t *testing.T) {
	m := newStub(mat.NewDense(2, 2, nil))
	// Targets one column too wide for the declared output space.
	batch := model.Batch{
		Inputs:  mat.NewDense(2, 2, nil),
		Targets: mat.NewDense(2, 3, nil),
	}

	_, err := NewMissingTarget(nil).Loss(m, batch)
	require.Error(t, err)
	var mismatch *space.MismatchError
	assert.True(t, errors.As(err, &mismatch))
	assert.Equal(t, 0, m.forwardCalls)
	assert.Equal(t, 0, m.dropoutCalls)
}

func TestDataSpecs(t *testing.T) {
	m := newStub(mat.NewDense(1, 3, nil))
	spec, sources := DataSpecs(m)

	require.Len(t, spec.Components(), 2)
	assert.Equal(t, 2, spec.Components()[0].Dim())
	assert.Equal(t, 3, spec.Components()[1].Dim())
	assert.Equal(t, Sources{Input: "features", Target: "targets"}, sources)
}
