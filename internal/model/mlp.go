package model

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"gradforge/internal/space"
)

// MissingLabel marks a target entry with no supervision available.
const MissingLabel = -1

// SimpleMLP is a small regression network: one tanh hidden layer and a
// linear output layer, trained with SGD on an elementwise squared error.
type SimpleMLP struct {
	inputDim  int
	hiddenDim int
	outputDim int
	lr        float64

	w1 *mat.Dense // hiddenDim x inputDim
	b1 []float64
	w2 *mat.Dense // outputDim x hiddenDim
	b2 []float64

	rng *rand.Rand
}

// NewSimpleMLP constructs the model with random initialization.
func NewSimpleMLP(inputDim, hiddenDim, outputDim int, lr float64, seed int64) *SimpleMLP {
	if inputDim <= 0 {
		inputDim = 16
	}
	if hiddenDim <= 0 {
		hiddenDim = 32
	}
	if outputDim <= 0 {
		outputDim = 1
	}
	if lr <= 0 {
		lr = 0.01
	}
	rng := rand.New(rand.NewSource(seed))
	return &SimpleMLP{
		inputDim:  inputDim,
		hiddenDim: hiddenDim,
		outputDim: outputDim,
		lr:        lr,
		w1:        randomDense(hiddenDim, inputDim, rng),
		b1:        make([]float64, hiddenDim),
		w2:        randomDense(outputDim, hiddenDim, rng),
		b2:        make([]float64, outputDim),
		rng:       rng,
	}
}

func randomDense(rows, cols int, rng *rand.Rand) *mat.Dense {
	data := make([]float64, rows*cols)
	scale := 1 / math.Sqrt(float64(cols))
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * scale
	}
	return mat.NewDense(rows, cols, data)
}

func (m *SimpleMLP) InputSpace() space.Space  { return space.NewVector(m.inputDim) }
func (m *SimpleMLP) OutputSpace() space.Space { return space.NewVector(m.outputDim) }
func (m *SimpleMLP) InputSource() string      { return "features" }
func (m *SimpleMLP) TargetSource() string     { return "targets" }

// Forward runs the deterministic forward pass.
func (m *SimpleMLP) Forward(x *mat.Dense) (*mat.Dense, error) {
	if err := m.InputSpace().Validate(x); err != nil {
		return nil, err
	}
	return m.output(m.hidden(x)), nil
}

// ForwardWithDropout runs the forward pass with dropout applied to the
// input and hidden layer activations per cfg. Randomness comes from the
// model's own seeded source.
func (m *SimpleMLP) ForwardWithDropout(x *mat.Dense, cfg DropoutConfig) (*mat.Dense, error) {
	if err := m.InputSpace().Validate(x); err != nil {
		return nil, err
	}
	rows, _ := x.Dims()
	x = applyMask(x, m.dropoutMask(rows, m.inputDim, "input", cfg))
	h := m.hidden(x)
	h = applyMask(h, m.dropoutMask(rows, m.hiddenDim, "hidden", cfg))
	return m.output(h), nil
}

func (m *SimpleMLP) hidden(x *mat.Dense) *mat.Dense {
	var h mat.Dense
	h.Mul(x, m.w1.T())
	h.Apply(func(_, j int, v float64) float64 { return math.Tanh(v + m.b1[j]) }, &h)
	return &h
}

func (m *SimpleMLP) output(h *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Mul(h, m.w2.T())
	out.Apply(func(_, j int, v float64) float64 { return v + m.b2[j] }, &out)
	return &out
}

// dropoutMask draws a multiplier matrix for one layer: each entry is zero
// (unit dropped) or the layer's scale (unit kept). A nil mask means the
// layer is left untouched.
func (m *SimpleMLP) dropoutMask(rows, cols int, layer string, cfg DropoutConfig) *mat.Dense {
	p := cfg.includeProb(layer)
	if p <= 0 || p >= 1 {
		return nil
	}
	scale := cfg.scale(layer)
	data := make([]float64, rows*cols)
	for i := range data {
		if m.rng.Float64() < p {
			data[i] = scale
		}
	}
	return mat.NewDense(rows, cols, data)
}

func applyMask(x, mask *mat.Dense) *mat.Dense {
	if mask == nil {
		return x
	}
	var out mat.Dense
	out.MulElem(x, mask)
	return &out
}

// CostMatrix returns the elementwise squared error between targets and
// predictions. Both tensors must share the targets' shape.
func (m *SimpleMLP) CostMatrix(targets, preds *mat.Dense) (*mat.Dense, error) {
	tr, tc := targets.Dims()
	pr, pc := preds.Dims()
	if tr != pr || tc != pc {
		return nil, errors.Errorf("model: cost matrix shape mismatch: targets %dx%d, predictions %dx%d",
			tr, tc, pr, pc)
	}
	var cm mat.Dense
	cm.Apply(func(i, j int, v float64) float64 {
		d := v - preds.At(i, j)
		return d * d
	}, targets)
	return &cm, nil
}

// ReduceCostMatrix sums each example's per-unit costs and averages over the
// batch.
func (m *SimpleMLP) ReduceCostMatrix(cm *mat.Dense) float64 {
	rows, cols := cm.Dims()
	if rows == 0 {
		return 0
	}
	total := 0.0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			total += cm.At(i, j)
		}
	}
	return total / float64(rows)
}

// TrainStep executes one SGD step on the batch and returns the loss.
// Entries whose target equals MissingLabel contribute neither loss nor
// gradient. A non-nil dropout config makes the step stochastic: layer
// inputs are dropped and rescaled per cfg, and the gradients flow through
// the same masks.
func (m *SimpleMLP) TrainStep(batch Batch, dropout *DropoutConfig) (float64, error) {
	if err := m.InputSpace().Validate(batch.Inputs); err != nil {
		return 0, err
	}
	if err := m.OutputSpace().Validate(batch.Targets); err != nil {
		return 0, err
	}
	n, _ := batch.Inputs.Dims()
	tn, _ := batch.Targets.Dims()
	if n != tn {
		return 0, errors.Errorf("model: batch has %d inputs but %d targets", n, tn)
	}
	if n == 0 {
		return 0, nil
	}

	x := batch.Inputs
	var inMask, hidMask *mat.Dense
	if dropout != nil {
		inMask = m.dropoutMask(n, m.inputDim, "input", *dropout)
		hidMask = m.dropoutMask(n, m.hiddenDim, "hidden", *dropout)
		x = applyMask(x, inMask)
	}
	h := m.hidden(x)
	hEff := applyMask(h, hidMask)
	out := m.output(hEff)

	// dL/dout with missing targets vetoed; loss accumulated in the same pass.
	loss := 0.0
	var dOut mat.Dense
	dOut.Apply(func(i, j int, v float64) float64 {
		y := batch.Targets.At(i, j)
		if y == MissingLabel {
			return 0
		}
		d := v - y
		loss += d * d
		return 2 * d / float64(n)
	}, out)

	// Output layer gradients.
	var gw2 mat.Dense
	gw2.Mul(dOut.T(), hEff) // outputDim x hiddenDim
	gb2 := columnSums(&dOut)

	// Backprop through the hidden dropout mask and tanh.
	var dH mat.Dense
	dH.Mul(&dOut, m.w2) // n x hiddenDim
	if hidMask != nil {
		dH.MulElem(&dH, hidMask)
	}
	dH.Apply(func(i, j int, v float64) float64 {
		a := h.At(i, j)
		return v * (1 - a*a)
	}, &dH)

	var gw1 mat.Dense
	gw1.Mul(dH.T(), x) // hiddenDim x inputDim
	gb1 := columnSums(&dH)

	applySGD(m.w2, &gw2, m.lr)
	applySGD(m.w1, &gw1, m.lr)
	for j := range m.b2 {
		m.b2[j] -= m.lr * gb2[j]
	}
	for j := range m.b1 {
		m.b1[j] -= m.lr * gb1[j]
	}

	return loss / float64(n), nil
}

func columnSums(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	sums := make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			sums[j] += m.At(i, j)
		}
	}
	return sums
}

func applySGD(w, grad *mat.Dense, lr float64) {
	var scaled mat.Dense
	scaled.Scale(lr, grad)
	w.Sub(w, &scaled)
}
