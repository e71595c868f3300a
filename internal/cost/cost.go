// Package cost defines supervised training costs over the model capability
// contract. A cost validates a batch against the model's declared data
// specification, runs the forward pass, and reduces a per-element cost
// matrix to a scalar loss.
package cost

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"gradforge/internal/model"
	"gradforge/internal/space"
)

// Sources labels the batch components a cost consumes, in the order the
// composite space declares them.
type Sources struct {
	Input  string
	Target string
}

// Cost computes a scalar training loss for a model on one batch.
type Cost interface {
	Loss(m model.Model, b model.Batch) (float64, error)
	DataSpecs(m model.Model) (space.Composite, Sources)
}

// DataSpecs pairs a model's input and output spaces with its source labels.
// Pure function of the model; shared by every supervised cost here.
func DataSpecs(m model.Model) (space.Composite, Sources) {
	spec := space.NewComposite(m.InputSpace(), m.OutputSpace())
	return spec, Sources{Input: m.InputSource(), Target: m.TargetSource()}
}

// Supervised is the default supervised cost: forward pass, cost matrix,
// reduction, with every target entry contributing.
type Supervised struct{}

// NewSupervised constructs the default cost.
func NewSupervised() Supervised { return Supervised{} }

// Loss computes the unmasked reduction of the model's cost matrix.
func (Supervised) Loss(m model.Model, b model.Batch) (float64, error) {
	spec, _ := DataSpecs(m)
	if err := spec.ValidateBatch(b.Inputs, b.Targets); err != nil {
		return 0, err
	}
	preds, err := m.Forward(b.Inputs)
	if err != nil {
		return 0, errors.Wrap(err, "cost: forward")
	}
	cm, err := m.CostMatrix(b.Targets, preds)
	if err != nil {
		return 0, errors.Wrap(err, "cost: cost matrix")
	}
	return m.ReduceCostMatrix(cm), nil
}

// DataSpecs returns the composite data specification for m.
func (Supervised) DataSpecs(m model.Model) (space.Composite, Sources) {
	return DataSpecs(m)
}

// missingMask returns a 0/1 matrix that is zero exactly where the target
// equals model.MissingLabel.
func missingMask(targets *mat.Dense) *mat.Dense {
	var mask mat.Dense
	mask.Apply(func(_, _ int, v float64) float64 {
		if v == model.MissingLabel {
			return 0
		}
		return 1
	}, targets)
	return &mask
}
