package cost

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"gradforge/internal/model"
	"gradforge/internal/space"
)

// MissingTarget is a supervised cost for batches where some target entries
// carry no label. An entry equal to model.MissingLabel is vetoed: its cost
// matrix element is forced to zero before reduction, so it contributes
// nothing to the loss. The reduction policy stays the model's; no
// re-normalization for the vetoed entries is performed.
//
// A legitimate label with the sentinel's value is indistinguishable from a
// missing one; callers encoding real -1 targets need a different scheme.
//
// The zero value uses the plain forward pass. A MissingTarget is immutable
// after construction and safe to share across concurrent evaluations if
// the model's forward pass is.
type MissingTarget struct {
	dropout *model.DropoutConfig
}

// NewMissingTarget constructs the cost. A nil dropout config routes the
// forward pass through Forward; a non-nil one is forwarded verbatim to
// ForwardWithDropout.
func NewMissingTarget(dropout *model.DropoutConfig) *MissingTarget {
	return &MissingTarget{dropout: dropout}
}

// Loss computes the masked scalar loss for the batch.
func (c *MissingTarget) Loss(m model.Model, b model.Batch) (float64, error) {
	spec, _ := c.DataSpecs(m)
	if err := spec.ValidateBatch(b.Inputs, b.Targets); err != nil {
		return 0, err
	}

	var preds *mat.Dense
	var err error
	if c.dropout != nil {
		preds, err = m.ForwardWithDropout(b.Inputs, *c.dropout)
	} else {
		preds, err = m.Forward(b.Inputs)
	}
	if err != nil {
		return 0, errors.Wrap(err, "cost: forward")
	}

	cm, err := m.CostMatrix(b.Targets, preds)
	if err != nil {
		return 0, errors.Wrap(err, "cost: cost matrix")
	}

	// Multiplicative veto: a shape mismatch between the cost matrix and
	// the targets fails here.
	cm.MulElem(cm, missingMask(b.Targets))

	return m.ReduceCostMatrix(cm), nil
}

// DataSpecs returns the composite data specification for m.
func (c *MissingTarget) DataSpecs(m model.Model) (space.Composite, Sources) {
	return DataSpecs(m)
}
