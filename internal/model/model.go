package model

import (
	"gonum.org/v1/gonum/mat"

	"gradforge/internal/space"
)

// Batch represents a minibatch of input features and supervised targets.
// Both tensors have one row per example.
type Batch struct {
	Inputs  *mat.Dense
	Targets *mat.Dense
}

// Model is the capability contract a supervised cost needs from a model:
// declared input/output spaces and source labels for batch validation, a
// forward pass (with and without dropout), a per-element cost matrix from
// the output layer, and the policy reducing that matrix to a scalar loss.
type Model interface {
	InputSpace() space.Space
	OutputSpace() space.Space
	InputSource() string
	TargetSource() string

	Forward(x *mat.Dense) (*mat.Dense, error)
	ForwardWithDropout(x *mat.Dense, cfg DropoutConfig) (*mat.Dense, error)

	CostMatrix(targets, preds *mat.Dense) (*mat.Dense, error)
	ReduceCostMatrix(cm *mat.Dense) float64
}

// DropoutConfig carries the dropout parameters forwarded verbatim to a
// model's dropout-aware forward pass.
type DropoutConfig struct {
	// DefaultIncludeProb is the probability that a unit is kept. Layers
	// named in IncludeProbs override it.
	DefaultIncludeProb float64
	IncludeProbs       map[string]float64
	// DefaultScale multiplies kept units to preserve expected activation.
	// Zero means 1/DefaultIncludeProb. Layers named in Scales override it.
	DefaultScale float64
	Scales       map[string]float64
}

func (c DropoutConfig) includeProb(layer string) float64 {
	if p, ok := c.IncludeProbs[layer]; ok {
		return p
	}
	return c.DefaultIncludeProb
}

func (c DropoutConfig) scale(layer string) float64 {
	if s, ok := c.Scales[layer]; ok {
		return s
	}
	if c.DefaultScale != 0 {
		return c.DefaultScale
	}
	if p := c.DefaultIncludeProb; p > 0 {
		return 1 / p
	}
	return 1
}
