package space

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Space describes the expected layout of one batched tensor: every row is
// one example, every column one unit of the space.
type Space interface {
	Dim() int
	Validate(m *mat.Dense) error
	String() string
}

// MismatchError reports batch data that does not match its declared space.
type MismatchError struct {
	Space  string
	Reason string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("space: %s: %s", e.Space, e.Reason)
}

func mismatch(s Space, format string, args ...interface{}) *MismatchError {
	return &MismatchError{Space: s.String(), Reason: fmt.Sprintf(format, args...)}
}

// Vector is a fixed-width real vector space.
type Vector struct {
	dim int
}

// NewVector constructs a vector space of the given width.
func NewVector(dim int) Vector {
	return Vector{dim: dim}
}

func (v Vector) Dim() int { return v.dim }

func (v Vector) String() string {
	return fmt.Sprintf("Vector(%d)", v.dim)
}

// Validate checks that m is a batch of vectors from this space.
func (v Vector) Validate(m *mat.Dense) error {
	if m == nil {
		return mismatch(v, "batch tensor is nil")
	}
	rows, cols := m.Dims()
	if cols != v.dim {
		return mismatch(v, "batch has shape %dx%d, want width %d", rows, cols, v.dim)
	}
	return nil
}

// Composite is an ordered tuple of spaces validated against a tuple of
// batch tensors that must share their leading (batch) dimension.
type Composite struct {
	components []Space
}

// NewComposite constructs a composite space from its components in order.
func NewComposite(components ...Space) Composite {
	return Composite{components: components}
}

// Components returns the component spaces in order.
func (c Composite) Components() []Space { return c.components }

func (c Composite) Dim() int {
	total := 0
	for _, s := range c.components {
		total += s.Dim()
	}
	return total
}

func (c Composite) String() string {
	parts := make([]string, len(c.components))
	for i, s := range c.components {
		parts[i] = s.String()
	}
	return "Composite(" + strings.Join(parts, ", ") + ")"
}

// Validate checks a single tensor against the flattened composite width.
func (c Composite) Validate(m *mat.Dense) error {
	if m == nil {
		return mismatch(c, "batch tensor is nil")
	}
	rows, cols := m.Dims()
	if cols != c.Dim() {
		return mismatch(c, "batch has shape %dx%d, want width %d", rows, cols, c.Dim())
	}
	return nil
}

// ValidateBatch checks each tensor against its component space and that all
// tensors agree on the number of examples.
func (c Composite) ValidateBatch(batch ...*mat.Dense) error {
	if len(batch) != len(c.components) {
		return mismatch(c, "composite has %d components, batch has %d tensors",
			len(c.components), len(batch))
	}
	batchRows := -1
	for i, s := range c.components {
		if err := s.Validate(batch[i]); err != nil {
			return err
		}
		rows, _ := batch[i].Dims()
		if batchRows == -1 {
			batchRows = rows
			continue
		}
		if rows != batchRows {
			return mismatch(s, "component has %d examples, earlier components have %d",
				rows, batchRows)
		}
	}
	return nil
}
