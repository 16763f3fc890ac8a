// Package preprocessor transforms state batches into the dense tensors
// consumed by neural estimators.
//
// Policy scorers and flow estimators typically wrap a network that
// expects a fixed-width real input per state; a Preprocessor bridges
// the gap between the environment's state representation and that
// input.
package preprocessor

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gflownet/environment"
	"github.com/samuelfneumann/gflownet/states"
)

// Preprocessor maps a batch of n states to an (n, OutputDim()) tensor
type Preprocessor interface {
	OutputDim() int
	Preprocess(b states.Batch) (*tensor.Dense, error)
}

// Identity passes raw state vectors through unchanged, one row per
// state. It applies to environments whose states are already flat
// real vectors.
type Identity struct {
	dim int
}

// NewIdentity returns a new Identity preprocessor for env
func NewIdentity(env environment.Environment) *Identity {
	return &Identity{dim: env.StateDim()}
}

// OutputDim returns the width of the preprocessed rows
func (i *Identity) OutputDim() int {
	return i.dim
}

// Preprocess returns the (b.Len(), OutputDim()) tensor of raw state
// vectors in flat order
func (i *Identity) Preprocess(b states.Batch) (*tensor.Dense, error) {
	if b.StateDim() != i.dim {
		return nil, fmt.Errorf("preprocess: illegal state dimension "+
			"\n\twant(%v)\n\thave(%v)", i.dim, b.StateDim())
	}
	if b.Len() == 0 {
		return nil, fmt.Errorf("preprocess: cannot preprocess an empty " +
			"batch")
	}

	backing := make([]float64, b.Len()*i.dim)
	for j := 0; j < b.Len(); j++ {
		copy(backing[j*i.dim:(j+1)*i.dim], b.At(j))
	}

	return tensor.New(
		tensor.WithShape(b.Len(), i.dim),
		tensor.WithBacking(backing),
	), nil
}
