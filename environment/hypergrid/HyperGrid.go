// Package hypergrid implements the hypercubic lattice flow network, a
// standard synthetic benchmark for generative flow networks.
//
// States are the integer points of {0, ..., height-1}^dims. The
// initial state is the origin; action k < dims increments coordinate
// k by one, and the exit action ends the episode at the current
// point. The reward is highest in small regions near the corners of
// the hypercube, so that sampling proportionally to it requires
// covering several separated modes.
package hypergrid

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/gflownet/environment"
	"github.com/samuelfneumann/gflownet/states"
)

// Default reward shape
const (
	DefaultR0 float64 = 0.1
	DefaultR1 float64 = 0.5
	DefaultR2 float64 = 2.0
)

// Config implements a specific configuration of a HyperGrid
type Config struct {
	Dims   int
	Height int

	// R0 is the reward floor; R1 and R2 are the bonuses of the outer
	// and inner high-reward regions
	R0, R1, R2 float64
}

// Create creates and returns the HyperGrid with the specified Config
func (c Config) Create() (*HyperGrid, error) {
	return New(c.Dims, c.Height, c.R0, c.R1, c.R2)
}

// HyperGrid implements environment.Rollout on the hypercubic lattice
type HyperGrid struct {
	dims   int
	height int

	r0, r1, r2 float64

	s0 []float64
	sf []float64
}

var _ environment.Rollout = (*HyperGrid)(nil)

// New creates and returns a new HyperGrid of the given size and reward
// shape. The reward floor r0 must be strictly positive so that every
// terminal reward has a finite log.
func New(dims, height int, r0, r1, r2 float64) (*HyperGrid, error) {
	if dims < 1 {
		return nil, fmt.Errorf("new: dims must be > 0")
	}
	if height < 2 {
		return nil, fmt.Errorf("new: height must be >= 2")
	}
	if r0 <= 0 {
		return nil, fmt.Errorf("new: reward floor must be > 0")
	}
	if r1 < 0 || r2 < 0 {
		return nil, fmt.Errorf("new: reward bonuses must be >= 0")
	}

	s0 := make([]float64, dims)
	sf := make([]float64, dims)
	for i := range sf {
		sf[i] = -1.0
	}

	return &HyperGrid{
		dims:   dims,
		height: height,
		r0:     r0,
		r1:     r1,
		r2:     r2,
		s0:     s0,
		sf:     sf,
	}, nil
}

// NumActions returns the number of actions: one increment per
// dimension plus the exit action
func (h *HyperGrid) NumActions() int {
	return h.dims + 1
}

// StateDim returns the number of grid dimensions
func (h *HyperGrid) StateDim() int {
	return h.dims
}

// Height returns the number of grid points per dimension
func (h *HyperGrid) Height() int {
	return h.height
}

// S0 returns the origin of the lattice
func (h *HyperGrid) S0() []float64 {
	out := make([]float64, h.dims)
	copy(out, h.s0)
	return out
}

// SF returns the sink sentinel
func (h *HyperGrid) SF() []float64 {
	out := make([]float64, h.dims)
	copy(out, h.sf)
	return out
}

// Reward returns the reward of each state of b:
//
//	r0 + r1·∏ 1[ |x/(height-1) - 0.5| > 0.25 ]
//	   + r2·∏ 1[ 0.3 < |x/(height-1) - 0.5| < 0.4 ]
//
// Strictly positive everywhere since r0 > 0.
func (h *HyperGrid) Reward(b states.Batch) ([]float64, error) {
	if b.StateDim() != h.dims {
		return nil, fmt.Errorf("reward: illegal state dimension "+
			"\n\twant(%v)\n\thave(%v)", h.dims, b.StateDim())
	}

	rewards := make([]float64, b.Len())
	for i := range rewards {
		state := b.At(i)

		outer, inner := 1.0, 1.0
		for _, coordinate := range state {
			centered := math.Abs(coordinate/float64(h.height-1) - 0.5)
			if centered <= 0.25 {
				outer = 0
			}
			if centered <= 0.3 || centered >= 0.4 {
				inner = 0
			}
		}
		rewards[i] = h.r0 + h.r1*outer + h.r2*inner
	}
	return rewards, nil
}

// EmptyStates returns a (0, 0) state batch padded with s0 (backward)
// or sf (forward)
func (h *HyperGrid) EmptyStates(backward bool) states.Batch {
	empty, err := states.NewDense([]int{0, 0}, nil, h.s0, h.sf, backward)
	if err != nil {
		// Unreachable: the sentinels are valid by construction
		panic(fmt.Sprintf("emptyStates: %v", err))
	}
	return empty
}

// Initial returns a one dimensional batch of n origin states
func (h *HyperGrid) Initial(n int) states.Batch {
	batch, err := states.FullDense([]int{n}, h.s0, h.s0, h.sf, false)
	if err != nil {
		panic(fmt.Sprintf("initial: %v", err))
	}
	return batch
}

// Step applies one forward action per state of b. Increments beyond
// the grid boundary are contract violations; the exit action maps any
// state to the sink sentinel.
func (h *HyperGrid) Step(b states.Batch, actions []int) (states.Batch,
	error) {
	if len(actions) != b.Len() {
		return nil, fmt.Errorf("step: illegal actions length "+
			"\n\twant(%v)\n\thave(%v)", b.Len(), len(actions))
	}

	backing := make([]float64, b.Len()*h.dims)
	for i, action := range actions {
		state := b.At(i)
		switch {
		case action == h.dims:
			copy(state, h.sf)
		case action >= 0 && action < h.dims:
			if state[action] >= float64(h.height-1) {
				return nil, fmt.Errorf("step: action %v at state %v "+
					"leaves the grid", action, state)
			}
			state[action]++
		default:
			return nil, fmt.Errorf("step: illegal action %v", action)
		}
		copy(backing[i*h.dims:(i+1)*h.dims], state)
	}

	next, err := states.NewDense([]int{b.Len()}, backing, h.s0, h.sf, false)
	if err != nil {
		return nil, fmt.Errorf("step: %v", err)
	}
	return next, nil
}

// StepBackward applies one backward action per state of b, moving each
// state one step toward the origin. Decrements below zero are contract
// violations.
func (h *HyperGrid) StepBackward(b states.Batch, actions []int) (
	states.Batch, error) {
	if len(actions) != b.Len() {
		return nil, fmt.Errorf("stepBackward: illegal actions length "+
			"\n\twant(%v)\n\thave(%v)", b.Len(), len(actions))
	}

	backing := make([]float64, b.Len()*h.dims)
	for i, action := range actions {
		state := b.At(i)
		if action < 0 || action >= h.dims {
			return nil, fmt.Errorf("stepBackward: illegal action %v", action)
		}
		if state[action] <= 0 {
			return nil, fmt.Errorf("stepBackward: action %v at state %v "+
				"leaves the grid", action, state)
		}
		state[action]--
		copy(backing[i*h.dims:(i+1)*h.dims], state)
	}

	parents, err := states.NewDense([]int{b.Len()}, backing, h.s0, h.sf, true)
	if err != nil {
		return nil, fmt.Errorf("stepBackward: %v", err)
	}
	return parents, nil
}

// ActionMask returns, for each state of b, which forward actions are
// legal: increments that stay on the grid and, always, the exit action
func (h *HyperGrid) ActionMask(b states.Batch) ([][]bool, error) {
	if b.StateDim() != h.dims {
		return nil, fmt.Errorf("actionMask: illegal state dimension "+
			"\n\twant(%v)\n\thave(%v)", h.dims, b.StateDim())
	}

	masks := make([][]bool, b.Len())
	for i := range masks {
		state := b.At(i)
		mask := make([]bool, h.dims+1)
		for k, coordinate := range state {
			mask[k] = coordinate < float64(h.height-1)
		}
		mask[h.dims] = true
		masks[i] = mask
	}
	return masks, nil
}

// BackwardActionMask returns, for each state of b, which backward
// actions are legal: decrements of strictly positive coordinates
func (h *HyperGrid) BackwardActionMask(b states.Batch) ([][]bool, error) {
	if b.StateDim() != h.dims {
		return nil, fmt.Errorf("backwardActionMask: illegal state "+
			"dimension \n\twant(%v)\n\thave(%v)", h.dims, b.StateDim())
	}

	masks := make([][]bool, b.Len())
	for i := range masks {
		state := b.At(i)
		mask := make([]bool, h.dims)
		for k, coordinate := range state {
			mask[k] = coordinate > 0
		}
		masks[i] = mask
	}
	return masks, nil
}
