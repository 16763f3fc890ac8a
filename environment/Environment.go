// Package environment outlines the capabilities a flow network
// environment exposes to trajectory containers, samplers, and losses.
//
// A flow network environment defines a DAG of states rooted at the
// initial state s0. At every state a fixed set of NumActions() actions
// is available; the last action index, NumActions()-1, is the exit
// action, which ends an episode at the current state. The sink state
// sf is a padding sentinel standing for "past the end of an episode"
// and is never a real state of the DAG.
package environment

import "github.com/samuelfneumann/gflownet/states"

// Environment is the minimal capability set consumed by the trajectory
// containers and the detailed balance loss
type Environment interface {
	// NumActions returns the size of the per-state action set,
	// including the exit action
	NumActions() int

	// StateDim returns the length of a single state vector
	StateDim() int

	// S0 returns the initial state, the unique root of the DAG
	S0() []float64

	// SF returns the sink state, the padding sentinel
	SF() []float64

	// Reward returns the reward of each state in the batch. Rewards of
	// states reachable by the exit action must be strictly positive:
	// the detailed balance loss takes their log.
	Reward(b states.Batch) ([]float64, error)

	// EmptyStates returns a (0, 0) state batch padded in the given
	// direction, used to seed empty trajectory containers
	EmptyStates(backward bool) states.Batch
}

// Rollout is the extended capability set consumed by trajectory
// samplers
type Rollout interface {
	Environment

	// Initial returns a one dimensional batch of n initial states
	Initial(n int) states.Batch

	// Step applies one forward action per state of the one dimensional
	// batch b and returns the batch of next states. The exit action
	// maps a state to sf.
	Step(b states.Batch, actions []int) (states.Batch, error)

	// StepBackward applies one backward action per state of b and
	// returns the batch of parent states. There is no backward exit
	// action.
	StepBackward(b states.Batch, actions []int) (states.Batch, error)

	// ActionMask returns, for each state of b, which of the
	// NumActions() forward actions are legal. The exit action is
	// always legal.
	ActionMask(b states.Batch) ([][]bool, error)

	// BackwardActionMask returns, for each state of b, which of the
	// NumActions()-1 backward actions are legal
	BackwardActionMask(b states.Batch) ([][]bool, error)
}
