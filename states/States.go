// Package states implements batched containers of environment states.
//
// A flow network environment defines two distinguished states: the
// initial state s0, which is the unique root of the state DAG, and the
// sink state sf, which is a padding marker used to fill a batch past
// the end of a trajectory. The sink state is not a real terminal
// object: genuine terminal states are ordinary states at which an
// episode happens to end.
package states

// Batch is a batch of states with a one or two dimensional batch
// shape. Two dimensional batches index states by (time step,
// trajectory index) and are used to store whole trajectories; one
// dimensional batches index states by position and are used for
// flattened views and single-step data.
//
// All flattened accessors and masks use time-major order: the state at
// time t of trajectory i sits at flat index t*n + i in a (T, n) batch.
type Batch interface {
	// BatchShape returns the batch dimensions, excluding the state
	// dimension itself.
	BatchShape() []int

	// Len returns the total number of states in the batch
	Len() int

	// StateDim returns the length of a single state vector
	StateDim() int

	// At returns a copy of the state vector at the given flat index
	At(i int) []float64

	// IsInitial returns, for each state in flat order, whether the
	// state equals the initial state s0
	IsInitial() []bool

	// IsSink returns, for each state in flat order, whether the state
	// equals the sink state sf
	IsSink() []bool

	// SliceTime returns the sub-batch of time steps [from, to). The
	// batch must be two dimensional.
	SliceTime(from, to int) (Batch, error)

	// SelectTrajectories returns the sub-batch containing only the
	// given trajectory columns, in the given order. The batch must be
	// two dimensional.
	SelectTrajectories(indices []int) (Batch, error)

	// GatherTimes returns a one dimensional batch whose i-th state is
	// the state at (times[i], i). The batch must be two dimensional
	// and len(times) must equal the trajectory count.
	GatherTimes(times []int) (Batch, error)

	// ExtendWith returns a new batch holding the trajectories of both
	// operands. The shorter operand is padded along the time axis with
	// its padding state before concatenation. Both batches must be two
	// dimensional, share a state dimension, and pad in the same
	// direction.
	ExtendWith(other Batch) (Batch, error)

	// ReverseTime reverses each trajectory in time. Trajectory i of
	// the result holds the states at times whenIsDone[i], ..., 1, 0 of
	// the input, in that order, followed by padding. The result has
	// max(whenIsDone)+2 time steps and pads in the direction opposite
	// to the input, so that reverting a backward batch yields a
	// forward-padded one.
	ReverseTime(whenIsDone []int) (Batch, error)

	// Flatten returns a one dimensional batch over the same states in
	// flat order
	Flatten() Batch

	// MaskSelect returns a one dimensional batch of the states whose
	// flat-order mask entry is true
	MaskSelect(mask []bool) (Batch, error)

	// Clone returns a deep copy of the batch
	Clone() Batch
}
