// Package container implements batched containers of complete
// trajectories through a flow network DAG and the flattened transition
// view derived from them.
//
// Trajectories are stored densely: a batch of N trajectories of
// differing lengths occupies a (maxLength+1, N) state grid and a
// (maxLength, N) action grid, padded past each trajectory's true
// length with the sink state (forward batches) or the initial state
// (backward batches) and with the action sentinel -1. The per
// trajectory field whenIsDone records the true length; traversals mask
// by it and by the state predicates rather than trusting raw values.
package container

import (
	"fmt"

	"github.com/samuelfneumann/gflownet/environment"
	"github.com/samuelfneumann/gflownet/states"
	"github.com/samuelfneumann/gflownet/utils/intutils"
)

// PaddingAction is the sentinel marking a no-op action past the true
// length of a trajectory
const PaddingAction int = -1

// Config holds the optional fields of a Trajectories batch. Any field
// left at its zero value defaults to an empty, 0-trajectory instance;
// all provided fields must agree on the trajectory count.
type Config struct {
	// States is the (maxLength+1, N) state grid
	States states.Batch

	// Actions holds one row per time step, each of length N
	Actions [][]int

	// WhenIsDone is the 1-indexed count of real actions per trajectory
	WhenIsDone []int

	// IsBackward flags batches of terminal → s0 trajectories
	IsBackward bool

	// Rewards, LogPFs, and LogPBs cache per-trajectory terminal
	// rewards and total forward/backward log probabilities, as
	// supplied by the sampler that generated the batch. A nil slice
	// marks the field absent.
	Rewards []float64
	LogPFs  []float64
	LogPBs  []float64
}

// Trajectories is a batch of N independent paths through the DAG,
// forward (s0 → ... → terminal) or backward (terminal → ... → s0)
type Trajectories struct {
	env environment.Environment

	states     states.Batch
	actions    []int // flat, time-major: action (t, i) at t*N + i
	actionRows int
	whenIsDone []int
	isBackward bool

	rewards []float64
	logPFs  []float64
	logPBs  []float64
}

// New creates and returns a new Trajectories batch over env with the
// fields of c
func New(env environment.Environment, c Config) (*Trajectories, error) {
	if env == nil {
		return nil, fmt.Errorf("new: no environment given")
	}

	batch := c.States
	if batch == nil {
		batch = env.EmptyStates(c.IsBackward)
	}
	shape := batch.BatchShape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("new: states must have a 2-dimensional "+
			"batch shape, got %v", shape)
	}
	rows, n := shape[0], shape[1]

	actionRows := len(c.Actions)
	if n == 0 && actionRows == 0 && rows <= 1 {
		// Empty instance
		rows = 0
	} else if rows != actionRows+1 {
		return nil, fmt.Errorf("new: states must have exactly one more "+
			"time step than actions \n\tstates(%v)\n\tactions(%v)", rows,
			actionRows)
	}

	actions := make([]int, actionRows*n)
	for t, row := range c.Actions {
		if len(row) != n {
			return nil, fmt.Errorf("new: illegal action row length at "+
				"time %v \n\twant(%v)\n\thave(%v)", t, n, len(row))
		}
		copy(actions[t*n:(t+1)*n], row)
	}

	whenIsDone := c.WhenIsDone
	if whenIsDone == nil {
		whenIsDone = []int{}
	}
	if len(whenIsDone) != n {
		return nil, fmt.Errorf("new: illegal whenIsDone length "+
			"\n\twant(%v)\n\thave(%v)", n, len(whenIsDone))
	}
	// Zero-length trajectories, which start and end at s0 without
	// ever leaving, are representable; LastStates fails on them
	for i, done := range whenIsDone {
		if done < 0 || done > actionRows {
			return nil, fmt.Errorf("new: whenIsDone[%v] = %v out of range "+
				"[0, %v]", i, done, actionRows)
		}
	}

	for _, field := range [][]float64{c.Rewards, c.LogPFs, c.LogPBs} {
		if field != nil && len(field) != n {
			return nil, fmt.Errorf("new: illegal per-trajectory field "+
				"length \n\twant(%v)\n\thave(%v)", n, len(field))
		}
	}

	return &Trajectories{
		env:        env,
		states:     batch,
		actions:    actions,
		actionRows: actionRows,
		whenIsDone: copyInts(whenIsDone),
		isBackward: c.IsBackward,
		rewards:    copyFloats(c.Rewards),
		logPFs:     copyFloats(c.LogPFs),
		logPBs:     copyFloats(c.LogPBs),
	}, nil
}

// Len returns the number of trajectories in the batch
func (t *Trajectories) Len() int {
	return t.states.BatchShape()[1]
}

// MaxLength returns the length of the action time axis, or 0 for an
// empty batch
func (t *Trajectories) MaxLength() int {
	if t.Len() == 0 {
		return 0
	}
	return t.actionRows
}

// IsBackward returns whether the batch holds backward trajectories
func (t *Trajectories) IsBackward() bool {
	return t.isBackward
}

// Env returns the environment the trajectories were rolled out in
func (t *Trajectories) Env() environment.Environment {
	return t.env
}

// States returns the (MaxLength()+1, Len()) state grid of the batch
func (t *Trajectories) States() states.Batch {
	return t.states
}

// Actions returns a copy of the action grid, one row per time step
func (t *Trajectories) Actions() [][]int {
	n := t.Len()
	out := make([][]int, t.actionRows)
	for i := range out {
		out[i] = copyInts(t.actions[i*n : (i+1)*n])
	}
	return out
}

// WhenIsDone returns a copy of the per-trajectory termination steps
func (t *Trajectories) WhenIsDone() []int {
	return copyInts(t.whenIsDone)
}

// LastStates returns, for each trajectory, the state at its
// termination step: the true terminal state for forward trajectories,
// never the padding sentinel
func (t *Trajectories) LastStates() (states.Batch, error) {
	times := make([]int, len(t.whenIsDone))
	for i, done := range t.whenIsDone {
		times[i] = done - 1
	}

	last, err := t.states.GatherTimes(times)
	if err != nil {
		return nil, fmt.Errorf("lastStates: %v", err)
	}
	return last, nil
}

// Rewards returns the per-trajectory terminal rewards. If the batch
// carries cached rewards, those are returned; otherwise, for forward
// trajectories the rewards of the last states are computed through the
// environment. Backward batches without cached rewards have no
// rewards: the returned error satisfies IsNoRewards.
func (t *Trajectories) Rewards() ([]float64, error) {
	if t.rewards != nil {
		return copyFloats(t.rewards), nil
	}
	if t.isBackward {
		return nil, &ContainerError{Op: "rewards", Err: errNoRewards}
	}

	last, err := t.LastStates()
	if err != nil {
		return nil, fmt.Errorf("rewards: %v", err)
	}
	rewards, err := t.env.Reward(last)
	if err != nil {
		return nil, fmt.Errorf("rewards: %v", err)
	}
	return rewards, nil
}

// LogPFs returns the cached total forward log probabilities of the
// trajectories, if the sampler that generated the batch supplied them
func (t *Trajectories) LogPFs() ([]float64, bool) {
	if t.logPFs == nil {
		return nil, false
	}
	return copyFloats(t.logPFs), true
}

// LogPBs returns the cached total backward log probabilities of the
// trajectories, if the sampler that generated the batch supplied them
func (t *Trajectories) LogPBs() ([]float64, bool) {
	if t.logPBs == nil {
		return nil, false
	}
	return copyFloats(t.logPBs), true
}

// Slice returns a new batch holding only the selected trajectories,
// with the time axis truncated to the new maximum required length.
// Optional fields are sliced in lockstep and stay absent if absent on
// the source.
func (t *Trajectories) Slice(indices []int) (*Trajectories, error) {
	if len(indices) == 0 {
		return New(t.env, Config{IsBackward: t.isBackward})
	}

	n := t.Len()
	whenIsDone := make([]int, len(indices))
	for j, index := range indices {
		if index < 0 || index >= n {
			return nil, fmt.Errorf("slice: index %v out of range for %v "+
				"trajectories", index, n)
		}
		whenIsDone[j] = t.whenIsDone[index]
	}
	maxLength := intutils.Max(whenIsDone...)

	selected, err := t.states.SelectTrajectories(indices)
	if err != nil {
		return nil, fmt.Errorf("slice: %v", err)
	}
	sliced, err := selected.SliceTime(0, maxLength+1)
	if err != nil {
		return nil, fmt.Errorf("slice: %v", err)
	}

	actions := make([][]int, maxLength)
	for step := 0; step < maxLength; step++ {
		row := make([]int, len(indices))
		for j, index := range indices {
			row[j] = t.actions[step*n+index]
		}
		actions[step] = row
	}

	return New(t.env, Config{
		States:     sliced,
		Actions:    actions,
		WhenIsDone: whenIsDone,
		IsBackward: t.isBackward,
		Rewards:    selectFloats(t.rewards, indices),
		LogPFs:     selectFloats(t.logPFs, indices),
		LogPBs:     selectFloats(t.logPBs, indices),
	})
}

// Extend concatenates other onto t along the trajectory axis, padding
// the shorter operand's action grid with the padding sentinel and its
// state grid with the direction's padding state. The cached rewards
// and log probabilities survive only if present on both operands;
// partial information is discarded rather than fabricated.
func (t *Trajectories) Extend(other *Trajectories) error {
	if t.isBackward != other.isBackward {
		return fmt.Errorf("extend: cannot extend a batch with one " +
			"direction by a batch with the other")
	}

	maxLength := intutils.Max(t.MaxLength(), other.MaxLength())
	t.ExtendActionsTo(maxLength)

	otherActions := padActions(other.actions, other.actionRows, other.Len(),
		maxLength)

	extended, err := t.states.ExtendWith(other.states)
	if err != nil {
		return fmt.Errorf("extend: %v", err)
	}
	t.states = extended

	left, right := t.Len()-other.Len(), other.Len()
	actions := make([]int, maxLength*(left+right))
	for step := 0; step < maxLength; step++ {
		copy(actions[step*(left+right):], t.actions[step*left:(step+1)*left])
		copy(actions[step*(left+right)+left:],
			otherActions[step*right:(step+1)*right])
	}
	t.actions = actions
	t.actionRows = maxLength

	t.whenIsDone = append(t.whenIsDone, other.whenIsDone...)
	t.rewards = mergeFloats(t.rewards, other.rewards)
	t.logPFs = mergeFloats(t.logPFs, other.logPFs)
	t.logPBs = mergeFloats(t.logPBs, other.logPBs)
	return nil
}

// ExtendActionsTo right-pads the action time axis with the padding
// sentinel up to length steps. A no-op if the axis is already long
// enough.
func (t *Trajectories) ExtendActionsTo(steps int) {
	if t.actionRows >= steps {
		return
	}
	t.actions = padActions(t.actions, t.actionRows, t.Len(), steps)
	t.actionRows = steps
}

// RevertBackward reconstructs the forward, time-reversed batch of a
// backward batch: each trajectory's actions are reversed and an exit
// action is appended at the new termination step, and each
// trajectory's states are reversed and re-padded with the sink state.
// The cached rewards and log probabilities do not carry over.
func (t *Trajectories) RevertBackward() (*Trajectories, error) {
	if !t.isBackward {
		return nil, fmt.Errorf("revertBackward: trajectories are not " +
			"backward")
	}

	n := t.Len()
	if n == 0 {
		return New(t.env, Config{})
	}

	exit := t.env.NumActions() - 1
	maxLength := intutils.Max(t.whenIsDone...) + 1

	actions := make([][]int, maxLength)
	for step := range actions {
		row := make([]int, n)
		for i := range row {
			switch done := t.whenIsDone[i]; {
			case step < done:
				row[i] = t.actions[(done-1-step)*n+i]
			case step == done:
				row[i] = exit
			default:
				row[i] = PaddingAction
			}
		}
		actions[step] = row
	}

	reversed, err := t.states.ReverseTime(t.whenIsDone)
	if err != nil {
		return nil, fmt.Errorf("revertBackward: %v", err)
	}

	whenIsDone := make([]int, n)
	for i, done := range t.whenIsDone {
		whenIsDone[i] = done + 1
	}

	return New(t.env, Config{
		States:     reversed,
		Actions:    actions,
		WhenIsDone: whenIsDone,
	})
}

// ToStates flattens the state grid across both axes and removes every
// sink sentinel entry, yielding every genuinely visited state,
// duplicates included
func (t *Trajectories) ToStates() (states.Batch, error) {
	flat := t.states.Flatten()
	mask := flat.IsSink()
	for i := range mask {
		mask[i] = !mask[i]
	}

	visited, err := flat.MaskSelect(mask)
	if err != nil {
		return nil, fmt.Errorf("toStates: %v", err)
	}
	return visited, nil
}

// IntermediateAndTerminalStates partitions the visited states into
// the DAG-internal states, excluding s0 and padding, and the terminal
// states, excluding terminals equal to s0
func (t *Trajectories) IntermediateAndTerminalStates() (states.Batch,
	states.Batch, error) {
	exit := t.env.NumActions() - 1
	n := t.Len()

	head, err := t.states.SliceTime(0, t.actionRows)
	if err != nil {
		return nil, nil, fmt.Errorf("intermediateAndTerminalStates: %v", err)
	}

	// States whose outgoing action exits are terminal, not
	// intermediate
	mask := make([]bool, t.actionRows*n)
	for i, action := range t.actions {
		mask[i] = action != exit
	}
	candidates, err := head.MaskSelect(mask)
	if err != nil {
		return nil, nil, fmt.Errorf("intermediateAndTerminalStates: %v", err)
	}

	sink := candidates.IsSink()
	initial := candidates.IsInitial()
	keep := make([]bool, candidates.Len())
	for i := range keep {
		keep[i] = !sink[i] && !initial[i]
	}
	intermediate, err := candidates.MaskSelect(keep)
	if err != nil {
		return nil, nil, fmt.Errorf("intermediateAndTerminalStates: %v", err)
	}

	last, err := t.LastStates()
	if err != nil {
		return nil, nil, fmt.Errorf("intermediateAndTerminalStates: %v", err)
	}
	notInitial := last.IsInitial()
	for i := range notInitial {
		notInitial[i] = !notInitial[i]
	}
	terminal, err := last.MaskSelect(notInitial)
	if err != nil {
		return nil, nil, fmt.Errorf("intermediateAndTerminalStates: %v", err)
	}

	return intermediate, terminal, nil
}

// padActions returns actions right-padded along the time axis with the
// padding sentinel up to steps rows
func padActions(actions []int, rows, cols, steps int) []int {
	if rows >= steps {
		return actions
	}
	padded := make([]int, steps*cols)
	copy(padded, actions)
	for i := rows * cols; i < len(padded); i++ {
		padded[i] = PaddingAction
	}
	return padded
}

// mergeFloats merges an optional per-trajectory field across two
// operands: the concatenation if both are present, absent otherwise
func mergeFloats(left, right []float64) []float64 {
	if left == nil || right == nil {
		return nil
	}
	return append(left, right...)
}

// selectFloats indexes an optional per-trajectory field, propagating
// absence
func selectFloats(field []float64, indices []int) []float64 {
	if field == nil {
		return nil
	}
	out := make([]float64, len(indices))
	for j, index := range indices {
		out[j] = field[index]
	}
	return out
}

func copyInts(s []int) []int {
	out := make([]int, len(s))
	copy(out, s)
	return out
}

func copyFloats(s []float64) []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s))
	copy(out, s)
	return out
}
