// Package sampler rolls out batches of trajectories through flow
// network environments.
//
// A sampler drives a policy scorer over a batch of live trajectories:
// at every step it scores the states that have not yet terminated,
// samples one legal action per state from the softmax of the masked
// logits, and steps the environment. Finished trajectories stay parked
// at the padding sentinel until the whole batch terminates, so the
// produced container is dense and padded exactly as the containers
// expect.
package sampler

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/samuelfneumann/gflownet/container"
	"github.com/samuelfneumann/gflownet/environment"
	"github.com/samuelfneumann/gflownet/loss"
	"github.com/samuelfneumann/gflownet/states"
)

// Sampler rolls out forward trajectories, from s0 until each
// trajectory takes the exit action
type Sampler struct {
	env    environment.Rollout
	scorer loss.Scorer
	src    rand.Source

	// MaxSteps caps the rollout length; 0 leaves it uncapped
	MaxSteps int
}

// New returns a new forward trajectory sampler. The scorer must
// produce env.NumActions() logits per state, the last scoring the exit
// action.
func New(env environment.Rollout, scorer loss.Scorer, seed uint64) *Sampler {
	return &Sampler{
		env:    env,
		scorer: scorer,
		src:    rand.NewSource(seed),
	}
}

// Sample rolls out n trajectories and returns them with their total
// forward log probabilities cached
func (s *Sampler) Sample(n int) (*container.Trajectories, error) {
	if n < 0 {
		return nil, fmt.Errorf("sample: cannot sample %v trajectories", n)
	}

	dim := s.env.StateDim()
	numActions := s.env.NumActions()

	current := make([]float64, n*dim)
	initial := s.env.Initial(n)
	for i := 0; i < n; i++ {
		copy(current[i*dim:(i+1)*dim], initial.At(i))
	}

	stateRows := [][]float64{snapshot(current)}
	var actionRows [][]int
	done := make([]bool, n)
	whenIsDone := make([]int, n)
	logPFs := make([]float64, n)

	for remaining := n; remaining > 0; {
		if s.MaxSteps > 0 && len(actionRows) >= s.MaxSteps {
			return nil, fmt.Errorf("sample: rollout exceeded %v steps",
				s.MaxSteps)
		}

		live := liveIndices(done)
		liveBatch, err := gatherStates(current, live, dim, s.env, false)
		if err != nil {
			return nil, fmt.Errorf("sample: %v", err)
		}

		logits, err := s.scorer.Score(liveBatch)
		if err != nil {
			return nil, fmt.Errorf("sample: policy: %v", err)
		}
		rows, cols := logits.Dims()
		if rows != len(live) || cols != numActions {
			return nil, fmt.Errorf("sample: policy: illegal logits shape "+
				"\n\twant(%v x %v)\n\thave(%v x %v)", len(live), numActions,
				rows, cols)
		}

		masks, err := s.env.ActionMask(liveBatch)
		if err != nil {
			return nil, fmt.Errorf("sample: %v", err)
		}

		liveActions := make([]int, len(live))
		row := paddingRow(n)
		for j, i := range live {
			action, logProb, err := sampleAction(logits.RawRowView(j),
				masks[j], s.src)
			if err != nil {
				return nil, fmt.Errorf("sample: %v", err)
			}
			liveActions[j] = action
			row[i] = action
			logPFs[i] += logProb
			whenIsDone[i]++
		}

		next, err := s.env.Step(liveBatch, liveActions)
		if err != nil {
			return nil, fmt.Errorf("sample: %v", err)
		}
		sink := next.IsSink()
		for j, i := range live {
			copy(current[i*dim:(i+1)*dim], next.At(j))
			if sink[j] {
				done[i] = true
				remaining--
			}
		}

		actionRows = append(actionRows, row)
		stateRows = append(stateRows, snapshot(current))
	}

	grid, err := stackStates(stateRows, n, dim, s.env, false)
	if err != nil {
		return nil, fmt.Errorf("sample: %v", err)
	}

	return container.New(s.env, container.Config{
		States:     grid,
		Actions:    actionRows,
		WhenIsDone: whenIsDone,
		LogPFs:     logPFs,
	})
}

// BackwardSampler rolls out backward trajectories, from given terminal
// states down to s0
type BackwardSampler struct {
	env    environment.Rollout
	scorer loss.Scorer
	src    rand.Source

	// MaxSteps caps the rollout length; 0 leaves it uncapped
	MaxSteps int
}

// NewBackward returns a new backward trajectory sampler. The scorer
// must produce env.NumActions()-1 logits per state: there is no
// backward exit action.
func NewBackward(env environment.Rollout, scorer loss.Scorer,
	seed uint64) *BackwardSampler {
	return &BackwardSampler{
		env:    env,
		scorer: scorer,
		src:    rand.NewSource(seed),
	}
}

// Sample rolls out one backward trajectory from each state of the one
// dimensional batch from, returning them with their total backward log
// probabilities cached. Backward batches never carry rewards.
func (s *BackwardSampler) Sample(from states.Batch) (
	*container.Trajectories, error) {
	if shape := from.BatchShape(); len(shape) != 1 {
		return nil, fmt.Errorf("sample: starting states must have a "+
			"1-dimensional batch shape, got %v", shape)
	}
	for i, sink := range from.IsSink() {
		if sink {
			return nil, fmt.Errorf("sample: state %v is the sink "+
				"sentinel, not a terminal state", i)
		}
	}

	n := from.Len()
	dim := s.env.StateDim()
	numBackward := s.env.NumActions() - 1

	current := make([]float64, n*dim)
	for i := 0; i < n; i++ {
		copy(current[i*dim:(i+1)*dim], from.At(i))
	}

	stateRows := [][]float64{snapshot(current)}
	var actionRows [][]int
	done := from.IsInitial()
	whenIsDone := make([]int, n)
	logPBs := make([]float64, n)

	remaining := n
	for _, d := range done {
		if d {
			remaining--
		}
	}

	for remaining > 0 {
		if s.MaxSteps > 0 && len(actionRows) >= s.MaxSteps {
			return nil, fmt.Errorf("sample: rollout exceeded %v steps",
				s.MaxSteps)
		}

		live := liveIndices(done)
		liveBatch, err := gatherStates(current, live, dim, s.env, true)
		if err != nil {
			return nil, fmt.Errorf("sample: %v", err)
		}

		logits, err := s.scorer.Score(liveBatch)
		if err != nil {
			return nil, fmt.Errorf("sample: policy: %v", err)
		}
		rows, cols := logits.Dims()
		if rows != len(live) || cols != numBackward {
			return nil, fmt.Errorf("sample: policy: illegal logits shape "+
				"\n\twant(%v x %v)\n\thave(%v x %v)", len(live), numBackward,
				rows, cols)
		}

		masks, err := s.env.BackwardActionMask(liveBatch)
		if err != nil {
			return nil, fmt.Errorf("sample: %v", err)
		}

		liveActions := make([]int, len(live))
		row := paddingRow(n)
		for j, i := range live {
			action, logProb, err := sampleAction(logits.RawRowView(j),
				masks[j], s.src)
			if err != nil {
				return nil, fmt.Errorf("sample: %v", err)
			}
			liveActions[j] = action
			row[i] = action
			logPBs[i] += logProb
			whenIsDone[i]++
		}

		parents, err := s.env.StepBackward(liveBatch, liveActions)
		if err != nil {
			return nil, fmt.Errorf("sample: %v", err)
		}
		initial := parents.IsInitial()
		for j, i := range live {
			copy(current[i*dim:(i+1)*dim], parents.At(j))
			if initial[j] {
				done[i] = true
				remaining--
			}
		}

		actionRows = append(actionRows, row)
		stateRows = append(stateRows, snapshot(current))
	}

	grid, err := stackStates(stateRows, n, dim, s.env, true)
	if err != nil {
		return nil, fmt.Errorf("sample: %v", err)
	}

	return container.New(s.env, container.Config{
		States:     grid,
		Actions:    actionRows,
		WhenIsDone: whenIsDone,
		IsBackward: true,
		LogPBs:     logPBs,
	})
}

// sampleAction draws one action from the softmax of the legal logits
// and returns it with its log probability
func sampleAction(logits []float64, mask []bool, src rand.Source) (int,
	float64, error) {
	if len(mask) != len(logits) {
		return 0, 0, fmt.Errorf("sampleAction: illegal mask length "+
			"\n\twant(%v)\n\thave(%v)", len(logits), len(mask))
	}

	allowed := make([]float64, 0, len(logits))
	for k, legal := range mask {
		if legal {
			allowed = append(allowed, logits[k])
		}
	}
	if len(allowed) == 0 {
		return 0, 0, fmt.Errorf("sampleAction: no legal actions")
	}

	norm := floats.LogSumExp(allowed)
	weights := make([]float64, len(logits))
	for k, legal := range mask {
		if legal {
			weights[k] = math.Exp(logits[k] - norm)
		}
	}

	dist := distuv.NewCategorical(weights, src)
	action := int(dist.Rand())
	return action, logits[action] - norm, nil
}

// liveIndices returns the indices of the trajectories that have not
// yet terminated
func liveIndices(done []bool) []int {
	live := make([]int, 0, len(done))
	for i, d := range done {
		if !d {
			live = append(live, i)
		}
	}
	return live
}

// gatherStates builds the one dimensional batch of the selected states
func gatherStates(current []float64, indices []int, dim int,
	env environment.Environment, backward bool) (states.Batch, error) {
	backing := make([]float64, len(indices)*dim)
	for j, i := range indices {
		copy(backing[j*dim:(j+1)*dim], current[i*dim:(i+1)*dim])
	}
	return states.NewDense([]int{len(indices)}, backing, env.S0(), env.SF(),
		backward)
}

// stackStates builds the (len(rows), n) state grid from per-step rows
func stackStates(rows [][]float64, n, dim int,
	env environment.Environment, backward bool) (states.Batch, error) {
	if n == 0 {
		return env.EmptyStates(backward), nil
	}

	backing := make([]float64, 0, len(rows)*n*dim)
	for _, row := range rows {
		backing = append(backing, row...)
	}
	return states.NewDense([]int{len(rows), n}, backing, env.S0(), env.SF(),
		backward)
}

// paddingRow returns an action row of n padding sentinels
func paddingRow(n int) []int {
	row := make([]int, n)
	for i := range row {
		row[i] = container.PaddingAction
	}
	return row
}

func snapshot(src []float64) []float64 {
	return append([]float64(nil), src...)
}
