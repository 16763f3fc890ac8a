// Package loss implements training objectives for generative flow
// networks.
//
// The objectives consume batches of transitions or trajectories
// together with the learned estimators they constrain: policy scorers
// mapping state batches to per-action logits and flow estimators
// mapping state batches to per-state log flows. The estimators are
// opaque callables; how their parameters are represented and updated
// is outside this package.
package loss

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/samuelfneumann/gflownet/container"
	"github.com/samuelfneumann/gflownet/environment"
	"github.com/samuelfneumann/gflownet/states"
)

// Scorer maps a batch of states to one row of real-valued action
// logits per state.
//
// A forward policy scorer produces NumActions() columns, the last of
// which scores the exit action. A backward policy scorer produces
// NumActions()-1 columns: the backward policy is never queried for the
// exit action.
type Scorer interface {
	Score(b states.Batch) (*mat.Dense, error)
}

// FlowEstimator maps a batch of states to the log of the unnormalized
// flow through each state
type FlowEstimator interface {
	LogFlow(b states.Batch) ([]float64, error)
}

// DetailedBalance scores transition batches against the detailed
// balance constraint: for every edge s → s' of the flow network,
//
//	log P_F(a|s) + log F(s) = log P_B(a|s') + log F(s')
//
// with log F(s') replaced by the log terminal reward when s' ends the
// trajectory. The loss is the mean squared residual of this identity
// over the batch.
type DetailedBalance struct {
	env      environment.Environment
	forward  Scorer
	backward Scorer
	logF     FlowEstimator
}

// NewDetailedBalance creates and returns a new DetailedBalance loss
// over the given estimators
func NewDetailedBalance(env environment.Environment, forward,
	backward Scorer, logF FlowEstimator) (*DetailedBalance, error) {
	if env == nil {
		return nil, fmt.Errorf("newDetailedBalance: no environment given")
	}
	if forward == nil || backward == nil {
		return nil, fmt.Errorf("newDetailedBalance: no policy scorers given")
	}
	if logF == nil {
		return nil, fmt.Errorf("newDetailedBalance: no flow estimator given")
	}

	return &DetailedBalance{
		env:      env,
		forward:  forward,
		backward: backward,
		logF:     logF,
	}, nil
}

// Scores returns the per-transition forward log probabilities,
// backward log probabilities, and detailed balance residuals of a
// forward transition batch. The backward log probability of a terminal
// transition is reported as 0.
func (d *DetailedBalance) Scores(transitions *container.Transitions) (logPF,
	logPB, residuals []float64, err error) {
	if transitions.IsBackward() {
		return nil, nil, nil, &LossError{
			Op:  "scores",
			Err: errBackwardTransitions,
		}
	}

	numActions := d.env.NumActions()
	exit := numActions - 1

	// Transitions whose source state is the sink sentinel carry no
	// information; they are excluded here rather than masked later
	sink := transitions.States().IsSink()
	valid := make([]bool, len(sink))
	for i := range valid {
		valid[i] = !sink[i]
	}
	validStates, err := transitions.States().MaskSelect(valid)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("scores: %v", err)
	}

	validActions := make([]int, 0, transitions.Len())
	for _, action := range transitions.Actions() {
		if action != container.PaddingAction {
			validActions = append(validActions, action)
		}
	}

	if validStates.Len() != len(validActions) {
		return nil, nil, nil, &LossError{
			Op:  "scores",
			Err: errStateActionMismatch,
		}
	}
	if len(validActions) == 0 {
		return nil, nil, nil, fmt.Errorf("scores: no transitions to score")
	}

	logPF, err = gatherLogProbs(d.forward, validStates, validActions,
		numActions)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("scores: forward policy: %v", err)
	}

	logFSource, err := d.logF.LogFlow(validStates)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("scores: log flow: %v", err)
	}
	if len(logFSource) != validStates.Len() {
		return nil, nil, nil, fmt.Errorf("scores: log flow: illegal output "+
			"length \n\twant(%v)\n\thave(%v)", validStates.Len(),
			len(logFSource))
	}

	preds := make([]float64, len(logPF))
	floats.AddTo(preds, logPF, logFSource)

	// Non-terminal transitions need the backward policy and the flow
	// at the next state; sink-to-sink rows are flagged done and drop
	// out of this selection automatically
	isDone := transitions.IsDone()
	notDone := make([]bool, len(isDone))
	for i := range notDone {
		notDone[i] = !isDone[i]
	}
	nextStates, err := transitions.NextStates().MaskSelect(notDone)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("scores: %v", err)
	}

	nonExitActions := make([]int, 0, len(validActions))
	for _, action := range validActions {
		if action != exit {
			nonExitActions = append(nonExitActions, action)
		}
	}

	var backwardLogProbs []float64
	var logFNext []float64
	if nextStates.Len() > 0 {
		backwardLogProbs, err = gatherLogProbs(d.backward, nextStates,
			nonExitActions, numActions-1)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("scores: backward policy: %v",
				err)
		}

		logFNext, err = d.logF.LogFlow(nextStates)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("scores: log flow: %v", err)
		}
		if len(logFNext) != nextStates.Len() {
			return nil, nil, nil, fmt.Errorf("scores: log flow: illegal "+
				"output length \n\twant(%v)\n\thave(%v)", nextStates.Len(),
				len(logFNext))
		}
	}

	rewards, err := transitions.Rewards()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("scores: %v", err)
	}

	validIsDone := maskFilterBools(isDone, valid)
	validRewards := maskFilterFloats(rewards, valid)

	logPB = make([]float64, len(preds))
	targets := make([]float64, len(preds))
	next := 0
	for j := range targets {
		if validIsDone[j] {
			if validRewards[j] <= 0 {
				return nil, nil, nil, &LossError{
					Op:  "scores",
					Err: errNonPositiveReward,
				}
			}
			targets[j] = math.Log(validRewards[j])
			continue
		}

		if next >= len(backwardLogProbs) {
			return nil, nil, nil, &LossError{
				Op:  "scores",
				Err: errStateActionMismatch,
			}
		}
		logPB[j] = backwardLogProbs[next]
		targets[j] = backwardLogProbs[next] + logFNext[next]
		next++
	}
	if next != len(backwardLogProbs) {
		return nil, nil, nil, &LossError{
			Op:  "scores",
			Err: errStateActionMismatch,
		}
	}

	residuals = make([]float64, len(preds))
	floats.SubTo(residuals, preds, targets)

	return logPF, logPB, residuals, nil
}

// Loss returns the mean squared detailed balance residual of the
// batch. A loss that is not a number is reported as an error
// satisfying IsNaN and never returned as a value.
func (d *DetailedBalance) Loss(transitions *container.Transitions) (float64,
	error) {
	_, _, residuals, err := d.Scores(transitions)
	if err != nil {
		return 0, err
	}

	squared := make([]float64, len(residuals))
	for i, residual := range residuals {
		squared[i] = residual * residual
	}

	out := stat.Mean(squared, nil)
	if math.IsNaN(out) {
		return 0, &LossError{Op: "loss", Err: errNaN}
	}
	return out, nil
}

// gatherLogProbs scores the batch with the given scorer and returns
// the log-softmax of each logit row gathered at the corresponding
// action
func gatherLogProbs(scorer Scorer, b states.Batch, actions []int,
	numLogits int) ([]float64, error) {
	logits, err := scorer.Score(b)
	if err != nil {
		return nil, err
	}

	rows, cols := logits.Dims()
	if rows != b.Len() || cols != numLogits {
		return nil, fmt.Errorf("illegal logits shape \n\twant(%v x %v)"+
			"\n\thave(%v x %v)", b.Len(), numLogits, rows, cols)
	}
	if len(actions) != rows {
		return nil, fmt.Errorf("illegal actions length \n\twant(%v)"+
			"\n\thave(%v)", rows, len(actions))
	}

	out := make([]float64, rows)
	for j := 0; j < rows; j++ {
		if actions[j] < 0 || actions[j] >= cols {
			return nil, fmt.Errorf("action %v out of range for %v logits",
				actions[j], cols)
		}
		row := logits.RawRowView(j)
		out[j] = row[actions[j]] - floats.LogSumExp(row)
	}
	return out, nil
}

// maskFilterBools returns the entries of values whose mask entry is
// true
func maskFilterBools(values, mask []bool) []bool {
	out := make([]bool, 0, len(values))
	for i, keep := range mask {
		if keep {
			out = append(out, values[i])
		}
	}
	return out
}

// maskFilterFloats returns the entries of values whose mask entry is
// true
func maskFilterFloats(values []float64, mask []bool) []float64 {
	out := make([]float64, 0, len(values))
	for i, keep := range mask {
		if keep {
			out = append(out, values[i])
		}
	}
	return out
}
