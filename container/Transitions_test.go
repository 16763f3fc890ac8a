package container_test

import (
	"testing"

	"github.com/samuelfneumann/gflownet/container"
)

func TestToTransitionsDropsPadding(t *testing.T) {
	env := gridEnv(t)
	batch := forwardBatch(t, env, container.Config{})

	transitions, err := batch.ToTransitions()
	if err != nil {
		t.Fatalf("toTransitions: %v", err)
	}

	// One transition per real action across the batch
	if transitions.Len() != 7 {
		t.Fatalf("toTransitions: got %v transitions, want 7",
			transitions.Len())
	}

	// Transitions appear in flat time-major order, padding excluded
	wantActions := []int{0, 0, 2, 2, 1, 1, 2}
	if !sameInts(transitions.Actions(), wantActions) {
		t.Errorf("toTransitions: actions: got %v, want %v",
			transitions.Actions(), wantActions)
	}

	// No source state is ever the sink sentinel
	for i, sink := range transitions.States().IsSink() {
		if sink {
			t.Errorf("toTransitions: transition %v starts at the sink", i)
		}
	}
}

func TestToTransitionsDoneFlags(t *testing.T) {
	env := gridEnv(t)
	batch := forwardBatch(t, env, container.Config{})

	transitions, err := batch.ToTransitions()
	if err != nil {
		t.Fatalf("toTransitions: %v", err)
	}

	wantDone := []bool{false, false, true, true, false, false, true}
	isDone := transitions.IsDone()
	for i := range wantDone {
		if isDone[i] != wantDone[i] {
			t.Errorf("toTransitions: isDone[%v]: got %v, want %v", i,
				isDone[i], wantDone[i])
		}
	}
}

func TestToTransitionsAttachesOwnersRewards(t *testing.T) {
	env := gridEnv(t)
	batch := forwardBatch(t, env, container.Config{
		Rewards: []float64{10, 20, 30},
	})

	transitions, err := batch.ToTransitions()
	if err != nil {
		t.Fatalf("toTransitions: %v", err)
	}

	rewards, err := transitions.Rewards()
	if err != nil {
		t.Fatalf("toTransitions: rewards: %v", err)
	}
	want := []float64{-1, -1, 30, 10, -1, -1, 20}
	for i := range want {
		if rewards[i] != want[i] {
			t.Errorf("toTransitions: rewards[%v]: got %v, want %v", i,
				rewards[i], want[i])
		}
	}
}

// Two trajectories of equal length must each receive their own reward,
// not share one keyed on the length
func TestToTransitionsRewardsWithEqualLengths(t *testing.T) {
	env := gridEnv(t)

	batch, err := container.New(env, container.Config{
		States: stateGrid(t, env, [][][]float64{
			{{0, 0}, {0, 0}},
			{{1, 0}, {0, 1}},
			{{-1, -1}, {-1, -1}},
		}, false),
		Actions: [][]int{
			{0, 1},
			{2, 2},
		},
		WhenIsDone: []int{2, 2},
		Rewards:    []float64{2, 3},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	transitions, err := batch.ToTransitions()
	if err != nil {
		t.Fatalf("toTransitions: %v", err)
	}
	rewards, err := transitions.Rewards()
	if err != nil {
		t.Fatalf("toTransitions: rewards: %v", err)
	}

	want := []float64{-1, -1, 2, 3}
	for i := range want {
		if rewards[i] != want[i] {
			t.Errorf("toTransitions: rewards[%v]: got %v, want %v", i,
				rewards[i], want[i])
		}
	}
}

func TestToTransitionsRewardsAbsentWithoutCache(t *testing.T) {
	env := gridEnv(t)
	batch := forwardBatch(t, env, container.Config{})

	transitions, err := batch.ToTransitions()
	if err != nil {
		t.Fatalf("toTransitions: %v", err)
	}
	if _, err := transitions.Rewards(); !container.IsNoRewards(err) {
		t.Errorf("toTransitions: rewards: got %v, want a no-rewards error",
			err)
	}
}

func TestBackwardToTransitions(t *testing.T) {
	env := gridEnv(t)
	batch := backwardBatch(t, env, container.Config{})

	transitions, err := batch.ToTransitions()
	if err != nil {
		t.Fatalf("toTransitions: %v", err)
	}

	if !transitions.IsBackward() {
		t.Error("toTransitions: expected a backward batch")
	}
	if transitions.Len() != 3 {
		t.Fatalf("toTransitions: got %v transitions, want 3",
			transitions.Len())
	}

	// A backward transition is done when it reaches the initial state
	wantDone := []bool{false, true, true}
	isDone := transitions.IsDone()
	for i := range wantDone {
		if isDone[i] != wantDone[i] {
			t.Errorf("toTransitions: isDone[%v]: got %v, want %v", i,
				isDone[i], wantDone[i])
		}
	}

	if _, err := transitions.Rewards(); !container.IsNoRewards(err) {
		t.Errorf("toTransitions: rewards: got %v, want a no-rewards error",
			err)
	}
}

func TestNewTransitionsRejectsMismatchedFields(t *testing.T) {
	env := gridEnv(t)
	batch := forwardBatch(t, env, container.Config{})

	transitions, err := batch.ToTransitions()
	if err != nil {
		t.Fatalf("toTransitions: %v", err)
	}

	_, err = container.NewTransitions(env, container.TransitionsConfig{
		States:     transitions.States(),
		Actions:    transitions.Actions()[:3],
		NextStates: transitions.NextStates(),
		IsDone:     transitions.IsDone(),
	})
	if err == nil {
		t.Error("newTransitions: expected an error for mismatched field " +
			"lengths")
	}
}
