package container

import (
	"fmt"

	"github.com/samuelfneumann/gflownet/environment"
	"github.com/samuelfneumann/gflownet/states"
)

// InvalidReward marks the reward entries of non-terminal transitions
const InvalidReward float64 = -1.0

// Transitions is a flattened, padding-free view over a batch of
// trajectories: one (state, action, next state, done flag) tuple per
// real step. A Transitions batch owns freshly allocated copies of its
// data; mutating it cannot corrupt the trajectories it came from.
type Transitions struct {
	env environment.Environment

	states     states.Batch // 1-dimensional
	actions    []int
	nextStates states.Batch // 1-dimensional
	isDone     []bool
	isBackward bool

	// rewards holds, per transition, the terminal reward of the owning
	// trajectory on terminal transitions and InvalidReward elsewhere.
	// Nil when the source trajectories carried no cached rewards.
	rewards []float64
}

// TransitionsConfig holds the fields of a Transitions batch
type TransitionsConfig struct {
	States     states.Batch
	Actions    []int
	NextStates states.Batch
	IsDone     []bool
	IsBackward bool
	Rewards    []float64
}

// NewTransitions creates and returns a new Transitions batch over env
// with the fields of c. All parallel fields must have equal length.
func NewTransitions(env environment.Environment,
	c TransitionsConfig) (*Transitions, error) {
	if env == nil {
		return nil, fmt.Errorf("newTransitions: no environment given")
	}
	if c.States == nil || c.NextStates == nil {
		return nil, fmt.Errorf("newTransitions: no states given")
	}

	n := c.States.Len()
	if c.NextStates.Len() != n || len(c.Actions) != n || len(c.IsDone) != n {
		return nil, fmt.Errorf("newTransitions: parallel fields disagree "+
			"on length \n\tstates(%v)\n\tnext states(%v)\n\tactions(%v)"+
			"\n\tis done(%v)", n, c.NextStates.Len(), len(c.Actions),
			len(c.IsDone))
	}
	if c.Rewards != nil && len(c.Rewards) != n {
		return nil, fmt.Errorf("newTransitions: illegal rewards length "+
			"\n\twant(%v)\n\thave(%v)", n, len(c.Rewards))
	}

	isDone := make([]bool, n)
	copy(isDone, c.IsDone)

	return &Transitions{
		env:        env,
		states:     c.States,
		actions:    copyInts(c.Actions),
		nextStates: c.NextStates,
		isDone:     isDone,
		isBackward: c.IsBackward,
		rewards:    copyFloats(c.Rewards),
	}, nil
}

// Len returns the number of transitions in the batch
func (t *Transitions) Len() int {
	return len(t.actions)
}

// IsBackward returns whether the batch was derived from backward
// trajectories
func (t *Transitions) IsBackward() bool {
	return t.isBackward
}

// Env returns the environment the transitions were taken in
func (t *Transitions) Env() environment.Environment {
	return t.env
}

// States returns the batch of source states, one per transition
func (t *Transitions) States() states.Batch {
	return t.states
}

// NextStates returns the batch of successor states, one per transition
func (t *Transitions) NextStates() states.Batch {
	return t.nextStates
}

// Actions returns a copy of the per-transition actions
func (t *Transitions) Actions() []int {
	return copyInts(t.actions)
}

// IsDone returns, per transition, whether it is the last real step of
// its trajectory
func (t *Transitions) IsDone() []bool {
	out := make([]bool, len(t.isDone))
	copy(out, t.isDone)
	return out
}

// Rewards returns the per-transition rewards, if the source
// trajectories cached them. The returned error satisfies IsNoRewards
// when they did not; no reward is ever fabricated.
func (t *Transitions) Rewards() ([]float64, error) {
	if t.rewards == nil {
		return nil, &ContainerError{Op: "rewards", Err: errNoRewards}
	}
	return copyFloats(t.rewards), nil
}

// ToTransitions derives the padding-free transition view of the batch.
// Every (time, trajectory) cell holding a real action becomes one
// transition; cells past a trajectory's termination are excluded by
// construction, so the view never contains a padding-to-padding step.
func (t *Trajectories) ToTransitions() (*Transitions, error) {
	n := t.Len()
	steps := t.actionRows

	if n == 0 {
		var rewards []float64
		if t.rewards != nil && !t.isBackward {
			rewards = []float64{}
		}
		return NewTransitions(t.env, TransitionsConfig{
			States:     t.env.EmptyStates(t.isBackward),
			NextStates: t.env.EmptyStates(t.isBackward),
			IsBackward: t.isBackward,
			Rewards:    rewards,
		})
	}

	head, err := t.states.SliceTime(0, steps)
	if err != nil {
		return nil, fmt.Errorf("toTransitions: %v", err)
	}
	tail, err := t.states.SliceTime(1, steps+1)
	if err != nil {
		return nil, fmt.Errorf("toTransitions: %v", err)
	}

	mask := make([]bool, steps*n)
	actions := make([]int, 0, steps*n)
	owner := make([]int, 0, steps*n) // owning trajectory per transition
	for flat, action := range t.actions {
		if action != PaddingAction {
			mask[flat] = true
			actions = append(actions, action)
			owner = append(owner, flat%n)
		}
	}

	source, err := head.MaskSelect(mask)
	if err != nil {
		return nil, fmt.Errorf("toTransitions: %v", err)
	}
	next, err := tail.MaskSelect(mask)
	if err != nil {
		return nil, fmt.Errorf("toTransitions: %v", err)
	}

	// A transition is done iff it steps into the direction's terminal
	// sentinel: the sink state forward, the initial state backward
	var isDone []bool
	if t.isBackward {
		isDone = next.IsInitial()
	} else {
		isDone = next.IsSink()
	}

	var rewards []float64
	if t.rewards != nil && !t.isBackward {
		rewards = make([]float64, len(actions))
		for j := range rewards {
			if isDone[j] {
				rewards[j] = t.rewards[owner[j]]
			} else {
				rewards[j] = InvalidReward
			}
		}
	}

	return NewTransitions(t.env, TransitionsConfig{
		States:     source,
		Actions:    actions,
		NextStates: next,
		IsDone:     isDone,
		IsBackward: t.isBackward,
		Rewards:    rewards,
	})
}
