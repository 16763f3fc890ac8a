package container

import "errors"

// ContainerError implements errors unique to trajectory and transition
// containers.
type ContainerError struct {
	Op  string
	Err error
}

// Error satisfies the error interface
func (e *ContainerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

var errNoRewards error = errors.New("rewards unavailable for backward " +
	"trajectories")

// IsNoRewards returns whether or not an error reports that rewards
// were requested on a batch that cannot provide them.
//
// Backward trajectory and transition batches never compute rewards
// lazily; rewards are available on them only if the batch was
// constructed with cached rewards.
func IsNoRewards(err error) bool {
	if containerErr, ok := err.(*ContainerError); ok {
		err = containerErr.Err
	}
	return err == errNoRewards
}
