package loss

import "errors"

// LossError implements errors unique to training objectives.
type LossError struct {
	Op  string
	Err error
}

// Error satisfies the error interface
func (e *LossError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

var errBackwardTransitions error = errors.New("backward transitions are " +
	"not supported")

var errNaN = errors.New("loss is not a number")

var errNonPositiveReward = errors.New("terminal reward must be strictly " +
	"positive")

var errStateActionMismatch = errors.New("valid states and valid actions " +
	"disagree in count")

// IsBackwardTransitions returns whether or not an error reports that a
// backward transition batch was passed to a loss defined on forward
// transitions only.
func IsBackwardTransitions(err error) bool {
	return unwrap(err) == errBackwardTransitions
}

// IsNaN returns whether or not an error reports that a computed loss
// was not a number.
//
// A NaN loss signals upstream numerical corruption, such as a
// malformed mask or an invalid reward; it is never recovered from or
// masked.
func IsNaN(err error) bool {
	return unwrap(err) == errNaN
}

// IsNonPositiveReward returns whether or not an error reports that a
// terminal transition carried a zero or negative reward, whose log is
// undefined.
func IsNonPositiveReward(err error) bool {
	return unwrap(err) == errNonPositiveReward
}

// IsStateActionMismatch returns whether or not an error reports that
// the count of non-sink states in a transition batch differs from the
// count of non-padding actions. Such a mismatch is an internal
// invariant violation of the batch, not a user error.
func IsStateActionMismatch(err error) bool {
	return unwrap(err) == errStateActionMismatch
}

func unwrap(err error) error {
	if lossErr, ok := err.(*LossError); ok {
		return lossErr.Err
	}
	return err
}
