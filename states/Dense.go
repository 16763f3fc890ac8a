package states

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"
)

// Dense is a Batch backed by a flat slice of float64, for environments
// whose states are fixed-length real vectors. A Dense batch knows the
// sentinel vectors s0 and sf of its environment and which of the two
// it pads with: forward trajectory batches pad with sf, backward
// trajectory batches pad with s0.
type Dense struct {
	data  []float64
	shape []int
	dim   int

	s0 []float64
	sf []float64

	// padInitial selects s0 (true) or sf (false) as the padding state
	padInitial bool
}

// NewDense returns a new Dense batch over backing, which must hold
// prod(batchShape) states of len(s0) contiguous float64 each, in
// time-major order. The backing is copied.
func NewDense(batchShape []int, backing, s0, sf []float64,
	padWithInitial bool) (*Dense, error) {
	if len(batchShape) != 1 && len(batchShape) != 2 {
		return nil, fmt.Errorf("newDense: batch shape must have 1 or 2 "+
			"dimensions, got %v", len(batchShape))
	}
	if len(s0) == 0 || len(s0) != len(sf) {
		return nil, fmt.Errorf("newDense: s0 and sf must be non-empty and "+
			"of equal length \n\ts0: %v \n\tsf: %v", len(s0), len(sf))
	}

	size := 1
	for _, n := range batchShape {
		if n < 0 {
			return nil, fmt.Errorf("newDense: illegal batch shape %v",
				batchShape)
		}
		size *= n
	}
	if len(backing) != size*len(s0) {
		return nil, fmt.Errorf("newDense: illegal backing length "+
			"\n\twant(%v)\n\thave(%v)", size*len(s0), len(backing))
	}

	data := make([]float64, len(backing))
	copy(data, backing)

	shape := make([]int, len(batchShape))
	copy(shape, batchShape)

	return &Dense{
		data:       data,
		shape:      shape,
		dim:        len(s0),
		s0:         copyState(s0),
		sf:         copyState(sf),
		padInitial: padWithInitial,
	}, nil
}

// FullDense returns a new Dense batch with every state set to fill
func FullDense(batchShape []int, fill, s0, sf []float64,
	padWithInitial bool) (*Dense, error) {
	if len(fill) != len(s0) {
		return nil, fmt.Errorf("fullDense: illegal fill state length "+
			"\n\twant(%v)\n\thave(%v)", len(s0), len(fill))
	}

	size := 1
	for _, n := range batchShape {
		size *= n
	}
	backing := make([]float64, size*len(fill))
	for i := 0; i < size; i++ {
		copy(backing[i*len(fill):(i+1)*len(fill)], fill)
	}
	return NewDense(batchShape, backing, s0, sf, padWithInitial)
}

// FromTensor returns a new Dense batch over the data of t, whose last
// axis must be the state dimension and whose leading axes form the
// batch shape. The tensor's backing is copied.
func FromTensor(t *tensor.Dense, s0, sf []float64,
	padWithInitial bool) (*Dense, error) {
	if t.Dtype() != tensor.Float64 {
		return nil, fmt.Errorf("fromTensor: tensor must have dtype "+
			"float64, got %v", t.Dtype())
	}
	shape := t.Shape()
	if len(shape) < 2 {
		return nil, fmt.Errorf("fromTensor: tensor must have at least 2 "+
			"axes, got %v", len(shape))
	}
	if shape[len(shape)-1] != len(s0) {
		return nil, fmt.Errorf("fromTensor: illegal state dimension "+
			"\n\twant(%v)\n\thave(%v)", len(s0), shape[len(shape)-1])
	}
	return NewDense(shape[:len(shape)-1], t.Data().([]float64), s0, sf,
		padWithInitial)
}

// Tensor returns the batch as a dense tensor of shape
// (batch shape..., state dim), copying the underlying data
func (d *Dense) Tensor() (*tensor.Dense, error) {
	if d.Len() == 0 {
		return nil, fmt.Errorf("tensor: cannot create a tensor from an " +
			"empty batch")
	}
	backing := make([]float64, len(d.data))
	copy(backing, d.data)

	shape := make([]int, 0, len(d.shape)+1)
	shape = append(shape, d.shape...)
	shape = append(shape, d.dim)

	return tensor.New(
		tensor.WithShape(shape...),
		tensor.WithBacking(backing),
	), nil
}

// BatchShape returns the batch dimensions of the Dense batch
func (d *Dense) BatchShape() []int {
	shape := make([]int, len(d.shape))
	copy(shape, d.shape)
	return shape
}

// Len returns the total number of states in the batch
func (d *Dense) Len() int {
	size := 1
	for _, n := range d.shape {
		size *= n
	}
	return size
}

// StateDim returns the length of a single state vector
func (d *Dense) StateDim() int {
	return d.dim
}

// PadsWithInitial returns whether the batch pads with s0 (backward
// trajectories) rather than sf (forward trajectories)
func (d *Dense) PadsWithInitial() bool {
	return d.padInitial
}

// At returns a copy of the state vector at flat index i
func (d *Dense) At(i int) []float64 {
	return copyState(d.data[i*d.dim : (i+1)*d.dim])
}

// IsInitial returns which states of the batch equal s0
func (d *Dense) IsInitial() []bool {
	return d.equals(d.s0)
}

// IsSink returns which states of the batch equal sf
func (d *Dense) IsSink() []bool {
	return d.equals(d.sf)
}

// equals returns which states of the batch equal the state vector s
func (d *Dense) equals(s []float64) []bool {
	out := make([]bool, d.Len())
	for i := range out {
		out[i] = floats.Equal(d.data[i*d.dim:(i+1)*d.dim], s)
	}
	return out
}

// SliceTime returns the sub-batch of time steps [from, to)
func (d *Dense) SliceTime(from, to int) (Batch, error) {
	if len(d.shape) != 2 {
		return nil, fmt.Errorf("sliceTime: batch must be 2-dimensional")
	}
	if from < 0 || to < from || to > d.shape[0] {
		return nil, fmt.Errorf("sliceTime: illegal range [%v, %v) for %v "+
			"time steps", from, to, d.shape[0])
	}

	n := d.shape[1]
	out := d.emptyLike([]int{to - from, n}, d.padInitial)
	copy(out.data, d.data[from*n*d.dim:to*n*d.dim])
	return out, nil
}

// SelectTrajectories returns the sub-batch holding only the given
// trajectory columns
func (d *Dense) SelectTrajectories(indices []int) (Batch, error) {
	if len(d.shape) != 2 {
		return nil, fmt.Errorf("selectTrajectories: batch must be " +
			"2-dimensional")
	}

	rows, cols := d.shape[0], d.shape[1]
	out := d.emptyLike([]int{rows, len(indices)}, d.padInitial)
	for j, index := range indices {
		if index < 0 || index >= cols {
			return nil, fmt.Errorf("selectTrajectories: index %v out of "+
				"range for %v trajectories", index, cols)
		}
		for t := 0; t < rows; t++ {
			src := (t*cols + index) * d.dim
			dst := (t*len(indices) + j) * d.dim
			copy(out.data[dst:dst+d.dim], d.data[src:src+d.dim])
		}
	}
	return out, nil
}

// GatherTimes returns the one dimensional batch of states at
// (times[i], i) for each trajectory i
func (d *Dense) GatherTimes(times []int) (Batch, error) {
	if len(d.shape) != 2 {
		return nil, fmt.Errorf("gatherTimes: batch must be 2-dimensional")
	}

	rows, cols := d.shape[0], d.shape[1]
	if len(times) != cols {
		return nil, fmt.Errorf("gatherTimes: illegal times length "+
			"\n\twant(%v)\n\thave(%v)", cols, len(times))
	}

	out := d.emptyLike([]int{cols}, d.padInitial)
	for i, t := range times {
		if t < 0 || t >= rows {
			return nil, fmt.Errorf("gatherTimes: time %v out of range for "+
				"%v time steps", t, rows)
		}
		src := (t*cols + i) * d.dim
		copy(out.data[i*d.dim:(i+1)*d.dim], d.data[src:src+d.dim])
	}
	return out, nil
}

// ExtendWith returns a new batch holding the trajectories of d
// followed by those of other, after aligning both along the time axis
// with their padding state
func (d *Dense) ExtendWith(other Batch) (Batch, error) {
	o, ok := other.(*Dense)
	if !ok {
		return nil, fmt.Errorf("extendWith: incompatible state batch "+
			"implementation %T", other)
	}
	if len(d.shape) != 2 || len(o.shape) != 2 {
		return nil, fmt.Errorf("extendWith: batches must be 2-dimensional")
	}
	if d.dim != o.dim {
		return nil, fmt.Errorf("extendWith: illegal state dimension "+
			"\n\twant(%v)\n\thave(%v)", d.dim, o.dim)
	}
	if d.padInitial != o.padInitial {
		return nil, fmt.Errorf("extendWith: cannot extend a batch padded " +
			"with one sentinel by a batch padded with the other")
	}

	rows := d.shape[0]
	if o.shape[0] > rows {
		rows = o.shape[0]
	}
	left, right := d.shape[1], o.shape[1]

	out := d.emptyLike([]int{rows, left + right}, d.padInitial)
	pad := d.padState()
	for t := 0; t < rows; t++ {
		for i := 0; i < left; i++ {
			dst := (t*(left+right) + i) * d.dim
			if t < d.shape[0] {
				src := (t*left + i) * d.dim
				copy(out.data[dst:dst+d.dim], d.data[src:src+d.dim])
			} else {
				copy(out.data[dst:dst+d.dim], pad)
			}
		}
		for i := 0; i < right; i++ {
			dst := (t*(left+right) + left + i) * d.dim
			if t < o.shape[0] {
				src := (t*right + i) * d.dim
				copy(out.data[dst:dst+d.dim], o.data[src:src+d.dim])
			} else {
				copy(out.data[dst:dst+d.dim], pad)
			}
		}
	}
	return out, nil
}

// ReverseTime reverses each trajectory in time, flipping the padding
// direction of the result
func (d *Dense) ReverseTime(whenIsDone []int) (Batch, error) {
	if len(d.shape) != 2 {
		return nil, fmt.Errorf("reverseTime: batch must be 2-dimensional")
	}

	rows, cols := d.shape[0], d.shape[1]
	if len(whenIsDone) != cols {
		return nil, fmt.Errorf("reverseTime: illegal whenIsDone length "+
			"\n\twant(%v)\n\thave(%v)", cols, len(whenIsDone))
	}

	maxDone := 0
	for i, done := range whenIsDone {
		if done < 0 || done >= rows {
			return nil, fmt.Errorf("reverseTime: whenIsDone[%v] = %v out "+
				"of range for %v time steps", i, done, rows)
		}
		if done > maxDone {
			maxDone = done
		}
	}

	outRows := maxDone + 2
	if cols == 0 {
		outRows = 0
	}

	out := d.emptyLike([]int{outRows, cols}, !d.padInitial)
	pad := out.padState()
	for i := 0; i < cols; i++ {
		for t := 0; t < outRows; t++ {
			dst := (t*cols + i) * d.dim
			if t <= whenIsDone[i] {
				src := ((whenIsDone[i]-t)*cols + i) * d.dim
				copy(out.data[dst:dst+d.dim], d.data[src:src+d.dim])
			} else {
				copy(out.data[dst:dst+d.dim], pad)
			}
		}
	}
	return out, nil
}

// Flatten returns the one dimensional batch over the same states in
// flat order
func (d *Dense) Flatten() Batch {
	out := d.Clone().(*Dense)
	out.shape = []int{d.Len()}
	return out
}

// MaskSelect returns the one dimensional batch of states whose mask
// entry is true
func (d *Dense) MaskSelect(mask []bool) (Batch, error) {
	if len(mask) != d.Len() {
		return nil, fmt.Errorf("maskSelect: illegal mask length "+
			"\n\twant(%v)\n\thave(%v)", d.Len(), len(mask))
	}

	count := 0
	for _, keep := range mask {
		if keep {
			count++
		}
	}

	out := d.emptyLike([]int{count}, d.padInitial)
	j := 0
	for i, keep := range mask {
		if keep {
			copy(out.data[j*d.dim:(j+1)*d.dim], d.data[i*d.dim:(i+1)*d.dim])
			j++
		}
	}
	return out, nil
}

// Clone returns a deep copy of the batch
func (d *Dense) Clone() Batch {
	out := d.emptyLike(d.shape, d.padInitial)
	copy(out.data, d.data)
	return out
}

// padState returns the state vector the batch pads with
func (d *Dense) padState() []float64 {
	if d.padInitial {
		return d.s0
	}
	return d.sf
}

// emptyLike returns an uninitialized Dense batch sharing d's
// environment sentinels, with the given batch shape and pad direction
func (d *Dense) emptyLike(batchShape []int, padInitial bool) *Dense {
	size := 1
	for _, n := range batchShape {
		size *= n
	}
	shape := make([]int, len(batchShape))
	copy(shape, batchShape)

	return &Dense{
		data:       make([]float64, size*d.dim),
		shape:      shape,
		dim:        d.dim,
		s0:         copyState(d.s0),
		sf:         copyState(d.sf),
		padInitial: padInitial,
	}
}

func copyState(s []float64) []float64 {
	out := make([]float64, len(s))
	copy(out, s)
	return out
}
