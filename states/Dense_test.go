package states_test

import (
	"testing"

	"github.com/samuelfneumann/gflownet/states"
)

var s0 = []float64{0, 0}
var sf = []float64{-1, -1}

// grid returns a (len(rows), len(rows[0])) Dense batch from per-time
// rows of states
func grid(t *testing.T, rows [][][]float64, padWithInitial bool) *states.Dense {
	t.Helper()

	backing := make([]float64, 0)
	for _, row := range rows {
		for _, state := range row {
			backing = append(backing, state...)
		}
	}

	cols := 0
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	batch, err := states.NewDense([]int{len(rows), cols}, backing, s0, sf,
		padWithInitial)
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	return batch
}

func sameState(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDensePredicates(t *testing.T) {
	backing := []float64{0, 0, 1, 0, -1, -1}
	batch, err := states.NewDense([]int{3}, backing, s0, sf, false)
	if err != nil {
		t.Fatalf("newDense: %v", err)
	}

	wantInitial := []bool{true, false, false}
	wantSink := []bool{false, false, true}
	for i, initial := range batch.IsInitial() {
		if initial != wantInitial[i] {
			t.Errorf("isInitial: state %v: got %v, want %v", i, initial,
				wantInitial[i])
		}
	}
	for i, sink := range batch.IsSink() {
		if sink != wantSink[i] {
			t.Errorf("isSink: state %v: got %v, want %v", i, sink,
				wantSink[i])
		}
	}
}

func TestDenseSliceTimeAndSelect(t *testing.T) {
	batch := grid(t, [][][]float64{
		{{0, 0}, {0, 0}},
		{{1, 0}, {0, 1}},
		{{2, 0}, {0, 2}},
	}, false)

	sliced, err := batch.SliceTime(1, 3)
	if err != nil {
		t.Fatalf("sliceTime: %v", err)
	}
	if shape := sliced.BatchShape(); shape[0] != 2 || shape[1] != 2 {
		t.Fatalf("sliceTime: illegal shape %v", shape)
	}
	if !sameState(sliced.At(0), []float64{1, 0}) {
		t.Errorf("sliceTime: got %v, want [1 0]", sliced.At(0))
	}
	if !sameState(sliced.At(3), []float64{0, 2}) {
		t.Errorf("sliceTime: got %v, want [0 2]", sliced.At(3))
	}

	selected, err := batch.SelectTrajectories([]int{1})
	if err != nil {
		t.Fatalf("selectTrajectories: %v", err)
	}
	if shape := selected.BatchShape(); shape[0] != 3 || shape[1] != 1 {
		t.Fatalf("selectTrajectories: illegal shape %v", shape)
	}
	if !sameState(selected.At(2), []float64{0, 2}) {
		t.Errorf("selectTrajectories: got %v, want [0 2]", selected.At(2))
	}

	gathered, err := batch.GatherTimes([]int{2, 0})
	if err != nil {
		t.Fatalf("gatherTimes: %v", err)
	}
	if !sameState(gathered.At(0), []float64{2, 0}) {
		t.Errorf("gatherTimes: got %v, want [2 0]", gathered.At(0))
	}
	if !sameState(gathered.At(1), []float64{0, 0}) {
		t.Errorf("gatherTimes: got %v, want [0 0]", gathered.At(1))
	}
}

func TestDenseExtendWithAlignsTime(t *testing.T) {
	short := grid(t, [][][]float64{
		{{0, 0}},
		{{1, 0}},
	}, false)
	long := grid(t, [][][]float64{
		{{0, 0}},
		{{0, 1}},
		{{0, 2}},
	}, false)

	extended, err := short.ExtendWith(long)
	if err != nil {
		t.Fatalf("extendWith: %v", err)
	}
	if shape := extended.BatchShape(); shape[0] != 3 || shape[1] != 2 {
		t.Fatalf("extendWith: illegal shape %v", shape)
	}

	// The short operand's missing time step is padded with sf
	if !sameState(extended.At(2*2+0), sf) {
		t.Errorf("extendWith: padding: got %v, want %v", extended.At(4), sf)
	}
	if !sameState(extended.At(2*2+1), []float64{0, 2}) {
		t.Errorf("extendWith: got %v, want [0 2]", extended.At(5))
	}
	if !sameState(extended.At(1*2+0), []float64{1, 0}) {
		t.Errorf("extendWith: got %v, want [1 0]", extended.At(2))
	}
}

func TestDenseExtendWithRejectsMixedPadding(t *testing.T) {
	forward := grid(t, [][][]float64{{{0, 0}}}, false)
	backward := grid(t, [][][]float64{{{0, 0}}}, true)

	if _, err := forward.ExtendWith(backward); err == nil {
		t.Error("extendWith: expected an error extending across padding " +
			"directions")
	}
}

func TestDenseReverseTime(t *testing.T) {
	// Two backward trajectories: [x0 y0 s0] with 2 actions and
	// [x1 s0 s0] with 1 action
	batch := grid(t, [][][]float64{
		{{1, 1}, {0, 1}},
		{{1, 0}, {0, 0}},
		{{0, 0}, {0, 0}},
	}, true)

	reversed, err := batch.ReverseTime([]int{2, 1})
	if err != nil {
		t.Fatalf("reverseTime: %v", err)
	}

	if shape := reversed.BatchShape(); shape[0] != 4 || shape[1] != 2 {
		t.Fatalf("reverseTime: illegal shape %v", shape)
	}

	dense := reversed.(*states.Dense)
	if dense.PadsWithInitial() {
		t.Error("reverseTime: expected the result to pad with sf")
	}

	want := [][][]float64{
		{{0, 0}, {0, 0}},
		{{1, 0}, {0, 1}},
		{{1, 1}, {-1, -1}},
		{{-1, -1}, {-1, -1}},
	}
	for step := range want {
		for i := range want[step] {
			got := reversed.At(step*2 + i)
			if !sameState(got, want[step][i]) {
				t.Errorf("reverseTime: state (%v, %v): got %v, want %v",
					step, i, got, want[step][i])
			}
		}
	}
}

func TestDenseFlattenAndMaskSelect(t *testing.T) {
	batch := grid(t, [][][]float64{
		{{0, 0}, {1, 0}},
		{{-1, -1}, {1, 1}},
	}, false)

	flat := batch.Flatten()
	if shape := flat.BatchShape(); len(shape) != 1 || shape[0] != 4 {
		t.Fatalf("flatten: illegal shape %v", shape)
	}

	mask := flat.IsSink()
	for i := range mask {
		mask[i] = !mask[i]
	}
	kept, err := flat.MaskSelect(mask)
	if err != nil {
		t.Fatalf("maskSelect: %v", err)
	}
	if kept.Len() != 3 {
		t.Fatalf("maskSelect: got %v states, want 3", kept.Len())
	}
	if !sameState(kept.At(2), []float64{1, 1}) {
		t.Errorf("maskSelect: got %v, want [1 1]", kept.At(2))
	}
}

func TestDenseTensorRoundTrip(t *testing.T) {
	batch := grid(t, [][][]float64{
		{{0, 0}, {1, 0}},
		{{2, 0}, {1, 1}},
	}, false)

	tens, err := batch.Tensor()
	if err != nil {
		t.Fatalf("tensor: %v", err)
	}
	if shape := tens.Shape(); shape[0] != 2 || shape[1] != 2 || shape[2] != 2 {
		t.Fatalf("tensor: illegal shape %v", shape)
	}

	back, err := states.FromTensor(tens, s0, sf, false)
	if err != nil {
		t.Fatalf("fromTensor: %v", err)
	}
	if back.Len() != batch.Len() {
		t.Fatalf("fromTensor: got %v states, want %v", back.Len(),
			batch.Len())
	}
	for i := 0; i < batch.Len(); i++ {
		if !sameState(back.At(i), batch.At(i)) {
			t.Errorf("fromTensor: state %v: got %v, want %v", i, back.At(i),
				batch.At(i))
		}
	}
}

func TestDenseEmptyBatch(t *testing.T) {
	empty, err := states.NewDense([]int{0, 0}, nil, s0, sf, false)
	if err != nil {
		t.Fatalf("newDense: %v", err)
	}
	if empty.Len() != 0 {
		t.Errorf("len: got %v, want 0", empty.Len())
	}
	if got := len(empty.IsSink()); got != 0 {
		t.Errorf("isSink: got %v entries, want 0", got)
	}
}
