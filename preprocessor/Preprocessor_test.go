package preprocessor_test

import (
	"testing"

	"github.com/samuelfneumann/gflownet/environment/hypergrid"
	"github.com/samuelfneumann/gflownet/preprocessor"
	"github.com/samuelfneumann/gflownet/states"
)

func TestIdentityPreprocess(t *testing.T) {
	env, err := hypergrid.New(2, 4, hypergrid.DefaultR0, hypergrid.DefaultR1,
		hypergrid.DefaultR2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	identity := preprocessor.NewIdentity(env)
	if identity.OutputDim() != 2 {
		t.Fatalf("outputDim: got %v, want 2", identity.OutputDim())
	}

	backing := []float64{0, 0, 1, 2, 3, 3}
	batch, err := states.NewDense([]int{3}, backing, env.S0(), env.SF(),
		false)
	if err != nil {
		t.Fatalf("newDense: %v", err)
	}

	out, err := identity.Preprocess(batch)
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}

	shape := out.Shape()
	if shape[0] != 3 || shape[1] != 2 {
		t.Fatalf("preprocess: illegal shape %v", shape)
	}

	data := out.Data().([]float64)
	for i := range backing {
		if data[i] != backing[i] {
			t.Errorf("preprocess: entry %v: got %v, want %v", i, data[i],
				backing[i])
		}
	}
}

func TestIdentityRejectsWrongDimension(t *testing.T) {
	env, err := hypergrid.New(3, 4, hypergrid.DefaultR0, hypergrid.DefaultR1,
		hypergrid.DefaultR2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	identity := preprocessor.NewIdentity(env)

	narrow, err := states.NewDense([]int{1}, []float64{0, 0},
		[]float64{0, 0}, []float64{-1, -1}, false)
	if err != nil {
		t.Fatalf("newDense: %v", err)
	}
	if _, err := identity.Preprocess(narrow); err == nil {
		t.Error("preprocess: expected an error for a narrower state batch")
	}
}
