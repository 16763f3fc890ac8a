package intutils

import "testing"

func TestMin(t *testing.T) {
	if got := Min(3, -1, 2); got != -1 {
		t.Errorf("min: got %v, want -1", got)
	}
	if got := Min(7); got != 7 {
		t.Errorf("min: got %v, want 7", got)
	}
}

func TestMax(t *testing.T) {
	if got := Max(3, -1, 2); got != 3 {
		t.Errorf("max: got %v, want 3", got)
	}
	if got := Max(-7); got != -7 {
		t.Errorf("max: got %v, want -7", got)
	}
}
