package picker

import "testing"

func TestBudgetSpendAndReset(t *testing.T) {
	b := NewBudget(2)
	if b.Allowed() != 2 || b.Used() != 0 {
		t.Fatalf("fresh budget allowed=%d used=%d", b.Allowed(), b.Used())
	}
	b.Spend()
	b.Spend()
	if !b.Exhausted() {
		t.Fatalf("budget must be exhausted after two spends")
	}
	b.Reset(3)
	if b.Allowed() != 3 || b.Used() != 0 || b.Exhausted() {
		t.Fatalf("reset budget allowed=%d used=%d", b.Allowed(), b.Used())
	}
}

func TestBudgetNegativeAllowance(t *testing.T) {
	b := NewBudget(-5)
	if b.Allowed() != 0 {
		t.Fatalf("negative allowance must clamp to 0, got %d", b.Allowed())
	}
	if !b.Exhausted() {
		t.Fatalf("zero allowance starts exhausted")
	}
	b.Reset(-1)
	if b.Allowed() != 0 {
		t.Fatalf("negative reset must clamp to 0, got %d", b.Allowed())
	}
}
