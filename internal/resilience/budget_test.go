package resilience

import "testing"

func TestNewBudget_Default(t *testing.T) {
	b := NewBudget(0)
	if b.max != defaultBudgetMax {
		t.Errorf("max = %d, want %d", b.max, defaultBudgetMax)
	}
}

func TestBudget_ExhaustsAtMax(t *testing.T) {
	b := NewBudget(3)

	for i := range 2 {
		b.Record()
		if b.Exhausted() {
			t.Fatalf("exhausted after %d errors, want 3", i+1)
		}
	}
	b.Record()
	if !b.Exhausted() {
		t.Error("expected budget to be exhausted after 3 errors")
	}
	if b.Used() != 3 {
		t.Errorf("Used() = %d, want 3", b.Used())
	}
}

func TestBudget_ResetClearsCount(t *testing.T) {
	b := NewBudget(2)
	b.Record()
	b.Record()
	if !b.Exhausted() {
		t.Fatal("expected budget to be exhausted")
	}

	b.Reset()
	if b.Exhausted() {
		t.Error("reset budget must not be exhausted")
	}
	if b.Used() != 0 {
		t.Errorf("Used() = %d, want 0", b.Used())
	}
}
