package resilience

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// newStringGroup builds a two-member group over plain strings so tests can
// observe which member handled a call.
func newStringGroup(cbCfg CircuitBreakerConfig) *FallbackGroup[string] {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{CircuitBreaker: cbCfg})
	fg.AddFallback("secondary", "secondary")
	return fg
}

func TestFallbackGroup_PrimaryHandlesCall(t *testing.T) {
	fg := newStringGroup(CircuitBreakerConfig{MaxFailures: 3})

	var handled []string
	err := fg.Execute(func(v string) error {
		handled = append(handled, v)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(handled) != 1 || handled[0] != "primary" {
		t.Fatalf("handled = %v, want the primary only", handled)
	}
}

func TestFallbackGroup_FailsOverInOrder(t *testing.T) {
	fg := newStringGroup(CircuitBreakerConfig{MaxFailures: 3})

	var handled []string
	err := fg.Execute(func(v string) error {
		handled = append(handled, v)
		if v == "primary" {
			return errUnavailable
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(handled) != 2 || handled[1] != "secondary" {
		t.Fatalf("handled = %v, want primary then secondary", handled)
	}
}

func TestFallbackGroup_AllMembersFail(t *testing.T) {
	fg := newStringGroup(CircuitBreakerConfig{MaxFailures: 3})

	err := fg.Execute(func(string) error { return errUnavailable })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !strings.Contains(err.Error(), "secondary") {
		t.Errorf("error %q should name the last member tried", err.Error())
	}
}

func TestFallbackGroup_SkipsTrippedMember(t *testing.T) {
	fg := newStringGroup(CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})

	// Trip the primary's breaker.
	for i := 0; i < 2; i++ {
		_ = fg.Execute(func(v string) error {
			if v == "primary" {
				return errUnavailable
			}
			return nil
		})
	}

	// With the primary open, fn must only ever see the secondary.
	var handled []string
	err := fg.Execute(func(v string) error {
		handled = append(handled, v)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(handled) != 1 || handled[0] != "secondary" {
		t.Fatalf("handled = %v, want the secondary only", handled)
	}
}

func TestExecuteWithResult(t *testing.T) {
	t.Run("primary result", func(t *testing.T) {
		fg := NewFallbackGroup(10, "ten", FallbackConfig{
			CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
		})
		fg.AddFallback("twenty", 20)

		result, err := ExecuteWithResult(fg, func(v int) (int, error) {
			return v * 2, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != 20 {
			t.Fatalf("result = %d, want 20 (doubled primary)", result)
		}
	})

	t.Run("fallback result after primary error", func(t *testing.T) {
		fg := NewFallbackGroup(10, "ten", FallbackConfig{
			CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
		})
		fg.AddFallback("twenty", 20)

		result, err := ExecuteWithResult(fg, func(v int) (int, error) {
			if v == 10 {
				return 0, errUnavailable
			}
			return v * 2, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != 40 {
			t.Fatalf("result = %d, want 40 (doubled fallback)", result)
		}
	})

	t.Run("all fail returns zero value", func(t *testing.T) {
		fg := NewFallbackGroup(10, "ten", FallbackConfig{
			CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
		})

		result, err := ExecuteWithResult(fg, func(int) (int, error) {
			return 99, errUnavailable
		})
		if !errors.Is(err, ErrAllFailed) {
			t.Fatalf("err = %v, want ErrAllFailed", err)
		}
		if result != 0 {
			t.Fatalf("result = %d, want the zero value on failure", result)
		}
	})
}
