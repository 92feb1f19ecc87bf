package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every member of a [FallbackGroup] either
// failed or had an open circuit breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig carries the circuit breaker template applied to each member
// of a [FallbackGroup]. The template's Name field is replaced with the
// member's own name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// member pairs one provider value with its dedicated breaker.
type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup chains a primary and zero or more fallback instances of the
// same provider type. Calls go to the first member whose breaker admits them;
// a failing or tripped member is skipped in favour of the next one in
// registration order.
//
// FallbackGroup is safe for concurrent use once assembled. AddFallback is not
// safe to call concurrently with Execute.
type FallbackGroup[T any] struct {
	members    []member[T]
	breakerCfg CircuitBreakerConfig
}

// NewFallbackGroup creates a group with primary as its first member. Register
// additional members with [FallbackGroup.AddFallback].
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{breakerCfg: cfg.CircuitBreaker}
	fg.add(primaryName, primary)
	return fg
}

// AddFallback appends a fallback provider. Members are tried in the order
// they were added, after the primary.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	fg.add(name, fallback)
}

func (fg *FallbackGroup[T]) add(name string, value T) {
	cbCfg := fg.breakerCfg
	cbCfg.Name = name
	fg.members = append(fg.members, member[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Execute tries fn against each member in order until one succeeds. Members
// with open breakers are skipped. If every member fails, the returned error
// wraps [ErrAllFailed].
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult tries fn against each member of fg in order until one
// succeeds, returning that member's result. It is a package-level function
// because Go methods cannot introduce the result type parameter.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastName string
		lastErr  error
	)
	for i := range fg.members {
		m := &fg.members[i]

		var result R
		err := m.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(m.value)
			return callErr
		})
		if err == nil {
			return result, nil
		}

		lastName, lastErr = m.name, err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("provider circuit open, skipping", "provider", m.name)
		} else {
			slog.Warn("provider call failed, trying next",
				"provider", m.name, "error", err)
		}
	}

	var zero R
	return zero, fmt.Errorf("%w: last attempt %q: %v", ErrAllFailed, lastName, lastErr)
}
