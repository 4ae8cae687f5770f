/*
blockers.go - Named precondition check registry

PURPOSE:
  Blocker checks are named predicates that inspect external deal data and
  report blocked/not-blocked with a reason. The engine never hardcodes
  check logic; domain services register checks by name and the transition
  table references them by the same name.

CONTRACT:
  - Checks must be side-effect free from the engine's perspective: safe to
    call repeatedly, never mutating aggregate state.
  - Checks may block on I/O; they receive the caller's context.
  - A check that errors (or panics) is reported as blocked with the
    failure as the reason. Failures are never silently ignored.

CONCURRENCY:
  The registry is read-only after initialization and safe for concurrent
  Run calls. RunAll evaluates all checks for a target state concurrently
  and collects EVERY result - it does not short-circuit on the first
  blocked check, so callers always see the complete list of unmet
  preconditions.

SEE ALSO:
  - engine.go: Runs required checks before each transition
  - dealflow/blockers.go: Reference check implementations
*/
package lifecycle

import (
	"context"
	"fmt"
	"sync"
)

// =============================================================================
// BLOCKER CHECK - Single-method strategy interface
// =============================================================================

// BlockerCheck evaluates one precondition for one aggregate.
type BlockerCheck interface {
	Evaluate(ctx context.Context, id AggregateID) (BlockerResult, error)
}

// BlockerFunc adapts a function to the BlockerCheck interface.
type BlockerFunc func(ctx context.Context, id AggregateID) (BlockerResult, error)

func (f BlockerFunc) Evaluate(ctx context.Context, id AggregateID) (BlockerResult, error) {
	return f(ctx, id)
}

// =============================================================================
// REGISTRY - Name to check dispatch map
// =============================================================================

// BlockerRegistry maps check names to implementations. Register everything
// at startup; concurrent Run calls are safe afterwards.
type BlockerRegistry struct {
	mu     sync.RWMutex
	checks map[string]BlockerCheck
}

func NewBlockerRegistry() *BlockerRegistry {
	return &BlockerRegistry{checks: make(map[string]BlockerCheck)}
}

// Register adds a named check. Duplicate names are a wiring error.
func (r *BlockerRegistry) Register(name string, check BlockerCheck) error {
	if name == "" {
		return fmt.Errorf("blocker check name must not be empty")
	}
	if check == nil {
		return fmt.Errorf("blocker check %q: implementation must not be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.checks[name]; exists {
		return fmt.Errorf("%q: %w", name, ErrCheckAlreadyRegistered)
	}
	r.checks[name] = check
	return nil
}

// Registered reports whether a check name is known.
func (r *BlockerRegistry) Registered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.checks[name]
	return ok
}

// Run evaluates a single named check. An unregistered name or a failing
// check both come back as blocked, with the failure as the reason.
func (r *BlockerRegistry) Run(ctx context.Context, name string, id AggregateID) BlockerResult {
	r.mu.RLock()
	check, ok := r.checks[name]
	r.mu.RUnlock()

	if !ok {
		return BlockerResult{
			Name:    name,
			Blocked: true,
			Reason:  fmt.Sprintf("blocker check %q is not registered", name),
			Details: map[string]any{"check_failed": true},
		}
	}

	result, err := safeEvaluate(ctx, check, id)
	if err != nil {
		return BlockerResult{
			Name:    name,
			Blocked: true,
			Reason:  fmt.Sprintf("%v: %v", ErrBlockerCheckFailed, err),
			Details: map[string]any{"check_failed": true, "error": err.Error()},
		}
	}
	result.Name = name
	return result
}

// RunAll evaluates all named checks concurrently and returns one result
// per name, in input order. Blocked and not-blocked results are both
// returned; the caller filters.
func (r *BlockerRegistry) RunAll(ctx context.Context, names []string, id AggregateID) []BlockerResult {
	results := make([]BlockerResult, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			results[i] = r.Run(ctx, name, id)
		}(i, name)
	}
	wg.Wait()

	return results
}

// safeEvaluate converts a panicking check into an ordinary error.
func safeEvaluate(ctx context.Context, check BlockerCheck, id AggregateID) (result BlockerResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("check panicked: %v", rec)
		}
	}()
	return check.Evaluate(ctx, id)
}

// Blocked filters a result set down to the blocked entries.
func Blocked(results []BlockerResult) []BlockerResult {
	var blocked []BlockerResult
	for _, r := range results {
		if r.Blocked {
			blocked = append(blocked, r)
		}
	}
	return blocked
}
