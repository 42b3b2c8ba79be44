package conformance

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/roach88/plos/internal/canonical"
	"github.com/roach88/plos/internal/value"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// evaluate runs every assertion and returns the failure messages.
func (r *Runner) evaluate(ctx context.Context, assertions []Assertion, result *Result) []string {
	var errs []string
	for i, a := range assertions {
		if err := r.check(ctx, a, result); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func (r *Runner) check(ctx context.Context, a Assertion, result *Result) error {
	switch a.Type {
	case AssertEntityField:
		return assertEntityField(a, result)
	case AssertEntityAbsent:
		if _, ok := result.States[a.Replica].Entity(a.Entity); ok {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("no entity %s on %s", a.Entity, a.Replica), Actual: "entity exists"}
		}
		return nil
	case AssertConflictCount:
		state := result.States[a.Replica]
		got := len(state.Conflicts)
		what := "conflicts"
		if a.Unresolved {
			got, what = len(state.Unresolved()), "unresolved conflicts"
		}
		if got != a.Count {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%d %s on %s", a.Count, what, a.Replica), Actual: fmt.Sprintf("%d", got)}
		}
		return nil
	case AssertEventCount:
		events, err := r.replicas[a.Replica].Events(ctx)
		if err != nil {
			return err
		}
		if len(events) != a.Count {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%d events on %s", a.Count, a.Replica), Actual: fmt.Sprintf("%d", len(events))}
		}
		return nil
	case AssertConverged:
		return assertConverged(a, result)
	case AssertVerifyOK:
		report, err := r.replicas[a.Replica].Verify(ctx)
		if err != nil {
			return err
		}
		if !report.OK {
			failed, _ := report.Failed()
			return &AssertionError{Type: a.Type, Expected: "chain verifies", Actual: fmt.Sprintf("segment %s failed", failed.SegmentID)}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

func assertEntityField(a Assertion, result *Result) error {
	ent, ok := result.States[a.Replica].Entity(a.Entity)
	if !ok {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("entity %s on %s", a.Entity, a.Replica), Actual: "no such entity"}
	}
	want, err := value.FromAny(a.Equals)
	if err != nil {
		return fmt.Errorf("equals: %w", err)
	}
	got, ok := ent[a.Field]
	if !ok {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s.%s = %s", a.Entity, a.Field, show(want)), Actual: "field missing"}
	}
	if show(got) != show(want) {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s.%s = %s", a.Entity, a.Field, show(want)), Actual: show(got)}
	}
	return nil
}

func assertConverged(a Assertion, result *Result) error {
	names := a.Replicas
	if len(names) < 2 {
		return fmt.Errorf("converged needs at least two replicas")
	}
	first, err := canonical.MarshalAny(result.States[names[0]])
	if err != nil {
		return err
	}
	for _, name := range names[1:] {
		other, err := canonical.MarshalAny(result.States[name])
		if err != nil {
			return err
		}
		if !bytes.Equal(first, other) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s: %s", names[0], first),
				Actual:   fmt.Sprintf("%s: %s", name, other),
			}
		}
	}
	return nil
}

// show renders a value canonically for comparison and messages.
func show(v value.Value) string {
	s, err := canonical.String(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return s
}
