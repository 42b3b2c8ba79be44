package conformance

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/plos/internal/canonical"
)

// Snapshot is what a scenario's golden file holds.
type Snapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
	States       any          `json:"states"`
}

// RunWithGolden executes a scenario in a temp dir, fails the test on
// assertion errors, and compares trace and final states against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/conformance -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, t.TempDir(), nil)
	if err != nil {
		return nil, err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}

	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	out, err := SnapshotBytes(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, out)
	return nil
}

// SnapshotBytes renders the golden snapshot of a result as canonical JSON.
func SnapshotBytes(name string, result *Result) ([]byte, error) {
	return canonical.MarshalAny(Snapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		States:       result.States,
	})
}
