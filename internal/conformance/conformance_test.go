package conformance

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCases(t *testing.T) {
	results, err := RunCases(filepath.Join("testdata", "cases"), nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for _, res := range results {
		t.Run(res.Name, func(t *testing.T) {
			assert.True(t, res.Pass, "errors: %v", res.Errors)
		})
	}
}

func TestRunCase_Symmetric(t *testing.T) {
	// Swapping the two logs must not change the outcome.
	for _, name := range []string{"ab_conflict", "ab_resolved", "relations"} {
		t.Run(name, func(t *testing.T) {
			src := filepath.Join("testdata", "cases", name)
			dst := t.TempDir()
			copyFile(t, filepath.Join(src, CaseLogA), filepath.Join(dst, CaseLogB))
			copyFile(t, filepath.Join(src, CaseLogB), filepath.Join(dst, CaseLogA))
			copyFile(t, filepath.Join(src, CaseExpectedState), filepath.Join(dst, CaseExpectedState))

			res, err := RunCase(dst, nil)
			require.NoError(t, err)
			assert.True(t, res.Pass, "errors: %v", res.Errors)
		})
	}
}

func TestRunCase_ReportsMismatch(t *testing.T) {
	dir := t.TempDir()
	copyFile(t, filepath.Join("testdata", "cases", "ab_conflict", CaseLogA), filepath.Join(dir, CaseLogA))
	writeFile(t, filepath.Join(dir, CaseExpectedState), `{"entities":{},"conflicts":[]}`)
	writeFile(t, filepath.Join(dir, CaseExpectedCount), `{"count": 5}`)

	res, err := RunCase(dir, nil)
	require.NoError(t, err)
	assert.False(t, res.Pass)
	assert.Equal(t, 1, res.MergedCount)
	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0], "merged event count mismatch")
	assert.Contains(t, res.Errors[1], "state mismatch")
}

func TestRunCase_MissingExpectation(t *testing.T) {
	_, err := RunCase(t.TempDir(), nil)
	assert.Error(t, err)
}

func TestRunCase_BadCountFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, CaseExpectedState), `{"entities":{},"conflicts":[]}`)
	writeFile(t, filepath.Join(dir, CaseExpectedCount), `{"n": 1}`)

	_, err := RunCase(dir, nil)
	assert.Error(t, err)
}

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(scenario.Name, func(t *testing.T) {
			res, err := Run(context.Background(), scenario, t.TempDir(), nil)
			require.NoError(t, err)
			assert.True(t, res.Pass, "errors: %v", res.Errors)
			assert.Len(t, res.Trace, len(scenario.Flow))
		})
	}
}

func TestScenarioGolden(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "concurrent_status.yaml"))
	require.NoError(t, err)

	res, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, res.Pass)
}

func TestRun_FailingAssertions(t *testing.T) {
	scenario := &Scenario{
		Name:     "failing",
		Replicas: []string{"A", "B"},
		Flow: []Step{
			{Replica: "A", Op: OpCreate, Args: map[string]any{"name": "x"}},
		},
		Assertions: []Assertion{
			{Type: AssertEntityField, Replica: "A", Entity: "a-0001", Field: "name", Equals: "y"},
			{Type: AssertEntityField, Replica: "A", Entity: "a-0001", Field: "missing", Equals: 1},
			{Type: AssertConverged, Replicas: []string{"A", "B"}},
			{Type: AssertEventCount, Replica: "B", Count: 1},
			{Type: AssertEntityAbsent, Replica: "A", Entity: "a-0001"},
		},
	}

	res, err := Run(context.Background(), scenario, t.TempDir(), nil)
	require.NoError(t, err)
	assert.False(t, res.Pass)
	assert.Len(t, res.Errors, 5)
	assert.Contains(t, res.Errors[0], `Actual: "x"`)
}

func TestRun_StepError(t *testing.T) {
	scenario := &Scenario{
		Name:     "bad step",
		Replicas: []string{"A"},
		Flow: []Step{
			{Replica: "A", Op: OpUpdate, Args: map[string]any{"entity": "E", "field": "k"}},
		},
	}

	_, err := Run(context.Background(), scenario, t.TempDir(), nil)
	assert.ErrorContains(t, err, `missing arg "value"`)
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "name: x\nreplicas: [A]\nflow: [{replica: A, op: seal}]\nasertions: []\n"},
		{"missing name", "replicas: [A]\nflow: [{replica: A, op: seal}]\n"},
		{"missing replicas", "name: x\nflow: [{replica: A, op: seal}]\n"},
		{"missing flow", "name: x\nreplicas: [A]\n"},
		{"unknown replica", "name: x\nreplicas: [A]\nflow: [{replica: B, op: seal}]\n"},
		{"unknown op", "name: x\nreplicas: [A]\nflow: [{replica: A, op: explode}]\n"},
		{"sync from unknown", "name: x\nreplicas: [A]\nflow: [{replica: A, op: sync, args: {from: Z}}]\n"},
		{"unknown assertion", "name: x\nreplicas: [A]\nflow: [{replica: A, op: seal}]\nassertions: [{type: vibes}]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "s.yaml")
			writeFile(t, path, tt.yaml)

			_, err := LoadScenario(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dst, data, 0o644))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
