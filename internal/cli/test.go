package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/plos/internal/conformance"
	"github.com/roach88/plos/internal/fileutil"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario/case filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario or case.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Kind   string   `json:"kind"` // "scenario" | "case"
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <dir>",
		Short: "Run conformance scenarios and cases",
		Long: `Run the conformance suite found under a directory.

Every *.yaml file is a scenario: replicas are created in a temporary
directory, the flow is executed, and the assertions are checked. When
golden/<name>.golden exists next to the scenario, the trace and final
states must match it byte for byte.

Every directory holding ` + conformance.CaseExpectedState + ` is a case: its
a.jsonl and b.jsonl are merged and the projection must equal the expected
state (and ` + conformance.CaseExpectedCount + `, if present).

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  plos test ./conformance
  plos test ./conformance --filter "concurrent*"
  plos test ./conformance --update`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios and cases by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return NewExitError(ExitCommandError, fmt.Sprintf("directory not found: %s", dir))
	}

	scenarioFiles, caseDirs, err := findSuite(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(scenarioFiles)+len(caseDirs)),
		Total:     len(scenarioFiles) + len(caseDirs),
	}
	if result.Total == 0 {
		if opts.Format == "json" {
			return outputTestJSON(cmd, result)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	for _, file := range scenarioFiles {
		result.add(runScenario(file, opts, cmd))
	}
	for _, caseDir := range caseDirs {
		result.add(runCase(caseDir, opts, cmd))
	}

	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, result)
}

func (r *TestResult) add(res ScenarioResult) {
	r.Scenarios = append(r.Scenarios, res)
	if res.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

// findSuite finds scenario files and case directories under dir.
func findSuite(dir, filter string) (scenarios, cases []string, err error) {
	match := func(name string) (bool, error) {
		if filter == "" {
			return true, nil
		}
		ok, err := filepath.Match(filter, name)
		if err != nil {
			return false, fmt.Errorf("invalid filter pattern: %w", err)
		}
		return ok, nil
	}

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if _, statErr := os.Stat(filepath.Join(path, conformance.CaseExpectedState)); statErr != nil {
				return nil
			}
			ok, err := match(d.Name())
			if err != nil {
				return err
			}
			if ok {
				cases = append(cases, path)
			}
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		ok, err := match(strings.TrimSuffix(d.Name(), ext))
		if err != nil {
			return err
		}
		if ok {
			scenarios = append(scenarios, path)
		}
		return nil
	})
	return scenarios, cases, err
}

// runScenario executes a single scenario and returns the result.
func runScenario(scenarioFile string, opts *TestOptions, cmd *cobra.Command) ScenarioResult {
	w := cmd.OutOrStdout()
	text := opts.Format != "json"
	fail := func(name string, errs ...string) ScenarioResult {
		if text {
			fmt.Fprintf(w, "✗ %s\n", name)
			for _, e := range errs {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
		return ScenarioResult{Name: name, Kind: "scenario", Pass: false, Errors: errs}
	}
	pass := func(name, note string) ScenarioResult {
		if text {
			fmt.Fprintf(w, "✓ %s%s\n", name, note)
		}
		return ScenarioResult{Name: name, Kind: "scenario", Pass: true}
	}

	scenario, err := conformance.LoadScenario(scenarioFile)
	if err != nil {
		return fail(filepath.Base(scenarioFile), fmt.Sprintf("failed to load scenario: %v", err))
	}

	base, err := os.MkdirTemp("", "plos-scenario-")
	if err != nil {
		return fail(scenario.Name, fmt.Sprintf("failed to create work dir: %v", err))
	}
	defer os.RemoveAll(base)

	result, err := conformance.Run(cmd.Context(), scenario, base, nil)
	if err != nil {
		return fail(scenario.Name, fmt.Sprintf("execution failed: %v", err))
	}

	goldenPath := goldenFilePath(scenarioFile)
	if opts.Update {
		if err := updateGoldenFile(scenario, result, goldenPath); err != nil {
			return fail(scenario.Name, fmt.Sprintf("failed to update golden file: %v", err))
		}
		return pass(scenario.Name, " (golden updated)")
	}

	if _, err := os.Stat(goldenPath); err == nil {
		match, err := compareWithGolden(scenario, result, goldenPath)
		if err != nil {
			return fail(scenario.Name, fmt.Sprintf("golden comparison failed: %v", err))
		}
		if !match {
			return fail(scenario.Name, "trace does not match golden file (run with --update to regenerate)")
		}
	}

	if !result.Pass {
		return fail(scenario.Name, result.Errors...)
	}
	return pass(scenario.Name, "")
}

// runCase runs a two-log case directory.
func runCase(dir string, opts *TestOptions, cmd *cobra.Command) ScenarioResult {
	w := cmd.OutOrStdout()
	name := filepath.Base(dir)

	out := ScenarioResult{Name: name, Kind: "case"}
	res, err := conformance.RunCase(dir, nil)
	if err != nil {
		out.Errors = []string{err.Error()}
	} else {
		out.Pass, out.Errors = res.Pass, res.Errors
	}

	if opts.Format != "json" {
		mark := "✓"
		if !out.Pass {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s (case)\n", mark, name)
		for _, e := range out.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	return out
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// updateGoldenFile writes the current snapshot as the golden file.
func updateGoldenFile(scenario *conformance.Scenario, result *conformance.Result, goldenPath string) error {
	data, err := conformance.SnapshotBytes(scenario.Name, result)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	return fileutil.WriteAtomic(goldenPath, data, 0o644)
}

// compareWithGolden compares the result snapshot against the golden file.
func compareWithGolden(scenario *conformance.Scenario, result *conformance.Result, goldenPath string) (bool, error) {
	goldenData, err := os.ReadFile(goldenPath)
	if err != nil {
		return false, fmt.Errorf("failed to read golden file: %w", err)
	}
	current, err := conformance.SnapshotBytes(scenario.Name, result)
	if err != nil {
		return false, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return bytes.Equal(goldenData, current), nil
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    CodeFailure,
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test result as text.
func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
