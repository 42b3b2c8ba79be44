package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plos/internal/replica"
	"github.com/roach88/plos/internal/testutil"
)

// testReplica runs CLI invocations against one root, sharing a
// deterministic clock and id sequence across invocations.
type testReplica struct {
	t    *testing.T
	root string
	opts []replica.Option
}

func newTestCLI(t *testing.T, idPrefix string) *testReplica {
	t.Helper()
	return &testReplica{
		t:    t,
		root: t.TempDir(),
		opts: []replica.Option{
			replica.WithClock(testutil.NewDeterministicClock()),
			replica.WithIDGenerator(testutil.NewSequentialIDs(idPrefix)),
		},
	}
}

// run executes the CLI and returns stdout.
func (r *testReplica) run(args ...string) (string, error) {
	r.t.Helper()
	cmd := newRootCommand(&RootOptions{replicaOpts: r.opts})
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--root", r.root}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// mustRun executes the CLI and fails the test on error.
func (r *testReplica) mustRun(args ...string) string {
	r.t.Helper()
	out, err := r.run(args...)
	require.NoError(r.t, err, "plos %v\n%s", args, out)
	return out
}

// runJSON executes the CLI with --format json and decodes the data field.
func (r *testReplica) runJSON(v any, args ...string) {
	r.t.Helper()
	out := r.mustRun(append([]string{"--format", "json"}, args...)...)
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(r.t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(r.t, "ok", resp.Status)
	require.NoError(r.t, json.Unmarshal(resp.Data, v), out)
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "plos", cmd.Use)
	assert.Contains(t, cmd.Long, "local-first")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"create"}, {"update"}, {"resolve"}, {"relate"}, {"unrelate"}, {"metric"},
		{"list"}, {"conflicts"}, {"export"},
		{"sync"}, {"watch"}, {"export-bundle"}, {"import-bundle"},
		{"origin"}, {"reset"}, {"seal"}, {"verify"},
		{"keys", "list"}, {"keys", "add"},
		{"index", "rebuild"}, {"index", "history"},
		{"test"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	rootFlag := cmd.PersistentFlags().Lookup("root")
	require.NotNil(t, rootFlag)
	assert.Equal(t, ".", rootFlag.DefValue)
}

func TestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	tests := []struct {
		path []string
		flag string
		def  string
	}{
		{[]string{"conflicts"}, "unresolved", "false"},
		{[]string{"watch"}, "interval", "500ms"},
		{[]string{"keys", "add"}, "activate", "false"},
		{[]string{"test"}, "update", "false"},
		{[]string{"test"}, "filter", ""},
	}
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			sub, _, err := cmd.Find(tt.path)
			require.NoError(t, err)
			f := sub.Flags().Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, tt.def, f.DefValue)
		})
	}
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	r := newTestCLI(t, "x")

	_, err := r.run("--format", "invalid", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestArgumentErrorsAreCommandErrors(t *testing.T) {
	r := newTestCLI(t, "x")

	_, err := r.run("update", "only-one-arg")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = r.run("list", "--no-such-flag")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvalidConfig(t *testing.T) {
	r := newTestCLI(t, "x")
	t.Setenv("PLOS_LOG_FORMAT", "xml")

	_, err := r.run("list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}
