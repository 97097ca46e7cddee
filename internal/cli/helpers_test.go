package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// cliEnv is a temporary show database commands run against. Its config
// disables the OSC receiver so run never binds a port.
type cliEnv struct {
	t      *testing.T
	db     string
	config string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	config := filepath.Join(dir, "beatcue.cue")
	require.NoError(t, os.WriteFile(config, []byte("osc_listen: \"\"\n"), 0o644))
	return &cliEnv{t: t, db: filepath.Join(dir, "show.db"), config: config}
}

// run executes the root command and returns stdout, stderr and the error.
func (e *cliEnv) run(args ...string) (string, string, error) {
	return e.runContext(context.Background(), args...)
}

func (e *cliEnv) runContext(ctx context.Context, args ...string) (string, string, error) {
	e.t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand(nil)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"--config", e.config, "--db", e.db}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

// mustRun fails the test when the command errors.
func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, errOut, err := e.run(args...)
	require.NoError(e.t, err, "stderr: %s", errOut)
	return out
}

// runJSON runs a command with --format json and decodes the response data
// into v.
func (e *cliEnv) runJSON(v any, args ...string) {
	e.t.Helper()
	out := e.mustRun(append([]string{"--format", "json"}, args...)...)
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(e.t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(e.t, "ok", resp.Status, out)
	if v != nil {
		require.NoError(e.t, json.Unmarshal(resp.Data, v), out)
	}
}

// addCue adds a cue and returns its UUID.
func (e *cliEnv) addCue(args ...string) string {
	e.t.Helper()
	var info CueInfo
	e.runJSON(&info, append([]string{"cue", "add"}, args...)...)
	return info.Record.UUID
}
