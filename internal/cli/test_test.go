package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	harnessScenarios = "../harness/testdata/scenarios"
	harnessGolden    = "../harness/testdata/golden"
)

func TestTestCommand_HarnessScenariosPass(t *testing.T) {
	env := newCLIEnv(t)

	var res TestResult
	env.runJSON(&res, "test", harnessScenarios, "--golden", harnessGolden)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, res.Total, res.Passed)
	assert.GreaterOrEqual(t, res.Total, 2)

	out := env.mustRun("test", harnessScenarios, "--golden", harnessGolden, "--filter", "phrase_*")
	assert.Contains(t, out, "✓ phrase_late_start")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommand_UpdateWritesGoldens(t *testing.T) {
	env := newCLIEnv(t)
	golden := t.TempDir()

	env.mustRun("test", harnessScenarios, "--golden", golden, "--filter", "track_*", "--update")
	written, err := os.ReadFile(filepath.Join(golden, "track_note_cycle.golden"))
	require.NoError(t, err)
	committed, err := os.ReadFile(filepath.Join(harnessGolden, "track_note_cycle.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(committed), string(written))
}

func TestTestCommand_GoldenMismatchFails(t *testing.T) {
	env := newCLIEnv(t)
	golden := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(golden, "track_note_cycle.golden"), []byte("{}\n"), 0o644))

	out, _, err := env.run("test", harnessScenarios, "--golden", golden, "--filter", "track_*")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ track_note_cycle")
	assert.Contains(t, out, "does not match golden file")
}

func TestTestCommand_FailingScenario(t *testing.T) {
	env := newCLIEnv(t)
	dir := t.TempDir()
	scenario := `name: never_fires
description: asserts an event that cannot happen
container:
  name: Intro
  kind: track
  beats: 8
cues: []
flow:
  - status: {beat: 1, playing: true}
assertions:
  - type: fired_count
    event: entered
    count: 1
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "never_fires.yaml"), []byte(scenario), 0o644))

	out, _, err := env.run("--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "E_TEST_FAILED")
	assert.Contains(t, out, "never_fires")
}

func TestTestCommand_Errors(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run("test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	assert.Contains(t, env.mustRun("test", t.TempDir()), "No scenarios found.")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [\n"), 0o644))
	out, _, err := env.run("test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "failed to load scenario")
}

func TestFindScenarioFiles_Filter(t *testing.T) {
	files, err := findScenarioFiles(harnessScenarios, "track_*")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "track_note_cycle.yaml", filepath.Base(files[0]))

	_, err = findScenarioFiles(harnessScenarios, "[")
	require.Error(t, err)
}
