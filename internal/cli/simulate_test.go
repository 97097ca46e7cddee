package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/beatcue/internal/midi"
)

func TestSimulate_RecordsMIDI(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("container", "add-track", "Intro", "--beats", "16", "--output", "rec")
	id := env.addCue("Intro", "1", "5")
	env.mustRun("cue", "event", "Intro", id, "entered", "note", "--note", "60", "--channel", "2")

	var res SimulateResult
	env.runJSON(&res, "simulate", "Intro", id, "entered", "--record")
	require.Len(t, res.Fired, 1)
	assert.Equal(t, "entered", res.Fired[0].Event)
	assert.Equal(t, "note", res.Fired[0].Message)
	assert.Equal(t, []midi.Message{{Output: "rec", Kind: midi.KindNoteOn, Number: 60, Value: 127, Channel: 2}}, res.MIDI)

	env.runJSON(&res, "simulate", "Intro", id, "exited", "--record")
	assert.Equal(t, []midi.Message{{Output: "rec", Kind: midi.KindNoteOff, Number: 60, Value: 0, Channel: 2}}, res.MIDI)
}

func TestSimulate_CustomExpression(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("container", "add-track", "Intro", "--beats", "16")
	id := env.addCue("Intro", "1", "5")
	env.mustRun("cue", "event", "Intro", id, "started-on-beat", "custom")
	env.mustRun("cue", "expr", "Intro", id, "started-on-beat", "return status.player * 10")

	var res SimulateResult
	env.runJSON(&res, "simulate", "Intro", id, "started-on-beat", "--player", "3")
	require.Len(t, res.Fired, 1)
	assert.EqualValues(t, 30, res.Fired[0].Result)
}

func TestSimulate_JournalAndTrace(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("container", "add-track", "Intro", "--beats", "16")
	id := env.addCue("Intro", "1", "5")

	env.mustRun("simulate", "Intro", id, "entered", "--journal")
	env.mustRun("simulate", "Intro", id, "beat")
	env.mustRun("simulate", "Intro", id, "exited", "--journal")

	var trace TraceResult
	env.runJSON(&trace, "trace")
	require.Len(t, trace.Timeline, 2)
	assert.Equal(t, int64(1), trace.Timeline[0].Seq)
	assert.Equal(t, "entered", trace.Timeline[0].Event)
	assert.True(t, trace.Timeline[0].Simulated)
	assert.Equal(t, int64(2), trace.Timeline[1].Seq, "the clock resumes after the journal")
	assert.Equal(t, "exited", trace.Timeline[1].Event)
	assert.Equal(t, 2, trace.Stats.Simulated)
	assert.Equal(t, map[string]int{"entered": 1, "exited": 1}, trace.Stats.ByEvent)

	env.runJSON(&trace, "trace", "--after", "1")
	require.Len(t, trace.Timeline, 1)
	env.runJSON(&trace, "trace", "--cue", id, "--limit", "1")
	require.Len(t, trace.Timeline, 1)
	env.runJSON(&trace, "trace", "--container", "Outro")
	assert.Empty(t, trace.Timeline)

	text := env.mustRun("trace", "-v")
	assert.Contains(t, text, "[1] Intro")
	assert.Contains(t, text, "entered (simulated)")
	assert.Contains(t, text, "Total Events: 2")

	env.mustRun("trace", "--clear")
	env.runJSON(&trace, "trace")
	assert.Empty(t, trace.Timeline)
	assert.Contains(t, env.mustRun("trace"), "(no events)")
}

func TestSimulate_Errors(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("container", "add-track", "Intro")
	id := env.addCue("Intro", "1", "5")

	_, _, err := env.run("simulate", "Intro", id, "exploded")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = env.run("simulate", "Outro", id, "entered")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
