package cli

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/beatcue/internal/config"
)

func TestLibrary_AddFromCueListRename(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("container", "add-track", "Intro", "--beats", "16")
	id := env.addCue("Intro", "1", "5")
	env.mustRun("library", "folder", "add", "Drums")
	env.mustRun("library", "add-from-cue", "Intro", id, "Kick", "--folder", "Drums")
	other := env.addCue("Intro", "5", "9")
	env.mustRun("library", "add-from-cue", "Intro", other, "Pad")

	var listing LibraryListing
	env.runJSON(&listing, "library", "list")
	require.Len(t, listing.Folders, 2)
	assert.Equal(t, "", listing.Folders[0].Name)
	assert.Equal(t, []LibraryTemplate{{Name: "Pad", Users: 1}}, listing.Folders[0].Templates)
	assert.Equal(t, "Drums", listing.Folders[1].Name)
	assert.Equal(t, []LibraryTemplate{{Name: "Kick", Users: 1}}, listing.Folders[1].Templates)

	env.mustRun("library", "rename", "Kick", "Kick 2")
	var info CueInfo
	env.runJSON(&info, "cue", "unlink", "Intro", id)
	text := env.mustRun("library", "list")
	assert.Contains(t, text, "Drums/\n  Kick 2 (0 linked)")

	shown := env.mustRun("library", "show", "Kick 2")
	assert.Contains(t, shown, "events:")
}

func TestLibrary_DeleteWithYesUnlinks(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("container", "add-track", "Intro", "--beats", "16")
	id := env.addCue("Intro", "1", "5")
	env.mustRun("library", "add-from-cue", "Intro", id, "Kick")

	out := env.mustRun("library", "delete", "Kick", "--yes")
	assert.Contains(t, out, "Deleted Kick, unlinked 1 cue(s)")

	var listing LibraryListing
	env.runJSON(&listing, "library", "list")
	assert.Empty(t, listing.Folders)
}

func TestLibrary_DeleteMissing(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := env.run("library", "delete", "Nope", "--yes")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLibrary_DeleteConfirmation(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("container", "add-track", "Intro", "--beats", "16")
	id := env.addCue("Intro", "1", "5", "--comment", "four on the floor")
	env.mustRun("library", "add-from-cue", "Intro", id, "Kick")

	cfg := config.Default()
	cfg.Database = env.db
	opts := &RootOptions{Format: "text", Config: cfg, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	var asked string
	decline := func(title, description string) (bool, error) {
		asked = title + "\n" + description
		return false, nil
	}
	cmd := newLibraryDeleteCommandWith(opts, decline)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"Kick"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, asked, "Delete Kick?")
	assert.Contains(t, asked, `Intro: "four on the floor" (beats 1-5)`)

	broken := func(string, string) (bool, error) { return false, errors.New("no tty") }
	cmd = newLibraryDeleteCommandWith(opts, broken)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"Kick"})
	require.Error(t, cmd.Execute())

	accept := func(string, string) (bool, error) { return true, nil }
	out := &bytes.Buffer{}
	cmd = newLibraryDeleteCommandWith(opts, accept)
	cmd.SetOut(out)
	cmd.SetArgs([]string{"Kick"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Deleted Kick")
}

func TestLibrary_Folders(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("container", "add-track", "Intro")
	id := env.addCue("Intro", "1", "3")
	env.mustRun("library", "add-from-cue", "Intro", id, "Hat")
	env.mustRun("library", "folder", "add", "Perc")
	env.mustRun("library", "move", "Hat", "Perc")
	env.mustRun("library", "folder", "rename", "Perc", "Percussion")

	var listing LibraryListing
	env.runJSON(&listing, "library", "list")
	require.Len(t, listing.Folders, 1)
	assert.Equal(t, "Percussion", listing.Folders[0].Name)

	env.mustRun("library", "folder", "delete", "Percussion")
	env.runJSON(&listing, "library", "list")
	require.Len(t, listing.Folders, 1)
	assert.Equal(t, "", listing.Folders[0].Name)
	assert.Equal(t, "Hat", listing.Folders[0].Templates[0].Name)

	_, _, err := env.run("library", "folder", "delete", "Percussion")
	require.Error(t, err)
}
