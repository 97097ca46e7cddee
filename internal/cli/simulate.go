package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/beatcue/internal/cue"
	"github.com/roach88/beatcue/internal/engine"
	"github.com/roach88/beatcue/internal/midi"
)

// SimulateResult lists what one simulated event did.
type SimulateResult struct {
	Container string         `json:"container"`
	Cue       string         `json:"cue"`
	Event     string         `json:"event"`
	Fired     []FiredLine    `json:"fired"`
	MIDI      []midi.Message `json:"midi,omitempty"`
}

// FiredLine is the printed form of one fired event.
type FiredLine struct {
	Seq     int64  `json:"seq"`
	Event   string `json:"event"`
	Config  string `json:"config,omitempty"`
	Message string `json:"message,omitempty"`
	Result  any    `json:"result,omitempty"`
}

func (r SimulateResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Simulated %s on %s %s", r.Event, r.Container, r.Cue)
	for _, f := range r.Fired {
		fmt.Fprintf(&b, "\n  #%d %s", f.Seq, f.Event)
		if f.Message != "" {
			fmt.Fprintf(&b, " %s via %s", f.Message, f.Config)
		}
		if f.Result != nil {
			fmt.Fprintf(&b, " => %v", f.Result)
		}
	}
	for _, m := range r.MIDI {
		fmt.Fprintf(&b, "\n  midi %s", m)
	}
	return b.String()
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		playerNum int
		journal   bool
		record    bool
	)
	cmd := &cobra.Command{
		Use:   "simulate <container> <cue> <event>",
		Short: "Fire one cue event by hand",
		Long: `Fire a cue's action for one event as though a player had triggered it,
without changing playback state. Events: entered, exited, started-on-beat,
started-late, beat, tracked, ended.

With --record the MIDI messages are printed instead of sent.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			event := cue.ExpressionKind(args[2])
			if !event.Valid() {
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown event %q", args[2]))
			}

			ctx := cmd.Context()
			sess, err := openSession(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer sess.Close()
			sess.applyDefaultOutput(rootOpts.Config.MIDIOutput)

			ctr, err := sess.show.Container(args[0])
			if err != nil {
				return exitForShowError("failed to simulate", err)
			}
			id, err := resolveCue(ctr, args[1])
			if err != nil {
				return err
			}

			outputs := sess.outputs(rootOpts)
			defer outputs.Close()
			var rec *midi.Recorder
			if record {
				rec = midi.NewRecorder(ctr.Snapshot().Output)
				outputs.Register(rec)
			}

			eng, err := sess.newEngine(ctx, rootOpts, outputs, journal)
			if err != nil {
				return err
			}
			defer eng.Close()

			res := SimulateResult{Container: ctr.Name(), Cue: id.String(), Event: string(event), Fired: []FiredLine{}}
			unsubscribe := eng.Subscribe(func(f engine.Fired) {
				res.Fired = append(res.Fired, FiredLine{
					Seq:     f.Seq,
					Event:   string(f.Event),
					Config:  string(f.Config),
					Message: string(f.Message),
					Result:  f.Result,
				})
			})
			defer unsubscribe()

			if err := eng.SimulateEvent(ctx, ctr, id, event, playerNum); err != nil {
				return WrapExitError(ExitFailure, "simulate failed", err)
			}
			if rec != nil {
				res.MIDI = rec.Messages()
			}
			return rootOpts.formatter(cmd).Success(res)
		},
	}
	cmd.Flags().IntVar(&playerNum, "player", 1, "player number reported to expressions")
	cmd.Flags().BoolVar(&journal, "journal", false, "write the fired event to the journal")
	cmd.Flags().BoolVar(&record, "record", false, "print MIDI instead of sending it")
	return cmd
}
