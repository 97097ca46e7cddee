package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/beatcue/internal/cue"
	"github.com/roach88/beatcue/internal/editor"
	"github.com/roach88/beatcue/internal/engine"
	"github.com/roach88/beatcue/internal/player"
	"github.com/roach88/beatcue/internal/show"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	OSCListen string
	Virtual   []string
	Play      bool
	Watch     []string
	NoJournal bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the cue engine",
		Long: `Start the cue engine on the show in the database.

Player status arrives over OSC from a protocol bridge (--osc or the
osc_listen setting) or from virtual players (--virtual). Every fired event
is written to the journal; see "beatcue trace".

A virtual player is given as number:container[/section]@bpm, for example
1:Intro@128 or 2:Drop/loop@124. With --play they start playing at once.

Example:
  beatcue run --osc 127.0.0.1:9000
  beatcue run --virtual 1:Intro@128 --play --watch Intro`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.OSCListen, "osc", "", "OSC listen address (overrides config)")
	cmd.Flags().StringArrayVar(&opts.Virtual, "virtual", nil, "add a virtual player (repeatable)")
	cmd.Flags().BoolVar(&opts.Play, "play", false, "start virtual players immediately")
	cmd.Flags().StringArrayVar(&opts.Watch, "watch", nil, "log lane changes of a container (repeatable)")
	cmd.Flags().BoolVar(&opts.NoJournal, "no-journal", false, "do not journal fired events")

	return cmd
}

// parseVirtual decodes number:container[/section]@bpm.
func parseVirtual(spec string) (player.VirtualPlayer, error) {
	var vp player.VirtualPlayer
	num, rest, ok := strings.Cut(spec, ":")
	if !ok {
		return vp, fmt.Errorf("virtual player %q: want number:container@bpm", spec)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 {
		return vp, fmt.Errorf("virtual player %q: bad player number", spec)
	}
	where, bpm, ok := strings.Cut(rest, "@")
	if !ok {
		return vp, fmt.Errorf("virtual player %q: missing @bpm", spec)
	}
	tempo, err := strconv.ParseFloat(bpm, 64)
	if err != nil || tempo <= 0 {
		return vp, fmt.Errorf("virtual player %q: bad bpm", spec)
	}
	container, section, _ := strings.Cut(where, "/")
	if container == "" {
		return vp, fmt.Errorf("virtual player %q: missing container", spec)
	}
	tag := cue.SectionTag(section)
	if !tag.Valid() {
		return vp, fmt.Errorf("virtual player %q: unknown section %q", spec, section)
	}
	return player.VirtualPlayer{Number: n, Container: container, Section: tag, BPM: tempo}, nil
}

// playLength is how far a virtual player runs in its container before
// stopping: the track length, or the section length for a phrase trigger.
func playLength(ctr *show.Container, section cue.SectionTag) int {
	state := ctr.Snapshot()
	if ctr.Kind() == show.KindPhraseTrigger {
		return state.Sections[section] * cue.BeatsPerBar
	}
	return state.Beats
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	cfg := opts.Config
	logger := opts.Logger

	virtuals := make([]player.VirtualPlayer, 0, len(opts.Virtual))
	for _, spec := range opts.Virtual {
		vp, err := parseVirtual(spec)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --virtual", err)
		}
		virtuals = append(virtuals, vp)
	}
	oscAddr := cfg.OSCListen
	if opts.OSCListen != "" {
		oscAddr = opts.OSCListen
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer sess.Close()
	sess.applyDefaultOutput(cfg.MIDIOutput)

	outputs := sess.outputs(opts.RootOptions)
	defer func() {
		if err := outputs.Close(); err != nil {
			logger.Error("error closing midi outputs", "error", err)
		}
	}()

	eng, err := sess.newEngine(ctx, opts.RootOptions, outputs, !opts.NoJournal)
	if err != nil {
		return err
	}
	defer eng.Close()
	eng.Subscribe(func(f engine.Fired) {
		if f.Event == cue.ExprTracked {
			return
		}
		logger.Debug("fired", "seq", f.Seq, "container", f.Container, "cue", f.Cue, "player", f.Player, "event", f.Event, "message", f.Message)
	})

	tracker := player.NewTracker()
	tracker.AddListener(eng)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })

	if oscAddr != "" {
		recv := &player.OSCReceiver{Addr: oscAddr, Tracker: tracker, Logger: logger}
		g.Go(func() error { return recv.ListenAndServe(gctx) })
	}

	if len(virtuals) > 0 {
		sim := player.NewSimulator(tracker,
			player.WithTicks(cfg.SimulationActiveTick, cfg.SimulationIdleTick),
			player.WithStatusInterval(cfg.StatusInterval),
			player.WithSimulatorLogger(logger),
		)
		for _, vp := range virtuals {
			ctr, err := sess.show.Container(vp.Container)
			if err != nil {
				stop()
				_ = g.Wait()
				return exitForShowError("invalid --virtual", err)
			}
			vp.Beats = playLength(ctr, vp.Section)
			if err := sim.Add(vp); err != nil {
				stop()
				_ = g.Wait()
				return WrapExitError(ExitCommandError, "invalid --virtual", err)
			}
			if opts.Play {
				_ = sim.Play(vp.Number)
			}
		}
		g.Go(func() error { return sim.Run(gctx) })
	}

	if len(opts.Watch) > 0 {
		m := editor.NewManager(sess.show, tracker,
			editor.WithInterval(cfg.AnimationInterval),
			editor.WithLogger(logger),
		)
		for _, name := range opts.Watch {
			w, err := m.Open(name)
			if err != nil {
				stop()
				_ = g.Wait()
				return exitForShowError("invalid --watch", err)
			}
			w.OnRedraw(func(d editor.Diff) {
				logger.Info("lanes changed", "container", name, "added", len(d.Added), "removed", len(d.Removed), "moved", len(d.Moved), "lanes", w.MaxLanes())
			})
			g.Go(func() error { return w.RunAnimation(gctx) })
		}
	}

	logger.Info("engine running", "database", cfg.Database, "osc", oscAddr, "virtual", len(virtuals))
	fmt.Fprintln(cmd.OutOrStdout(), "Engine started. Press Ctrl-C to stop.")

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	logger.Info("engine stopped gracefully")
	return nil
}

// NewOutputsCommand creates the outputs command.
func NewOutputsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "outputs",
		Short: "List MIDI output ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer sess.Close()

			outputs := sess.outputs(rootOpts)
			defer outputs.Close()
			names, err := outputs.Names()
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list outputs", err)
			}
			f := rootOpts.formatter(cmd)
			if rootOpts.Format == "json" {
				return f.Success(names)
			}
			if len(names) == 0 {
				return f.Success("No MIDI outputs.")
			}
			return f.Success(strings.Join(names, "\n"))
		},
	}
}
