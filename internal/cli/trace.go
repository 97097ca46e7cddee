package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/beatcue/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Container string
	Cue       string
	After     int64
	Limit     int
	Clear     bool
}

// TraceEvent is one journaled fired event in the timeline.
type TraceEvent struct {
	Seq       int64  `json:"seq"`
	Container string `json:"container"`
	Cue       string `json:"cue"`
	Player    int    `json:"player"`
	Event     string `json:"event"`
	Config    string `json:"config,omitempty"`
	Message   string `json:"message,omitempty"`
	Note      int    `json:"note,omitempty"`
	Channel   int    `json:"channel,omitempty"`
	Simulated bool   `json:"simulated,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	Simulated   int            `json:"simulated"`
	ByEvent     map[string]int `json:"by_event"`
	LastSeq     int64          `json:"last_seq"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journal of fired events",
		Long: `Show the journal of fired events recorded by "beatcue run" and
"beatcue simulate --journal", in firing order.

Examples:
  beatcue trace
  beatcue trace --container Intro --limit 20
  beatcue trace --cue 0b7f6c1e-3a52-4c8e-9d41-5a1f0c2e7b10 --format json
  beatcue trace --after 1200`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Container, "container", "", "only events of this container")
	cmd.Flags().StringVar(&opts.Cue, "cue", "", "only events of this cue UUID")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only events with seq greater than this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of events (0 for all)")
	cmd.Flags().BoolVar(&opts.Clear, "clear", false, "empty the journal instead of printing it")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	st, err := store.Open(opts.Config.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	f := opts.formatter(cmd)
	if opts.Clear {
		if err := st.ClearFired(ctx); err != nil {
			return WrapExitError(ExitFailure, "failed to clear journal", err)
		}
		return f.Success("Journal cleared.")
	}

	events, err := st.ReadFired(ctx, store.FiredFilter{
		AfterSeq:  opts.After,
		Container: opts.Container,
		Cue:       opts.Cue,
		Limit:     opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read journal", err)
	}

	result := buildTrace(events)
	if opts.Format == "json" {
		return f.Success(result)
	}
	return outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
}

func buildTrace(events []store.FiredEvent) TraceResult {
	result := TraceResult{
		Timeline: make([]TraceEvent, 0, len(events)),
		Stats:    TraceStats{ByEvent: map[string]int{}},
	}
	for _, ev := range events {
		result.Timeline = append(result.Timeline, TraceEvent{
			Seq:       ev.Seq,
			Container: ev.Container,
			Cue:       ev.Cue,
			Player:    ev.Player,
			Event:     ev.Event,
			Config:    ev.Config,
			Message:   ev.Message,
			Note:      ev.Note,
			Channel:   ev.Channel,
			Simulated: ev.Simulated,
		})
		result.Stats.ByEvent[ev.Event]++
		if ev.Simulated {
			result.Stats.Simulated++
		}
		result.Stats.LastSeq = ev.Seq
	}
	result.Stats.TotalEvents = len(result.Timeline)
	return result
}

func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, ev := range result.Timeline {
		formatTimelineEvent(w, ev, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Simulated:    %d\n", result.Stats.Simulated)
	kinds := make([]string, 0, len(result.Stats.ByEvent))
	for k := range result.Stats.ByEvent {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-16s %d\n", k+":", result.Stats.ByEvent[k])
	}
	return nil
}

func formatTimelineEvent(w io.Writer, ev TraceEvent, verbose bool) {
	sim := ""
	if ev.Simulated {
		sim = " (simulated)"
	}
	fmt.Fprintf(w, "  [%d] %s %s player %d %s%s\n", ev.Seq, ev.Container, truncateID(ev.Cue), ev.Player, ev.Event, sim)
	if !verbose || ev.Message == "" {
		return
	}
	switch ev.Message {
	case "note", "cc":
		fmt.Fprintf(w, "       %s %d ch %d via %s\n", ev.Message, ev.Note, ev.Channel, ev.Config)
	default:
		fmt.Fprintf(w, "       %s via %s\n", ev.Message, ev.Config)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
