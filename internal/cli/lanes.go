package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/beatcue/internal/cue"
	"github.com/roach88/beatcue/internal/editor"
)

// LaneRow is one printed row of the lanes listing.
type LaneRow struct {
	UUID         string         `json:"uuid"`
	Section      cue.SectionTag `json:"section,omitempty"`
	Start        int            `json:"start"`
	End          int            `json:"end"`
	Lane         int            `json:"lane"`
	ClusterLanes int            `json:"cluster_lanes"`
	Color        string         `json:"color"`
	Linked       string         `json:"linked,omitempty"`
	Comment      string         `json:"comment,omitempty"`
}

// LanesResult is the lane layout of one container.
type LanesResult struct {
	Container string    `json:"container"`
	MaxLanes  int       `json:"max_lanes"`
	Rows      []LaneRow `json:"rows"`
}

func (r LanesResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d cue(s), %d lane(s)", r.Container, len(r.Rows), r.MaxLanes)
	for _, row := range r.Rows {
		where := fmt.Sprintf("%d-%d", row.Start, row.End)
		if row.Section != cue.SectionNone {
			where = string(row.Section) + " " + where
		}
		fmt.Fprintf(&b, "\n  %s  lane %d/%d  %-14s %s", row.UUID[:8], row.Lane+1, row.ClusterLanes, where, row.Color)
		if row.Linked != "" {
			fmt.Fprintf(&b, "  [%s]", row.Linked)
		}
		if row.Comment != "" {
			fmt.Fprintf(&b, "  %s", row.Comment)
		}
	}
	return b.String()
}

// NewLanesCommand creates the lanes command.
func NewLanesCommand(rootOpts *RootOptions) *cobra.Command {
	var filter editor.Filter
	cmd := &cobra.Command{
		Use:   "lanes <container>",
		Short: "Show the lane layout of a container's cues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer sess.Close()

			m := editor.NewManager(sess.show, nil, editor.WithLogger(rootOpts.Logger))
			w, err := m.Open(args[0])
			if err != nil {
				return exitForShowError("failed to open container", err)
			}
			defer func() { _ = m.Close(args[0], true) }()
			w.SetFilter(filter)

			res := LanesResult{Container: args[0], MaxLanes: w.MaxLanes(), Rows: []LaneRow{}}
			for _, row := range w.Rows() {
				res.Rows = append(res.Rows, LaneRow{
					UUID:         row.Cue.UUID.String(),
					Section:      row.Cue.Section,
					Start:        row.Cue.Start,
					End:          row.Cue.End,
					Lane:         row.Lane,
					ClusterLanes: row.ClusterLanes,
					Color:        row.Color,
					Linked:       row.Cue.Linked,
					Comment:      row.Cue.Comment,
				})
			}
			return rootOpts.formatter(cmd).Success(res)
		},
	}
	cmd.Flags().StringVar(&filter.Text, "filter", "", "show only cues whose comment or template matches")
	cmd.Flags().BoolVar(&filter.EnteredOnly, "entered-only", false, "show only cues a player is inside")
	return cmd
}
