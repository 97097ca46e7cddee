package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/beatcue/internal/cue"
	"github.com/roach88/beatcue/internal/show"
)

// NewCueCommand creates the cue command group.
func NewCueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cue",
		Short: "Create and edit cues",
		Long: `Create and edit the cues of a container. Cue arguments accept a full
UUID or any prefix that matches exactly one cue in the container.`,
	}
	cmd.AddCommand(newCueAddCommand(rootOpts))
	cmd.AddCommand(newCueEventCommand(rootOpts))
	cmd.AddCommand(newCueExprCommand(rootOpts))
	cmd.AddCommand(newCueMoveCommand(rootOpts))
	cmd.AddCommand(newCueDuplicateCommand(rootOpts))
	cmd.AddCommand(newCueLinkCommand(rootOpts))
	cmd.AddCommand(newCueUnlinkCommand(rootOpts))
	cmd.AddCommand(newCueDeleteCommand(rootOpts))
	return cmd
}

// CueInfo is the printed form of one cue.
type CueInfo struct {
	Container string     `json:"container"`
	Record    cue.Record `json:"cue"`
}

func (c CueInfo) String() string {
	r := c.Record
	where := fmt.Sprintf("%d-%d", r.Start, r.End)
	if r.Section != cue.SectionNone {
		where = fmt.Sprintf("%s %s", r.Section, where)
	}
	s := fmt.Sprintf("%s %s [%s]", c.Container, r.UUID, where)
	if r.Linked != "" {
		s += fmt.Sprintf(" linked=%q", r.Linked)
	}
	if r.Comment != "" {
		s += fmt.Sprintf(" %q", r.Comment)
	}
	return s
}

func cueInfo(ctr *show.Container, c cue.Cue) CueInfo {
	return CueInfo{Container: ctr.Name(), Record: c.Record()}
}

// resolveCue finds the cue arg names in ctr by UUID or unique prefix.
func resolveCue(ctr *show.Container, arg string) (uuid.UUID, error) {
	if id, err := uuid.Parse(arg); err == nil {
		return id, nil
	}
	prefix := strings.ToLower(arg)
	var found []uuid.UUID
	for _, c := range ctr.Snapshot().Sorted() {
		if strings.HasPrefix(c.UUID.String(), prefix) {
			found = append(found, c.UUID)
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return uuid.Nil, NewExitError(ExitCommandError, fmt.Sprintf("no cue in %s matches %q", ctr.Name(), arg))
	}
	return uuid.Nil, NewExitError(ExitCommandError, fmt.Sprintf("%d cues in %s match %q", len(found), ctr.Name(), arg))
}

// editCue resolves container and cue arguments before running edit.
func editCue(cmd *cobra.Command, opts *RootOptions, containerArg, cueArg string, edit func(s *show.Show, ctr *show.Container, id uuid.UUID) (cue.Cue, error)) error {
	return editShow(cmd, opts, func(s *show.Show) (any, error) {
		ctr, err := s.Container(containerArg)
		if err != nil {
			return nil, exitForShowError("failed to edit cue", err)
		}
		id, err := resolveCue(ctr, cueArg)
		if err != nil {
			return nil, err
		}
		c, err := edit(s, ctr, id)
		if err != nil {
			return nil, exitForShowError("failed to edit cue", err)
		}
		return cueInfo(ctr, c), nil
	})
}

func newCueAddCommand(opts *RootOptions) *cobra.Command {
	var (
		section  string
		template string
		comment  string
		hue      float64
	)
	cmd := &cobra.Command{
		Use:   "add <container> <start> <end>",
		Short: "Add a cue covering beats [start, end)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parseRange(args[1], args[2])
			if err != nil {
				return err
			}
			return editShow(cmd, opts, func(s *show.Show) (any, error) {
				ctr, err := s.Container(args[0])
				if err != nil {
					return nil, exitForShowError("failed to add cue", err)
				}
				c := cue.New(start, end, cue.SectionTag(section))
				c.Linked = template
				c.Comment = comment
				c.Hue = hue
				added, err := s.AddCue(ctr, c)
				if err != nil {
					return nil, exitForShowError("failed to add cue", err)
				}
				return cueInfo(ctr, added), nil
			})
		},
	}
	cmd.Flags().StringVar(&section, "section", "", "phrase trigger section (start|loop|end|fill)")
	cmd.Flags().StringVar(&template, "template", "", "library template to link")
	cmd.Flags().StringVar(&comment, "comment", "", "cue comment")
	cmd.Flags().Float64Var(&hue, "hue", 0, "cue hue in degrees")
	return cmd
}

func newCueEventCommand(opts *RootOptions) *cobra.Command {
	var note, channel int
	cmd := &cobra.Command{
		Use:   "event <container> <cue> <entered|started-on-beat|started-late> <none|note|cc|custom|same>",
		Short: "Configure the message an event sends",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := cue.EventKind(args[2])
			if !kind.Valid() {
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown event %q", args[2]))
			}
			cfg := cue.EventConfig{Message: cue.MessageType(args[3]), Note: note, Channel: channel}
			if err := cfg.Validate(kind); err != nil {
				return WrapExitError(ExitCommandError, "invalid event configuration", err)
			}
			return editCue(cmd, opts, args[0], args[1], func(s *show.Show, ctr *show.Container, id uuid.UUID) (cue.Cue, error) {
				return s.SetEvent(ctr, id, kind, cfg)
			})
		},
	}
	cmd.Flags().IntVar(&note, "note", cue.DefaultNote, "note or controller number (1-127)")
	cmd.Flags().IntVar(&channel, "channel", cue.DefaultChannel, "MIDI channel (1-16)")
	return cmd
}

func newCueExprCommand(opts *RootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "expr <container> <cue> <slot> [source]",
		Short: "Set the Lua expression of a slot",
		Long: `Set the Lua expression run for one slot: entered, exited, started-on-beat,
started-late, beat, tracked or ended. Source comes from the argument or
--file; an empty source clears the slot.`,
		Args: cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := cue.ExpressionKind(args[2])
			if !kind.Valid() {
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown expression slot %q", args[2]))
			}
			var source string
			switch {
			case file != "" && len(args) == 4:
				return NewExitError(ExitCommandError, "give either a source argument or --file, not both")
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read expression", err)
				}
				source = string(data)
			case len(args) == 4:
				source = args[3]
			}
			return editCue(cmd, opts, args[0], args[1], func(s *show.Show, ctr *show.Container, id uuid.UUID) (cue.Cue, error) {
				return s.SetExpression(ctr, id, kind, source)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "read the expression from a file")
	return cmd
}

func newCueMoveCommand(opts *RootOptions) *cobra.Command {
	var end int
	cmd := &cobra.Command{
		Use:   "move <container> <cue> <start>",
		Short: "Move a cue, or resize it with --end",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := strconv.Atoi(args[2])
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid start %q", args[2]))
			}
			return editCue(cmd, opts, args[0], args[1], func(s *show.Show, ctr *show.Container, id uuid.UUID) (cue.Cue, error) {
				if end > 0 {
					return s.ResizeCue(ctr, id, start, end)
				}
				return s.MoveCue(ctr, id, start)
			})
		},
	}
	cmd.Flags().IntVar(&end, "end", 0, "new end beat (resizes instead of moving)")
	return cmd
}

func newCueDuplicateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "duplicate <container> <cue>",
		Short: "Copy a cue under a new UUID",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editCue(cmd, opts, args[0], args[1], func(s *show.Show, ctr *show.Container, id uuid.UUID) (cue.Cue, error) {
				return s.DuplicateCue(ctr, id)
			})
		},
	}
}

func newCueLinkCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "link <container> <cue> <template>",
		Short: "Link a cue to a library template",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editCue(cmd, opts, args[0], args[1], func(s *show.Show, ctr *show.Container, id uuid.UUID) (cue.Cue, error) {
				return s.Link(ctr, id, args[2])
			})
		},
	}
}

func newCueUnlinkCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <container> <cue>",
		Short: "Detach a cue from its template, keeping its content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editCue(cmd, opts, args[0], args[1], func(s *show.Show, ctr *show.Container, id uuid.UUID) (cue.Cue, error) {
				return s.Unlink(ctr, id)
			})
		},
	}
}

func newCueDeleteCommand(opts *RootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete <container> <cue>",
		Short: "Delete a cue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editCue(cmd, opts, args[0], args[1], func(s *show.Show, ctr *show.Container, id uuid.UUID) (cue.Cue, error) {
				return s.DeleteCue(ctr, id, force)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "close unsaved editors instead of refusing")
	return cmd
}

func parseRange(startArg, endArg string) (int, int, error) {
	start, err := strconv.Atoi(startArg)
	if err != nil {
		return 0, 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid start %q", startArg))
	}
	end, err := strconv.Atoi(endArg)
	if err != nil {
		return 0, 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid end %q", endArg))
	}
	return start, end, nil
}
