package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/beatcue/internal/cue"
	"github.com/roach88/beatcue/internal/show"
)

// ContainerInfo describes one container for listing.
type ContainerInfo struct {
	Name     string                 `json:"name"`
	Kind     show.Kind              `json:"kind"`
	Beats    int                    `json:"beats,omitempty"`
	Sections map[cue.SectionTag]int `json:"sections,omitempty"`
	Output   string                 `json:"output,omitempty"`
	Cues     int                    `json:"cues"`
	MaxLanes int                    `json:"max_lanes"`
}

func (c ContainerInfo) String() string {
	var extent string
	if c.Kind == show.KindPhraseTrigger {
		var parts []string
		for _, tag := range cue.Sections {
			if bars, ok := c.Sections[tag]; ok {
				parts = append(parts, fmt.Sprintf("%s=%d", tag, bars))
			}
		}
		extent = "bars " + strings.Join(parts, ",")
	} else {
		extent = fmt.Sprintf("%d beats", c.Beats)
	}
	output := c.Output
	if output == "" {
		output = "-"
	}
	return fmt.Sprintf("%-20s %-14s %-28s output=%-16s cues=%d lanes=%d", c.Name, c.Kind, extent, output, c.Cues, c.MaxLanes)
}

func describeContainer(ctr *show.Container) ContainerInfo {
	state := ctr.Snapshot()
	return ContainerInfo{
		Name:     ctr.Name(),
		Kind:     ctr.Kind(),
		Beats:    state.Beats,
		Sections: state.Sections,
		Output:   state.Output,
		Cues:     len(state.Cues),
		MaxLanes: state.Layout.MaxLanes,
	}
}

// NewContainerCommand creates the container command group.
func NewContainerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "container",
		Short: "Manage tracks and phrase triggers",
	}
	cmd.AddCommand(newContainerListCommand(rootOpts))
	cmd.AddCommand(newContainerAddTrackCommand(rootOpts))
	cmd.AddCommand(newContainerAddPhraseCommand(rootOpts))
	cmd.AddCommand(newContainerOutputCommand(rootOpts))
	cmd.AddCommand(newContainerRemoveCommand(rootOpts))
	return cmd
}

func newContainerListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List containers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer sess.Close()

			infos := []ContainerInfo{}
			for _, ctr := range sess.show.Containers() {
				infos = append(infos, describeContainer(ctr))
			}
			f := opts.formatter(cmd)
			if opts.Format == "json" {
				return f.Success(infos)
			}
			if len(infos) == 0 {
				return f.Success("No containers.")
			}
			for _, info := range infos {
				if err := f.Success(info); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newContainerAddTrackCommand(opts *RootOptions) *cobra.Command {
	var beats int
	var output string
	cmd := &cobra.Command{
		Use:   "add-track <name>",
		Short: "Add a track container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editShow(cmd, opts, func(s *show.Show) (any, error) {
				ctr, err := s.AddTrack(args[0], beats, output)
				if err != nil {
					return nil, exitForShowError("failed to add track", err)
				}
				return describeContainer(ctr), nil
			})
		},
	}
	cmd.Flags().IntVar(&beats, "beats", 0, "track length in beats (0 leaves cue ends unbounded)")
	cmd.Flags().StringVar(&output, "output", "", "MIDI output name")
	return cmd
}

func newContainerAddPhraseCommand(opts *RootOptions) *cobra.Command {
	bars := make(map[cue.SectionTag]*int, len(cue.Sections))
	var output string
	cmd := &cobra.Command{
		Use:   "add-phrase <name>",
		Short: "Add a phrase trigger container",
		Long: `Add a phrase trigger. Each section flag gives that section's length in
bars of four beats; sections left at zero cannot hold cues.

Example:
  beatcue container add-phrase Drop --start 1 --loop 4 --end 1 --output "IAC Bus 1"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sections := make(map[cue.SectionTag]int)
			for tag, n := range bars {
				if *n != 0 {
					sections[tag] = *n
				}
			}
			return editShow(cmd, opts, func(s *show.Show) (any, error) {
				ctr, err := s.AddPhraseTrigger(args[0], sections, output)
				if err != nil {
					return nil, exitForShowError("failed to add phrase trigger", err)
				}
				return describeContainer(ctr), nil
			})
		},
	}
	for _, tag := range cue.Sections {
		n := new(int)
		bars[tag] = n
		cmd.Flags().IntVar(n, string(tag), 0, fmt.Sprintf("%s section length in bars", tag))
	}
	cmd.Flags().StringVar(&output, "output", "", "MIDI output name")
	return cmd
}

func newContainerOutputCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "output <name> <midi-output>",
		Short: "Set the MIDI output a container sends to",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editShow(cmd, opts, func(s *show.Show) (any, error) {
				ctr, err := s.Container(args[0])
				if err != nil {
					return nil, exitForShowError("failed to set output", err)
				}
				if err := ctr.SetOutput(args[1]); err != nil {
					return nil, exitForShowError("failed to set output", err)
				}
				return describeContainer(ctr), nil
			})
		},
	}
}

func newContainerRemoveCommand(opts *RootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a container and its cues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editShow(cmd, opts, func(s *show.Show) (any, error) {
				if err := s.RemoveContainer(args[0], force); err != nil {
					return nil, exitForShowError("failed to remove container", err)
				}
				return fmt.Sprintf("Removed %s", args[0]), nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "close unsaved editors instead of refusing")
	return cmd
}

// editShow loads the show, applies edit, saves and reports edit's result.
func editShow(cmd *cobra.Command, opts *RootOptions, edit func(s *show.Show) (any, error)) error {
	ctx := cmd.Context()
	sess, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer sess.Close()

	out, err := edit(sess.show)
	f := opts.formatter(cmd)
	if err != nil {
		if opts.Format == "json" {
			_ = f.Error(errorCode(err), err.Error(), nil)
		}
		return err
	}
	if err := sess.save(ctx); err != nil {
		return err
	}
	return f.Success(out)
}
