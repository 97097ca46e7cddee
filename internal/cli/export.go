package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/beatcue/internal/cue"
	"github.com/roach88/beatcue/internal/show"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export <container>",
		Short: "Write a container's cues as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer sess.Close()

			ctr, err := sess.show.Container(args[0])
			if err != nil {
				return exitForShowError("failed to export", err)
			}
			sorted := ctr.Snapshot().Sorted()
			records := make([]cue.Record, 0, len(sorted))
			for _, c := range sorted {
				records = append(records, c.Record())
			}
			data, err := cue.MarshalRecordsYAML(records)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to export", err)
			}
			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return WrapExitError(ExitCommandError, "failed to write export", err)
			}
			rootOpts.Logger.Info("cues exported", "container", ctr.Name(), "cues", len(records), "path", outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write to file instead of stdout")
	return cmd
}

// ImportResult summarizes an import.
type ImportResult struct {
	Container string   `json:"container"`
	Added     int      `json:"added"`
	Replaced  int      `json:"replaced"`
	Unlinked  []string `json:"unlinked,omitempty"`
}

func (r ImportResult) String() string {
	s := fmt.Sprintf("Imported %d cue(s) into %s", r.Added, r.Container)
	if r.Replaced > 0 {
		s += fmt.Sprintf(", replacing %d", r.Replaced)
	}
	if len(r.Unlinked) > 0 {
		s += fmt.Sprintf("; %d unlinked from missing templates", len(r.Unlinked))
	}
	return s
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var replace bool
	cmd := &cobra.Command{
		Use:   "import <container> <file>",
		Short: "Add cues from a YAML export",
		Long: `Add the cues of a YAML export to a container. Cues linked to a template
the library does not have are imported unlinked. With --replace the
container's existing cues are deleted first.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read import", err)
			}
			records, err := cue.UnmarshalRecordsYAML(data)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid import file", err)
			}
			return editShow(cmd, rootOpts, func(s *show.Show) (any, error) {
				return importRecords(s, args[0], records, replace, rootOpts)
			})
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "delete existing cues first")
	return cmd
}

func importRecords(s *show.Show, name string, records []cue.Record, replace bool, opts *RootOptions) (ImportResult, error) {
	res := ImportResult{Container: name}
	ctr, err := s.Container(name)
	if err != nil {
		return res, exitForShowError("failed to import", err)
	}

	cues := make([]cue.Cue, 0, len(records))
	for i, r := range records {
		c, err := cue.FromRecord(r)
		if err != nil {
			return res, WrapExitError(ExitCommandError, fmt.Sprintf("record %d", i), err)
		}
		if c.Linked != "" {
			if _, ok := s.Template(c.Linked); !ok {
				opts.Logger.Warn("template missing, importing unlinked", "cue", c.UUID, "template", c.Linked)
				res.Unlinked = append(res.Unlinked, c.UUID.String())
				c.Linked = ""
			}
		}
		cues = append(cues, c)
	}

	if replace {
		for _, c := range ctr.Snapshot().Sorted() {
			if _, err := s.DeleteCue(ctr, c.UUID, false); err != nil {
				return res, exitForShowError("failed to replace cues", err)
			}
			res.Replaced++
		}
	}
	for _, c := range cues {
		if _, err := s.AddCue(ctr, c); err != nil {
			return res, exitForShowError(fmt.Sprintf("failed to import cue %s", c.UUID), err)
		}
		res.Added++
	}
	return res, nil
}
