package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/beatcue/internal/show"
)

// LibraryListing is the library grouped by folder. Top-level templates are
// listed under the empty folder name.
type LibraryListing struct {
	Folders []LibraryFolder `json:"folders"`
}

// LibraryFolder is one folder and its templates.
type LibraryFolder struct {
	Name      string            `json:"name"`
	Templates []LibraryTemplate `json:"templates"`
}

// LibraryTemplate is one template and the number of cues linked to it.
type LibraryTemplate struct {
	Name  string `json:"name"`
	Users int    `json:"users"`
}

func (l LibraryListing) String() string {
	var b strings.Builder
	for i, f := range l.Folders {
		if i > 0 {
			b.WriteString("\n")
		}
		indent := ""
		if f.Name != "" {
			fmt.Fprintf(&b, "%s/", f.Name)
			indent = "  "
			if len(f.Templates) > 0 {
				b.WriteString("\n")
			}
		}
		for j, t := range f.Templates {
			if j > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "%s%s (%d linked)", indent, t.Name, t.Users)
		}
	}
	if b.Len() == 0 {
		return "Library is empty."
	}
	return b.String()
}

func listLibrary(s *show.Show) LibraryListing {
	lib := s.Library()
	filed := make(map[string]bool)
	var out LibraryListing
	for _, folder := range lib.FolderNames() {
		f := LibraryFolder{Name: folder, Templates: []LibraryTemplate{}}
		for _, name := range lib.Members(folder) {
			filed[name] = true
			f.Templates = append(f.Templates, LibraryTemplate{Name: name, Users: len(s.TemplateUsers(name))})
		}
		out.Folders = append(out.Folders, f)
	}
	top := LibraryFolder{Templates: []LibraryTemplate{}}
	for _, name := range lib.Names() {
		if !filed[name] {
			top.Templates = append(top.Templates, LibraryTemplate{Name: name, Users: len(s.TemplateUsers(name))})
		}
	}
	if len(top.Templates) > 0 {
		out.Folders = append([]LibraryFolder{top}, out.Folders...)
	}
	if out.Folders == nil {
		out.Folders = []LibraryFolder{}
	}
	return out
}

// NewLibraryCommand creates the library command group.
func NewLibraryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "library",
		Short: "Manage library cue templates and folders",
	}
	cmd.AddCommand(newLibraryListCommand(rootOpts))
	cmd.AddCommand(newLibraryShowCommand(rootOpts))
	cmd.AddCommand(newLibraryAddFromCueCommand(rootOpts))
	cmd.AddCommand(newLibraryRenameCommand(rootOpts))
	cmd.AddCommand(newLibraryDeleteCommand(rootOpts))
	cmd.AddCommand(newLibraryMoveCommand(rootOpts))
	cmd.AddCommand(newLibraryFolderCommand(rootOpts))
	return cmd
}

func newLibraryListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List templates by folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer sess.Close()
			return opts.formatter(cmd).Success(listLibrary(sess.show))
		},
	}
}

func newLibraryShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print a template's events and expressions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer sess.Close()

			t, ok := sess.show.Template(args[0])
			if !ok {
				return NewExitError(ExitCommandError, fmt.Sprintf("no library cue %q", args[0]))
			}
			if opts.Format == "json" {
				return opts.formatter(cmd).Success(t)
			}
			data, err := yaml.Marshal(t)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to encode template", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newLibraryAddFromCueCommand(opts *RootOptions) *cobra.Command {
	var folder string
	cmd := &cobra.Command{
		Use:   "add-from-cue <container> <cue> <name>",
		Short: "Save a cue's content as a template and link the cue to it",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editShow(cmd, opts, func(s *show.Show) (any, error) {
				ctr, err := s.Container(args[0])
				if err != nil {
					return nil, exitForShowError("failed to add library cue", err)
				}
				id, err := resolveCue(ctr, args[1])
				if err != nil {
					return nil, err
				}
				name, err := s.AddTemplateFromCue(ctr, id, args[2], folder)
				if err != nil {
					return nil, exitForShowError("failed to add library cue", err)
				}
				return fmt.Sprintf("Added %s", name), nil
			})
		},
	}
	cmd.Flags().StringVar(&folder, "folder", "", "file the template in this folder")
	return cmd
}

func newLibraryRenameCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Rename a template and every link to it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editShow(cmd, opts, func(s *show.Show) (any, error) {
				if err := s.RenameTemplate(args[0], args[1]); err != nil {
					return nil, exitForShowError("failed to rename library cue", err)
				}
				return fmt.Sprintf("Renamed %s to %s", args[0], args[1]), nil
			})
		},
	}
}

// confirmFunc asks the user to approve a destructive action.
type confirmFunc func(title, description string) (bool, error)

func huhConfirm(title, description string) (bool, error) {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Delete").
				Negative("Cancel").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("failed to get confirmation: %w", err)
	}
	return ok, nil
}

func newLibraryDeleteCommand(opts *RootOptions) *cobra.Command {
	return newLibraryDeleteCommandWith(opts, huhConfirm)
}

func newLibraryDeleteCommandWith(opts *RootOptions, confirm confirmFunc) *cobra.Command {
	var force, yes bool
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a template, unlinking the cues that use it",
		Long: `Delete a template. Linked cues keep their content but are unlinked.
When cues are linked you are asked to confirm unless --yes is given.
Unsaved editors on the template refuse the delete unless --force is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editShow(cmd, opts, func(s *show.Show) (any, error) {
				if _, ok := s.Template(args[0]); !ok {
					return nil, NewExitError(ExitCommandError, fmt.Sprintf("no library cue %q", args[0]))
				}
				users, warning := s.DescribeTemplateUsers(args[0])
				if len(users) > 0 && !yes {
					ok, err := confirm(fmt.Sprintf("Delete %s?", args[0]), warning)
					if err != nil {
						return nil, WrapExitError(ExitCommandError, "delete not confirmed", err)
					}
					if !ok {
						return nil, NewExitError(ExitFailure, "delete cancelled")
					}
				}
				unlinked, err := s.DeleteTemplate(args[0], force)
				if err != nil {
					return nil, exitForShowError("failed to delete library cue", err)
				}
				return fmt.Sprintf("Deleted %s, unlinked %d cue(s)", args[0], len(unlinked)), nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "discard unsaved editors on the template")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newLibraryMoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move <name> [folder]",
		Short: "File a template in a folder, or at the top level when omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			folder := ""
			if len(args) == 2 {
				folder = args[1]
			}
			return editShow(cmd, opts, func(s *show.Show) (any, error) {
				if err := s.MoveToFolder(args[0], folder); err != nil {
					return nil, exitForShowError("failed to move library cue", err)
				}
				return fmt.Sprintf("Moved %s", args[0]), nil
			})
		},
	}
}

func newLibraryFolderCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folder",
		Short: "Manage library folders",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editShow(cmd, opts, func(s *show.Show) (any, error) {
				if err := s.AddFolder(args[0]); err != nil {
					return nil, exitForShowError("failed to add folder", err)
				}
				return fmt.Sprintf("Added folder %s", args[0]), nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Rename a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editShow(cmd, opts, func(s *show.Show) (any, error) {
				if err := s.RenameFolder(args[0], args[1]); err != nil {
					return nil, exitForShowError("failed to rename folder", err)
				}
				return fmt.Sprintf("Renamed folder %s to %s", args[0], args[1]), nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a folder, keeping its templates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editShow(cmd, opts, func(s *show.Show) (any, error) {
				if err := s.DeleteFolder(args[0]); err != nil {
					return nil, exitForShowError("failed to delete folder", err)
				}
				return fmt.Sprintf("Deleted folder %s", args[0]), nil
			})
		},
	})
	return cmd
}
