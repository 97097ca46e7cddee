package show

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/beatcue/internal/cue"
)

// Library is an immutable snapshot of the show's named cue templates and
// the folders that organize them.
type Library struct {
	Templates map[string]cue.Template
	Folders   map[string]map[string]struct{}
}

func emptyLibrary() *Library {
	return &Library{
		Templates: make(map[string]cue.Template),
		Folders:   make(map[string]map[string]struct{}),
	}
}

func (l *Library) clone() *Library {
	out := &Library{
		Templates: maps.Clone(l.Templates),
		Folders:   make(map[string]map[string]struct{}, len(l.Folders)),
	}
	for name, members := range l.Folders {
		out.Folders[name] = maps.Clone(members)
	}
	return out
}

// Names returns template names in display order.
func (l *Library) Names() []string {
	return sortNames(slices.Collect(maps.Keys(l.Templates)))
}

// FolderNames returns folder names in display order.
func (l *Library) FolderNames() []string {
	return sortNames(slices.Collect(maps.Keys(l.Folders)))
}

// Members returns the templates filed under folder, in display order.
func (l *Library) Members(folder string) []string {
	return sortNames(slices.Collect(maps.Keys(l.Folders[folder])))
}

// FolderOf returns the folder holding name, or "".
func (l *Library) FolderOf(name string) string {
	for _, folder := range l.FolderNames() {
		if _, ok := l.Folders[folder][name]; ok {
			return folder
		}
	}
	return ""
}

// normalizeName puts a user-supplied name into NFC with surrounding space
// trimmed so visually identical names compare equal.
func normalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// sortNames orders names case-insensitively, breaking ties on the raw text.
func sortNames(names []string) []string {
	fold := cases.Fold()
	slices.SortFunc(names, func(a, b string) int {
		return cmp.Or(
			cmp.Compare(fold.String(a), fold.String(b)),
			cmp.Compare(a, b),
		)
	})
	return names
}

// Library returns the current library snapshot.
func (s *Show) Library() *Library {
	return s.library.Load()
}

func (s *Show) updateLibrary(fn func(cur *Library) (*Library, error)) error {
	for range maxSwapAttempts {
		cur := s.library.Load()
		next, err := fn(cur)
		if err != nil {
			return err
		}
		if next == nil || next == cur {
			return nil
		}
		if s.library.CompareAndSwap(cur, next) {
			return nil
		}
	}
	return &Error{Code: ErrCodeConflict, Message: fmt.Sprintf("library kept changing after %d attempts", maxSwapAttempts)}
}

// Template returns the named template.
func (s *Show) Template(name string) (cue.Template, bool) {
	t, ok := s.Library().Templates[normalizeName(name)]
	if !ok {
		return cue.Template{}, false
	}
	return t.Clone(), true
}

// AddTemplate stores t under name, optionally filing it in folder.
func (s *Show) AddTemplate(name string, t cue.Template, folder string) (string, error) {
	name = normalizeName(name)
	folder = normalizeName(folder)
	if name == "" {
		return "", &Error{Code: ErrCodeNotFound, Message: "library cue name is empty"}
	}
	err := s.updateLibrary(func(cur *Library) (*Library, error) {
		if _, ok := cur.Templates[name]; ok {
			return nil, &Error{Code: ErrCodeDuplicateName, Message: "library cue already exists", Template: name}
		}
		if folder != "" {
			if _, ok := cur.Folders[folder]; !ok {
				return nil, &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("no folder %q", folder), Template: name}
			}
		}
		next := cur.clone()
		next.Templates[name] = t.Clone()
		if folder != "" {
			next.Folders[folder][name] = struct{}{}
		}
		return next, nil
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("library cue added", "template", name, "folder", folder)
	return name, nil
}

// AddTemplateFromCue stores the sanitized content of a cue under name and
// links the cue to it.
func (s *Show) AddTemplateFromCue(ctr *Container, id uuid.UUID, name, folder string) (string, error) {
	c, ok := ctr.Snapshot().Cue(id)
	if !ok {
		return "", cueNotFound(ctr.name, id)
	}
	name, err := s.AddTemplate(name, c.Template(), folder)
	if err != nil {
		return "", err
	}
	if _, err := s.Link(ctr, id, name); err != nil {
		return "", err
	}
	return name, nil
}

// EditTemplate replaces a template's content and pushes it to every linked cue.
func (s *Show) EditTemplate(name string, t cue.Template) error {
	name = normalizeName(name)
	if _, ok := s.Library().Templates[name]; !ok {
		return templateNotFound(name)
	}
	s.propagate(name, t, nil, uuid.Nil)
	return nil
}

// propagate stores t as the content of template name and copies it into
// every cue linked to name except the origin cue, which already holds it.
func (s *Show) propagate(name string, t cue.Template, origin *Container, originID uuid.UUID) {
	err := s.updateLibrary(func(cur *Library) (*Library, error) {
		old, ok := cur.Templates[name]
		if !ok {
			return nil, templateNotFound(name)
		}
		if old.Equal(t) {
			return cur, nil
		}
		next := cur.clone()
		next.Templates[name] = t.Clone()
		return next, nil
	})
	if err != nil {
		s.logger.Warn("linked edit not stored in library", "template", name, "error", err)
		return
	}

	for _, ctr := range s.Containers() {
		var changed []cue.Cue
		_, err := ctr.Update(func(cur *State) (*State, error) {
			changed = changed[:0]
			var next *State
			for _, c := range cur.Sorted() {
				if c.Linked != name || (ctr == origin && c.UUID == originID) || c.Template().Equal(t) {
					continue
				}
				if next == nil {
					next = cur.Clone()
				}
				updated := c.ApplyTemplate(t, name)
				next.Cues[c.UUID] = updated
				changed = append(changed, updated)
			}
			if next == nil {
				return cur, nil
			}
			return next, nil
		})
		if err != nil {
			s.logger.Warn("linked edit not propagated", "template", name, "container", ctr.name, "error", err)
			continue
		}
		for _, c := range changed {
			s.notifyChanged(ctr, c)
			s.refreshPanels(ctr, c)
		}
		if len(changed) > 0 {
			s.logger.Debug("linked edit propagated", "template", name, "container", ctr.name, "cues", len(changed))
		}
	}
}

// NewCueFromTemplate creates a cue covering [start, end) linked to name.
func (s *Show) NewCueFromTemplate(ctr *Container, name string, start, end int, section cue.SectionTag) (cue.Cue, error) {
	c := cue.New(start, end, section)
	c.Linked = normalizeName(name)
	return s.AddCue(ctr, c)
}

// Link copies the template's content into a cue and records the link.
func (s *Show) Link(ctr *Container, id uuid.UUID, name string) (cue.Cue, error) {
	name = normalizeName(name)
	t, ok := s.Template(name)
	if !ok {
		return cue.Cue{}, templateNotFound(name)
	}
	return s.relink(ctr, id, func(c cue.Cue) cue.Cue { return c.ApplyTemplate(t, name) })
}

// Unlink detaches a cue from its template. Content is kept.
func (s *Show) Unlink(ctr *Container, id uuid.UUID) (cue.Cue, error) {
	return s.relink(ctr, id, func(c cue.Cue) cue.Cue {
		c.Linked = ""
		return c
	})
}

func (s *Show) relink(ctr *Container, id uuid.UUID, edit func(cue.Cue) cue.Cue) (cue.Cue, error) {
	var after cue.Cue
	_, err := ctr.Update(func(cur *State) (*State, error) {
		old, ok := cur.Cues[id]
		if !ok {
			return nil, cueNotFound(ctr.name, id)
		}
		after = edit(old.Clone())
		next := cur.Clone()
		next.Cues[id] = after
		return next, nil
	})
	if err != nil {
		return cue.Cue{}, err
	}
	s.notifyChanged(ctr, after)
	return after, nil
}

// Usage is one cue linked to a template.
type Usage struct {
	Container string
	Cue       uuid.UUID
	Start     int
	End       int
	Comment   string
}

func (u Usage) String() string {
	if u.Comment != "" {
		return fmt.Sprintf("%s: %q (beats %d-%d)", u.Container, u.Comment, u.Start, u.End)
	}
	return fmt.Sprintf("%s: cue at beats %d-%d", u.Container, u.Start, u.End)
}

// describeLimit bounds how many usages DescribeTemplateUsers spells out.
const describeLimit = 4

// TemplateUsers lists every cue linked to name, by container then cue order.
func (s *Show) TemplateUsers(name string) []Usage {
	name = normalizeName(name)
	var out []Usage
	for _, ctr := range s.Containers() {
		for _, c := range ctr.Snapshot().Sorted() {
			if c.Linked == name {
				out = append(out, Usage{Container: ctr.name, Cue: c.UUID, Start: c.Start, End: c.End, Comment: c.Comment})
			}
		}
	}
	return out
}

// DescribeTemplateUsers returns the usages of name plus a warning text
// naming the first few of them.
func (s *Show) DescribeTemplateUsers(name string) ([]Usage, string) {
	users := s.TemplateUsers(name)
	if len(users) == 0 {
		return nil, fmt.Sprintf("No cues are linked to %q.", normalizeName(name))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d linked cue(s) will be unlinked from %q:", len(users), normalizeName(name))
	for i, u := range users {
		if i == describeLimit {
			b.WriteString("\n  …and others")
			break
		}
		b.WriteString("\n  ")
		b.WriteString(u.String())
	}
	return users, b.String()
}

// RenameTemplate renames a template, updating folder membership, linked cues
// and open template editors.
func (s *Show) RenameTemplate(oldName, newName string) error {
	oldName, newName = normalizeName(oldName), normalizeName(newName)
	if oldName == newName {
		return nil
	}
	if newName == "" {
		return &Error{Code: ErrCodeNotFound, Message: "library cue name is empty", Template: oldName}
	}
	err := s.updateLibrary(func(cur *Library) (*Library, error) {
		t, ok := cur.Templates[oldName]
		if !ok {
			return nil, templateNotFound(oldName)
		}
		if _, ok := cur.Templates[newName]; ok {
			return nil, &Error{Code: ErrCodeDuplicateName, Message: "library cue already exists", Template: newName}
		}
		next := cur.clone()
		delete(next.Templates, oldName)
		next.Templates[newName] = t
		for _, members := range next.Folders {
			if _, ok := members[oldName]; ok {
				delete(members, oldName)
				members[newName] = struct{}{}
			}
		}
		return next, nil
	})
	if err != nil {
		return err
	}

	s.editors.rename(
		func(k EditorKey) bool { return k.Template == oldName },
		func(k EditorKey) EditorKey { k.Template = newName; return k },
	)
	s.relinkAll(oldName, func(c cue.Cue) cue.Cue {
		c.Linked = newName
		return c
	})
	s.logger.Info("library cue renamed", "from", oldName, "to", newName)
	return nil
}

// DeleteTemplate removes a template and unlinks, without deleting, every cue
// that referenced it. Unsaved editors on the template veto the deletion
// unless force is set. It returns the cues that were unlinked.
func (s *Show) DeleteTemplate(name string, force bool) ([]Usage, error) {
	name = normalizeName(name)
	if _, ok := s.Library().Templates[name]; !ok {
		return nil, templateNotFound(name)
	}
	match := func(k EditorKey) bool { return k.Template == name }
	if err := s.veto(match, force, &Error{Message: "library cue has unsaved expression editors", Template: name}); err != nil {
		return nil, err
	}

	err := s.updateLibrary(func(cur *Library) (*Library, error) {
		if _, ok := cur.Templates[name]; !ok {
			return cur, nil
		}
		next := cur.clone()
		delete(next.Templates, name)
		for _, members := range next.Folders {
			delete(members, name)
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	users := s.TemplateUsers(name)
	s.relinkAll(name, func(c cue.Cue) cue.Cue {
		c.Linked = ""
		return c
	})
	s.logger.Info("library cue deleted", "template", name, "unlinked", len(users))
	return users, nil
}

// relinkAll applies edit to every cue linked to name, in every container.
func (s *Show) relinkAll(name string, edit func(cue.Cue) cue.Cue) {
	for _, ctr := range s.Containers() {
		var changed []cue.Cue
		_, err := ctr.Update(func(cur *State) (*State, error) {
			changed = changed[:0]
			var next *State
			for _, c := range cur.Sorted() {
				if c.Linked != name {
					continue
				}
				if next == nil {
					next = cur.Clone()
				}
				updated := edit(c.Clone())
				next.Cues[c.UUID] = updated
				changed = append(changed, updated)
			}
			if next == nil {
				return cur, nil
			}
			return next, nil
		})
		if err != nil {
			s.logger.Warn("relink failed", "template", name, "container", ctr.name, "error", err)
			continue
		}
		for _, c := range changed {
			s.notifyChanged(ctr, c)
			s.refreshPanels(ctr, c)
		}
	}
}

// AddFolder creates an empty folder.
func (s *Show) AddFolder(name string) error {
	name = normalizeName(name)
	if name == "" {
		return &Error{Code: ErrCodeNotFound, Message: "folder name is empty"}
	}
	return s.updateLibrary(func(cur *Library) (*Library, error) {
		if _, ok := cur.Folders[name]; ok {
			return nil, &Error{Code: ErrCodeDuplicateName, Message: fmt.Sprintf("folder %q already exists", name)}
		}
		next := cur.clone()
		next.Folders[name] = make(map[string]struct{})
		return next, nil
	})
}

// RenameFolder renames a folder, keeping its members.
func (s *Show) RenameFolder(oldName, newName string) error {
	oldName, newName = normalizeName(oldName), normalizeName(newName)
	if oldName == newName {
		return nil
	}
	return s.updateLibrary(func(cur *Library) (*Library, error) {
		members, ok := cur.Folders[oldName]
		if !ok {
			return nil, &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("no folder %q", oldName)}
		}
		if _, ok := cur.Folders[newName]; ok {
			return nil, &Error{Code: ErrCodeDuplicateName, Message: fmt.Sprintf("folder %q already exists", newName)}
		}
		next := cur.clone()
		delete(next.Folders, oldName)
		next.Folders[newName] = maps.Clone(members)
		return next, nil
	})
}

// DeleteFolder removes a folder. Its templates stay in the library.
func (s *Show) DeleteFolder(name string) error {
	name = normalizeName(name)
	return s.updateLibrary(func(cur *Library) (*Library, error) {
		if _, ok := cur.Folders[name]; !ok {
			return nil, &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("no folder %q", name)}
		}
		next := cur.clone()
		delete(next.Folders, name)
		return next, nil
	})
}

// MoveToFolder files a template under folder. An empty folder moves it to
// the top level.
func (s *Show) MoveToFolder(name, folder string) error {
	name, folder = normalizeName(name), normalizeName(folder)
	return s.updateLibrary(func(cur *Library) (*Library, error) {
		if _, ok := cur.Templates[name]; !ok {
			return nil, templateNotFound(name)
		}
		if _, ok := cur.Folders[folder]; folder != "" && !ok {
			return nil, &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("no folder %q", folder), Template: name}
		}
		next := cur.clone()
		for _, members := range next.Folders {
			delete(members, name)
		}
		if folder != "" {
			next.Folders[folder][name] = struct{}{}
		}
		return next, nil
	})
}

// ReplaceLibrary installs a library wholesale, as when loading a show.
// Cues already linked to names it lacks keep their content.
func (s *Show) ReplaceLibrary(l *Library) {
	next := emptyLibrary()
	for name, t := range l.Templates {
		next.Templates[normalizeName(name)] = t.Clone()
	}
	for folder, members := range l.Folders {
		set := make(map[string]struct{}, len(members))
		for name := range members {
			set[normalizeName(name)] = struct{}{}
		}
		next.Folders[normalizeName(folder)] = set
	}
	s.library.Store(next)
}
