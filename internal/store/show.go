package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/beatcue/internal/cue"
	"github.com/roach88/beatcue/internal/show"
)

// SaveShow replaces the stored show with s in a single transaction.
// Runtime state (entered players, editors, panels) is not persisted.
func (st *Store) SaveShow(ctx context.Context, s *show.Show) error {
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save show: begin: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"cues", "containers", "folder_members", "folders", "templates"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("save show: clear %s: %w", table, err)
		}
	}

	if err := writeLibrary(ctx, tx, s.Library()); err != nil {
		return fmt.Errorf("save show: %w", err)
	}
	for _, ctr := range s.Containers() {
		if err := writeContainer(ctx, tx, ctr); err != nil {
			return fmt.Errorf("save show: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save show: commit: %w", err)
	}
	return nil
}

func writeLibrary(ctx context.Context, tx *sql.Tx, lib *show.Library) error {
	for _, name := range lib.Names() {
		t := lib.Templates[name]
		events, err := marshalEvents(t.Events)
		if err != nil {
			return fmt.Errorf("template %q: %w", name, err)
		}
		exprs, err := marshalExpressions(t.Expressions)
		if err != nil {
			return fmt.Errorf("template %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO templates (name, events, expressions) VALUES (?, ?, ?)`,
			name, events, exprs,
		); err != nil {
			return fmt.Errorf("write template %q: %w", name, err)
		}
	}

	for _, folder := range lib.FolderNames() {
		if _, err := tx.ExecContext(ctx, `INSERT INTO folders (name) VALUES (?)`, folder); err != nil {
			return fmt.Errorf("write folder %q: %w", folder, err)
		}
		for _, member := range lib.Members(folder) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO folder_members (folder, template) VALUES (?, ?)`,
				folder, member,
			); err != nil {
				return fmt.Errorf("write folder %q member %q: %w", folder, member, err)
			}
		}
	}
	return nil
}

func writeContainer(ctx context.Context, tx *sql.Tx, ctr *show.Container) error {
	state := ctr.Snapshot()
	sections, err := marshalSections(state.Sections)
	if err != nil {
		return fmt.Errorf("container %q: %w", ctr.Name(), err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO containers (name, kind, beats, sections, output) VALUES (?, ?, ?, ?, ?)`,
		ctr.Name(), string(ctr.Kind()), state.Beats, sections, state.Output,
	); err != nil {
		return fmt.Errorf("write container %q: %w", ctr.Name(), err)
	}

	for _, c := range state.Sorted() {
		r := c.Record()
		events, err := marshalEvents(r.Events)
		if err != nil {
			return fmt.Errorf("cue %s: %w", r.UUID, err)
		}
		exprs, err := marshalExpressions(r.Expressions)
		if err != nil {
			return fmt.Errorf("cue %s: %w", r.UUID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cues
			(container, uuid, start_beat, end_beat, section, hue, comment, events, expressions, linked)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			ctr.Name(),
			r.UUID,
			r.Start,
			r.End,
			string(r.Section),
			r.Hue,
			r.Comment,
			events,
			exprs,
			r.Linked,
		); err != nil {
			return fmt.Errorf("write cue %s: %w", r.UUID, err)
		}
	}
	return nil
}

// LoadShow builds a show from the stored tables. Cues are restored with
// their saved content; the library is installed first so links resolve. A
// cue linked to a template the library no longer holds is loaded unlinked.
func (st *Store) LoadShow(ctx context.Context, opts ...show.Option) (*show.Show, error) {
	s := show.NewShow(opts...)

	lib, err := st.readLibrary(ctx)
	if err != nil {
		return nil, fmt.Errorf("load show: %w", err)
	}
	s.ReplaceLibrary(lib)

	if err := st.readContainers(ctx, s); err != nil {
		return nil, fmt.Errorf("load show: %w", err)
	}

	records, err := st.readCues(ctx)
	if err != nil {
		return nil, fmt.Errorf("load show: %w", err)
	}
	for _, rec := range records {
		ctr, err := s.Container(rec.container)
		if err != nil {
			return nil, fmt.Errorf("load show: %w", err)
		}
		c, err := cue.FromRecord(rec.Record)
		if err != nil {
			return nil, fmt.Errorf("load show: %w", err)
		}
		if c.Linked != "" {
			if _, ok := s.Template(c.Linked); !ok {
				s.Logger().Warn("cue linked to missing template, loading unlinked",
					"container", rec.container, "cue", c.UUID, "template", c.Linked)
				c.Linked = ""
			}
		}
		if _, err := s.RestoreCue(ctr, c); err != nil {
			return nil, fmt.Errorf("load show: cue %s: %w", c.UUID, err)
		}
	}
	return s, nil
}

func (st *Store) readLibrary(ctx context.Context) (*show.Library, error) {
	lib := &show.Library{
		Templates: map[string]cue.Template{},
		Folders:   map[string]map[string]struct{}{},
	}

	rows, err := st.db.QueryContext(ctx, `
		SELECT name, events, expressions FROM templates
		ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name, eventsJSON, exprsJSON string
		if err := rows.Scan(&name, &eventsJSON, &exprsJSON); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		events, err := unmarshalEvents(eventsJSON)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", name, err)
		}
		exprs, err := unmarshalExpressions(exprsJSON)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", name, err)
		}
		lib.Templates[name] = cue.Template{Events: events, Expressions: exprs}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}

	folders, err := st.db.QueryContext(ctx, `
		SELECT f.name, COALESCE(m.template, '')
		FROM folders f LEFT JOIN folder_members m ON m.folder = f.name
		ORDER BY f.name COLLATE BINARY ASC, m.template COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query folders: %w", err)
	}
	defer folders.Close()
	for folders.Next() {
		var folder, member string
		if err := folders.Scan(&folder, &member); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		if lib.Folders[folder] == nil {
			lib.Folders[folder] = map[string]struct{}{}
		}
		if member != "" {
			lib.Folders[folder][member] = struct{}{}
		}
	}
	if err := folders.Err(); err != nil {
		return nil, fmt.Errorf("iterate folders: %w", err)
	}
	return lib, nil
}

func (st *Store) readContainers(ctx context.Context, s *show.Show) error {
	rows, err := st.db.QueryContext(ctx, `
		SELECT name, kind, beats, sections, output FROM containers
		ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return fmt.Errorf("query containers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, kind, sectionsJSON, output string
		var beats int
		if err := rows.Scan(&name, &kind, &beats, &sectionsJSON, &output); err != nil {
			return fmt.Errorf("scan container: %w", err)
		}
		switch show.Kind(kind) {
		case show.KindTrack:
			if _, err := s.AddTrack(name, beats, output); err != nil {
				return fmt.Errorf("container %q: %w", name, err)
			}
		case show.KindPhraseTrigger:
			sections, err := unmarshalSections(sectionsJSON)
			if err != nil {
				return fmt.Errorf("container %q: %w", name, err)
			}
			if _, err := s.AddPhraseTrigger(name, sections, output); err != nil {
				return fmt.Errorf("container %q: %w", name, err)
			}
		default:
			return fmt.Errorf("container %q: unknown kind %q", name, kind)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate containers: %w", err)
	}
	return nil
}

type storedCue struct {
	container string
	cue.Record
}

func (st *Store) readCues(ctx context.Context) ([]storedCue, error) {
	rows, err := st.db.QueryContext(ctx, `
		SELECT container, uuid, start_beat, end_beat, section, hue, comment, events, expressions, linked
		FROM cues
		ORDER BY container COLLATE BINARY ASC, uuid COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query cues: %w", err)
	}
	defer rows.Close()

	var out []storedCue
	for rows.Next() {
		var sc storedCue
		var section, eventsJSON, exprsJSON string
		if err := rows.Scan(
			&sc.container,
			&sc.UUID,
			&sc.Start,
			&sc.End,
			&section,
			&sc.Hue,
			&sc.Comment,
			&eventsJSON,
			&exprsJSON,
			&sc.Linked,
		); err != nil {
			return nil, fmt.Errorf("scan cue: %w", err)
		}
		sc.Section = cue.SectionTag(section)
		if sc.Events, err = unmarshalEvents(eventsJSON); err != nil {
			return nil, fmt.Errorf("cue %s: %w", sc.UUID, err)
		}
		if sc.Expressions, err = unmarshalExpressions(exprsJSON); err != nil {
			return nil, fmt.Errorf("cue %s: %w", sc.UUID, err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cues: %w", err)
	}
	return out, nil
}
