package store

import (
	"context"
	"fmt"
)

// FiredEvent is one journaled engine dispatch.
type FiredEvent struct {
	Seq       int64
	Container string
	Cue       string
	Player    int
	Event     string

	// Config is the event kind whose configuration applied, after resolving
	// Same. Empty for beat updates.
	Config    string
	Message   string
	Note      int
	Channel   int
	Simulated bool
}

// AppendFired records a fired event.
// Uses ON CONFLICT(seq) DO NOTHING for idempotency - a replayed seq is
// silently ignored.
func (s *Store) AppendFired(ctx context.Context, ev FiredEvent) error {
	if ev.Seq <= 0 {
		return fmt.Errorf("append fired: seq must be positive, got %d", ev.Seq)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fired
		(seq, container, cue, player, event, config, message, note, channel, simulated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		ev.Seq,
		ev.Container,
		ev.Cue,
		ev.Player,
		ev.Event,
		ev.Config,
		ev.Message,
		ev.Note,
		ev.Channel,
		boolToInt(ev.Simulated),
	)
	if err != nil {
		return fmt.Errorf("append fired: %w", err)
	}
	return nil
}

// FiredFilter narrows ReadFired. Zero values match everything.
type FiredFilter struct {
	// AfterSeq skips events with seq <= AfterSeq.
	AfterSeq  int64
	Container string
	Cue       string

	// Limit caps the result size; zero or negative means no limit.
	Limit int
}

// ReadFired returns journaled events matching f ordered by seq ASC.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadFired(ctx context.Context, f FiredFilter) ([]FiredEvent, error) {
	query := `
		SELECT seq, container, cue, player, event, config, message, note, channel, simulated
		FROM fired
		WHERE seq > ?`
	args := []any{f.AfterSeq}
	if f.Container != "" {
		query += ` AND container = ?`
		args = append(args, f.Container)
	}
	if f.Cue != "" {
		query += ` AND cue = ?`
		args = append(args, f.Cue)
	}
	query += ` ORDER BY seq ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query fired: %w", err)
	}
	defer rows.Close()

	events := []FiredEvent{}
	for rows.Next() {
		var ev FiredEvent
		var simulated int
		if err := rows.Scan(
			&ev.Seq,
			&ev.Container,
			&ev.Cue,
			&ev.Player,
			&ev.Event,
			&ev.Config,
			&ev.Message,
			&ev.Note,
			&ev.Channel,
			&simulated,
		); err != nil {
			return nil, fmt.Errorf("scan fired: %w", err)
		}
		ev.Simulated = simulated != 0
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fired: %w", err)
	}
	return events, nil
}

// LastFiredSeq returns the highest journaled seq, or 0 for an empty journal.
// The engine clock resumes after it so a reopened journal stays ordered.
func (s *Store) LastFiredSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM fired`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last fired seq: %w", err)
	}
	return seq, nil
}

// ClearFired empties the journal.
func (s *Store) ClearFired(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM fired`); err != nil {
		return fmt.Errorf("clear fired: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
