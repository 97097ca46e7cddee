package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/beatcue/internal/engine"
	"github.com/roach88/beatcue/internal/expr"
	"github.com/roach88/beatcue/internal/midi"
	"github.com/roach88/beatcue/internal/show"
	"github.com/roach88/beatcue/internal/store"
)

// session is an open show database and the show loaded from it.
type session struct {
	store  *store.Store
	show   *show.Show
	logger *slog.Logger
}

// openSession opens the configured database and loads its show.
func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	st, err := store.Open(opts.Config.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	s, err := st.LoadShow(ctx, show.WithLogger(opts.Logger))
	if err != nil {
		_ = st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load show", err)
	}
	opts.Logger.Debug("show loaded", "database", opts.Config.Database, "containers", len(s.Containers()))
	return &session{store: st, show: s, logger: opts.Logger}, nil
}

// save writes the show back to the database.
func (s *session) save(ctx context.Context) error {
	if err := s.store.SaveShow(ctx, s.show); err != nil {
		return WrapExitError(ExitFailure, "failed to save show", err)
	}
	return nil
}

func (s *session) Close() error {
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

// exitForShowError maps show errors to exit codes: vetoes and conflicts are
// operation failures, everything else is a command error.
func exitForShowError(message string, err error) error {
	var serr *show.Error
	if errors.As(err, &serr) {
		switch serr.Code {
		case show.ErrCodeEditorsOpen, show.ErrCodeConflict:
			return WrapExitError(ExitFailure, message, err)
		}
	}
	return WrapExitError(ExitCommandError, message, err)
}

func errorCode(err error) string {
	var serr *show.Error
	if errors.As(err, &serr) {
		return fmt.Sprintf("E_%s", serr.Code)
	}
	return "E_FAILED"
}

// outputs returns a registry over the configured MIDI driver.
func (s *session) outputs(opts *RootOptions) *midi.Registry {
	return midi.NewRegistry(opts.Driver, s.logger)
}

// applyDefaultOutput points containers without an output at the configured
// default. The change is not saved.
func (s *session) applyDefaultOutput(output string) {
	if output == "" {
		return
	}
	for _, ctr := range s.show.Containers() {
		if ctr.Snapshot().Output != "" {
			continue
		}
		if err := ctr.SetOutput(output); err != nil {
			s.logger.Warn("default output not applied", "container", ctr.Name(), "error", err)
			continue
		}
		s.logger.Debug("default output applied", "container", ctr.Name(), "output", output)
	}
}

// newEngine creates an engine over the session's show whose clock resumes
// after the last journaled seq. journal selects whether fired events are
// written to the store.
func (s *session) newEngine(ctx context.Context, opts *RootOptions, outputs *midi.Registry, journal bool) (*engine.Engine, error) {
	last, err := s.store.LastFiredSeq(ctx)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to read journal", err)
	}
	alerts := expr.AlertFunc(func(title, message string) {
		s.logger.Error(title, "detail", message)
	})
	engineOpts := []engine.Option{
		engine.WithLogger(s.logger),
		engine.WithClock(engine.NewClockAt(last)),
		engine.WithAlerts(alerts, opts.Config.AlertOnExpressionError),
	}
	if journal {
		engineOpts = append(engineOpts, engine.WithStore(s.store))
	}
	return engine.New(s.show, outputs, engineOpts...), nil
}
