package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hypebeast/go-osc/osc"

	"github.com/roach88/beatcue/internal/cue"
)

// OSC addresses understood by the receiver.
const (
	// StatusAddress carries: player, container, section, beat, time ms,
	// playing, on beat and optionally bpm.
	StatusAddress = "/beatcue/status"

	// LostAddress carries: player.
	LostAddress = "/beatcue/lost"
)

// OSCReceiver listens for status messages from a protocol bridge and
// publishes them to a Tracker.
type OSCReceiver struct {
	Addr    string
	Tracker *Tracker
	Logger  *slog.Logger
}

// Dispatcher returns the dispatcher the receiver serves with.
func (r *OSCReceiver) Dispatcher() *osc.StandardDispatcher {
	logger := r.logger()
	d := osc.NewStandardDispatcher()
	_ = d.AddMsgHandler(StatusAddress, func(msg *osc.Message) {
		s, err := ParseStatus(msg)
		if err != nil {
			logger.Warn("bad status message", "error", err)
			return
		}
		r.Tracker.Publish(s)
	})
	_ = d.AddMsgHandler(LostAddress, func(msg *osc.Message) {
		if len(msg.Arguments) < 1 {
			logger.Warn("bad lost message", "error", "missing player")
			return
		}
		player, err := argInt(msg.Arguments[0])
		if err != nil {
			logger.Warn("bad lost message", "error", err)
			return
		}
		r.Tracker.Lose(int(player))
	})
	return d
}

// ListenAndServe serves until ctx ends.
func (r *OSCReceiver) ListenAndServe(ctx context.Context) error {
	server := &osc.Server{Addr: r.Addr, Dispatcher: r.Dispatcher()}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()
	r.logger().Info("osc receiver listening", "addr", r.Addr)

	select {
	case <-ctx.Done():
		if err := server.CloseConnection(); err != nil {
			r.logger().Debug("osc close", "error", err)
		}
		return nil
	case err := <-serveErr:
		if err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
			return fmt.Errorf("osc receiver on %s: %w", r.Addr, err)
		}
		return nil
	}
}

func (r *OSCReceiver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// ParseStatus decodes a StatusAddress message.
func ParseStatus(msg *osc.Message) (Status, error) {
	args := msg.Arguments
	if len(args) < 7 {
		return Status{}, fmt.Errorf("%s: want at least 7 arguments, got %d", msg.Address, len(args))
	}
	var (
		s    Status
		errs []error
	)
	player, err := argInt(args[0])
	errs = append(errs, err)
	container, err := argString(args[1])
	errs = append(errs, err)
	section, err := argString(args[2])
	errs = append(errs, err)
	beat, err := argInt(args[3])
	errs = append(errs, err)
	timeMs, err := argInt(args[4])
	errs = append(errs, err)
	s.Playing, err = argBool(args[5])
	errs = append(errs, err)
	s.OnBeat, err = argBool(args[6])
	errs = append(errs, err)
	if len(args) > 7 {
		s.BPM, err = argFloat(args[7])
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return Status{}, fmt.Errorf("%s: %w", msg.Address, err)
	}

	s.Player = int(player)
	s.Container = container
	s.Section = cue.SectionTag(section)
	s.Beat = int(beat)
	s.TimeMs = timeMs
	if !s.Section.Valid() {
		return Status{}, fmt.Errorf("%s: unknown section %q", msg.Address, section)
	}
	return s, nil
}

// StatusMessage encodes s for StatusAddress.
func StatusMessage(s Status) *osc.Message {
	msg := osc.NewMessage(StatusAddress)
	msg.Append(int32(s.Player))
	msg.Append(s.Container)
	msg.Append(string(s.Section))
	msg.Append(int32(s.Beat))
	msg.Append(s.TimeMs)
	msg.Append(s.Playing)
	msg.Append(s.OnBeat)
	msg.Append(float32(s.BPM))
	return msg
}

func argInt(v any) (int64, error) {
	switch n := v.(type) {
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	}
	return 0, fmt.Errorf("want number, got %T", v)
}

func argFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return 0, fmt.Errorf("want number, got %T", v)
}

func argString(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("want string, got %T", v)
}

func argBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case int32:
		return b != 0, nil
	case int64:
		return b != 0, nil
	}
	return false, fmt.Errorf("want bool, got %T", v)
}
