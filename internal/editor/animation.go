package editor

import (
	"context"
)

// RunAnimation pushes the latest position of every playing player in the
// window's container into Playheads, and refreshes the visible list, once
// per interval. It returns nil once the window has been closed and
// ctx.Err() when ctx is done. The closed check runs at every wake-up; the
// loop is never interrupted mid-tick.
func (w *Window) RunAnimation(ctx context.Context) error {
	m := w.m
	m.logger.Debug("animation loop starting", "container", w.ctr.Name())
	for {
		if !m.owns(w) {
			m.logger.Debug("animation loop stopping: window closed", "container", w.ctr.Name())
			return nil
		}
		w.animate()

		timer := m.clock.NewTimer(m.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C():
		}
	}
}

func (w *Window) animate() {
	heads := make(map[int]Playhead)
	if w.m.players != nil {
		for _, p := range w.m.players.Players() {
			st, ok := w.m.players.LatestStatus(p)
			if !ok || !st.Playing || st.Container != w.ctr.Name() {
				continue
			}
			pos, ok := w.m.players.LatestPosition(p)
			if !ok {
				continue
			}
			heads[p] = Playhead{Player: p, Section: st.Section, Beat: pos.Beat, TimeMs: pos.TimeMs}
		}
	}

	w.mu.Lock()
	w.playheads = heads
	d := w.refreshLocked()
	redraw := w.onRedraw
	w.mu.Unlock()

	if redraw != nil && d.Redraw {
		redraw(d)
	}
}
