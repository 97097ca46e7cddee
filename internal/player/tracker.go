package player

import (
	"maps"
	"slices"
	"sync"
)

// Tracker is the Source fed by receivers and simulators.
type Tracker struct {
	mu        sync.RWMutex
	latest    map[int]Status
	listeners map[int]Listener
	next      int
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		latest:    make(map[int]Status),
		listeners: make(map[int]Listener),
	}
}

// AddListener registers l. The returned function removes it.
func (t *Tracker) AddListener(l Listener) (remove func()) {
	t.mu.Lock()
	t.next++
	token := t.next
	t.listeners[token] = l
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.listeners, token)
	}
}

func (t *Tracker) listenerList() []Listener {
	tokens := slices.Sorted(maps.Keys(t.listeners))
	out := make([]Listener, 0, len(tokens))
	for _, token := range tokens {
		out = append(out, t.listeners[token])
	}
	return out
}

// Publish records s as the latest status of its player and notifies listeners.
func (t *Tracker) Publish(s Status) {
	t.mu.Lock()
	t.latest[s.Player] = s
	listeners := t.listenerList()
	t.mu.Unlock()

	for _, l := range listeners {
		l.StatusChanged(s)
	}
}

// Lose forgets a player that disappeared and notifies listeners.
func (t *Tracker) Lose(player int) {
	t.mu.Lock()
	_, known := t.latest[player]
	delete(t.latest, player)
	listeners := t.listenerList()
	t.mu.Unlock()

	if !known {
		return
	}
	for _, l := range listeners {
		l.PlayerLost(player)
	}
}

func (t *Tracker) LatestPosition(player int) (Position, bool) {
	s, ok := t.LatestStatus(player)
	if !ok {
		return Position{}, false
	}
	return s.Position(), true
}

func (t *Tracker) LatestStatus(player int) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.latest[player]
	return s, ok
}

// Players returns the known player numbers, ascending.
func (t *Tracker) Players() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Sorted(maps.Keys(t.latest))
}

// Playing returns the statuses of players currently playing, by player number.
func (t *Tracker) Playing() []Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Status
	for _, p := range slices.Sorted(maps.Keys(t.latest)) {
		if s := t.latest[p]; s.Playing {
			out = append(out, s)
		}
	}
	return out
}
