// Package captions holds the transient caption state of a call session, the
// event bridge that drives it and the renderer that turns it into a view.
package captions

import (
	"fmt"
	"sync"
)

// Placement selects where the captions toggle lives.
type Placement string

const (
	// PlacementTray adds a custom button to the call widget's tray and resolves
	// speakers from the participant roster.
	PlacementTray Placement = "tray"
	// PlacementOverlay shows the toggle on the caption overlay once joined and
	// takes speaker names from the transcript payload.
	PlacementOverlay Placement = "overlay"
)

// ParsePlacement parses a placement name. Empty means tray.
func ParsePlacement(s string) (Placement, error) {
	switch Placement(s) {
	case "", PlacementTray:
		return PlacementTray, nil
	case PlacementOverlay:
		return PlacementOverlay, nil
	}
	return "", fmt.Errorf("unknown toggle placement %q (must be tray or overlay)", s)
}

// FormatCaption renders one caption line.
func FormatCaption(speaker, text string) string {
	return speaker + ": " + text
}

// Snapshot is a consistent copy of State.
type Snapshot struct {
	Active       bool
	Joined       bool
	Transcribing bool
	Lines        int
	Last         string
}

// State is the in-memory caption state of at most one session.
//
// Transcribing is only ever true while a session is active, and ending the
// session clears the caption log.
type State struct {
	notifyMu sync.Mutex // orders listener notifications

	mu           sync.Mutex
	active       bool
	joined       bool
	transcribing bool
	lines        []string

	listenersMu sync.Mutex
	nextID      uint64
	listeners   map[uint64]func(Snapshot)
}

// NewState returns an empty state with no session.
func NewState() *State {
	return &State{listeners: make(map[uint64]func(Snapshot))}
}

// Listen registers fn to be called with a snapshot after every change, in
// change order. fn must not modify the state. The returned func removes it.
func (s *State) Listen(fn func(Snapshot)) func() {
	s.listenersMu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// Begin starts a new session with an empty log.
func (s *State) Begin() {
	s.update(func() bool {
		s.active = true
		s.joined = false
		s.transcribing = false
		s.lines = nil
		return true
	})
}

// MarkJoined records that the session joined the call.
func (s *State) MarkJoined() {
	s.update(func() bool {
		if !s.active || s.joined {
			return false
		}
		s.joined = true
		return true
	})
}

// End discards the session, its transcribing flag and its caption log.
func (s *State) End() {
	s.update(func() bool {
		if !s.active && s.lines == nil && !s.transcribing {
			return false
		}
		s.active = false
		s.joined = false
		s.transcribing = false
		s.lines = nil
		return true
	})
}

// SetTranscribing sets the transcribing flag. It is ignored without a session.
func (s *State) SetTranscribing(on bool) {
	s.update(func() bool {
		if !s.active || s.transcribing == on {
			return false
		}
		s.transcribing = on
		return true
	})
}

// Append adds a caption line. It is ignored without a session.
func (s *State) Append(line string) {
	s.update(func() bool {
		if !s.active {
			return false
		}
		s.lines = append(s.lines, line)
		return true
	})
}

// Transcribing reports the transcribing flag.
func (s *State) Transcribing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcribing
}

// Lines returns a copy of the caption log.
func (s *State) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

// Snapshot returns a consistent copy of the state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	snap := Snapshot{
		Active:       s.active,
		Joined:       s.joined,
		Transcribing: s.transcribing,
		Lines:        len(s.lines),
	}
	if n := len(s.lines); n > 0 {
		snap.Last = s.lines[n-1]
	}
	return snap
}

// update applies fn under the lock and notifies listeners if fn reports a change.
func (s *State) update(fn func() bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	changed := fn()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if !changed {
		return
	}

	s.listenersMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, l := range s.listeners {
		fns = append(fns, l)
	}
	s.listenersMu.Unlock()

	for _, l := range fns {
		l(snap)
	}
}
