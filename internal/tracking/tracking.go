// Package tracking implements the detection-continuity state machine.
//
// It separates two concerns that are easy to conflate: "do we have a
// position" (raw storage of the last detection) and "do we still trust it"
// (a temporal grace-period policy). Update answers the first, TargetBox the
// second — TargetBox is the sole authority for whether downstream framing
// receives a target.
package tracking

import (
	"image"
	"time"
)

// Status describes the continuity of face tracking.
type Status int

const (
	// Tracking means a face was detected this tick.
	Tracking Status = iota
	// LostRecent means detection was lost less than the memory duration ago;
	// the last position is still trusted.
	LostRecent
	// LostLong means detection has been lost for at least the memory
	// duration, or no face was ever seen.
	LostLong
)

func (s Status) String() string {
	switch s {
	case Tracking:
		return "tracking"
	case LostRecent:
		return "lost_recent"
	case LostLong:
		return "lost_long"
	default:
		return "unknown"
	}
}

// State holds per-run tracking continuity. Created once per pipeline run,
// updated exactly once per tick by the pipeline worker. Not safe for
// concurrent use.
type State struct {
	memory   time.Duration
	lastBox  image.Rectangle
	lastSeen time.Time
	seen     bool
	status   Status
}

// New creates a tracking state in the initial LostLong state (no session
// history). memory is the grace period during which a lost position is
// still trusted.
func New(memory time.Duration) *State {
	return &State{memory: memory, status: LostLong}
}

// Update ingests this tick's detection result and returns the new status.
//
// Transitions:
//   - detected: store box and now as last-known, status Tracking.
//     Re-detection always wins, regardless of prior state.
//   - not detected, never seen: LostLong.
//   - not detected, gap < memory: LostRecent (last box kept unchanged).
//   - not detected, gap >= memory: LostLong (box retained internally but
//     no longer exposed as a target).
func (s *State) Update(box image.Rectangle, detected bool, now time.Time) Status {
	if detected {
		s.lastBox = box
		s.lastSeen = now
		s.seen = true
		s.status = Tracking
		return s.status
	}
	if !s.seen {
		s.status = LostLong
		return s.status
	}
	if now.Sub(s.lastSeen) < s.memory {
		s.status = LostRecent
	} else {
		s.status = LostLong
	}
	return s.status
}

// TargetBox returns the last-known box while it is still trusted
// (Tracking or LostRecent). Once LostLong, the stale box is hidden even
// though the state machine still holds it.
func (s *State) TargetBox() (image.Rectangle, bool) {
	if s.status == Tracking || s.status == LostRecent {
		return s.lastBox, true
	}
	return image.Rectangle{}, false
}

// Status returns the status computed by the last Update.
func (s *State) Status() Status {
	return s.status
}

// Reset returns to the initial state unconditionally.
func (s *State) Reset() {
	s.lastBox = image.Rectangle{}
	s.lastSeen = time.Time{}
	s.seen = false
	s.status = LostLong
}
