package autoframe

import "time"

const (
	// lowFPSThreshold is the throughput below which a window counts as
	// degraded.
	lowFPSThreshold = 15.0
	// lowFPSWindows is how many consecutive degraded windows trigger the
	// one-shot performance warning.
	lowFPSWindows = 5
)

// fpsMeter maintains a rolling FPS estimate over 1-second windows and the
// one-shot low-throughput warning state. Mutated by the pipeline worker
// only.
type fpsMeter struct {
	frames      int
	windowStart time.Time
	current     float64

	lowWindows int
	warned     bool
}

func newFPSMeter(now time.Time) *fpsMeter {
	return &fpsMeter{windowStart: now}
}

// tick records one produced frame. closed reports that a 1-second window
// completed (and current was refreshed); warn fires exactly once per
// degradation episode, after lowFPSWindows consecutive windows below
// threshold, and re-arms only after throughput recovers.
func (m *fpsMeter) tick(now time.Time) (fps float64, closed, warn bool) {
	m.frames++
	elapsed := now.Sub(m.windowStart)
	if elapsed < time.Second {
		return m.current, false, false
	}

	m.current = float64(m.frames) / elapsed.Seconds()
	m.frames = 0
	m.windowStart = now

	if m.current < lowFPSThreshold {
		m.lowWindows++
		if m.lowWindows >= lowFPSWindows && !m.warned {
			m.warned = true
			return m.current, true, true
		}
	} else {
		m.lowWindows = 0
		m.warned = false
	}
	return m.current, true, false
}
