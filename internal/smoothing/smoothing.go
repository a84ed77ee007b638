// Package smoothing implements the temporal filters behind auto-framing:
// a scalar exponential moving average and a three-axis transform smoother
// with per-tick velocity limiting on the pan axes.
//
// Philosophy: "Bound the whip." Exponential smoothing alone lags during
// fast motion and overshoots during fast stops; hard-clamping the per-tick
// delta gives an upper bound on perceived pan speed independent of alpha.
package smoothing

// Exponential is a scalar exponential moving average filter.
//
// Contract:
//   - First Smooth() after construction or Reset() returns the input
//     unchanged (no smoothing transient).
//   - Subsequent calls return alpha*new + (1-alpha)*prev.
//   - Alpha is clamped to [0, 1] at configuration time, never per sample.
//
// Not safe for concurrent use; the pipeline worker is the sole caller.
type Exponential struct {
	alpha  float64
	value  float64
	primed bool
}

// NewExponential creates a filter with alpha clamped to [0, 1].
// Lower alpha = smoother, higher alpha = more responsive.
func NewExponential(alpha float64) *Exponential {
	return &Exponential{alpha: clamp01(alpha)}
}

// Smooth applies exponential smoothing to the new value and returns the
// filtered result.
func (e *Exponential) Smooth(v float64) float64 {
	if !e.primed {
		e.value = v
		e.primed = true
		return e.value
	}
	e.value = e.alpha*v + (1-e.alpha)*e.value
	return e.value
}

// Value returns the stored smoothed value and whether one exists.
func (e *Exponential) Value() (float64, bool) {
	return e.value, e.primed
}

// Reset clears the filter to "no prior value".
func (e *Exponential) Reset() {
	e.value = 0
	e.primed = false
}

// SetAlpha updates the smoothing factor without touching the stored value.
func (e *Exponential) SetAlpha(alpha float64) {
	e.alpha = clamp01(alpha)
}

// override replaces the stored value, keeping the filter primed. Used by
// Transform to make a velocity-clamped result the new history baseline.
func (e *Exponential) override(v float64) {
	e.value = v
	e.primed = true
}

// Transform smooths an (x, y, zoom) target triple. The x and y axes are
// additionally velocity-limited: the per-tick change of the smoothed value
// never exceeds maxShift in magnitude. Zoom is never velocity-limited.
type Transform struct {
	x, y, zoom *Exponential
	maxShift   float64
}

// NewTransform creates a transform smoother. All three axis filters share
// the same alpha. maxShift is the maximum per-tick pan in pixels.
func NewTransform(alpha, maxShift float64) *Transform {
	return &Transform{
		x:        NewExponential(alpha),
		y:        NewExponential(alpha),
		zoom:     NewExponential(alpha),
		maxShift: maxShift,
	}
}

// Smooth filters the raw per-tick target and returns the jitter-resistant
// triple to apply this tick.
//
// Velocity limiting compares the newly smoothed value against the previous
// smoothed value and clamps the delta to ±maxShift. The clamped result
// overwrites the filter's stored value so the clamp becomes the new history
// baseline, preventing unbounded lag accumulation. The very first sample of
// an axis has no previous value and is never limited.
func (t *Transform) Smooth(targetX, targetY, targetZoom float64) (x, y, zoom float64) {
	x = t.limit(t.x, targetX)
	y = t.limit(t.y, targetY)
	zoom = t.zoom.Smooth(targetZoom)
	return x, y, zoom
}

func (t *Transform) limit(e *Exponential, target float64) float64 {
	prev, ok := e.Value()
	smoothed := e.Smooth(target)
	if !ok {
		return smoothed
	}
	delta := smoothed - prev
	if delta > t.maxShift {
		smoothed = prev + t.maxShift
		e.override(smoothed)
	} else if delta < -t.maxShift {
		smoothed = prev - t.maxShift
		e.override(smoothed)
	}
	return smoothed
}

// Reset clears all three axis filters atomically; a partially reset smoother
// is not a valid state. Idempotent.
func (t *Transform) Reset() {
	t.x.Reset()
	t.y.Reset()
	t.zoom.Reset()
}

// SetAlpha propagates a new smoothing factor to all three axis filters
// without touching their stored values.
func (t *Transform) SetAlpha(alpha float64) {
	t.x.SetAlpha(alpha)
	t.y.SetAlpha(alpha)
	t.zoom.SetAlpha(alpha)
}

// SetMaxShift updates the per-tick pan limit.
func (t *Transform) SetMaxShift(maxShift float64) {
	t.maxShift = maxShift
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
