package smoothing

import (
	"math"
	"testing"
)

// TestFirstValuePassesThrough verifies a fresh filter returns the input
// exactly for any alpha.
func TestFirstValuePassesThrough(t *testing.T) {
	for _, alpha := range []float64{0, 0.15, 0.5, 1} {
		for _, v := range []float64{-1000, -0.5, 0, 42.25, 1e6} {
			e := NewExponential(alpha)
			if got := e.Smooth(v); got != v {
				t.Errorf("alpha=%v: first Smooth(%v) = %v, want input unchanged", alpha, v, got)
			}
		}
	}
}

func TestExponentialFormula(t *testing.T) {
	e := NewExponential(0.25)
	e.Smooth(100)
	got := e.Smooth(200)
	want := 0.25*200 + 0.75*100
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("second Smooth = %v, want %v", got, want)
	}
}

func TestAlphaClampedAtConfiguration(t *testing.T) {
	e := NewExponential(2.5) // clamps to 1: output tracks input exactly
	e.Smooth(10)
	if got := e.Smooth(50); got != 50 {
		t.Errorf("alpha>1 should clamp to 1, got %v", got)
	}

	e = NewExponential(-1) // clamps to 0: output frozen at first value
	e.Smooth(10)
	if got := e.Smooth(50); got != 10 {
		t.Errorf("alpha<0 should clamp to 0, got %v", got)
	}
}

func TestResetClearsHistory(t *testing.T) {
	e := NewExponential(0.15)
	e.Smooth(100)
	e.Reset()
	if _, ok := e.Value(); ok {
		t.Fatal("Value() reports history after Reset")
	}
	if got := e.Smooth(7); got != 7 {
		t.Errorf("first Smooth after Reset = %v, want 7", got)
	}
}

func TestSetAlphaKeepsStoredValue(t *testing.T) {
	e := NewExponential(0.15)
	e.Smooth(100)
	e.SetAlpha(1.0)
	if got := e.Smooth(200); got != 200 {
		t.Errorf("after SetAlpha(1.0) Smooth(200) = %v, want 200", got)
	}
}

// TestVelocityLimitBoundsPanSpeed verifies that after the first sample, the
// magnitude of successive smoothed x/y outputs never exceeds maxShift.
func TestVelocityLimitBoundsPanSpeed(t *testing.T) {
	const maxShift = 50.0
	tr := NewTransform(0.9, maxShift)

	targets := []float64{0, 500, -500, 1200, 1199, 0, 3, 5000}
	var prevX, prevY float64
	for i, target := range targets {
		x, y, _ := tr.Smooth(target, -target, 1.0)
		if i > 0 {
			if d := math.Abs(x - prevX); d > maxShift+1e-9 {
				t.Fatalf("tick %d: x moved %v, limit %v", i, d, maxShift)
			}
			if d := math.Abs(y - prevY); d > maxShift+1e-9 {
				t.Fatalf("tick %d: y moved %v, limit %v", i, d, maxShift)
			}
		}
		prevX, prevY = x, y
	}
}

// TestClampBecomesHistoryBaseline verifies the clamped value overwrites the
// filter state, so repeated large targets advance by maxShift per tick
// instead of accumulating hidden lag.
func TestClampBecomesHistoryBaseline(t *testing.T) {
	tr := NewTransform(1.0, 10) // alpha 1: smoothing passes target through
	tr.Smooth(0, 0, 1)
	x1, _, _ := tr.Smooth(100, 0, 1)
	x2, _, _ := tr.Smooth(100, 0, 1)
	if x1 != 10 || x2 != 20 {
		t.Errorf("clamped walk = %v, %v; want 10, 20", x1, x2)
	}
}

func TestZoomIsNotVelocityLimited(t *testing.T) {
	tr := NewTransform(1.0, 0.001)
	tr.Smooth(0, 0, 1.0)
	_, _, zoom := tr.Smooth(0, 0, 3.0)
	if zoom != 3.0 {
		t.Errorf("zoom = %v, want 3.0 (no velocity limiting on zoom)", zoom)
	}
}

func TestFirstSampleNotLimited(t *testing.T) {
	tr := NewTransform(0.5, 1)
	x, y, _ := tr.Smooth(10000, -10000, 1)
	if x != 10000 || y != -10000 {
		t.Errorf("first sample = (%v, %v), want unlimited pass-through", x, y)
	}
}

// TestResetIdempotent verifies two consecutive resets behave as one.
func TestResetIdempotent(t *testing.T) {
	tr := NewTransform(0.15, 50)
	tr.Smooth(640, 360, 1.8)
	tr.Reset()
	tr.Reset()
	x, y, zoom := tr.Smooth(10, 20, 2.0)
	if x != 10 || y != 20 || zoom != 2.0 {
		t.Errorf("after double Reset got (%v, %v, %v), want pass-through (10, 20, 2)", x, y, zoom)
	}
}

func TestSetAlphaPropagatesToAllAxes(t *testing.T) {
	tr := NewTransform(0.0, 1e9)
	tr.Smooth(100, 100, 1.0)
	tr.SetAlpha(1.0)
	x, y, zoom := tr.Smooth(200, 300, 2.0)
	if x != 200 || y != 300 || zoom != 2.0 {
		t.Errorf("SetAlpha(1.0) not propagated: got (%v, %v, %v)", x, y, zoom)
	}
}
